package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/config"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/logging"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/tracker"
)

const dateLayout = "2006-01-02"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shopq",
	Short: "ShopQ - purchase and return-deadline tracker",
	Long: `ShopQ reads purchase emails from a mailbox, links confirmations,
shipping and delivery notices into one Order per purchase, and tracks
the return deadline of each Order with an explicit confidence.

Deadlines start from merchant rules and are upgraded to exact only
when the return policy is found verbatim in one of the Order's emails.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./deploy/config.yaml)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}

// openTracker loads the configuration and opens the tracker service on it.
func openTracker(ctx context.Context) (*tracker.Service, *config.Config, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	svc, closeFn, err := tracker.Open(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return svc, cfg, closeFn, nil
}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, expected YYYY-MM-DD: %w", name, value, err)
	}
	return t, nil
}
