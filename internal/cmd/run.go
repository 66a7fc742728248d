package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/server"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Start the ShopQ API server",
	Long: `Start the ShopQ server which provides:
- REST API over orders, deadlines and merchant rules
- On-demand mailbox scans (POST /api/scans)
- A periodic enrichment sweep over orders still lacking evidence`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	fmt.Println("🚀 ShopQ Starting...")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("📝 Loading configuration...")
	svc, cfg, closeStore, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Printf("✅ Store ready (%s)\n", cfg.Store.Backend)

	fmt.Println("⚙️  Setting up server...")
	srv := server.NewServer(svc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Printf("🌐 Starting server on %s...\n", cfg.Server.Addr)
		if err := srv.Start(gctx, cfg.Server.Addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if cfg.Server.EnrichInterval > 0 {
		fmt.Printf("🔁 Enrichment sweep every %s\n", cfg.Server.EnrichInterval)
		g.Go(func() error {
			return sweep(gctx, svc, cfg.Server.EnrichInterval)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("👋 ShopQ stopped")
	return nil
}

// sweep enriches pending orders every interval until ctx ends. A failed
// sweep is logged and retried on the next tick.
func sweep(ctx context.Context, svc *tracker.Service, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			outcomes, err := svc.EnrichPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("serve: enrichment sweep failed")
				continue
			}
			enriched := 0
			for _, out := range outcomes {
				if out.Enriched {
					enriched++
				}
			}
			log.Info().Int("orders", len(outcomes)).Int("enriched", enriched).Msg("serve: enrichment sweep finished")
		}
	}
}
