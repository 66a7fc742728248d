package tracker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/config"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/enrich"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/ingest"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/lifecycle"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/llm"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/resolve"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/retry"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/store"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/types"
)

// Deps are the collaborators a Service is assembled from.
type Deps struct {
	Repo      *orders.Repository
	Source    mailbox.Source
	Generator types.Generator
}

// Assemble builds the pipeline engines around deps as configured.
func Assemble(cfg *config.Config, deps Deps) *Service {
	lc := lifecycle.NewEngine(cfg.Deadline.DefaultWindowDays)
	resolver := resolve.NewEngine(deps.Repo, lc, resolve.Options{
		Threshold:      cfg.Deadline.SimilarityThreshold,
		TimeWindowDays: cfg.Deadline.TimeWindowDays,
		ThreadHints:    cfg.Scan.ThreadHints,
	})
	scanner := ingest.NewScanner(deps.Repo, deps.Source, resolver, cfg.Scan.Lookback)
	enricher := enrich.NewOrchestrator(deps.Repo, deps.Source, deps.Generator, lc, enrich.Options{
		ContextBudget: cfg.Enrich.ContextBudget,
		WindowRadius:  cfg.Enrich.WindowRadius,
		MaxCandidates: cfg.Enrich.MaxCandidates,
		MaxTokens:     cfg.LLM.MaxTokens,
	})
	return New(deps.Repo, resolver, lc, scanner, enricher)
}

// Open connects the configured store, mailbox and extraction provider and
// returns a ready Service. The returned close func releases the store.
func Open(ctx context.Context, cfg *config.Config) (*Service, func() error, error) {
	kv, err := store.Open(ctx, &cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	source, err := OpenMailbox(cfg)
	if err != nil {
		_ = kv.Close()
		return nil, nil, err
	}

	gen, err := llm.NewLimitedGenerator(cfg)
	if err != nil {
		_ = kv.Close()
		return nil, nil, fmt.Errorf("failed to create generator: %w", err)
	}

	svc := Assemble(cfg, Deps{Repo: orders.NewRepository(kv), Source: source, Generator: gen})
	log.Info().
		Str("store", cfg.Store.Backend).
		Str("provider", cfg.LLM.Generator.Provider).
		Str("model", gen.Model()).
		Msg("tracker: service ready")
	return svc, kv.Close, nil
}

// OpenMailbox loads the fixture mailbox, throttled and retried. An unset
// path yields an empty mailbox.
func OpenMailbox(cfg *config.Config) (mailbox.Source, error) {
	src := mailbox.NewFileSource(nil)
	if cfg.Mailbox.FixturePath != "" {
		loaded, err := mailbox.LoadFile(cfg.Mailbox.FixturePath)
		if err != nil {
			return nil, err
		}
		src = loaded
	}
	return mailbox.NewThrottled(src, cfg.Mailbox.FetchDelay, retry.FromConfig(cfg.Retry)), nil
}
