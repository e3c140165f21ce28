package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/calendar"
	"github.com/tradecell/tradecell/internal/config"
	"github.com/tradecell/tradecell/internal/dedupe"
	"github.com/tradecell/tradecell/internal/dividend"
	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/execution"
	"github.com/tradecell/tradecell/internal/feed"
	"github.com/tradecell/tradecell/internal/metrics"
	"github.com/tradecell/tradecell/internal/persistence"
	"github.com/tradecell/tradecell/internal/persistence/postgres"
)

// deps is the wired object graph shared by every subcommand.
type deps struct {
	cfg      *config.Config
	store    engine.Store
	engine   *engine.Engine
	adjuster *dividend.Adjuster
	guard    *feed.Guard
	calendar *calendar.Calendar
	metrics  *metrics.Registry
}

// cmdContext is the context for one-shot CLI operations. Per-statement
// timeouts are applied inside the stores.
func cmdContext() context.Context {
	return context.Background()
}

// buildDeps assembles collaborators from config: Postgres and Redis when
// configured, in-process fallbacks otherwise.
func buildDeps(withMetrics bool) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	cal, err := calendar.New(cfg.Calendar.Timezone, cfg.Calendar.Open, cfg.Calendar.Close)
	if err != nil {
		return nil, err
	}

	var store engine.Store
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.Connect(cfg.Postgres.DSN, cfg.PostgresTimeout())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		store = pg
		log.Info().Msg("using postgres store")
	} else {
		store = persistence.NewMemory()
		log.Warn().Msg("no postgres DSN configured; state is in-process only")
	}

	var idem engine.IdempotencyStore
	var counter engine.OrderCounter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		rd := dedupe.NewRedis(client, cfg.Redis.Prefix, cfg.RedisTTL())
		idem, counter = rd, rd
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis dedupe")
	} else {
		mem := dedupe.NewMemory()
		idem, counter = mem, mem
	}

	var reg *metrics.Registry
	if withMetrics {
		reg = metrics.New()
	}

	paper := execution.NewPaper(decimal.NewFromFloat(cfg.Executor.SlippagePct))
	exec := execution.NewGuarded(paper, cfg.GuardSettings())

	eng, err := engine.New(engine.Options{
		Store:       store,
		Executor:    exec,
		Idempotency: idem,
		Counter:     counter,
		Calendar:    cal,
		Metrics:     reg,
		// Buys validate against the executor's worst-case slippage.
		SlippageBufferPct: decimal.NewFromFloat(cfg.Executor.SlippagePct),
	})
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:      cfg,
		store:    store,
		engine:   eng,
		adjuster: dividend.New(store, eng.Locks(), reg),
		guard: feed.NewGuard(feed.GuardConfig{
			MaxAge:     cfg.FeedMaxAge(),
			MaxJumpPct: decimal.NewFromFloat(cfg.Feed.MaxJumpPct),
		}),
		calendar: cal,
		metrics:  reg,
	}, nil
}
