package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/position"
	"github.com/tradecell/tradecell/internal/runner"
)

func newRunCmd() *cobra.Command {
	var ticksPath string
	var seedPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a tick stream through the worker pool",
		Long: `Reads a JSONL tick file and evaluates every tick through the worker
pool. With a Postgres DSN configured the decisions, trades and audit events
are durable; otherwise an in-process store is used (useful with --seed).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ticksPath == "" {
				return fmt.Errorf("--ticks is required")
			}
			d, err := buildDeps(true)
			if err != nil {
				return err
			}

			if seedPath != "" {
				if err := seedPositions(d, seedPath); err != nil {
					return err
				}
			}

			if addr := d.cfg.Metrics.ListenAddr; addr != "" {
				go func() {
					if err := d.metrics.Serve(addr); err != nil {
						log.Error().Err(err).Msg("metrics server stopped")
					}
				}()
			}

			// The result callback runs on every worker goroutine.
			var filled, rejected, cancelled, skipped atomic.Int64
			r := runner.New(d.engine, d.guard, d.calendar,
				d.cfg.Runner.Workers, d.cfg.Runner.QueueSize,
				func(res *engine.EvaluationResult, err error) {
					if err != nil || res == nil {
						return
					}
					switch res.State {
					case engine.StateFilled:
						filled.Add(1)
					case engine.StateRejected:
						rejected.Add(1)
					case engine.StateCancelled:
						cancelled.Add(1)
					default:
						skipped.Add(1)
					}
				})

			n, err := runner.ReplayFile(r, ticksPath)
			r.Close()
			if err != nil {
				return err
			}

			log.Info().
				Int("ticks", n).
				Int64("filled", filled.Load()).
				Int64("rejected", rejected.Load()).
				Int64("cancelled", cancelled.Load()).
				Int64("no_action", skipped.Load()).
				Msg("replay complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&ticksPath, "ticks", "", "JSONL tick file to replay")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file of positions to create before the replay")
	return cmd
}

// seedEntry is one position in a --seed file.
type seedEntry struct {
	ID     string  `yaml:"id"`
	Symbol string  `yaml:"symbol"`
	Cash   float64 `yaml:"cash"`
	Qty    float64 `yaml:"qty"`
	Anchor float64 `yaml:"anchor"`
}

func seedPositions(d *deps, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var entries []seedEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for _, e := range entries {
		cell := position.NewCell(e.ID, e.Symbol,
			decimal.NewFromFloat(e.Cash), decimal.NewFromFloat(e.Qty))
		cell.AnchorPrice = decimal.NewFromFloat(e.Anchor)
		cell.Config = d.cfg.CellDefaults()
		if err := cell.Validate(); err != nil {
			return fmt.Errorf("seed position %s: %w", e.ID, err)
		}
		if err := d.store.SavePosition(cmdContext(), cell); err != nil {
			return fmt.Errorf("save seed position %s: %w", e.ID, err)
		}
		log.Info().Str("position_id", e.ID).Str("symbol", e.Symbol).Msg("position seeded")
	}
	return nil
}
