package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/feed"
)

func newEvaluateCmd() *cobra.Command {
	var positionID string
	var priceStr string
	var atStr string
	var forceOpen bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one decision cycle for a position at a given price",
		RunE: func(cmd *cobra.Command, args []string) error {
			if positionID == "" || priceStr == "" {
				return fmt.Errorf("--position and --price are required")
			}
			price, err := decimal.NewFromString(priceStr)
			if err != nil {
				return fmt.Errorf("parse price %q: %w", priceStr, err)
			}

			d, err := buildDeps(false)
			if err != nil {
				return err
			}

			ts := time.Now()
			if atStr != "" {
				ts, err = time.Parse(time.RFC3339, atStr)
				if err != nil {
					return fmt.Errorf("parse --at %q: %w", atStr, err)
				}
			}

			tick := feed.Tick{PositionID: positionID, Price: price, Timestamp: ts}
			ok, staleReason := d.guard.Check(tick, time.Now())

			req := engine.EvalRequest{
				PositionID: positionID,
				Price:      price,
				Timestamp:  ts,
				MarketOpen: forceOpen || d.calendar.IsOpen(ts),
				Stale:      !ok,
			}
			if !ok {
				req.StaleReason = staleReason
			}

			res, err := d.engine.Evaluate(cmdContext(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&positionID, "position", "", "position ID to evaluate")
	cmd.Flags().StringVar(&priceStr, "price", "", "observed price")
	cmd.Flags().StringVar(&atStr, "at", "", "tick timestamp, RFC3339 (default now)")
	cmd.Flags().BoolVar(&forceOpen, "force-open", false, "treat the market as open regardless of the calendar")
	return cmd
}
