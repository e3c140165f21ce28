package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newDividendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dividend",
		Short: "Drive the dividend lifecycle for a position",
	}
	cmd.AddCommand(newDividendAnnounceCmd())
	cmd.AddCommand(newDividendExCmd())
	cmd.AddCommand(newDividendPayCmd())
	return cmd
}

func newDividendAnnounceCmd() *cobra.Command {
	var positionID, dpsStr, exStr, payStr, sharesStr string

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Declare a dividend per share with ex and pay dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if positionID == "" || dpsStr == "" || exStr == "" || payStr == "" {
				return fmt.Errorf("--position, --dps, --ex-date and --pay-date are required")
			}
			dps, err := decimal.NewFromString(dpsStr)
			if err != nil {
				return fmt.Errorf("parse dps %q: %w", dpsStr, err)
			}
			exDate, err := time.Parse(dateLayout, exStr)
			if err != nil {
				return fmt.Errorf("parse ex-date %q: %w", exStr, err)
			}
			payDate, err := time.Parse(dateLayout, payStr)
			if err != nil {
				return fmt.Errorf("parse pay-date %q: %w", payStr, err)
			}
			shares := decimal.Zero
			if sharesStr != "" {
				shares, err = decimal.NewFromString(sharesStr)
				if err != nil {
					return fmt.Errorf("parse shares %q: %w", sharesStr, err)
				}
			}

			d, err := buildDeps(false)
			if err != nil {
				return err
			}
			res, err := d.adjuster.Announce(cmdContext(), positionID, dps, exDate, payDate, shares)
			if err != nil {
				return err
			}
			log.Info().
				Str("receivable_id", res.Receivable.ID).
				Str("gross", res.Receivable.Gross.StringFixed(2)).
				Str("net", res.Receivable.Net.StringFixed(2)).
				Msg("receivable recorded")
			return nil
		},
	}

	cmd.Flags().StringVar(&positionID, "position", "", "position ID")
	cmd.Flags().StringVar(&dpsStr, "dps", "", "dividend per share")
	cmd.Flags().StringVar(&exStr, "ex-date", "", "ex-dividend date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&payStr, "pay-date", "", "payment date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sharesStr, "shares", "", "shares at record date (default: current position qty)")
	return cmd
}

func newDividendExCmd() *cobra.Command {
	var positionID string

	cmd := &cobra.Command{
		Use:   "ex",
		Short: "Apply the ex-date transition: shift the anchor, mark the receivable effective",
		RunE: func(cmd *cobra.Command, args []string) error {
			if positionID == "" {
				return fmt.Errorf("--position is required")
			}
			d, err := buildDeps(false)
			if err != nil {
				return err
			}
			res, err := d.adjuster.ApplyExDate(cmdContext(), positionID)
			if err != nil {
				return err
			}
			log.Info().
				Str("receivable_id", res.Receivable.ID).
				Str("state", string(res.Receivable.State)).
				Msg("ex-date applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&positionID, "position", "", "position ID")
	return cmd
}

func newDividendPayCmd() *cobra.Command {
	var positionID string

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Apply the pay-date transition: credit net cash, clear the receivable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if positionID == "" {
				return fmt.Errorf("--position is required")
			}
			d, err := buildDeps(false)
			if err != nil {
				return err
			}
			res, err := d.adjuster.ApplyPayDate(cmdContext(), positionID)
			if err != nil {
				return err
			}
			log.Info().
				Str("receivable_id", res.Receivable.ID).
				Str("net", res.Receivable.Net.StringFixed(2)).
				Msg("pay-date applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&positionID, "position", "", "position ID")
	return cmd
}
