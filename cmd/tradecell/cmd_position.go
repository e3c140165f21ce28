package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tradecell/tradecell/internal/position"
)

func newPositionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Create and inspect positions",
	}
	cmd.AddCommand(newPositionCreateCmd())
	cmd.AddCommand(newPositionShowCmd())
	return cmd
}

func newPositionCreateCmd() *cobra.Command {
	var id, symbol string
	var cashStr, qtyStr, anchorStr string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a position with configured cell defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || symbol == "" {
				return fmt.Errorf("--id and --symbol are required")
			}
			cash, err := decimal.NewFromString(cashStr)
			if err != nil {
				return fmt.Errorf("parse cash %q: %w", cashStr, err)
			}
			qty, err := decimal.NewFromString(qtyStr)
			if err != nil {
				return fmt.Errorf("parse qty %q: %w", qtyStr, err)
			}

			d, err := buildDeps(false)
			if err != nil {
				return err
			}

			cell := position.NewCell(id, symbol, cash, qty)
			cell.Config = d.cfg.CellDefaults()
			if anchorStr != "" {
				anchor, err := decimal.NewFromString(anchorStr)
				if err != nil {
					return fmt.Errorf("parse anchor %q: %w", anchorStr, err)
				}
				cell.AnchorPrice = anchor
			}
			if err := cell.Validate(); err != nil {
				return err
			}
			if err := d.store.SavePosition(cmdContext(), cell); err != nil {
				return err
			}
			log.Info().Str("position_id", id).Str("symbol", symbol).
				Str("cash", cash.StringFixed(2)).Str("qty", qty.String()).
				Msg("position created")
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "position ID")
	cmd.Flags().StringVar(&symbol, "symbol", "", "asset symbol")
	cmd.Flags().StringVar(&cashStr, "cash", "0", "initial settled cash")
	cmd.Flags().StringVar(&qtyStr, "qty", "0", "initial share quantity")
	cmd.Flags().StringVar(&anchorStr, "anchor", "", "initial anchor price (unset until first fill when omitted)")
	return cmd
}

func newPositionShowCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a position and its open receivable, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			d, err := buildDeps(false)
			if err != nil {
				return err
			}
			cell, err := d.store.GetPosition(cmdContext(), id)
			if err != nil {
				return err
			}
			receivable, err := d.store.GetOpenReceivable(cmdContext(), id)
			if err != nil {
				return err
			}

			out := struct {
				Position   *position.Cell               `json:"position"`
				Receivable *position.DividendReceivable `json:"open_receivable,omitempty"`
			}{Position: cell, Receivable: receivable}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "position ID")
	return cmd
}
