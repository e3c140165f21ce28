package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var positionID, sinceStr string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the audit trail for a position, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if positionID == "" {
				return fmt.Errorf("--position is required")
			}
			var since time.Time
			if sinceStr != "" {
				var err error
				since, err = time.Parse(time.RFC3339, sinceStr)
				if err != nil {
					return fmt.Errorf("parse --since %q: %w", sinceStr, err)
				}
			}

			d, err := buildDeps(false)
			if err != nil {
				return err
			}
			events, err := d.engine.ListEvents(cmdContext(), positionID, since, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&positionID, "position", "", "position ID")
	cmd.Flags().StringVar(&sinceStr, "since", "", "only events at or after this RFC3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}
