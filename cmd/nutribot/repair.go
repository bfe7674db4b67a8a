package main

import (
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/edgard/nutribot/internal/tracking"
)

func newRepairCmd(root *rootOptions) *cobra.Command {
	var identity, from, to string
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Recompute daily summaries from confirmed meal and exercise logs",
		Long: "Without --identity, every user with activity on --from is repaired. " +
			"With --identity, the summaries of that user from --from to --to are rebuilt.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if from == "" {
				from = tracking.LocalDate(time.Now(), a.loc)
			}
			if to == "" {
				to = from
			}
			days, err := tracking.DaysBetween(from, to)
			if err != nil {
				return err
			}
			if days < 0 {
				return goerr.New("--to is before --from", goerr.V("from", from), goerr.V("to", to))
			}

			if identity == "" {
				if to != from {
					return goerr.New("--to requires --identity")
				}
				n, err := a.tracker.RepairDate(ctx, from)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d summaries for %s\n", n, from)
				return nil
			}

			n, err := a.tracker.RecomputeRange(ctx, identity, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recomputed %d days for %s\n", n, identity)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Only repair this user, e.g. tg:12345")
	cmd.Flags().StringVar(&from, "from", "", "First local date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&to, "to", "", "Last local date (YYYY-MM-DD), defaults to --from")
	return cmd
}
