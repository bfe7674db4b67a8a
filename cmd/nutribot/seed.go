package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/nutribot/internal/catalog"
)

func newSeedCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [catalog.yaml]",
		Short: "Load catalog items from a YAML file, or the built-in catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var seed *catalog.Seed
			if len(args) == 1 {
				seed, err = catalog.LoadSeedFile(args[0])
			} else {
				seed, err = catalog.DefaultSeed()
			}
			if err != nil {
				return err
			}

			n, err := seed.Apply(ctx, a.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d catalog items\n", n)
			return nil
		},
	}
}
