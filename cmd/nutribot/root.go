package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "nutribot",
		Short:         "nutribot is a conversational calorie and exercise tracker",
		Long:          "nutribot answers pt-BR chat messages, logging meals and workouts after confirmation and reporting daily and weekly progress.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "./config.yaml", "Path to configuration file")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSeedCmd(opts),
		newRepairCmd(opts),
	)
	return cmd
}
