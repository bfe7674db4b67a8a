package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var identity string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from the terminal, one message per line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.seedDefaultCatalog(ctx); err != nil {
				return err
			}
			orch := a.orchestrator(nil)

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, "> ")
			for scanner.Scan() {
				if ctx.Err() != nil {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					fmt.Fprint(out, "> ")
					continue
				}
				fmt.Fprintln(out, orch.HandleInboundMessage(ctx, identity, line))
				fmt.Fprint(out, "> ")
			}
			fmt.Fprintln(out)
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "cli:local", "Identity the messages are attributed to")
	return cmd
}
