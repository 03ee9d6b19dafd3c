package main

import (
	"fmt"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	aegis "github.com/aegis-ai/aegis-go"
)

func (a *app) newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers, their settings and whether a key is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.newClient(a.config())
			if err != nil {
				return err
			}

			configured := make(map[aegis.Provider]bool)
			for _, p := range client.Providers() {
				configured[p] = true
			}

			table := uitable.New()
			table.AddRow("NAME", "CONFIGURED", "MODEL", "MAX TOKENS", "STREAMING", "BASE URL")
			for _, p := range aegis.Providers() {
				caps, err := client.Capabilities(p)
				if err != nil {
					return err
				}
				table.AddRow(
					p,
					yesNo(configured[p]),
					caps.DefaultModel,
					strconv.Itoa(caps.MaxTokens),
					yesNo(caps.Streaming),
					client.Settings(p).BaseURL,
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
