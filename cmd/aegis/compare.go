package main

import (
	"errors"
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	aegis "github.com/aegis-ai/aegis-go"
)

func (a *app) newCompareCmd() *cobra.Command {
	var (
		content   string
		providers []string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Send the same message to several providers and compare the replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.newClient(a.config())
			if err != nil {
				return err
			}

			targets := client.Providers()
			if len(providers) > 0 {
				targets = make([]aegis.Provider, 0, len(providers))
				for _, name := range providers {
					p, err := aegis.ParseProvider(name)
					if err != nil {
						return err
					}
					targets = append(targets, p)
				}
			}
			if len(targets) == 0 {
				return errors.New("no provider has an API key, run 'aegis config' first")
			}

			conv := []aegis.Message{aegis.UserMessage(content)}
			results := aegis.SendParallel(cmd.Context(), client, targets, conv)

			table := uitable.New()
			table.MaxColWidth = 100
			table.Wrap = true
			table.AddRow("PROVIDER", "RESPONSE")

			failed := 0
			for _, r := range results {
				if r.Error != nil {
					failed++
					table.AddRow(r.Provider, "Error: "+describe(r.Error))
					continue
				}
				table.AddRow(r.Provider, r.Message.Content)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)

			if failed == len(results) {
				return errors.New("all providers failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&content, "content", "c", "", "message to send")
	cmd.Flags().StringSliceVar(&providers, "providers", nil, "providers to compare (default: all configured)")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}
