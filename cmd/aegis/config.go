package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	aegis "github.com/aegis-ai/aegis-go"
	"github.com/aegis-ai/aegis-go/credential"
)

func (a *app) newConfigCmd() *cobra.Command {
	var (
		show     bool
		provider string
		key      string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure provider API keys",
		Long: `Save a provider API key to the .env file, or show which keys are configured.
Without --provider and --key the values are prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if show {
				return a.showConfig(cmd.OutOrStdout())
			}

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if provider == "" {
				if provider, err = prompt(in, out, "Provider to configure (anthropic, openai, gemini): "); err != nil {
					return err
				}
			}
			p, err := aegis.ParseProvider(provider)
			if err != nil {
				return err
			}
			if key == "" {
				if key, err = prompt(in, out, fmt.Sprintf("Enter %s API key: ", p)); err != nil {
					return err
				}
			}
			if key == "" {
				return errors.New("API key must not be empty")
			}

			store := a.dotEnv()
			if err := store.Save(p, key); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s to %s\n", credential.EnvVar(p), store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&show, "show", "s", false, "show which keys are configured")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider to configure")
	cmd.Flags().StringVarP(&key, "key", "k", "", "API key to save")
	return cmd
}

// showConfig lists where each provider's key comes from. Keys are never printed.
func (a *app) showConfig(out io.Writer) error {
	sources := []struct {
		name string
		src  aegis.CredentialSource
	}{
		{"environment", credential.Env()},
		{a.envFile, a.dotEnv()},
		{"settings file", credential.Viper(a.v)},
	}

	table := uitable.New()
	table.AddRow("PROVIDER", "API KEY", "SOURCE")
	for _, p := range aegis.Providers() {
		status, from := "[NOT SET]", "-"
		for _, s := range sources {
			if _, ok := s.src.Resolve(p); ok {
				status, from = "[SET]", s.name
				break
			}
		}
		table.AddRow(p, status, from)
	}
	fmt.Fprintln(out, table)
	return nil
}

// prompt writes label and reads one line from in.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
