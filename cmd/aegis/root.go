package main

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	aegis "github.com/aegis-ai/aegis-go"
	"github.com/aegis-ai/aegis-go/credential"
)

// app carries the state shared by all subcommands.
type app struct {
	envFile    string
	configFile string
	verbose    bool

	v      *viper.Viper
	logger *slog.Logger
	opts   []aegis.Option
}

func newRootCmd(opts ...aegis.Option) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "aegis",
		Short:         "Chat with LLM providers through one interface",
		Version:       aegis.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "file holding provider API keys")
	flags.StringVar(&a.configFile, "config", "", "settings file (default ./aegis.yaml if present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		a.newConfigCmd(),
		a.newChatCmd(),
		a.newCompareCmd(),
		a.newProvidersCmd(),
		a.newServeCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	level := slog.LevelError
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	v, err := loadViper(a.configFile)
	if err != nil {
		return err
	}
	a.v = v
	return nil
}

// loadViper reads the optional settings file. Every key can also be set with an
// AEGIS_ variable, for example AEGIS_OPENAI_MODEL for openai.model.
func loadViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aegis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}
	return v, nil
}

// config builds the dispatcher settings from the settings store.
func (a *app) config() *aegis.Config {
	cfg := aegis.NewConfig()
	if a.v.IsSet("timeout") {
		cfg.WithTimeout(a.v.GetDuration("timeout"))
	}
	for _, p := range aegis.Providers() {
		prefix := p.String() + "."
		if model := a.v.GetString(prefix + "model"); model != "" {
			cfg.WithModel(p, model)
		}
		if baseURL := a.v.GetString(prefix + "base_url"); baseURL != "" {
			cfg.WithBaseURL(p, baseURL)
		}
		if maxTokens := a.v.GetInt(prefix + "max_tokens"); maxTokens != 0 {
			cfg.WithMaxTokens(p, maxTokens)
		}
		if a.v.IsSet(prefix + "temperature") {
			cfg.WithTemperature(p, a.v.GetFloat64(prefix+"temperature"))
		}
	}
	return cfg
}

func (a *app) dotEnv() *credential.DotEnvFile {
	return credential.DotEnv(a.envFile)
}

// credentials resolves keys from the environment, then the .env file, then the
// settings store.
func (a *app) credentials() aegis.CredentialSource {
	return credential.Chain(credential.Env(), a.dotEnv(), credential.Viper(a.v))
}

func (a *app) newClient(cfg *aegis.Config, extra ...aegis.Option) (*aegis.Aegis, error) {
	opts := []aegis.Option{
		aegis.WithCredentialSource(a.credentials()),
		aegis.WithLogger(a.logger),
	}
	opts = append(opts, extra...)
	opts = append(opts, a.opts...)
	return aegis.New(cfg, opts...)
}
