// Package credential provides aegis.CredentialSource implementations backed by
// the environment, .env files and viper configuration stores.
package credential

import (
	"os"
	"strings"

	aegis "github.com/aegis-ai/aegis-go"
)

// envNames lists the variables consulted for each provider, in priority order.
var envNames = map[aegis.Provider][]string{
	aegis.Anthropic: {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	aegis.OpenAI:    {"OPENAI_API_KEY", "CHATGPT_API_KEY"},
	aegis.Gemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// EnvVars returns the environment variables consulted for p, primary name first.
func EnvVars(p aegis.Provider) []string {
	return append([]string(nil), envNames[p]...)
}

// EnvVar returns the primary environment variable for p.
func EnvVar(p aegis.Provider) string {
	if names := envNames[p]; len(names) > 0 {
		return names[0]
	}
	return strings.ToUpper(p.String()) + "_API_KEY"
}

type envSource struct{}

// Env resolves keys from the process environment at call time.
//   - Anthropic: ANTHROPIC_API_KEY or CLAUDE_API_KEY
//   - OpenAI: OPENAI_API_KEY or CHATGPT_API_KEY
//   - Gemini: GEMINI_API_KEY or GOOGLE_API_KEY
func Env() aegis.CredentialSource {
	return envSource{}
}

func (envSource) Resolve(p aegis.Provider) (aegis.Credentials, bool) {
	for _, name := range envNames[p] {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return aegis.Credentials(key), true
		}
	}
	return "", false
}

// Static serves fixed keys. Empty keys are treated as absent.
type Static map[aegis.Provider]string

// Resolve implements aegis.CredentialSource.
func (s Static) Resolve(p aegis.Provider) (aegis.Credentials, bool) {
	key := s[p]
	return aegis.Credentials(key), key != ""
}

type chain []aegis.CredentialSource

// Chain returns a source that tries each source in order and returns the first
// key found. Nil sources are skipped.
func Chain(sources ...aegis.CredentialSource) aegis.CredentialSource {
	c := make(chain, 0, len(sources))
	for _, src := range sources {
		if src != nil {
			c = append(c, src)
		}
	}
	return c
}

func (c chain) Resolve(p aegis.Provider) (aegis.Credentials, bool) {
	for _, src := range c {
		if key, ok := src.Resolve(p); ok && key != "" {
			return key, true
		}
	}
	return "", false
}
