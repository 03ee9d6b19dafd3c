package aegis

import (
	"fmt"
	"net/url"
	"time"
)

// Default values applied when a setting is not configured.
const (
	DefaultTimeout = 60 * time.Second

	DefaultAnthropicModel     = "claude-3-sonnet-20240229"
	DefaultAnthropicMaxTokens = 4096
	DefaultAnthropicVersion   = "2023-06-01"
	DefaultAnthropicBaseURL   = "https://api.anthropic.com"
	DefaultOpenAIModel        = "gpt-4-turbo-preview"
	DefaultOpenAIMaxTokens    = 2048
	DefaultOpenAITemperature  = 0.7
	DefaultOpenAIBaseURL      = "https://api.openai.com"
	DefaultGeminiModel        = "gemini-1.5-flash"
	DefaultGeminiMaxTokens    = 8192
	DefaultGeminiBaseURL      = "https://generativelanguage.googleapis.com"
)

// ProviderSettings holds the tunables for one provider.
// Zero values are replaced by the provider defaults.
type ProviderSettings struct {
	// APIKey is the credential used when no other credential source is configured
	APIKey Credentials
	// Model identifier sent to the provider
	Model string
	// BaseURL overrides the provider endpoint (e.g. a proxy or compatible server)
	BaseURL string
	// MaxTokens limits the response length
	MaxTokens int
	// Temperature controls randomness (0.0-2.0)
	Temperature *float64
	// APIVersion is sent as the anthropic-version header
	APIVersion string
}

func defaultSettings(p Provider) ProviderSettings {
	switch p {
	case Anthropic:
		return ProviderSettings{
			Model:      DefaultAnthropicModel,
			BaseURL:    DefaultAnthropicBaseURL,
			MaxTokens:  DefaultAnthropicMaxTokens,
			APIVersion: DefaultAnthropicVersion,
		}
	case OpenAI:
		temperature := DefaultOpenAITemperature
		return ProviderSettings{
			Model:       DefaultOpenAIModel,
			BaseURL:     DefaultOpenAIBaseURL,
			MaxTokens:   DefaultOpenAIMaxTokens,
			Temperature: &temperature,
		}
	case Gemini:
		return ProviderSettings{
			Model:     DefaultGeminiModel,
			BaseURL:   DefaultGeminiBaseURL,
			MaxTokens: DefaultGeminiMaxTokens,
		}
	default:
		return ProviderSettings{}
	}
}

// merge fills unset fields of s from d.
func (s ProviderSettings) merge(d ProviderSettings) ProviderSettings {
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.BaseURL == "" {
		s.BaseURL = d.BaseURL
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = d.MaxTokens
	}
	if s.Temperature == nil && d.Temperature != nil {
		t := *d.Temperature
		s.Temperature = &t
	}
	if s.APIVersion == "" {
		s.APIVersion = d.APIVersion
	}
	return s
}

// Config holds credentials and per-provider tunables.
// Use NewConfig to create one, then the With* methods to customize it.
// A dispatcher takes a private copy at construction, so changing a Config
// afterwards does not affect dispatchers already built from it.
type Config struct {
	// Timeout for a whole HTTP exchange, handed to the default executor
	Timeout time.Duration
	// Providers maps each provider to its settings
	Providers map[Provider]ProviderSettings
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		Timeout:   DefaultTimeout,
		Providers: make(map[Provider]ProviderSettings),
	}
}

func (c *Config) update(p Provider, fn func(*ProviderSettings)) *Config {
	if c.Providers == nil {
		c.Providers = make(map[Provider]ProviderSettings)
	}
	s := c.Providers[p]
	fn(&s)
	c.Providers[p] = s
	return c
}

// WithAPIKey sets the key for p. An empty key clears it.
func (c *Config) WithAPIKey(p Provider, key string) *Config {
	return c.update(p, func(s *ProviderSettings) { s.APIKey = Credentials(key) })
}

// WithAnthropic sets the Anthropic API key
func (c *Config) WithAnthropic(key string) *Config {
	return c.WithAPIKey(Anthropic, key)
}

// WithOpenAI sets the OpenAI API key
func (c *Config) WithOpenAI(key string) *Config {
	return c.WithAPIKey(OpenAI, key)
}

// WithGemini sets the Gemini API key
func (c *Config) WithGemini(key string) *Config {
	return c.WithAPIKey(Gemini, key)
}

// WithModel sets the model for p
func (c *Config) WithModel(p Provider, model string) *Config {
	return c.update(p, func(s *ProviderSettings) { s.Model = model })
}

// WithBaseURL sets a custom endpoint for p
func (c *Config) WithBaseURL(p Provider, baseURL string) *Config {
	return c.update(p, func(s *ProviderSettings) { s.BaseURL = baseURL })
}

// WithMaxTokens sets the maximum number of tokens for p
func (c *Config) WithMaxTokens(p Provider, maxTokens int) *Config {
	return c.update(p, func(s *ProviderSettings) { s.MaxTokens = maxTokens })
}

// WithTemperature sets the temperature for p
func (c *Config) WithTemperature(p Provider, temperature float64) *Config {
	return c.update(p, func(s *ProviderSettings) { s.Temperature = &temperature })
}

// WithTimeout sets the timeout duration
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// IsEmpty reports whether no API key is configured.
func (c *Config) IsEmpty() bool {
	for _, s := range c.Providers {
		if s.APIKey != "" {
			return false
		}
	}
	return true
}

// Settings returns the effective settings for p, with defaults applied.
func (c *Config) Settings(p Provider) ProviderSettings {
	return c.Providers[p].merge(defaultSettings(p))
}

// Validate validates a Config
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return newErrorf(KindInvalidRequest, 0, "invalid timeout: %v", c.Timeout)
	}
	for p, s := range c.Providers {
		if !p.Valid() {
			return newErrorf(KindInvalidRequest, 0, "unknown provider %d", int(p))
		}
		if s.MaxTokens < 0 {
			return newErrorf(KindInvalidRequest, p, "invalid max_tokens: %d", s.MaxTokens)
		}
		if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
			return newErrorf(KindInvalidRequest, p, "invalid temperature: %v", *s.Temperature)
		}
		if s.BaseURL != "" {
			u, err := url.Parse(s.BaseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return newErrorf(KindInvalidRequest, p, "invalid base URL: %q", s.BaseURL)
			}
		}
	}
	return nil
}

// clone returns a deep copy of the config.
func (c *Config) clone() *Config {
	out := &Config{
		Timeout:   c.Timeout,
		Providers: make(map[Provider]ProviderSettings, len(c.Providers)),
	}
	for p, s := range c.Providers {
		if s.Temperature != nil {
			t := *s.Temperature
			s.Temperature = &t
		}
		out.Providers[p] = s
	}
	return out
}

// String renders the config without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Timeout: %v, Providers: %d}", c.Timeout, len(c.Providers))
}
