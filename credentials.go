package aegis

// CredentialSource resolves the API key for a provider. Implementations must be
// safe for concurrent use. See package credential for environment, .env file and
// configuration-store sources.
type CredentialSource interface {
	Resolve(p Provider) (Credentials, bool)
}

// CredentialSourceFunc adapts a function to CredentialSource.
type CredentialSourceFunc func(p Provider) (Credentials, bool)

// Resolve implements CredentialSource.
func (f CredentialSourceFunc) Resolve(p Provider) (Credentials, bool) {
	return f(p)
}

// configSource serves the keys set on a Config. It is built from the dispatcher's
// private copy, so it never changes after construction.
type configSource map[Provider]Credentials

func newConfigSource(cfg *Config) configSource {
	src := make(configSource, len(cfg.Providers))
	for p, s := range cfg.Providers {
		if s.APIKey != "" {
			src[p] = s.APIKey
		}
	}
	return src
}

func (s configSource) Resolve(p Provider) (Credentials, bool) {
	c, ok := s[p]
	return c, ok && c != ""
}
