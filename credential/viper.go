package credential

import (
	"strings"

	"github.com/spf13/viper"

	aegis "github.com/aegis-ai/aegis-go"
)

type viperSource struct {
	v *viper.Viper
}

// Viper resolves keys from a viper store under "<provider>.api_key", for example
// anthropic.api_key. With an env prefix and key replacer configured on v the
// same keys can come from variables such as AEGIS_ANTHROPIC_API_KEY.
func Viper(v *viper.Viper) aegis.CredentialSource {
	return viperSource{v: v}
}

// ViperKey returns the configuration key holding the API key for p.
func ViperKey(p aegis.Provider) string {
	return p.String() + ".api_key"
}

func (s viperSource) Resolve(p aegis.Provider) (aegis.Credentials, bool) {
	if s.v == nil || !p.Valid() {
		return "", false
	}
	key := strings.TrimSpace(s.v.GetString(ViperKey(p)))
	return aegis.Credentials(key), key != ""
}
