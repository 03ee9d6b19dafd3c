package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	aegis "github.com/aegis-ai/aegis-go"
)

// DotEnvFile reads and writes provider keys in a .env file. The file is read on
// every Resolve, so keys saved by another process are picked up.
type DotEnvFile struct {
	path string
}

// DotEnv returns a source backed by the .env file at path. A missing file
// resolves nothing.
func DotEnv(path string) *DotEnvFile {
	return &DotEnvFile{path: path}
}

// Path returns the file location.
func (d *DotEnvFile) Path() string {
	return d.path
}

// Resolve implements aegis.CredentialSource.
func (d *DotEnvFile) Resolve(p aegis.Provider) (aegis.Credentials, bool) {
	vars, err := d.read()
	if err != nil {
		return "", false
	}
	for _, name := range envNames[p] {
		if key := strings.TrimSpace(vars[name]); key != "" {
			return aegis.Credentials(key), true
		}
	}
	return "", false
}

// Save stores key as the primary variable for p. The provider's line is
// rewritten in place and its alias lines are dropped; comments and every other
// line are kept. An empty key removes the provider's variables. A new file is
// created readable by the owner only.
func (d *DotEnvFile) Save(p aegis.Provider, key string) error {
	if !p.Valid() {
		return fmt.Errorf("credential: unknown provider %v", p)
	}
	data, err := os.ReadFile(d.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var entry string
	if key = strings.TrimSpace(key); key != "" {
		entry, err = godotenv.Marshal(map[string]string{EnvVar(p): key})
		if err != nil {
			return fmt.Errorf("credential: encode %s: %w", EnvVar(p), err)
		}
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}
	out := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if !slices.Contains(envNames[p], lineKey(line)) {
			out = append(out, line)
			continue
		}
		if entry != "" {
			out = append(out, entry)
			entry = ""
		}
	}
	if entry != "" {
		out = append(out, entry)
	}

	content := strings.Join(out, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(d.path, []byte(content), 0o600)
}

// lineKey returns the variable name assigned on a .env line, or "" for
// comments and blank lines.
func lineKey(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	line = strings.TrimPrefix(line, "export ")
	name, _, ok := strings.Cut(line, "=")
	if !ok {
		name, _, ok = strings.Cut(line, ":")
		if !ok {
			return ""
		}
	}
	return strings.TrimSpace(name)
}

func (d *DotEnvFile) read() (map[string]string, error) {
	return godotenv.Read(d.path)
}
