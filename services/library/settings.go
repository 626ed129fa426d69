package library

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// SettingsFile is the per-library override file, one KEY=value per line.
// Blank lines and '#' comments are ignored. Its absence means defaults-only
// operation.
const SettingsFile = ".env"

// builtinDefaults is the lowest layer of the settings lookup.
var builtinDefaults = map[string]string{
	"OLLAMA_URL":      "http://localhost:11434",
	"OLLAMA_MODEL":    "llama3.1:8b",
	"ANTHROPIC_MODEL": "claude-sonnet-4-20250514",
	"OPENAI_MODEL":    "gpt-4o",
	"GATEWAY_URL":     "http://localhost:8090",
	"USAGE_LOGGING":   "true",
	"PROVIDER_ORDER":  "ollama,anthropic,openai,gateway",
	"REQUEST_TIMEOUT": "120s",
	"PROBE_TIMEOUT":   "3s",
}

// apiKeySettings maps a provider identity to its credential key.
var apiKeySettings = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gateway":   "GATEWAY_TOKEN",
}

// Settings resolves configuration for one library: built-in defaults
// overridden by the library's settings file. Read-only after construction;
// switching libraries builds a fresh Settings rather than mutating this one.
type Settings struct {
	root      string
	overrides map[string]string
}

// LoadSettings reads the settings file under the library root. A missing
// file is not an error.
func LoadSettings(root string) (*Settings, error) {
	s := &Settings{
		root:      root,
		overrides: map[string]string{},
	}

	path := filepath.Join(root, SettingsFile)
	overrides, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	s.overrides = overrides
	return s, nil
}

// Root returns the library root directory.
func (s *Settings) Root() string {
	return s.root
}

// Get returns the override value for key if present, then the built-in
// default, then the caller's fallback.
func (s *Settings) Get(key, fallback string) string {
	if v, ok := s.overrides[key]; ok {
		return v
	}
	if v, ok := builtinDefaults[key]; ok {
		return v
	}
	return fallback
}

// GetBool interprets a settings value as a boolean, falling back on parse
// failure.
func (s *Settings) GetBool(key string, fallback bool) bool {
	switch s.Get(key, "") {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}

// GetDuration interprets a settings value as a duration, falling back on
// parse failure.
func (s *Settings) GetDuration(key string, fallback time.Duration) time.Duration {
	v := s.Get(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// APIKey maps a provider identity to its credential. The second return is
// false when no credential is configured; providers must treat that as
// "unavailable", never as an error.
func (s *Settings) APIKey(providerID string) (string, bool) {
	settingKey, ok := apiKeySettings[providerID]
	if !ok {
		return "", false
	}
	v := s.Get(settingKey, "")
	if v == "" {
		return "", false
	}
	return v, true
}
