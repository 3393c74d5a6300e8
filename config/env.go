package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix marks environment variables that override config keys.
// KLINGDROP_EXPLORER_URL maps to explorer.url.
const EnvPrefix = "KLINGDROP_"

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// EnvValues returns config key/values taken from KLINGDROP_* variables.
// KLINGDROP_TEST_* variables are reserved for tests and skipped.
func EnvValues(environ []string) map[string]string {
	values := make(map[string]string)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		rest := strings.TrimPrefix(name, EnvPrefix)
		if rest == "" || strings.HasPrefix(rest, "TEST_") {
			continue
		}
		values[envKey(rest)] = value
	}
	return values
}

// ApplyEnv applies KLINGDROP_* variables from the process environment.
func ApplyEnv(cfg *Config) error {
	return ApplyFileConfig(cfg, EnvValues(os.Environ()))
}

func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", ".")
}
