package config

import (
	"os"
	"strings"

	"github.com/syssam/fabrica"
)

// envPrefix marks a value as a deferred environment lookup. The
// emitter rewrites env: sentinels into os.Getenv calls so resolved
// values never appear in generated code.
const envPrefix = "env:"

// Secret is a config value that may be a literal or an env:NAME
// sentinel. Credential fields require the sentinel form; Validate
// enforces that.
type Secret string

// IsEnv reports whether the value uses the env:NAME sentinel.
func (s Secret) IsEnv() bool {
	return strings.HasPrefix(string(s), envPrefix) && len(s) > len(envPrefix)
}

// EnvName returns the referenced variable name, or "" for literals.
func (s Secret) EnvName() string {
	if !s.IsEnv() {
		return ""
	}
	return strings.TrimPrefix(string(s), envPrefix)
}

// Resolve returns the literal value, or the environment variable's
// value for sentinels. An unset variable is a ConfigError so a
// misconfigured deployment fails at startup, not on first use.
func (s Secret) Resolve() (string, error) {
	if !s.IsEnv() {
		return string(s), nil
	}
	name := s.EnvName()
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fabrica.NewConfigError("secret", envPrefix+name, "environment variable "+name+" is not set")
	}
	return v, nil
}

// String redacts sentinel-free values so secrets never reach logs.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	if s.IsEnv() {
		return string(s)
	}
	return "<redacted>"
}
