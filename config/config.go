// Package config loads and validates the fabrica configuration with
// the usual precedence: flags > environment (FABRICA_*) > fabrica.yaml
// (walk-up discovery, stopping at the repository root) > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jellydator/validation"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/syssam/fabrica"
)

const maxWalkDepth = 25

// Config is the fully merged configuration handed to the driver and
// baked into generated servers.
type Config struct {
	ConnectionString Secret `mapstructure:"connectionString"`
	Schema           string `mapstructure:"schema"`
	OutDir           OutDir `mapstructure:"-"`

	SoftDeleteColumn    string `mapstructure:"softDeleteColumn"`
	IncludeMethodsDepth int    `mapstructure:"includeMethodsDepth"`
	MaxIncludeDepth     int    `mapstructure:"maxIncludeDepth"`
	DefaultLimit        int    `mapstructure:"defaultLimit"`
	MaxLimit            int    `mapstructure:"maxLimit"`
	DateType            string `mapstructure:"dateType"`
	StrictIncludes      bool   `mapstructure:"strictIncludes"`

	Auth Auth `mapstructure:"auth"`

	// TypeOverrides maps "table.column" to a named Go type for jsonb
	// shapes in emitted structs.
	TypeOverrides map[string]string `mapstructure:"typeOverrides"`
}

// Auth configures the generated server's request guards.
type Auth struct {
	APIKeys      []Secret `mapstructure:"apiKeys"`
	APIKeyHeader string   `mapstructure:"apiKeyHeader"`
	JWT          *JWT     `mapstructure:"jwt"`
	PullToken    Secret   `mapstructure:"pullToken"`
}

// JWT configures bearer-token verification.
type JWT struct {
	Audience string       `mapstructure:"audience"`
	Services []JWTService `mapstructure:"services"`
}

// JWTService is one accepted token issuer.
type JWTService struct {
	Issuer string `mapstructure:"issuer"`
	Secret Secret `mapstructure:"secret"`
}

// Enabled reports whether any /v1 guard is configured.
func (a Auth) Enabled() bool {
	return len(a.APIKeys) > 0 || (a.JWT != nil && len(a.JWT.Services) > 0)
}

// OutDir is the emission target: a single root (client under sdk/) or
// an explicit server/client pair.
type OutDir struct {
	Server string
	Client string

	// Single records that the config used the scalar form.
	Single bool
}

// UnmarshalYAML accepts the scalar form ("./gen") or the pair form
// ({server: ./srv, client: ./sdk}).
func (o *OutDir) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var dir string
		if err := n.Decode(&dir); err != nil {
			return err
		}
		*o = single(dir)
		return nil
	case yaml.MappingNode:
		var pair struct {
			Server string `yaml:"server"`
			Client string `yaml:"client"`
		}
		if err := n.Decode(&pair); err != nil {
			return err
		}
		if pair.Server == "" || pair.Client == "" {
			return fabrica.NewConfigError("outDir", nil, "pair form requires both server and client")
		}
		*o = OutDir{Server: pair.Server, Client: pair.Client}
		return nil
	default:
		return fabrica.NewConfigError("outDir", nil, "must be a path or a {server, client} pair")
	}
}

func single(dir string) OutDir {
	return OutDir{Server: dir, Client: filepath.Join(dir, "sdk"), Single: true}
}

// parseOutDir normalizes the viper value, which may come from the
// file (string or map) or from FABRICA_OUTDIR (always a string).
func parseOutDir(v any) (OutDir, error) {
	switch vv := v.(type) {
	case nil:
		return single("./gen"), nil
	case string:
		if vv == "" {
			return single("./gen"), nil
		}
		return single(vv), nil
	case map[string]any:
		server, _ := vv["server"].(string)
		client, _ := vv["client"].(string)
		if server == "" || client == "" {
			return OutDir{}, fabrica.NewConfigError("outDir", v, "pair form requires both server and client")
		}
		return OutDir{Server: server, Client: client}, nil
	default:
		return OutDir{}, fabrica.NewConfigError("outDir", v, "must be a path or a {server, client} pair")
	}
}

// Load merges configuration from the explicit path (or discovered
// fabrica.yaml), FABRICA_* environment variables and defaults, then
// validates. The returned path names the file used, empty when none.
func Load(explicitPath string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FABRICA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, path, fabrica.NewConfigError("config", path, err.Error())
		}
		var file map[string]any
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, path, fabrica.NewConfigError("config", path, "invalid yaml: "+err.Error())
		}
		if err := v.MergeConfigMap(file); err != nil {
			return nil, path, fabrica.NewConfigError("config", path, err.Error())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, fabrica.NewConfigError("config", path, err.Error())
	}
	if cfg.OutDir, err = parseOutDir(v.Get("outDir")); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema", "public")
	v.SetDefault("includeMethodsDepth", 3)
	v.SetDefault("maxIncludeDepth", 5)
	v.SetDefault("defaultLimit", 50)
	v.SetDefault("maxLimit", 100)
	v.SetDefault("dateType", "string")
	v.SetDefault("auth.apiKeyHeader", "X-API-Key")
	v.SetDefault("strictIncludes", false)
}

// findConfigFile resolves the config path: the explicit one when
// given, otherwise fabrica.yaml/yml walking up from the working
// directory until the repository root.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fabrica.NewConfigError("config", explicitPath, "config file not found")
		}
		return explicitPath, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"fabrica.yaml", "fabrica.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// Validate checks structural rules and rejects hardcoded secrets.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.ConnectionString, validation.Required),
		validation.Field(&c.Schema, validation.Required),
		validation.Field(&c.IncludeMethodsDepth, validation.Min(1), validation.Max(10)),
		validation.Field(&c.MaxIncludeDepth, validation.Min(1), validation.Max(10)),
		validation.Field(&c.DefaultLimit, validation.Min(1)),
		validation.Field(&c.MaxLimit, validation.Min(1)),
		validation.Field(&c.DateType, validation.In("string", "time")),
	)
	if err != nil {
		return fabrica.NewConfigError("config", nil, err.Error())
	}
	if c.DefaultLimit > c.MaxLimit {
		return fabrica.NewConfigError("defaultLimit", c.DefaultLimit, "must not exceed maxLimit")
	}
	for key := range c.TypeOverrides {
		if !strings.Contains(key, ".") {
			return fabrica.NewConfigError("typeOverrides", key, `keys take the form "table.column"`)
		}
	}
	return c.checkSecrets()
}

// checkSecrets enforces the env:NAME form on credential fields. The
// connection string is exempt: a DSN is configuration, not a
// credential at rest, though env: is honored there too.
func (c *Config) checkSecrets() error {
	for i, k := range c.Auth.APIKeys {
		if !k.IsEnv() {
			return fabrica.NewConfigError(fmt.Sprintf("auth.apiKeys[%d]", i), "<redacted>", "secrets must use the env:NAME form")
		}
	}
	if c.Auth.JWT != nil {
		for i, svc := range c.Auth.JWT.Services {
			if !svc.Secret.IsEnv() {
				return fabrica.NewConfigError(fmt.Sprintf("auth.jwt.services[%d].secret", i), "<redacted>", "secrets must use the env:NAME form")
			}
		}
	}
	if c.Auth.PullToken != "" && !c.Auth.PullToken.IsEnv() {
		return fabrica.NewConfigError("auth.pullToken", "<redacted>", "secrets must use the env:NAME form")
	}
	return nil
}
