package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fabrica.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "connectionString: postgres://localhost/app\n")

	cfg, used, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, "public", cfg.Schema)
	assert.Equal(t, "./gen", cfg.OutDir.Server)
	assert.Equal(t, filepath.Join("./gen", "sdk"), cfg.OutDir.Client)
	assert.True(t, cfg.OutDir.Single)
	assert.Equal(t, 3, cfg.IncludeMethodsDepth)
	assert.Equal(t, 5, cfg.MaxIncludeDepth)
	assert.Equal(t, 50, cfg.DefaultLimit)
	assert.Equal(t, 100, cfg.MaxLimit)
	assert.Equal(t, "string", cfg.DateType)
	assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyHeader)
	assert.False(t, cfg.StrictIncludes)
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
connectionString: env:DATABASE_URL
schema: store
outDir:
  server: ./srv
  client: ./sdkdir
softDeleteColumn: deleted_at
includeMethodsDepth: 2
defaultLimit: 25
maxLimit: 50
dateType: time
strictIncludes: true
auth:
  apiKeys: [env:FABRICA_API_KEY]
  jwt:
    audience: fabrica
    services:
      - issuer: auth.example.com
        secret: env:JWT_SECRET
  pullToken: env:FABRICA_PULL_TOKEN
typeOverrides:
  books.metadata: BookMetadata
`)

	cfg, _, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DATABASE_URL", cfg.ConnectionString.EnvName())
	assert.Equal(t, "store", cfg.Schema)
	assert.Equal(t, "./srv", cfg.OutDir.Server)
	assert.Equal(t, "./sdkdir", cfg.OutDir.Client)
	assert.False(t, cfg.OutDir.Single)
	assert.Equal(t, "deleted_at", cfg.SoftDeleteColumn)
	assert.Equal(t, "time", cfg.DateType)
	assert.True(t, cfg.StrictIncludes)
	assert.True(t, cfg.Auth.Enabled())
	require.NotNil(t, cfg.Auth.JWT)
	assert.Equal(t, "fabrica", cfg.Auth.JWT.Audience)
	require.Len(t, cfg.Auth.JWT.Services, 1)
	assert.Equal(t, "JWT_SECRET", cfg.Auth.JWT.Services[0].Secret.EnvName())
	assert.Equal(t, "BookMetadata", cfg.TypeOverrides["books.metadata"])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "connectionString: postgres://localhost/app\nschema: store\n")
	t.Setenv("FABRICA_SCHEMA", "analytics")

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "analytics", cfg.Schema)
}

func TestLoadRejectsLiteralSecrets(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		option string
	}{
		{"api key", "connectionString: x\nauth:\n  apiKeys: [hunter2]\n", "auth.apiKeys[0]"},
		{"jwt secret", "connectionString: x\nauth:\n  jwt:\n    services:\n      - issuer: a\n        secret: hunter2\n", "auth.jwt.services[0].secret"},
		{"pull token", "connectionString: x\nauth:\n  pullToken: hunter2\n", "auth.pullToken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, _, err := config.Load(path)
			require.Error(t, err)
			assert.True(t, fabrica.IsConfigError(err))
			assert.NotContains(t, err.Error(), "hunter2", "the literal never reaches the error text")
			assert.Contains(t, err.Error(), tc.option)
		})
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing connection string", "schema: public\n"},
		{"bad date type", "connectionString: x\ndateType: epoch\n"},
		{"zero depth", "connectionString: x\nmaxIncludeDepth: 0\n"},
		{"default above max", "connectionString: x\ndefaultLimit: 200\nmaxLimit: 100\n"},
		{"bad type override key", "connectionString: x\ntypeOverrides:\n  metadata: Meta\n"},
		{"half outDir pair", "connectionString: x\noutDir:\n  server: ./srv\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, _, err := config.Load(path)
			require.Error(t, err)
			assert.True(t, fabrica.IsConfigError(err), "got %v", err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, fabrica.IsConfigError(err))
}

func TestOutDirYAML(t *testing.T) {
	t.Parallel()

	var scalar struct {
		OutDir config.OutDir `yaml:"outDir"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("outDir: ./gen\n"), &scalar))
	assert.True(t, scalar.OutDir.Single)
	assert.Equal(t, "./gen", scalar.OutDir.Server)

	var pair struct {
		OutDir config.OutDir `yaml:"outDir"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("outDir:\n  server: ./a\n  client: ./b\n"), &pair))
	assert.False(t, pair.OutDir.Single)
	assert.Equal(t, "./a", pair.OutDir.Server)
	assert.Equal(t, "./b", pair.OutDir.Client)

	var bad struct {
		OutDir config.OutDir `yaml:"outDir"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("outDir: [a, b]\n"), &bad))
}

func TestSecret(t *testing.T) {
	s := config.Secret("env:MY_TOKEN")
	assert.True(t, s.IsEnv())
	assert.Equal(t, "MY_TOKEN", s.EnvName())

	t.Setenv("MY_TOKEN", "tok-123")
	v, err := s.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", v)

	lit := config.Secret("plain-value")
	assert.False(t, lit.IsEnv())
	v, err = lit.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)
	assert.Equal(t, "<redacted>", lit.String())

	_, err = config.Secret("env:NOT_SET_ANYWHERE_12345").Resolve()
	require.Error(t, err)
	assert.True(t, fabrica.IsConfigError(err))
}
