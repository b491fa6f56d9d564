package compiler_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/compiler"
	"github.com/syssam/fabrica/config"
	"github.com/syssam/fabrica/schema"
)

func testModel() *schema.Model {
	return &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name: "authors",
				Columns: []schema.Column{
					{Name: "id", Type: schema.TypeUUID, DataType: "uuid", HasDefault: true, Position: 1},
					{Name: "name", Type: schema.TypeText, DataType: "text", Position: 2},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "books",
				Columns: []schema.Column{
					{Name: "id", Type: schema.TypeUUID, DataType: "uuid", HasDefault: true, Position: 1},
					{Name: "author_id", Type: schema.TypeUUID, DataType: "uuid", Position: 2},
					{Name: "title", Type: schema.TypeText, DataType: "text", Position: 3},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "books_author_id_fkey", Columns: []string{"author_id"}, RefTable: "authors", RefColumns: []string{"id"}},
				},
			},
		},
	}
}

func testConfig(out config.OutDir) *config.Config {
	return &config.Config{
		ConnectionString:    "env:DATABASE_URL",
		Schema:              "public",
		IncludeMethodsDepth: 2,
		MaxIncludeDepth:     5,
		DefaultLimit:        50,
		MaxLimit:            100,
		DateType:            "string",
		OutDir:              out,
	}
}

func writeSnapshot(t *testing.T) string {
	t.Helper()
	data, err := schema.EncodeSnapshot(testModel())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRunFromSnapshot(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	cfg := testConfig(config.OutDir{Server: "out/api", Client: "out/sdk"})
	opts := compiler.Options{
		SnapshotPath: writeSnapshot(t),
		Fs:           fs,
		Now:          func() time.Time { return time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC) },
	}

	require.NoError(t, compiler.Run(context.Background(), cfg, quietLog(), opts))

	for _, name := range []string{
		"out/api/tables.go", "out/api/routes.go", "out/api/routes_books.go",
		"out/api/manifest.go", "out/api/contract.json",
		"out/sdk/client.go", "out/sdk/books.go",
	} {
		ok, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	src, err := afero.ReadFile(fs, "out/sdk/client.go")
	require.NoError(t, err)
	assert.Contains(t, string(src), "package sdk")

	// No staging or backup directories survive the run.
	entries, err := afero.ReadDir(fs, "out")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"api", "sdk"}, names)
}

func TestRunReplacesPreviousOutput(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "gen/stale.go", []byte("package api\n"), 0o644))

	cfg := testConfig(config.OutDir{Server: "gen", Client: "gen/sdk", Single: true})
	opts := compiler.Options{SnapshotPath: writeSnapshot(t), Fs: fs}

	require.NoError(t, compiler.Run(context.Background(), cfg, quietLog(), opts))

	ok, err := afero.Exists(fs, "gen/stale.go")
	require.NoError(t, err)
	assert.False(t, ok, "previous output is replaced, not merged")

	ok, err = afero.Exists(fs, "gen/sdk/client.go")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunRejectsHardcodedSecret(t *testing.T) {
	t.Parallel()
	cfg := testConfig(config.OutDir{Server: "gen", Client: "gen/sdk", Single: true})
	cfg.Auth.APIKeys = []config.Secret{"hunter2-literal"}

	err := compiler.Run(context.Background(), cfg, quietLog(), compiler.Options{
		SnapshotPath: writeSnapshot(t),
		Fs:           afero.NewMemMapFs(),
	})
	require.Error(t, err)
	assert.True(t, fabrica.IsConfigError(err))
	assert.Contains(t, err.Error(), "env:NAME")
	assert.NotContains(t, err.Error(), "hunter2", "secret literals never appear in error text")
}

func TestRunReportsSnapshotErrors(t *testing.T) {
	t.Parallel()
	cfg := testConfig(config.OutDir{Server: "gen", Client: "gen/sdk", Single: true})

	err := compiler.Run(context.Background(), cfg, quietLog(), compiler.Options{
		SnapshotPath: filepath.Join(t.TempDir(), "missing.bin"),
		Fs:           afero.NewMemMapFs(),
	})
	require.Error(t, err)
	assert.True(t, fabrica.IsIntrospectionError(err))
	assert.True(t, strings.Contains(err.Error(), "snapshot"))
}
