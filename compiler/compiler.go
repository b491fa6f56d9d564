// Package compiler drives generation end to end: configuration,
// introspection, classification, emission to a staging directory and
// an atomic swap into place. Nothing reaches the target directory
// until every stage has succeeded.
package compiler

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/compiler/gen"
	"github.com/syssam/fabrica/config"
	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/introspect"
	"github.com/syssam/fabrica/schema"
)

// Options tune one generation run.
type Options struct {
	// SnapshotPath generates from a stored model snapshot instead of a
	// live database.
	SnapshotPath string

	// Fs is the target filesystem; defaults to the OS filesystem.
	Fs afero.Fs

	// Now supplies the recorded generation time; defaults to time.Now.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Run executes one full generation pass. Configuration errors,
// including hardcoded secrets, abort before any database connection
// is opened.
func Run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts Options) error {
	opts.defaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m, err := loadModel(ctx, cfg, log, opts.SnapshotPath)
	if err != nil {
		return err
	}
	g, err := graph.Build(m, nil)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"tables": len(m.Tables),
		"enums":  len(m.Enums),
	}).Info("model classified")

	out, err := gen.New(m, g, cfg, fabrica.Version, opts.Now()).Emit()
	if err != nil {
		return err
	}
	if err := place(ctx, opts.Fs, cfg.OutDir, out); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"server": cfg.OutDir.Server,
		"client": cfg.OutDir.Client,
		"files":  len(out.Server) + len(out.Client),
	}).Info("generation complete")
	return nil
}

// Introspect opens the configured database and reads the model.
func Introspect(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*schema.Model, error) {
	dsn, err := cfg.ConnectionString.Resolve()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fabrica.NewIntrospectionError(cfg.Schema, "connect", err)
	}
	defer db.Close()
	if err := introspect.Ping(ctx, db, dsn); err != nil {
		return nil, err
	}
	return introspect.New(db, introspect.WithLogger(log)).Inspect(ctx, cfg.Schema)
}

func loadModel(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, snapshotPath string) (*schema.Model, error) {
	if snapshotPath != "" {
		m, err := schema.LoadSnapshotFile(snapshotPath)
		if err != nil {
			return nil, fabrica.NewIntrospectionError(cfg.Schema, "snapshot", err)
		}
		m.Sort()
		log.WithField("snapshot", snapshotPath).Info("model loaded from snapshot")
		return m, m.Validate()
	}
	m, err := Introspect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return m, m.Validate()
}

// place writes the output to per-pid staging directories and renames
// them over the targets, so a crashed or failed run never leaves a
// partial tree behind.
func place(ctx context.Context, fs afero.Fs, out config.OutDir, files *gen.Output) error {
	w := gen.NewWriter(fs)
	if out.Single {
		staging := stagingDir(out.Server)
		defer fs.RemoveAll(staging)
		if err := w.WriteOutput(ctx, staging, staging+"/sdk", files); err != nil {
			return err
		}
		return swap(fs, staging, out.Server)
	}

	serverStaging, clientStaging := stagingDir(out.Server), stagingDir(out.Client)
	defer fs.RemoveAll(serverStaging)
	defer fs.RemoveAll(clientStaging)
	if err := w.WriteOutput(ctx, serverStaging, clientStaging, files); err != nil {
		return err
	}
	if err := swap(fs, serverStaging, out.Server); err != nil {
		return err
	}
	return swap(fs, clientStaging, out.Client)
}

func stagingDir(target string) string {
	return fmt.Sprintf("%s.tmp-%d", target, os.Getpid())
}

// swap atomically replaces target with staging, keeping the previous
// tree until the new one is in place.
func swap(fs afero.Fs, staging, target string) error {
	old := fmt.Sprintf("%s.old-%d", target, os.Getpid())
	replaced := false
	if _, err := fs.Stat(target); err == nil {
		if err := fs.Rename(target, old); err != nil {
			return fabrica.NewEmissionError("swap", target, err)
		}
		replaced = true
	}
	if err := fs.Rename(staging, target); err != nil {
		if replaced {
			_ = fs.Rename(old, target)
		}
		return fabrica.NewEmissionError("swap", target, err)
	}
	if replaced {
		_ = fs.RemoveAll(old)
	}
	return nil
}
