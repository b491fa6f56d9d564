package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/compiler"
	"github.com/syssam/fabrica/config"
)

// watchDebounce coalesces the editor's write-then-rename bursts into
// one regeneration.
const watchDebounce = 250 * time.Millisecond

func newGenerateCmd(flags *rootFlags) *cobra.Command {
	var (
		watch        bool
		fromSnapshot string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Introspect the database and emit server and client code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgFile, err := flags.load()
			if err != nil {
				return err
			}
			log := flags.logger()
			if cfgFile != "" {
				log.WithField("config", cfgFile).Debug("configuration loaded")
			}
			opts := compiler.Options{SnapshotPath: fromSnapshot}
			if err := compiler.Run(cmd.Context(), cfg, log, opts); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchConfig(cmd.Context(), cfgFile, log, opts)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run generation when the config file changes")
	cmd.Flags().StringVar(&fromSnapshot, "from-snapshot", "", "generate from a model snapshot instead of a live database")
	return cmd
}

// watchConfig re-runs generation on config file changes until the
// context is canceled. Failed runs log and keep watching; the previous
// output stays in place.
func watchConfig(ctx context.Context, cfgFile string, log *logrus.Logger, opts compiler.Options) error {
	if cfgFile == "" {
		return fabrica.NewConfigError("watch", nil, "watch mode requires a config file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace the file by
	// rename, which drops a direct watch.
	if err := watcher.Add(filepath.Dir(cfgFile)); err != nil {
		return err
	}
	log.WithField("config", cfgFile).Info("watching for changes")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(cfgFile) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		case <-pending:
			pending = nil
			cfg, _, err := config.Load(cfgFile)
			if err != nil {
				log.WithError(err).Error("configuration reload failed")
				continue
			}
			if err := compiler.Run(ctx, cfg, log, opts); err != nil {
				log.WithError(err).Error("generation failed")
			}
		}
	}
}
