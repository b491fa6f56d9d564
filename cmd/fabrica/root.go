package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/syssam/fabrica/config"
)

type rootFlags struct {
	configPath string
	verbosity  int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "fabrica",
		Short:         "Generate a typed HTTP API from a PostgreSQL schema",
		Long: `fabrica introspects a PostgreSQL database and emits a chi-based API
server with validation, relation includes and vector search, plus a
dependency-free client SDK that servers can also hand out over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: fabrica.yaml, discovered upward)")
	root.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")

	root.AddCommand(
		newGenerateCmd(flags),
		newInspectCmd(flags),
		newPullCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

func (f *rootFlags) logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	switch {
	case f.verbosity >= 2:
		log.SetLevel(logrus.TraceLevel)
	case f.verbosity == 1:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func (f *rootFlags) load() (*config.Config, string, error) {
	return config.Load(f.configPath)
}
