package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/compiler"
	"github.com/syssam/fabrica/schema"
)

func newInspectCmd(flags *rootFlags) *cobra.Command {
	var (
		snapshotOut string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Introspect the database and print the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			log := flags.logger()
			m, err := compiler.Introspect(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}

			if snapshotOut != "" {
				f, err := os.Create(snapshotOut)
				if err != nil {
					return fabrica.NewIntrospectionError(cfg.Schema, "snapshot", err)
				}
				defer f.Close()
				if err := schema.WriteSnapshot(f, m); err != nil {
					return fabrica.NewIntrospectionError(cfg.Schema, "snapshot", err)
				}
				log.WithField("snapshot", snapshotOut).Info("snapshot written")
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}
			return printModel(cmd, m)
		},
	}
	cmd.Flags().StringVar(&snapshotOut, "snapshot", "", "write the model snapshot to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the model as JSON")
	return cmd
}

func printModel(cmd *cobra.Command, m *schema.Model) error {
	fp, err := schema.Fingerprint(m)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "schema %s (model %s)\n\n", m.Schema, fp[:12])

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, t := range m.Tables {
		kind := "table"
		if t.Junction {
			kind = "junction"
		}
		fmt.Fprintf(w, "%s\t%s\t%d columns\tpk(%s)\t%d fks\n",
			t.Name, kind, len(t.Columns), strings.Join(t.PrimaryKey, ", "), len(t.ForeignKeys))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(m.Enums) > 0 {
		fmt.Fprintln(out)
		for _, e := range m.Enums {
			fmt.Fprintf(out, "enum %s: %s\n", e.Name, strings.Join(e.Labels, ", "))
		}
	}
	return nil
}
