package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/syssam/fabrica"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fabrica version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fabrica %s %s/%s\n", fabrica.Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
