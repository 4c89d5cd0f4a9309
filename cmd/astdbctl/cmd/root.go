// Package cmd provides astdbctl's two subcommands: parse and query. It
// is a thin demonstration harness over the library packages, not a full
// workspace CLI (no init, doctor, daemon, sessions, compact).
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/astdb-dev/astdb/pkg/version"
)

var rootFlagRoot string

// NewRootCmd creates the root command for astdbctl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "astdbctl",
		Short:   "Exercise the astdb core engine: parse a tree, then query it",
		Version: version.Version,
	}
	cmd.SetVersionTemplate("astdbctl version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&rootFlagRoot, "root", ".", "project root holding (or to hold) .astdb/")

	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newQueryCmd())

	return cmd
}

// Execute runs astdbctl.
func Execute() error {
	return NewRootCmd().Execute()
}
