// Package cli defines the cobra command tree for porteria.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagDB     string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "porteria",
		Short:         "Residential access management backend",
		Long:          "Backend for gated communities: visitor notifications to resident devices, accept/reject tracking, gate control, and visit history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file path")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: ~/.porteria/porteria.db)")

	root.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}
