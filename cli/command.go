package cli

import (
	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/cli/server"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lattice [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Lattice is a distributed database cluster.

This binary runs the cluster clock node, which tracks the cluster's causal
time as a vector of logical timestamps and gossips it with cluster members
and clients.

Start a node with:

  $ lattice server
`,
	}

	cmd.AddCommand(server.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
