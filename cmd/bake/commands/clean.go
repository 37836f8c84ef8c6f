package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/bake/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the build folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _ := cmd.Flags().GetBool("store")
			return c.app.Clean(cmd.Context(), app.CleanOptions{Store: store})
		},
	}

	cmd.Flags().Bool("store", false, "Also remove the signature store so every task runs again")

	return cmd
}
