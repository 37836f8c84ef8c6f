package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [targets...]",
		Short: "Write the build manifest of the specified targets",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := buildOptions(cmd, args)
			if len(args) == 0 && opts.Scheme == "" {
				_ = cmd.Help()
				return nil
			}
			out, _ := cmd.Flags().GetString("out")

			path, err := c.app.Plan(cmd.Context(), opts, out)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().String("out", "", "Manifest path (default: .bake/manifest.yaml in the workspace root)")
	return cmd
}
