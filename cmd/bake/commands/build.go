package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [targets...]",
		Short: "Build the specified targets",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := buildOptions(cmd, args)
			opts.Manifest, _ = cmd.Flags().GetString("manifest")
			if len(args) == 0 && opts.Scheme == "" && opts.Manifest == "" {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}

			res, err := c.app.Build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if opts.OutputMode != "events" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Build succeeded: %d task(s) ran, %d up to date\n",
					res.Executed, res.UpToDate)
			}
			return nil
		},
	}
	addRequestFlags(cmd)
	addExecutionFlags(cmd)
	cmd.Flags().StringP("manifest", "m", "", "Execute a manifest written by 'bake plan' instead of planning")
	return cmd
}
