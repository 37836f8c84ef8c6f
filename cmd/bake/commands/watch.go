package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/bake/internal/app"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [targets...]",
		Short: "Rebuild the specified targets whenever files change",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := buildOptions(cmd, args)
			if len(args) == 0 && opts.Scheme == "" {
				_ = cmd.Help()
				return nil
			}
			debounce, _ := cmd.Flags().GetDuration("debounce")
			return c.app.Watch(cmd.Context(), app.WatchOptions{BuildOptions: opts, Debounce: debounce})
		},
	}
	addRequestFlags(cmd)
	addExecutionFlags(cmd)
	cmd.Flags().Duration("debounce", 0, "Quiet period after the last change before rebuilding (default 100ms)")
	return cmd
}
