package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/bake/internal/app"
)

// addRequestFlags registers the flags that shape a build request.
func addRequestFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("scheme", "s", "", "Build the targets of a scheme")
	flags.StringP("configuration", "c", "Debug", "Build configuration")
	flags.StringToString("set", nil, "Override a build setting for every target (KEY=VALUE)")
	flags.StringSlice("file", nil, "Preprocess the given source files instead of building")
	flags.Bool("index", false, "Only run tasks that prepare for indexing")
	flags.Bool("only-requested", false, "Ignore dependencies on targets that were not requested")
}

// addExecutionFlags registers the flags that control how a build runs.
func addExecutionFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolP("dry-run", "n", false, "Report the tasks that would run without running them")
	flags.BoolP("continue", "k", false, "Keep building unrelated targets after a failure")
	flags.IntP("jobs", "j", 0, "Maximum number of concurrent tasks (default: number of CPUs)")
	flags.StringP("output", "o", "linear", "Output mode: linear, quiet or events")
}

// buildOptions reads the flags registered by addRequestFlags and addExecutionFlags.
func buildOptions(cmd *cobra.Command, targets []string) app.BuildOptions {
	flags := cmd.Flags()
	opts := app.BuildOptions{Targets: targets}

	opts.Scheme, _ = flags.GetString("scheme")
	opts.Configuration, _ = flags.GetString("configuration")
	opts.Settings, _ = flags.GetStringToString("set")
	opts.Files, _ = flags.GetStringSlice("file")
	opts.Index, _ = flags.GetBool("index")
	opts.OnlyRequestedTargets, _ = flags.GetBool("only-requested")

	if flags.Lookup("dry-run") != nil {
		opts.DryRun, _ = flags.GetBool("dry-run")
		opts.ContinueAfterErrors, _ = flags.GetBool("continue")
		opts.Parallelism, _ = flags.GetInt("jobs")
		opts.OutputMode, _ = flags.GetString("output")
	}
	return opts
}
