package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/gebc/internal/build"
	"github.com/Norgate-AV/gebc/internal/report"
)

var buildCmd = &cobra.Command{
	Use:   "build <project>",
	Short: "Build a generated project",
	Long: `Build a generated project in the cheapest mode its cache allows.

FULL runs when there is no cache or the inputs changed, INCREMENTAL when the
inputs are unchanged and a compiled executable exists, FAST when the inputs
are unchanged but nothing has been compiled yet.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().Bool("force-full", false, "Ignore the cache and run a full build")
	buildCmd.Flags().Bool("dry-run", false, "Print the selected mode without building")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	_, builder, err := setup(cmd)
	if err != nil {
		return err
	}

	forceFull, _ := cmd.Flags().GetBool("force-full")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	rep, err := builder.Build(cmd.Context(), args[0], build.Options{ForceFull: forceFull, DryRun: dryRun})
	if rep != nil {
		printReport(cmd.OutOrStdout(), rep, dryRun)
	}

	var buildErr *build.BuildError
	if errors.As(err, &buildErr) && buildErr.Result != nil {
		if out := buildErr.Result.Output(); out != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), out)
		}
	}

	return err
}

func printReport(w io.Writer, rep *build.Report, dryRun bool) {
	d := rep.Decision
	fmt.Fprintf(w, "%s %s %s\n", rep.Project, report.ModeBadge(string(d.Mode)), report.Label("("+d.Reason+")"))

	if dryRun {
		return
	}

	if rep.Fallback {
		fmt.Fprintln(w, report.Label("incremental build unsupported by engine, rebuilt with project.build"))
	}

	if rep.Result == nil || !rep.Result.OK() {
		fmt.Fprintf(w, "%s after %s\n", report.ResultBadge(false), rep.Duration.Round(time.Millisecond))
		return
	}

	fmt.Fprintf(w, "%s in %s\n", report.ResultBadge(true), rep.Duration.Round(time.Millisecond))

	if rep.Committed {
		fmt.Fprintf(w, "%s %s\n", report.Label("cache committed"), report.ShortHash(rep.Hash))
	} else if rep.CommitErr != nil {
		fmt.Fprintf(w, "%s %v\n", report.Label("cache not committed:"), rep.CommitErr)
	}
}
