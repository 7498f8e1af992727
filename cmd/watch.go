package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/gebc/internal/build"
	"github.com/Norgate-AV/gebc/internal/cache"
	"github.com/Norgate-AV/gebc/internal/project"
	"github.com/Norgate-AV/gebc/internal/report"
	"github.com/Norgate-AV/gebc/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <project>",
	Short: "Report cache state as the project's inputs change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Bool("build", false, "Build after every change")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, builder, err := setup(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	if err := requireProject(cfg, name); err != nil {
		return err
	}

	autoBuild, _ := cmd.Flags().GetBool("build")
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	watcher, err := watch.NewWatcher(project.Dir(cfg.OutputRoot, name), cfg.HashInputs)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Start(); err != nil {
		watcher.Stop()
		return fmt.Errorf("failed to watch %s: %w", name, err)
	}
	defer watcher.Stop()

	state, err := printState(cmd, builder, name, -1)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s\n", report.Label("watching, press Ctrl+C to stop"))

	for {
		select {
		case <-ctx.Done():
			return nil

		case change, ok := <-watcher.Changes:
			if !ok {
				return nil
			}

			verb := "changed"
			if change.Removed {
				verb = "removed"
			}
			fmt.Fprintf(w, "%s %s\n", change.Input, report.Label(verb))

			if autoBuild {
				buildOnce(ctx, w, builder, name)
			}

			if state, err = printState(cmd, builder, name, state); err != nil {
				return err
			}
		}
	}
}

// printState prints the cache state when it differs from prev
func printState(cmd *cobra.Command, builder *build.Builder, name string, prev cache.State) (cache.State, error) {
	d, err := builder.SelectMode(cmd.Context(), name, false)
	if err != nil {
		return prev, err
	}

	state := d.Verdict.State
	if state != prev {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n",
			name,
			report.StateBadge(state.String()),
			report.Label("next:"),
			report.ModeBadge(string(d.Mode)))
	}

	return state, nil
}

// buildOnce builds and reports without stopping the watch on failure
func buildOnce(ctx context.Context, w io.Writer, builder *build.Builder, name string) {
	rep, err := builder.Build(ctx, name, build.Options{})
	if rep != nil {
		printReport(w, rep, false)
	}

	var buildErr *build.BuildError
	if err != nil && !errors.As(err, &buildErr) {
		fmt.Fprintf(w, "%s %v\n", report.ResultBadge(false), err)
	}
}
