package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/gebc/internal/cleanup"
	"github.com/Norgate-AV/gebc/internal/project"
	"github.com/Norgate-AV/gebc/internal/report"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <project>",
	Short: "Remove build output, keeping fetched dependencies",
	Long: `Remove a project's build output.

By default the dependency tree (build/_deps) is kept so the next full build
does not fetch and compile third-party libraries again. With --all the whole
build directory is removed and the cache is invalidated.`,
	Args: cobra.ExactArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("all", false, "Also remove the dependency tree and invalidate the cache")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, builder, err := setup(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	if err := requireProject(cfg, name); err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")

	res, err := cleanup.Clean(
		project.Dir(cfg.OutputRoot, name),
		project.BuildDir(cfg.OutputRoot, name, cfg.BuildDir),
		cleanup.Options{PreserveDeps: !all, DepsDir: cfg.DepsDir},
	)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	if len(res.Removed) == 0 {
		fmt.Fprintf(w, "%s %s\n", name, report.Label("nothing to clean"))
	}

	for _, path := range res.Removed {
		rel, err := filepath.Rel(cfg.OutputRoot, path)
		if err != nil {
			rel = path
		}
		fmt.Fprintf(w, "%s %s\n", report.Label("removed"), rel)
	}

	if res.Preserved {
		fmt.Fprintf(w, "%s %s\n", report.Label("kept"), filepath.Join(name, cfg.BuildDir, cfg.DepsDir))
	}

	if all {
		if err := builder.Store.Invalidate(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", name, report.Label("cache invalidated"))
	}

	return nil
}
