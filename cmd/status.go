package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/gebc/internal/project"
	"github.com/Norgate-AV/gebc/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status [project...]",
	Short: "Show cache state and the build mode each project would get",
	Long: `Show cache state and the build mode each project would get.

Without arguments every project under the output root is listed.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, builder, err := setup(cmd)
	if err != nil {
		return err
	}

	projects := args
	if len(projects) == 0 {
		projects, err = listProjects(cfg.OutputRoot)
		if err != nil {
			return err
		}

		if len(projects) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No projects in %s\n", cfg.OutputRoot)
			return nil
		}
	}

	w := cmd.OutOrStdout()

	for _, name := range projects {
		d, err := builder.SelectMode(cmd.Context(), name, false)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		fmt.Fprintf(w, "%s %s %s %s %s\n",
			name,
			report.StateBadge(d.Verdict.State.String()),
			report.Label("next:"),
			report.ModeBadge(string(d.Mode)),
			report.Label("("+d.Reason+")"))

		fmt.Fprintf(w, "  %s %s  %s %s\n",
			report.Label("stored"), report.ShortHash(d.Verdict.Stored),
			report.Label("current"), report.ShortHash(d.Verdict.Current))

		if d.Verdict.HashErr != nil {
			fmt.Fprintf(w, "  %s %v\n", report.Label("hash error:"), d.Verdict.HashErr)
		}
	}

	return nil
}

// listProjects returns the directories under root that are valid project
// names, sorted
func listProjects(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && project.ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}
