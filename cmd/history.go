package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/gebc/internal/history"
	"github.com/Norgate-AV/gebc/internal/project"
	"github.com/Norgate-AV/gebc/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history <project>",
	Short: "List recorded builds of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of builds to list, 0 for all")
	historyCmd.Flags().String("show", "", "Print one build with its captured output")
	historyCmd.Flags().StringP("format", "f", "", "Export as json, yaml or toml instead of a table")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	if err := requireProject(cfg, name); err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	show, _ := cmd.Flags().GetString("show")
	format, _ := cmd.Flags().GetString("format")
	w := cmd.OutOrStdout()

	path := filepath.Join(project.CacheDir(cfg.OutputRoot, name), history.FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if show != "" {
			return fmt.Errorf("%w: %s", history.ErrNotFound, show)
		}
		if format != "" {
			return report.Encode(w, format, report.NewHistoryView(nil))
		}
		fmt.Fprintf(w, "%s %s\n", name, report.Label("has no recorded builds"))
		return nil
	}

	h, err := history.Open(path)
	if err != nil {
		return err
	}
	defer h.Close()

	if show != "" {
		rec, err := h.Get(show)
		if err != nil {
			return err
		}

		if format != "" {
			return report.Encode(w, format, report.NewBuildView(*rec))
		}

		printBuild(cmd, *rec)
		if rec.Output != "" {
			fmt.Fprintf(w, "\n%s\n", rec.Output)
		}
		return nil
	}

	records, err := h.List(limit)
	if err != nil {
		return err
	}

	if format != "" {
		return report.Encode(w, format, report.NewHistoryView(records))
	}

	if len(records) == 0 {
		fmt.Fprintf(w, "%s %s\n", name, report.Label("has no recorded builds"))
		return nil
	}

	for _, rec := range records {
		printBuild(cmd, rec)
	}

	return nil
}

func printBuild(cmd *cobra.Command, rec history.Record) {
	id := rec.ID
	if len(id) > 8 {
		id = id[:8]
	}

	line := fmt.Sprintf("%s %s %s %s %s %s",
		report.Label(id),
		rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
		report.ModeBadge(rec.Mode),
		report.ResultBadge(rec.Success),
		rec.Duration.Round(time.Millisecond),
		report.Label("("+rec.Reason+")"))

	if rec.Fallback {
		line += " " + report.Label("fallback")
	}

	if rec.Error != "" {
		line += "\n  " + rec.Error
	}

	fmt.Fprintln(cmd.OutOrStdout(), line)
}
