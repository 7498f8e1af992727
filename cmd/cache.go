package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/gebc/internal/cache"
	"github.com/Norgate-AV/gebc/internal/report"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage a project's build cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Print the cache record and current input digests",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheShow,
}

var cacheCommitCmd = &cobra.Command{
	Use:   "commit <project>",
	Short: "Record the current inputs as successfully built",
	Long: `Record the current inputs as successfully built.

Use after building a project outside gebc so the next build can skip the
full rebuild.`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheCommit,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <project>",
	Short: "Forget the cache so the next build is a full build",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheInvalidate,
}

func init() {
	cacheShowCmd.Flags().StringP("format", "f", report.FormatJSON, "Output format: json, yaml or toml")
	cacheCmd.AddCommand(cacheShowCmd, cacheCommitCmd, cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	_, builder, err := setup(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	format, _ := cmd.Flags().GetString("format")

	verdict, err := builder.Oracle.Check(cmd.Context(), name)
	if err != nil {
		return err
	}

	// Per-input digests are diagnostic; a failure is already in the verdict
	digests, err := builder.Calculator.InputDigests(name)
	if err != nil {
		builder.Logger.Debug("per-input digests unavailable", "project", name, "error", err)
	}

	return report.Encode(cmd.OutOrStdout(), format, report.NewCacheView(name, verdict, digests))
}

func runCacheCommit(cmd *cobra.Command, args []string) error {
	cfg, builder, err := setup(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	if err := requireProject(cfg, name); err != nil {
		return err
	}

	fp, err := builder.Calculator.Compute(name)
	if err != nil {
		return fmt.Errorf("cache not committed: %w", err)
	}

	manifest := cache.BuildManifest(cfg.OutputRoot, name, cfg.Dependencies, time.Now())

	if err := builder.Store.Commit(cmd.Context(), name, fp, manifest); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", name, report.Label("committed"), report.ShortHash(fp.DependencyHash))
	return nil
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	_, builder, err := setup(cmd)
	if err != nil {
		return err
	}

	if err := builder.Store.Invalidate(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], report.Label("cache invalidated"))
	return nil
}
