package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/gebc/internal/build"
	"github.com/Norgate-AV/gebc/internal/config"
	"github.com/Norgate-AV/gebc/internal/engine"
	"github.com/Norgate-AV/gebc/internal/project"
	"github.com/Norgate-AV/gebc/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "gebc",
	Short: "Incremental build cache for generated game projects",
	Long: `gebc decides whether a generated game project needs a full, fast or
incremental build by fingerprinting its build inputs, drives the game engine
to perform that build and remembers the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI until completion or interrupt
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().StringP("engine", "e", "", "Path to the game engine executable")
	rootCmd.PersistentFlags().StringP("output-root", "o", "", "Directory containing the generated projects")
	rootCmd.PersistentFlags().Bool("strict-hash", false, "Fail instead of assuming a cold cache when an input cannot be read")
	rootCmd.PersistentFlags().Bool("no-history", false, "Do not record builds in the history database")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
}

// workDir is where local .gebc.* configuration is searched from
var workDir = os.Getwd

// newEngine creates the engine used by build commands
var newEngine = func(cfg *config.Config, logger *slog.Logger) build.Engine {
	return engine.NewClient(cfg.EnginePath, logger)
}

// loadConfig resolves configuration for a command
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	wd, err := workDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	cfg, err := config.NewLoader().LoadForCommand(cmd, wd)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// newLogger logs diagnostics to w. Library warnings always show; debug
// detail only with --verbose.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// setup loads configuration and wires the builder for a command
func setup(cmd *cobra.Command) (*config.Config, *build.Builder, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	builder := build.New(cfg, newEngine(cfg, logger), logger)

	return cfg, builder, nil
}

// requireProject fails unless name is an existing project directory
func requireProject(cfg *config.Config, name string) error {
	if err := project.ValidateName(name); err != nil {
		return err
	}

	dir := project.Dir(cfg.OutputRoot, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", build.ErrProjectNotFound, dir)
	}

	return nil
}
