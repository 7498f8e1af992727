package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultEnginePath         = "game_engine"
	DefaultOutputRoot         = "output"
	DefaultBuildDir           = "build"
	DefaultDepsDir            = "_deps"
	DefaultStrictHash         = false
	DefaultLockTimeout        = 5 * time.Second
	DefaultFastTimeout        = 30 * time.Second
	DefaultIncrementalTimeout = 60 * time.Second
	DefaultFullTimeout        = 300 * time.Second
	DefaultHistoryLimit       = 50
	DefaultNoHistory          = false
	DefaultVerbose            = false
)

// DefaultHashInputs are the build inputs fingerprinted for every project, in
// hashing order
var DefaultHashInputs = []string{
	"CMakeLists.txt",
	"src/main.cpp",
	"config/game_config.json",
}

// DefaultDependencies is the manifest fallback when CMakeLists.txt declares
// no fetched dependencies
var DefaultDependencies = []string{"raylib", "glfw", "glm"}

// Holds the configuration options for gebc
type Config struct {
	// Path to the game engine executable
	EnginePath string

	// Directory holding one subdirectory per generated project
	OutputRoot string

	// Build output directory, relative to the project
	BuildDir string

	// Dependency cache subtree inside BuildDir
	DepsDir string

	// Fingerprinted files, relative to the project, in hashing order
	HashInputs []string

	// Manifest fallback dependency list
	Dependencies []string

	// Propagate fingerprint read errors instead of using the empty hash
	StrictHash bool

	LockTimeout        time.Duration
	FastTimeout        time.Duration
	IncrementalTimeout time.Duration
	FullTimeout        time.Duration

	// Build records kept per project
	HistoryLimit int

	// Skip recording builds in the history database
	NoHistory bool

	// Enable verbose output
	Verbose bool
}

func Load() (*Config, error) {
	cfg := &Config{
		EnginePath:         viper.GetString("engine_path"),
		OutputRoot:         viper.GetString("output_root"),
		BuildDir:           viper.GetString("build_dir"),
		DepsDir:            viper.GetString("deps_dir"),
		HashInputs:         viper.GetStringSlice("hash_inputs"),
		Dependencies:       viper.GetStringSlice("dependencies"),
		StrictHash:         viper.GetBool("strict_hash"),
		LockTimeout:        viper.GetDuration("lock_timeout"),
		FastTimeout:        viper.GetDuration("fast_timeout"),
		IncrementalTimeout: viper.GetDuration("incremental_timeout"),
		FullTimeout:        viper.GetDuration("full_timeout"),
		HistoryLimit:       viper.GetInt("history_limit"),
		NoHistory:          viper.GetBool("no_history"),
		Verbose:            viper.GetBool("verbose"),
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills fields left empty by every configuration source
func (c *Config) applyDefaults() {
	if c.EnginePath == "" {
		c.EnginePath = DefaultEnginePath
	}

	if c.OutputRoot == "" {
		c.OutputRoot = DefaultOutputRoot
	}

	if c.BuildDir == "" {
		c.BuildDir = DefaultBuildDir
	}

	if c.DepsDir == "" {
		c.DepsDir = DefaultDepsDir
	}

	if len(c.HashInputs) == 0 {
		c.HashInputs = append([]string(nil), DefaultHashInputs...)
	}

	if len(c.Dependencies) == 0 {
		c.Dependencies = append([]string(nil), DefaultDependencies...)
	}

	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}

	if c.FastTimeout == 0 {
		c.FastTimeout = DefaultFastTimeout
	}

	if c.IncrementalTimeout == 0 {
		c.IncrementalTimeout = DefaultIncrementalTimeout
	}

	if c.FullTimeout == 0 {
		c.FullTimeout = DefaultFullTimeout
	}
}

func (c *Config) Validate() error {
	abs, err := filepath.Abs(c.OutputRoot)
	if err != nil {
		return fmt.Errorf("invalid output root: %v", err)
	}

	c.OutputRoot = abs

	if len(c.HashInputs) == 0 {
		return fmt.Errorf("hash_inputs must list at least one file")
	}

	for _, input := range c.HashInputs {
		if err := validateRelative("hash input", input); err != nil {
			return err
		}
	}

	if err := validateRelative("build_dir", c.BuildDir); err != nil {
		return err
	}

	if strings.ContainsAny(c.DepsDir, `/\`) || c.DepsDir == "." || c.DepsDir == ".." {
		return fmt.Errorf("invalid deps_dir: %q must be a single directory name", c.DepsDir)
	}

	timeouts := map[string]time.Duration{
		"lock_timeout":        c.LockTimeout,
		"fast_timeout":        c.FastTimeout,
		"incremental_timeout": c.IncrementalTimeout,
		"full_timeout":        c.FullTimeout,
	}

	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %s", name, d)
		}
	}

	if c.HistoryLimit < 0 {
		return fmt.Errorf("invalid history_limit: %d", c.HistoryLimit)
	}

	return nil
}

// validateRelative rejects paths that would leave the project directory
func validateRelative(what, path string) error {
	if path == "" {
		return fmt.Errorf("invalid %s: empty path", what)
	}

	if filepath.IsAbs(path) {
		return fmt.Errorf("invalid %s: %q must be relative to the project", what, path)
	}

	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid %s: %q escapes the project directory", what, path)
	}

	return nil
}
