package config

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. GEBC_ENGINE_PATH
const EnvPrefix = "GEBC"

// flagKeys maps command flag names to their viper keys
var flagKeys = map[string]string{
	"engine":      "engine_path",
	"output-root": "output_root",
	"strict-hash": "strict_hash",
	"no-history":  "no_history",
	"verbose":     "verbose",
}

// Loader handles configuration loading from various sources
type Loader struct {
	configHome func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{configHome: os.UserConfigDir}
}

// LoadForCommand loads configuration for a command run from workDir.
// Precedence, lowest first: defaults, global file, local file, environment,
// flags.
func (l *Loader) LoadForCommand(cmd *cobra.Command, workDir string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(workDir)
	l.bindEnv()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("engine_path", DefaultEnginePath)
	viper.SetDefault("output_root", DefaultOutputRoot)
	viper.SetDefault("build_dir", DefaultBuildDir)
	viper.SetDefault("deps_dir", DefaultDepsDir)
	viper.SetDefault("hash_inputs", DefaultHashInputs)
	viper.SetDefault("dependencies", DefaultDependencies)
	viper.SetDefault("strict_hash", DefaultStrictHash)
	viper.SetDefault("lock_timeout", DefaultLockTimeout)
	viper.SetDefault("fast_timeout", DefaultFastTimeout)
	viper.SetDefault("incremental_timeout", DefaultIncrementalTimeout)
	viper.SetDefault("full_timeout", DefaultFullTimeout)
	viper.SetDefault("history_limit", DefaultHistoryLimit)
	viper.SetDefault("no_history", DefaultNoHistory)
	viper.SetDefault("verbose", DefaultVerbose)
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	home, err := l.configHome()
	if err != nil {
		return
	}

	if path := FindGlobalConfig(home); path != "" {
		viper.SetConfigFile(path)
		_ = viper.ReadInConfig()
	}
}

// loadLocalConfig merges the nearest .gebc.* file over the global one
func (l *Loader) loadLocalConfig(workDir string) {
	if workDir == "" {
		return
	}

	localPath := FindLocalConfig(workDir)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

// bindEnv enables GEBC_* environment overrides
func (l *Loader) bindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			_ = viper.BindPFlag(key, flag)
		}
	}
}
