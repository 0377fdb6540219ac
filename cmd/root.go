package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/depscope/internal/config"
	"github.com/zjrosen/depscope/internal/log"
)

const projectConfigPath = ".depscope/config.yaml"

var (
	version    = "dev"
	cfgFile    string
	debug      bool
	cfg        config.Config
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "depscope",
	Short: "Run and inspect dependency-scope manifests",
	Long: `depscope builds components from a YAML manifest, registers and removes
them in a dependency scope step by step, and reports how every declared
dependency was wired along the way.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .depscope/config.yaml, then ~/.config/depscope/config.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "",
		"output format: text or json")
	rootCmd.PersistentFlags().String("log-file", "",
		"append logs to this file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"write debug logs to stderr")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL)
	viper.SetDefault("watch.debounce", defaults.Watch.Debounce)
	viper.SetDefault("output.format", defaults.Output.Format)
	viper.SetDefault("output.color", defaults.Output.Color)
	viper.SetDefault("flags", defaults.Flags)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	// Bind flags to viper
	_ = viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	viper.SetEnvPrefix("DEPSCOPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .depscope/config.yaml (current directory)
		// 2. ~/.config/depscope/config.yaml (user config)
		if _, err := os.Stat(projectConfigPath); err == nil {
			viper.SetConfigFile(projectConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "depscope"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// A missing config is fine; defaults apply.
	_ = viper.ReadInConfig()
	_ = viper.Unmarshal(&cfg)
}

// setup validates the loaded config and starts logging.
func setup(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch {
	case debug:
		logCleanup = log.InitWriter(cmd.ErrOrStderr())
		log.SetMinLevel(log.LevelDebug)
	case cfg.Log.File != "":
		cleanup, err := log.Init(cfg.Log.File)
		if err != nil {
			return err
		}
		logCleanup = cleanup
		log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	}

	log.Debug(log.CatCLI, "Command starting", "command", cmd.CommandPath(), "config", viper.ConfigFileUsed())
	return nil
}

// configFilePath is where config writes go: the loaded file, or the
// project config when none was loaded.
func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return projectConfigPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
