package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zjrosen/depscope/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the depscope config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default config",
	Long: `Write a default config with every option documented. The path defaults
to .depscope/config.yaml. An existing file is kept unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := projectConfigPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
		return nil
	},
}

var configSetFlagCmd = &cobra.Command{
	Use:   "set-flag <name=true|false>",
	Short: "Persist a feature flag in the config file",
	Long: `Set one feature flag in the config file in use, keeping comments and the
other settings.

Examples:
  depscope config set-flag query-cache=true
  depscope -c ./ci.yaml config set-flag publish-events=false`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, value, err := parseFlagOverride(args[0])
		if err != nil {
			return err
		}
		path := configFilePath()
		if err := config.SaveFlag(path, name, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s=%t\n", path, name, value)
		return nil
	},
}

var configFlagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "List feature flags and their effective values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		all := cfg.FlagRegistry().All()
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %t\n", name, all[name])
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configSetFlagCmd, configFlagsCmd)
	rootCmd.AddCommand(configCmd)
}
