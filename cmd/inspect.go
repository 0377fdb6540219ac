package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/depscope/internal/manifest"
	"github.com/zjrosen/depscope/internal/presentation"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <manifest.yaml>",
	Short: "Validate a manifest and list its components and steps",
	Long: `Parse and validate a manifest without running it.

Examples:
  depscope inspect scope.yaml
  depscope inspect scope.yaml -f json | jq '.components[].handle'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(args[0])
		if err != nil {
			return err
		}
		formatter, err := newFormatter(cmd.OutOrStdout(), false)
		if err != nil {
			return err
		}
		return formatter.FormatManifest(presentation.FromManifest(m))
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
