package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/depscope/internal/log"
	"github.com/zjrosen/depscope/internal/presentation"
	"github.com/zjrosen/depscope/internal/tracing"
	"github.com/zjrosen/depscope/internal/watcher"
)

var watchFlagOverrides []string

var watchCmd = &cobra.Command{
	Use:   "watch <manifest.yaml>",
	Short: "Re-run a manifest every time it changes",
	Long: `Run a manifest once, then again after every saved change to the file.
A manifest that fails to parse is reported and the previous run stays on
screen until the next save. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := flagRegistry(watchFlagOverrides)
		if err != nil {
			return err
		}
		formatter, err := newFormatter(cmd.OutOrStdout(), false)
		if err != nil {
			return err
		}
		provider, err := tracing.NewProvider(cfg.Tracing)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer shutdownTracing(provider)

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := watcher.New(watcher.Config{Paths: []string{args[0]}, Debounce: cfg.Watch.Debounce})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
		changes, err := w.Start()
		if err != nil {
			return err
		}

		render := func() {
			report, err := runManifest(ctx, args[0], registry, provider)
			if err != nil {
				log.ErrorErr(log.CatCLI, "Manifest run failed", err, "path", args[0])
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return
			}
			if err := formatter.FormatRun(presentation.FromReport(report)); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
		}

		render()
		for {
			select {
			case <-ctx.Done():
				return nil
			case path, ok := <-changes:
				if !ok {
					return nil
				}
				log.Debug(log.CatCLI, "Manifest changed", "path", path)
				render()
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringArrayVar(&watchFlagOverrides, "flag", nil,
		"override a feature flag (name=true|false, repeatable)")
	rootCmd.AddCommand(watchCmd)
}
