package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/depscope/internal/flags"
	"github.com/zjrosen/depscope/internal/log"
	"github.com/zjrosen/depscope/internal/manifest"
	"github.com/zjrosen/depscope/internal/presentation"
	"github.com/zjrosen/depscope/internal/tracing"
)

// ErrRefused is returned by run --strict when any removal was refused.
var ErrRefused = errors.New("removal refused")

var (
	runFlagOverrides []string
	runStrict        bool
	runNoColor       bool
)

var runCmd = &cobra.Command{
	Use:   "run <manifest.yaml>",
	Short: "Apply a manifest's steps to a fresh scope and report the wiring",
	Long: `Build every component a manifest declares, apply its steps in order to a
fresh scope and print the outcome of each step together with the final
state of every dependency slot.

Examples:
  # Text report
  depscope run scope.yaml

  # JSON report for scripting
  depscope run scope.yaml -f json | jq '.steps[] | select(.outcome == "refused")'

  # Override feature flags for one run
  depscope run scope.yaml --flag query-cache=true --flag publish-events=false

  # Exit non-zero when a removal is refused
  depscope run scope.yaml --strict`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := flagRegistry(runFlagOverrides)
		if err != nil {
			return err
		}
		formatter, err := newFormatter(cmd.OutOrStdout(), runNoColor)
		if err != nil {
			return err
		}

		provider, err := tracing.NewProvider(cfg.Tracing)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer shutdownTracing(provider)

		report, err := runManifest(cmd.Context(), args[0], registry, provider)
		if err != nil {
			return err
		}
		if err := formatter.FormatRun(presentation.FromReport(report)); err != nil {
			return err
		}
		if runStrict && len(report.Refused()) > 0 {
			return fmt.Errorf("%w: %d step(s)", ErrRefused, len(report.Refused()))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runFlagOverrides, "flag", nil,
		"override a feature flag for this run (name=true|false, repeatable)")
	runCmd.Flags().BoolVar(&runStrict, "strict", false,
		"exit non-zero when any removal was refused")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false,
		"disable styled text output")
	rootCmd.AddCommand(runCmd)
}

func runManifest(ctx context.Context, path string, registry *flags.Registry, provider *tracing.Provider) (*manifest.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	report, err := manifest.Run(ctx, m, manifest.Options{
		Flags:    registry,
		Tracer:   provider.Tracer(),
		CacheTTL: cfg.Cache.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", path, err)
	}
	log.Info(log.CatCLI, "Manifest run finished",
		"manifest", m.Name, "run_id", report.RunID, "steps", len(report.Steps), "refused", len(report.Refused()))
	return report, nil
}

// flagRegistry applies name=value overrides on top of the configured flags.
func flagRegistry(overrides []string) (*flags.Registry, error) {
	reg := cfg.FlagRegistry()
	for _, o := range overrides {
		name, value, err := parseFlagOverride(o)
		if err != nil {
			return nil, err
		}
		reg = reg.With(name, value)
	}
	return reg, nil
}

func parseFlagOverride(s string) (string, bool, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", false, fmt.Errorf("invalid flag %q: want name=true|false", s)
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return "", false, fmt.Errorf("invalid flag %q: %w", s, err)
	}
	return name, value, nil
}

func newFormatter(w io.Writer, noColor bool) (*presentation.Formatter, error) {
	format, err := presentation.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	return presentation.NewFormatter(w, format, cfg.Output.Color && !noColor), nil
}

func shutdownTracing(p *tracing.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatTrace, "Tracing shutdown failed", err)
	}
}
