package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"insightd/internal/config"
	"insightd/internal/httpapi"
	"insightd/internal/orchestrator"
	"insightd/pkg/types"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	addr       string
	logLevel   string
	logFormat  string
}

// oneShotFlags tune the one-shot insight commands.
type oneShotFlags struct {
	providers string
	source    string
	refresh   bool
}

func (f oneShotFlags) options() orchestrator.Options {
	return orchestrator.Options{
		PreferredProviders: splitCSV(f.providers),
		Source:             f.source,
		ForceRefresh:       f.refresh,
	}
}

func newRootCmd() *cobra.Command {
	rf := &rootFlags{configPath: os.Getenv("INSIGHTD_CONFIG")}
	root := &cobra.Command{
		Use:           "insightd",
		Short:         "Device insights over pluggable AI providers and data sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rf)
		},
	}
	root.PersistentFlags().StringVar(&rf.configPath, "config", rf.configPath, "Config file (.yaml, .json, .toml); defaults to INSIGHTD_CONFIG")
	root.PersistentFlags().StringVar(&rf.addr, "addr", "", "HTTP listen address (overrides config and INSIGHTD_ADDR)")
	root.PersistentFlags().StringVar(&rf.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults INSIGHTD_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&rf.logFormat, "log-format", "", "Log format: console|json")

	serve := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API",
		Example: "  insightd serve --config insightd.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rf)
		},
	}
	root.AddCommand(serve)

	type oneShot func(context.Context, *orchestrator.Orchestrator, orchestrator.Options, []string) (types.InsightResult, error)
	insightCmd := func(use, short string, args cobra.PositionalArgs, fn oneShot) *cobra.Command {
		var of oneShotFlags
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, a []string) error {
				return withOrchestrator(cmd, rf, func(ctx context.Context, o *orchestrator.Orchestrator) error {
					res, err := fn(ctx, o, of.options(), a)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				})
			},
		}
		c.Flags().StringVar(&of.providers, "providers", "", "Comma separated provider order")
		c.Flags().StringVar(&of.source, "source", "", "Data source name")
		c.Flags().BoolVar(&of.refresh, "refresh", false, "Force a fresh snapshot")
		return c
	}
	root.AddCommand(
		insightCmd("insights", "Print a general device health summary", cobra.NoArgs,
			func(ctx context.Context, o *orchestrator.Orchestrator, opts orchestrator.Options, _ []string) (types.InsightResult, error) {
				return o.GetDeviceInsights(ctx, opts)
			}),
		insightCmd("battery", "Print battery care advice", cobra.NoArgs,
			func(ctx context.Context, o *orchestrator.Orchestrator, opts orchestrator.Options, _ []string) (types.InsightResult, error) {
				return o.GetBatteryAdvice(ctx, opts)
			}),
		insightCmd("performance", "Print performance tips", cobra.NoArgs,
			func(ctx context.Context, o *orchestrator.Orchestrator, opts orchestrator.Options, _ []string) (types.InsightResult, error) {
				return o.GetPerformanceTips(ctx, opts)
			}),
		insightCmd("query <prompt>", "Answer a question about the device", cobra.MinimumNArgs(1),
			func(ctx context.Context, o *orchestrator.Orchestrator, opts orchestrator.Options, a []string) (types.InsightResult, error) {
				return o.QueryDeviceInfo(ctx, strings.Join(a, " "), opts)
			}),
	)

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print provider and cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd, rf, func(ctx context.Context, o *orchestrator.Orchestrator) error {
				return printJSON(cmd.OutOrStdout(), o.GetStatus())
			})
		},
	})
	return root
}

// setup loads config and builds the logger for a command.
func setup(cmd *cobra.Command, rf *rootFlags) (config.Config, zerolog.Logger, error) {
	cfg, err := loadConfig(rf.configPath, rf.addr, rf.logLevel, rf.logFormat)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat), nil
}

func withOrchestrator(cmd *cobra.Command, rf *rootFlags, fn func(context.Context, *orchestrator.Orchestrator) error) error {
	cfg, log, err := setup(cmd, rf)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	o, err := startOrchestrator(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer o.Cleanup()
	return fn(ctx, o)
}

func runServe(cmd *cobra.Command, rf *rootFlags) error {
	cfg, log, err := setup(cmd, rf)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.Configure(cfg)
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(o), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Int("providers", len(cfg.Providers)).Msg("insightd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	// Providers connect while the listener is up; /readyz reports progress.
	if err := o.Init(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("init failed")
	}

	select {
	case err := <-errCh:
		o.Cleanup()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown (Ctrl+C / SIGTERM)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	o.Cleanup()
	log.Info().Msg("insightd stopped")
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
