// Package main provides the water-monitor dashboard binary: the HTTP API and
// a few offline helpers.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/water-monitor/internal/api"
	"github.com/abelzeko/water-monitor/internal/config"
	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/integration/openai"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/abelzeko/water-monitor/internal/repository"
	"github.com/abelzeko/water-monitor/internal/safety"
	"github.com/abelzeko/water-monitor/internal/usecases"
	"github.com/spf13/cobra"
)

const appName = "water-monitor"

// Version is set at build time
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Water quality monitoring dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file to load")

	cmd.AddCommand(serveCmd(&envFile), classifyCmd(&envFile))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func serveCmd(envFile *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

// newUseCase wires the decision engine from configuration. Without an API key
// every narrative request falls back.
func newUseCase(cfg *config.Config) *usecases.WaterUseCase {
	var aiService openai.Service
	svc, err := openai.NewService(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	if err != nil {
		log.Warnf("AI narratives disabled: %v", err)
	} else {
		aiService = svc
	}

	return usecases.NewWaterUseCase(aiService, usecases.NewSimulator(cfg.RefreshDelay, nil), usecases.Options{
		Thresholds:        &cfg.Thresholds,
		DisplayRanges:     &cfg.DisplayRanges,
		PredictionTimeout: cfg.PredictionTimeout,
	})
}

func serve(cfg *config.Config) error {
	if err := log.Init(cfg.Debug); err != nil {
		return err
	}
	defer log.Sync()
	log.Infof("Starting %s %s...", appName, Version)

	store, err := repository.Open(cfg.StoreDriver, cfg.StoreDSN, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	session, err := usecases.NewSeededSession(store, repository.DisplayStamp())
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to seed sources: %w", err)
	}
	defer session.Close()

	useCase := newUseCase(cfg)

	if cfg.AutoRefreshCron != "" {
		refresher, err := usecases.NewAutoRefresher(cfg.AutoRefreshCron, usecases.NewSimulator(cfg.RefreshDelay, nil), session)
		if err != nil {
			return err
		}
		refresher.Start()
		defer refresher.Stop()
		log.Infof("Auto-refresh scheduled: %s", cfg.AutoRefreshCron)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.NewHTTPServer(cfg.HTTPAddr, useCase, session).Start(ctx)
}

func classifyCmd(envFile *string) *cobra.Command {
	var params entities.WaterParameters

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a reading and print its gauges",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			writeReport(cmd.OutOrStdout(), cfg.Thresholds, cfg.DisplayRanges, params)
			return nil
		},
	}

	defaults := entities.DefaultParameters()
	cmd.Flags().Float64Var(&params.PH, "ph", defaults.PH, "pH")
	cmd.Flags().Float64Var(&params.Temp, "temp", defaults.Temp, "Temperature in °C")
	cmd.Flags().Float64Var(&params.Turbidity, "turbidity", defaults.Turbidity, "Turbidity in NTU")
	cmd.Flags().Float64Var(&params.TDS, "tds", defaults.TDS, "Total dissolved solids in ppm")
	return cmd
}

func writeReport(w io.Writer, thresholds safety.Thresholds, ranges safety.DisplayRanges, params entities.WaterParameters) {
	fmt.Fprintf(w, "Safety: %s\n", thresholds.Classify(params))
	for _, g := range ranges.Gauges(params) {
		flag := ""
		if g.OutOfRange {
			flag = "  out of range"
		}
		fmt.Fprintf(w, "%-10s %8g %-4s fill %5.1f%%  target %g-%g%s\n",
			g.Parameter, g.Value, g.Unit, g.FillPercent, g.Min, g.Max, flag)
	}
}
