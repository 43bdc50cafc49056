package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"iot-pipeline/internal/sensor"
	"iot-pipeline/internal/services"
	"iot-pipeline/internal/shutdown"
	"iot-pipeline/internal/stream"
	"iot-pipeline/pkg/config"
)

// stage is one runnable endpoint of the pipeline
type stage struct {
	name     string
	addr     string
	register func(*stream.Server)
}

func main() {
	stageFlag := pflag.StringP("stage", "s", "all", "stage to run: source, aggregator, decision or all")
	pflag.Parse()

	// Load configuration
	cfg := config.Load()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: cfg.SlogLevel(),
	})))

	slog.Info("Starting telemetry pipeline runtime...", "stage", *stageFlag)

	stages, err := selectStages(cfg, *stageFlag)
	if err != nil {
		slog.Error("Invalid stage selection", "error", err)
		os.Exit(2)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range stages {
		serverConfig := stream.DefaultServerConfig(st.name)
		serverConfig.Workers = cfg.StageWorkers
		serverConfig.ShutdownGrace = cfg.ShutdownGrace

		server := stream.NewServer(serverConfig, slog.Default())
		st.register(server)

		g.Go(func() error {
			return server.ListenAndServe(gctx, st.addr)
		})
	}

	slog.Info("=== Telemetry pipeline runtime is running ===",
		"workers", cfg.StageWorkers,
		"interval", cfg.SourceInterval,
		"threshold", cfg.DecisionThreshold)
	slog.Info("Press Ctrl+C to exit...")

	// === Wait for interrupt signal or a failed listener ===
	// A second signal during the shutdown grace kills the process.
	sigChan := shutdown.Notify(os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Shutdown signal received, stopping stages...", "signal", sig.String())
	case <-gctx.Done():
	}

	// === Graceful shutdown ===
	cancel()
	if err := g.Wait(); err != nil {
		slog.Error("Stage server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete. Goodbye!")
}

// selectStages builds the stages named by the --stage flag
func selectStages(cfg *config.Config, name string) ([]stage, error) {
	source := stage{
		name: "source",
		addr: cfg.SourceAddr,
		register: services.NewSensorService(
			sensor.NewUniformSource(sensor.RangeConfig{Min: cfg.ReadingMin, Max: cfg.ReadingMax}, nil),
			services.SensorServiceConfig{Interval: cfg.SourceInterval},
		).Register,
	}
	aggregator := stage{
		name:     "aggregator",
		addr:     cfg.AggregatorAddr,
		register: services.NewProcessorService().Register,
	}
	decision := stage{
		name: "decision",
		addr: cfg.DecisionAddr,
		register: services.NewActuatorService(
			services.ActuatorServiceConfig{Threshold: cfg.DecisionThreshold},
		).Register,
	}

	switch name {
	case "source":
		return []stage{source}, nil
	case "aggregator":
		return []stage{aggregator}, nil
	case "decision":
		return []stage{decision}, nil
	case "all":
		return []stage{source, aggregator, decision}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", name)
	}
}
