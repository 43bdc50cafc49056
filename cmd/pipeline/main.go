package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"iot-pipeline/internal/database"
	"iot-pipeline/internal/models"
	"iot-pipeline/internal/mqtt"
	"iot-pipeline/internal/pipeline"
	"iot-pipeline/internal/shutdown"
	"iot-pipeline/pkg/config"
)

func main() {
	sensorIDs := pflag.StringArray("sensor", nil, "sensor id to stream (repeatable, defaults to PIPELINE_SENSOR_IDS)")
	pflag.Parse()

	// Load configuration
	cfg := config.Load()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: cfg.SlogLevel(),
	})))

	ids := *sensorIDs
	if len(ids) == 0 {
		ids = cfg.PipelineSensorIDs
	}

	slog.Info("Starting pipeline composer...", "sensors", ids)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinks := []pipeline.Sink{pipeline.NewLogSink(slog.Default())}

	// === Initialize MQTT publisher (optional) ===
	if cfg.MQTTBroker != "" {
		slog.Info("Connecting to MQTT broker...")
		mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:         cfg.MQTTBroker,
			ClientID:       cfg.MQTTClientID,
			Username:       cfg.MQTTUsername,
			Password:       cfg.MQTTPassword,
			ConnectTimeout: cfg.MQTTConnectTimeout,
			KeepAlive:      cfg.MQTTKeepAlive,
		}, slog.Default())
		if err != nil {
			slog.Error("Failed to initialize MQTT client", "error", err)
			os.Exit(1)
		}
		defer mqttClient.Close()

		publishChan := make(chan *models.ActuationEvent, 50)
		publisherConfig := mqtt.DefaultPublisherConfig()
		publisherConfig.ActuationTopic = cfg.MQTTTopicActuation
		publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), publisherConfig, publishChan, slog.Default())
		go publisher.Start(ctx)

		sinks = append(sinks, pipeline.NewChannelSink(publishChan, time.Second))
	}

	// === Initialize ClickHouse audit log (optional) ===
	var recorderDone chan struct{}
	if cfg.ClickHouseAddr != "" {
		db, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, slog.Default())
		if err != nil {
			slog.Error("Failed to initialize ClickHouse", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		recordChan := make(chan *models.ActuationEvent, 100)
		recorder := database.NewRecorder(db, database.DefaultRecorderConfig(), recordChan, slog.Default())
		recorderDone = make(chan struct{})
		go func() {
			defer close(recorderDone)
			recorder.Start(ctx)
		}()

		sinks = append(sinks, pipeline.NewChannelSink(recordChan, time.Second))
	}

	composer := pipeline.NewComposer(pipeline.Endpoints{
		Source:     cfg.SourceAddr,
		Aggregator: cfg.AggregatorAddr,
		Decision:   cfg.DecisionAddr,
	}, sinks, slog.Default())

	composerDone := make(chan error, 1)
	go func() {
		composerDone <- composer.Run(ctx, ids)
	}()

	// === Wait for interrupt signal or for every chain to stop ===
	// A second signal during the shutdown grace kills the process.
	sigChan := shutdown.Notify(os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Shutdown signal received, stopping chains...", "signal", sig.String())
		cancel()
		runErr = <-composerDone
	case runErr = <-composerDone:
		cancel()
	}

	if recorderDone != nil {
		<-recorderDone
	}

	if runErr != nil {
		slog.Error("Pipeline stopped with errors", "error", runErr)
		os.Exit(1)
	}
	slog.Info("Shutdown complete. Goodbye!")
}
