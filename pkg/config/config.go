package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Stage endpoints
	SourceAddr     string
	AggregatorAddr string
	DecisionAddr   string

	// Session handling
	StageWorkers   int
	SourceInterval time.Duration
	ShutdownGrace  time.Duration

	// Simulated sensor range (Celsius)
	ReadingMin float64
	ReadingMax float64

	// Actuation threshold (Celsius), strict greater-than
	DecisionThreshold float64

	LogLevel string

	// Pipeline composer
	PipelineSensorIDs []string

	// MQTT Configuration (empty broker disables the publisher)
	MQTTBroker         string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTTopicActuation string
	MQTTConnectTimeout time.Duration
	MQTTKeepAlive      time.Duration

	// ClickHouse Configuration (empty address disables the audit log)
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		SourceAddr:     getEnv("SOURCE_ADDR", ":50051"),
		AggregatorAddr: getEnv("AGGREGATOR_ADDR", ":50052"),
		DecisionAddr:   getEnv("DECISION_ADDR", ":50053"),

		StageWorkers:   getEnvInt("STAGE_WORKERS", 10),
		SourceInterval: getEnvDuration("SOURCE_INTERVAL", time.Second),
		ShutdownGrace:  getEnvDuration("SHUTDOWN_GRACE", 5*time.Second),

		ReadingMin: getEnvFloat("READING_MIN", 20.0),
		ReadingMax: getEnvFloat("READING_MAX", 30.0),

		DecisionThreshold: getEnvFloat("DECISION_THRESHOLD", 25.0),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		PipelineSensorIDs: getEnvList("PIPELINE_SENSOR_IDS", []string{"sensor-1"}),

		MQTTBroker:         getEnv("MQTT_BROKER", ""),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", ""),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		MQTTTopicActuation: getEnv("MQTT_TOPIC_ACTUATION", "actuator/{sensor_id}/command"),
		MQTTConnectTimeout: getEnvDuration("MQTT_CONNECT_TIMEOUT", 10*time.Second),
		MQTTKeepAlive:      getEnvDuration("MQTT_KEEP_ALIVE", 60*time.Second),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "iot"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),
	}
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("failed to parse env as int, using default", "key", key, "error", err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("failed to parse env as float, using default", "key", key, "error", err)
		return defaultValue
	}
	return floatValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("failed to parse env as duration, using default", "key", key, "error", err)
		return defaultValue
	}
	return duration
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
