package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"iot-pipeline/internal/models"
)

// ClickHouseConfig holds connection settings
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type ClickHouseDB struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewClickHouseDB opens a ClickHouse connection and initializes the schema
func NewClickHouseDB(ctx context.Context, config ClickHouseConfig, logger *slog.Logger) (*ClickHouseDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "clickhouse")

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.Addr},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Info("Connected to ClickHouse", "addr", config.Addr)

	db := &ClickHouseDB{conn: conn, logger: logger}

	if err := db.InitSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	db.logger.Info("Database schema initialized successfully")
	return nil
}

// SaveActuations writes a batch of decisions in one round trip
func (db *ClickHouseDB) SaveActuations(ctx context.Context, events []*models.ActuationEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO actuation_events (timestamp, sensor_id, average, turn_on, state)")
	if err != nil {
		return fmt.Errorf("failed to prepare actuation batch: %w", err)
	}
	for _, event := range events {
		if err := batch.Append(
			time.UnixMilli(event.Timestamp),
			event.SensorID,
			event.Average,
			event.TurnOn,
			event.State(),
		); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append actuation event: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send actuation batch: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		db.logger.Info("ClickHouse connection closed")
	}
	return nil
}
