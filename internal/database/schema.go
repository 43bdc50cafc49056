package database

// SQL schemas for the ClickHouse tables

const (
	// ActuationEventsTableSQL creates the actuation_events table
	ActuationEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS actuation_events (
			timestamp DateTime64(3),
			sensor_id String,
			average Float64,
			turn_on Bool,
			state LowCardinality(String)
		) ENGINE = MergeTree()
		ORDER BY (sensor_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// ActuationEventsTTLSQL keeps the audit log bounded
	ActuationEventsTTLSQL = `
		ALTER TABLE actuation_events
		MODIFY TTL toDateTime(timestamp) + INTERVAL 90 DAY
	`
)

// AllTables returns the statements that bring the schema up to date, in order
func AllTables() []string {
	return []string{
		ActuationEventsTableSQL,
		ActuationEventsTTLSQL,
	}
}
