package storage

import "os"

// Mode selects where finished calls are persisted
type Mode string

const (
	ModeNone        Mode = "none"
	ModeSQLite      Mode = "sqlite"
	ModeDynamoLocal Mode = "dynamo-local"
	ModeDynamoAWS   Mode = "dynamo-aws"
)

// Config holds storage configuration
type Config struct {
	Mode             Mode
	SQLitePath       string
	Endpoint         string // for dynamo-local mode
	Region           string
	CallRecordsTable string
	TierDailyTable   string
}

// LoadConfig loads storage config from environment
func LoadConfig() Config {
	mode := Mode(getEnv("STORE_MODE", string(ModeNone)))
	switch mode {
	case ModeSQLite, ModeDynamoLocal, ModeDynamoAWS:
	default:
		mode = ModeNone
	}

	return Config{
		Mode:             mode,
		SQLitePath:       getEnv("SQLITE_PATH", "switchboard.db"),
		Endpoint:         getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:           getEnv("DYNAMO_REGION", "eu-central-1"),
		CallRecordsTable: getEnv("DYNAMO_CALL_RECORDS_TABLE", "switchboard-call-records"),
		TierDailyTable:   getEnv("DYNAMO_TIER_DAILY_TABLE", "switchboard-tier-daily-stats"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
