package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	LogLevel       string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Staffing and simulation
	Workers               [types.NumTiers]int
	RosterFile            string
	MaxCallDuration       time.Duration
	EscalationProbability float64
	SnapshotInterval      time.Duration
	SimURL                string // control API of a running call generator

	// Reporting
	StatsSchedule string
	WaitAlertSecs int
	SLSeconds     int
	SLTarget      int

	// Auth
	SkipAuth   bool
	JWTSecret  string
	OIDCIssuer string
}

// DefaultWorkers is the staffing used when neither a roster file nor WORKERS is set
var DefaultWorkers = [types.NumTiers]int{3, 2, 1}

// Load loads configuration from environment variables and the optional roster file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Workers:        DefaultWorkers,
		RosterFile:     os.Getenv("ROSTER_FILE"),
		SimURL:         getEnv("SIM_URL", "http://localhost:8081"),
		StatsSchedule:  getEnv("STATS_SCHEDULE", "55 23 * * *"),
		SkipAuth:       os.Getenv("SKIP_AUTH") == "true",
		JWTSecret:      os.Getenv("JWT_SECRET"),
		OIDCIssuer:     os.Getenv("OIDC_ISSUER"),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	// Staffing: roster file first, WORKERS overrides it
	if config.RosterFile != "" {
		roster, err := LoadRoster(config.RosterFile)
		if err != nil {
			return nil, err
		}
		config.Workers = roster
	}
	if workers := os.Getenv("WORKERS"); workers != "" {
		config.Workers, err = ParseWorkers(workers)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKERS: %w", err)
		}
	}

	maxCallMs, err := getEnvInt("MAX_CALL_DURATION_MS", 2000)
	if err != nil {
		return nil, err
	}
	config.MaxCallDuration = time.Duration(maxCallMs) * time.Millisecond

	snapshotMs, err := getEnvInt("SNAPSHOT_INTERVAL_MS", 1000)
	if err != nil {
		return nil, err
	}
	if snapshotMs <= 0 {
		return nil, fmt.Errorf("invalid SNAPSHOT_INTERVAL_MS: must be positive")
	}
	config.SnapshotInterval = time.Duration(snapshotMs) * time.Millisecond

	config.EscalationProbability, err = strconv.ParseFloat(getEnv("ESCALATION_PROBABILITY", "0.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ESCALATION_PROBABILITY: %w", err)
	}
	if config.EscalationProbability < 0 || config.EscalationProbability > 1 {
		return nil, fmt.Errorf("invalid ESCALATION_PROBABILITY: %v not in [0, 1]", config.EscalationProbability)
	}

	if config.WaitAlertSecs, err = getEnvInt("WAIT_ALERT_SECS", 30); err != nil {
		return nil, err
	}
	if config.SLSeconds, err = getEnvInt("SL_SECONDS", 20); err != nil {
		return nil, err
	}
	if config.SLTarget, err = getEnvInt("SL_TARGET", 80); err != nil {
		return nil, err
	}

	return config, nil
}

// ParseWorkers parses per-tier worker counts such as "3,2,1", lowest tier first
func ParseWorkers(s string) ([types.NumTiers]int, error) {
	var counts [types.NumTiers]int

	parts := strings.Split(s, ",")
	if len(parts) != types.NumTiers {
		return counts, fmt.Errorf("expected %d comma-separated counts, got %q", types.NumTiers, s)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return counts, fmt.Errorf("count for %s: %w", types.Tier(i), err)
		}
		if n < 0 {
			return counts, fmt.Errorf("count for %s must not be negative", types.Tier(i))
		}
		counts[i] = n
	}
	return counts, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
