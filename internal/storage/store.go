package storage

import (
	"context"

	"github.com/rs/zerolog"
)

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case ModeDynamoLocal, ModeDynamoAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("persistence disabled (STORE_MODE=none)")
		return NewNoopStore(), nil
	}
}
