package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSearchIndexes creates the full-text GIN indexes for PostgreSQL.
// These enable efficient search over summaries and raw messages from
// downstream consumers.
func CreateSearchIndexes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_security_events_summary_gin
		ON security_events USING gin(to_tsvector('english', summary))`)
	if err != nil {
		return fmt.Errorf("failed to create summary GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_security_events_message_gin
		ON security_events USING gin(to_tsvector('english', COALESCE(message, '')))`)
	if err != nil {
		return fmt.Errorf("failed to create message GIN index: %w", err)
	}

	return nil
}
