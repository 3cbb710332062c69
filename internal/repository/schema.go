package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationSQL creates the tables this service writes to. The wider expense
// ledger schema (clients, categories, invoices) is owned elsewhere; only the
// import-side tables live here.
const migrationSQL = `
	CREATE TABLE IF NOT EXISTS oauth_tokens (
		id BIGSERIAL PRIMARY KEY,
		provider VARCHAR(32) NOT NULL,
		identity VARCHAR(255) NOT NULL DEFAULT '',
		access_token TEXT NOT NULL,
		refresh_token TEXT,
		expires_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (provider, identity)
	);

	CREATE TABLE IF NOT EXISTS email_import_audit (
		id BIGSERIAL PRIMARY KEY,
		email_id VARCHAR(255) NOT NULL,
		email_subject TEXT,
		email_from TEXT,
		email_date TIMESTAMP WITH TIME ZONE,
		attachment_filename TEXT,
		dropbox_url TEXT,
		extracted_data JSONB,
		status VARCHAR(16) NOT NULL,
		expense_id BIGINT,
		processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_email_import_audit_processed_at
		ON email_import_audit(processed_at);
`

// Migrate applies the import-side schema. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		logger.Error("migrate.failed", "error", err)
		return err
	}
	logger.Info("migrate.ok")
	return nil
}
