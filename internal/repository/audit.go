package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/entity"
)

// AuditRepository appends decision records; rows are never updated.
type AuditRepository interface {
	Append(ctx context.Context, rec *entity.AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]*entity.AuditRecord, error)
}

type auditRepository struct {
	pool   *pgxpool.Pool
	retry  RetryConfig
	logger *slog.Logger
}

func NewAuditRepository(pool *pgxpool.Pool, logger *slog.Logger) AuditRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &auditRepository{pool: pool, logger: logger}
}

func (r *auditRepository) Append(ctx context.Context, rec *entity.AuditRecord) error {
	const q = `
		INSERT INTO email_import_audit
			(email_id, email_subject, email_from, email_date, attachment_filename,
			 dropbox_url, extracted_data, status, expense_id, processed_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, NOW())
		RETURNING id, processed_at`

	err := WithRetry(ctx, r.retry, r.logger, "audit.append", func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, q,
			rec.MessageID, rec.Subject, rec.From, rec.MessageDate,
			rec.AttachmentFilename, rec.BlobURL, rec.ExtractedData,
			string(rec.Decision), rec.ExpenseID,
		).Scan(&rec.ID, &rec.DecidedAt)
	})
	if err != nil {
		r.logger.Error("audit.append.failed", "email_id", rec.MessageID, "decision", rec.Decision, "error", err)
		return err
	}
	r.logger.Info("audit.append.ok", "audit_id", rec.ID, "email_id", rec.MessageID, "decision", rec.Decision)
	return nil
}

// ListRecent returns the newest records first.
func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]*entity.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT id, email_id, email_subject, email_from, email_date,
		       COALESCE(attachment_filename, ''), COALESCE(dropbox_url, ''),
		       extracted_data, status, expense_id, processed_at
		FROM email_import_audit
		ORDER BY processed_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		r.logger.Error("audit.list.failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.AuditRecord
	for rows.Next() {
		var rec entity.AuditRecord
		var decision string
		var msgDate *time.Time
		if err := rows.Scan(
			&rec.ID, &rec.MessageID, &rec.Subject, &rec.From, &msgDate,
			&rec.AttachmentFilename, &rec.BlobURL, &rec.ExtractedData,
			&decision, &rec.ExpenseID, &rec.DecidedAt,
		); err != nil {
			return nil, err
		}
		rec.MessageDate = msgDate
		rec.Decision = constants.Decision(decision)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
