package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thevitaly/payme-smart/internal/entity"
)

// CreateExpenseRequest wraps the fields committed to the ledger on acceptance.
type CreateExpenseRequest struct {
	Description   string
	Amount        float64
	Currency      string
	CategoryID    *int64
	SubcategoryID *int64
	OriginalText  string
	BlobURL       string
}

// ExpenseRepository is the narrow write contract to the expense ledger.
type ExpenseRepository interface {
	CreateFromImport(ctx context.Context, req *CreateExpenseRequest) (*entity.Expense, error)
}

type expenseRepository struct {
	pool   *pgxpool.Pool
	retry  RetryConfig
	logger *slog.Logger
}

func NewExpenseRepository(pool *pgxpool.Pool, logger *slog.Logger) ExpenseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &expenseRepository{pool: pool, logger: logger}
}

// CreateFromImport inserts a confirmed email-derived expense and returns it
// with the assigned id, usable as the audit record's back-reference.
func (r *expenseRepository) CreateFromImport(ctx context.Context, req *CreateExpenseRequest) (*entity.Expense, error) {
	const q = `
		INSERT INTO payme_expenses
			(description, amount, currency, category_id, subcategory_id, status,
			 payment_type, input_type, original_text, dropbox_url, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, 'CONFIRMED', 'BANK', 'EMAIL', $6, NULLIF($7, ''), NOW(), NOW())
		RETURNING id, created_at`

	exp := &entity.Expense{
		Description:   req.Description,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		OriginalText:  req.OriginalText,
		BlobURL:       req.BlobURL,
	}
	err := WithRetry(ctx, r.retry, r.logger, "expenses.create", func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, q,
			req.Description, req.Amount, req.Currency,
			req.CategoryID, req.SubcategoryID,
			req.OriginalText, req.BlobURL,
		).Scan(&exp.ID, &exp.CreatedAt)
	})
	if err != nil {
		r.logger.Error("expenses.create.failed", "error", err)
		return nil, err
	}
	r.logger.Info("expenses.create.ok", "expense_id", exp.ID, "amount", exp.Amount, "currency", exp.Currency)
	return exp, nil
}
