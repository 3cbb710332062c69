package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/entity"
)

// TokenRepository persists OAuth tokens, one live row per provider+identity.
type TokenRepository interface {
	Latest(ctx context.Context, provider constants.TokenProvider) (*entity.OAuthToken, error)
	Upsert(ctx context.Context, token *entity.OAuthToken) error
	DeleteAll(ctx context.Context, provider constants.TokenProvider) error
}

type tokenRepository struct {
	pool   *pgxpool.Pool
	retry  RetryConfig
	logger *slog.Logger
}

func NewTokenRepository(pool *pgxpool.Pool, logger *slog.Logger) TokenRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &tokenRepository{pool: pool, logger: logger}
}

// Latest returns the newest stored token for a provider, or nil when none exists.
func (r *tokenRepository) Latest(ctx context.Context, provider constants.TokenProvider) (*entity.OAuthToken, error) {
	const q = `
		SELECT provider, access_token, COALESCE(refresh_token, ''), expires_at, COALESCE(identity, ''), updated_at
		FROM oauth_tokens
		WHERE provider = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	var t entity.OAuthToken
	var expiresAt *time.Time
	err := r.pool.QueryRow(ctx, q, string(provider)).Scan(
		&t.Provider, &t.AccessToken, &t.RefreshToken, &expiresAt, &t.Identity, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("tokens.load.failed", "provider", provider, "error", err)
		return nil, err
	}
	if expiresAt != nil {
		t.ExpiresAt = *expiresAt
	}
	return &t, nil
}

// Upsert overwrites the stored token for the provider+identity. The refresh
// token is preserved when the new credential does not carry one.
func (r *tokenRepository) Upsert(ctx context.Context, token *entity.OAuthToken) error {
	const q = `
		INSERT INTO oauth_tokens (provider, identity, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NOW())
		ON CONFLICT (provider, identity) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_tokens.refresh_token),
			expires_at    = EXCLUDED.expires_at,
			updated_at    = NOW()`

	var expiresAt *time.Time
	if !token.ExpiresAt.IsZero() {
		expiresAt = &token.ExpiresAt
	}
	return WithRetry(ctx, r.retry, r.logger, "tokens.upsert", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, q,
			string(token.Provider), token.Identity, token.AccessToken, token.RefreshToken, expiresAt)
		if err != nil {
			r.logger.Error("tokens.upsert.failed", "provider", token.Provider, "error", err)
		}
		return err
	})
}

func (r *tokenRepository) DeleteAll(ctx context.Context, provider constants.TokenProvider) error {
	return WithRetry(ctx, r.retry, r.logger, "tokens.delete", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `DELETE FROM oauth_tokens WHERE provider = $1`, string(provider))
		return err
	})
}
