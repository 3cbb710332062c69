// Package auth owns OAuth credentials for the external providers.
//
// The Store is the only writer of persisted tokens. Refreshes are
// single-flight per provider: concurrent callers serialize on the provider
// mutex so a refresh never invalidates a token another caller just received.
package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/common"
	"github.com/thevitaly/payme-smart/internal/entity"
	"github.com/thevitaly/payme-smart/internal/repository"
)

// RefreshBuffer is how close to expiry a token may get before we exchange the
// refresh credential for a new one.
const RefreshBuffer = 5 * time.Minute

// refreshFunc exchanges a refresh token for fresh credentials. Swapped out in
// tests so no network is involved.
type refreshFunc func(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (*oauth2.Token, error)

// Store loads, saves and refreshes OAuth tokens per provider.
type Store struct {
	repo    repository.TokenRepository
	configs map[constants.TokenProvider]*oauth2.Config

	// static fallback access token for Dropbox (env-configured, non-expiring)
	staticDropboxToken string

	mu      map[constants.TokenProvider]*sync.Mutex
	refresh refreshFunc
	now     func() time.Time
	logger  *slog.Logger
}

func NewStore(repo repository.TokenRepository, google, dropbox *oauth2.Config, staticDropboxToken string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	configs := map[constants.TokenProvider]*oauth2.Config{}
	if google != nil {
		configs[constants.ProviderGmail] = google
	}
	if dropbox != nil {
		configs[constants.ProviderDropbox] = dropbox
	}
	return &Store{
		repo:               repo,
		configs:            configs,
		staticDropboxToken: staticDropboxToken,
		mu: map[constants.TokenProvider]*sync.Mutex{
			constants.ProviderGmail:   {},
			constants.ProviderDropbox: {},
		},
		refresh: defaultRefresh,
		now:     time.Now,
		logger:  logger,
	}
}

func defaultRefresh(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (*oauth2.Token, error) {
	return cfg.TokenSource(ctx, token).Token()
}

// Config returns the oauth2 config for a provider, or a CONFIG_ERROR when the
// credentials were never supplied.
func (s *Store) Config(provider constants.TokenProvider) (*oauth2.Config, error) {
	cfg, ok := s.configs[provider]
	if !ok {
		return nil, common.ConfigError(string(provider) + " OAuth not configured")
	}
	return cfg, nil
}

// AuthCodeURL returns the provider's consent-screen URL.
func (s *Store) AuthCodeURL(provider constants.TokenProvider) (string, error) {
	cfg, err := s.Config(provider)
	if err != nil {
		return "", err
	}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if provider == constants.ProviderGmail {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "consent"))
	} else {
		opts = append(opts, oauth2.SetAuthURLParam("token_access_type", "offline"))
	}
	return cfg.AuthCodeURL("", opts...), nil
}

// IdentityFunc resolves the account identity (email) behind a fresh token.
type IdentityFunc func(ctx context.Context, tok *oauth2.Token) (string, error)

// Exchange trades an authorization code for tokens and persists them. When an
// identity resolver is given its failure is non-fatal: the token is stored
// without an identity rather than losing the grant.
func (s *Store) Exchange(ctx context.Context, provider constants.TokenProvider, code string, identityFn IdentityFunc) (*entity.OAuthToken, error) {
	cfg, err := s.Config(provider)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, common.AuthError("code exchange failed", err)
	}
	identity := ""
	if identityFn != nil {
		identity, err = identityFn(ctx, tok)
		if err != nil {
			s.logger.Warn("auth.identity.failed", "provider", provider, "error", err)
			identity = ""
		}
	}
	stored := fromOAuth2(provider, identity, tok)
	if err := s.Save(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Load returns the newest persisted token for the provider, or nil.
func (s *Store) Load(ctx context.Context, provider constants.TokenProvider) (*entity.OAuthToken, error) {
	return s.repo.Latest(ctx, provider)
}

// Save overwrites the persisted token. Access token always updated; the
// refresh token is preserved by the repository unless a new one was issued.
func (s *Store) Save(ctx context.Context, token *entity.OAuthToken) error {
	token.UpdatedAt = s.now()
	return s.repo.Upsert(ctx, token)
}

// Disconnect drops all persisted tokens for the provider.
func (s *Store) Disconnect(ctx context.Context, provider constants.TokenProvider) error {
	return s.repo.DeleteAll(ctx, provider)
}

// EnsureFresh returns a usable access token for the provider, refreshing and
// persisting first when expiry is within RefreshBuffer. Only one refresh per
// provider is ever in flight.
func (s *Store) EnsureFresh(ctx context.Context, provider constants.TokenProvider) (*entity.OAuthToken, error) {
	mu, ok := s.mu[provider]
	if !ok {
		return nil, common.ConfigError("unknown provider " + string(provider))
	}
	mu.Lock()
	defer mu.Unlock()

	token, err := s.repo.Latest(ctx, provider)
	if err != nil {
		return nil, err
	}
	if token == nil {
		if provider == constants.ProviderDropbox && s.staticDropboxToken != "" {
			return &entity.OAuthToken{
				Provider:    provider,
				AccessToken: s.staticDropboxToken,
			}, nil
		}
		return nil, common.AuthError("no "+string(provider)+" token; connect the account first", nil)
	}

	if !token.ExpiresWithin(RefreshBuffer, s.now()) {
		return token, nil
	}
	if token.RefreshToken == "" {
		return nil, common.AuthError(string(provider)+" token expired and no refresh token stored", nil)
	}

	cfg, err := s.Config(provider)
	if err != nil {
		return nil, err
	}

	s.logger.Info("auth.refresh.start", "provider", provider, "identity", token.Identity)
	fresh, err := s.refresh(ctx, cfg, &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.ExpiresAt,
		TokenType:    "Bearer",
	})
	if err != nil {
		s.logger.Error("auth.refresh.failed", "provider", provider, "error", err)
		return nil, common.AuthError("token refresh failed", err)
	}

	stored := fromOAuth2(provider, token.Identity, fresh)
	if stored.RefreshToken == "" {
		stored.RefreshToken = token.RefreshToken
	}
	if err := s.Save(ctx, stored); err != nil {
		return nil, err
	}
	s.logger.Info("auth.refresh.ok", "provider", provider, "expires_at", stored.ExpiresAt)
	return stored, nil
}

// TokenSourceFunc returns a per-call token getter for the provider, suitable
// for building short-lived API clients off fresh credentials.
func (s *Store) TokenSourceFunc(provider constants.TokenProvider) func(ctx context.Context) (*oauth2.Token, error) {
	return func(ctx context.Context) (*oauth2.Token, error) {
		tok, err := s.EnsureFresh(ctx, provider)
		if err != nil {
			return nil, err
		}
		return &oauth2.Token{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			Expiry:       tok.ExpiresAt,
			TokenType:    "Bearer",
		}, nil
	}
}

func fromOAuth2(provider constants.TokenProvider, identity string, tok *oauth2.Token) *entity.OAuthToken {
	return &entity.OAuthToken{
		Provider:     provider,
		Identity:     identity,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
}
