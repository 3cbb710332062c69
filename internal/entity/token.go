package entity

import (
	"time"

	"github.com/thevitaly/payme-smart/constants"
)

// OAuthToken is the persisted credential for one provider identity.
// At most one valid token per provider+identity exists at a time; a refresh
// overwrites the previous row.
type OAuthToken struct {
	Provider     constants.TokenProvider `json:"provider"`
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time               `json:"expires_at"`
	Identity     string                  `json:"identity,omitempty"` // account email for Gmail
	UpdatedAt    time.Time               `json:"updated_at"`
}

// ExpiresWithin reports whether the token expires inside the given buffer.
// A zero ExpiresAt means the provider issued a non-expiring token.
func (t *OAuthToken) ExpiresWithin(buffer time.Duration, now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.Sub(now) < buffer
}
