package auth

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/thevitaly/payme-smart/internal/common"
)

// GmailScopes is what the mailbox connector needs: read-only mail access plus
// the account email for token bookkeeping.
var GmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

// DropboxEndpoint is the Dropbox OAuth2 endpoint pair.
var DropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

// GoogleOAuthConfig builds the Gmail oauth2 config, or nil when credentials
// are not configured.
func GoogleOAuthConfig(cfg common.GoogleConfig) *oauth2.Config {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       GmailScopes,
		Endpoint:     google.Endpoint,
	}
}

// DropboxOAuthConfig builds the Dropbox oauth2 config, or nil when credentials
// are not configured.
func DropboxOAuthConfig(cfg common.DropboxConfig) *oauth2.Config {
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.AppKey,
		ClientSecret: cfg.AppSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     DropboxEndpoint,
	}
}
