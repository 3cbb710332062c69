// Package dropbox is a minimal client for the three Dropbox endpoints this
// service needs: content upload, shared-link creation and account status.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/auth"
	"github.com/thevitaly/payme-smart/internal/common"
)

const (
	defaultContentURL = "https://content.dropboxapi.com/2"
	defaultRPCURL     = "https://api.dropboxapi.com/2"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// UploadResult reports one upload attempt. Failures carry Error; the batch
// layer records them instead of aborting.
type UploadResult struct {
	Success  bool   `json:"success"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename"`
	Error    string `json:"error,omitempty"`
}

// AccountStatus is the subset of users/get_current_account we surface.
type AccountStatus struct {
	Connected bool   `json:"connected"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Client uploads attachment blobs and mints shareable links.
type Client struct {
	tokens     *auth.Store
	folder     string
	httpClient *http.Client

	// overridable for tests
	contentURL string
	rpcURL     string
	now        func() time.Time

	log *slog.Logger
}

// Config for the Dropbox client. Folder is the destination prefix for all
// uploaded blobs.
type Config struct {
	Folder     string
	ContentURL string
	RPCURL     string
}

func NewClient(tokens *auth.Store, cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.Folder == "" {
		cfg.Folder = "/PayMe/EmailImports"
	}
	if cfg.ContentURL == "" {
		cfg.ContentURL = defaultContentURL
	}
	if cfg.RPCURL == "" {
		cfg.RPCURL = defaultRPCURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		tokens:     tokens,
		folder:     strings.TrimRight(cfg.Folder, "/"),
		httpClient: httpClient,
		contentURL: cfg.ContentURL,
		rpcURL:     cfg.RPCURL,
		now:        time.Now,
		log:        logger,
	}
}

// SanitizeFilename replaces anything outside [A-Za-z0-9._-] with underscores.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// NormalizeSharedURL rewrites a Dropbox share link into a direct-download URL.
func NormalizeSharedURL(url string) string {
	url = strings.Replace(url, "www.dropbox.com", "dl.dropboxusercontent.com", 1)
	url = strings.Replace(url, "?dl=0", "", 1)
	return url
}

// Upload stores data under the configured folder and returns a direct
// shareable link. The blob path gets a millisecond-epoch prefix so repeated
// filenames never collide. Never returns an error; failures land in the
// result.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) UploadResult {
	path := fmt.Sprintf("%s/%d_%s", c.folder, c.now().UnixMilli(), SanitizeFilename(filename))

	c.log.Info("dropbox.upload.start", "path", path, "bytes", len(data))

	token, err := c.tokens.EnsureFresh(ctx, constants.ProviderDropbox)
	if err != nil {
		c.log.Error("dropbox.upload.auth_error", "error", err)
		return UploadResult{Filename: filename, Error: err.Error()}
	}

	if err := c.uploadContent(ctx, token.AccessToken, path, data); err != nil {
		c.log.Error("dropbox.upload.failed", "path", path, "error", err)
		return UploadResult{Filename: filename, Error: err.Error()}
	}

	url, err := c.sharedLink(ctx, token.AccessToken, path)
	if err != nil {
		c.log.Error("dropbox.link.failed", "path", path, "error", err)
		return UploadResult{Filename: filename, Error: err.Error()}
	}

	c.log.Info("dropbox.upload.ok", "path", path, "url", url)
	return UploadResult{Success: true, Path: path, URL: url, Filename: filename}
}

// Delete removes a blob. Rejecting a review item keeps its blob, so this is
// for callers that explicitly want the stored document gone.
func (c *Client) Delete(ctx context.Context, path string) error {
	token, err := c.tokens.EnsureFresh(ctx, constants.ProviderDropbox)
	if err != nil {
		return err
	}
	_, err = c.rpc(ctx, token.AccessToken, "/files/delete_v2", map[string]any{"path": path})
	if err != nil {
		return common.ExternalError("dropbox delete failed", err)
	}
	c.log.Info("dropbox.delete.ok", "path", path)
	return nil
}

// Status reports whether a usable Dropbox credential exists and, when it
// does, whose account it belongs to.
func (c *Client) Status(ctx context.Context) AccountStatus {
	token, err := c.tokens.EnsureFresh(ctx, constants.ProviderDropbox)
	if err != nil {
		return AccountStatus{Connected: false}
	}
	raw, err := c.rpc(ctx, token.AccessToken, "/users/get_current_account", nil)
	if err != nil {
		c.log.Warn("dropbox.status.failed", "error", err)
		return AccountStatus{Connected: false}
	}
	var acct struct {
		Email string `json:"email"`
		Name  struct {
			DisplayName string `json:"display_name"`
		} `json:"name"`
	}
	if err := json.Unmarshal(raw, &acct); err != nil {
		return AccountStatus{Connected: true}
	}
	return AccountStatus{Connected: true, Email: acct.Email, Name: acct.Name.DisplayName}
}

func (c *Client) uploadContent(ctx context.Context, accessToken, path string, data []byte) error {
	arg, err := json.Marshal(map[string]any{
		"path": path,
		"mode": "overwrite",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dropbox upload http error: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dropbox upload status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// sharedLink creates a shared link for path. Dropbox rejects duplicates with
// shared_link_already_exists; in that case the existing link is listed and
// reused, so re-uploads stay idempotent.
func (c *Client) sharedLink(ctx context.Context, accessToken, path string) (string, error) {
	raw, err := c.rpc(ctx, accessToken, "/sharing/create_shared_link_with_settings", map[string]any{"path": path})
	if err == nil {
		var link struct {
			URL string `json:"url"`
		}
		if uerr := json.Unmarshal(raw, &link); uerr != nil {
			return "", uerr
		}
		return NormalizeSharedURL(link.URL), nil
	}
	if !strings.Contains(err.Error(), "shared_link_already_exists") {
		return "", err
	}

	raw, err = c.rpc(ctx, accessToken, "/sharing/list_shared_links", map[string]any{
		"path":        path,
		"direct_only": true,
	})
	if err != nil {
		return "", err
	}
	var list struct {
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", err
	}
	if len(list.Links) == 0 {
		return "", fmt.Errorf("shared link exists but could not be listed for %s", path)
	}
	return NormalizeSharedURL(list.Links[0].URL), nil
}

func (c *Client) rpc(ctx context.Context, accessToken, endpoint string, body map[string]any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dropbox http error: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dropbox status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
