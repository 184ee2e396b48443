// Package auth owns the per-account token lifecycle: load, validity check,
// refresh, interactive grant, and atomic persistence. Tokens are never
// shared across accounts.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/joshsymonds/mailpilot/internal/account"
	"github.com/joshsymonds/mailpilot/internal/gmail"
)

// expirySkew treats a token as expired slightly before its recorded expiry
// so a request issued right at the boundary never travels with a dead token.
const expirySkew = 2 * time.Minute

// Manager performs credential operations for the accounts of one registry.
type Manager struct {
	Registry *account.Registry
	Config   *oauth2.Config
	Log      *slog.Logger
	Clock    func() time.Time
}

// NewManager loads the OAuth client secret from credentials.json in the
// registry directory and returns a manager bound to reg.
func NewManager(reg *account.Registry, logger *slog.Logger) (*Manager, error) {
	data, err := os.ReadFile(filepath.Join(reg.Dir(), "credentials.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gmail.AuthError(
				fmt.Sprintf("no OAuth client secret at %s; download credentials.json from the Google Cloud console", reg.Dir()),
				err,
			)
		}
		return nil, fmt.Errorf("read client secret: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, reg.Scopes()...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	return &Manager{Registry: reg, Config: conf, Log: logger, Clock: time.Now}, nil
}

// EnsureValid returns a currently valid token for acct, refreshing and
// persisting it when expired. A rejected refresh token is an auth failure;
// no silent recovery is attempted and the caller must re-run an
// interactive grant.
func (m *Manager) EnsureValid(ctx context.Context, acct account.Account) (*oauth2.Token, error) {
	path := m.Registry.TokenFile(acct)
	tok, err := loadToken(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gmail.AuthError(
				fmt.Sprintf("account %q is not authenticated; run: mailpilot accounts add %s", acct.Alias, acct.Alias),
				nil,
			)
		}
		return nil, fmt.Errorf("load token for %q: %w", acct.Alias, err)
	}

	if tok.AccessToken != "" && tok.Expiry.After(m.Clock().Add(expirySkew)) {
		return tok, nil
	}

	if tok.RefreshToken == "" {
		return nil, gmail.AuthError(
			fmt.Sprintf("account %q has an expired token and no refresh token; re-authorize", acct.Alias),
			nil,
		)
	}

	m.Log.Debug("refreshing token", "account", acct.Alias)
	fresh, err := m.Config.TokenSource(ctx, tok).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, gmail.AuthError(
				fmt.Sprintf("refresh rejected for account %q; re-authorize", acct.Alias),
				err,
			)
		}
		return nil, fmt.Errorf("refresh token for %q: %w", acct.Alias, err)
	}
	// the token endpoint omits the refresh token on rotation-free grants
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := saveToken(path, fresh); err != nil {
		return nil, fmt.Errorf("persist refreshed token for %q: %w", acct.Alias, err)
	}
	return fresh, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return &tok, nil
}

// saveToken writes to a temporary file in the token directory and renames
// it into place, so a crash mid-write never leaves a half-written
// credential. The file is owner-read only.
func saveToken(path string, tok *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod token file: %w", err)
	}
	enc := json.NewEncoder(tmp)
	if err := enc.Encode(tok); err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flush token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename token into place: %w", err)
	}
	return nil
}
