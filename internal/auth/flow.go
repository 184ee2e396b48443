package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/joshsymonds/mailpilot/internal/account"
	"github.com/joshsymonds/mailpilot/internal/gmail"
)

// flowTimeout bounds how long Authorize waits for the user to complete the
// browser grant when the caller's context has no deadline of its own.
const flowTimeout = 3 * time.Minute

// Authorize runs the interactive grant for acct: it opens a loopback
// callback listener on an ephemeral port, announces the authorization URL
// through prompt, waits for exactly one callback or the timeout, exchanges
// the code, and persists the token atomically. The listener is closed on
// every exit path.
func (m *Manager) Authorize(ctx context.Context, acct account.Account, prompt func(url string)) (*oauth2.Token, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flowTimeout)
		defer cancel()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("open callback listener: %w", err)
	}
	defer func() { _ = ln.Close() }()

	conf := *m.Config
	conf.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())
	state := uuid.NewString()

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)
	var once sync.Once
	deliver := func(cb callback) { once.Do(func() { results <- cb }) }

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(callback{err: gmail.AuthError("authorization state mismatch", nil)})
		case q.Get("error") != "":
			fmt.Fprintln(w, "Authorization denied. You can close this window.")
			deliver(callback{err: gmail.AuthError("authorization denied: "+q.Get("error"), nil)})
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			deliver(callback{err: gmail.AuthError("authorization callback carried no code", nil)})
		default:
			fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
			deliver(callback{code: q.Get("code")})
		}
	})}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			deliver(callback{err: fmt.Errorf("callback server: %w", serveErr)})
		}
	}()
	defer func() { _ = srv.Close() }()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if prompt != nil {
		prompt(authURL)
	}
	m.Log.Info("waiting for authorization callback", "account", acct.Alias)

	var cb callback
	select {
	case <-ctx.Done():
		return nil, gmail.AuthError(fmt.Sprintf("authorization timed out for account %q", acct.Alias), ctx.Err())
	case cb = <-results:
	}
	if cb.err != nil {
		return nil, cb.err
	}

	tok, err := conf.Exchange(ctx, cb.code)
	if err != nil {
		return nil, gmail.AuthError(fmt.Sprintf("code exchange failed for account %q", acct.Alias), err)
	}
	if err := saveToken(m.Registry.TokenFile(acct), tok); err != nil {
		return nil, fmt.Errorf("persist token for %q: %w", acct.Alias, err)
	}
	return tok, nil
}
