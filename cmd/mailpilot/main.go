// Command mailpilot manages one or more authenticated Gmail accounts:
// listing and searching mail, mutating message state, composing and
// sending, managing labels and server-side filters, and bulk-downloading
// attachments.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joshsymonds/mailpilot/internal/account"
	"github.com/joshsymonds/mailpilot/internal/auth"
	"github.com/joshsymonds/mailpilot/internal/gmail"
	"github.com/joshsymonds/mailpilot/internal/rate"
	"github.com/joshsymonds/mailpilot/internal/runtime"
)

type app struct {
	cfgDir    string
	acctAlias string
	rps       int
	log       *slog.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{log: runtime.DefaultLogger()}
	root := newRootCmd(a)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(err, "")
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mailpilot",
		Short:         "Multi-account Gmail operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultDir := filepath.Join(os.Getenv("HOME"), ".config", "mailpilot")
	root.PersistentFlags().StringVarP(&a.acctAlias, "account", "a", "", "account alias (default account when omitted)")
	root.PersistentFlags().StringVar(&a.cfgDir, "config", defaultDir, "configuration directory")
	root.PersistentFlags().IntVar(&a.rps, "rps", 8, "max requests per second against the API")

	root.AddCommand(
		newAccountsCmd(a),
		newListCmd(a),
		newSearchCmd(a),
		newReadCmd(a),
		newTrashCmd(a),
		newUntrashCmd(a),
		newArchiveCmd(a),
		newMoveCmd(a),
		newCleanupCmd(a),
		newSummaryCmd(a),
		newLabelsCmd(a),
		newFiltersCmd(a),
		newAttachmentsCmd(a),
		newDownloadCmd(a),
		newSearchDownloadCmd(a),
		newSendCmd(a),
		newReplyCmd(a),
		newDraftsCmd(a),
	)
	return root
}

func (a *app) configPath() string { return filepath.Join(a.cfgDir, "config.toml") }

func (a *app) registry() (*account.Registry, error) {
	return account.Load(a.configPath())
}

// session bundles everything a verb needs for one resolved account.
type session struct {
	Account  account.Account
	Registry *account.Registry
	Client   gmail.Client
	Limiter  *rate.TokenBucket
}

func (s *session) Close() {
	if s.Limiter != nil {
		s.Limiter.Stop()
	}
}

// session resolves the selected account, yields a currently valid
// credential, and builds the API client. The account's email is learned
// from the granted identity on first use.
func (a *app) session(ctx context.Context) (*session, error) {
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	acct, err := reg.Resolve(a.acctAlias)
	if err != nil {
		return nil, err
	}
	mgr, err := auth.NewManager(reg, a.log)
	if err != nil {
		return nil, withAlias(acct.Alias, err)
	}
	tok, err := mgr.EnsureValid(ctx, acct)
	if err != nil {
		return nil, withAlias(acct.Alias, err)
	}
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(mgr.Config.Client(ctx, tok)))
	if err != nil {
		return nil, withAlias(acct.Alias, fmt.Errorf("create gmail service: %w", err))
	}
	client := runtime.NewGoogleAPIClient(svc)

	if acct.Email == "" {
		email, perr := client.Profile(ctx)
		if perr != nil {
			return nil, withAlias(acct.Alias, perr)
		}
		acct.Email = email
		if err := reg.SetEmail(acct.Alias, email); err == nil {
			if serr := reg.Save(); serr != nil {
				a.log.Warn("could not persist account email", "account", acct.Alias, "error", serr)
			}
		}
	}

	rps := a.rps
	if rps <= 0 {
		rps = 1
	}
	return &session{
		Account:  acct,
		Registry: reg,
		Client:   client,
		Limiter:  rate.NewTokenBucket(rps, rps),
	}, nil
}

// aliasError tags a failure with the active account's alias so every
// user-visible error names the account it happened on.
type aliasError struct {
	alias string
	err   error
}

func (e *aliasError) Error() string { return fmt.Sprintf("account %q: %v", e.alias, e.err) }
func (e *aliasError) Unwrap() error { return e.err }

func withAlias(alias string, err error) error {
	if err == nil {
		return nil
	}
	return &aliasError{alias: alias, err: err}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(err error, email string) {
	out := map[string]any{
		"status":  "error",
		"kind":    gmail.KindOf(err).String(),
		"message": err.Error(),
	}
	if email != "" {
		out["account"] = email
	}
	_ = printJSON(out)
}

// runWithSession wraps a verb handler with session setup/teardown and
// error tagging.
func (a *app) runWithSession(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := a.session(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := fn(cmd.Context(), s, args); err != nil {
			return withAlias(s.Account.Alias, err)
		}
		return nil
	}
}
