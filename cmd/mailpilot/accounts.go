package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joshsymonds/mailpilot/internal/auth"
	"github.com/joshsymonds/mailpilot/internal/runtime"
)

type accountRecord struct {
	Alias     string `json:"alias"`
	Email     string `json:"email,omitempty"`
	IsDefault bool   `json:"is_default"`
}

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage configured accounts",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runAccountsList(a) },
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runAccountsList(a) },
	}

	add := &cobra.Command{
		Use:   "add <alias>",
		Short: "Add an account and run the authorization flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountsAdd(cmd.Context(), a, args[0])
		},
	}

	remove := &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove an account and delete its credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountsRemove(a, args[0])
		},
	}

	setDefault := &cobra.Command{
		Use:   "set-default <alias>",
		Short: "Set the default account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountsSetDefault(a, args[0])
		},
	}

	cmd.AddCommand(list, add, remove, setDefault)
	return cmd
}

func runAccountsList(a *app) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	records := []accountRecord{}
	for _, acct := range reg.List() {
		records = append(records, accountRecord{Alias: acct.Alias, Email: acct.Email, IsDefault: acct.Default})
	}
	return printJSON(map[string]any{"accounts": records, "count": len(records)})
}

// runAccountsAdd registers the alias (when new) and runs the interactive
// grant, recording the granted identity's email on the account.
func runAccountsAdd(ctx context.Context, a *app, alias string) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	acct, err := reg.Get(alias)
	if err != nil {
		if acct, err = reg.Add(alias); err != nil {
			return err
		}
		if err := reg.Save(); err != nil {
			return err
		}
	}

	mgr, err := auth.NewManager(reg, a.log)
	if err != nil {
		return withAlias(alias, err)
	}
	tok, err := mgr.Authorize(ctx, acct, func(url string) {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser to authorize %q:\n\n  %s\n\n", alias, url)
	})
	if err != nil {
		return withAlias(alias, err)
	}

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(mgr.Config.Client(ctx, tok)))
	if err != nil {
		return withAlias(alias, fmt.Errorf("create gmail service: %w", err))
	}
	email, err := runtime.NewGoogleAPIClient(svc).Profile(ctx)
	if err != nil {
		return withAlias(alias, err)
	}
	if err := reg.SetEmail(alias, email); err != nil {
		return err
	}
	if err := reg.Save(); err != nil {
		return err
	}
	return printJSON(map[string]any{"status": "success", "alias": alias, "account": email})
}

func runAccountsRemove(a *app, alias string) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	if err := reg.Remove(alias); err != nil {
		return err
	}
	if err := reg.Save(); err != nil {
		return err
	}
	return printJSON(map[string]any{"status": "success", "removed": alias})
}

func runAccountsSetDefault(a *app, alias string) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	if err := reg.SetDefault(alias); err != nil {
		return err
	}
	if err := reg.Save(); err != nil {
		return err
	}
	return printJSON(map[string]any{"status": "success", "default": alias})
}
