// Package account persists the alias→account mapping for every configured
// mailbox. The registry is an explicit value constructed per invocation and
// passed into command handlers; there is no process-wide cached state.
package account

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"

	"github.com/joshsymonds/mailpilot/internal/gmail"
)

// DefaultScopes is requested on interactive grants. gmail.modify covers
// every verb mailpilot issues, including settings.basic for filters.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.settings.basic",
}

// Account is one configured mailbox. Aliases are case-sensitive and never
// reused; TokenPath may be relative to the registry directory.
type Account struct {
	Alias     string
	Email     string
	TokenPath string
	Default   bool
}

// Registry is the persisted account configuration, loaded from a TOML file.
// Only a single writer per registry is assumed; concurrent invocations
// against the same config directory are unsupported.
type Registry struct {
	path         string
	defaultAlias string
	scopes       []string
	accounts     map[string]*Account
}

// fileAccount carries the alias inside the table body because viper
// lowercases table keys on read; the key alone cannot round-trip a
// mixed-case alias.
type fileAccount struct {
	Alias     string `mapstructure:"alias"`
	Email     string `mapstructure:"email"`
	TokenPath string `mapstructure:"token_path"`
}

type fileConfig struct {
	Gmail struct {
		DefaultAccount string   `mapstructure:"default_account"`
		Scopes         []string `mapstructure:"scopes"`
	} `mapstructure:"gmail"`
	Accounts map[string]fileAccount `mapstructure:"accounts"`
}

// Load reads the registry at path. A missing file yields an empty registry
// so first-run commands can bootstrap it.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, scopes: DefaultScopes, accounts: map[string]*Account{}}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return r, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	for key, fa := range cfg.Accounts {
		alias := fa.Alias
		if alias == "" {
			alias = key
		}
		tokenPath := fa.TokenPath
		if tokenPath == "" {
			tokenPath = filepath.Join("tokens", alias+".json")
		}
		r.accounts[alias] = &Account{Alias: alias, Email: fa.Email, TokenPath: tokenPath}
	}
	if len(cfg.Gmail.Scopes) > 0 {
		r.scopes = cfg.Gmail.Scopes
	}
	if cfg.Gmail.DefaultAccount != "" {
		if _, ok := r.accounts[cfg.Gmail.DefaultAccount]; ok {
			r.defaultAlias = cfg.Gmail.DefaultAccount
		}
	}
	return r, nil
}

// Save writes the registry back to its file, creating the parent directory
// on first use.
func (r *Registry) Save() error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(r.path)
	v.SetConfigType("toml")
	if r.defaultAlias != "" {
		v.Set("gmail.default_account", r.defaultAlias)
	}
	v.Set("gmail.scopes", r.scopes)
	accounts := map[string]map[string]string{}
	for alias, a := range r.accounts {
		entry := map[string]string{"alias": a.Alias, "token_path": a.TokenPath}
		if a.Email != "" {
			entry["email"] = a.Email
		}
		accounts[alias] = entry
	}
	v.Set("accounts", accounts)

	if err := v.WriteConfigAs(r.path); err != nil {
		return fmt.Errorf("write config %s: %w", r.path, err)
	}
	return nil
}

// Dir is the registry's directory; relative token paths resolve against it.
func (r *Registry) Dir() string { return filepath.Dir(r.path) }

// Scopes returns the OAuth scopes requested for this registry's accounts.
func (r *Registry) Scopes() []string { return r.scopes }

// List returns all accounts sorted by alias, with Default flags set.
func (r *Registry) List() []Account {
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		acct := *a
		acct.Default = a.Alias == r.defaultAlias
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Get looks up one account by alias.
func (r *Registry) Get(alias string) (Account, error) {
	a, ok := r.accounts[alias]
	if !ok {
		return Account{}, gmail.NotFoundError(fmt.Sprintf("account %q not configured", alias), nil)
	}
	acct := *a
	acct.Default = alias == r.defaultAlias
	return acct, nil
}

// Resolve returns the named account, or the default account when alias is
// empty.
func (r *Registry) Resolve(alias string) (Account, error) {
	if alias != "" {
		return r.Get(alias)
	}
	if r.defaultAlias == "" {
		return Account{}, gmail.NotFoundError("no account given and no default account configured", nil)
	}
	return r.Get(r.defaultAlias)
}

// Add registers a new alias. Aliases are never reused.
func (r *Registry) Add(alias string) (Account, error) {
	if alias == "" {
		return Account{}, gmail.ValidationError("account alias must not be empty")
	}
	if _, ok := r.accounts[alias]; ok {
		return Account{}, gmail.ValidationError("account %q already exists", alias)
	}
	a := &Account{Alias: alias, TokenPath: filepath.Join("tokens", alias+".json")}
	r.accounts[alias] = a
	if r.defaultAlias == "" {
		r.defaultAlias = alias
	}
	return *a, nil
}

// Remove deletes the account and its credential file.
func (r *Registry) Remove(alias string) error {
	a, ok := r.accounts[alias]
	if !ok {
		return gmail.NotFoundError(fmt.Sprintf("account %q not configured", alias), nil)
	}
	if err := os.Remove(r.TokenFile(*a)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token for %q: %w", alias, err)
	}
	delete(r.accounts, alias)
	if r.defaultAlias == alias {
		r.defaultAlias = ""
	}
	return nil
}

// SetDefault marks alias as the default account, clearing any previous one.
func (r *Registry) SetDefault(alias string) error {
	if _, ok := r.accounts[alias]; !ok {
		return gmail.NotFoundError(fmt.Sprintf("account %q not configured", alias), nil)
	}
	r.defaultAlias = alias
	return nil
}

// SetEmail records the granted identity for an account.
func (r *Registry) SetEmail(alias, email string) error {
	a, ok := r.accounts[alias]
	if !ok {
		return gmail.NotFoundError(fmt.Sprintf("account %q not configured", alias), nil)
	}
	a.Email = email
	return nil
}

// TokenFile resolves the account's credential path against the registry
// directory when relative.
func (r *Registry) TokenFile(a Account) string {
	if filepath.IsAbs(a.TokenPath) {
		return a.TokenPath
	}
	return filepath.Join(r.Dir(), a.TokenPath)
}
