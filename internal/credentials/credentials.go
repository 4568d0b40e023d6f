// Package credentials resolves per-currency provider credentials.
//
// A Registry is loaded once from JSON at startup and never mutated afterwards,
// so lookups are lock-free and safe from any goroutine.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/shopspring/decimal"
)

// Credentials is one provider's key bundle for a currency (and optionally an environment).
type Credentials struct {
	provider     string
	currency     string
	environment  string
	publicKey    string
	privateKey   string
	apiURL       string
	operatorName string
	arcadeGames  map[string]struct{}
	conversion   decimal.Decimal
}

func (c *Credentials) Provider() string     { return c.provider }
func (c *Credentials) Currency() string     { return c.currency }
func (c *Credentials) Environment() string  { return c.environment }
func (c *Credentials) PublicKey() string    { return c.publicKey }
func (c *Credentials) PrivateKey() string   { return c.privateKey }
func (c *Credentials) APIURL() string       { return c.apiURL }
func (c *Credentials) OperatorName() string { return c.operatorName }

// ConversionFactor is provider units to wallet units, e.g. 1000 for IDR quoted in thousands.
func (c *Credentials) ConversionFactor() decimal.Decimal { return c.conversion }

// ArcadeGames returns the arcade game codes in sorted order.
func (c *Credentials) ArcadeGames() []string {
	games := make([]string, 0, len(c.arcadeGames))
	for g := range c.arcadeGames {
		games = append(games, g)
	}
	sort.Strings(games)
	return games
}

// IsArcade reports whether gameCode is on the arcade list.
func (c *Credentials) IsArcade(gameCode string) bool {
	_, ok := c.arcadeGames[gameCode]
	return ok
}

// ToWallet converts a provider amount to wallet units.
func (c *Credentials) ToWallet(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.conversion)
}

// FromWallet converts a wallet balance to provider units, rounded down to cents.
func (c *Credentials) FromWallet(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(c.conversion).RoundDown(2)
}

// Resolver maps currencies to one provider's credentials.
type Resolver struct {
	provider string
	entries  map[string]*Credentials
}

func entryKey(currency, env string) string {
	return strings.ToUpper(currency) + "@" + strings.ToLower(env)
}

// ByCurrency returns the default-environment credentials for currency.
func (r *Resolver) ByCurrency(currency string) (*Credentials, error) {
	return r.ByCurrencyAndEnv(currency, "")
}

// ByCurrencyAndEnv returns credentials for a currency in a named environment,
// falling back to the default environment.
func (r *Resolver) ByCurrencyAndEnv(currency, env string) (*Credentials, error) {
	if r == nil {
		return nil, domain.ErrUnsupportedCurrency(currency)
	}
	if env != "" {
		if c, ok := r.entries[entryKey(currency, env)]; ok {
			return c, nil
		}
	}
	if c, ok := r.entries[entryKey(currency, "")]; ok {
		return c, nil
	}
	return nil, domain.ErrUnsupportedCurrency(currency)
}

// Currencies lists the configured currencies.
func (r *Resolver) Currencies() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.entries {
		if !seen[c.currency] {
			seen[c.currency] = true
			out = append(out, c.currency)
		}
	}
	sort.Strings(out)
	return out
}

// Registry holds one Resolver per provider.
type Registry struct {
	resolvers map[string]*Resolver
}

// Resolver returns the resolver for a provider.
func (r *Registry) Resolver(provider string) (*Resolver, error) {
	res, ok := r.resolvers[provider]
	if !ok {
		return nil, fmt.Errorf("no credentials configured for provider %q", provider)
	}
	return res, nil
}

// Providers lists the configured provider keys.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.resolvers))
	for p := range r.resolvers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Entry is the JSON shape of one credential bundle.
type Entry struct {
	Currency         string   `json:"currency"`
	Environment      string   `json:"environment,omitempty"`
	PublicKey        string   `json:"public_key"`
	PrivateKey       string   `json:"private_key"`
	APIURL           string   `json:"api_url"`
	OperatorName     string   `json:"operator_name"`
	ArcadeGames      []string `json:"arcade_games,omitempty"`
	ConversionFactor string   `json:"conversion_factor,omitempty"`
}

type fileFormat struct {
	Providers map[string][]Entry `json:"providers"`
}

// Load reads and parses a credentials file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from JSON.
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	reg := &Registry{resolvers: make(map[string]*Resolver)}
	for provider, entries := range f.Providers {
		res, err := NewResolver(provider, entries)
		if err != nil {
			return nil, err
		}
		reg.resolvers[provider] = res
	}
	return reg, nil
}

// NewResolver validates entries and builds a resolver.
func NewResolver(provider string, entries []Entry) (*Resolver, error) {
	res := &Resolver{provider: provider, entries: make(map[string]*Credentials, len(entries))}
	for i, e := range entries {
		if err := domain.ValidateCurrency(strings.ToUpper(e.Currency)); err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", provider, i, err)
		}
		if e.PrivateKey == "" || e.APIURL == "" {
			return nil, fmt.Errorf("%s entry %d (%s): private_key and api_url are required", provider, i, e.Currency)
		}

		factor := decimal.NewFromInt(1)
		if e.ConversionFactor != "" {
			f, err := decimal.NewFromString(e.ConversionFactor)
			if err != nil || !f.IsPositive() {
				return nil, fmt.Errorf("%s entry %d (%s): invalid conversion_factor %q", provider, i, e.Currency, e.ConversionFactor)
			}
			factor = f
		}

		arcade := make(map[string]struct{}, len(e.ArcadeGames))
		for _, g := range e.ArcadeGames {
			arcade[g] = struct{}{}
		}

		key := entryKey(e.Currency, e.Environment)
		if _, dup := res.entries[key]; dup {
			return nil, fmt.Errorf("%s: duplicate credentials for %s", provider, key)
		}
		res.entries[key] = &Credentials{
			provider:     provider,
			currency:     strings.ToUpper(e.Currency),
			environment:  e.Environment,
			publicKey:    e.PublicKey,
			privateKey:   e.PrivateKey,
			apiURL:       strings.TrimRight(e.APIURL, "/"),
			operatorName: e.OperatorName,
			arcadeGames:  arcade,
			conversion:   factor,
		}
	}
	return res, nil
}
