package genesis

import (
	"context"
	"fmt"
	"os"
	"strings"

	"deposit-governance/internal/access"
	"deposit-governance/internal/ledger"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is the on-disk genesis document
//
//	whitelist:
//	  - address: alice
//	    note: founding member
//	balances:
//	  - address: alice
//	    amount: "500"
//	allowances:
//	  - owner: alice
//	    spender: treasury
//	    amount: "500"
type File struct {
	Whitelist  []WhitelistEntry `yaml:"whitelist"`
	Balances   []Balance        `yaml:"balances"`
	Allowances []Allowance      `yaml:"allowances"`
}

type WhitelistEntry struct {
	Address string `yaml:"address"`
	Note    string `yaml:"note"`
}

type Balance struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

type Allowance struct {
	Owner   string `yaml:"owner"`
	Spender string `yaml:"spender"`
	Amount  string `yaml:"amount"`
}

// Summary counts what Apply wrote
type Summary struct {
	Whitelisted int
	Balances    int
	Allowances  int
}

// LoadFile reads and validates a genesis file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a genesis document and validates every entry
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Validate() error {
	for i, w := range f.Whitelist {
		if strings.TrimSpace(w.Address) == "" {
			return fmt.Errorf("whitelist[%d]: address is required", i)
		}
	}
	for i, b := range f.Balances {
		if strings.TrimSpace(b.Address) == "" {
			return fmt.Errorf("balances[%d]: address is required", i)
		}
		if _, err := parseAmount(b.Amount); err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
	}
	for i, a := range f.Allowances {
		if strings.TrimSpace(a.Owner) == "" || strings.TrimSpace(a.Spender) == "" {
			return fmt.Errorf("allowances[%d]: owner and spender are required", i)
		}
		if _, err := parseAmount(a.Amount); err != nil {
			return fmt.Errorf("allowances[%d]: %w", i, err)
		}
	}
	return nil
}

// Apply seeds the whitelist, balances and allowances. Balances are credited,
// so applying the same file twice doubles them.
func Apply(ctx context.Context, f *File, registry *access.Registry, tokens *ledger.DBLedger) (*Summary, error) {
	summary := &Summary{}

	for _, w := range f.Whitelist {
		if err := registry.Add(ctx, w.Address, w.Note); err != nil {
			return summary, fmt.Errorf("failed to whitelist %s: %w", w.Address, err)
		}
		summary.Whitelisted++
	}

	for _, b := range f.Balances {
		amount, _ := parseAmount(b.Amount)
		if err := tokens.SeedBalance(ctx, b.Address, amount); err != nil {
			return summary, fmt.Errorf("failed to seed balance of %s: %w", b.Address, err)
		}
		summary.Balances++
	}

	for _, a := range f.Allowances {
		amount, _ := parseAmount(a.Amount)
		if err := tokens.Approve(ctx, a.Owner, a.Spender, amount); err != nil {
			return summary, fmt.Errorf("failed to approve %s for %s: %w", a.Spender, a.Owner, err)
		}
		summary.Allowances++
	}

	log.Info().
		Int("whitelisted", summary.Whitelisted).
		Int("balances", summary.Balances).
		Int("allowances", summary.Allowances).
		Msg("Genesis applied")

	return summary, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", s)
	}
	return amount, nil
}
