package input

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError collects everything wrong with one manifest so operators
// can fix a file in one pass.
type ValidationError struct {
	Manifest string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest %s has %d problem(s): %v", e.Manifest, len(e.Problems), e.Problems)
}

// Validate checks a manifest for everything the generator would otherwise
// trip over later. Returns nil when the manifest is clean.
func Validate(m *ManifestInput) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if m.Creator == "" {
		add("creator is required")
	}
	if m.Controller == "" {
		add("controller is required")
	}
	if len(m.Distributors) == 0 {
		add("at least one distributor is required")
	}

	switch m.Variant {
	case "", "native":
	case "usd":
		if m.NativeFeedSymbol == "" {
			add("usd variant requires native_feed_symbol")
		}
	default:
		add("unknown variant %q", m.Variant)
	}

	if m.MinAutoDistributeAmount != "" {
		if _, err := decimal.NewFromString(m.MinAutoDistributeAmount); err != nil {
			add("min_auto_distribute_amount %q is not a decimal", m.MinAutoDistributeAmount)
		}
	}

	if len(m.Recipients) == 0 {
		add("at least one recipient is required")
	}
	seen := make(map[string]bool, len(m.Recipients))
	for i, r := range m.Recipients {
		if r.Address == "" {
			add("recipient %d has no address", i)
			continue
		}
		if seen[r.Address] {
			add("recipient %s appears more than once", r.Address)
		}
		seen[r.Address] = true

		maxCap, err := decimal.NewFromString(r.MaxCap)
		if err != nil {
			add("recipient %s max_cap %q is not a decimal", r.Address, r.MaxCap)
		} else if maxCap.IsNegative() {
			add("recipient %s max_cap is negative", r.Address)
		}
	}

	seenTokens := make(map[string]bool, len(m.Tokens))
	for _, tok := range m.Tokens {
		if tok.Token == "" {
			add("token entry without address")
			continue
		}
		if seenTokens[tok.Token] {
			add("token %s appears more than once", tok.Token)
		}
		seenTokens[tok.Token] = true
		if m.Variant == "usd" && tok.FeedSymbol == "" {
			add("token %s needs a feed_symbol under the usd variant", tok.Token)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Manifest: m.Name, Problems: problems}
	}
	return nil
}
