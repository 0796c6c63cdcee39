package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xla-labs/waterfall-hub/manifest_manager/input"
)

// NativeDecimals is the base-unit precision of native amounts.
const NativeDecimals uint8 = 18

// ConvertManifest scales one validated manifest into a creation request in
// base units. Human amounts that do not fit the precision are rejected
// rather than silently truncated.
func ConvertManifest(m *input.ManifestInput) (GeneratedInstance, error) {
	capDecimals := input.DefaultCapDecimals
	if m.CapDecimals != nil {
		capDecimals = *m.CapDecimals
	}

	variant := m.Variant
	if variant == "" {
		variant = "native"
	}

	gen := GeneratedInstance{
		Name:                   m.Name,
		Creator:                m.Creator,
		Controller:             m.Controller,
		ImmutableController:    m.ImmutableController,
		Distributors:           m.Distributors,
		AutoNativeDistribution: m.AutoNativeDistribution,
		Variant:                variant,
		NativeFeedSymbol:       m.NativeFeedSymbol,
		CreationID:             m.CreationID,
	}

	if m.MinAutoDistributeAmount != "" {
		scaled, err := scaleAmount(m.MinAutoDistributeAmount, NativeDecimals)
		if err != nil {
			return GeneratedInstance{}, fmt.Errorf("min_auto_distribute_amount: %w", err)
		}
		gen.MinAutoDistributeAmount = scaled
	}

	for _, r := range m.Recipients {
		scaled, err := scaleAmount(r.MaxCap, capDecimals)
		if err != nil {
			return GeneratedInstance{}, fmt.Errorf("recipient %s max_cap: %w", r.Address, err)
		}
		gen.Recipients = append(gen.Recipients, GeneratedRecipient{
			Address:  r.Address,
			MaxCap:   scaled,
			Priority: r.Priority,
		})
	}

	for _, tok := range m.Tokens {
		gen.Tokens = append(gen.Tokens, GeneratedToken{
			Token:      tok.Token,
			FeedSymbol: tok.FeedSymbol,
			Decimals:   tok.Decimals,
		})
	}

	return gen, nil
}

// ConvertAll converts every manifest and assembles the deployment file, with
// instances in stable name order.
func ConvertAll(manifests map[string]*input.ManifestInput) (*GeneratedDeployment, error) {
	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}
	sort.Strings(names)

	deployment := &GeneratedDeployment{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, name := range names {
		gen, err := ConvertManifest(manifests[name])
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", name, err)
		}
		deployment.Instances = append(deployment.Instances, gen)
	}
	return deployment, nil
}

// scaleAmount shifts a human decimal amount into base units.
func scaleAmount(human string, decimals uint8) (string, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", human, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("amount %q is negative", human)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return "", fmt.Errorf("amount %q has more than %d decimal places", human, decimals)
	}
	return scaled.BigInt().String(), nil
}
