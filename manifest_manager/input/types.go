// Package input defines and loads the human-readable deployment manifests.
// Operators write one manifest per waterfall instance, with amounts in
// human units ("1.5" native), and the generator turns them into base-unit
// creation requests for the distributor API.
package input

// RecipientManifest is one recipient line in a manifest. MaxCap is a human
// decimal amount in the cap unit of the instance's variant.
type RecipientManifest struct {
	Address  string `toml:"address"`
	MaxCap   string `toml:"max_cap"`
	Priority uint64 `toml:"priority"`
}

// TokenManifest declares a supported token.
type TokenManifest struct {
	Token      string `toml:"token"`
	FeedSymbol string `toml:"feed_symbol"`
	Decimals   uint8  `toml:"decimals"`
}

// ManifestInput is one instance deployment manifest.
type ManifestInput struct {
	Name string `toml:"name"`

	Creator             string   `toml:"creator"`
	Controller          string   `toml:"controller"`
	ImmutableController bool     `toml:"immutable_controller"`
	Distributors        []string `toml:"distributors"`

	AutoNativeDistribution  bool   `toml:"auto_native_distribution"`
	MinAutoDistributeAmount string `toml:"min_auto_distribute_amount"`

	// Variant is "native" or "usd".
	Variant          string `toml:"variant"`
	NativeFeedSymbol string `toml:"native_feed_symbol"`

	// CapDecimals scales human cap amounts into base units. Defaults to 18,
	// the native and USD fixed-point precision.
	CapDecimals *uint8 `toml:"cap_decimals"`

	Tokens     []TokenManifest     `toml:"tokens"`
	Recipients []RecipientManifest `toml:"recipients"`

	CreationID string `toml:"creation_id"`
}

// DefaultCapDecimals applies when a manifest does not set cap_decimals.
const DefaultCapDecimals uint8 = 18
