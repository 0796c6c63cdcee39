// Package output converts validated manifests into the generated deployment
// file the distributor bootstraps from, with every amount already scaled to
// base units.
package output

// GeneratedRecipient is one recipient with its cap in base units.
type GeneratedRecipient struct {
	Address  string `toml:"address" json:"address"`
	MaxCap   string `toml:"max_cap" json:"max_cap"`
	Priority uint64 `toml:"priority" json:"priority"`
}

// GeneratedToken is one supported token binding.
type GeneratedToken struct {
	Token      string `toml:"token" json:"token"`
	FeedSymbol string `toml:"feed_symbol,omitempty" json:"feed_symbol,omitempty"`
	Decimals   uint8  `toml:"decimals,omitempty" json:"decimals,omitempty"`
}

// GeneratedInstance is one ready-to-submit instance creation request.
type GeneratedInstance struct {
	Name string `toml:"name" json:"name"`

	Creator             string   `toml:"creator" json:"creator"`
	Controller          string   `toml:"controller" json:"controller"`
	ImmutableController bool     `toml:"immutable_controller" json:"immutable_controller"`
	Distributors        []string `toml:"distributors" json:"distributors"`

	AutoNativeDistribution  bool   `toml:"auto_native_distribution" json:"auto_native_distribution"`
	MinAutoDistributeAmount string `toml:"min_auto_distribute_amount,omitempty" json:"min_auto_distribute_amount,omitempty"`

	Variant          string `toml:"variant" json:"variant"`
	NativeFeedSymbol string `toml:"native_feed_symbol,omitempty" json:"native_feed_symbol,omitempty"`

	Tokens     []GeneratedToken     `toml:"tokens,omitempty" json:"tokens,omitempty"`
	Recipients []GeneratedRecipient `toml:"recipients" json:"recipients"`

	CreationID string `toml:"creation_id,omitempty" json:"creation_id,omitempty"`
}

// GeneratedDeployment is the full generated file.
type GeneratedDeployment struct {
	GeneratedAt string              `toml:"generated_at" json:"generated_at"`
	Instances   []GeneratedInstance `toml:"instances" json:"instances"`
}
