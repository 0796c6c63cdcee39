// Package factory creates and configures waterfall instances. It owns the
// platform-wide fee settings, stamps them into every instance it creates,
// and keeps creation idempotent through caller-provided creation ids.
package factory

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/xla-labs/waterfall-hub/distributor/engine"
	"github.com/xla-labs/waterfall-hub/distributor/oracle"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "factory").Logger()
}

// ErrCreationIDProcessed rejects a creation request whose id was already
// used, making retried submissions idempotent.
var ErrCreationIDProcessed = errors.New("creation id already processed")

// Params is everything the creator chooses about a new instance. The
// platform fee and wallet are the factory's to set, not the creator's.
type Params struct {
	Controller          engine.Address
	ImmutableController bool
	Distributors        []engine.Address

	AutoNativeDistribution  bool
	MinAutoDistributeAmount *big.Int

	Variant         engine.Variant
	NativeUsdFeed   oracle.PriceFeed
	SupportedTokens []engine.TokenConfig
	MaxPriceAge     time.Duration

	Recipients []engine.RecipientSpec

	// CreationID deduplicates retried creation requests. Empty skips the
	// dedup check.
	CreationID string
}

// Factory mints waterfall instances against one asset ledger.
type Factory struct {
	owner engine.Address
	asset engine.Asset

	platformFee    uint64
	platformWallet engine.Address

	nonce     uint64
	processed map[string]bool
}

func New(owner engine.Address, asset engine.Asset) *Factory {
	return &Factory{
		owner:     owner,
		asset:     asset,
		processed: make(map[string]bool),
	}
}

// SetPlatformFee sets the fee stamped into instances created from now on.
// Existing instances keep the fee they were created with. Owner only.
func (f *Factory) SetPlatformFee(caller engine.Address, fee uint64) error {
	if caller != f.owner {
		return fmt.Errorf("%w: %s", engine.ErrOnlyOwner, caller)
	}
	if fee > engine.FeeDenominator {
		return fmt.Errorf("%w: %d of %d", engine.ErrInvalidFeePercentage, fee, engine.FeeDenominator)
	}
	f.platformFee = fee
	log.Info().Uint64("fee", fee).Msg("platform fee updated")
	return nil
}

// SetPlatformWallet sets the wallet fees are paid to. Owner only.
func (f *Factory) SetPlatformWallet(caller, wallet engine.Address) error {
	if caller != f.owner {
		return fmt.Errorf("%w: %s", engine.ErrOnlyOwner, caller)
	}
	f.platformWallet = wallet
	log.Info().Str("wallet", string(wallet)).Msg("platform wallet updated")
	return nil
}

func (f *Factory) PlatformFee() uint64            { return f.platformFee }
func (f *Factory) PlatformWallet() engine.Address { return f.platformWallet }
func (f *Factory) Owner() engine.Address          { return f.owner }

// CreateWaterfall derives a fresh instance address, builds the instance with
// the factory's current platform fee settings and the caller as owner, and
// installs the initial recipient generation. The returned instance is fully
// initialized but not yet registered with any hub.
func (f *Factory) CreateWaterfall(caller engine.Address, p Params) (*engine.Waterfall, error) {
	if caller.IsZero() {
		return nil, fmt.Errorf("creator address is empty")
	}
	if p.CreationID != "" && f.processed[p.CreationID] {
		return nil, fmt.Errorf("%w: %s", ErrCreationIDProcessed, p.CreationID)
	}

	addr, err := DeriveInstanceAddress(caller, p.CreationID, f.nonce)
	if err != nil {
		return nil, err
	}

	wf := engine.NewWaterfall(addr, f.asset)
	cfg := engine.Config{
		Owner:                   caller,
		Controller:              p.Controller,
		ImmutableController:     p.ImmutableController,
		Distributors:            p.Distributors,
		AutoNativeDistribution:  p.AutoNativeDistribution,
		MinAutoDistributeAmount: p.MinAutoDistributeAmount,
		PlatformFee:             f.platformFee,
		PlatformWallet:          f.platformWallet,
		Variant:                 p.Variant,
		NativeUsdFeed:           p.NativeUsdFeed,
		SupportedTokens:         p.SupportedTokens,
		MaxPriceAge:             p.MaxPriceAge,
	}
	if err := wf.Initialize(cfg, p.Recipients); err != nil {
		return nil, fmt.Errorf("failed to initialize instance: %w", err)
	}

	f.nonce++
	if p.CreationID != "" {
		f.processed[p.CreationID] = true
	}

	log.Info().
		Str("address", string(addr)).
		Str("owner", string(caller)).
		Str("variant", p.Variant.String()).
		Int("recipients", len(p.Recipients)).
		Msg("waterfall instance created")
	return wf, nil
}
