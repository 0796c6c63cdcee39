// Package engine implements the waterfall allocation state machine: a
// priority-ordered queue of capped recipients that incoming native or token
// payments are poured through, head first, until every cap is exhausted.
//
// The engine is a pure state machine. The ledger it moves funds on, the price
// feeds it converts with and the host that serializes calls and rolls state
// back on failure are all injected capabilities, so tests can substitute
// deterministic fakes for every one of them.
package engine

import (
	"math/big"

	"github.com/xla-labs/waterfall-hub/distributor/oracle"
)

// Address identifies an account or another waterfall instance on the hosting
// ledger. The empty string is the zero-address sentinel.
type Address string

// ZeroAddress is the sentinel returned when no recipient is current.
const ZeroAddress Address = ""

// IsZero reports whether the address is the zero sentinel.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// RecipientSpec is one row of a setRecipients batch: who, how much at most,
// and where in the service order. Higher priority values are served first.
type RecipientSpec struct {
	Address  Address
	MaxCap   *big.Int
	Priority uint64
}

// RecipientData is the externally visible state of one queued recipient.
type RecipientData struct {
	MaxCap   *big.Int
	Received *big.Int
	Priority uint64
}

// Variant selects the unit recipient caps are denominated in.
type Variant uint8

const (
	// VariantNative denominates caps in the distributed asset's own unit:
	// native wei for native runs, the token's smallest unit for token runs.
	VariantNative Variant = iota

	// VariantUSD denominates caps in 18-decimal USD fixed-point units and
	// converts balances through price feeds before allocating.
	VariantUSD
)

// String returns the config-file spelling of the variant.
func (v Variant) String() string {
	switch v {
	case VariantNative:
		return "native"
	case VariantUSD:
		return "usd"
	default:
		return "unknown"
	}
}

// Asset is the ledger capability the engine moves funds with. The hosting
// ledger owns all balances; the engine only ever touches them through this
// interface.
type Asset interface {
	// NativeBalance returns the native currency balance of addr.
	NativeBalance(addr Address) *big.Int

	// TransferNative moves native currency. Transfers to addresses with a
	// registered receive hook run the hook synchronously and propagate its
	// error, which is how a payout into a nested waterfall instance
	// triggers that instance's own distribution mid-call.
	TransferNative(from, to Address, amount *big.Int) error

	// TokenBalance returns addr's balance of the given fungible token.
	TokenBalance(token, addr Address) *big.Int

	// TransferToken moves fungible tokens. Token transfers never fire
	// receive hooks; nested token distribution is driven by the host via
	// the token recipient hook instead.
	TransferToken(token, from, to Address, amount *big.Int) error
}

// TokenRecipientHook is invoked by the engine after a token payout lands,
// letting the host chain a nested instance's own token distribution onto the
// payout. A nil hook disables chaining.
type TokenRecipientHook func(recipient, token Address) error

// TokenConfig binds one supported token, optionally with the price feed the
// USD variant needs for it.
type TokenConfig struct {
	Token Address
	Feed  oracle.PriceFeed
}
