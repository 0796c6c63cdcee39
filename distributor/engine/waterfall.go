package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/xla-labs/waterfall-hub/distributor/oracle"
)

// FeeDenominator is the fixed precision platform fees are expressed in:
// parts per ten million, so 5_000_000 is a 50% fee.
const FeeDenominator = 10_000_000

// Config is the creation-time configuration of one waterfall instance.
// The deployer hands it over exactly once through Initialize.
type Config struct {
	Owner      Address
	Controller Address

	// ImmutableController permanently locks the controller set at creation.
	ImmutableController bool

	// Distributors are the addresses allowed to trigger distribution runs.
	Distributors []Address

	// AutoNativeDistribution makes inbound native payments of at least
	// MinAutoDistributeAmount trigger a distribution run synchronously.
	AutoNativeDistribution  bool
	MinAutoDistributeAmount *big.Int

	// PlatformFee is skimmed off the top of every distribution run and paid
	// to PlatformWallet. Parts per ten million, at most FeeDenominator.
	PlatformFee    uint64
	PlatformWallet Address

	Variant Variant

	// NativeUsdFeed converts native balances to the cap unit. Required for
	// VariantUSD, ignored otherwise.
	NativeUsdFeed oracle.PriceFeed

	// SupportedTokens are the fungible tokens this instance will distribute.
	// For VariantUSD each needs a price feed before it can be distributed.
	SupportedTokens []TokenConfig

	// MaxPriceAge rejects oracle answers older than this. Zero disables the
	// staleness check.
	MaxPriceAge time.Duration
}

// Waterfall is one revenue-share waterfall instance: a recipient queue, its
// distribution configuration and the distribution paths that drain the
// instance's balances through the queue.
//
// A Waterfall performs no locking and no rollback of its own. The hub
// serializes calls and restores queue and ledger state when a call fails,
// mirroring the one-transaction-at-a-time, all-or-nothing execution model of
// the hosting ledger.
type Waterfall struct {
	addr  Address
	asset Asset

	initialized bool

	owner               Address
	controller          Address
	immutableController bool
	distributors        map[Address]bool

	autoNative        bool
	minAutoDistribute *big.Int

	platformFee    uint64
	platformWallet Address

	variant     Variant
	nativeFeed  oracle.PriceFeed
	tokenFeeds  map[Address]oracle.PriceFeed
	maxPriceAge time.Duration

	queue *RecipientQueue

	// tokenHook chains a nested instance's token distribution onto a token
	// payout. Set by the hub, nil outside a hub.
	tokenHook TokenRecipientHook

	now func() time.Time
}

// NewWaterfall creates an uninitialized instance bound to its ledger address.
// Nothing works until the deployer calls Initialize.
func NewWaterfall(addr Address, asset Asset) *Waterfall {
	return &Waterfall{
		addr:  addr,
		asset: asset,
		queue: NewRecipientQueue(),
		now:   time.Now,
	}
}

// Initialize applies the one-time creation configuration and installs the
// initial recipient generation. A second call fails.
func (w *Waterfall) Initialize(cfg Config, recipients []RecipientSpec) error {
	if w.initialized {
		return ErrAlreadyInitialized
	}
	if cfg.Owner.IsZero() {
		return fmt.Errorf("owner address is empty")
	}
	if cfg.PlatformFee > FeeDenominator {
		return fmt.Errorf("%w: %d of %d", ErrInvalidFeePercentage, cfg.PlatformFee, FeeDenominator)
	}
	if cfg.PlatformFee > 0 && cfg.PlatformWallet.IsZero() {
		return fmt.Errorf("platform fee set but platform wallet is empty")
	}
	if cfg.Variant == VariantUSD && cfg.NativeUsdFeed == nil {
		return fmt.Errorf("usd variant requires a native/USD price feed")
	}
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	w.owner = cfg.Owner
	w.controller = cfg.Controller
	w.immutableController = cfg.ImmutableController

	w.distributors = make(map[Address]bool, len(cfg.Distributors))
	for _, d := range cfg.Distributors {
		w.distributors[d] = true
	}

	w.autoNative = cfg.AutoNativeDistribution
	w.minAutoDistribute = new(big.Int)
	if cfg.MinAutoDistributeAmount != nil {
		w.minAutoDistribute.Set(cfg.MinAutoDistributeAmount)
	}

	w.platformFee = cfg.PlatformFee
	w.platformWallet = cfg.PlatformWallet

	w.variant = cfg.Variant
	w.nativeFeed = cfg.NativeUsdFeed
	w.maxPriceAge = cfg.MaxPriceAge

	w.tokenFeeds = make(map[Address]oracle.PriceFeed, len(cfg.SupportedTokens))
	for _, tc := range cfg.SupportedTokens {
		w.tokenFeeds[tc.Token] = tc.Feed
	}

	if err := w.queue.Replace(recipients); err != nil {
		return err
	}

	w.initialized = true
	return nil
}

// SetTokenRecipientHook installs the host callback that chains nested token
// distribution. The hub calls this when it registers the instance.
func (w *Waterfall) SetTokenRecipientHook(hook TokenRecipientHook) {
	w.tokenHook = hook
}

// SetRecipients replaces the whole recipient queue with a new generation.
// Controller only. Replacement is refused while the current generation is
// still owed the instance's undistributed balance, so in-flight funds are
// never orphaned; with an empty queue any float is unowed and carries over to
// the new generation.
func (w *Waterfall) SetRecipients(caller Address, specs []RecipientSpec) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	if caller != w.controller || caller.IsZero() {
		return fmt.Errorf("%w: %s", ErrOnlyController, caller)
	}
	if len(specs) == 0 {
		return ErrNoRecipients
	}
	if !w.queue.Empty() && w.hasPendingBalance() {
		return ErrPendingDistribution
	}
	return w.queue.Replace(specs)
}

// hasPendingBalance reports whether the instance holds anything that a
// distribution run would pay to the current generation.
func (w *Waterfall) hasPendingBalance() bool {
	if w.asset.NativeBalance(w.addr).Sign() > 0 {
		return true
	}
	for token := range w.tokenFeeds {
		if w.asset.TokenBalance(token, w.addr).Sign() > 0 {
			return true
		}
	}
	return false
}

// SetController changes the controller. Owner only; fails on instances
// created with an immutable controller.
func (w *Waterfall) SetController(caller, controller Address) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	if caller != w.owner {
		return fmt.Errorf("%w: %s", ErrOnlyOwner, caller)
	}
	if w.immutableController {
		return ErrImmutableController
	}
	w.controller = controller
	return nil
}

// TransferOwnership hands the owner role to newOwner. Owner only; the role
// cannot be renounced to the zero address.
func (w *Waterfall) TransferOwnership(caller, newOwner Address) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	if caller != w.owner {
		return fmt.Errorf("%w: %s", ErrOnlyOwner, caller)
	}
	if newOwner.IsZero() {
		return fmt.Errorf("new owner address is empty")
	}
	w.owner = newOwner
	return nil
}

// SetDistributor grants or revokes the distributor role. Owner only.
func (w *Waterfall) SetDistributor(caller, distributor Address, enabled bool) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	if caller != w.owner {
		return fmt.Errorf("%w: %s", ErrOnlyOwner, caller)
	}
	if enabled {
		w.distributors[distributor] = true
	} else {
		delete(w.distributors, distributor)
	}
	return nil
}

// SetTokenPriceFeed registers a token as supported and, for the USD variant,
// binds the price feed its distribution converts through. Owner only.
func (w *Waterfall) SetTokenPriceFeed(caller, token Address, feed oracle.PriceFeed) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	if caller != w.owner {
		return fmt.Errorf("%w: %s", ErrOnlyOwner, caller)
	}
	if token.IsZero() {
		return fmt.Errorf("token address is empty")
	}
	w.tokenFeeds[token] = feed
	return nil
}

// OnReceiveNative is the implicit receive path: the ledger invokes it after
// crediting an inbound native payment. Payments at or above the auto
// distribution threshold trigger a full distribution run synchronously, in
// the same host call as the payment itself.
func (w *Waterfall) OnReceiveNative(from Address, amount *big.Int) error {
	if !w.initialized {
		// Funds sent before initialization just sit as float.
		return nil
	}
	if !w.autoNative {
		return nil
	}
	if amount.Cmp(w.minAutoDistribute) < 0 {
		return nil
	}
	return w.distributeNative()
}

// RedistributeNative distributes the instance's whole native balance through
// the queue. Distributor only.
func (w *Waterfall) RedistributeNative(caller Address) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	if !w.distributors[caller] {
		return fmt.Errorf("%w: %s", ErrOnlyDistributor, caller)
	}
	return w.distributeNative()
}

// RedistributeToken distributes the instance's whole balance of one
// supported token through the queue. Distributor only. There is no receive
// hook for tokens, so this is the only way token balances move.
func (w *Waterfall) RedistributeToken(caller, token Address) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	if !w.distributors[caller] {
		return fmt.Errorf("%w: %s", ErrOnlyDistributor, caller)
	}

	feed, ok := w.tokenFeeds[token]
	if !ok {
		if w.variant == VariantUSD {
			return fmt.Errorf("%w: %s", ErrTokenPriceFeedMissing, token)
		}
		return fmt.Errorf("%w: %s", ErrTokenNotSupported, token)
	}
	if w.variant == VariantUSD && feed == nil {
		return fmt.Errorf("%w: %s", ErrTokenPriceFeedMissing, token)
	}

	return w.distributeToken(token, feed)
}

// distributeNative runs the waterfall over the native balance.
func (w *Waterfall) distributeNative() error {
	balance := w.asset.NativeBalance(w.addr)
	if balance.Sign() == 0 || w.queue.Empty() {
		// Nothing to do, or no current recipient: funds stay as float for a
		// later generation or a manual draw.
		return nil
	}

	var unit denomUnit = identityUnit{}
	if w.variant == VariantUSD {
		pu, err := newPricedUnit(w.nativeFeed, w.maxPriceAge, w.now())
		if err != nil {
			return err
		}
		unit = pu
	}

	fee, distributable := w.skimFee(balance)
	credits, _ := allocate(w.queue, unit.toCap(distributable))

	// Queue state is final from here on: every transfer below may re-enter
	// through a nested instance's receive hook, and what it observes must be
	// the post-credit queue.
	if fee.Sign() > 0 {
		if err := w.asset.TransferNative(w.addr, w.platformWallet, fee); err != nil {
			return fmt.Errorf("pay platform fee: %w", err)
		}
	}
	for _, c := range credits {
		payout := unit.fromCap(c.Amount)
		if payout.Sign() == 0 {
			continue
		}
		if err := w.asset.TransferNative(w.addr, c.Recipient, payout); err != nil {
			return fmt.Errorf("pay recipient %s: %w", c.Recipient, err)
		}
	}
	return nil
}

// distributeToken runs the waterfall over one token balance. feed is nil for
// the native variant, where token caps use the token's own unit.
func (w *Waterfall) distributeToken(token Address, feed oracle.PriceFeed) error {
	balance := w.asset.TokenBalance(token, w.addr)
	if balance.Sign() == 0 || w.queue.Empty() {
		return nil
	}

	var unit denomUnit = identityUnit{}
	if w.variant == VariantUSD {
		pu, err := newPricedUnit(feed, w.maxPriceAge, w.now())
		if err != nil {
			return err
		}
		unit = pu
	}

	fee, distributable := w.skimFee(balance)
	credits, _ := allocate(w.queue, unit.toCap(distributable))

	if fee.Sign() > 0 {
		if err := w.asset.TransferToken(token, w.addr, w.platformWallet, fee); err != nil {
			return fmt.Errorf("pay platform fee: %w", err)
		}
	}
	for _, c := range credits {
		payout := unit.fromCap(c.Amount)
		if payout.Sign() == 0 {
			continue
		}
		if err := w.asset.TransferToken(token, w.addr, c.Recipient, payout); err != nil {
			return fmt.Errorf("pay recipient %s: %w", c.Recipient, err)
		}
		if w.tokenHook != nil {
			if err := w.tokenHook(c.Recipient, token); err != nil {
				return fmt.Errorf("nested distribution for %s: %w", c.Recipient, err)
			}
		}
	}
	return nil
}

// skimFee splits an amount into the platform fee and the distributable rest.
func (w *Waterfall) skimFee(amount *big.Int) (fee, distributable *big.Int) {
	fee = new(big.Int)
	if w.platformFee > 0 {
		fee.Mul(amount, new(big.Int).SetUint64(w.platformFee))
		fee.Quo(fee, big.NewInt(FeeDenominator))
	}
	return fee, new(big.Int).Sub(amount, fee)
}

// Address returns the instance's own ledger address.
func (w *Waterfall) Address() Address {
	return w.addr
}

// Variant returns the cap denomination variant.
func (w *Waterfall) Variant() Variant {
	return w.variant
}

// Owner returns the instance owner.
func (w *Waterfall) Owner() Address {
	return w.owner
}

// Controller returns the current controller.
func (w *Waterfall) Controller() Address {
	return w.controller
}

// IsDistributor reports whether addr may trigger distribution runs.
func (w *Waterfall) IsDistributor(addr Address) bool {
	return w.distributors[addr]
}

// PlatformFee returns the fee in parts per ten million.
func (w *Waterfall) PlatformFee() uint64 {
	return w.platformFee
}

// CurrentRecipient returns the queue head, or the zero-address sentinel when
// the queue is empty.
func (w *Waterfall) CurrentRecipient() Address {
	return w.queue.Current()
}

// NumberOfRecipients returns how many recipients remain in the queue.
func (w *Waterfall) NumberOfRecipients() int {
	return w.queue.Len()
}

// RecipientAt returns the address at the given position in service order.
func (w *Waterfall) RecipientAt(i int) (Address, error) {
	e, err := w.queue.At(i)
	if err != nil {
		return ZeroAddress, err
	}
	return e.Address, nil
}

// RecipientData returns cap, received and priority of a queued recipient.
func (w *Waterfall) RecipientData(addr Address) (RecipientData, bool) {
	return w.queue.Data(addr)
}

// SupportedTokens returns the tokens this instance can distribute.
func (w *Waterfall) SupportedTokens() []Address {
	tokens := make([]Address, 0, len(w.tokenFeeds))
	for t := range w.tokenFeeds {
		tokens = append(tokens, t)
	}
	return tokens
}

// QueueSnapshot is an opaque copy of queue state taken at a call boundary.
type QueueSnapshot struct {
	entries []*RecipientEntry
}

// SnapshotQueue deep-copies the queue so the hub can restore it if the
// surrounding call fails after allocation has already credited entries.
func (w *Waterfall) SnapshotQueue() QueueSnapshot {
	return QueueSnapshot{entries: w.queue.snapshot()}
}

// RestoreQueue reinstates a snapshot taken by SnapshotQueue.
func (w *Waterfall) RestoreQueue(s QueueSnapshot) {
	w.queue.restore(s.entries)
}
