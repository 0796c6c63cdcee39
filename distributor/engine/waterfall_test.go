package engine_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/xla-labs/waterfall-hub/distributor/engine"
	"github.com/xla-labs/waterfall-hub/distributor/ledger"
	"github.com/xla-labs/waterfall-hub/distributor/oracle"
	"github.com/zeebo/assert"
)

const (
	ownerAddr      = engine.Address("wf1owner")
	controllerAddr = engine.Address("wf1controller")
	botAddr        = engine.Address("wf1bot")
	platformAddr   = engine.Address("wf1platform")
	instanceAddr   = engine.Address("wf1instance")
	funderAddr     = engine.Address("wf1funder")
	tokenAddr      = engine.Address("wf1token")

	addrA = engine.Address("wf1recipa")
	addrB = engine.Address("wf1recipb")
	addrC = engine.Address("wf1recipc")
)

// eth scales to the native asset's 18 decimals. usd is the same scale: caps
// in the USD variant are 18-decimal fixed point.
func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func usd(n int64) *big.Int { return eth(n) }

func baseConfig() engine.Config {
	return engine.Config{
		Owner:          ownerAddr,
		Controller:     controllerAddr,
		Distributors:   []engine.Address{botAddr},
		PlatformWallet: platformAddr,
	}
}

func newInstance(t *testing.T, l *ledger.Ledger, cfg engine.Config, recipients []engine.RecipientSpec) *engine.Waterfall {
	t.Helper()
	wf := engine.NewWaterfall(instanceAddr, l)
	assert.NoError(t, wf.Initialize(cfg, recipients))
	l.RegisterHook(instanceAddr, wf.OnReceiveNative)
	return wf
}

// fund pays the instance native funds through a regular transfer, so the
// receive hook fires the way an on-ledger payment would.
func fund(t *testing.T, l *ledger.Ledger, amount *big.Int) {
	t.Helper()
	assert.NoError(t, l.MintNative(funderAddr, amount))
	assert.NoError(t, l.TransferNative(funderAddr, instanceAddr, amount))
}

func TestWaterfall_NativeSequentialFill(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 100, 10),
		recipient(string(addrB), 10, 20),
	})

	fund(t, l, big.NewInt(50))
	assert.NoError(t, wf.RedistributeNative(botAddr))

	// B has the higher priority: its 10 fill first, A takes the rest.
	assert.Equal(t, l.NativeBalance(addrB).Int64(), int64(10))
	assert.Equal(t, l.NativeBalance(addrA).Int64(), int64(40))
	assert.Equal(t, l.NativeBalance(instanceAddr).Sign(), 0)
	assert.Equal(t, wf.CurrentRecipient(), addrA)
	assert.Equal(t, wf.NumberOfRecipients(), 1)

	data, ok := wf.RecipientData(addrA)
	assert.True(t, ok)
	assert.Equal(t, data.Received.Int64(), int64(40))

	// A's remaining 60 fill on the next run; surplus stays as float.
	fund(t, l, big.NewInt(70))
	assert.NoError(t, wf.RedistributeNative(botAddr))
	assert.Equal(t, l.NativeBalance(addrA).Int64(), int64(100))
	assert.Equal(t, l.NativeBalance(instanceAddr).Int64(), int64(10))
	assert.Equal(t, wf.NumberOfRecipients(), 0)
	assert.Equal(t, wf.CurrentRecipient(), engine.ZeroAddress)
}

func TestWaterfall_EmptyQueueRunIsNoop(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 10, 0),
	})

	fund(t, l, big.NewInt(10))
	assert.NoError(t, wf.RedistributeNative(botAddr))
	assert.Equal(t, wf.NumberOfRecipients(), 0)

	// With nobody left in the queue further funds just sit, and no platform
	// fee is taken on the no-op run.
	fund(t, l, big.NewInt(30))
	assert.NoError(t, wf.RedistributeNative(botAddr))
	assert.Equal(t, l.NativeBalance(instanceAddr).Int64(), int64(30))
	assert.Equal(t, l.NativeBalance(platformAddr).Sign(), 0)
}

func TestWaterfall_PlatformFeeNative(t *testing.T) {
	cfg := baseConfig()
	cfg.PlatformFee = 5_000_000 // 50%

	l := ledger.New()
	wf := newInstance(t, l, cfg, []engine.RecipientSpec{
		recipient(string(addrA), 350, 0),
	})

	fund(t, l, big.NewInt(1000))
	assert.NoError(t, wf.RedistributeNative(botAddr))

	assert.Equal(t, l.NativeBalance(platformAddr).Int64(), int64(500))
	assert.Equal(t, l.NativeBalance(addrA).Int64(), int64(350))
	assert.Equal(t, l.NativeBalance(instanceAddr).Int64(), int64(150))
	assert.Equal(t, wf.NumberOfRecipients(), 0)
}

func TestWaterfall_PlatformFeeToken(t *testing.T) {
	cfg := baseConfig()
	cfg.PlatformFee = 5_000_000
	cfg.SupportedTokens = []engine.TokenConfig{{Token: tokenAddr}}

	l := ledger.New()
	wf := newInstance(t, l, cfg, []engine.RecipientSpec{
		recipient(string(addrA), 350_000, 0),
	})

	assert.NoError(t, l.MintToken(tokenAddr, instanceAddr, big.NewInt(1_000_000)))
	assert.NoError(t, wf.RedistributeToken(botAddr, tokenAddr))

	assert.Equal(t, l.TokenBalance(tokenAddr, platformAddr).Int64(), int64(500_000))
	assert.Equal(t, l.TokenBalance(tokenAddr, addrA).Int64(), int64(350_000))
	assert.Equal(t, l.TokenBalance(tokenAddr, instanceAddr).Int64(), int64(150_000))
}

func TestWaterfall_TokenNotSupported(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 10, 0),
	})

	err := wf.RedistributeToken(botAddr, tokenAddr)
	assert.True(t, errors.Is(err, engine.ErrTokenNotSupported))

	// The owner can register the token later.
	assert.NoError(t, wf.SetTokenPriceFeed(ownerAddr, tokenAddr, nil))
	assert.NoError(t, l.MintToken(tokenAddr, instanceAddr, big.NewInt(7)))
	assert.NoError(t, wf.RedistributeToken(botAddr, tokenAddr))
	assert.Equal(t, l.TokenBalance(tokenAddr, addrA).Int64(), int64(7))
}

func TestWaterfall_AutoNativeDistribution(t *testing.T) {
	cfg := baseConfig()
	cfg.AutoNativeDistribution = true
	cfg.MinAutoDistributeAmount = big.NewInt(100)

	l := ledger.New()
	wf := newInstance(t, l, cfg, []engine.RecipientSpec{
		recipient(string(addrA), 1000, 0),
	})

	// Below the threshold the payment sits on the instance.
	fund(t, l, big.NewInt(99))
	assert.Equal(t, l.NativeBalance(instanceAddr).Int64(), int64(99))
	assert.Equal(t, l.NativeBalance(addrA).Sign(), 0)

	// At the threshold the whole balance distributes, float included.
	fund(t, l, big.NewInt(100))
	assert.Equal(t, l.NativeBalance(instanceAddr).Sign(), 0)
	assert.Equal(t, l.NativeBalance(addrA).Int64(), int64(199))

	data, ok := wf.RecipientData(addrA)
	assert.True(t, ok)
	assert.Equal(t, data.Received.Int64(), int64(199))
}

func TestWaterfall_RedistributeRequiresDistributor(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 10, 0),
	})

	fund(t, l, big.NewInt(10))
	err := wf.RedistributeNative(funderAddr)
	assert.True(t, errors.Is(err, engine.ErrOnlyDistributor))

	// The owner is not implicitly a distributor either.
	err = wf.RedistributeNative(ownerAddr)
	assert.True(t, errors.Is(err, engine.ErrOnlyDistributor))

	assert.NoError(t, wf.SetDistributor(ownerAddr, funderAddr, true))
	assert.True(t, wf.IsDistributor(funderAddr))
	assert.NoError(t, wf.RedistributeNative(funderAddr))

	assert.NoError(t, wf.SetDistributor(ownerAddr, funderAddr, false))
	assert.False(t, wf.IsDistributor(funderAddr))

	err = wf.SetDistributor(funderAddr, funderAddr, true)
	assert.True(t, errors.Is(err, engine.ErrOnlyOwner))
}

func TestWaterfall_SetRecipientsReplacesGeneration(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 100, 10),
		recipient(string(addrB), 10, 20),
	})

	assert.NoError(t, wf.SetRecipients(controllerAddr, []engine.RecipientSpec{
		recipient(string(addrC), 40, 0),
		recipient(string(addrA), 60, 5),
	}))

	// The old generation is gone, head included.
	assert.Equal(t, wf.NumberOfRecipients(), 2)
	assert.Equal(t, wf.CurrentRecipient(), addrA)
	_, ok := wf.RecipientData(addrB)
	assert.False(t, ok)

	data, ok := wf.RecipientData(addrA)
	assert.True(t, ok)
	assert.Equal(t, data.Received.Sign(), 0)
	assert.Equal(t, data.MaxCap.Int64(), int64(60))
}

func TestWaterfall_SetRecipientsPendingGuard(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 20, 0),
	})

	// Undistributed funds owed to a live queue block replacement.
	fund(t, l, big.NewInt(50))
	err := wf.SetRecipients(controllerAddr, []engine.RecipientSpec{
		recipient(string(addrB), 10, 0),
	})
	assert.True(t, errors.Is(err, engine.ErrPendingDistribution))

	// After the run the queue is empty; the 30 float is unowed and the next
	// generation may claim it.
	assert.NoError(t, wf.RedistributeNative(botAddr))
	assert.Equal(t, l.NativeBalance(instanceAddr).Int64(), int64(30))
	assert.NoError(t, wf.SetRecipients(controllerAddr, []engine.RecipientSpec{
		recipient(string(addrB), 100, 0),
	}))

	assert.NoError(t, wf.RedistributeNative(botAddr))
	assert.Equal(t, l.NativeBalance(addrB).Int64(), int64(30))
}

func TestWaterfall_SetRecipientsPendingGuardToken(t *testing.T) {
	cfg := baseConfig()
	cfg.SupportedTokens = []engine.TokenConfig{{Token: tokenAddr}}

	l := ledger.New()
	wf := newInstance(t, l, cfg, []engine.RecipientSpec{
		recipient(string(addrA), 20, 0),
	})

	// A supported-token balance alone blocks replacement, even with zero
	// native on the instance.
	assert.NoError(t, l.MintToken(tokenAddr, instanceAddr, big.NewInt(5)))
	err := wf.SetRecipients(controllerAddr, []engine.RecipientSpec{
		recipient(string(addrB), 10, 0),
	})
	assert.True(t, errors.Is(err, engine.ErrPendingDistribution))

	// Draining the token clears the guard.
	assert.NoError(t, wf.RedistributeToken(botAddr, tokenAddr))
	assert.Equal(t, l.TokenBalance(tokenAddr, instanceAddr).Sign(), 0)
	assert.NoError(t, wf.SetRecipients(controllerAddr, []engine.RecipientSpec{
		recipient(string(addrB), 10, 0),
	}))
	assert.Equal(t, wf.CurrentRecipient(), addrB)
}

func TestWaterfall_SetRecipientsAuth(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 10, 0),
	})

	err := wf.SetRecipients(ownerAddr, []engine.RecipientSpec{
		recipient(string(addrB), 10, 0),
	})
	assert.True(t, errors.Is(err, engine.ErrOnlyController))

	err = wf.SetRecipients(controllerAddr, nil)
	assert.True(t, errors.Is(err, engine.ErrNoRecipients))
}

func TestWaterfall_ControllerManagement(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 10, 0),
	})

	err := wf.SetController(controllerAddr, funderAddr)
	assert.True(t, errors.Is(err, engine.ErrOnlyOwner))

	assert.NoError(t, wf.SetController(ownerAddr, funderAddr))
	assert.Equal(t, wf.Controller(), funderAddr)

	// The new controller drives queue replacement from here on.
	assert.NoError(t, wf.SetRecipients(funderAddr, []engine.RecipientSpec{
		recipient(string(addrB), 10, 0),
	}))
}

func TestWaterfall_TransferOwnership(t *testing.T) {
	l := ledger.New()
	wf := newInstance(t, l, baseConfig(), []engine.RecipientSpec{
		recipient(string(addrA), 10, 0),
	})

	err := wf.TransferOwnership(controllerAddr, funderAddr)
	assert.True(t, errors.Is(err, engine.ErrOnlyOwner))

	err = wf.TransferOwnership(ownerAddr, engine.ZeroAddress)
	assert.Error(t, err)
	assert.Equal(t, wf.Owner(), ownerAddr)

	assert.NoError(t, wf.TransferOwnership(ownerAddr, funderAddr))
	assert.Equal(t, wf.Owner(), funderAddr)

	// Owner-only operations follow the role, old owner included.
	err = wf.SetDistributor(ownerAddr, addrB, true)
	assert.True(t, errors.Is(err, engine.ErrOnlyOwner))
	assert.NoError(t, wf.SetDistributor(funderAddr, addrB, true))
	assert.True(t, wf.IsDistributor(addrB))
}

func TestWaterfall_ImmutableController(t *testing.T) {
	cfg := baseConfig()
	cfg.ImmutableController = true

	l := ledger.New()
	wf := newInstance(t, l, cfg, []engine.RecipientSpec{
		recipient(string(addrA), 10, 0),
	})

	err := wf.SetController(ownerAddr, funderAddr)
	assert.True(t, errors.Is(err, engine.ErrImmutableController))

	// Non-owners still fail the owner check first.
	err = wf.SetController(funderAddr, funderAddr)
	assert.True(t, errors.Is(err, engine.ErrOnlyOwner))
}

func TestWaterfall_InitializeValidation(t *testing.T) {
	l := ledger.New()
	recipients := []engine.RecipientSpec{recipient(string(addrA), 10, 0)}

	cfg := baseConfig()
	cfg.PlatformFee = engine.FeeDenominator + 1
	err := engine.NewWaterfall(instanceAddr, l).Initialize(cfg, recipients)
	assert.True(t, errors.Is(err, engine.ErrInvalidFeePercentage))

	err = engine.NewWaterfall(instanceAddr, l).Initialize(baseConfig(), nil)
	assert.True(t, errors.Is(err, engine.ErrNoRecipients))

	cfg = baseConfig()
	cfg.Variant = engine.VariantUSD
	err = engine.NewWaterfall(instanceAddr, l).Initialize(cfg, recipients)
	assert.Error(t, err)

	wf := engine.NewWaterfall(instanceAddr, l)
	assert.NoError(t, wf.Initialize(baseConfig(), recipients))
	err = wf.Initialize(baseConfig(), recipients)
	assert.True(t, errors.Is(err, engine.ErrAlreadyInitialized))
}

func TestWaterfall_UninitializedRejectsEverything(t *testing.T) {
	wf := engine.NewWaterfall(instanceAddr, ledger.New())

	assert.True(t, errors.Is(wf.RedistributeNative(botAddr), engine.ErrNotInitialized))
	assert.True(t, errors.Is(wf.RedistributeToken(botAddr, tokenAddr), engine.ErrNotInitialized))
	err := wf.SetRecipients(controllerAddr, []engine.RecipientSpec{recipient(string(addrA), 1, 0)})
	assert.True(t, errors.Is(err, engine.ErrNotInitialized))
}

func usdConfig(feed oracle.PriceFeed) engine.Config {
	cfg := baseConfig()
	cfg.Variant = engine.VariantUSD
	cfg.NativeUsdFeed = feed
	cfg.MaxPriceAge = time.Hour
	return cfg
}

func TestWaterfall_USDNativeFullFill(t *testing.T) {
	// 1 native unit = 1000 USD, 8 feed decimals.
	feed := oracle.NewFixedFeed("native/usd", big.NewInt(1000_0000_0000), 8)

	l := ledger.New()
	wf := newInstance(t, l, usdConfig(feed), []engine.RecipientSpec{
		{Address: addrA, MaxCap: usd(5000), Priority: 0},
	})

	fund(t, l, eth(5))
	assert.NoError(t, wf.RedistributeNative(botAddr))

	assert.Equal(t, l.NativeBalance(addrA).Cmp(eth(5)), 0)
	assert.Equal(t, l.NativeBalance(instanceAddr).Sign(), 0)
	assert.Equal(t, wf.NumberOfRecipients(), 0)
}

func TestWaterfall_USDNativePartialLeavesFloat(t *testing.T) {
	feed := oracle.NewFixedFeed("native/usd", big.NewInt(1000_0000_0000), 8)

	l := ledger.New()
	wf := newInstance(t, l, usdConfig(feed), []engine.RecipientSpec{
		{Address: addrA, MaxCap: usd(1000), Priority: 0},
	})

	fund(t, l, eth(5))
	assert.NoError(t, wf.RedistributeNative(botAddr))

	// 1000 USD of the 5000 USD inflow fit the cap; the back-conversion pays
	// 1 native unit and the remaining 4 stay as float.
	assert.Equal(t, l.NativeBalance(addrA).Cmp(eth(1)), 0)
	assert.Equal(t, l.NativeBalance(instanceAddr).Cmp(eth(4)), 0)
	assert.Equal(t, wf.NumberOfRecipients(), 0)
}

func TestWaterfall_USDProgressTrackedInUSD(t *testing.T) {
	feed := oracle.NewFixedFeed("native/usd", big.NewInt(1000_0000_0000), 8)

	l := ledger.New()
	wf := newInstance(t, l, usdConfig(feed), []engine.RecipientSpec{
		{Address: addrA, MaxCap: usd(5000), Priority: 0},
	})

	fund(t, l, eth(2))
	assert.NoError(t, wf.RedistributeNative(botAddr))

	data, ok := wf.RecipientData(addrA)
	assert.True(t, ok)
	assert.Equal(t, data.Received.Cmp(usd(2000)), 0)
	assert.Equal(t, wf.CurrentRecipient(), addrA)

	// The price doubles; the remaining 3000 USD of cap now cost 1.5 native.
	feed.SetPrice(big.NewInt(2000_0000_0000))
	fund(t, l, eth(2))
	assert.NoError(t, wf.RedistributeNative(botAddr))

	data, ok = wf.RecipientData(addrA)
	assert.True(t, ok)
	assert.Equal(t, data.Received.Cmp(usd(5000)), 0)
	half := new(big.Int).Quo(eth(1), big.NewInt(2))
	assert.Equal(t, l.NativeBalance(addrA).Cmp(new(big.Int).Add(eth(3), half)), 0)
	assert.Equal(t, l.NativeBalance(instanceAddr).Cmp(half), 0)
	assert.Equal(t, wf.NumberOfRecipients(), 0)
}

func TestWaterfall_USDToken(t *testing.T) {
	nativeFeed := oracle.NewFixedFeed("native/usd", big.NewInt(1000_0000_0000), 8)
	tokenFeed := oracle.NewFixedFeed("token/usd", big.NewInt(2_0000_0000), 8) // 1 token = 2 USD

	cfg := usdConfig(nativeFeed)
	cfg.SupportedTokens = []engine.TokenConfig{{Token: tokenAddr, Feed: tokenFeed}}

	l := ledger.New()
	wf := newInstance(t, l, cfg, []engine.RecipientSpec{
		{Address: addrA, MaxCap: big.NewInt(150), Priority: 0},
	})

	assert.NoError(t, l.MintToken(tokenAddr, instanceAddr, big.NewInt(100)))
	assert.NoError(t, wf.RedistributeToken(botAddr, tokenAddr))

	// 100 tokens = 200 USD; the 150 USD cap pays out 75 tokens and the rest
	// stays as token float.
	assert.Equal(t, l.TokenBalance(tokenAddr, addrA).Int64(), int64(75))
	assert.Equal(t, l.TokenBalance(tokenAddr, instanceAddr).Int64(), int64(25))
	assert.Equal(t, wf.NumberOfRecipients(), 0)
}

func TestWaterfall_USDTokenRequiresFeed(t *testing.T) {
	nativeFeed := oracle.NewFixedFeed("native/usd", big.NewInt(1000_0000_0000), 8)

	cfg := usdConfig(nativeFeed)
	cfg.SupportedTokens = []engine.TokenConfig{{Token: tokenAddr, Feed: nil}}

	l := ledger.New()
	wf := newInstance(t, l, cfg, []engine.RecipientSpec{
		{Address: addrA, MaxCap: usd(100), Priority: 0},
	})

	assert.NoError(t, l.MintToken(tokenAddr, instanceAddr, big.NewInt(10)))
	err := wf.RedistributeToken(botAddr, tokenAddr)
	assert.True(t, errors.Is(err, engine.ErrTokenPriceFeedMissing))
}

func TestWaterfall_USDOracleFailuresAbortRun(t *testing.T) {
	feed := oracle.NewFixedFeed("native/usd", big.NewInt(1000_0000_0000), 8)

	l := ledger.New()
	wf := newInstance(t, l, usdConfig(feed), []engine.RecipientSpec{
		{Address: addrA, MaxCap: usd(5000), Priority: 0},
	})
	fund(t, l, eth(1))

	feed.SetUpdatedAt(time.Now().Add(-2 * time.Hour))
	err := wf.RedistributeNative(botAddr)
	assert.True(t, errors.Is(err, oracle.ErrStalePrice))

	feed.SetUpdatedAt(time.Now())
	feed.SetPrice(big.NewInt(0))
	err = wf.RedistributeNative(botAddr)
	assert.True(t, errors.Is(err, oracle.ErrInvalidPrice))

	// Nothing moved and no progress was recorded.
	assert.Equal(t, l.NativeBalance(instanceAddr).Cmp(eth(1)), 0)
	data, ok := wf.RecipientData(addrA)
	assert.True(t, ok)
	assert.Equal(t, data.Received.Sign(), 0)
}
