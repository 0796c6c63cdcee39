package hub_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/xla-labs/waterfall-hub/distributor/engine"
	"github.com/xla-labs/waterfall-hub/distributor/factory"
	"github.com/xla-labs/waterfall-hub/distributor/hub"
	"github.com/xla-labs/waterfall-hub/distributor/ledger"
	"github.com/xla-labs/waterfall-hub/distributor/oracle"
	"github.com/zeebo/assert"
)

const (
	platformOwner = engine.Address("wf1platformowner")
	platformWal   = engine.Address("wf1platformwallet")
	creator       = engine.Address("wf1creator")
	ctrl          = engine.Address("wf1ctrl")
	bot           = engine.Address("wf1bot")
	funder        = engine.Address("wf1funder")
	leafA         = engine.Address("wf1leafa")
	leafB         = engine.Address("wf1leafb")
	tokenAddr     = engine.Address("wf1token")
)

func newHub(t *testing.T) *hub.Hub {
	t.Helper()
	l := ledger.New()
	f := factory.New(platformOwner, l)
	h := hub.New(l, f)
	assert.NoError(t, h.MintNative(funder, big.NewInt(1_000_000)))
	return h
}

func create(t *testing.T, h *hub.Hub, p factory.Params) engine.Address {
	t.Helper()
	addr, err := h.CreateWaterfall(creator, p)
	assert.NoError(t, err)
	return addr
}

func TestHub_NativeRecursion(t *testing.T) {
	h := newHub(t)

	// The child splits whatever reaches it between two leaves, immediately
	// on receipt.
	child := create(t, h, factory.Params{
		Controller:             ctrl,
		Distributors:           []engine.Address{bot},
		AutoNativeDistribution: true,
		Recipients: []engine.RecipientSpec{
			{Address: leafA, MaxCap: big.NewInt(60), Priority: 20},
			{Address: leafB, MaxCap: big.NewInt(1000), Priority: 10},
		},
	})

	// The parent's sole recipient is the child instance.
	parent := create(t, h, factory.Params{
		Controller:   ctrl,
		Distributors: []engine.Address{bot},
		Recipients: []engine.RecipientSpec{
			{Address: child, MaxCap: big.NewInt(100), Priority: 0},
		},
	})

	assert.NoError(t, h.TransferNative(funder, parent, big.NewInt(100)))
	assert.NoError(t, h.RedistributeNative(bot, parent))

	// The payout cascaded through the child within the same call: both
	// instances drained, the leaves hold everything.
	assert.Equal(t, h.NativeBalance(parent).Sign(), 0)
	assert.Equal(t, h.NativeBalance(child).Sign(), 0)
	assert.Equal(t, h.NativeBalance(leafA).Int64(), int64(60))
	assert.Equal(t, h.NativeBalance(leafB).Int64(), int64(40))
}

func TestHub_TokenRecursion(t *testing.T) {
	h := newHub(t)

	child := create(t, h, factory.Params{
		Controller:      ctrl,
		Distributors:    []engine.Address{bot},
		SupportedTokens: []engine.TokenConfig{{Token: tokenAddr}},
		Recipients: []engine.RecipientSpec{
			{Address: leafA, MaxCap: big.NewInt(500), Priority: 0},
		},
	})
	parent := create(t, h, factory.Params{
		Controller:      ctrl,
		Distributors:    []engine.Address{bot},
		SupportedTokens: []engine.TokenConfig{{Token: tokenAddr}},
		Recipients: []engine.RecipientSpec{
			{Address: child, MaxCap: big.NewInt(300), Priority: 0},
		},
	})

	assert.NoError(t, h.MintToken(tokenAddr, parent, big.NewInt(300)))

	// Without the distributor grant the payout stops at the child.
	assert.NoError(t, h.RedistributeToken(bot, parent, tokenAddr))
	assert.Equal(t, h.TokenBalance(tokenAddr, child).Int64(), int64(300))
	assert.Equal(t, h.TokenBalance(tokenAddr, leafA).Sign(), 0)

	// With it, a token payout to the child cascades.
	assert.NoError(t, h.SetRecipients(ctrl, parent, []engine.RecipientSpec{
		{Address: child, MaxCap: big.NewInt(200), Priority: 0},
	}))
	assert.NoError(t, h.SetDistributor(creator, child, parent, true))
	assert.NoError(t, h.RedistributeToken(bot, child, tokenAddr))
	assert.Equal(t, h.TokenBalance(tokenAddr, leafA).Int64(), int64(300))

	assert.NoError(t, h.MintToken(tokenAddr, parent, big.NewInt(150)))
	assert.NoError(t, h.RedistributeToken(bot, parent, tokenAddr))

	assert.Equal(t, h.TokenBalance(tokenAddr, parent).Sign(), 0)
	assert.Equal(t, h.TokenBalance(tokenAddr, child).Sign(), 0)
	assert.Equal(t, h.TokenBalance(tokenAddr, leafA).Int64(), int64(450))
}

func TestHub_FailedCallRollsBackEverything(t *testing.T) {
	h := newHub(t)

	feed := oracle.NewFixedFeed("native/usd", big.NewInt(1000_0000_0000), 8)
	child := create(t, h, factory.Params{
		Controller:             ctrl,
		Distributors:           []engine.Address{bot},
		AutoNativeDistribution: true,
		Variant:                engine.VariantUSD,
		NativeUsdFeed:          feed,
		MaxPriceAge:            time.Hour,
		Recipients: []engine.RecipientSpec{
			{Address: leafA, MaxCap: big.NewInt(1_000_000), Priority: 0},
		},
	})
	parent := create(t, h, factory.Params{
		Controller:   ctrl,
		Distributors: []engine.Address{bot},
		Recipients: []engine.RecipientSpec{
			{Address: child, MaxCap: big.NewInt(100), Priority: 0},
		},
	})

	assert.NoError(t, h.TransferNative(funder, parent, big.NewInt(100)))

	// The child's oracle goes stale, so its receive hook fails after the
	// parent has already credited its queue and paid out.
	feed.SetUpdatedAt(time.Now().Add(-2 * time.Hour))
	err := h.RedistributeNative(bot, parent)
	assert.True(t, errors.Is(err, oracle.ErrStalePrice))

	// Nothing survived the failed call: balances and queue progress are
	// back to the pre-call state.
	assert.Equal(t, h.NativeBalance(parent).Int64(), int64(100))
	assert.Equal(t, h.NativeBalance(child).Sign(), 0)

	wf, err := h.Instance(parent)
	assert.NoError(t, err)
	data, ok := wf.RecipientData(child)
	assert.True(t, ok)
	assert.Equal(t, data.Received.Sign(), 0)
	assert.Equal(t, wf.NumberOfRecipients(), 1)

	// With a fresh price the same call goes through.
	feed.SetUpdatedAt(time.Now())
	assert.NoError(t, h.RedistributeNative(bot, parent))
	assert.Equal(t, h.NativeBalance(parent).Sign(), 0)
	assert.Equal(t, h.NativeBalance(child).Sign(), 0)
	assert.Equal(t, h.NativeBalance(leafA).Int64(), int64(100))
}

func TestHub_UnknownInstance(t *testing.T) {
	h := newHub(t)

	err := h.RedistributeNative(bot, engine.Address("wf1missing"))
	assert.True(t, errors.Is(err, hub.ErrInstanceNotFound))
	_, err = h.Instance(engine.Address("wf1missing"))
	assert.True(t, errors.Is(err, hub.ErrInstanceNotFound))
}

func TestHub_CreationIDDedupThroughHub(t *testing.T) {
	h := newHub(t)

	p := factory.Params{
		Controller:   ctrl,
		Distributors: []engine.Address{bot},
		Recipients: []engine.RecipientSpec{
			{Address: leafA, MaxCap: big.NewInt(10), Priority: 0},
		},
		CreationID: "dup",
	}
	_, err := h.CreateWaterfall(creator, p)
	assert.NoError(t, err)
	_, err = h.CreateWaterfall(creator, p)
	assert.True(t, errors.Is(err, factory.ErrCreationIDProcessed))
}
