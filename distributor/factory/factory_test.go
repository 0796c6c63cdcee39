package factory_test

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/xla-labs/waterfall-hub/distributor/engine"
	"github.com/xla-labs/waterfall-hub/distributor/factory"
	"github.com/xla-labs/waterfall-hub/distributor/ledger"
	"github.com/zeebo/assert"
)

const (
	platformOwner = engine.Address("wf1platformowner")
	platformWal   = engine.Address("wf1platformwallet")
	creator       = engine.Address("wf1creator")
	ctrl          = engine.Address("wf1ctrl")
	bot           = engine.Address("wf1bot")
	recip         = engine.Address("wf1recip")
)

func params(creationID string) factory.Params {
	return factory.Params{
		Controller:   ctrl,
		Distributors: []engine.Address{bot},
		Recipients: []engine.RecipientSpec{
			{Address: recip, MaxCap: big.NewInt(100), Priority: 0},
		},
		CreationID: creationID,
	}
}

func TestFactory_CreateWaterfall(t *testing.T) {
	l := ledger.New()
	f := factory.New(platformOwner, l)
	assert.NoError(t, f.SetPlatformWallet(platformOwner, platformWal))
	assert.NoError(t, f.SetPlatformFee(platformOwner, 2_500_000))

	wf, err := f.CreateWaterfall(creator, params("create-1"))
	assert.NoError(t, err)
	assert.NotNil(t, wf)
	t.Logf("instance address: %s", wf.Address())

	assert.True(t, strings.HasPrefix(string(wf.Address()), factory.AddressPrefix+"1"))
	assert.True(t, factory.ValidInstanceAddress(wf.Address()))
	assert.Equal(t, wf.Owner(), creator)
	assert.Equal(t, wf.Controller(), ctrl)
	assert.True(t, wf.IsDistributor(bot))
	assert.Equal(t, wf.PlatformFee(), uint64(2_500_000))
	assert.Equal(t, wf.CurrentRecipient(), recip)

	// Each creation gets its own address.
	other, err := f.CreateWaterfall(creator, params("create-2"))
	assert.NoError(t, err)
	assert.True(t, wf.Address() != other.Address())
}

func TestFactory_CreationIDDedup(t *testing.T) {
	f := factory.New(platformOwner, ledger.New())

	_, err := f.CreateWaterfall(creator, params("once"))
	assert.NoError(t, err)

	_, err = f.CreateWaterfall(creator, params("once"))
	assert.True(t, errors.Is(err, factory.ErrCreationIDProcessed))

	// An empty creation id skips the dedup check entirely.
	_, err = f.CreateWaterfall(creator, params(""))
	assert.NoError(t, err)
	_, err = f.CreateWaterfall(creator, params(""))
	assert.NoError(t, err)
}

func TestFactory_PlatformSettings(t *testing.T) {
	f := factory.New(platformOwner, ledger.New())

	err := f.SetPlatformFee(creator, 1)
	assert.True(t, errors.Is(err, engine.ErrOnlyOwner))
	err = f.SetPlatformWallet(creator, platformWal)
	assert.True(t, errors.Is(err, engine.ErrOnlyOwner))

	err = f.SetPlatformFee(platformOwner, engine.FeeDenominator+1)
	assert.True(t, errors.Is(err, engine.ErrInvalidFeePercentage))

	// The cap itself is a legal fee.
	assert.NoError(t, f.SetPlatformFee(platformOwner, engine.FeeDenominator))
	assert.Equal(t, f.PlatformFee(), uint64(engine.FeeDenominator))
}

func TestDeriveInstanceAddress_Deterministic(t *testing.T) {
	a1, err := factory.DeriveInstanceAddress(creator, "id", 0)
	assert.NoError(t, err)
	a2, err := factory.DeriveInstanceAddress(creator, "id", 0)
	assert.NoError(t, err)
	assert.Equal(t, a1, a2)

	a3, err := factory.DeriveInstanceAddress(creator, "id", 1)
	assert.NoError(t, err)
	assert.True(t, a1 != a3)

	assert.False(t, factory.ValidInstanceAddress(engine.Address("notbech32")))
}
