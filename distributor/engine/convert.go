package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/xla-labs/waterfall-hub/distributor/oracle"
)

// denomUnit converts between an asset's own unit and the unit the queue's
// caps are denominated in. One denomUnit is built per distribution run and
// both conversion directions reuse the same observed price, which is what
// makes the round trip exact up to integer truncation.
type denomUnit interface {
	toCap(raw *big.Int) *big.Int
	fromCap(capAmount *big.Int) *big.Int
}

// identityUnit is the native-variant unit: caps share the asset's own unit
// and no conversion happens.
type identityUnit struct{}

func (identityUnit) toCap(raw *big.Int) *big.Int         { return new(big.Int).Set(raw) }
func (identityUnit) fromCap(capAmount *big.Int) *big.Int { return new(big.Int).Set(capAmount) }

// pricedUnit converts through a fixed-point oracle price:
//
//	cap = raw * price / 10^decimals
//	raw = cap * 10^decimals / price
//
// Both directions floor. The forward direction's truncation loses at most a
// fraction of one cap unit; the backward direction's truncation leaves the
// dust on the instance as float rather than over-paying any recipient.
type pricedUnit struct {
	price *big.Int
	scale *big.Int // 10^decimals
}

func (u pricedUnit) toCap(raw *big.Int) *big.Int {
	out := new(big.Int).Mul(raw, u.price)
	return out.Quo(out, u.scale)
}

func (u pricedUnit) fromCap(capAmount *big.Int) *big.Int {
	out := new(big.Int).Mul(capAmount, u.scale)
	return out.Quo(out, u.price)
}

// newPricedUnit fetches and validates a single price observation from the
// feed and fixes it for the whole run.
func newPricedUnit(feed oracle.PriceFeed, maxAge time.Duration, now time.Time) (pricedUnit, error) {
	answer, err := feed.LatestAnswer()
	if err != nil {
		return pricedUnit{}, fmt.Errorf("price feed %s: %w", feed.Description(), err)
	}
	if err := oracle.Validate(answer, maxAge, now); err != nil {
		return pricedUnit{}, fmt.Errorf("price feed %s: %w", feed.Description(), err)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(answer.Decimals)), nil)
	return pricedUnit{price: answer.Price, scale: scale}, nil
}
