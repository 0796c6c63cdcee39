// Package oracle provides the price feed capability used by USD denominated
// waterfall instances. A feed reports the latest price of an asset pair along
// with the fixed-point precision of the answer and the time it was produced,
// so callers can refuse to convert with stale or broken data.
package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	// ErrInvalidPrice is returned when a feed reports a zero or negative answer.
	ErrInvalidPrice = errors.New("oracle: invalid price answer")
	// ErrStalePrice is returned when a feed answer is older than the allowed age.
	ErrStalePrice = errors.New("oracle: stale price answer")
)

// Answer is a single price observation from a feed.
// Price is a fixed-point integer scaled by 10^Decimals.
type Answer struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// PriceFeed is the capability a waterfall instance queries before converting
// between an asset's own unit and the unit its caps are denominated in.
type PriceFeed interface {
	// LatestAnswer returns the most recent price observation.
	LatestAnswer() (Answer, error)

	// Description returns a human readable pair description, e.g. "ETH/USD".
	Description() string
}

// Validate checks an answer for the failure modes that must abort a
// distribution run: zero price, negative price, and staleness. A maxAge of
// zero disables the staleness check.
func Validate(a Answer, maxAge time.Duration, now time.Time) error {
	if a.Price == nil || a.Price.Sign() <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, a.Price)
	}
	if maxAge > 0 && now.Sub(a.UpdatedAt) > maxAge {
		return fmt.Errorf("%w: answered at %s, older than %s", ErrStalePrice, a.UpdatedAt.Format(time.RFC3339), maxAge)
	}
	return nil
}

// FixedFeed is a deterministic in-memory feed. It backs rates pinned in the
// deployment config and the fakes used throughout the test suite.
type FixedFeed struct {
	mu          sync.RWMutex
	price       *big.Int
	decimals    uint8
	updatedAt   time.Time
	description string
}

// NewFixedFeed creates a feed that always answers with the given fixed-point
// price. Until SetUpdatedAt is called the answer reports the query time as its
// timestamp, so it never trips the staleness check.
func NewFixedFeed(description string, price *big.Int, decimals uint8) *FixedFeed {
	return &FixedFeed{
		price:       new(big.Int).Set(price),
		decimals:    decimals,
		description: description,
	}
}

// LatestAnswer implements PriceFeed.
func (f *FixedFeed) LatestAnswer() (Answer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	updatedAt := f.updatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return Answer{
		Price:     new(big.Int).Set(f.price),
		Decimals:  f.decimals,
		UpdatedAt: updatedAt,
	}, nil
}

// Description implements PriceFeed.
func (f *FixedFeed) Description() string {
	return f.description
}

// SetPrice updates the fixed answer.
func (f *FixedFeed) SetPrice(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = new(big.Int).Set(price)
}

// SetUpdatedAt pins the answer timestamp. Useful for exercising the
// staleness rejection path.
func (f *FixedFeed) SetUpdatedAt(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedAt = t
}
