package engine

import (
	"fmt"
	"math/big"
	"sort"
)

// RecipientEntry is one pending beneficiary in the live queue.
// Received never exceeds MaxCap; both are denominated in the unit the
// instance's variant prescribes.
type RecipientEntry struct {
	Address  Address
	MaxCap   *big.Int
	Received *big.Int
	Priority uint64
}

// Remaining returns how much the entry can still receive before hitting its cap.
func (e *RecipientEntry) Remaining() *big.Int {
	return new(big.Int).Sub(e.MaxCap, e.Received)
}

func (e *RecipientEntry) clone() *RecipientEntry {
	return &RecipientEntry{
		Address:  e.Address,
		MaxCap:   new(big.Int).Set(e.MaxCap),
		Received: new(big.Int).Set(e.Received),
		Priority: e.Priority,
	}
}

// RecipientQueue is the ordered working set of recipients for the current
// generation. The head of the queue is the recipient currently receiving
// funds. Entries are sorted by descending priority, so higher priority values
// are served first, with insertion order preserved on ties.
type RecipientQueue struct {
	entries []*RecipientEntry
}

// NewRecipientQueue returns an empty queue. Replace installs the first
// generation.
func NewRecipientQueue() *RecipientQueue {
	return &RecipientQueue{}
}

// Replace discards the current generation and installs a new one. Every new
// entry starts with zero received, regardless of any progress the previous
// generation had made. Duplicate addresses within the batch are rejected.
func (q *RecipientQueue) Replace(specs []RecipientSpec) error {
	seen := make(map[Address]bool, len(specs))
	entries := make([]*RecipientEntry, 0, len(specs))

	for _, spec := range specs {
		if spec.Address.IsZero() {
			return fmt.Errorf("recipient address is empty")
		}
		if spec.MaxCap == nil || spec.MaxCap.Sign() < 0 {
			return fmt.Errorf("%w: cap for recipient %s", ErrInvalidAmount, spec.Address)
		}
		if seen[spec.Address] {
			return fmt.Errorf("%w: %s", ErrRecipientAlreadyAdded, spec.Address)
		}
		seen[spec.Address] = true

		entries = append(entries, &RecipientEntry{
			Address:  spec.Address,
			MaxCap:   new(big.Int).Set(spec.MaxCap),
			Received: new(big.Int),
			Priority: spec.Priority,
		})
	}

	// Stable sort keeps insertion order for equal priorities.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority > entries[j].Priority
	})

	q.entries = entries
	return nil
}

// Len returns the number of recipients still in the queue, head included.
func (q *RecipientQueue) Len() int {
	return len(q.entries)
}

// Empty reports whether the queue has no recipients left.
func (q *RecipientQueue) Empty() bool {
	return len(q.entries) == 0
}

// Current returns the address of the recipient currently receiving funds, or
// the zero-address sentinel when the queue is empty.
func (q *RecipientQueue) Current() Address {
	if len(q.entries) == 0 {
		return ZeroAddress
	}
	return q.entries[0].Address
}

// HeadRemaining returns how much the current recipient can still receive, or
// zero when the queue is empty.
func (q *RecipientQueue) HeadRemaining() *big.Int {
	if len(q.entries) == 0 {
		return new(big.Int)
	}
	return q.entries[0].Remaining()
}

// At returns the entry at the given position in service order.
func (q *RecipientQueue) At(i int) (*RecipientEntry, error) {
	if i < 0 || i >= len(q.entries) {
		return nil, fmt.Errorf("%w: %d of %d", ErrRecipientIndexOutOfRange, i, len(q.entries))
	}
	return q.entries[i], nil
}

// Data returns a copy of the state of the recipient with the given address.
func (q *RecipientQueue) Data(addr Address) (RecipientData, bool) {
	for _, e := range q.entries {
		if e.Address == addr {
			return RecipientData{
				MaxCap:   new(big.Int).Set(e.MaxCap),
				Received: new(big.Int).Set(e.Received),
				Priority: e.Priority,
			}, true
		}
	}
	return RecipientData{}, false
}

// advance removes the fully capped head and promotes the next entry.
// Only the allocator calls this, after crediting the head up to its cap.
func (q *RecipientQueue) advance() {
	if len(q.entries) == 0 {
		return
	}
	q.entries = q.entries[1:]
}

// snapshot deep-copies the queue state so the host can restore it if the
// surrounding call fails after the allocator has already mutated entries.
func (q *RecipientQueue) snapshot() []*RecipientEntry {
	entries := make([]*RecipientEntry, len(q.entries))
	for i, e := range q.entries {
		entries[i] = e.clone()
	}
	return entries
}

func (q *RecipientQueue) restore(entries []*RecipientEntry) {
	q.entries = entries
}
