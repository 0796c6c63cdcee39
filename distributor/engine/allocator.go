package engine

import "math/big"

// Allocation is one recipient credit produced by a distribution run,
// expressed in the unit the queue's caps use.
type Allocation struct {
	Recipient Address
	Amount    *big.Int
}

// allocate pours amount into the queue: the head is filled until either the
// amount runs out or the head reaches its cap, in which case the head is
// retired and the next recipient in priority order continues absorbing the
// rest. No recipient is skipped and no recipient ever receives past its cap.
//
// Returns the per-recipient credits in payout order and the unallocated
// remainder, which is zero unless the queue emptied mid-run. The queue is
// fully mutated before allocate returns; payouts happen strictly afterwards,
// so re-entrant reads during payout always observe post-credit state.
func allocate(q *RecipientQueue, amount *big.Int) ([]Allocation, *big.Int) {
	var credits []Allocation
	remaining := new(big.Int).Set(amount)

	for remaining.Sign() > 0 && !q.Empty() {
		head := q.entries[0]
		room := head.Remaining()

		if remaining.Cmp(room) < 0 {
			// Partial fill: the head absorbs everything and stays current.
			head.Received.Add(head.Received, remaining)
			credits = append(credits, Allocation{
				Recipient: head.Address,
				Amount:    new(big.Int).Set(remaining),
			})
			remaining.SetInt64(0)
			break
		}

		// Full fill: cap the head exactly and move on with the rest.
		if room.Sign() > 0 {
			head.Received.Add(head.Received, room)
			credits = append(credits, Allocation{
				Recipient: head.Address,
				Amount:    room,
			})
			remaining.Sub(remaining, room)
		}
		q.advance()
	}

	return credits, remaining
}
