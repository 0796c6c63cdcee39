// Package hub hosts the deployed waterfall instances. It serializes every
// state-changing call, snapshots balances and queue state at the call
// boundary so a failed call leaves no trace, and wires the hooks that let
// instances feed each other recursively.
package hub

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xla-labs/waterfall-hub/distributor/engine"
	"github.com/xla-labs/waterfall-hub/distributor/factory"
	"github.com/xla-labs/waterfall-hub/distributor/ledger"
	"github.com/xla-labs/waterfall-hub/distributor/oracle"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "hub").Logger()
}

// ErrInstanceNotFound means the address is not a registered instance.
var ErrInstanceNotFound = errors.New("waterfall instance not found")

// Hub is the execution host. All calls against the ledger or any instance go
// through it, one at a time, all-or-nothing.
type Hub struct {
	mu sync.Mutex

	ledger    *ledger.Ledger
	factory   *factory.Factory
	instances map[engine.Address]*engine.Waterfall
}

func New(l *ledger.Ledger, f *factory.Factory) *Hub {
	return &Hub{
		ledger:    l,
		factory:   f,
		instances: make(map[engine.Address]*engine.Waterfall),
	}
}

// register wires an instance into the host: its native receive hook on the
// ledger, and the token recipient hook that chains nested distribution when
// a token payout lands on another instance.
func (h *Hub) register(wf *engine.Waterfall) {
	addr := wf.Address()
	h.instances[addr] = wf
	h.ledger.RegisterHook(addr, wf.OnReceiveNative)

	wf.SetTokenRecipientHook(func(recipient, token engine.Address) error {
		child, ok := h.instances[recipient]
		if !ok {
			return nil
		}
		// The parent instance must hold the child's distributor role for
		// the payout to cascade.
		if !child.IsDistributor(addr) {
			return nil
		}
		return child.RedistributeToken(addr, token)
	})
}

// call runs fn under the hub lock with full rollback on error. Balances and
// every instance's queue revert to their pre-call state; nothing partial
// survives.
func (h *Hub) call(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ledgerSnap := h.ledger.Snapshot()
	queueSnaps := make(map[engine.Address]engine.QueueSnapshot, len(h.instances))
	for addr, wf := range h.instances {
		queueSnaps[addr] = wf.SnapshotQueue()
	}

	if err := fn(); err != nil {
		h.ledger.Restore(ledgerSnap)
		for addr, snap := range queueSnaps {
			h.instances[addr].RestoreQueue(snap)
		}
		return err
	}
	return nil
}

// CreateWaterfall creates, registers and returns the address of a new
// instance.
func (h *Hub) CreateWaterfall(caller engine.Address, p factory.Params) (engine.Address, error) {
	var addr engine.Address
	err := h.call(func() error {
		wf, err := h.factory.CreateWaterfall(caller, p)
		if err != nil {
			return err
		}
		h.register(wf)
		addr = wf.Address()
		return nil
	})
	return addr, err
}

// TransferNative is the external payment entry point. A transfer to an
// instance runs its receive hook, so an auto-distributing instance pays out
// within this same call.
func (h *Hub) TransferNative(from, to engine.Address, amount *big.Int) error {
	return h.call(func() error {
		return h.ledger.TransferNative(from, to, amount)
	})
}

// TransferToken moves tokens. Token distribution only happens on explicit
// RedistributeToken calls, never on receipt.
func (h *Hub) TransferToken(token, from, to engine.Address, amount *big.Int) error {
	return h.call(func() error {
		return h.ledger.TransferToken(token, from, to, amount)
	})
}

// RedistributeNative triggers a native distribution run on an instance.
func (h *Hub) RedistributeNative(caller, instance engine.Address) error {
	return h.call(func() error {
		wf, ok := h.instances[instance]
		if !ok {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		if err := wf.RedistributeNative(caller); err != nil {
			return err
		}
		log.Debug().Str("instance", string(instance)).Msg("native distribution run")
		return nil
	})
}

// RedistributeToken triggers a token distribution run on an instance.
func (h *Hub) RedistributeToken(caller, instance, token engine.Address) error {
	return h.call(func() error {
		wf, ok := h.instances[instance]
		if !ok {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		if err := wf.RedistributeToken(caller, token); err != nil {
			return err
		}
		log.Debug().Str("instance", string(instance)).Str("token", string(token)).Msg("token distribution run")
		return nil
	})
}

// SetRecipients replaces an instance's recipient queue.
func (h *Hub) SetRecipients(caller, instance engine.Address, specs []engine.RecipientSpec) error {
	return h.call(func() error {
		wf, ok := h.instances[instance]
		if !ok {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		return wf.SetRecipients(caller, specs)
	})
}

// SetController changes an instance's controller.
func (h *Hub) SetController(caller, instance, controller engine.Address) error {
	return h.call(func() error {
		wf, ok := h.instances[instance]
		if !ok {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		return wf.SetController(caller, controller)
	})
}

// TransferOwnership hands an instance's owner role to a new address.
func (h *Hub) TransferOwnership(caller, instance, newOwner engine.Address) error {
	return h.call(func() error {
		wf, ok := h.instances[instance]
		if !ok {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		return wf.TransferOwnership(caller, newOwner)
	})
}

// SetDistributor grants or revokes an instance's distributor role.
func (h *Hub) SetDistributor(caller, instance, distributor engine.Address, enabled bool) error {
	return h.call(func() error {
		wf, ok := h.instances[instance]
		if !ok {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		return wf.SetDistributor(caller, distributor, enabled)
	})
}

// SetTokenPriceFeed registers a supported token on an instance.
func (h *Hub) SetTokenPriceFeed(caller, instance, token engine.Address, feed oracle.PriceFeed) error {
	return h.call(func() error {
		wf, ok := h.instances[instance]
		if !ok {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		return wf.SetTokenPriceFeed(caller, token, feed)
	})
}

// MintNative credits an external account. Test and genesis setup only.
func (h *Hub) MintNative(addr engine.Address, amount *big.Int) error {
	return h.call(func() error {
		return h.ledger.MintNative(addr, amount)
	})
}

// MintToken credits an external account with tokens. Setup only.
func (h *Hub) MintToken(token, addr engine.Address, amount *big.Int) error {
	return h.call(func() error {
		return h.ledger.MintToken(token, addr, amount)
	})
}

// Instance returns a registered instance for read-only inspection.
func (h *Hub) Instance(addr engine.Address) (*engine.Waterfall, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	wf, ok := h.instances[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, addr)
	}
	return wf, nil
}

// Instances returns the addresses of every registered instance.
func (h *Hub) Instances() []engine.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	addrs := make([]engine.Address, 0, len(h.instances))
	for addr := range h.instances {
		addrs = append(addrs, addr)
	}
	return addrs
}

// NativeBalance reads a native balance.
func (h *Hub) NativeBalance(addr engine.Address) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger.NativeBalance(addr)
}

// TokenBalance reads a token balance.
func (h *Hub) TokenBalance(token, addr engine.Address) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger.TokenBalance(token, addr)
}
