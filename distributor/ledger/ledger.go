// Package ledger is the in-memory asset ledger the waterfall instances run
// against: native and token balances keyed by address, receive hooks on
// native transfers, and whole-state snapshots for the hub's call rollback.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/xla-labs/waterfall-hub/distributor/engine"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("negative amount")
)

// ReceiveHook runs synchronously after a native transfer credits its address.
// A hook error fails the transfer's surrounding call.
type ReceiveHook func(from engine.Address, amount *big.Int) error

// Ledger holds native and token balances. It is not safe for concurrent use;
// the hub serializes access.
type Ledger struct {
	native map[engine.Address]*big.Int
	tokens map[engine.Address]map[engine.Address]*big.Int
	hooks  map[engine.Address]ReceiveHook
}

func New() *Ledger {
	return &Ledger{
		native: make(map[engine.Address]*big.Int),
		tokens: make(map[engine.Address]map[engine.Address]*big.Int),
		hooks:  make(map[engine.Address]ReceiveHook),
	}
}

// RegisterHook installs the receive hook for addr, replacing any prior one.
func (l *Ledger) RegisterHook(addr engine.Address, hook ReceiveHook) {
	l.hooks[addr] = hook
}

// MintNative credits addr out of thin air. Setup only: no hook fires.
func (l *Ledger) MintNative(addr engine.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.creditNative(addr, amount)
	return nil
}

// MintToken credits addr with a token out of thin air. No hook fires; tokens
// never have receive hooks.
func (l *Ledger) MintToken(token, addr engine.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.creditToken(token, addr, amount)
	return nil
}

// NativeBalance returns addr's native balance. The caller owns the copy.
func (l *Ledger) NativeBalance(addr engine.Address) *big.Int {
	if b, ok := l.native[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// TokenBalance returns addr's balance of token. The caller owns the copy.
func (l *Ledger) TokenBalance(token, addr engine.Address) *big.Int {
	if holders, ok := l.tokens[token]; ok {
		if b, ok := holders[addr]; ok {
			return new(big.Int).Set(b)
		}
	}
	return new(big.Int)
}

// TransferNative moves native balance and then runs the recipient's receive
// hook, if any, in the same call. The hook observes the post-transfer
// balances.
func (l *Ledger) TransferNative(from, to engine.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if err := l.debitNative(from, amount); err != nil {
		return err
	}
	l.creditNative(to, amount)

	if hook, ok := l.hooks[to]; ok {
		if err := hook(from, amount); err != nil {
			return fmt.Errorf("receive hook for %s: %w", to, err)
		}
	}
	return nil
}

// TransferToken moves token balance. Token transfers have no hooks.
func (l *Ledger) TransferToken(token, from, to engine.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if err := l.debitToken(token, from, amount); err != nil {
		return err
	}
	l.creditToken(token, to, amount)
	return nil
}

func (l *Ledger) creditNative(addr engine.Address, amount *big.Int) {
	if b, ok := l.native[addr]; ok {
		b.Add(b, amount)
		return
	}
	l.native[addr] = new(big.Int).Set(amount)
}

func (l *Ledger) debitNative(addr engine.Address, amount *big.Int) error {
	b, ok := l.native[addr]
	if !ok {
		b = new(big.Int)
		l.native[addr] = b
	}
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, addr, b, amount)
	}
	b.Sub(b, amount)
	return nil
}

func (l *Ledger) debitToken(token, from engine.Address, amount *big.Int) error {
	holders, ok := l.tokens[token]
	if !ok {
		holders = make(map[engine.Address]*big.Int)
		l.tokens[token] = holders
	}
	b, ok := holders[from]
	if !ok {
		b = new(big.Int)
		holders[from] = b
	}
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of token %s, needs %s",
			ErrInsufficientBalance, from, b, token, amount)
	}
	b.Sub(b, amount)
	return nil
}

func (l *Ledger) creditToken(token, addr engine.Address, amount *big.Int) {
	holders, ok := l.tokens[token]
	if !ok {
		holders = make(map[engine.Address]*big.Int)
		l.tokens[token] = holders
	}
	if b, ok := holders[addr]; ok {
		b.Add(b, amount)
		return
	}
	holders[addr] = new(big.Int).Set(amount)
}

// Snapshot is a deep copy of all balances at a call boundary. Hooks are
// registrations, not state, and are not part of a snapshot.
type Snapshot struct {
	native map[engine.Address]*big.Int
	tokens map[engine.Address]map[engine.Address]*big.Int
}

// Snapshot captures every balance so a failed call can be unwound.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		native: make(map[engine.Address]*big.Int, len(l.native)),
		tokens: make(map[engine.Address]map[engine.Address]*big.Int, len(l.tokens)),
	}
	for addr, b := range l.native {
		s.native[addr] = new(big.Int).Set(b)
	}
	for token, holders := range l.tokens {
		hs := make(map[engine.Address]*big.Int, len(holders))
		for addr, b := range holders {
			hs[addr] = new(big.Int).Set(b)
		}
		s.tokens[token] = hs
	}
	return s
}

// Restore reinstates a snapshot, discarding every change made since it was
// taken.
func (l *Ledger) Restore(s Snapshot) {
	l.native = make(map[engine.Address]*big.Int, len(s.native))
	for addr, b := range s.native {
		l.native[addr] = new(big.Int).Set(b)
	}
	l.tokens = make(map[engine.Address]map[engine.Address]*big.Int, len(s.tokens))
	for token, holders := range s.tokens {
		hs := make(map[engine.Address]*big.Int, len(holders))
		for addr, b := range holders {
			hs[addr] = new(big.Int).Set(b)
		}
		l.tokens[token] = hs
	}
}
