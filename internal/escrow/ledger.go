// Package escrow implements the off-chain mirror of one chain's escrow
// ledger (C6). The authoritative balances live in that chain's settlement
// contract; this ledger is the local cache the chain client populates
// from on-chain reads and mutates in lockstep with successful on-chain
// writes, so pre-admission checks and snapshots don't round-trip an RPC
// call on every order.
package escrow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"crosslot/pkg/types"
)

var (
	// ErrInsufficientAvailable is returned by WithdrawAvailable or Lock
	// when amount exceeds the (user, token)'s available balance.
	ErrInsufficientAvailable = errors.New("escrow: insufficient available balance")
	// ErrLockExists is returned by Lock when a lock already exists for
	// this order id, per the idempotency contract in §4.6.
	ErrLockExists = errors.New("escrow: lock already exists for this order")
	// ErrInsufficientLocked is returned by Settle when amount exceeds the
	// (user, token)'s locked balance.
	ErrInsufficientLocked = errors.New("escrow: insufficient locked balance")
)

type key struct {
	user  types.Address
	token string
}

// Ledger is the per-chain escrow mirror: a map from (user, token) to
// {total, locked}, plus the per-order lock guard the idempotency contract
// requires.
type Ledger struct {
	chain string

	mu       sync.Mutex
	balances map[key]types.EscrowBalance
	locks    map[uint64]struct{} // order_id -> lock exists
}

// NewLedger creates an empty ledger for one chain.
func NewLedger(chain string) *Ledger {
	return &Ledger{
		chain:    chain,
		balances: make(map[key]types.EscrowBalance),
		locks:    make(map[uint64]struct{}),
	}
}

// BalanceOf returns the current mirrored balance for (user, token). A
// balance that has never been touched reads as all-zero.
func (l *Ledger) BalanceOf(user types.Address, token string) types.EscrowBalance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key{user, token}]
}

// SetBalance overwrites the mirrored balance wholesale — used when the
// chain client refreshes the mirror from an on-chain read, not for
// ordinary deposit/lock/settle bookkeeping.
func (l *Ledger) SetBalance(user types.Address, token string, bal types.EscrowBalance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key{user, token}] = bal
}

// Deposit credits total for (user, token). Mirrors depositToEscrow.
func (l *Ledger) Deposit(user types.Address, token string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("escrow: deposit amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{user, token}
	bal := l.balances[k]
	bal.Total = bal.Total.Add(amount)
	l.balances[k] = bal
	return nil
}

// WithdrawAvailable debits total for (user, token). Mirrors
// withdrawFromEscrow; requires amount <= available.
func (l *Ledger) WithdrawAvailable(user types.Address, token string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("escrow: withdraw amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{user, token}
	bal := l.balances[k]
	if amount.GreaterThan(bal.Available()) {
		return ErrInsufficientAvailable
	}
	bal.Total = bal.Total.Sub(amount)
	l.balances[k] = bal
	return nil
}

// Lock moves amount from available to locked for (user, token), guarded
// by orderID so a second call for the same order is rejected rather than
// double-locking. Mirrors lockEscrowForOrder.
func (l *Ledger) Lock(user types.Address, token string, amount decimal.Decimal, orderID uint64) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("escrow: lock amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.locks[orderID]; exists {
		return ErrLockExists
	}

	k := key{user, token}
	bal := l.balances[k]
	if amount.GreaterThan(bal.Available()) {
		return ErrInsufficientAvailable
	}
	bal.Locked = bal.Locked.Add(amount)
	l.balances[k] = bal
	l.locks[orderID] = struct{}{}
	return nil
}

// HasLock reports whether orderID already holds a lock on this chain.
func (l *Ledger) HasLock(orderID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[orderID]
	return ok
}

// Settle debits both total and locked for (user, token) by amount,
// representing the transfer of amount out to a receiver. Mirrors the
// sender-side effect of settleSameChainTrade / settleCrossChainTrade.
func (l *Ledger) Settle(user types.Address, token string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("escrow: settle amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{user, token}
	bal := l.balances[k]
	if amount.GreaterThan(bal.Locked) {
		return ErrInsufficientLocked
	}
	bal.Total = bal.Total.Sub(amount)
	bal.Locked = bal.Locked.Sub(amount)
	l.balances[k] = bal
	return nil
}

// Available reports whether (user, token) currently has at least amount
// available, used by the settlement orchestrator's pre-admission check.
func (l *Ledger) Available(user types.Address, token string, amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key{user, token}].Available().GreaterThanOrEqual(amount)
}
