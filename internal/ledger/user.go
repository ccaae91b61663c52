// Package ledger maintains per-user balance state: aggregate totals, the
// per-asset deposit and borrow positions behind them, and the replay
// nonce consumed by delegated operations.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/errs"
)

// User is the aggregate record for one address. The aggregates and the
// per-asset maps are updated together by every mutation, so the sum of
// per-asset amounts always equals the aggregate by construction.
type User struct {
	Address        common.Address
	TotalDeposited int64
	TotalBorrowed  int64
	UpdatedAt      int64 // epoch microseconds of the last mutation
	Active         bool
}

// UserLedger owns all user state. Like the market registry it carries no
// internal lock — the transaction processor serializes access.
type UserLedger struct {
	users    map[common.Address]*User
	deposits map[common.Address]map[string]int64
	borrows  map[common.Address]map[string]int64
	nonces   map[common.Address]uint64
}

func NewUserLedger() *UserLedger {
	return &UserLedger{
		users:    make(map[common.Address]*User),
		deposits: make(map[common.Address]map[string]int64),
		borrows:  make(map[common.Address]map[string]int64),
		nonces:   make(map[common.Address]uint64),
	}
}

// Get returns the user record if the address has ever touched the ledger.
func (ul *UserLedger) Get(addr common.Address) (*User, bool) {
	u, ok := ul.users[addr]
	return u, ok
}

// Deposit returns the recorded deposit for one asset.
func (ul *UserLedger) Deposit(addr common.Address, asset string) int64 {
	return ul.deposits[addr][asset]
}

// Borrow returns the recorded borrow for one asset.
func (ul *UserLedger) Borrow(addr common.Address, asset string) int64 {
	return ul.borrows[addr][asset]
}

// Nonce returns the current replay nonce for an address.
func (ul *UserLedger) Nonce(addr common.Address) uint64 {
	return ul.nonces[addr]
}

// BumpNonce advances the replay nonce by exactly one.
func (ul *UserLedger) BumpNonce(addr common.Address) {
	ul.nonces[addr]++
}

// IncreaseDeposit credits the per-asset deposit and the aggregate together.
// Any increase marks the user active. Creates the user record on first use.
func (ul *UserLedger) IncreaseDeposit(addr common.Address, asset string, amount, ts int64) {
	u := ul.ensure(addr)
	ul.assetMap(ul.deposits, addr)[asset] += amount
	u.TotalDeposited += amount
	u.UpdatedAt = ts
	u.Active = true
}

// DecreaseDeposit debits the per-asset deposit and the aggregate together.
// The user flips inactive when the asset just touched reaches zero and both
// aggregates are zero; other assets are not rescanned.
func (ul *UserLedger) DecreaseDeposit(addr common.Address, asset string, amount, ts int64) error {
	u, ok := ul.users[addr]
	if !ok || ul.deposits[addr][asset] < amount {
		return errs.Statef("insufficient deposit: have=%d, need=%d", ul.deposits[addr][asset], amount)
	}
	ul.deposits[addr][asset] -= amount
	u.TotalDeposited -= amount
	u.UpdatedAt = ts
	if ul.deposits[addr][asset] == 0 && u.TotalDeposited == 0 && u.TotalBorrowed == 0 {
		u.Active = false
	}
	return nil
}

// IncreaseBorrow credits the per-asset borrow and the aggregate together.
func (ul *UserLedger) IncreaseBorrow(addr common.Address, asset string, amount, ts int64) {
	u := ul.ensure(addr)
	ul.assetMap(ul.borrows, addr)[asset] += amount
	u.TotalBorrowed += amount
	u.UpdatedAt = ts
	u.Active = true
}

// DecreaseBorrow debits the per-asset borrow and the aggregate together,
// with the same narrow inactivity check as DecreaseDeposit.
func (ul *UserLedger) DecreaseBorrow(addr common.Address, asset string, amount, ts int64) error {
	u, ok := ul.users[addr]
	if !ok || ul.borrows[addr][asset] < amount {
		return errs.Statef("insufficient borrow: have=%d, need=%d", ul.borrows[addr][asset], amount)
	}
	ul.borrows[addr][asset] -= amount
	u.TotalBorrowed -= amount
	u.UpdatedAt = ts
	if ul.borrows[addr][asset] == 0 && u.TotalDeposited == 0 && u.TotalBorrowed == 0 {
		u.Active = false
	}
	return nil
}

func (ul *UserLedger) ensure(addr common.Address) *User {
	u, ok := ul.users[addr]
	if !ok {
		u = &User{Address: addr}
		ul.users[addr] = u
	}
	return u
}

func (ul *UserLedger) assetMap(m map[common.Address]map[string]int64, addr common.Address) map[string]int64 {
	inner, ok := m[addr]
	if !ok {
		inner = make(map[string]int64)
		m[addr] = inner
	}
	return inner
}
