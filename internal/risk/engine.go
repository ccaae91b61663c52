// Package risk is the pure computation layer over the market registry and
// the user ledger: collateralization health, pre-action safety checks, and
// liquidation target selection. It holds no state of its own.
package risk

import (
	"math"

	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/ledger"
	"LendLedger/internal/market"
)

const (
	// NoDebtRatio is the sentinel returned when a user has no borrow value:
	// safety is unconstrained. Same convention as a margin fraction with no
	// exposure.
	NoDebtRatio = math.MaxInt64

	// LiquidationThresholdBps is the ratio boundary consulted by every
	// safety check.
	LiquidationThresholdBps = 8_000

	// LiquidationPenaltyBps is added to the repaid debt when computing the
	// collateral quantity to seize.
	LiquidationPenaltyBps = 500
)

// Engine evaluates risk against a consistent snapshot of registry and
// ledger state. Callers must hold the processor's operation lock.
type Engine struct {
	registry *market.Registry
	users    *ledger.UserLedger
}

func NewEngine(registry *market.Registry, users *ledger.UserLedger) *Engine {
	return &Engine{registry: registry, users: users}
}

// CollateralizationRatio returns the basis-point ratio of factor-weighted
// collateral value to raw borrow value across all active markets, or
// NoDebtRatio when the user has no debt. Integer division truncates.
func (e *Engine) CollateralizationRatio(user common.Address) int64 {
	collateral, borrow := e.values(user, "", 0, 0)
	if borrow == 0 {
		return NoDebtRatio
	}
	return collateral * market.MaxBps / borrow
}

// CanWithdraw reports whether withdrawing amount of asset keeps the user at
// or above the liquidation threshold. A user whose current ratio is the
// no-debt sentinel is approved unconditionally — the hypothetical position
// is never evaluated for them.
func (e *Engine) CanWithdraw(user common.Address, asset string, amount int64) bool {
	if e.CollateralizationRatio(user) == NoDebtRatio {
		return true
	}
	collateral, borrow := e.values(user, asset, -amount, 0)
	if borrow == 0 {
		return true
	}
	return collateral*market.MaxBps/borrow >= LiquidationThresholdBps
}

// CanBorrow reports whether borrowing amount of asset keeps the user at or
// above the liquidation threshold. The same no-debt shortcut applies, so a
// first borrow is never checked against collateral sufficiency.
func (e *Engine) CanBorrow(user common.Address, asset string, amount int64) bool {
	if e.CollateralizationRatio(user) == NoDebtRatio {
		return true
	}
	collateral, borrow := e.values(user, asset, 0, amount)
	if borrow == 0 {
		return true
	}
	return collateral*market.MaxBps/borrow >= LiquidationThresholdBps
}

// IsLiquidatable reports whether the user's ratio is at or above the
// liquidation threshold. The comparison direction matches the deployed
// contract, not the safety checks above, and the no-debt sentinel compares
// as liquidatable; liquidation itself still fails on the recorded-debt
// check for such users.
func (e *Engine) IsLiquidatable(user common.Address) bool {
	return e.CollateralizationRatio(user) >= LiquidationThresholdBps
}

// FindBestCollateral scans active markets in listing order and returns the
// asset whose factor-weighted deposit value is strictly greatest. Ties keep
// the earliest-listed asset. The second return is false when the user has
// no positive deposit in any active market.
func (e *Engine) FindBestCollateral(user common.Address) (string, bool) {
	var (
		bestAsset string
		bestValue int64
		found     bool
	)
	for _, asset := range e.registry.Assets() {
		m, ok := e.registry.Get(asset)
		if !ok || !m.Active {
			continue
		}
		deposit := e.users.Deposit(user, asset)
		if deposit <= 0 {
			continue
		}
		value := deposit * m.CollateralFactorBps / market.MaxBps
		if !found || value > bestValue {
			bestAsset, bestValue, found = asset, value, true
		}
	}
	return bestAsset, found
}

// values accumulates collateral and borrow value over all active markets,
// with the one adjusted asset's deposit or borrow shifted by the given
// deltas (zero deltas yield the current position).
func (e *Engine) values(user common.Address, adjustAsset string, depositDelta, borrowDelta int64) (collateral, borrow int64) {
	for _, asset := range e.registry.Assets() {
		m, ok := e.registry.Get(asset)
		if !ok || !m.Active {
			continue
		}
		deposit := e.users.Deposit(user, asset)
		debt := e.users.Borrow(user, asset)
		if asset == adjustAsset {
			deposit += depositDelta
			debt += borrowDelta
		}
		collateral += deposit * m.CollateralFactorBps / market.MaxBps
		borrow += debt
	}
	return collateral, borrow
}
