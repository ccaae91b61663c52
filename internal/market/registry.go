package market

import (
	"strings"

	"LendLedger/internal/errs"
)

// MaxBps is the basis-point scale: 10_000 bps == 100%.
const MaxBps = 10_000

// Market is the shared pool and parameter set for one asset.
// Amounts are fixed-point int64 in the asset's own unit.
type Market struct {
	Asset               string
	TotalSupply         int64
	TotalBorrow         int64
	SupplyRateBps       int64 // Stored for reporting; never compounded into balances
	BorrowRateBps       int64 // Stored for reporting; never compounded into balances
	CollateralFactorBps int64 // 0..10_000
	Active              bool
}

// Registry owns the set of listed markets. It is not internally locked —
// all access is serialized by the transaction processor.
type Registry struct {
	markets map[string]*Market
	assets  []string // insertion order, append-only, duplicate-free
}

func NewRegistry() *Registry {
	return &Registry{
		markets: make(map[string]*Market),
	}
}

// Add lists a new market. A market, once listed, cannot be re-listed.
func (r *Registry) Add(asset string, collateralFactorBps, supplyRateBps, borrowRateBps int64) (*Market, error) {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return nil, errs.Validationf("asset identifier is empty")
	}
	if collateralFactorBps < 0 || collateralFactorBps > MaxBps {
		return nil, errs.Validationf("collateral factor %d out of range [0, %d]", collateralFactorBps, MaxBps)
	}
	if _, exists := r.markets[asset]; exists {
		return nil, errs.Validationf("market %s already exists", asset)
	}

	m := &Market{
		Asset:               asset,
		SupplyRateBps:       supplyRateBps,
		BorrowRateBps:       borrowRateBps,
		CollateralFactorBps: collateralFactorBps,
		Active:              true,
	}
	r.markets[asset] = m
	r.assets = append(r.assets, asset)
	return m, nil
}

// Update mutates rate and factor fields in place; balances are untouched.
// The market must exist and be active.
func (r *Registry) Update(asset string, collateralFactorBps, supplyRateBps, borrowRateBps int64) (*Market, error) {
	if collateralFactorBps < 0 || collateralFactorBps > MaxBps {
		return nil, errs.Validationf("collateral factor %d out of range [0, %d]", collateralFactorBps, MaxBps)
	}
	m, err := r.RequireActive(asset)
	if err != nil {
		return nil, err
	}
	m.CollateralFactorBps = collateralFactorBps
	m.SupplyRateBps = supplyRateBps
	m.BorrowRateBps = borrowRateBps
	return m, nil
}

// Get returns the market for an asset, listed or not.
func (r *Registry) Get(asset string) (*Market, bool) {
	m, ok := r.markets[asset]
	return m, ok
}

// RequireActive returns the market or fails: unknown asset is a validation
// failure, a listed-but-inactive market is a state failure.
func (r *Registry) RequireActive(asset string) (*Market, error) {
	m, ok := r.markets[asset]
	if !ok {
		return nil, errs.Validationf("unknown asset %s", asset)
	}
	if !m.Active {
		return nil, errs.Statef("market %s is not active", asset)
	}
	return m, nil
}

// Assets returns the supported asset list in insertion order.
func (r *Registry) Assets() []string {
	out := make([]string, len(r.assets))
	copy(out, r.assets)
	return out
}
