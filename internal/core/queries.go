package core

import (
	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/errs"
)

// Read-side accessors. Each takes the operation lock for a consistent
// snapshot; none of them calls out, so the in-flight guard does not apply.

// MarketView is a copy of market state safe to hand to callers.
type MarketView struct {
	Asset               string `json:"asset"`
	TotalSupply         int64  `json:"total_supply"`
	TotalBorrow         int64  `json:"total_borrow"`
	SupplyRateBps       int64  `json:"supply_rate_bps"`
	BorrowRateBps       int64  `json:"borrow_rate_bps"`
	CollateralFactorBps int64  `json:"collateral_factor_bps"`
	Active              bool   `json:"active"`
}

// UserView is a copy of a user's aggregate state.
type UserView struct {
	Address        common.Address `json:"address"`
	TotalDeposited int64          `json:"total_deposited"`
	TotalBorrowed  int64          `json:"total_borrowed"`
	UpdatedAt      int64          `json:"updated_at"`
	Active         bool           `json:"active"`
}

func (p *Processor) GetMarket(asset string) (MarketView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.registry.Get(asset)
	if !ok {
		return MarketView{}, errs.Validationf("unknown asset: %s", asset)
	}
	return MarketView{
		Asset:               m.Asset,
		TotalSupply:         m.TotalSupply,
		TotalBorrow:         m.TotalBorrow,
		SupplyRateBps:       m.SupplyRateBps,
		BorrowRateBps:       m.BorrowRateBps,
		CollateralFactorBps: m.CollateralFactorBps,
		Active:              m.Active,
	}, nil
}

// GetUser returns the user's aggregate state. Unknown addresses yield a
// zero-valued inactive view rather than an error.
func (p *Processor) GetUser(addr common.Address) UserView {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users.Get(addr)
	if !ok {
		return UserView{Address: addr}
	}
	return UserView{
		Address:        u.Address,
		TotalDeposited: u.TotalDeposited,
		TotalBorrowed:  u.TotalBorrowed,
		UpdatedAt:      u.UpdatedAt,
		Active:         u.Active,
	}
}

func (p *Processor) GetUserDeposit(addr common.Address, asset string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users.Deposit(addr, asset)
}

func (p *Processor) GetUserBorrow(addr common.Address, asset string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users.Borrow(addr, asset)
}

func (p *Processor) GetSupportedAssets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.Assets()
}

func (p *Processor) GetNonce(addr common.Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users.Nonce(addr)
}

func (p *Processor) CollateralizationRatio(addr common.Address) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.risk.CollateralizationRatio(addr)
}

func (p *Processor) IsLiquidatable(addr common.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.risk.IsLiquidatable(addr)
}

func (p *Processor) CanWithdraw(addr common.Address, asset string, amount int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.risk.CanWithdraw(addr, asset, amount)
}

func (p *Processor) CanBorrow(addr common.Address, asset string, amount int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.risk.CanBorrow(addr, asset, amount)
}

func (p *Processor) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Sequence returns the next sequence to be assigned.
func (p *Processor) Sequence() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sequence
}
