package event

import "github.com/ethereum/go-ethereum/common"

// MarketListed records a new market being added to the registry.
type MarketListed struct {
	Asset               string `json:"asset"`
	CollateralFactorBps int64  `json:"collateral_factor_bps"`
	SupplyRateBps       int64  `json:"supply_rate_bps"`
	BorrowRateBps       int64  `json:"borrow_rate_bps"`
}

// MarketUpdated records a parameter change on an existing market.
type MarketUpdated struct {
	Asset               string `json:"asset"`
	CollateralFactorBps int64  `json:"collateral_factor_bps"`
	SupplyRateBps       int64  `json:"supply_rate_bps"`
	BorrowRateBps       int64  `json:"borrow_rate_bps"`
}

// Deposited records collateral entering the ledger.
type Deposited struct {
	User   common.Address `json:"user"`
	Asset  string         `json:"asset"`
	Amount int64          `json:"amount"`
	Signed bool           `json:"signed,omitempty"`
}

// Withdrawn records collateral leaving the ledger.
type Withdrawn struct {
	User   common.Address `json:"user"`
	Asset  string         `json:"asset"`
	Amount int64          `json:"amount"`
}

// Borrowed records new debt drawn against collateral.
type Borrowed struct {
	User   common.Address `json:"user"`
	Asset  string         `json:"asset"`
	Amount int64          `json:"amount"`
}

// Repaid records debt being paid down.
type Repaid struct {
	User   common.Address `json:"user"`
	Asset  string         `json:"asset"`
	Amount int64          `json:"amount"`
}

// Liquidated records a third party repaying debt and seizing collateral.
type Liquidated struct {
	Liquidator      common.Address `json:"liquidator"`
	Borrower        common.Address `json:"borrower"`
	DebtAsset       string         `json:"debt_asset"`
	Repaid          int64          `json:"repaid"`
	CollateralAsset string         `json:"collateral_asset"`
	Seized          int64          `json:"seized"`
}

// SystemPaused records the pause switch being thrown.
type SystemPaused struct {
	By common.Address `json:"by"`
}

// SystemUnpaused records the pause switch being cleared.
type SystemUnpaused struct {
	By common.Address `json:"by"`
}
