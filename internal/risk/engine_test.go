package risk_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/ledger"
	"LendLedger/internal/market"
	"LendLedger/internal/risk"
)

var borrower = common.HexToAddress("0x00000000000000000000000000000000000000c3")

func newFixture(t *testing.T) (*market.Registry, *ledger.UserLedger, *risk.Engine) {
	t.Helper()
	registry := market.NewRegistry()
	users := ledger.NewUserLedger()
	if _, err := registry.Add("USDC", 8_000, 200, 500); err != nil {
		t.Fatalf("add USDC: %v", err)
	}
	if _, err := registry.Add("DAI", 7_500, 150, 450); err != nil {
		t.Fatalf("add DAI: %v", err)
	}
	return registry, users, risk.NewEngine(registry, users)
}

// ============================================================================
// Test: CollateralizationRatio
// ============================================================================

func TestCollateralizationRatio_NoDebt(t *testing.T) {
	_, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 1_000, 100)

	if got := engine.CollateralizationRatio(borrower); got != risk.NoDebtRatio {
		t.Errorf("no-debt user: got %d, want sentinel", got)
	}
}

func TestCollateralizationRatio_WeightedValue(t *testing.T) {
	_, users, engine := newFixture(t)
	// 100 USDC at factor 8000 bps = 80 collateral value, against 50 DAI debt:
	// 80 * 10_000 / 50 = 16_000 bps.
	users.IncreaseDeposit(borrower, "USDC", 100, 100)
	users.IncreaseBorrow(borrower, "DAI", 50, 100)

	if got := engine.CollateralizationRatio(borrower); got != 16_000 {
		t.Errorf("ratio: got %d, want 16_000", got)
	}
}

func TestCollateralizationRatio_Truncates(t *testing.T) {
	_, users, engine := newFixture(t)
	// 10 USDC at 8000 bps = 8 value against 3 debt: 80_000/3 = 26_666.66 -> 26_666.
	users.IncreaseDeposit(borrower, "USDC", 10, 100)
	users.IncreaseBorrow(borrower, "DAI", 3, 100)

	if got := engine.CollateralizationRatio(borrower); got != 26_666 {
		t.Errorf("ratio: got %d, want 26_666", got)
	}
}

func TestCollateralizationRatio_IgnoresInactiveMarkets(t *testing.T) {
	registry, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 100, 100)
	users.IncreaseDeposit(borrower, "DAI", 100, 100)
	users.IncreaseBorrow(borrower, "DAI", 50, 100)

	m, _ := registry.Get("USDC")
	m.Active = false

	// Only the DAI deposit counts: 100*7500/10000 = 75 -> 75*10000/50 = 15_000.
	if got := engine.CollateralizationRatio(borrower); got != 15_000 {
		t.Errorf("ratio with USDC disabled: got %d, want 15_000", got)
	}
}

// ============================================================================
// Test: CanWithdraw / CanBorrow
// ============================================================================

func TestCanWithdraw_NoDebt_Unconditional(t *testing.T) {
	_, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 100, 100)

	// No debt means the hypothetical position is never evaluated, even for
	// a withdrawal larger than the balance.
	if !engine.CanWithdraw(borrower, "USDC", 1_000_000) {
		t.Error("no-debt user should pass any withdrawal check")
	}
}

func TestCanWithdraw_HypotheticalRatio(t *testing.T) {
	_, users, engine := newFixture(t)
	// 200 USDC at 8000 = 160 value against 100 DAI debt -> 16_000 bps.
	users.IncreaseDeposit(borrower, "USDC", 200, 100)
	users.IncreaseBorrow(borrower, "DAI", 100, 100)

	// Withdrawing 100 leaves 100*8000/10000 = 80 -> 8_000 bps, exactly at
	// the threshold.
	if !engine.CanWithdraw(borrower, "USDC", 100) {
		t.Error("withdrawal landing exactly on the threshold should pass")
	}
	// Withdrawing 101 leaves 79 value -> 7_920 bps, below threshold.
	if engine.CanWithdraw(borrower, "USDC", 101) {
		t.Error("withdrawal dropping below the threshold should fail")
	}
}

func TestCanBorrow_FirstBorrowUnchecked(t *testing.T) {
	_, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 1, 100)

	// With zero existing debt the current ratio is the sentinel, so the
	// hypothetical check is skipped entirely.
	if !engine.CanBorrow(borrower, "DAI", 1_000_000) {
		t.Error("first borrow is approved regardless of size")
	}
}

func TestCanBorrow_SubsequentBorrowChecked(t *testing.T) {
	_, users, engine := newFixture(t)
	// 200 USDC -> 160 value, 100 DAI debt.
	users.IncreaseDeposit(borrower, "USDC", 200, 100)
	users.IncreaseBorrow(borrower, "DAI", 100, 100)

	// Borrowing 100 more: 160*10000/200 = 8_000 bps, at the threshold.
	if !engine.CanBorrow(borrower, "DAI", 100) {
		t.Error("borrow landing exactly on the threshold should pass")
	}
	// Borrowing 101 more: 160*10000/201 = 7_960 bps.
	if engine.CanBorrow(borrower, "DAI", 101) {
		t.Error("borrow dropping below the threshold should fail")
	}
}

// ============================================================================
// Test: IsLiquidatable
// ============================================================================

func TestIsLiquidatable_NoDebtSentinelFlagged(t *testing.T) {
	_, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 100, 100)

	// A debt-free user's ratio is the sentinel, which sits above the
	// threshold, so the flag reads true.
	if !engine.IsLiquidatable(borrower) {
		t.Error("no-debt sentinel compares at or above the threshold")
	}
}

func TestIsLiquidatable_AtOrAboveThreshold(t *testing.T) {
	_, users, engine := newFixture(t)
	// 100 USDC -> 80 value against 100 DAI debt: 8_000 bps exactly.
	users.IncreaseDeposit(borrower, "USDC", 100, 100)
	users.IncreaseBorrow(borrower, "DAI", 100, 100)

	if !engine.IsLiquidatable(borrower) {
		t.Error("ratio at the threshold flags the position liquidatable")
	}

	// Healthier position, 16_000 bps, is also flagged.
	users.IncreaseDeposit(borrower, "USDC", 100, 100)
	if !engine.IsLiquidatable(borrower) {
		t.Error("ratio above the threshold flags the position liquidatable")
	}
}

func TestIsLiquidatable_BelowThreshold(t *testing.T) {
	_, users, engine := newFixture(t)
	// 50 USDC -> 40 value against 100 DAI debt: 4_000 bps.
	users.IncreaseDeposit(borrower, "USDC", 50, 100)
	users.IncreaseBorrow(borrower, "DAI", 100, 100)

	if engine.IsLiquidatable(borrower) {
		t.Error("ratio below the threshold does not flag the position")
	}
}

// ============================================================================
// Test: FindBestCollateral
// ============================================================================

func TestFindBestCollateral_PicksGreatestWeightedValue(t *testing.T) {
	_, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 100, 100) // 100*8000/10000 = 80
	users.IncreaseDeposit(borrower, "DAI", 200, 100)  // 200*7500/10000 = 150

	asset, ok := engine.FindBestCollateral(borrower)
	if !ok {
		t.Fatal("expected a collateral asset")
	}
	if asset != "DAI" {
		t.Errorf("best collateral: got %q, want DAI", asset)
	}
}

func TestFindBestCollateral_TieKeepsEarliestListed(t *testing.T) {
	_, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 150, 100) // 150*8000/10000 = 120
	users.IncreaseDeposit(borrower, "DAI", 160, 100)  // 160*7500/10000 = 120

	asset, ok := engine.FindBestCollateral(borrower)
	if !ok {
		t.Fatal("expected a collateral asset")
	}
	if asset != "USDC" {
		t.Errorf("equal values keep the earliest listed: got %q, want USDC", asset)
	}
}

func TestFindBestCollateral_SkipsInactive(t *testing.T) {
	registry, users, engine := newFixture(t)
	users.IncreaseDeposit(borrower, "USDC", 1_000, 100)
	users.IncreaseDeposit(borrower, "DAI", 10, 100)

	m, _ := registry.Get("USDC")
	m.Active = false

	asset, ok := engine.FindBestCollateral(borrower)
	if !ok || asset != "DAI" {
		t.Errorf("inactive USDC must be skipped: got %q ok=%v", asset, ok)
	}
}

func TestFindBestCollateral_NoDeposits(t *testing.T) {
	_, users, engine := newFixture(t)
	users.IncreaseBorrow(borrower, "DAI", 100, 100)

	if _, ok := engine.FindBestCollateral(borrower); ok {
		t.Error("user with no deposits has no collateral to pick")
	}
}
