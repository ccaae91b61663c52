// Package core hosts the transaction processor: the single serialization
// point through which every state-mutating operation flows. State managers
// carry no locks of their own; the processor's lock is the consistency
// boundary, and each applied operation is assigned a global sequence and
// emitted into the hash-chained audit log.
package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendLedger/internal/auth"
	"LendLedger/internal/errs"
	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/market"
	"LendLedger/internal/observability"
	"LendLedger/internal/risk"
)

// Output is what the processor hands downstream per applied operation.
type Output struct {
	Envelope *event.Envelope
}

// Processor owns all ledger state and serializes every operation behind a
// single lock. External transfer calls happen inside the critical section,
// so a transfer callback that re-enters the processor is rejected by the
// in-flight guard rather than deadlocking on the lock.
type Processor struct {
	mu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[common.Address]bool

	registry *market.Registry
	users    *ledger.UserLedger
	risk     *risk.Engine
	gate     *auth.Gate
	access   *auth.AccessControl
	transfer TokenTransfer
	clock    auth.Clock

	paused   bool
	sequence int64
	hasher   *StateHasher

	persistChan chan<- Output
	publishChan chan<- Output
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewProcessor(
	registry *market.Registry,
	users *ledger.UserLedger,
	gate *auth.Gate,
	access *auth.AccessControl,
	transfer TokenTransfer,
	clock auth.Clock,
	persistChan, publishChan chan<- Output,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		inflight:    make(map[common.Address]bool),
		registry:    registry,
		users:       users,
		risk:        risk.NewEngine(registry, users),
		gate:        gate,
		access:      access,
		transfer:    transfer,
		clock:       clock,
		sequence:    1,
		hasher:      NewStateHasher(),
		persistChan: persistChan,
		publishChan: publishChan,
		metrics:     metrics,
		log:         log.With().Str("component", "processor").Logger(),
	}
}

// Restore sets the sequence counter and hash chain tip from the last
// persisted envelope. Call before serving traffic.
func (p *Processor) Restore(lastSequence int64, lastHash [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequence = lastSequence + 1
	p.hasher.SetPrevHash(lastHash)
}

// begin rejects re-entrant invocations by the same caller, then takes the
// operation lock. Every mutating operation pairs it with end via defer.
func (p *Processor) begin(caller common.Address) error {
	p.inflightMu.Lock()
	if p.inflight[caller] {
		p.inflightMu.Unlock()
		return errs.Statef("reentrant call by %s rejected", caller.Hex())
	}
	p.inflight[caller] = true
	p.inflightMu.Unlock()

	p.mu.Lock()
	return nil
}

func (p *Processor) end(caller common.Address) {
	p.mu.Unlock()
	p.inflightMu.Lock()
	delete(p.inflight, caller)
	p.inflightMu.Unlock()
}

func (p *Processor) requireRunning() error {
	if p.paused {
		return errs.Statef("system is paused")
	}
	return nil
}

func requirePositive(amount int64) error {
	if amount <= 0 {
		return errs.Validationf("amount must be positive, got %d", amount)
	}
	return nil
}

// AddMarket lists a new asset market. Owner only.
func (p *Processor) AddMarket(ctx context.Context, caller common.Address, asset string, collateralFactorBps, supplyRateBps, borrowRateBps int64) error {
	op := "add_market"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.requireRunning(); err != nil {
		return p.rejected(op, err)
	}
	if err := p.access.RequireOwner(caller); err != nil {
		return p.rejected(op, err)
	}
	if _, err := p.registry.Add(asset, collateralFactorBps, supplyRateBps, borrowRateBps); err != nil {
		return p.rejected(op, err)
	}

	p.emit(event.EventTypeMarketListed, common.Address{}, asset, event.MarketListed{
		Asset:               asset,
		CollateralFactorBps: collateralFactorBps,
		SupplyRateBps:       supplyRateBps,
		BorrowRateBps:       borrowRateBps,
	})
	p.applied(op, start)
	return nil
}

// UpdateMarket changes rates and collateral factor on a listed market.
// Owner only.
func (p *Processor) UpdateMarket(ctx context.Context, caller common.Address, asset string, collateralFactorBps, supplyRateBps, borrowRateBps int64) error {
	op := "update_market"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.requireRunning(); err != nil {
		return p.rejected(op, err)
	}
	if err := p.access.RequireOwner(caller); err != nil {
		return p.rejected(op, err)
	}
	if _, err := p.registry.Update(asset, collateralFactorBps, supplyRateBps, borrowRateBps); err != nil {
		return p.rejected(op, err)
	}

	p.emit(event.EventTypeMarketUpdated, common.Address{}, asset, event.MarketUpdated{
		Asset:               asset,
		CollateralFactorBps: collateralFactorBps,
		SupplyRateBps:       supplyRateBps,
		BorrowRateBps:       borrowRateBps,
	})
	p.applied(op, start)
	return nil
}

// Deposit pulls amount of asset from the caller and credits their
// collateral balance. Funds move before state so a failed transfer leaves
// the ledger untouched.
func (p *Processor) Deposit(ctx context.Context, caller common.Address, asset string, amount int64) error {
	op := "deposit"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.depositLocked(ctx, caller, asset, amount, false); err != nil {
		return p.rejected(op, err)
	}
	p.applied(op, start)
	return nil
}

func (p *Processor) depositLocked(ctx context.Context, user common.Address, asset string, amount int64, signed bool) error {
	if err := p.requireRunning(); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	m, err := p.registry.RequireActive(asset)
	if err != nil {
		return err
	}

	if err := p.transfer.TransferIn(ctx, asset, user, amount); err != nil {
		return errs.Statef("inbound transfer failed: %v", err)
	}

	now := p.clock.Now().Unix()
	p.users.IncreaseDeposit(user, asset, amount, now)
	m.TotalSupply += amount

	p.emit(event.EventTypeDeposited, user, asset, event.Deposited{
		User: user, Asset: asset, Amount: amount, Signed: signed,
	})
	return nil
}

// Withdraw debits the caller's collateral and pushes the funds out. The
// state change is rolled back if the outbound transfer fails, so a failed
// withdrawal has no observable effect.
func (p *Processor) Withdraw(ctx context.Context, caller common.Address, asset string, amount int64) error {
	op := "withdraw"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.requireRunning(); err != nil {
		return p.rejected(op, err)
	}
	if err := requirePositive(amount); err != nil {
		return p.rejected(op, err)
	}
	m, err := p.registry.RequireActive(asset)
	if err != nil {
		return p.rejected(op, err)
	}
	if have := p.users.Deposit(caller, asset); have < amount {
		return p.rejected(op, errs.Statef("insufficient deposit: have=%d, need=%d", have, amount))
	}
	if !p.risk.CanWithdraw(caller, asset, amount) {
		return p.rejected(op, errs.Safetyf("withdrawal of %d %s would leave position undercollateralized", amount, asset))
	}

	now := p.clock.Now().Unix()
	if err := p.users.DecreaseDeposit(caller, asset, amount, now); err != nil {
		return p.rejected(op, err)
	}
	m.TotalSupply -= amount

	if err := p.transfer.TransferOut(ctx, asset, caller, amount); err != nil {
		p.users.IncreaseDeposit(caller, asset, amount, now)
		m.TotalSupply += amount
		return p.rejected(op, errs.Statef("outbound transfer failed: %v", err))
	}

	p.emit(event.EventTypeWithdrawn, caller, asset, event.Withdrawn{
		User: caller, Asset: asset, Amount: amount,
	})
	p.applied(op, start)
	return nil
}

// Borrow draws amount of asset against the caller's collateral and pushes
// the funds out. Market liquidity is checked against recorded supply.
func (p *Processor) Borrow(ctx context.Context, caller common.Address, asset string, amount int64) error {
	op := "borrow"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.requireRunning(); err != nil {
		return p.rejected(op, err)
	}
	if err := requirePositive(amount); err != nil {
		return p.rejected(op, err)
	}
	m, err := p.registry.RequireActive(asset)
	if err != nil {
		return p.rejected(op, err)
	}
	if m.TotalSupply < amount {
		return p.rejected(op, errs.Statef("insufficient market liquidity: supply=%d, need=%d", m.TotalSupply, amount))
	}
	if !p.risk.CanBorrow(caller, asset, amount) {
		return p.rejected(op, errs.Safetyf("borrow of %d %s would leave position undercollateralized", amount, asset))
	}

	now := p.clock.Now().Unix()
	p.users.IncreaseBorrow(caller, asset, amount, now)
	m.TotalBorrow += amount

	if err := p.transfer.TransferOut(ctx, asset, caller, amount); err != nil {
		if rbErr := p.users.DecreaseBorrow(caller, asset, amount, now); rbErr != nil {
			p.log.Error().Err(rbErr).Str("user", caller.Hex()).Msg("borrow rollback failed")
		}
		m.TotalBorrow -= amount
		return p.rejected(op, errs.Statef("outbound transfer failed: %v", err))
	}

	p.emit(event.EventTypeBorrowed, caller, asset, event.Borrowed{
		User: caller, Asset: asset, Amount: amount,
	})
	p.applied(op, start)
	return nil
}

// Repay pulls amount of asset from the caller and reduces their debt.
// Repaying more than is owed is rejected, not clamped.
func (p *Processor) Repay(ctx context.Context, caller common.Address, asset string, amount int64) error {
	op := "repay"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.requireRunning(); err != nil {
		return p.rejected(op, err)
	}
	if err := requirePositive(amount); err != nil {
		return p.rejected(op, err)
	}
	m, err := p.registry.RequireActive(asset)
	if err != nil {
		return p.rejected(op, err)
	}
	if owed := p.users.Borrow(caller, asset); owed < amount {
		return p.rejected(op, errs.Statef("repay exceeds debt: owed=%d, got=%d", owed, amount))
	}

	if err := p.transfer.TransferIn(ctx, asset, caller, amount); err != nil {
		return p.rejected(op, errs.Statef("inbound transfer failed: %v", err))
	}

	now := p.clock.Now().Unix()
	if err := p.users.DecreaseBorrow(caller, asset, amount, now); err != nil {
		return p.rejected(op, err)
	}
	m.TotalBorrow -= amount

	p.emit(event.EventTypeRepaid, caller, asset, event.Repaid{
		User: caller, Asset: asset, Amount: amount,
	})
	p.applied(op, start)
	return nil
}

// Liquidate lets the caller repay amount of the borrower's debt in
// debtAsset and seize the borrower's most valuable collateral at a
// penalty. Every precondition, including seize sufficiency, is verified
// before any funds move.
func (p *Processor) Liquidate(ctx context.Context, caller, borrower common.Address, debtAsset string, amount int64) error {
	op := "liquidate"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.requireRunning(); err != nil {
		return p.rejected(op, err)
	}
	if err := requirePositive(amount); err != nil {
		return p.rejected(op, err)
	}
	debtMarket, err := p.registry.RequireActive(debtAsset)
	if err != nil {
		return p.rejected(op, err)
	}
	if !p.risk.IsLiquidatable(borrower) {
		return p.rejected(op, errs.Safetyf("position of %s is not liquidatable", borrower.Hex()))
	}
	if owed := p.users.Borrow(borrower, debtAsset); owed < amount {
		return p.rejected(op, errs.Statef("repay exceeds debt: owed=%d, got=%d", owed, amount))
	}

	collateralAsset, ok := p.risk.FindBestCollateral(borrower)
	if !ok {
		return p.rejected(op, errs.Statef("borrower %s has no collateral to seize", borrower.Hex()))
	}
	collateralMarket, err := p.registry.RequireActive(collateralAsset)
	if err != nil {
		return p.rejected(op, err)
	}

	// Seize quantity is computed in debt-asset units and applied to the
	// collateral asset unconverted. Deployed behavior, kept as is.
	seize := amount * (market.MaxBps + risk.LiquidationPenaltyBps) / market.MaxBps
	if have := p.users.Deposit(borrower, collateralAsset); have < seize {
		return p.rejected(op, errs.Statef("insufficient collateral to seize: have=%d, need=%d", have, seize))
	}

	if err := p.transfer.TransferIn(ctx, debtAsset, caller, amount); err != nil {
		return p.rejected(op, errs.Statef("inbound transfer failed: %v", err))
	}

	now := p.clock.Now().Unix()
	if err := p.users.DecreaseBorrow(borrower, debtAsset, amount, now); err != nil {
		return p.rejected(op, err)
	}
	debtMarket.TotalBorrow -= amount
	if err := p.users.DecreaseDeposit(borrower, collateralAsset, seize, now); err != nil {
		p.users.IncreaseBorrow(borrower, debtAsset, amount, now)
		debtMarket.TotalBorrow += amount
		return p.rejected(op, err)
	}
	collateralMarket.TotalSupply -= seize

	if err := p.transfer.TransferOut(ctx, collateralAsset, caller, seize); err != nil {
		p.users.IncreaseDeposit(borrower, collateralAsset, seize, now)
		collateralMarket.TotalSupply += seize
		p.users.IncreaseBorrow(borrower, debtAsset, amount, now)
		debtMarket.TotalBorrow += amount
		if refundErr := p.transfer.TransferOut(ctx, debtAsset, caller, amount); refundErr != nil {
			p.log.Error().Err(refundErr).
				Str("liquidator", caller.Hex()).
				Str("asset", debtAsset).
				Int64("amount", amount).
				Msg("liquidation refund failed, funds held in custody")
		}
		return p.rejected(op, errs.Statef("collateral transfer failed: %v", err))
	}

	p.emit(event.EventTypeLiquidated, borrower, debtAsset, event.Liquidated{
		Liquidator:      caller,
		Borrower:        borrower,
		DebtAsset:       debtAsset,
		Repaid:          amount,
		CollateralAsset: collateralAsset,
		Seized:          seize,
	})
	if p.metrics != nil {
		p.metrics.Liquidations.Inc()
	}
	p.applied(op, start)
	return nil
}

// DepositWithSignature executes a deposit on behalf of req.User, relayed
// by any caller, authorized by the user's signature over the request. The
// user's nonce advances only after the deposit succeeds.
func (p *Processor) DepositWithSignature(ctx context.Context, caller common.Address, req auth.Request) error {
	op := "deposit_with_signature"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if req.Op != "deposit" {
		return p.rejected(op, errs.Validationf("unexpected signed op %q", req.Op))
	}
	if err := p.gate.Authorize(req, p.users.Nonce(req.User)); err != nil {
		return p.rejected(op, err)
	}
	if err := p.depositLocked(ctx, req.User, req.Asset, req.Amount, true); err != nil {
		return p.rejected(op, err)
	}
	p.users.BumpNonce(req.User)
	p.applied(op, start)
	return nil
}

// Pause halts all mutating operations. Owner only.
func (p *Processor) Pause(ctx context.Context, caller common.Address) error {
	op := "pause"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.access.RequireOwner(caller); err != nil {
		return p.rejected(op, err)
	}
	if p.paused {
		return p.rejected(op, errs.Statef("system is already paused"))
	}
	p.paused = true

	p.emit(event.EventTypeSystemPaused, caller, "", event.SystemPaused{By: caller})
	p.applied(op, start)
	return nil
}

// Unpause resumes processing. Owner only.
func (p *Processor) Unpause(ctx context.Context, caller common.Address) error {
	op := "unpause"
	start := time.Now()
	if err := p.begin(caller); err != nil {
		return p.rejected(op, err)
	}
	defer p.end(caller)

	if err := p.access.RequireOwner(caller); err != nil {
		return p.rejected(op, err)
	}
	if !p.paused {
		return p.rejected(op, errs.Statef("system is not paused"))
	}
	p.paused = false

	p.emit(event.EventTypeSystemUnpaused, caller, "", event.SystemUnpaused{By: caller})
	p.applied(op, start)
	return nil
}

// emit assigns the next sequence, extends the hash chain over the touched
// state, and hands the envelope downstream. Persistence uses a blocking
// send so no audit record is lost; publishing drops on a full buffer.
func (p *Processor) emit(eventType event.EventType, user common.Address, asset string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("FATAL: unmarshalable event payload %T: %v", payload, err))
	}

	prevHash := p.hasher.GetPrevHash()
	stateHash := p.hasher.ComputeHash(p.sequence, p.computeStateDigest(user, asset))

	envelope := &event.Envelope{
		EventID:   uuid.NewString(),
		Sequence:  p.sequence,
		EventType: eventType,
		User:      user,
		Asset:     asset,
		Payload:   data,
		Timestamp: p.clock.Now(),
		StateHash: stateHash,
		PrevHash:  prevHash,
	}
	p.sequence++

	output := Output{Envelope: envelope}

	if p.persistChan != nil {
		p.persistChan <- output
	}
	if p.publishChan != nil {
		select {
		case p.publishChan <- output:
		default:
			if p.metrics != nil {
				p.metrics.PublishDropped.Inc()
			}
		}
	}

	if p.metrics != nil {
		p.metrics.Sequence.Set(float64(p.sequence))
	}
}

// computeStateDigest serializes the state touched by an operation: the
// user's aggregates and nonce, their position in the asset, and the
// market totals.
func (p *Processor) computeStateDigest(user common.Address, asset string) []byte {
	digest := make([]byte, 0, 96)
	digest = append(digest, user.Bytes()...)

	if u, ok := p.users.Get(user); ok {
		digest = appendInt64LE(digest, u.TotalDeposited)
		digest = appendInt64LE(digest, u.TotalBorrowed)
		var nonceBuf [8]byte
		binary.LittleEndian.PutUint64(nonceBuf[:], p.users.Nonce(user))
		digest = append(digest, nonceBuf[:]...)
	}

	if asset != "" {
		digest = append(digest, byte(len(asset)))
		digest = append(digest, []byte(asset)...)
		digest = appendInt64LE(digest, p.users.Deposit(user, asset))
		digest = appendInt64LE(digest, p.users.Borrow(user, asset))
		if m, ok := p.registry.Get(asset); ok {
			digest = appendInt64LE(digest, m.TotalSupply)
			digest = appendInt64LE(digest, m.TotalBorrow)
		}
	}

	if p.paused {
		digest = append(digest, 1)
	} else {
		digest = append(digest, 0)
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func (p *Processor) applied(op string, start time.Time) {
	if p.metrics != nil {
		p.metrics.OpsApplied.WithLabelValues(op).Inc()
		p.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (p *Processor) rejected(op string, err error) error {
	if p.metrics != nil {
		p.metrics.OpsRejected.WithLabelValues(op, errs.Kind(err)).Inc()
	}
	return err
}
