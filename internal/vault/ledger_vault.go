/*

This file contains the in-process vault. Accounting follows the v2 vault model without fees and without profit
locking: total assets are idle principal plus the debt lent to strategies, and every strategy may hold a debt ratio
(in basis points) of the total.

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrPermissionDenied      = errors.New("caller is not permitted")
	ErrShutdown              = errors.New("vault is in emergency shutdown")
	ErrStrategyNotActive     = errors.New("strategy is not active")
	ErrStrategyAlreadyActive = errors.New("strategy is already active")
	ErrStrategyMismatch      = errors.New("strategy does not belong to this vault")
	ErrDebtRatioExceeded     = errors.New("total debt ratio would exceed 100%")
	ErrInvalidDebtLimits     = errors.New("min debt per harvest exceeds max debt per harvest")
	ErrInsufficientLiquidity = errors.New("strategy does not hold gain plus debt payment")
	ErrLossExceedsDebt       = errors.New("reported loss exceeds strategy debt")
	ErrMaxLossExceeded       = errors.New("withdrawal loss exceeds max loss")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrQueueFull             = errors.New("withdrawal queue is full")
)

// MaxStrategies bounds the withdrawal queue.
const MaxStrategies = 20

// DefaultMaxLossBPS is the loss a withdrawal tolerates when the caller does not say otherwise.
const DefaultMaxLossBPS = 1

// Config holds the roles and addresses a LedgerVault is created with.
type Config struct {
	Address    common.Address // Also the address of the vault share token
	Token      common.Address
	Governance common.Address
	Management common.Address
	Guardian   common.Address
	Ledger     *ledger.Ledger
}

type strategyRecord struct {
	params   types.StrategyParams
	strategy Strategy
}

// LedgerVault implements VaultManager on top of the shared ledger.
type LedgerVault struct {
	mu         sync.RWMutex
	withdrawMu sync.Mutex // serializes share redemptions, which call into strategies without mu held

	address           common.Address
	token             common.Address
	governance        common.Address
	management        common.Address
	guardian          common.Address
	emergencyShutdown bool

	ledger          *ledger.Ledger
	strategies      map[common.Address]*strategyRecord
	withdrawalQueue []common.Address
	debtRatio       uint64
	totalDebt       math.Int
	lastReport      time.Time

	now    func() time.Time
	logger zerolog.Logger
}

var _ VaultManager = (*LedgerVault)(nil)

// NewLedgerVault creates a vault with no strategies and no deposits.
func NewLedgerVault(cfg Config) (*LedgerVault, error) {
	if err := validateVaultConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}
	v := &LedgerVault{
		address:    cfg.Address,
		token:      cfg.Token,
		governance: cfg.Governance,
		management: cfg.Management,
		guardian:   cfg.Guardian,
		ledger:     cfg.Ledger,
		strategies: make(map[common.Address]*strategyRecord),
		totalDebt:  math.ZeroInt(),
		now:        time.Now,
		logger:     logger.GetForComponent("vault"),
	}
	v.lastReport = v.now()
	return v, nil
}

func validateVaultConfig(cfg Config) error {
	zero := common.Address{}
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Address == zero {
		return fmt.Errorf("vault address cannot be zero")
	}
	if cfg.Token == zero {
		return fmt.Errorf("token address cannot be zero")
	}
	if cfg.Governance == zero {
		return fmt.Errorf("governance address cannot be zero")
	}
	return nil
}

// SetClock replaces the time source. Used by simulations and tests.
func (v *LedgerVault) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
}

func (v *LedgerVault) Address() common.Address { return v.address }
func (v *LedgerVault) Token() common.Address   { return v.token }

func (v *LedgerVault) Governance() common.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance
}

func (v *LedgerVault) Management() common.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.management
}

func (v *LedgerVault) Guardian() common.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.guardian
}

func (v *LedgerVault) EmergencyShutdown() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.emergencyShutdown
}

func (v *LedgerVault) SetGovernance(caller, governance common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.governance {
		return fmt.Errorf("%w: %s is not governance", ErrPermissionDenied, caller.Hex())
	}
	v.governance = governance
	return nil
}

func (v *LedgerVault) SetManagement(caller, management common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.governance {
		return fmt.Errorf("%w: %s is not governance", ErrPermissionDenied, caller.Hex())
	}
	v.management = management
	return nil
}

func (v *LedgerVault) SetGuardian(caller, guardian common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.governance && caller != v.guardian {
		return fmt.Errorf("%w: %s is not governance or guardian", ErrPermissionDenied, caller.Hex())
	}
	v.guardian = guardian
	return nil
}

// SetEmergencyShutdown lets governance or the guardian stop new lending; only governance can resume it.
func (v *LedgerVault) SetEmergencyShutdown(caller common.Address, active bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if active {
		if caller != v.governance && caller != v.guardian {
			return fmt.Errorf("%w: %s cannot shut the vault down", ErrPermissionDenied, caller.Hex())
		}
	} else if caller != v.governance {
		return fmt.Errorf("%w: %s cannot resume the vault", ErrPermissionDenied, caller.Hex())
	}
	v.emergencyShutdown = active
	v.logger.Warn().Bool("active", active).Str("caller", caller.Hex()).Msg("Emergency shutdown updated")
	return nil
}

// TotalAssets is idle principal plus everything lent out.
func (v *LedgerVault) TotalAssets() math.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalAssetsLocked()
}

func (v *LedgerVault) totalAssetsLocked() math.Int {
	return v.idleLocked().Add(v.totalDebt)
}

func (v *LedgerVault) idleLocked() math.Int {
	return v.ledger.BalanceOf(v.token, v.address)
}

func (v *LedgerVault) TotalDebt() math.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalDebt
}

func (v *LedgerVault) DebtRatio() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.debtRatio
}

func (v *LedgerVault) TotalSupply() math.Int {
	return v.ledger.TotalSupply(v.address)
}

// PricePerShare is the value of one whole share in principal base units for the given decimals.
func (v *LedgerVault) PricePerShare(decimals int) math.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	unit := math.NewIntWithDecimal(1, decimals)
	return v.shareValueLocked(unit)
}

func (v *LedgerVault) shareValueLocked(shares math.Int) math.Int {
	supply := v.ledger.TotalSupply(v.address)
	if supply.IsZero() {
		return shares
	}
	return shares.Mul(v.totalAssetsLocked()).Quo(supply)
}

func (v *LedgerVault) sharesForAmountLocked(amount math.Int) math.Int {
	assets := v.totalAssetsLocked()
	if assets.IsZero() {
		return math.ZeroInt()
	}
	return amount.Mul(v.ledger.TotalSupply(v.address)).Quo(assets)
}

// Deposit pulls amount from user (which must have approved the vault) and mints shares to user.
func (v *LedgerVault) Deposit(ctx context.Context, user common.Address, amount math.Int) (math.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return math.ZeroInt(), fmt.Errorf("%w: deposit %v", ErrInvalidAmount, amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.emergencyShutdown {
		return math.ZeroInt(), ErrShutdown
	}

	shares := amount
	if supply := v.ledger.TotalSupply(v.address); !supply.IsZero() {
		shares = amount.Mul(supply).Quo(v.totalAssetsLocked())
	}
	if !shares.IsPositive() {
		return math.ZeroInt(), fmt.Errorf("%w: deposit of %s mints no shares", ErrInvalidAmount, amount)
	}

	if err := v.ledger.TransferFrom(v.token, v.address, user, v.address, amount); err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to pull deposit: %w", err)
	}
	if err := v.ledger.Mint(v.address, user, shares); err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to mint shares: %w", err)
	}

	v.logger.Debug().Str("user", user.Hex()).Str("amount", amount.String()).Str("shares", shares.String()).Msg("Deposit")
	return shares, nil
}

// Withdraw redeems up to maxShares of user's shares with the default max loss.
func (v *LedgerVault) Withdraw(ctx context.Context, user common.Address, maxShares math.Int) (math.Int, error) {
	return v.WithdrawWithMaxLoss(ctx, user, maxShares, DefaultMaxLossBPS)
}

// WithdrawWithMaxLoss redeems up to maxShares. When idle principal is short the vault pulls from
// strategies in queue order; strategies that can only free part of the request cause a partial
// redemption, and only the shares matching what was delivered are burned. Returns the amount paid.
func (v *LedgerVault) WithdrawWithMaxLoss(ctx context.Context, user common.Address, maxShares math.Int, maxLossBPS uint64) (math.Int, error) {
	v.withdrawMu.Lock()
	defer v.withdrawMu.Unlock()

	v.mu.Lock()
	shares := maxShares
	if bal := v.ledger.BalanceOf(v.address, user); shares.IsNil() || shares.GT(bal) {
		shares = bal
	}
	if !shares.IsPositive() {
		v.mu.Unlock()
		return math.ZeroInt(), fmt.Errorf("%w: no shares to redeem", ErrInvalidAmount)
	}
	value := v.shareValueLocked(shares)
	queue := append([]common.Address(nil), v.withdrawalQueue...)
	v.mu.Unlock()

	totalLoss := math.ZeroInt()
	for _, addr := range queue {
		v.mu.RLock()
		idle := v.idleLocked()
		rec, ok := v.strategies[addr]
		var debt math.Int
		if ok {
			debt = rec.params.TotalDebt
		}
		v.mu.RUnlock()

		if value.LTE(idle) {
			break
		}
		if !ok {
			continue
		}
		needed := math.MinInt(value.Sub(idle), debt)
		if needed.IsZero() {
			continue
		}

		loss, err := rec.strategy.Withdraw(ctx, v.address, needed)
		if err != nil {
			return math.ZeroInt(), fmt.Errorf("strategy %s withdraw failed: %w", addr.Hex(), err)
		}

		v.mu.Lock()
		withdrawn := v.idleLocked().Sub(idle)
		if loss.IsPositive() {
			value = value.Sub(loss)
			totalLoss = totalLoss.Add(loss)
			if err := v.reportLossLocked(rec, loss); err != nil {
				v.mu.Unlock()
				return math.ZeroInt(), err
			}
		}
		paid := math.MinInt(withdrawn, rec.params.TotalDebt)
		rec.params.TotalDebt = rec.params.TotalDebt.Sub(paid)
		v.totalDebt = v.totalDebt.Sub(paid)
		v.mu.Unlock()

		v.logger.Debug().
			Str("strategy", addr.Hex()).
			Str("needed", needed.String()).
			Str("withdrawn", withdrawn.String()).
			Str("loss", loss.String()).
			Msg("Pulled funds from strategy")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	idle := v.idleLocked()
	if value.GT(idle) {
		value = idle
		// total assets already shrank by what the strategies lost
		shares = v.sharesForAmountLocked(value.Add(totalLoss))
		if bal := v.ledger.BalanceOf(v.address, user); shares.GT(bal) {
			shares = bal
		}
	}

	if totalLoss.IsPositive() {
		limit := value.Add(totalLoss).MulRaw(int64(maxLossBPS)).QuoRaw(MaxBPS)
		if totalLoss.GT(limit) {
			return math.ZeroInt(), fmt.Errorf("%w: lost %s, allowed %s", ErrMaxLossExceeded, totalLoss, limit)
		}
	}

	if err := v.ledger.Burn(v.address, user, shares); err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to burn shares: %w", err)
	}
	if err := v.ledger.Transfer(v.token, v.address, user, value); err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to pay out withdrawal: %w", err)
	}

	v.logger.Info().
		Str("user", user.Hex()).
		Str("shares", shares.String()).
		Str("value", value.String()).
		Str("loss", totalLoss.String()).
		Msg("Withdrawal")
	return value, nil
}

// AddStrategy activates strategy with the given debt ratio and per-harvest debt limits.
func (v *LedgerVault) AddStrategy(caller common.Address, s Strategy, debtRatio uint64, minDebtPerHarvest, maxDebtPerHarvest math.Int) error {
	// read the strategy before taking the vault lock
	addr, want, owner := s.Address(), s.Want(), s.VaultAddress()

	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.governance {
		return fmt.Errorf("%w: %s is not governance", ErrPermissionDenied, caller.Hex())
	}
	if v.emergencyShutdown {
		return ErrShutdown
	}
	if len(v.withdrawalQueue) >= MaxStrategies {
		return ErrQueueFull
	}
	if owner != v.address || want != v.token {
		return fmt.Errorf("%w: %s", ErrStrategyMismatch, addr.Hex())
	}
	if rec, ok := v.strategies[addr]; ok && rec.params.IsActive() {
		return fmt.Errorf("%w: %s", ErrStrategyAlreadyActive, addr.Hex())
	}
	if v.debtRatio+debtRatio > MaxBPS {
		return fmt.Errorf("%w: %d + %d", ErrDebtRatioExceeded, v.debtRatio, debtRatio)
	}
	if minDebtPerHarvest.GT(maxDebtPerHarvest) {
		return ErrInvalidDebtLimits
	}

	now := v.now()
	v.strategies[addr] = &strategyRecord{
		strategy: s,
		params: types.StrategyParams{
			Activation:        now,
			DebtRatio:         debtRatio,
			MinDebtPerHarvest: minDebtPerHarvest,
			MaxDebtPerHarvest: maxDebtPerHarvest,
			LastReport:        now,
			TotalDebt:         math.ZeroInt(),
			TotalGain:         math.ZeroInt(),
			TotalLoss:         math.ZeroInt(),
		},
	}
	v.debtRatio += debtRatio
	v.withdrawalQueue = append(v.withdrawalQueue, addr)

	v.logger.Info().Str("strategy", addr.Hex()).Uint64("debtRatio", debtRatio).Msg("Strategy added")
	return nil
}

// UpdateStrategyDebtRatio changes the share of vault assets strategy may hold.
func (v *LedgerVault) UpdateStrategyDebtRatio(caller, strategy common.Address, debtRatio uint64) error {
	v.mu.RLock()
	rec, ok := v.strategies[strategy]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStrategyNotActive, strategy.Hex())
	}
	exiting := rec.strategy.EmergencyExit()

	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.governance && caller != v.management {
		return fmt.Errorf("%w: %s is not governance or management", ErrPermissionDenied, caller.Hex())
	}
	if !rec.params.IsActive() {
		return fmt.Errorf("%w: %s", ErrStrategyNotActive, strategy.Hex())
	}
	if exiting {
		return fmt.Errorf("%w: %s is in emergency exit", ErrPermissionDenied, strategy.Hex())
	}
	newTotal := v.debtRatio - rec.params.DebtRatio + debtRatio
	if newTotal > MaxBPS {
		return fmt.Errorf("%w: %d", ErrDebtRatioExceeded, newTotal)
	}
	v.debtRatio = newTotal
	rec.params.DebtRatio = debtRatio

	v.logger.Info().Str("strategy", strategy.Hex()).Uint64("debtRatio", debtRatio).Msg("Strategy debt ratio updated")
	return nil
}

// RevokeStrategy can be called by governance, the guardian or the strategy itself.
func (v *LedgerVault) RevokeStrategy(ctx context.Context, caller, strategy common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != strategy && caller != v.governance && caller != v.guardian {
		return fmt.Errorf("%w: %s cannot revoke %s", ErrPermissionDenied, caller.Hex(), strategy.Hex())
	}
	rec, ok := v.strategies[strategy]
	if !ok || !rec.params.IsActive() {
		return fmt.Errorf("%w: %s", ErrStrategyNotActive, strategy.Hex())
	}
	if rec.params.DebtRatio == 0 {
		return nil
	}
	v.debtRatio -= rec.params.DebtRatio
	rec.params.DebtRatio = 0

	v.logger.Warn().Str("strategy", strategy.Hex()).Str("caller", caller.Hex()).Msg("Strategy revoked")
	return nil
}

// MigrateStrategy hands old's debt and positions to newStrategy.
func (v *LedgerVault) MigrateStrategy(ctx context.Context, caller common.Address, old common.Address, newStrategy Strategy) error {
	newAddr, want, owner := newStrategy.Address(), newStrategy.Want(), newStrategy.VaultAddress()

	v.mu.Lock()
	if caller != v.governance {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s is not governance", ErrPermissionDenied, caller.Hex())
	}
	rec, ok := v.strategies[old]
	if !ok || !rec.params.IsActive() {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStrategyNotActive, old.Hex())
	}
	if existing, ok := v.strategies[newAddr]; ok && existing.params.IsActive() {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStrategyAlreadyActive, newAddr.Hex())
	}
	if owner != v.address || want != v.token {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStrategyMismatch, newAddr.Hex())
	}
	oldStrategy := rec.strategy
	v.mu.Unlock()

	if err := oldStrategy.Migrate(ctx, v.address, newAddr); err != nil {
		return fmt.Errorf("strategy %s migrate failed: %w", old.Hex(), err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	params := rec.params
	v.strategies[newAddr] = &strategyRecord{
		strategy: newStrategy,
		params: types.StrategyParams{
			Activation:        params.LastReport,
			DebtRatio:         params.DebtRatio,
			MinDebtPerHarvest: params.MinDebtPerHarvest,
			MaxDebtPerHarvest: params.MaxDebtPerHarvest,
			LastReport:        params.LastReport,
			TotalDebt:         params.TotalDebt,
			TotalGain:         math.ZeroInt(),
			TotalLoss:         math.ZeroInt(),
		},
	}
	rec.params.DebtRatio = 0
	rec.params.TotalDebt = math.ZeroInt()
	for i, addr := range v.withdrawalQueue {
		if addr == old {
			v.withdrawalQueue[i] = newAddr
		}
	}

	v.logger.Info().Str("old", old.Hex()).Str("new", newAddr.Hex()).Msg("Strategy migrated")
	return nil
}

func (v *LedgerVault) StrategyParams(strategy common.Address) types.StrategyParams {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if rec, ok := v.strategies[strategy]; ok {
		return rec.params
	}
	return types.StrategyParams{
		MinDebtPerHarvest: math.ZeroInt(),
		MaxDebtPerHarvest: math.ZeroInt(),
		TotalDebt:         math.ZeroInt(),
		TotalGain:         math.ZeroInt(),
		TotalLoss:         math.ZeroInt(),
	}
}

// WithdrawalQueue returns the strategies in the order withdrawals pull from them.
func (v *LedgerVault) WithdrawalQueue() []common.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]common.Address(nil), v.withdrawalQueue...)
}

func (v *LedgerVault) DebtOutstanding(strategy common.Address) math.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.debtOutstandingLocked(strategy)
}

func (v *LedgerVault) debtOutstandingLocked(strategy common.Address) math.Int {
	rec, ok := v.strategies[strategy]
	if !ok {
		return math.ZeroInt()
	}
	if v.debtRatio == 0 || v.emergencyShutdown {
		return rec.params.TotalDebt
	}
	limit := v.totalAssetsLocked().MulRaw(int64(rec.params.DebtRatio)).QuoRaw(MaxBPS)
	if rec.params.TotalDebt.LTE(limit) {
		return math.ZeroInt()
	}
	return rec.params.TotalDebt.Sub(limit)
}

func (v *LedgerVault) CreditAvailable(strategy common.Address) math.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.creditAvailableLocked(strategy)
}

func (v *LedgerVault) creditAvailableLocked(strategy common.Address) math.Int {
	rec, ok := v.strategies[strategy]
	if !ok || v.emergencyShutdown {
		return math.ZeroInt()
	}
	assets := v.totalAssetsLocked()
	vaultLimit := assets.MulRaw(int64(v.debtRatio)).QuoRaw(MaxBPS)
	strategyLimit := assets.MulRaw(int64(rec.params.DebtRatio)).QuoRaw(MaxBPS)
	if strategyLimit.LTE(rec.params.TotalDebt) || vaultLimit.LTE(v.totalDebt) {
		return math.ZeroInt()
	}

	available := strategyLimit.Sub(rec.params.TotalDebt)
	available = math.MinInt(available, vaultLimit.Sub(v.totalDebt))
	available = math.MinInt(available, v.idleLocked())
	if available.LT(rec.params.MinDebtPerHarvest) {
		return math.ZeroInt()
	}
	return math.MinInt(available, rec.params.MaxDebtPerHarvest)
}

func (v *LedgerVault) reportLossLocked(rec *strategyRecord, loss math.Int) error {
	if rec.params.TotalDebt.LT(loss) {
		return fmt.Errorf("%w: loss %s, debt %s", ErrLossExceedsDebt, loss, rec.params.TotalDebt)
	}
	if v.debtRatio != 0 && v.totalDebt.IsPositive() {
		change := loss.MulRaw(int64(v.debtRatio)).Quo(v.totalDebt)
		ratioChange := rec.params.DebtRatio
		if change.IsUint64() && change.Uint64() < ratioChange {
			ratioChange = change.Uint64()
		}
		rec.params.DebtRatio -= ratioChange
		v.debtRatio -= ratioChange
	}
	rec.params.TotalLoss = rec.params.TotalLoss.Add(loss)
	rec.params.TotalDebt = rec.params.TotalDebt.Sub(loss)
	v.totalDebt = v.totalDebt.Sub(loss)
	return nil
}

// Report settles a harvest: the loss is written off, the gain recorded, the debt payment and gain
// collected and any new credit sent out, all as one net transfer.
func (v *LedgerVault) Report(ctx context.Context, strategy common.Address, gain, loss, debtPayment math.Int) (math.Int, error) {
	for _, amt := range []math.Int{gain, loss, debtPayment} {
		if amt.IsNil() || amt.IsNegative() {
			return math.ZeroInt(), fmt.Errorf("%w: report amount %v", ErrInvalidAmount, amt)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.strategies[strategy]
	if !ok || !rec.params.IsActive() {
		return math.ZeroInt(), fmt.Errorf("%w: %s", ErrStrategyNotActive, strategy.Hex())
	}
	if bal := v.ledger.BalanceOf(v.token, strategy); bal.LT(gain.Add(debtPayment)) {
		return math.ZeroInt(), fmt.Errorf("%w: holds %s, reported %s", ErrInsufficientLiquidity, bal, gain.Add(debtPayment))
	}

	if loss.IsPositive() {
		if err := v.reportLossLocked(rec, loss); err != nil {
			return math.ZeroInt(), err
		}
	}
	rec.params.TotalGain = rec.params.TotalGain.Add(gain)

	credit := v.creditAvailableLocked(strategy)
	debt := v.debtOutstandingLocked(strategy)
	payment := math.MinInt(debtPayment, debt)
	if payment.IsPositive() {
		rec.params.TotalDebt = rec.params.TotalDebt.Sub(payment)
		v.totalDebt = v.totalDebt.Sub(payment)
		debt = debt.Sub(payment)
	}
	if credit.IsPositive() {
		rec.params.TotalDebt = rec.params.TotalDebt.Add(credit)
		v.totalDebt = v.totalDebt.Add(credit)
	}

	available := gain.Add(payment)
	switch {
	case available.LT(credit):
		if err := v.ledger.Transfer(v.token, v.address, strategy, credit.Sub(available)); err != nil {
			return math.ZeroInt(), fmt.Errorf("failed to lend credit: %w", err)
		}
	case available.GT(credit):
		if err := v.ledger.TransferFrom(v.token, v.address, strategy, v.address, available.Sub(credit)); err != nil {
			return math.ZeroInt(), fmt.Errorf("failed to collect from strategy: %w", err)
		}
	}

	now := v.now()
	rec.params.LastReport = now
	v.lastReport = now

	v.logger.Info().
		Str("strategy", strategy.Hex()).
		Str("gain", gain.String()).
		Str("loss", loss.String()).
		Str("debtPayment", payment.String()).
		Str("credit", credit.String()).
		Str("totalDebt", rec.params.TotalDebt.String()).
		Msg("Strategy reported")

	if v.debtRatio == 0 || v.emergencyShutdown {
		return rec.params.TotalDebt, nil
	}
	return debt, nil
}
