package strategy

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/yieldkeep/tokestrat/internal/types"
)

type returnPlan struct {
	profit      math.Int
	loss        math.Int
	debtPayment math.Int
	stillLocked math.Int
}

// Harvest reports profit or loss to the vault, repays what the vault asks for as far as liquidity allows
// and redeploys the rest. Liquidity still locked at the venue is queued and shows up as StillLocked.
func (s *Strategy) Harvest(ctx context.Context, caller common.Address) (types.HarvestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, keepers...); err != nil {
		return types.HarvestReport{}, err
	}

	harvestID := uuid.New().String()
	log := s.logger.With().Str("harvest_id", harvestID).Logger()

	before, err := s.estimatedTotalAssetsLocked(ctx)
	if err != nil {
		return types.HarvestReport{}, err
	}
	debtOutstanding := s.vault.DebtOutstanding(s.address)

	plan, err := s.prepareReturnLocked(ctx, debtOutstanding, before)
	if err != nil {
		return types.HarvestReport{}, fmt.Errorf("failed to prepare return: %w", err)
	}

	newOutstanding, err := s.vault.Report(ctx, s.address, plan.profit, plan.loss, plan.debtPayment)
	if err != nil {
		return types.HarvestReport{}, fmt.Errorf("vault report failed: %w", err)
	}

	report := types.HarvestReport{
		HarvestID:         harvestID,
		Strategy:          s.address,
		Timestamp:         s.now(),
		Profit:            plan.profit,
		Loss:              plan.loss,
		DebtPayment:       plan.debtPayment,
		DebtOutstanding:   newOutstanding,
		StillLocked:       plan.stillLocked,
		TotalAssetsBefore: before,
		EmergencyExit:     s.emergencyExit,
	}

	// the report is final at this point, later failures are returned alongside it
	var errs []error
	if err := s.adjustPositionLocked(ctx, newOutstanding); err != nil {
		errs = append(errs, fmt.Errorf("failed to deploy idle funds: %w", err))
	}
	if report.TotalAssetsAfter, err = s.estimatedTotalAssetsLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.VenueCycle, err = s.template.Venue.CurrentCycleIndex(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to read venue cycle: %w", err))
	}
	report.PendingTradeIDs = s.pendingTradeIDsLocked(ctx)

	s.events.Emit(types.HarvestedEvent{
		Strategy:        s.address,
		Profit:          plan.profit,
		Loss:            plan.loss,
		DebtPayment:     plan.debtPayment,
		DebtOutstanding: newOutstanding,
	})

	log.Info().
		Str("profit", plan.profit.String()).
		Str("loss", plan.loss.String()).
		Str("debtPayment", plan.debtPayment.String()).
		Str("debtOutstanding", newOutstanding.String()).
		Str("stillLocked", plan.stillLocked.String()).
		Str("totalAssetsBefore", before.String()).
		Str("totalAssetsAfter", report.TotalAssetsAfter.String()).
		Bool("emergencyExit", s.emergencyExit).
		Msg("Harvested")

	return report, errors.Join(errs...)
}

// prepareReturnLocked works out profit, loss and debt payment from current balances and frees what it can
// towards them. Profit is only forwarded once it is liquid; the debt payment takes precedence.
func (s *Strategy) prepareReturnLocked(ctx context.Context, debtOutstanding, totalAssets math.Int) (returnPlan, error) {
	plan := returnPlan{
		profit:      math.ZeroInt(),
		loss:        math.ZeroInt(),
		debtPayment: math.ZeroInt(),
		stillLocked: math.ZeroInt(),
	}

	totalDebt := s.vault.StrategyParams(s.address).TotalDebt
	surplus := math.ZeroInt()
	if totalAssets.GT(totalDebt) {
		surplus = totalAssets.Sub(totalDebt)
	} else {
		plan.loss = totalDebt.Sub(totalAssets)
	}

	target := debtOutstanding.Add(surplus)
	if s.emergencyExit {
		target = totalAssets
	}

	idle := s.idleLocked()
	if idle.LT(target) {
		_, locked, err := s.coordinator.FreeLiquidity(ctx, target.Sub(idle))
		if err != nil {
			return plan, err
		}
		plan.stillLocked = locked
	}

	idle = s.idleLocked()
	plan.debtPayment = math.MinInt(debtOutstanding, idle)
	plan.profit = math.MinInt(surplus, idle.Sub(plan.debtPayment))
	return plan, nil
}

// adjustPositionLocked stakes idle want above what the vault wants back. Nothing is staked in emergency exit.
func (s *Strategy) adjustPositionLocked(ctx context.Context, debtOutstanding math.Int) error {
	_, err := s.deployLocked(ctx, debtOutstanding)
	return err
}

func (s *Strategy) deployLocked(ctx context.Context, debtOutstanding math.Int) (math.Int, error) {
	if s.emergencyExit {
		return math.ZeroInt(), nil
	}
	idle := s.idleLocked()
	if idle.LTE(debtOutstanding) {
		return math.ZeroInt(), nil
	}
	amount := idle.Sub(debtOutstanding)
	if err := s.template.Venue.Deposit(ctx, s.address, amount); err != nil {
		return math.ZeroInt(), err
	}
	s.logger.Debug().Str("amount", amount.String()).Msg("Deployed idle funds")
	return amount, nil
}

// Tend stakes idle want, keeping the vault's outstanding debt liquid. It never requests withdrawals.
func (s *Strategy) Tend(ctx context.Context, caller common.Address) (math.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, keepers...); err != nil {
		return math.ZeroInt(), err
	}
	deployed, err := s.deployLocked(ctx, s.vault.DebtOutstanding(s.address))
	if err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to deploy idle funds: %w", err)
	}
	if deployed.IsPositive() {
		s.logger.Info().Str("deployed", deployed.String()).Msg("Tended")
	}
	return deployed, nil
}

// Withdraw is called by the vault to pull amount back. Idle want goes first, then whatever is eligible at
// the venue; the rest is queued. The returned loss only covers funds that no longer exist, never funds
// that are merely locked.
func (s *Strategy) Withdraw(ctx context.Context, caller common.Address, amount math.Int) (math.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleVault); err != nil {
		return math.ZeroInt(), err
	}
	if amount.IsNil() || amount.IsNegative() {
		return math.ZeroInt(), fmt.Errorf("%w: withdraw %v", ErrInvalidAmount, amount)
	}

	totalAssets, err := s.estimatedTotalAssetsLocked(ctx)
	if err != nil {
		return math.ZeroInt(), err
	}

	idle := s.idleLocked()
	stillLocked := math.ZeroInt()
	if idle.LT(amount) {
		if _, stillLocked, err = s.coordinator.FreeLiquidity(ctx, amount.Sub(idle)); err != nil {
			return math.ZeroInt(), err
		}
	}

	freed := math.MinInt(amount, s.idleLocked())
	loss := math.ZeroInt()
	if amount.GT(totalAssets) {
		loss = amount.Sub(totalAssets)
	}

	want := s.template.Want.Address
	if err := s.template.Ledger.Transfer(want, s.address, caller, freed); err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to return funds to vault: %w", err)
	}

	s.logger.Info().
		Str("requested", amount.String()).
		Str("freed", freed.String()).
		Str("stillLocked", stillLocked.String()).
		Str("loss", loss.String()).
		Msg("Withdrawn to vault")
	return loss, nil
}

// Migrate hands idle want, the staked position and reward balances to newStrategy. Only the vault can call it.
func (s *Strategy) Migrate(ctx context.Context, caller, newStrategy common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleVault); err != nil {
		return err
	}
	if newStrategy == (common.Address{}) || newStrategy == s.address {
		return fmt.Errorf("%w: invalid migration target %s", ErrInvalidAmount, newStrategy.Hex())
	}

	l := s.template.Ledger
	if idle := s.idleLocked(); idle.IsPositive() {
		if err := l.Transfer(s.template.Want.Address, s.address, newStrategy, idle); err != nil {
			return fmt.Errorf("failed to move idle want: %w", err)
		}
	}
	staked, err := s.template.Venue.BalanceOf(ctx, s.address)
	if err != nil {
		return fmt.Errorf("failed to read staked balance: %w", err)
	}
	if staked.IsPositive() {
		if err := s.template.Venue.TransferPosition(ctx, s.address, newStrategy, staked); err != nil {
			return fmt.Errorf("failed to move staked position: %w", err)
		}
	}
	for _, r := range s.template.RewardTokens {
		if bal := l.BalanceOf(r.Address, s.address); bal.IsPositive() {
			if err := l.Transfer(r.Address, s.address, newStrategy, bal); err != nil {
				return fmt.Errorf("failed to move %s: %w", r.Symbol, err)
			}
		}
	}

	s.logger.Warn().Str("newStrategy", newStrategy.Hex()).Str("staked", staked.String()).Msg("Migrated")
	return nil
}
