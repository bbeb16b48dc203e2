package strategy

import (
	"context"

	"cosmossdk.io/math"
)

// HarvestTrigger reports whether a harvest is worth callCost (in want units). It never mutates state.
func (s *Strategy) HarvestTrigger(ctx context.Context, callCost math.Int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vault == nil {
		return false, ErrNotInitialized
	}
	if callCost.IsNil() || callCost.IsNegative() {
		return false, ErrInvalidAmount
	}

	params := s.vault.StrategyParams(s.address)
	if !params.IsActive() {
		return false, nil
	}

	sinceReport := s.now().Sub(params.LastReport)
	if sinceReport < s.params.MinReportDelay {
		return false, nil
	}
	if sinceReport >= s.params.MaxReportDelay {
		return true, nil
	}

	if s.vault.DebtOutstanding(s.address).GT(s.params.DebtThreshold) {
		return true, nil
	}

	total, err := s.estimatedTotalAssetsLocked(ctx)
	if err != nil {
		return false, err
	}
	if total.Add(s.params.DebtThreshold).LT(params.TotalDebt) {
		return true, nil
	}

	profit := math.ZeroInt()
	if total.GT(params.TotalDebt) {
		profit = total.Sub(params.TotalDebt)
	}
	credit := s.vault.CreditAvailable(s.address)
	return callCost.MulRaw(s.params.ProfitFactor).LT(credit.Add(profit)), nil
}

// TendTrigger reports whether idle want above the vault's outstanding debt is worth staking for callCost.
func (s *Strategy) TendTrigger(ctx context.Context, callCost math.Int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vault == nil {
		return false, ErrNotInitialized
	}
	if callCost.IsNil() || callCost.IsNegative() {
		return false, ErrInvalidAmount
	}
	if s.emergencyExit || !s.vault.StrategyParams(s.address).IsActive() {
		return false, nil
	}

	idle := s.idleLocked()
	outstanding := s.vault.DebtOutstanding(s.address)
	if idle.LTE(outstanding) {
		return false, nil
	}
	deployable := idle.Sub(outstanding)
	return callCost.MulRaw(s.params.ProfitFactor).LT(deployable), nil
}
