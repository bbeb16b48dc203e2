package strategy

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/venue"
)

// WithdrawalCoordinator drives the venue's request/finalize protocol for one actor. It never waits:
// whatever is eligible is finalized, the rest is queued for a later cycle.
type WithdrawalCoordinator struct {
	actor  common.Address
	venue  venue.Adapter
	logger zerolog.Logger
}

func NewWithdrawalCoordinator(actor common.Address, v venue.Adapter, log zerolog.Logger) *WithdrawalCoordinator {
	return &WithdrawalCoordinator{actor: actor, venue: v, logger: log}
}

// Pending returns the actor's request at the venue.
func (c *WithdrawalCoordinator) Pending(ctx context.Context) (types.WithdrawalRequest, error) {
	req, err := c.venue.RequestedWithdrawals(ctx, c.actor)
	if err != nil {
		return types.WithdrawalRequest{}, fmt.Errorf("failed to read withdrawal request: %w", err)
	}
	if req.Amount.IsNil() {
		req.Amount = math.ZeroInt()
	}
	return req, nil
}

// Request sets the actor's request to amount capped at the staked balance and returns what was requested.
func (c *WithdrawalCoordinator) Request(ctx context.Context, amount math.Int) (math.Int, error) {
	staked, err := c.venue.BalanceOf(ctx, c.actor)
	if err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to read staked balance: %w", err)
	}
	amount = math.MinInt(amount, staked)
	if !amount.IsPositive() {
		return math.ZeroInt(), fmt.Errorf("%w: nothing staked to request", ErrInvalidAmount)
	}
	if err := c.venue.RequestWithdrawal(ctx, c.actor, amount); err != nil {
		return math.ZeroInt(), fmt.Errorf("venue rejected withdrawal request: %w", err)
	}
	return amount, nil
}

// FinalizeEligible withdraws up to limit of an eligible request and returns what was withdrawn.
func (c *WithdrawalCoordinator) FinalizeEligible(ctx context.Context, limit math.Int) (math.Int, error) {
	req, err := c.Pending(ctx)
	if err != nil {
		return math.ZeroInt(), err
	}
	cycle, err := c.venue.CurrentCycleIndex(ctx)
	if err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to read venue cycle: %w", err)
	}
	if !req.EligibleAt(cycle) {
		return math.ZeroInt(), nil
	}
	amount := math.MinInt(req.Amount, limit)
	if !amount.IsPositive() {
		return math.ZeroInt(), nil
	}
	if err := c.venue.Withdraw(ctx, c.actor, amount); err != nil {
		return math.ZeroInt(), fmt.Errorf("venue withdraw failed: %w", err)
	}
	return amount, nil
}

// FreeLiquidity finalizes up to target of an eligible request and queues the shortfall. stillLocked is
// target minus what was freed; a shortfall is a normal outcome, not an error.
func (c *WithdrawalCoordinator) FreeLiquidity(ctx context.Context, target math.Int) (freed, stillLocked math.Int, err error) {
	if target.IsNil() || !target.IsPositive() {
		return math.ZeroInt(), math.ZeroInt(), nil
	}

	freed, err = c.FinalizeEligible(ctx, target)
	if err != nil {
		return math.ZeroInt(), target, err
	}
	shortfall := target.Sub(freed)
	if shortfall.IsZero() {
		return freed, shortfall, nil
	}

	staked, err := c.venue.BalanceOf(ctx, c.actor)
	if err != nil {
		return freed, shortfall, fmt.Errorf("failed to read staked balance: %w", err)
	}
	toRequest := math.MinInt(shortfall, staked)
	pending, err := c.Pending(ctx)
	if err != nil {
		return freed, shortfall, err
	}
	// only a larger request supersedes the pending one
	if toRequest.IsPositive() && pending.Amount.LT(toRequest) {
		if err := c.venue.RequestWithdrawal(ctx, c.actor, toRequest); err != nil {
			return freed, shortfall, fmt.Errorf("venue rejected withdrawal request: %w", err)
		}
		c.logger.Debug().
			Str("requested", toRequest.String()).
			Str("previous", pending.Amount.String()).
			Msg("Queued withdrawal for shortfall")
	}

	return freed, shortfall, nil
}

// RequestWithdrawal sets the venue request to amount, capped at the staked balance. Idle want is untouched.
func (s *Strategy) RequestWithdrawal(ctx context.Context, caller common.Address, amount math.Int) (math.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleStrategist, RoleKeeper); err != nil {
		return math.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return math.ZeroInt(), fmt.Errorf("%w: request %v", ErrInvalidAmount, amount)
	}
	requested, err := s.coordinator.Request(ctx, amount)
	if err != nil {
		return math.ZeroInt(), err
	}
	s.logger.Info().Str("amount", requested.String()).Str("caller", caller.Hex()).Msg("Withdrawal requested")
	return requested, nil
}

// FinalizeWithdrawal pulls whatever part of the request is eligible into the idle balance.
func (s *Strategy) FinalizeWithdrawal(ctx context.Context, caller common.Address) (math.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleStrategist, RoleKeeper); err != nil {
		return math.ZeroInt(), err
	}
	freed, err := s.coordinator.FinalizeEligible(ctx, ledger.MaxAllowance)
	if err != nil {
		return math.ZeroInt(), err
	}
	if freed.IsPositive() {
		s.logger.Info().Str("amount", freed.String()).Msg("Withdrawal finalized")
	}
	return freed, nil
}

// PendingWithdrawal returns the instance's request at the venue.
func (s *Strategy) PendingWithdrawal(ctx context.Context) (types.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator.Pending(ctx)
}
