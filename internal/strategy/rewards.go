package strategy

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/tradefactory"
	"github.com/yieldkeep/tokestrat/internal/types"
)

// setUpTradeFactoryLocked grants tf an unlimited allowance over every reward token.
func (s *Strategy) setUpTradeFactoryLocked(tf tradefactory.Adapter) error {
	for _, r := range s.template.RewardTokens {
		if err := s.template.Ledger.Approve(r.Address, s.address, tf.Address(), ledger.MaxAllowance); err != nil {
			return fmt.Errorf("failed to approve %s for trade factory: %w", r.Symbol, err)
		}
	}
	s.tradeFactory = tf
	return nil
}

// removeTradeFactoryLocked zeroes allowances, cancels pending trades and clears the reference.
func (s *Strategy) removeTradeFactoryLocked(ctx context.Context) error {
	tf := s.tradeFactory
	if tf == nil {
		return nil
	}
	var errs []error
	for _, r := range s.template.RewardTokens {
		if err := s.template.Ledger.Approve(r.Address, s.address, tf.Address(), math.ZeroInt()); err != nil {
			errs = append(errs, fmt.Errorf("failed to revoke %s allowance: %w", r.Symbol, err))
		}
	}
	if _, err := tf.CancelPending(ctx, s.address); err != nil {
		errs = append(errs, fmt.Errorf("failed to cancel pending trades: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.tradeFactory = nil
	return nil
}

func (s *Strategy) pendingTradeIDsLocked(ctx context.Context) []string {
	if s.tradeFactory == nil {
		return []string{}
	}
	ids, err := s.tradeFactory.PendingTradeIDs(ctx, s.address)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list pending trades")
		return []string{}
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// queuedLocked sums what pending trades already hold of token.
func (s *Strategy) queuedLocked(ctx context.Context, token common.Address) (math.Int, error) {
	queued := math.ZeroInt()
	ids, err := s.tradeFactory.PendingTradeIDs(ctx, s.address)
	if err != nil {
		return queued, err
	}
	for _, id := range ids {
		t, err := s.tradeFactory.PendingTrade(ctx, id)
		if err != nil {
			return queued, err
		}
		if t.TokenIn == token {
			queued = queued.Add(t.AmountIn)
		}
	}
	return queued, nil
}

// SellRewards registers a reward-to-want trade for every reward balance not already queued. It never moves
// principal: proceeds land later as an ordinary want balance increase.
func (s *Strategy) SellRewards(ctx context.Context, caller common.Address) ([]types.TradeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleStrategist); err != nil {
		return nil, err
	}
	if s.tradeFactory == nil {
		return nil, ErrNoTradeFacility
	}

	want := s.template.Want.Address
	var ids []types.TradeID
	for _, r := range s.template.RewardTokens {
		balance := s.template.Ledger.BalanceOf(r.Address, s.address)
		if balance.IsZero() {
			continue
		}
		queued, err := s.queuedLocked(ctx, r.Address)
		if err != nil {
			return ids, fmt.Errorf("failed to read pending trades: %w", err)
		}
		if balance.LTE(queued) {
			continue
		}
		amount := balance.Sub(queued)
		id, err := s.tradeFactory.Create(ctx, s.address, r.Address, want, amount)
		if err != nil {
			return ids, fmt.Errorf("failed to register %s trade: %w", r.Symbol, err)
		}
		ids = append(ids, id)
		s.logger.Info().Str("token", r.Symbol).Str("amount", amount.String()).Str("tradeID", id.String()).Msg("Reward trade registered")
	}
	return ids, nil
}

// RemoveTradeFactoryPermissions revokes the facility's access to reward tokens and forgets it.
// SellRewards fails with ErrNoTradeFacility afterwards.
func (s *Strategy) RemoveTradeFactoryPermissions(ctx context.Context, caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleGovernance); err != nil {
		return err
	}
	if s.tradeFactory == nil {
		return nil
	}
	if err := s.removeTradeFactoryLocked(ctx); err != nil {
		return err
	}
	s.events.Emit(types.TradeFactoryUpdatedEvent{Strategy: s.address})
	s.logger.Warn().Str("caller", caller.Hex()).Msg("Trade factory permissions removed")
	return nil
}

// UpdateTradeFactory swaps facilities, revoking the old one first.
func (s *Strategy) UpdateTradeFactory(ctx context.Context, caller common.Address, tf tradefactory.Adapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleGovernance); err != nil {
		return err
	}
	if tf == nil || tf.Address() == (common.Address{}) {
		return fmt.Errorf("%w: trade factory cannot be empty", ErrNoTradeFacility)
	}
	if err := s.removeTradeFactoryLocked(ctx); err != nil {
		return err
	}
	if err := s.setUpTradeFactoryLocked(tf); err != nil {
		return err
	}
	s.events.Emit(types.TradeFactoryUpdatedEvent{Strategy: s.address, TradeFactory: tf.Address()})
	s.logger.Info().Str("tradeFactory", tf.Address().Hex()).Msg("Trade factory updated")
	return nil
}

// ClaimRewards collects venue rewards into the instance. They stay reward tokens until sold.
func (s *Strategy) ClaimRewards(ctx context.Context, caller common.Address) (map[common.Address]math.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, keepers...); err != nil {
		return nil, err
	}
	paid, err := s.template.Venue.Claim(ctx, s.address)
	if err != nil {
		return paid, fmt.Errorf("failed to claim rewards: %w", err)
	}
	for token, amount := range paid {
		s.logger.Info().Str("token", token.Hex()).Str("amount", amount.String()).Msg("Rewards claimed")
	}
	return paid, nil
}
