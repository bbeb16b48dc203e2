package strategy

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/types"
)

// SweepGuard decides which tokens governance may not recover from an instance.
type SweepGuard struct {
	Want      common.Address
	Shares    common.Address
	Protected []common.Address
}

// Check returns ErrProtectedToken labelled !want, !shares or !protected.
func (g SweepGuard) Check(token common.Address) error {
	switch {
	case token == g.Want:
		return fmt.Errorf("%w: !want", ErrProtectedToken)
	case token == g.Shares:
		return fmt.Errorf("%w: !shares", ErrProtectedToken)
	}
	for _, p := range g.Protected {
		if token == p {
			return fmt.Errorf("%w: !protected", ErrProtectedToken)
		}
	}
	return nil
}

func (s *Strategy) sweepGuardLocked() SweepGuard {
	protected := append([]common.Address{s.template.Venue.Address()}, s.template.ProtectedTokens...)
	return SweepGuard{
		Want:      s.template.Want.Address,
		Shares:    s.vault.Address(),
		Protected: protected,
	}
}

// Sweep sends the instance's whole balance of token to governance.
func (s *Strategy) Sweep(ctx context.Context, caller, token common.Address) (math.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleGovernance); err != nil {
		return math.ZeroInt(), err
	}
	if err := s.sweepGuardLocked().Check(token); err != nil {
		return math.ZeroInt(), err
	}

	amount := s.template.Ledger.BalanceOf(token, s.address)
	if err := s.template.Ledger.Transfer(token, s.address, caller, amount); err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to sweep %s: %w", token.Hex(), err)
	}
	if s.tradeFactory != nil {
		// queued sales of the swept token could never settle
		if _, err := s.tradeFactory.CancelPendingToken(ctx, s.address, token); err != nil {
			return math.ZeroInt(), fmt.Errorf("failed to cancel pending trades of %s: %w", token.Hex(), err)
		}
	}
	s.events.Emit(types.SweptEvent{Strategy: s.address, Token: token, Amount: amount})
	s.logger.Info().Str("token", token.Hex()).Str("amount", amount.String()).Msg("Swept")
	return amount, nil
}
