package strategy

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/yieldkeep/tokestrat/internal/tradefactory"
	"github.com/yieldkeep/tokestrat/internal/types"
)

func TestSweepGuard(t *testing.T) {
	protected := common.HexToAddress("0x0000000000000000000000000000000000000e01")
	g := SweepGuard{Want: wantAddr, Shares: vaultAddr, Protected: []common.Address{protected}}

	tests := []struct {
		token common.Address
		label string
	}{
		{wantAddr, "!want"},
		{vaultAddr, "!shares"},
		{protected, "!protected"},
		{tokeAddr, ""},
	}
	for _, tt := range tests {
		err := g.Check(tt.token)
		if tt.label == "" {
			assert.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, ErrProtectedToken)
		assert.ErrorContains(t, err, tt.label)
	}
}

func (s *StrategySuite) TestSweep() {
	s.deposit(1000)
	s.harvest()

	stray := common.HexToAddress("0x0000000000000000000000000000000000000e02")
	s.Require().NoError(s.ledger.Mint(stray, s.strategy.Address(), math.NewInt(100)))

	_, err := s.strategy.Sweep(s.ctx, strategist, stray)
	s.ErrorIs(err, ErrPermissionDenied)

	swept, err := s.strategy.Sweep(s.ctx, governance, stray)
	s.Require().NoError(err)
	s.Equal("100", swept.String())
	s.Equal("100", s.ledger.BalanceOf(stray, governance).String())

	ev, ok := s.events.Last("Swept")
	s.Require().True(ok)
	s.Equal(stray, ev.(types.SweptEvent).Token)

	_, err = s.strategy.Sweep(s.ctx, governance, wantAddr)
	s.ErrorContains(err, "!want")
	_, err = s.strategy.Sweep(s.ctx, governance, vaultAddr)
	s.ErrorContains(err, "!shares")
	_, err = s.strategy.Sweep(s.ctx, governance, poolAddr)
	s.ErrorIs(err, ErrProtectedToken)
	s.ErrorContains(err, "!protected")

	// reward tokens are sweepable unless configured as protected
	s.claim(5)
	swept, err = s.strategy.Sweep(s.ctx, governance, tokeAddr)
	s.Require().NoError(err)
	s.Equal("5", swept.String())
	s.Equal("1000", s.eta(s.strategy))
}

func (s *StrategySuite) TestSweepCancelsQueuedSalesOfTheToken() {
	s.deposit(1000)
	s.harvest()
	s.claim(100)
	ids, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)
	s.Require().Len(ids, 1)

	swept, err := s.strategy.Sweep(s.ctx, governance, tokeAddr)
	s.Require().NoError(err)
	s.Equal("100", swept.String())

	pending, err := s.tf.PendingTradeIDs(s.ctx, s.strategy.Address())
	s.Require().NoError(err)
	s.Empty(pending)
	_, err = s.tf.PendingTrade(s.ctx, ids[0])
	s.ErrorIs(err, tradefactory.ErrTradeNotFound)

	// later rewards are sold in full
	s.claim(30)
	ids, err = s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)
	s.Require().Len(ids, 1)
	trade, err := s.tf.PendingTrade(s.ctx, ids[0])
	s.Require().NoError(err)
	s.Equal("30", trade.AmountIn.String())
}
