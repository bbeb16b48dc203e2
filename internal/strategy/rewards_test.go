package strategy

import (
	"context"
	"errors"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/tradefactory"
	"github.com/yieldkeep/tokestrat/internal/types"
)

func (s *StrategySuite) claim(amount int64) {
	s.Require().NoError(s.pool.AccrueRewards(s.strategy.Address(), tokeAddr, math.NewInt(amount)))
	paid, err := s.strategy.ClaimRewards(s.ctx, keeper)
	s.Require().NoError(err)
	s.Equal(math.NewInt(amount).String(), paid[tokeAddr].String())
}

func (s *StrategySuite) TestSellRewardsSettlesAsynchronously() {
	s.deposit(1000)
	s.harvest()
	s.claim(100)

	// reward tokens are never principal
	s.Equal("1000", s.eta(s.strategy))
	s.Equal(ledger.MaxAllowance.String(), s.ledger.Allowance(tokeAddr, s.strategy.Address(), tfAddr).String())

	ids, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)
	s.Require().Len(ids, 1)
	s.Equal("1000", s.eta(s.strategy))
	s.Equal("100", s.ledger.BalanceOf(tokeAddr, s.strategy.Address()).String())

	// already queued balances are not registered twice
	again, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)
	s.Empty(again)

	report := s.harvest()
	s.Equal([]string{ids[0].String()}, report.PendingTradeIDs)
	s.Equal("0", report.Profit.String())

	swapper := tradefactory.FixedRateSwapper{Ledger: s.ledger, Rate: math.LegacyMustNewDecFromStr("0.5")}
	res, err := s.tf.Execute(s.ctx, operator, ids[0], swapper)
	s.Require().NoError(err)
	s.Equal("50", res.AmountOut.String())

	s.Equal("1050", s.eta(s.strategy))
	s.Equal("0", s.ledger.BalanceOf(tokeAddr, s.strategy.Address()).String())

	report = s.harvest()
	s.Equal("50", report.Profit.String())
	s.Empty(report.PendingTradeIDs)
}

func (s *StrategySuite) TestSellRewardsRegistersOnlyTheUnqueuedPart() {
	s.deposit(1000)
	s.harvest()
	s.claim(100)
	_, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)

	s.claim(40)
	ids, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)
	s.Require().Len(ids, 1)

	trade, err := s.tf.PendingTrade(s.ctx, ids[0])
	s.Require().NoError(err)
	s.Equal("40", trade.AmountIn.String())
	s.Equal(wantAddr, trade.TokenOut)

	for _, caller := range []common.Address{keeper, management, governance} {
		_, err = s.strategy.SellRewards(s.ctx, caller)
		s.ErrorIs(err, ErrPermissionDenied)
	}
}

func (s *StrategySuite) TestRemoveTradeFactoryPermissions() {
	s.deposit(1000)
	s.harvest()
	s.claim(100)
	_, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)

	s.ErrorIs(s.strategy.RemoveTradeFactoryPermissions(s.ctx, strategist), ErrPermissionDenied)
	s.ErrorIs(s.strategy.RemoveTradeFactoryPermissions(s.ctx, management), ErrPermissionDenied)
	s.Equal(tfAddr, s.strategy.TradeFactory())
	s.Require().NoError(s.strategy.RemoveTradeFactoryPermissions(s.ctx, governance))

	s.Equal(common.Address{}, s.strategy.TradeFactory())
	s.True(s.ledger.Allowance(tokeAddr, s.strategy.Address(), tfAddr).IsZero())
	pending, err := s.tf.PendingTradeIDs(s.ctx, s.strategy.Address())
	s.Require().NoError(err)
	s.Empty(pending)

	ev, ok := s.events.Last("TradeFactoryUpdated")
	s.Require().True(ok)
	s.Equal(common.Address{}, ev.(types.TradeFactoryUpdatedEvent).TradeFactory)

	_, err = s.strategy.SellRewards(s.ctx, strategist)
	s.ErrorIs(err, ErrNoTradeFacility)

	// rewards stay with the instance
	s.Equal("100", s.ledger.BalanceOf(tokeAddr, s.strategy.Address()).String())
	s.Equal("1000", s.eta(s.strategy))
}

func (s *StrategySuite) TestUpdateTradeFactory() {
	s.claim(10)
	_, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)

	next := tradefactory.New(common.HexToAddress("0x0000000000000000000000000000000000000b15"), governance, operator, s.ledger)
	s.ErrorIs(s.strategy.UpdateTradeFactory(s.ctx, management, next), ErrPermissionDenied)
	s.ErrorIs(s.strategy.UpdateTradeFactory(s.ctx, governance, nil), ErrNoTradeFacility)

	s.Require().NoError(s.strategy.UpdateTradeFactory(s.ctx, governance, next))
	s.Equal(next.Address(), s.strategy.TradeFactory())
	s.True(s.ledger.Allowance(tokeAddr, s.strategy.Address(), tfAddr).IsZero())
	s.Equal(ledger.MaxAllowance.String(), s.ledger.Allowance(tokeAddr, s.strategy.Address(), next.Address()).String())
	s.Empty(s.tf.AllPendingTradeIDs())

	// the new facility still has to grant the strategy role
	_, err = s.strategy.SellRewards(s.ctx, strategist)
	s.ErrorIs(err, tradefactory.ErrNotStrategy)

	s.Require().NoError(next.GrantRole(governance, s.strategy.Address()))
	ids, err := s.strategy.SellRewards(s.ctx, strategist)
	s.Require().NoError(err)
	s.Len(ids, 1)
}

func (s *StrategySuite) TestClaimRewardsPermissions() {
	_, err := s.strategy.ClaimRewards(s.ctx, stranger)
	s.ErrorIs(err, ErrPermissionDenied)

	paid, err := s.strategy.ClaimRewards(s.ctx, keeper)
	s.Require().NoError(err)
	s.Empty(paid)
}

type cancelFailingFacility struct {
	*tradefactory.Factory
}

func (cancelFailingFacility) CancelPending(context.Context, common.Address) (int, error) {
	return 0, errors.New("facility paused")
}

func (s *StrategySuite) TestUpdateTradeFactoryKeepsFacilityWhenRemovalFails() {
	stuck := cancelFailingFacility{tradefactory.New(common.HexToAddress("0x0000000000000000000000000000000000000b16"), governance, operator, s.ledger)}
	s.Require().NoError(stuck.GrantRole(governance, s.strategy.Address()))
	s.Require().NoError(s.strategy.UpdateTradeFactory(s.ctx, governance, stuck))

	next := tradefactory.New(common.HexToAddress("0x0000000000000000000000000000000000000b17"), governance, operator, s.ledger)
	err := s.strategy.UpdateTradeFactory(s.ctx, governance, next)
	s.ErrorContains(err, "facility paused")
	s.Equal(stuck.Address(), s.strategy.TradeFactory())

	s.ErrorContains(s.strategy.RemoveTradeFactoryPermissions(s.ctx, governance), "facility paused")
	s.Equal(stuck.Address(), s.strategy.TradeFactory())

	ev, ok := s.events.Last("TradeFactoryUpdated")
	s.Require().True(ok)
	s.Equal(stuck.Address(), ev.(types.TradeFactoryUpdatedEvent).TradeFactory)
}
