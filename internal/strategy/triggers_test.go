package strategy

import (
	"time"

	"cosmossdk.io/math"
)

func (s *StrategySuite) harvestTrigger(cost int64) bool {
	ok, err := s.strategy.HarvestTrigger(s.ctx, math.NewInt(cost))
	s.Require().NoError(err)
	return ok
}

func (s *StrategySuite) tendTrigger(cost int64) bool {
	ok, err := s.strategy.TendTrigger(s.ctx, math.NewInt(cost))
	s.Require().NoError(err)
	return ok
}

func (s *StrategySuite) TestHarvestTrigger() {
	s.False(s.harvestTrigger(0))

	// credit waiting at the vault
	s.deposit(1000)
	s.True(s.harvestTrigger(1))
	s.False(s.harvestTrigger(10))

	s.harvest()
	s.False(s.harvestTrigger(1))

	s.clock.Advance(25 * time.Hour)
	s.True(s.harvestTrigger(1_000_000))

	_, err := s.strategy.HarvestTrigger(s.ctx, math.NewInt(-1))
	s.ErrorIs(err, ErrInvalidAmount)
}

func (s *StrategySuite) TestHarvestTriggerRespectsMinDelay() {
	params := s.strategy.Parameters()
	params.MinReportDelay = time.Hour
	s.Require().NoError(s.strategy.SetParameters(s.ctx, strategist, params))

	s.deposit(1000)
	s.False(s.harvestTrigger(0))
	s.clock.Advance(time.Hour)
	s.True(s.harvestTrigger(0))
}

func (s *StrategySuite) TestHarvestTriggerOnDebtOutstanding() {
	s.deposit(1000)
	s.harvest()

	s.Require().NoError(s.vault.UpdateStrategyDebtRatio(governance, s.strategy.Address(), 5000))
	s.True(s.harvestTrigger(1_000_000))

	params := s.strategy.Parameters()
	params.DebtThreshold = math.NewInt(500)
	s.Require().NoError(s.strategy.SetParameters(s.ctx, strategist, params))
	s.False(s.harvestTrigger(1_000_000))
}

func (s *StrategySuite) TestHarvestTriggerOnLoss() {
	s.deposit(1000)
	s.harvest()
	s.Require().NoError(s.ledger.Burn(poolAddr, s.strategy.Address(), math.NewInt(1)))
	s.True(s.harvestTrigger(1_000_000))
}

func (s *StrategySuite) TestHarvestTriggerInactive() {
	st := s.deploy()
	ok, err := st.HarvestTrigger(s.ctx, math.ZeroInt())
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StrategySuite) TestTendTrigger() {
	s.deposit(1000)
	s.harvest()
	s.False(s.tendTrigger(0))

	s.Require().NoError(s.ledger.Mint(wantAddr, s.strategy.Address(), math.NewInt(500)))
	s.True(s.tendTrigger(1))
	s.False(s.tendTrigger(5))

	_, err := s.strategy.Tend(s.ctx, keeper)
	s.Require().NoError(err)
	s.False(s.tendTrigger(0))
}
