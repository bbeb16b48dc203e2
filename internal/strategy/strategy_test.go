package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/tradefactory"
	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/vault"
	"github.com/yieldkeep/tokestrat/internal/venue"
)

var (
	wantAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	tokeAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	poolAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b03")
	vaultAddr   = common.HexToAddress("0x0000000000000000000000000000000000000b04")
	tfAddr      = common.HexToAddress("0x0000000000000000000000000000000000000b05")
	factoryAddr = common.HexToAddress("0x0000000000000000000000000000000000000b06")
	governance  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	management  = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	guardian    = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	strategist  = common.HexToAddress("0x0000000000000000000000000000000000000c04")
	keeper      = common.HexToAddress("0x0000000000000000000000000000000000000c05")
	user        = common.HexToAddress("0x0000000000000000000000000000000000000c06")
	roller      = common.HexToAddress("0x0000000000000000000000000000000000000c07")
	operator    = common.HexToAddress("0x0000000000000000000000000000000000000c08")
	stranger    = common.HexToAddress("0x0000000000000000000000000000000000000c09")
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type StrategySuite struct {
	suite.Suite
	ctx      context.Context
	clock    *fakeClock
	ledger   *ledger.Ledger
	manager  *venue.Manager
	pool     *venue.Pool
	vault    *vault.LedgerVault
	tf       *tradefactory.Factory
	events   *Recorder
	factory  *Factory
	strategy *Strategy
}

func TestStrategySuite(t *testing.T) {
	suite.Run(t, new(StrategySuite))
}

func (s *StrategySuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.ledger = ledger.New()
	s.manager = venue.NewManager(roller, 7*24*3600)

	pool, err := venue.NewPool(venue.PoolConfig{
		Address:    poolAddr,
		Underlying: wantAddr,
		Ledger:     s.ledger,
		Manager:    s.manager,
	})
	s.Require().NoError(err)
	s.pool = pool

	v, err := vault.NewLedgerVault(vault.Config{
		Address:    vaultAddr,
		Token:      wantAddr,
		Governance: governance,
		Management: management,
		Guardian:   guardian,
		Ledger:     s.ledger,
	})
	s.Require().NoError(err)
	v.SetClock(s.clock.Now)
	s.vault = v

	s.tf = tradefactory.New(tfAddr, governance, operator, s.ledger)
	s.events = &Recorder{}

	f, err := NewFactory(factoryAddr, Template{
		Name:         "StrategyTokemakWETH",
		Want:         types.Token{Address: wantAddr, Symbol: "weth", Decimals: 18},
		RewardTokens: []types.Token{{Address: tokeAddr, Symbol: "toke", Decimals: 18}},
		Venue:        s.pool,
		Ledger:       s.ledger,
		Clock:        s.clock.Now,
	}, s.events)
	s.Require().NoError(err)
	s.factory = f

	s.strategy = s.deploy()
	s.Require().NoError(s.vault.AddStrategy(governance, s.strategy, vault.MaxBPS, math.ZeroInt(), ledger.MaxAllowance))
}

func (s *StrategySuite) initParams(strategist common.Address) InitParams {
	return InitParams{
		Vault:        s.vault,
		Strategist:   strategist,
		Keeper:       keeper,
		TradeFactory: s.tf,
	}
}

func (s *StrategySuite) deploy() *Strategy {
	st, err := s.factory.Deploy(s.ctx, s.initParams(strategist))
	s.Require().NoError(err)
	s.Require().NoError(s.tf.GrantRole(governance, st.Address()))
	return st
}

func (s *StrategySuite) deposit(amount int64) {
	amt := math.NewInt(amount)
	s.Require().NoError(s.ledger.Mint(wantAddr, user, amt))
	s.Require().NoError(s.ledger.Approve(wantAddr, user, vaultAddr, ledger.MaxAllowance))
	_, err := s.vault.Deposit(s.ctx, user, amt)
	s.Require().NoError(err)
}

func (s *StrategySuite) harvest() types.HarvestReport {
	report, err := s.strategy.Harvest(s.ctx, keeper)
	s.Require().NoError(err)
	return report
}

func (s *StrategySuite) rollover() {
	_, err := s.manager.CompleteRollover(roller)
	s.Require().NoError(err)
}

func (s *StrategySuite) eta(st *Strategy) string {
	total, err := st.EstimatedTotalAssets(s.ctx)
	s.Require().NoError(err)
	return total.String()
}

func (s *StrategySuite) staked(st *Strategy) string {
	staked, err := st.StakedBalance(s.ctx)
	s.Require().NoError(err)
	return staked.String()
}

func (s *StrategySuite) vaultIdle() string {
	return s.ledger.BalanceOf(wantAddr, vaultAddr).String()
}

func (s *StrategySuite) TestOperation() {
	s.deposit(1000)

	report := s.harvest()
	s.Equal("0", report.Profit.String())
	s.Equal("0", report.Loss.String())
	s.Equal("0", report.TotalAssetsBefore.String())
	s.Equal("1000", report.TotalAssetsAfter.String())
	s.Equal("1000", s.staked(s.strategy))
	s.Equal("0", s.strategy.IdleBalance().String())
	s.Equal("1000", s.vault.StrategyParams(s.strategy.Address()).TotalDebt.String())

	ev, ok := s.events.Last("Harvested")
	s.Require().True(ok)
	s.Equal(s.strategy.Address(), ev.(types.HarvestedEvent).Strategy)

	// yield lands as idle want
	s.Require().NoError(s.ledger.Mint(wantAddr, s.strategy.Address(), math.NewInt(50)))
	s.Equal("1050", s.eta(s.strategy))

	report = s.harvest()
	s.Equal("50", report.Profit.String())
	s.Equal("0", report.DebtPayment.String())
	s.Equal("1050", s.vault.TotalAssets().String())
	s.Equal("50", s.vaultIdle())
	s.Equal("50", s.vault.StrategyParams(s.strategy.Address()).TotalGain.String())

	// the profit is lent back out on the next harvest
	s.harvest()
	s.Equal("1050", s.staked(s.strategy))
	s.Equal("0", s.vaultIdle())
}

func (s *StrategySuite) TestChangeDebt() {
	addr := s.strategy.Address()
	s.Require().NoError(s.vault.UpdateStrategyDebtRatio(governance, addr, 5000))
	s.deposit(1000)

	s.harvest()
	s.Equal("500", s.staked(s.strategy))

	s.Require().NoError(s.vault.UpdateStrategyDebtRatio(governance, addr, 10000))
	s.harvest()
	s.Equal("1000", s.staked(s.strategy))

	s.Require().NoError(s.vault.UpdateStrategyDebtRatio(governance, addr, 6000))
	s.Equal("400", s.vault.DebtOutstanding(addr).String())

	report := s.harvest()
	s.Equal("400", report.StillLocked.String())
	s.Equal("400", report.DebtOutstanding.String())
	s.Equal("0", report.DebtPayment.String())

	pending, err := s.strategy.PendingWithdrawal(s.ctx)
	s.Require().NoError(err)
	s.Equal("400", pending.Amount.String())
	s.Equal(uint64(1), pending.EligibleAtCycle)

	// a second harvest inside the timelock does not stack requests
	s.harvest()
	pending, err = s.strategy.PendingWithdrawal(s.ctx)
	s.Require().NoError(err)
	s.Equal("400", pending.Amount.String())

	s.rollover()
	report = s.harvest()
	s.Equal("400", report.DebtPayment.String())
	s.Equal("0", report.StillLocked.String())
	s.Equal("0", report.DebtOutstanding.String())
	s.Equal("600", s.vault.StrategyParams(addr).TotalDebt.String())
	s.Equal("600", s.staked(s.strategy))
	s.Equal("400", s.vaultIdle())
}

func (s *StrategySuite) TestLossReducesDebtRatio() {
	s.deposit(1000)
	s.harvest()

	// slash part of the position
	s.Require().NoError(s.ledger.Burn(poolAddr, s.strategy.Address(), math.NewInt(100)))
	s.Equal("900", s.eta(s.strategy))

	report := s.harvest()
	s.Equal("100", report.Loss.String())
	s.Equal("0", report.Profit.String())
	s.Equal("90", report.DebtOutstanding.String())

	params := s.vault.StrategyParams(s.strategy.Address())
	s.Equal("100", params.TotalLoss.String())
	s.Equal("900", params.TotalDebt.String())
	s.Equal(uint64(9000), params.DebtRatio)
}

func (s *StrategySuite) TestTend() {
	s.deposit(1000)
	s.harvest()

	deployed, err := s.strategy.Tend(s.ctx, keeper)
	s.Require().NoError(err)
	s.Equal("0", deployed.String())

	s.Require().NoError(s.ledger.Mint(wantAddr, s.strategy.Address(), math.NewInt(100)))
	deployed, err = s.strategy.Tend(s.ctx, keeper)
	s.Require().NoError(err)
	s.Equal("100", deployed.String())
	s.Equal("1100", s.staked(s.strategy))

	pending, err := s.strategy.PendingWithdrawal(s.ctx)
	s.Require().NoError(err)
	s.False(pending.IsOpen())
}

func (s *StrategySuite) TestWithdrawWithoutIntervention() {
	s.deposit(1000)
	s.harvest()

	shares := s.ledger.BalanceOf(vaultAddr, user)
	paid, err := s.vault.Withdraw(s.ctx, user, shares)
	s.Require().NoError(err)
	s.Equal("0", paid.String())
	s.Equal("1000", s.ledger.BalanceOf(vaultAddr, user).String())

	pending, err := s.strategy.PendingWithdrawal(s.ctx)
	s.Require().NoError(err)
	s.Equal("1000", pending.Amount.String())

	s.rollover()
	paid, err = s.vault.Withdraw(s.ctx, user, shares)
	s.Require().NoError(err)
	s.Equal("1000", paid.String())
	s.Equal("1000", s.ledger.BalanceOf(wantAddr, user).String())
	s.Equal("0", s.ledger.BalanceOf(vaultAddr, user).String())
	s.Equal("0", s.eta(s.strategy))
	s.Equal("0", s.vault.StrategyParams(s.strategy.Address()).TotalDebt.String())
}

func (s *StrategySuite) TestWithdrawRejectsNonVault() {
	s.deposit(1000)
	s.harvest()

	_, err := s.strategy.Withdraw(s.ctx, governance, math.NewInt(10))
	s.ErrorIs(err, ErrPermissionDenied)
	err = s.strategy.Migrate(s.ctx, governance, stranger)
	s.ErrorIs(err, ErrPermissionDenied)
}

func (s *StrategySuite) TestRevokeFromVault() {
	s.deposit(1000)
	s.harvest()

	s.Require().NoError(s.vault.RevokeStrategy(s.ctx, governance, s.strategy.Address()))
	report := s.harvest()
	s.Equal("1000", report.StillLocked.String())
	s.Equal("1000", report.DebtOutstanding.String())

	s.rollover()
	report = s.harvest()
	s.Equal("1000", report.DebtPayment.String())
	s.Equal("0", report.DebtOutstanding.String())
	s.Equal("0", s.eta(s.strategy))
	s.Equal("1000", s.vaultIdle())
	s.Equal("1000", s.vault.TotalAssets().String())
}

func (s *StrategySuite) TestEmergencyExit() {
	s.deposit(1000)
	s.harvest()

	s.ErrorIs(s.strategy.SetEmergencyExit(s.ctx, stranger), ErrPermissionDenied)
	s.Require().NoError(s.strategy.SetEmergencyExit(s.ctx, strategist))
	s.True(s.strategy.EmergencyExit())
	s.Equal(uint64(0), s.vault.StrategyParams(s.strategy.Address()).DebtRatio)
	_, ok := s.events.Last("EmergencyExitEnabled")
	s.True(ok)

	err := s.vault.UpdateStrategyDebtRatio(governance, s.strategy.Address(), 5000)
	s.ErrorIs(err, vault.ErrPermissionDenied)

	report := s.harvest()
	s.True(report.EmergencyExit)
	s.Equal("1000", report.StillLocked.String())

	// nothing is redeployed while exiting
	s.rollover()
	report = s.harvest()
	s.Equal("1000", report.DebtPayment.String())
	s.Equal("0", s.staked(s.strategy))
	s.Equal("0", s.strategy.IdleBalance().String())

	ok, err = s.strategy.TendTrigger(s.ctx, math.ZeroInt())
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StrategySuite) TestMigrate() {
	s.deposit(1000)
	s.harvest()
	s.Require().NoError(s.pool.AccrueRewards(s.strategy.Address(), tokeAddr, math.NewInt(10)))
	_, err := s.strategy.ClaimRewards(s.ctx, keeper)
	s.Require().NoError(err)

	next, err := s.factory.Clone(s.ctx, s.strategy.Address(), s.initParams(strategist))
	s.Require().NoError(err)

	s.Require().NoError(s.vault.MigrateStrategy(s.ctx, governance, s.strategy.Address(), next))
	s.Equal("0", s.eta(s.strategy))
	s.Equal("1000", s.staked(next))
	s.Equal("10", s.ledger.BalanceOf(tokeAddr, next.Address()).String())
	s.Equal("1000", s.vault.StrategyParams(next.Address()).TotalDebt.String())
	s.Equal([]common.Address{next.Address()}, s.vault.WithdrawalQueue())

	report, err := next.Harvest(s.ctx, keeper)
	s.Require().NoError(err)
	s.Equal("0", report.Loss.String())
}

func (s *StrategySuite) TestPermissions() {
	s.deposit(1000)

	_, err := s.strategy.Harvest(s.ctx, stranger)
	s.ErrorIs(err, ErrPermissionDenied)
	_, err = s.strategy.Tend(s.ctx, stranger)
	s.ErrorIs(err, ErrPermissionDenied)
	_, err = s.strategy.Harvest(s.ctx, common.Address{})
	s.ErrorIs(err, ErrPermissionDenied)

	s.ErrorIs(s.strategy.SetStrategist(s.ctx, keeper, stranger), ErrPermissionDenied)
	s.ErrorIs(s.strategy.SetRewards(s.ctx, governance, stranger), ErrPermissionDenied)

	newKeeper := common.HexToAddress("0x0000000000000000000000000000000000000c10")
	s.Require().NoError(s.strategy.SetKeeper(s.ctx, management, newKeeper))
	_, err = s.strategy.Harvest(s.ctx, keeper)
	s.ErrorIs(err, ErrPermissionDenied)
	_, err = s.strategy.Harvest(s.ctx, newKeeper)
	s.NoError(err)

	// role holders are read live from the vault
	newGov := common.HexToAddress("0x0000000000000000000000000000000000000c11")
	s.Require().NoError(s.vault.SetGovernance(governance, newGov))
	_, err = s.strategy.Sweep(s.ctx, governance, stranger)
	s.ErrorIs(err, ErrPermissionDenied)
	_, err = s.strategy.Sweep(s.ctx, newGov, stranger)
	s.NoError(err)
}

func (s *StrategySuite) TestSetParameters() {
	params := types.StrategyParameters{
		MinReportDelay: time.Hour,
		MaxReportDelay: 48 * time.Hour,
		ProfitFactor:   50,
		DebtThreshold:  math.NewInt(10),
	}
	s.Require().NoError(s.strategy.SetParameters(s.ctx, strategist, params))
	s.Equal(int64(50), s.strategy.Parameters().ProfitFactor)

	params.MinReportDelay = 72 * time.Hour
	s.ErrorIs(s.strategy.SetParameters(s.ctx, strategist, params), ErrInvalidAmount)
	s.ErrorIs(s.strategy.SetParameters(s.ctx, stranger, params), ErrPermissionDenied)
}

func (s *StrategySuite) TestConservation() {
	injected := int64(0)
	check := func() {
		total, err := s.strategy.EstimatedTotalAssets(s.ctx)
		s.Require().NoError(err)
		held := total.Add(s.ledger.BalanceOf(wantAddr, vaultAddr)).Add(s.ledger.BalanceOf(wantAddr, user))
		s.Equal(math.NewInt(1000+injected).String(), held.String())
	}

	s.deposit(1000)
	check()
	s.harvest()
	check()

	s.Require().NoError(s.vault.UpdateStrategyDebtRatio(governance, s.strategy.Address(), 3000))
	s.harvest()
	check()

	_, err := s.strategy.RequestWithdrawal(s.ctx, keeper, math.NewInt(250))
	s.Require().NoError(err)
	check()

	s.rollover()
	s.Require().NoError(s.ledger.Mint(wantAddr, s.strategy.Address(), math.NewInt(30)))
	injected += 30
	s.harvest()
	check()

	_, err = s.vault.Withdraw(s.ctx, user, math.NewInt(500))
	s.Require().NoError(err)
	check()

	s.rollover()
	s.harvest()
	check()
}
