package strategy

import (
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/vault"
)

func (s *StrategySuite) TestDeployedAddressIsDerivedFromFactory() {
	s.Equal(crypto.CreateAddress(factoryAddr, 0), s.strategy.Address())
	s.False(s.factory.IsClone(s.strategy.Address()))
	s.True(s.factory.IsInitialized(s.strategy.Address()))

	got, ok := s.factory.Get(s.strategy.Address())
	s.True(ok)
	s.Same(s.strategy, got)
}

func (s *StrategySuite) TestClone() {
	other := common.HexToAddress("0x0000000000000000000000000000000000000c20")
	clone, err := s.factory.Clone(s.ctx, s.strategy.Address(), InitParams{Vault: s.vault, Strategist: other, TradeFactory: s.tf})
	s.Require().NoError(err)

	s.Equal(crypto.CreateAddress(factoryAddr, 1), clone.Address())
	s.True(s.factory.IsClone(clone.Address()))
	s.Equal(other, clone.Strategist())
	s.Equal(other, clone.Keeper())
	s.Equal(other, clone.Rewards())
	s.Equal(vaultAddr, clone.VaultAddress())
	s.Equal(tfAddr, clone.TradeFactory())
	s.Equal(ledger.MaxAllowance.String(), s.ledger.Allowance(wantAddr, clone.Address(), poolAddr).String())

	ev, ok := s.events.Last("Cloned")
	s.Require().True(ok)
	s.Equal(types.ClonedEvent{Source: s.strategy.Address(), Clone: clone.Address()}, ev)

	_, err = s.factory.Clone(s.ctx, clone.Address(), s.initParams(strategist))
	s.ErrorIs(err, ErrCloneOfClone)

	err = s.factory.Initialize(s.ctx, clone.Address(), s.initParams(strategist))
	s.ErrorIs(err, ErrAlreadyInitialized)
	err = s.factory.Initialize(s.ctx, s.strategy.Address(), s.initParams(strategist))
	s.ErrorIs(err, ErrAlreadyInitialized)

	s.Len(s.factory.Instances(), 2)
}

func (s *StrategySuite) TestClonesShareTheVenue() {
	s.Require().NoError(s.vault.UpdateStrategyDebtRatio(governance, s.strategy.Address(), 5000))
	clone, err := s.factory.Clone(s.ctx, s.strategy.Address(), s.initParams(strategist))
	s.Require().NoError(err)
	s.Require().NoError(s.vault.AddStrategy(governance, clone, 5000, math.ZeroInt(), ledger.MaxAllowance))

	s.deposit(1000)
	s.harvest()
	_, err = clone.Harvest(s.ctx, keeper)
	s.Require().NoError(err)

	s.Equal("500", s.staked(s.strategy))
	s.Equal("500", s.staked(clone))
	s.Equal("1000", s.ledger.BalanceOf(wantAddr, poolAddr).String())
}

func (s *StrategySuite) TestUninitializedInstance() {
	st := s.factory.Allocate()
	s.True(s.factory.IsClone(st.Address()))
	s.False(s.factory.IsInitialized(st.Address()))
	s.Equal(common.Address{}, st.VaultAddress())

	_, err := st.Harvest(s.ctx, keeper)
	s.ErrorIs(err, ErrNotInitialized)
	_, err = st.Tend(s.ctx, keeper)
	s.ErrorIs(err, ErrNotInitialized)
	_, err = st.SellRewards(s.ctx, strategist)
	s.ErrorIs(err, ErrNotInitialized)
	_, err = st.Sweep(s.ctx, governance, tokeAddr)
	s.ErrorIs(err, ErrNotInitialized)
	_, err = st.HarvestTrigger(s.ctx, math.ZeroInt())
	s.ErrorIs(err, ErrNotInitialized)

	snap, err := s.factory.Snapshot(s.ctx, st.Address())
	s.Require().NoError(err)
	s.False(snap.Initialized)
	s.True(snap.IsClone)

	s.Require().NoError(s.factory.Initialize(s.ctx, st.Address(), s.initParams(strategist)))
	s.True(s.factory.IsInitialized(st.Address()))
	s.ErrorIs(s.factory.Initialize(s.ctx, st.Address(), s.initParams(strategist)), ErrAlreadyInitialized)

	// an allocated clone is still a clone
	_, err = s.factory.Clone(s.ctx, st.Address(), s.initParams(strategist))
	s.ErrorIs(err, ErrCloneOfClone)
}

func (s *StrategySuite) TestInitializeValidation() {
	_, err := s.factory.Deploy(s.ctx, InitParams{Strategist: strategist})
	s.Error(err)

	otherVault, err := vault.NewLedgerVault(vault.Config{
		Address:    common.HexToAddress("0x0000000000000000000000000000000000000d01"),
		Token:      tokeAddr,
		Governance: governance,
		Ledger:     s.ledger,
	})
	s.Require().NoError(err)
	_, err = s.factory.Deploy(s.ctx, InitParams{Vault: otherVault, Strategist: strategist})
	s.Error(err)

	_, err = s.factory.Clone(s.ctx, stranger, s.initParams(strategist))
	s.ErrorIs(err, ErrUnknownInstance)
	s.ErrorIs(s.factory.Initialize(s.ctx, stranger, s.initParams(strategist)), ErrUnknownInstance)

	// failed deployments leave no instance behind
	s.Len(s.factory.Instances(), 1)
}

func (s *StrategySuite) TestSnapshot() {
	s.deposit(1000)
	s.harvest()
	s.Require().NoError(s.pool.AccrueRewards(s.strategy.Address(), tokeAddr, math.NewInt(7)))
	_, err := s.strategy.ClaimRewards(s.ctx, keeper)
	s.Require().NoError(err)

	snap, err := s.factory.Snapshot(s.ctx, s.strategy.Address())
	s.Require().NoError(err)
	s.Equal("StrategyTokemakWETH", snap.Name)
	s.True(snap.Initialized)
	s.False(snap.IsClone)
	s.Equal(vaultAddr, snap.Vault)
	s.Equal("1000", snap.Staked.String())
	s.Equal("1000", snap.EstimatedTotalAssets.String())
	s.Equal("7", snap.RewardBalances["toke"].String())
	s.Equal(s.clock.Now(), snap.LastReport)

	_, err = s.factory.Snapshot(s.ctx, stranger)
	s.ErrorIs(err, ErrUnknownInstance)
}
