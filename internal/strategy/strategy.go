/*

This file contains the strategy instance: the state one deployment owns, its role administration and the
read-only views (estimated total assets, snapshots). Harvest, tend and the vault-facing operations live in
harvest.go.

*/

package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/config"
	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/tradefactory"
	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/vault"
	"github.com/yieldkeep/tokestrat/internal/venue"
)

// Template is the configuration every instance produced by a Factory shares. It is never mutated after
// the factory is created.
type Template struct {
	Name            string
	Want            types.Token
	RewardTokens    []types.Token
	ProtectedTokens []common.Address
	Venue           venue.Adapter
	Ledger          *ledger.Ledger
	Clock           func() time.Time // Defaults to time.Now
}

func (t Template) validate() error {
	if t.Ledger == nil {
		return fmt.Errorf("%w: ledger cannot be nil", ErrInvalidTemplate)
	}
	if t.Venue == nil {
		return fmt.Errorf("%w: venue cannot be nil", ErrInvalidTemplate)
	}
	if t.Want.IsZero() {
		return fmt.Errorf("%w: want token is required", ErrInvalidTemplate)
	}
	if t.Venue.Underlying() != t.Want.Address {
		return fmt.Errorf("%w: venue takes %s, want is %s", ErrInvalidTemplate, t.Venue.Underlying().Hex(), t.Want.Address.Hex())
	}
	for _, r := range t.RewardTokens {
		if r.Address == t.Want.Address {
			return fmt.Errorf("%w: want cannot be a reward token", ErrInvalidTemplate)
		}
	}
	return nil
}

// InitParams are the per-instance settings passed to Initialize.
type InitParams struct {
	Vault        vault.VaultManager
	Strategist   common.Address
	Rewards      common.Address            // Defaults to Strategist
	Keeper       common.Address            // Defaults to Strategist
	TradeFactory tradefactory.Adapter      // Optional
	Parameters   *types.StrategyParameters // Defaults to config.DefaultStrategyParameters
}

// Strategy lends vault capital to the staking venue. Every exported operation runs under the instance
// lock as a single step and re-derives its numbers from current balances.
type Strategy struct {
	mu sync.Mutex

	address     common.Address
	template    *Template
	coordinator *WithdrawalCoordinator
	events      EventSink
	now         func() time.Time
	logger      zerolog.Logger

	// set by bind, nil vault means not initialized
	vault         vault.VaultManager
	strategist    common.Address
	keeper        common.Address
	rewards       common.Address
	tradeFactory  tradefactory.Adapter
	params        types.StrategyParameters
	emergencyExit bool
}

func newStrategy(address common.Address, template *Template, events EventSink) *Strategy {
	now := template.Clock
	if now == nil {
		now = time.Now
	}
	if events == nil {
		events = discardSink{}
	}
	log := logger.GetForComponent("strategy").With().Str("strategy", address.Hex()).Logger()
	return &Strategy{
		address:     address,
		template:    template,
		coordinator: NewWithdrawalCoordinator(address, template.Venue, log),
		events:      events,
		now:         now,
		logger:      log,
	}
}

// bind performs initialization. The factory guarantees it runs once per instance.
func (s *Strategy) bind(ctx context.Context, p InitParams) error {
	if p.Vault == nil {
		return fmt.Errorf("vault cannot be nil")
	}
	if p.Strategist == (common.Address{}) {
		return fmt.Errorf("strategist cannot be zero")
	}
	if p.Vault.Token() != s.template.Want.Address {
		return fmt.Errorf("vault token %s does not match want %s", p.Vault.Token().Hex(), s.template.Want.Address.Hex())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.template.Ledger
	want := s.template.Want.Address
	if err := l.Approve(want, s.address, p.Vault.Address(), ledger.MaxAllowance); err != nil {
		return fmt.Errorf("failed to approve vault: %w", err)
	}
	if err := l.Approve(want, s.address, s.template.Venue.Address(), ledger.MaxAllowance); err != nil {
		return fmt.Errorf("failed to approve venue: %w", err)
	}

	s.vault = p.Vault
	s.strategist = p.Strategist
	s.rewards = p.Rewards
	if s.rewards == (common.Address{}) {
		s.rewards = p.Strategist
	}
	s.keeper = p.Keeper
	if s.keeper == (common.Address{}) {
		s.keeper = p.Strategist
	}
	if p.Parameters != nil {
		s.params = *p.Parameters
	} else {
		s.params = config.DefaultStrategyParameters()
	}
	if p.TradeFactory != nil {
		if err := s.setUpTradeFactoryLocked(p.TradeFactory); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("vault", p.Vault.Address().Hex()).
		Str("strategist", s.strategist.Hex()).
		Str("keeper", s.keeper.Hex()).
		Msg("Strategy initialized")
	return nil
}

func (s *Strategy) Address() common.Address { return s.address }
func (s *Strategy) Name() string            { return s.template.Name }
func (s *Strategy) Want() common.Address    { return s.template.Want.Address }

// VaultAddress returns the zero address until the instance is initialized.
func (s *Strategy) VaultAddress() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vault == nil {
		return common.Address{}
	}
	return s.vault.Address()
}

func (s *Strategy) EmergencyExit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergencyExit
}

func (s *Strategy) Strategist() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategist
}

func (s *Strategy) Keeper() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keeper
}

func (s *Strategy) Rewards() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewards
}

func (s *Strategy) Parameters() types.StrategyParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// TradeFactory returns the zero address when no facility is set.
func (s *Strategy) TradeFactory() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tradeFactory == nil {
		return common.Address{}
	}
	return s.tradeFactory.Address()
}

func (s *Strategy) idleLocked() math.Int {
	return s.template.Ledger.BalanceOf(s.template.Want.Address, s.address)
}

// EstimatedTotalAssets is idle want plus the staked position. Finalized withdrawals are paid straight into
// the idle balance and reward tokens are never counted.
func (s *Strategy) EstimatedTotalAssets(ctx context.Context) (math.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimatedTotalAssetsLocked(ctx)
}

func (s *Strategy) estimatedTotalAssetsLocked(ctx context.Context) (math.Int, error) {
	staked, err := s.template.Venue.BalanceOf(ctx, s.address)
	if err != nil {
		return math.ZeroInt(), fmt.Errorf("failed to read staked balance: %w", err)
	}
	return s.idleLocked().Add(staked), nil
}

// IdleBalance is the want the instance holds outside the venue.
func (s *Strategy) IdleBalance() math.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked()
}

// StakedBalance is the instance's position at the venue.
func (s *Strategy) StakedBalance(ctx context.Context) (math.Int, error) {
	return s.template.Venue.BalanceOf(ctx, s.address)
}

// SetStrategist can be called by the strategist or governance.
func (s *Strategy) SetStrategist(ctx context.Context, caller, strategist common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, authorized...); err != nil {
		return err
	}
	if strategist == (common.Address{}) {
		return fmt.Errorf("strategist cannot be zero")
	}
	s.strategist = strategist
	s.logger.Info().Str("strategist", strategist.Hex()).Msg("Strategist updated")
	return nil
}

// SetKeeper can be called by the strategist, management or governance.
func (s *Strategy) SetKeeper(ctx context.Context, caller, keeper common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, vaultManagers...); err != nil {
		return err
	}
	if keeper == (common.Address{}) {
		return fmt.Errorf("keeper cannot be zero")
	}
	s.keeper = keeper
	s.logger.Info().Str("keeper", keeper.Hex()).Msg("Keeper updated")
	return nil
}

// SetRewards can only be called by the strategist.
func (s *Strategy) SetRewards(ctx context.Context, caller, rewards common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, RoleStrategist); err != nil {
		return err
	}
	if rewards == (common.Address{}) {
		return fmt.Errorf("rewards cannot be zero")
	}
	s.rewards = rewards
	return nil
}

// SetParameters replaces the trigger parameters.
func (s *Strategy) SetParameters(ctx context.Context, caller common.Address, params types.StrategyParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, vaultManagers...); err != nil {
		return err
	}
	if params.MinReportDelay > params.MaxReportDelay {
		return fmt.Errorf("%w: min report delay %s exceeds max %s", ErrInvalidAmount, params.MinReportDelay, params.MaxReportDelay)
	}
	if params.ProfitFactor < 0 || params.DebtThreshold.IsNil() || params.DebtThreshold.IsNegative() {
		return fmt.Errorf("%w: profit factor and debt threshold must not be negative", ErrInvalidAmount)
	}
	s.params = params
	s.logger.Info().
		Dur("minReportDelay", params.MinReportDelay).
		Dur("maxReportDelay", params.MaxReportDelay).
		Int64("profitFactor", params.ProfitFactor).
		Str("debtThreshold", params.DebtThreshold.String()).
		Msg("Parameters updated")
	return nil
}

// SetEmergencyExit is one-way. It revokes the instance at the vault so the next harvests return everything.
func (s *Strategy) SetEmergencyExit(ctx context.Context, caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(caller, emergencyAuthorized...); err != nil {
		return err
	}
	if s.emergencyExit {
		return nil
	}
	if err := s.vault.RevokeStrategy(ctx, s.address, s.address); err != nil {
		return fmt.Errorf("failed to revoke strategy at vault: %w", err)
	}
	s.emergencyExit = true
	s.events.Emit(types.EmergencyExitEnabledEvent{Strategy: s.address})
	s.logger.Warn().Str("caller", caller.Hex()).Msg("Emergency exit enabled")
	return nil
}

// Snapshot is a read-only view for the dashboard and metrics. Factory-held flags are filled in by the factory.
func (s *Strategy) Snapshot(ctx context.Context) (types.StrategySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staked, err := s.template.Venue.BalanceOf(ctx, s.address)
	if err != nil {
		return types.StrategySnapshot{}, fmt.Errorf("failed to read staked balance: %w", err)
	}
	pending, err := s.coordinator.Pending(ctx)
	if err != nil {
		return types.StrategySnapshot{}, err
	}
	cycle, err := s.template.Venue.CurrentCycleIndex(ctx)
	if err != nil {
		return types.StrategySnapshot{}, fmt.Errorf("failed to read venue cycle: %w", err)
	}

	idle := s.idleLocked()
	snap := types.StrategySnapshot{
		Address:              s.address,
		Name:                 s.template.Name,
		Initialized:          s.vault != nil,
		EmergencyExit:        s.emergencyExit,
		Idle:                 idle,
		Staked:               staked,
		EstimatedTotalAssets: idle.Add(staked),
		PendingWithdrawal:    pending,
		CurrentCycle:         cycle,
		RewardBalances:       make(map[string]math.Int, len(s.template.RewardTokens)),
	}
	for _, r := range s.template.RewardTokens {
		snap.RewardBalances[r.Symbol] = s.template.Ledger.BalanceOf(r.Address, s.address)
	}
	if s.vault != nil {
		snap.Vault = s.vault.Address()
		snap.LastReport = s.vault.StrategyParams(s.address).LastReport
	}
	if s.tradeFactory != nil {
		snap.TradeFactory = s.tradeFactory.Address()
	}
	return snap, nil
}
