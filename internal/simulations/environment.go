/*

This file wires the in-process market the daemon and the integration tests run against: one ledger, a
staking venue with its cycle manager, a vault, a trade facility and the strategy factory with a template
instance plus optional clones sharing the vault.

*/

package simulations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/config"
	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/strategy"
	"github.com/yieldkeep/tokestrat/internal/tradefactory"
	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/vault"
	"github.com/yieldkeep/tokestrat/internal/venue"
)

// Config describes the simulated market.
type Config struct {
	Name   string
	Want   types.Token
	Reward types.Token

	Governance    common.Address
	Management    common.Address
	Guardian      common.Address
	Strategist    common.Address
	Keeper        common.Address
	Rollover      common.Address
	TradeOperator common.Address

	VaultAddress           common.Address
	VenueAddress           common.Address
	TradeFactoryAddress    common.Address
	StrategyFactoryAddress common.Address

	CycleDuration uint64
	ClockPolicy   types.ClockPolicy
	LockCycles    uint64

	RewardPerCycle math.Int
	SwapRate       math.LegacyDec
	Clones         int

	Parameters *types.StrategyParameters
	Events     strategy.EventSink
	Clock      func() time.Time
}

// ConfigFromEnv builds a Config from the values config.LoadConfig populated.
func ConfigFromEnv() Config {
	params := config.DefaultStrategyParameters()
	return Config{
		Name:                   "StrategyTokemak" + config.WantToken.Symbol,
		Want:                   config.WantToken,
		Reward:                 config.RewardToken,
		Governance:             config.GovernanceAddress,
		Management:             config.ManagementAddress,
		Guardian:               config.GuardianAddress,
		Strategist:             config.StrategistAddress,
		Keeper:                 config.KeeperAddress,
		Rollover:               config.RolloverAddress,
		TradeOperator:          config.TradeOperator,
		VaultAddress:           config.VaultAddress,
		VenueAddress:           config.VenueAddress,
		TradeFactoryAddress:    config.TradeFactoryAddr,
		StrategyFactoryAddress: config.StrategyFactoryAdr,
		CycleDuration:          config.CycleDuration,
		ClockPolicy:            config.ClockPolicy,
		LockCycles:             config.WithdrawalLockCycles,
		RewardPerCycle:         config.RewardPerCycle,
		SwapRate:               config.SwapRate,
		Clones:                 config.Clones,
		Parameters:             &params,
	}
}

func validateConfig(cfg Config) error {
	if cfg.Want.IsZero() || cfg.Reward.IsZero() {
		return fmt.Errorf("want and reward tokens are required")
	}
	if cfg.Governance == (common.Address{}) || cfg.Strategist == (common.Address{}) || cfg.Keeper == (common.Address{}) {
		return fmt.Errorf("governance, strategist and keeper addresses are required")
	}
	if cfg.Clones < 0 {
		return fmt.Errorf("clone count cannot be negative")
	}
	if cfg.CycleDuration == 0 {
		return fmt.Errorf("cycle duration must be positive")
	}
	return nil
}

// Environment is a fully wired in-process market.
type Environment struct {
	cfg    Config
	logger zerolog.Logger

	Ledger       *ledger.Ledger
	Manager      *venue.Manager
	Pool         *venue.Pool
	Vault        *vault.LedgerVault
	TradeFactory *tradefactory.Factory
	Factory      *strategy.Factory
	Swapper      tradefactory.FixedRateSwapper
}

// NewEnvironment deploys the template instance and cfg.Clones clones and attaches them to the vault with
// the debt ratio split evenly.
func NewEnvironment(ctx context.Context, cfg Config) (*Environment, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("simulation configuration validation failed: %w", err)
	}
	if cfg.Management == (common.Address{}) {
		cfg.Management = cfg.Governance
	}
	if cfg.Guardian == (common.Address{}) {
		cfg.Guardian = cfg.Governance
	}
	if cfg.TradeOperator == (common.Address{}) {
		cfg.TradeOperator = cfg.Governance
	}
	if cfg.Rollover == (common.Address{}) {
		cfg.Rollover = config.DefaultVenueManager
	}
	if cfg.SwapRate.IsNil() {
		cfg.SwapRate = math.LegacyZeroDec()
	}
	if cfg.RewardPerCycle.IsNil() {
		cfg.RewardPerCycle = math.ZeroInt()
	}
	if cfg.Name == "" {
		cfg.Name = "StrategyTokemak" + cfg.Want.Symbol
	}

	e := &Environment{cfg: cfg, logger: logger.GetForComponent("simulation")}
	e.Ledger = ledger.New()
	e.Manager = venue.NewManager(cfg.Rollover, cfg.CycleDuration)

	var err error
	e.Pool, err = venue.NewPool(venue.PoolConfig{
		Address:     cfg.VenueAddress,
		Underlying:  cfg.Want.Address,
		Ledger:      e.Ledger,
		Manager:     e.Manager,
		ClockPolicy: cfg.ClockPolicy,
		LockCycles:  cfg.LockCycles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create venue: %w", err)
	}

	e.Vault, err = vault.NewLedgerVault(vault.Config{
		Address:    cfg.VaultAddress,
		Token:      cfg.Want.Address,
		Governance: cfg.Governance,
		Management: cfg.Management,
		Guardian:   cfg.Guardian,
		Ledger:     e.Ledger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}
	if cfg.Clock != nil {
		e.Vault.SetClock(cfg.Clock)
	}

	e.TradeFactory = tradefactory.New(cfg.TradeFactoryAddress, cfg.Governance, cfg.TradeOperator, e.Ledger)
	e.Swapper = tradefactory.FixedRateSwapper{Ledger: e.Ledger, Rate: cfg.SwapRate}

	e.Factory, err = strategy.NewFactory(cfg.StrategyFactoryAddress, strategy.Template{
		Name:         cfg.Name,
		Want:         cfg.Want,
		RewardTokens: []types.Token{cfg.Reward},
		Venue:        e.Pool,
		Ledger:       e.Ledger,
		Clock:        cfg.Clock,
	}, cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy factory: %w", err)
	}

	if err := e.deployInstances(ctx); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("vault", cfg.VaultAddress.Hex()).
		Str("venue", cfg.VenueAddress.Hex()).
		Int("instances", cfg.Clones+1).
		Msg("Simulation environment ready")
	return e, nil
}

func (e *Environment) initParams() strategy.InitParams {
	return strategy.InitParams{
		Vault:        e.Vault,
		Strategist:   e.cfg.Strategist,
		Keeper:       e.cfg.Keeper,
		TradeFactory: e.TradeFactory,
		Parameters:   e.cfg.Parameters,
	}
}

func (e *Environment) deployInstances(ctx context.Context) error {
	template, err := e.Factory.Deploy(ctx, e.initParams())
	if err != nil {
		return fmt.Errorf("failed to deploy template instance: %w", err)
	}
	instances := []*strategy.Strategy{template}
	for i := 0; i < e.cfg.Clones; i++ {
		clone, err := e.Factory.Clone(ctx, template.Address(), e.initParams())
		if err != nil {
			return fmt.Errorf("failed to clone instance %d: %w", i+1, err)
		}
		instances = append(instances, clone)
	}

	ratio := vault.MaxBPS / uint64(len(instances))
	for _, s := range instances {
		if err := e.TradeFactory.GrantRole(e.cfg.Governance, s.Address()); err != nil {
			return fmt.Errorf("failed to grant trade role to %s: %w", s.Address().Hex(), err)
		}
		if err := e.Vault.AddStrategy(e.cfg.Governance, s, ratio, math.ZeroInt(), ledger.MaxAllowance); err != nil {
			return fmt.Errorf("failed to add %s to the vault: %w", s.Address().Hex(), err)
		}
	}
	return nil
}

func (e *Environment) Config() Config { return e.cfg }

// Deposit mints amount of want to user and deposits it into the vault.
func (e *Environment) Deposit(ctx context.Context, user common.Address, amount math.Int) (math.Int, error) {
	if err := e.Ledger.Mint(e.cfg.Want.Address, user, amount); err != nil {
		return math.ZeroInt(), err
	}
	if err := e.Ledger.Approve(e.cfg.Want.Address, user, e.Vault.Address(), amount); err != nil {
		return math.ZeroInt(), err
	}
	return e.Vault.Deposit(ctx, user, amount)
}

// StepResult summarizes one simulated venue cycle.
type StepResult struct {
	Cycle          uint64
	RewardsClaimed math.Int
	TradesCreated  int
	TradesExecuted int
	Proceeds       math.Int
	PendingTrades  int
}

// Step advances the market by one venue cycle: the venue rolls over and distributes RewardPerCycle pro rata
// to the instances, each instance claims and registers its rewards for sale and the trade operator
// settles every pending trade. Failures of one instance do not stop the others.
func (e *Environment) Step(ctx context.Context) (StepResult, error) {
	res := StepResult{RewardsClaimed: math.ZeroInt(), Proceeds: math.ZeroInt()}
	var errs []error

	cycle, err := e.Manager.CompleteRollover(e.cfg.Rollover)
	if err != nil {
		return res, fmt.Errorf("rollover failed: %w", err)
	}
	res.Cycle = cycle

	instances := e.Factory.Instances()
	holders := make([]common.Address, 0, len(instances))
	for _, s := range instances {
		holders = append(holders, s.Address())
	}
	if err := e.Pool.AccrueRewardsProRata(e.cfg.Reward.Address, holders, e.cfg.RewardPerCycle); err != nil {
		errs = append(errs, fmt.Errorf("reward accrual failed: %w", err))
	}

	for _, s := range instances {
		if !e.Factory.IsInitialized(s.Address()) {
			continue
		}
		claimed, err := s.ClaimRewards(ctx, e.cfg.Keeper)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: claim: %w", s.Address().Hex(), err))
			continue
		}
		if amt, ok := claimed[e.cfg.Reward.Address]; ok {
			res.RewardsClaimed = res.RewardsClaimed.Add(amt)
		}
		ids, err := s.SellRewards(ctx, e.cfg.Strategist)
		if err != nil && !errors.Is(err, strategy.ErrNoTradeFacility) {
			errs = append(errs, fmt.Errorf("%s: sell rewards: %w", s.Address().Hex(), err))
		}
		res.TradesCreated += len(ids)
	}

	executed, err := e.TradeFactory.ExecuteAll(ctx, e.cfg.TradeOperator, e.Swapper)
	if err != nil {
		errs = append(errs, fmt.Errorf("trade execution: %w", err))
	}
	for _, r := range executed {
		res.Proceeds = res.Proceeds.Add(r.AmountOut)
	}
	res.TradesExecuted = len(executed)
	res.PendingTrades = len(e.TradeFactory.AllPendingTradeIDs())

	e.logger.Info().
		Uint64("cycle", res.Cycle).
		Str("rewardsClaimed", res.RewardsClaimed.String()).
		Int("tradesExecuted", res.TradesExecuted).
		Str("proceeds", res.Proceeds.String()).
		Msg("Simulated venue cycle")
	return res, errors.Join(errs...)
}

// RunLoop calls Step every interval until ctx is cancelled. onStep, when set, sees every result.
func (e *Environment) RunLoop(ctx context.Context, interval time.Duration, onStep func(StepResult)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Simulation loop stopped due to context cancellation")
			return
		case <-ticker.C:
			res, err := e.Step(ctx)
			if err != nil {
				e.logger.Warn().Err(err).Msg("Simulated cycle finished with errors")
			}
			if onStep != nil {
				onStep(res)
			}
		}
	}
}
