package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/metrics"
	"github.com/yieldkeep/tokestrat/internal/state"
	"github.com/yieldkeep/tokestrat/internal/strategy"
	"github.com/yieldkeep/tokestrat/internal/types"
)

// Keeper walks every initialized strategy instance once per cycle, harvesting or tending whichever the
// triggers ask for at the configured call cost.
type Keeper struct {
	logger   zerolog.Logger
	factory  *strategy.Factory
	store    state.Store
	metrics  *metrics.Collector
	address  common.Address
	callCost math.Int

	cycleCount int
}

// Config holds the dependencies for a Keeper. Metrics is optional.
type Config struct {
	Factory  *strategy.Factory
	Store    state.Store
	Metrics  *metrics.Collector
	Address  common.Address
	CallCost math.Int
}

// Action is what the keeper did with one instance in a cycle.
type Action string

const (
	ActionNone    Action = "none"
	ActionHarvest Action = "harvest"
	ActionTend    Action = "tend"
)

// InstanceResult is the outcome for one instance.
type InstanceResult struct {
	Strategy common.Address
	Action   Action
	Report   *types.HarvestReport
	Deployed math.Int
	Err      error
}

// CycleResult summarizes one keeper cycle.
type CycleResult struct {
	CycleID     string
	CycleNumber int
	Instances   []InstanceResult
	Duration    time.Duration
}

// Err joins the per-instance failures.
func (r CycleResult) Err() error {
	var errs []error
	for _, res := range r.Instances {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Strategy.Hex(), res.Err))
		}
	}
	return errors.Join(errs...)
}

func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:   logger.GetForComponent("keeper"),
		factory:  cfg.Factory,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		address:  cfg.Address,
		callCost: cfg.CallCost,
	}

	k.logger.Info().
		Str("keeper", k.address.Hex()).
		Str("callCost", k.callCost.String()).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	if cfg.Factory == nil {
		return fmt.Errorf("strategy factory cannot be nil")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if cfg.Address == (common.Address{}) {
		return fmt.Errorf("keeper address cannot be empty")
	}
	if cfg.CallCost.IsNil() || cfg.CallCost.IsNegative() {
		return fmt.Errorf("call cost must be non-negative")
	}
	return nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is cancelled.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.runOnce(ctx)
		}
	}
}

func (k *Keeper) runOnce(ctx context.Context) {
	k.cycleCount++
	k.logger.Info().Int("cycle", k.cycleCount).Msg("Initiating keeper cycle")
	if _, err := k.RunCycle(ctx); err != nil {
		k.logger.Warn().Err(err).Int("cycle", k.cycleCount).Msg("Keeper cycle finished with errors")
		return
	}
	k.logger.Info().Int("cycle", k.cycleCount).Msg("Keeper cycle completed")
}

// RunCycle evaluates every initialized instance once. Instance failures are collected in the result and
// do not stop the cycle; the returned error is non-nil when any instance failed or the cycle counter
// could not be advanced.
func (k *Keeper) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	result := CycleResult{CycleID: uuid.New().String()}
	cycleLogger := k.logger.With().Str("cycle_id", result.CycleID).Logger()

	cycleNumber, err := k.store.IncrementCycleNumber(ctx)
	if err != nil {
		// keep going, reports then carry cycle 0
		cycleLogger.Error().Err(err).Msg("Failed to advance cycle counter")
	}
	result.CycleNumber = cycleNumber
	cycleLogger.Info().Int("cycleNumber", cycleNumber).Msg("--- Starting keeper cycle ---")

	for _, s := range k.factory.Instances() {
		if ctx.Err() != nil {
			break
		}
		if !k.factory.IsInitialized(s.Address()) {
			continue
		}
		res := k.processInstance(ctx, cycleLogger, s, cycleNumber)
		result.Instances = append(result.Instances, res)
		k.observe(ctx, s.Address())
	}

	result.Duration = time.Since(start)
	cycleErr := errors.Join(err, result.Err(), ctx.Err())
	if k.metrics != nil {
		k.metrics.RecordKeeperCycle(result.Duration, cycleErr)
	}
	cycleLogger.Info().
		Int("instances", len(result.Instances)).
		Str("cycleDuration", result.Duration.String()).
		Msg("--- Keeper cycle finished ---")
	return result, cycleErr
}

func (k *Keeper) processInstance(ctx context.Context, log zerolog.Logger, s *strategy.Strategy, cycleNumber int) InstanceResult {
	res := InstanceResult{Strategy: s.Address(), Action: ActionNone}
	log = log.With().Str("strategy", s.Address().Hex()).Logger()

	harvest, err := s.HarvestTrigger(ctx, k.callCost)
	if err != nil {
		res.Err = fmt.Errorf("harvest trigger: %w", err)
		return res
	}
	if harvest {
		res.Action = ActionHarvest
		report, err := s.Harvest(ctx, k.address)
		if k.metrics != nil {
			k.metrics.RecordHarvest(s.Address().Hex(), report, err)
		}
		if report.HarvestID == "" {
			res.Err = fmt.Errorf("harvest: %w", err)
			log.Error().Err(err).Msg("Harvest failed")
			return res
		}
		if err != nil {
			res.Err = fmt.Errorf("harvest: %w", err)
			log.Warn().Err(err).Msg("Harvest reported with follow-up errors")
		}

		report.CycleNumber = cycleNumber
		id, saveErr := k.store.SaveHarvestReport(ctx, report)
		if saveErr != nil {
			res.Err = errors.Join(res.Err, fmt.Errorf("save report: %w", saveErr))
			log.Error().Err(saveErr).Msg("Failed to save harvest report")
		} else {
			report.ReportID = id
			log.Info().Int64("report_id", id).Msg("Harvest report saved")
		}
		res.Report = &report
		return res
	}

	tend, err := s.TendTrigger(ctx, k.callCost)
	if err != nil {
		res.Err = fmt.Errorf("tend trigger: %w", err)
		return res
	}
	if !tend {
		return res
	}
	res.Action = ActionTend
	res.Deployed, err = s.Tend(ctx, k.address)
	if k.metrics != nil {
		k.metrics.RecordTend(s.Address().Hex(), err)
	}
	if err != nil {
		res.Err = fmt.Errorf("tend: %w", err)
		log.Error().Err(err).Msg("Tend failed")
	}
	return res
}

func (k *Keeper) observe(ctx context.Context, addr common.Address) {
	if k.metrics == nil {
		return
	}
	snap, err := k.factory.Snapshot(ctx, addr)
	if err != nil {
		k.logger.Debug().Err(err).Str("strategy", addr.Hex()).Msg("Snapshot unavailable for metrics")
		return
	}
	k.metrics.ObserveSnapshot(snap)
}
