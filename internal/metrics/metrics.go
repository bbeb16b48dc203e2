package metrics

import (
	"net/http"
	"time"

	"cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/utils"
)

const namespace = "tokestrat"

// Collector holds the keeper's Prometheus metrics in a dedicated registry. Amounts are exported in whole
// want units using the configured decimals.
type Collector struct {
	registry *prometheus.Registry
	decimals int

	estimatedTotalAssets *prometheus.GaugeVec
	idle                 *prometheus.GaugeVec
	staked               *prometheus.GaugeVec
	pendingWithdrawal    *prometheus.GaugeVec
	emergencyExit        *prometheus.GaugeVec
	venueCycle           prometheus.Gauge
	pendingTrades        prometheus.Gauge

	harvests       *prometheus.CounterVec
	tends          *prometheus.CounterVec
	profit         *prometheus.CounterVec
	loss           *prometheus.CounterVec
	stillLocked    *prometheus.GaugeVec
	keeperCycles   *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	tradesExecuted prometheus.Counter
}

func New(decimals int) *Collector {
	reg := prometheus.NewRegistry()
	byStrategy := []string{"strategy"}

	c := &Collector{
		registry: reg,
		decimals: decimals,
		estimatedTotalAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "estimated_total_assets",
			Help:      "Idle plus staked want per strategy.",
		}, byStrategy),
		idle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "idle_want",
			Help:      "Want held by the strategy outside the venue.",
		}, byStrategy),
		staked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staked_want",
			Help:      "Strategy position at the staking venue.",
		}, byStrategy),
		pendingWithdrawal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_withdrawal",
			Help:      "Amount of the open venue withdrawal request.",
		}, byStrategy),
		emergencyExit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emergency_exit",
			Help:      "1 when the strategy is in emergency exit.",
		}, byStrategy),
		venueCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "venue_cycle",
			Help:      "Current venue cycle index.",
		}),
		pendingTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_trades",
			Help:      "Trades registered with the trade factory and not executed yet.",
		}),
		harvests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvests_total",
			Help:      "Harvest calls by result.",
		}, []string{"strategy", "result"}),
		tends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tends_total",
			Help:      "Tend calls by result.",
		}, []string{"strategy", "result"}),
		profit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reported_profit_total",
			Help:      "Profit reported to the vault.",
		}, byStrategy),
		loss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reported_loss_total",
			Help:      "Loss reported to the vault.",
		}, byStrategy),
		stillLocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "still_locked",
			Help:      "Liquidity the last harvest wanted but the venue timelock held back.",
		}, byStrategy),
		keeperCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_cycles_total",
			Help:      "Keeper cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keeper_cycle_duration_seconds",
			Help:      "Keeper cycle latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Reward trades settled by the trade factory operator.",
		}),
	}

	reg.MustRegister(
		c.estimatedTotalAssets, c.idle, c.staked, c.pendingWithdrawal, c.emergencyExit,
		c.venueCycle, c.pendingTrades,
		c.harvests, c.tends, c.profit, c.loss, c.stillLocked,
		c.keeperCycles, c.cycleDuration, c.tradesExecuted,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) units(v math.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, err := utils.SDKIntToFloat64(v, c.decimals)
	if err != nil {
		return 0
	}
	return f
}

// ObserveSnapshot refreshes the per-strategy gauges.
func (c *Collector) ObserveSnapshot(snap types.StrategySnapshot) {
	s := snap.Address.Hex()
	c.estimatedTotalAssets.WithLabelValues(s).Set(c.units(snap.EstimatedTotalAssets))
	c.idle.WithLabelValues(s).Set(c.units(snap.Idle))
	c.staked.WithLabelValues(s).Set(c.units(snap.Staked))
	c.pendingWithdrawal.WithLabelValues(s).Set(c.units(snap.PendingWithdrawal.Amount))
	exit := 0.0
	if snap.EmergencyExit {
		exit = 1
	}
	c.emergencyExit.WithLabelValues(s).Set(exit)
	c.venueCycle.Set(float64(snap.CurrentCycle))
}

// RecordHarvest counts a harvest and accumulates its reported profit and loss. A harvest that reported to
// the vault but failed afterwards counts as partial.
func (c *Collector) RecordHarvest(strategy string, report types.HarvestReport, err error) {
	if report.HarvestID == "" {
		c.harvests.WithLabelValues(strategy, "error").Inc()
		return
	}
	result := "ok"
	if err != nil {
		result = "partial"
	}
	c.harvests.WithLabelValues(strategy, result).Inc()
	c.profit.WithLabelValues(strategy).Add(c.units(report.Profit))
	c.loss.WithLabelValues(strategy).Add(c.units(report.Loss))
	c.stillLocked.WithLabelValues(strategy).Set(c.units(report.StillLocked))
}

func (c *Collector) RecordTend(strategy string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.tends.WithLabelValues(strategy, result).Inc()
}

func (c *Collector) RecordKeeperCycle(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.keeperCycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(d.Seconds())
}

func (c *Collector) SetPendingTrades(n int) { c.pendingTrades.Set(float64(n)) }

func (c *Collector) AddTradesExecuted(n int) { c.tradesExecuted.Add(float64(n)) }
