package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/utils"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.(prometheus.Metric).Write(m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.(prometheus.Metric).Write(m))
	return m.GetCounter().GetValue()
}

func TestObserveSnapshot(t *testing.T) {
	c := New(18)
	addr := common.HexToAddress("0xa1")
	c.ObserveSnapshot(types.StrategySnapshot{
		Address:              addr,
		Idle:                 utils.Units(5, 18),
		Staked:               utils.Units(10, 18),
		EstimatedTotalAssets: utils.Units(15, 18),
		PendingWithdrawal:    types.WithdrawalRequest{Amount: utils.Units(3, 18)},
		CurrentCycle:         7,
		EmergencyExit:        true,
	})

	s := addr.Hex()
	assert.InDelta(t, 15, gaugeValue(t, c.estimatedTotalAssets.WithLabelValues(s)), 1e-9)
	assert.InDelta(t, 5, gaugeValue(t, c.idle.WithLabelValues(s)), 1e-9)
	assert.InDelta(t, 10, gaugeValue(t, c.staked.WithLabelValues(s)), 1e-9)
	assert.InDelta(t, 3, gaugeValue(t, c.pendingWithdrawal.WithLabelValues(s)), 1e-9)
	assert.Equal(t, 1.0, gaugeValue(t, c.emergencyExit.WithLabelValues(s)))
	assert.Equal(t, 7.0, gaugeValue(t, c.venueCycle))
}

func TestObserveSnapshotToleratesNilAmounts(t *testing.T) {
	c := New(6)
	c.ObserveSnapshot(types.StrategySnapshot{Address: common.HexToAddress("0xa2")})
	assert.Equal(t, 0.0, gaugeValue(t, c.idle.WithLabelValues(common.HexToAddress("0xa2").Hex())))
}

func TestRecordHarvest(t *testing.T) {
	c := New(0)
	s := "0xstrategy"
	c.RecordHarvest(s, types.HarvestReport{
		HarvestID:   "h1",
		Profit:      math.NewInt(40),
		Loss:        math.ZeroInt(),
		StillLocked: math.NewInt(4),
	}, nil)
	c.RecordHarvest(s, types.HarvestReport{
		HarvestID:   "h2",
		Profit:      math.NewInt(2),
		Loss:        math.NewInt(1),
		StillLocked: math.ZeroInt(),
	}, errors.New("venue unavailable"))
	c.RecordHarvest(s, types.HarvestReport{}, errors.New("boom"))

	assert.Equal(t, 1.0, counterValue(t, c.harvests.WithLabelValues(s, "ok")))
	assert.Equal(t, 1.0, counterValue(t, c.harvests.WithLabelValues(s, "partial")))
	assert.Equal(t, 1.0, counterValue(t, c.harvests.WithLabelValues(s, "error")))
	assert.Equal(t, 42.0, counterValue(t, c.profit.WithLabelValues(s)))
	assert.Equal(t, 1.0, counterValue(t, c.loss.WithLabelValues(s)))
	assert.Equal(t, 0.0, gaugeValue(t, c.stillLocked.WithLabelValues(s)))
}

func TestKeeperCounters(t *testing.T) {
	c := New(18)
	c.RecordTend("0xs", nil)
	c.RecordTend("0xs", errors.New("locked"))
	c.RecordKeeperCycle(20*time.Millisecond, nil)
	c.SetPendingTrades(3)
	c.AddTradesExecuted(2)

	assert.Equal(t, 1.0, counterValue(t, c.tends.WithLabelValues("0xs", "ok")))
	assert.Equal(t, 1.0, counterValue(t, c.tends.WithLabelValues("0xs", "error")))
	assert.Equal(t, 1.0, counterValue(t, c.keeperCycles.WithLabelValues("ok")))
	assert.Equal(t, 3.0, gaugeValue(t, c.pendingTrades))
	assert.Equal(t, 2.0, counterValue(t, c.tradesExecuted))

	m := &dto.Metric{}
	require.NoError(t, c.cycleDuration.(prometheus.Metric).Write(m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestHandler(t *testing.T) {
	c := New(18)
	c.SetPendingTrades(1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "tokestrat_pending_trades 1"))
}
