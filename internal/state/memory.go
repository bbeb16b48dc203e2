package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/types"
)

type storedParams struct {
	version int
	active  bool
	params  types.StrategyParameters
}

// MemoryStore implements Store without a database. Used when no DB_HOST is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	reports []types.HarvestReport
	cycle   int
	params  map[string][]storedParams
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, params: make(map[string][]storedParams)}
}

func (m *MemoryStore) SaveHarvestReport(ctx context.Context, report types.HarvestReport) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.HarvestID == report.HarvestID {
			return 0, fmt.Errorf("harvest %s already stored", report.HarvestID)
		}
	}
	report.ReportID = m.nextID
	m.nextID++
	if report.PendingTradeIDs == nil {
		report.PendingTradeIDs = []string{}
	}
	m.reports = append(m.reports, report)
	return report.ReportID, nil
}

func (m *MemoryStore) RecentReports(ctx context.Context, strategy common.Address, limit int) ([]types.HarvestReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit = clampLimit(limit)

	out := []types.HarvestReport{}
	for _, r := range m.reports {
		if strategy == (common.Address{}) || r.Strategy == strategy {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ReportID > out[j].ReportID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ReportByID(ctx context.Context, reportID int64) (types.HarvestReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reports {
		if r.ReportID == reportID {
			return r, nil
		}
	}
	return types.HarvestReport{}, fmt.Errorf("%w: report %d", ErrNotFound, reportID)
}

func (m *MemoryStore) Performance(ctx context.Context, strategy common.Address) (PerformanceMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := PerformanceMetrics{
		Strategy:         strategyFilter(strategy),
		TotalProfit:      math.ZeroInt(),
		TotalLoss:        math.ZeroInt(),
		TotalDebtPayment: math.ZeroInt(),
	}
	for _, r := range m.reports {
		if strategy != (common.Address{}) && r.Strategy != strategy {
			continue
		}
		p.Harvests++
		p.TotalProfit = p.TotalProfit.Add(r.Profit)
		p.TotalLoss = p.TotalLoss.Add(r.Loss)
		p.TotalDebtPayment = p.TotalDebtPayment.Add(r.DebtPayment)
		if r.Profit.IsPositive() {
			p.ProfitableHarvests++
		}
		if r.EmergencyExit {
			p.EmergencyHarvests++
		}
		if r.Timestamp.After(p.LastHarvest) {
			p.LastHarvest = r.Timestamp
		}
	}
	return p, nil
}

func (m *MemoryStore) CurrentCycleNumber(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycle, nil
}

func (m *MemoryStore) IncrementCycleNumber(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycle++
	return m.cycle, nil
}

func (m *MemoryStore) SaveStrategyParameters(ctx context.Context, params types.StrategyParameters, configName string, version int, makeActive bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.params[configName]
	for i := range versions {
		if versions[i].version == version {
			return 0, fmt.Errorf("parameters %s version %d already exist", configName, version)
		}
		if makeActive {
			versions[i].active = false
		}
	}
	m.params[configName] = append(versions, storedParams{version: version, active: makeActive, params: params})

	var id int64
	for _, v := range m.params {
		id += int64(len(v))
	}
	return id, nil
}

func (m *MemoryStore) LoadActiveStrategyParameters(ctx context.Context, configName string) (*types.StrategyParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.params[configName]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].active {
			p := versions[i].params
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: no active strategy parameters for config '%s'", ErrNotFound, configName)
}
