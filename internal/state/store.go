package state

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/types"
)

// Store is what the keeper and the dashboard persist through.
type Store interface {
	SaveHarvestReport(ctx context.Context, report types.HarvestReport) (int64, error)
	RecentReports(ctx context.Context, strategy common.Address, limit int) ([]types.HarvestReport, error)
	ReportByID(ctx context.Context, reportID int64) (types.HarvestReport, error)
	Performance(ctx context.Context, strategy common.Address) (PerformanceMetrics, error)

	CurrentCycleNumber(ctx context.Context) (int, error)
	IncrementCycleNumber(ctx context.Context) (int, error)

	SaveStrategyParameters(ctx context.Context, params types.StrategyParameters, configName string, version int, makeActive bool) (int64, error)
	LoadActiveStrategyParameters(ctx context.Context, configName string) (*types.StrategyParameters, error)
}

// Postgres implements Store on the package connection pool. InitDB must have been called.
type Postgres struct{}

var _ Store = Postgres{}

func (Postgres) SaveHarvestReport(ctx context.Context, report types.HarvestReport) (int64, error) {
	return SaveHarvestReport(ctx, report)
}

func (Postgres) RecentReports(ctx context.Context, strategy common.Address, limit int) ([]types.HarvestReport, error) {
	return GetRecentReports(ctx, strategy, limit)
}

func (Postgres) ReportByID(ctx context.Context, reportID int64) (types.HarvestReport, error) {
	return GetReportByID(ctx, reportID)
}

func (Postgres) Performance(ctx context.Context, strategy common.Address) (PerformanceMetrics, error) {
	return GetPerformanceMetrics(ctx, strategy)
}

func (Postgres) CurrentCycleNumber(ctx context.Context) (int, error) {
	return GetCurrentCycleNumber(ctx)
}

func (Postgres) IncrementCycleNumber(ctx context.Context) (int, error) {
	return IncrementCycleNumber(ctx)
}

func (Postgres) SaveStrategyParameters(ctx context.Context, params types.StrategyParameters, configName string, version int, makeActive bool) (int64, error) {
	return SaveStrategyParameters(ctx, params, configName, version, makeActive)
}

func (Postgres) LoadActiveStrategyParameters(ctx context.Context, configName string) (*types.StrategyParameters, error) {
	return LoadActiveStrategyParameters(ctx, configName)
}

// Ping checks the database connection.
func (Postgres) Ping() error { return TestDBConnection() }
