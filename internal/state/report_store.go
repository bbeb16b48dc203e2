// ./internal/state/report_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/yieldkeep/tokestrat/internal/types"
)

const reportColumns = `
	report_id, harvest_id, cycle_number, strategy_address, venue_cycle, report_timestamp,
	profit, loss, debt_payment, debt_outstanding, still_locked, total_assets_before, total_assets_after,
	emergency_exit, pending_trade_ids`

// SaveHarvestReport stores report and returns its report_id.
func SaveHarvestReport(ctx context.Context, report types.HarvestReport) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	pending := report.PendingTradeIDs
	if pending == nil {
		pending = []string{}
	}

	query := `
		INSERT INTO harvest_reports (
			harvest_id, cycle_number, strategy_address, venue_cycle, report_timestamp,
			profit, loss, debt_payment, debt_outstanding, still_locked, total_assets_before, total_assets_after,
			emergency_exit, pending_trade_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING report_id;
	`

	var reportID int64
	err := DB.QueryRowContext(ctx, query,
		report.HarvestID, report.CycleNumber, report.Strategy.Hex(), int64(report.VenueCycle), report.Timestamp,
		intString(report.Profit), intString(report.Loss), intString(report.DebtPayment), intString(report.DebtOutstanding),
		intString(report.StillLocked), intString(report.TotalAssetsBefore), intString(report.TotalAssetsAfter),
		report.EmergencyExit, pq.Array(pending),
	).Scan(&reportID)
	if err != nil {
		return 0, fmt.Errorf("failed to save harvest report: %w", err)
	}

	log.Info().
		Int64("report_id", reportID).
		Str("harvest_id", report.HarvestID).
		Str("strategy", report.Strategy.Hex()).
		Msg("Harvest report saved to database")
	return reportID, nil
}

// GetRecentReports returns the latest reports, newest first. A zero strategy matches every strategy.
func GetRecentReports(ctx context.Context, strategy common.Address, limit int) ([]types.HarvestReport, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}
	limit = clampLimit(limit)

	query := `SELECT ` + reportColumns + `
		FROM harvest_reports
		WHERE ($1::TEXT = '' OR strategy_address = $1::TEXT)
		ORDER BY report_timestamp DESC, report_id DESC
		LIMIT $2`

	rows, err := DB.QueryContext(ctx, query, strategyFilter(strategy), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent reports: %w", err)
	}
	defer rows.Close()

	reports := []types.HarvestReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan harvest report row")
			continue
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return reports, nil
}

// GetReportByID retrieves one report. Returns ErrNotFound when it does not exist.
func GetReportByID(ctx context.Context, reportID int64) (types.HarvestReport, error) {
	if DB == nil {
		return types.HarvestReport{}, ErrNotInitialized
	}

	row := DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM harvest_reports WHERE report_id = $1`, reportID)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.HarvestReport{}, fmt.Errorf("%w: report %d", ErrNotFound, reportID)
	}
	if err != nil {
		return types.HarvestReport{}, fmt.Errorf("failed to query report %d: %w", reportID, err)
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (types.HarvestReport, error) {
	var (
		r                                          types.HarvestReport
		strategy                                   string
		venueCycle                                 int64
		profit, loss, payment, outstanding, locked string
		before, after                              string
	)
	err := row.Scan(
		&r.ReportID, &r.HarvestID, &r.CycleNumber, &strategy, &venueCycle, &r.Timestamp,
		&profit, &loss, &payment, &outstanding, &locked, &before, &after,
		&r.EmergencyExit, pq.Array(&r.PendingTradeIDs),
	)
	if err != nil {
		return r, err
	}

	r.Strategy = common.HexToAddress(strategy)
	r.VenueCycle = uint64(venueCycle)
	r.Timestamp = r.Timestamp.UTC()
	if r.PendingTradeIDs == nil {
		r.PendingTradeIDs = []string{}
	}
	for _, f := range []struct {
		dst *math.Int
		src string
	}{
		{&r.Profit, profit}, {&r.Loss, loss}, {&r.DebtPayment, payment}, {&r.DebtOutstanding, outstanding},
		{&r.StillLocked, locked}, {&r.TotalAssetsBefore, before}, {&r.TotalAssetsAfter, after},
	} {
		v, err := parseInt(f.src)
		if err != nil {
			return r, err
		}
		*f.dst = v
	}
	return r, nil
}

func intString(v math.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func parseInt(s string) (math.Int, error) {
	v, ok := math.NewIntFromString(s)
	if !ok {
		return math.ZeroInt(), fmt.Errorf("invalid integer amount %q", s)
	}
	return v, nil
}

func strategyFilter(strategy common.Address) string {
	if strategy == (common.Address{}) {
		return ""
	}
	return strategy.Hex()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}
