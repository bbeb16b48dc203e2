package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// PerformanceMetrics aggregates harvest reports.
type PerformanceMetrics struct {
	Strategy           string    `json:"strategy,omitempty"`
	TotalProfit        math.Int  `json:"total_profit"`
	TotalLoss          math.Int  `json:"total_loss"`
	TotalDebtPayment   math.Int  `json:"total_debt_payment"`
	Harvests           int       `json:"harvests"`
	ProfitableHarvests int       `json:"profitable_harvests"`
	EmergencyHarvests  int       `json:"emergency_harvests"`
	LastHarvest        time.Time `json:"last_harvest,omitempty"`
}

// NetProfit is total profit minus total loss and may be negative.
func (m PerformanceMetrics) NetProfit() math.Int {
	return m.TotalProfit.Sub(m.TotalLoss)
}

// GetPerformanceMetrics aggregates every stored report for strategy, or for all strategies when zero.
func GetPerformanceMetrics(ctx context.Context, strategy common.Address) (PerformanceMetrics, error) {
	if DB == nil {
		return PerformanceMetrics{}, ErrNotInitialized
	}

	query := `
		SELECT
			COALESCE(SUM(profit), 0)::TEXT,
			COALESCE(SUM(loss), 0)::TEXT,
			COALESCE(SUM(debt_payment), 0)::TEXT,
			COUNT(*),
			COUNT(CASE WHEN profit > 0 THEN 1 END),
			COUNT(CASE WHEN emergency_exit THEN 1 END),
			MAX(report_timestamp)
		FROM harvest_reports
		WHERE ($1::TEXT = '' OR strategy_address = $1::TEXT)
	`

	var (
		m                     PerformanceMetrics
		profit, loss, payment string
		last                  sql.NullTime
	)
	err := DB.QueryRowContext(ctx, query, strategyFilter(strategy)).Scan(
		&profit, &loss, &payment,
		&m.Harvests, &m.ProfitableHarvests, &m.EmergencyHarvests,
		&last,
	)
	if err != nil {
		return PerformanceMetrics{}, fmt.Errorf("failed to get performance metrics: %w", err)
	}

	if m.TotalProfit, err = parseInt(profit); err != nil {
		return PerformanceMetrics{}, err
	}
	if m.TotalLoss, err = parseInt(loss); err != nil {
		return PerformanceMetrics{}, err
	}
	if m.TotalDebtPayment, err = parseInt(payment); err != nil {
		return PerformanceMetrics{}, err
	}
	if last.Valid {
		m.LastHarvest = last.Time.UTC()
	}
	m.Strategy = strategyFilter(strategy)

	log.Debug().
		Str("strategy", m.Strategy).
		Str("totalProfit", m.TotalProfit.String()).
		Int("harvests", m.Harvests).
		Msg("Retrieved performance metrics")
	return m, nil
}
