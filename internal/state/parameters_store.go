// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yieldkeep/tokestrat/internal/types"
)

// SaveStrategyParameters saves a new version of strategy parameters, optionally making it the active one.
func SaveStrategyParameters(ctx context.Context, params types.StrategyParameters, configName string, version int, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE strategy_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		if _, err = tx.ExecContext(ctx, stmtDeactivate, configName); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
		INSERT INTO strategy_parameters (
			version, config_name, is_active, activated_at, created_at,
			min_report_delay_seconds, max_report_delay_seconds, profit_factor, debt_threshold
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING params_id;`

	currentTime := time.Now()
	err = tx.QueryRowContext(ctx, stmt,
		version, configName, makeActive, currentTime, currentTime,
		int64(params.MinReportDelay/time.Second), int64(params.MaxReportDelay/time.Second),
		params.ProfitFactor, intString(params.DebtThreshold),
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert strategy parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved strategy parameters")
	return paramsID, nil
}

// LoadActiveStrategyParameters loads the active parameters of configName. Returns ErrNotFound when none are active.
func LoadActiveStrategyParameters(ctx context.Context, configName string) (*types.StrategyParameters, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	query := `
		SELECT min_report_delay_seconds, max_report_delay_seconds, profit_factor, debt_threshold::TEXT
		FROM strategy_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		minDelay, maxDelay int64
		threshold          string
		p                  types.StrategyParameters
	)
	err := DB.QueryRowContext(ctx, query, configName).Scan(&minDelay, &maxDelay, &p.ProfitFactor, &threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active strategy parameters for config '%s'", ErrNotFound, configName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan active strategy parameters for config '%s': %w", configName, err)
	}

	p.MinReportDelay = time.Duration(minDelay) * time.Second
	p.MaxReportDelay = time.Duration(maxDelay) * time.Second
	if p.DebtThreshold, err = parseInt(threshold); err != nil {
		return nil, err
	}

	log.Info().Str("config", configName).Msg("Loaded active strategy parameters")
	return &p, nil
}
