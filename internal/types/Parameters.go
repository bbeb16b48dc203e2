/*

This file contains the tunable parameters of a strategy instance and the per-strategy view the vault keeps.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
)

// StrategyParameters holds the keeper-facing knobs of a strategy instance.
type StrategyParameters struct {
	MinReportDelay time.Duration `json:"min_report_delay"` // Harvest trigger never fires sooner than this after the last report.
	MaxReportDelay time.Duration `json:"max_report_delay"` // Harvest trigger always fires once this much time passed since the last report.
	ProfitFactor   int64         `json:"profit_factor"`    // Multiple of the call cost the expected movement must exceed.
	DebtThreshold  math.Int      `json:"debt_threshold"`   // Outstanding debt or loss above this amount triggers a harvest.
}

// StrategyParams is the vault's accounting record for one strategy.
type StrategyParams struct {
	Activation        time.Time `json:"activation"`
	DebtRatio         uint64    `json:"debt_ratio"` // Basis points of vault assets this strategy may hold.
	MinDebtPerHarvest math.Int  `json:"min_debt_per_harvest"`
	MaxDebtPerHarvest math.Int  `json:"max_debt_per_harvest"`
	LastReport        time.Time `json:"last_report"`
	TotalDebt         math.Int  `json:"total_debt"`
	TotalGain         math.Int  `json:"total_gain"`
	TotalLoss         math.Int  `json:"total_loss"`
}

// IsActive reports whether the vault has activated the strategy.
func (p StrategyParams) IsActive() bool {
	return !p.Activation.IsZero()
}
