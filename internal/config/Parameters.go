/*

This file contains the default parameters for strategy instances.

They are the keeper-facing knobs of the harvest and tend triggers. A deployment can persist a different set
with state.SaveStrategyParameters and activate it, which takes precedence over these defaults.

*/

package config

import (
	"time"

	"cosmossdk.io/math"

	"github.com/yieldkeep/tokestrat/internal/types"
)

const (
	DEFAULT_PARAMETERS_CONFIG_NAME    = "default_strategy"
	DEFAULT_PARAMETERS_CONFIG_VERSION = 1
)

// DefaultStrategyParameters returns the baseline trigger parameters.
func DefaultStrategyParameters() types.StrategyParameters {
	return types.StrategyParameters{
		MinReportDelay: 0, // Harvest may run as soon as there is work.

		MaxReportDelay: 24 * time.Hour, // Report at least daily so the vault sees venue cycles promptly.
		// One venue cycle is a day, so a daily report never lets a finalized withdrawal sit idle for a full cycle.

		ProfitFactor: 100, // Expected movement must exceed 100x the call cost.

		DebtThreshold: math.ZeroInt(), // Any outstanding debt or loss is worth a harvest.
	}
}
