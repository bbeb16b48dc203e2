/*

This file contains the records a harvest produces and the snapshot used by the dashboard and metrics.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// HarvestReport is the outcome of one harvest call.
type HarvestReport struct {
	ReportID          int64          `json:"report_id,omitempty"` // Assigned by the store
	HarvestID         string         `json:"harvest_id"`
	CycleNumber       int            `json:"cycle_number"` // Keeper cycle that produced the report, 0 when called directly
	Strategy          common.Address `json:"strategy"`
	VenueCycle        uint64         `json:"venue_cycle"`
	Timestamp         time.Time      `json:"timestamp"`
	Profit            math.Int       `json:"profit"`
	Loss              math.Int       `json:"loss"`
	DebtPayment       math.Int       `json:"debt_payment"`
	DebtOutstanding   math.Int       `json:"debt_outstanding"` // What the vault still wants back after the report
	StillLocked       math.Int       `json:"still_locked"`     // Requested at the venue but not yet withdrawable
	TotalAssetsBefore math.Int       `json:"total_assets_before"`
	TotalAssetsAfter  math.Int       `json:"total_assets_after"`
	EmergencyExit     bool           `json:"emergency_exit"`
	PendingTradeIDs   []string       `json:"pending_trade_ids"`
}

// StrategySnapshot is a read-only view of one strategy instance.
type StrategySnapshot struct {
	Address              common.Address      `json:"address"`
	Name                 string              `json:"name"`
	IsClone              bool                `json:"is_clone"`
	Initialized          bool                `json:"initialized"`
	EmergencyExit        bool                `json:"emergency_exit"`
	Vault                common.Address      `json:"vault"`
	TradeFactory         common.Address      `json:"trade_factory"`
	Idle                 math.Int            `json:"idle"`
	Staked               math.Int            `json:"staked"`
	EstimatedTotalAssets math.Int            `json:"estimated_total_assets"`
	PendingWithdrawal    WithdrawalRequest   `json:"pending_withdrawal"`
	CurrentCycle         uint64              `json:"current_cycle"`
	RewardBalances       map[string]math.Int `json:"reward_balances"`
	LastReport           time.Time           `json:"last_report"`
}
