package vault

import (
	"context"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/types"
)

// MaxBPS is the debt ratio denominator.
const MaxBPS = 10_000

// VaultManager defines what a strategy needs from the vault that lends it capital.
// The vault is the authority on debt: strategies read their limits live and report results back.
type VaultManager interface {
	Address() common.Address

	// Token returns the principal token the vault accounts in.
	Token() common.Address

	Governance() common.Address
	Management() common.Address
	Guardian() common.Address
	EmergencyShutdown() bool

	// StrategyParams returns the vault's record for strategy. The record is zero for unknown strategies.
	StrategyParams(strategy common.Address) types.StrategyParams

	// DebtOutstanding is what the vault wants back from strategy right now.
	DebtOutstanding(strategy common.Address) math.Int

	// CreditAvailable is what the vault would lend strategy on its next report.
	CreditAvailable(strategy common.Address) math.Int

	// Report settles a strategy's harvest. gain and debtPayment must already be liquid in the strategy,
	// which must have approved the vault. Returns the debt still outstanding afterwards.
	Report(ctx context.Context, strategy common.Address, gain, loss, debtPayment math.Int) (math.Int, error)

	// RevokeStrategy sets the strategy's debt ratio to zero so the next harvest returns everything.
	RevokeStrategy(ctx context.Context, caller, strategy common.Address) error
}

// Strategy is the vault's view of a strategy it lends to.
type Strategy interface {
	Address() common.Address
	Want() common.Address
	VaultAddress() common.Address
	EmergencyExit() bool

	// Withdraw liquidates up to amount back to the vault and returns the realized loss.
	Withdraw(ctx context.Context, caller common.Address, amount math.Int) (math.Int, error)

	// Migrate hands every position the strategy holds over to newStrategy.
	Migrate(ctx context.Context, caller, newStrategy common.Address) error
}
