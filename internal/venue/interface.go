package venue

import (
	"context"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/types"
)

// Adapter defines what a strategy needs from a staking venue with a cycle-based withdrawal timelock.
// Principal goes in through Deposit, comes out only through RequestWithdrawal followed by Withdraw
// once the request is eligible.
type Adapter interface {
	// Address is the venue's address. Staked positions are accounted as a token at this address.
	Address() common.Address

	// Underlying returns the principal token the venue accepts.
	Underlying() common.Address

	// Deposit pulls amount of the underlying from actor (which must have approved the venue) and
	// credits the same amount of staked position.
	Deposit(ctx context.Context, actor common.Address, amount math.Int) error

	// RequestWithdrawal replaces the actor's single withdrawal request with one for amount.
	RequestWithdrawal(ctx context.Context, actor common.Address, amount math.Int) error

	// Withdraw finalizes up to the requested amount of an eligible request, crediting the
	// underlying straight to actor.
	Withdraw(ctx context.Context, actor common.Address, amount math.Int) error

	// RequestedWithdrawals returns the actor's pending request (zero amount when none).
	RequestedWithdrawals(ctx context.Context, actor common.Address) (types.WithdrawalRequest, error)

	// BalanceOf returns the actor's staked position, including any part already requested.
	BalanceOf(ctx context.Context, actor common.Address) (math.Int, error)

	// TransferPosition moves a staked position between actors. A pending request of from is capped to
	// what from still holds.
	TransferPosition(ctx context.Context, from, to common.Address, amount math.Int) error

	CurrentCycleIndex(ctx context.Context) (uint64, error)
	CycleDuration(ctx context.Context) (uint64, error)

	// Claim pays out every reward accrued to actor and returns what was paid per reward token.
	Claim(ctx context.Context, actor common.Address) (map[common.Address]math.Int, error)
}
