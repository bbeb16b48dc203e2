package tradefactory

import (
	"context"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/types"
)

// Adapter is the strategy-facing side of an asynchronous trade facility. Trades are registered by a
// strategy and executed later by an operator; the strategy only ever sees the resulting balance change.
type Adapter interface {
	Address() common.Address

	// Create registers a conversion of amountIn of tokenIn into tokenOut on behalf of strategy.
	// The strategy must hold the strategy role and must have approved the facility for tokenIn.
	Create(ctx context.Context, strategy, tokenIn, tokenOut common.Address, amountIn math.Int) (types.TradeID, error)

	// PendingTradeIDs lists the strategy's trades that have not executed yet, oldest first.
	PendingTradeIDs(ctx context.Context, strategy common.Address) ([]types.TradeID, error)

	PendingTrade(ctx context.Context, id types.TradeID) (types.PendingTrade, error)

	// CancelPending drops every pending trade of strategy and returns how many were dropped.
	CancelPending(ctx context.Context, strategy common.Address) (int, error)

	// CancelPendingToken drops the strategy's pending trades selling tokenIn.
	CancelPendingToken(ctx context.Context, strategy, tokenIn common.Address) (int, error)
}

// Swapper turns amountIn of tokenIn held by from into tokenOut delivered to recipient.
type Swapper interface {
	Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn math.Int, from, recipient common.Address) (math.Int, error)
}
