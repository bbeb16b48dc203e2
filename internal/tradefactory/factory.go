/*

This file contains the in-process trade facility. Ownership administers which strategies may register trades,
the operator executes queued trades through a Swapper.

*/

package tradefactory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/types"
)

var (
	ErrNotOwner      = errors.New("caller is not the trade factory owner")
	ErrNotOperator   = errors.New("caller is not the trade factory operator")
	ErrNotStrategy   = errors.New("caller does not hold the strategy role")
	ErrTradeNotFound = errors.New("trade not found")
	ErrInvalidTrade  = errors.New("invalid trade")
)

// ExecutionResult describes one executed trade.
type ExecutionResult struct {
	Trade     types.PendingTrade
	AmountOut math.Int
}

// Factory implements Adapter.
type Factory struct {
	mu         sync.Mutex
	address    common.Address
	owner      common.Address
	operator   common.Address
	ledger     *ledger.Ledger
	strategies map[common.Address]bool
	pending    map[types.TradeID]types.PendingTrade
	nextID     types.TradeID
	now        func() time.Time
	logger     zerolog.Logger
}

var _ Adapter = (*Factory)(nil)

func New(address, owner, operator common.Address, l *ledger.Ledger) *Factory {
	return &Factory{
		address:    address,
		owner:      owner,
		operator:   operator,
		ledger:     l,
		strategies: make(map[common.Address]bool),
		pending:    make(map[types.TradeID]types.PendingTrade),
		nextID:     1,
		now:        time.Now,
		logger:     logger.GetForComponent("trade_factory"),
	}
}

func (f *Factory) Address() common.Address { return f.address }

// GrantRole lets strategy register trades.
func (f *Factory) GrantRole(caller, strategy common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	f.strategies[strategy] = true
	f.logger.Info().Str("strategy", strategy.Hex()).Msg("Strategy role granted")
	return nil
}

func (f *Factory) RevokeRole(caller, strategy common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	delete(f.strategies, strategy)
	f.logger.Info().Str("strategy", strategy.Hex()).Msg("Strategy role revoked")
	return nil
}

func (f *Factory) HasRole(strategy common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.strategies[strategy]
}

func (f *Factory) Create(ctx context.Context, strategy, tokenIn, tokenOut common.Address, amountIn math.Int) (types.TradeID, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return 0, fmt.Errorf("%w: amount %v", ErrInvalidTrade, amountIn)
	}
	if tokenIn == tokenOut {
		return 0, fmt.Errorf("%w: token in and out are both %s", ErrInvalidTrade, tokenIn.Hex())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.strategies[strategy] {
		return 0, fmt.Errorf("%w: %s", ErrNotStrategy, strategy.Hex())
	}

	id := f.nextID
	f.nextID++
	f.pending[id] = types.PendingTrade{
		ID:        id,
		Strategy:  strategy,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		CreatedAt: f.now(),
	}

	f.logger.Debug().
		Str("tradeID", id.String()).
		Str("strategy", strategy.Hex()).
		Str("tokenIn", tokenIn.Hex()).
		Str("tokenOut", tokenOut.Hex()).
		Str("amountIn", amountIn.String()).
		Msg("Trade registered")
	return id, nil
}

func (f *Factory) PendingTradeIDs(ctx context.Context, strategy common.Address) ([]types.TradeID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingIDsLocked(func(t types.PendingTrade) bool { return t.Strategy == strategy }), nil
}

// AllPendingTradeIDs lists every pending trade, oldest first.
func (f *Factory) AllPendingTradeIDs() []types.TradeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingIDsLocked(func(types.PendingTrade) bool { return true })
}

func (f *Factory) pendingIDsLocked(keep func(types.PendingTrade) bool) []types.TradeID {
	ids := make([]types.TradeID, 0, len(f.pending))
	for id, t := range f.pending {
		if keep(t) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *Factory) PendingTrade(ctx context.Context, id types.TradeID) (types.PendingTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.pending[id]
	if !ok {
		return types.PendingTrade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	return t, nil
}

func (f *Factory) CancelPending(ctx context.Context, strategy common.Address) (int, error) {
	return f.cancel(strategy, func(types.PendingTrade) bool { return true }), nil
}

func (f *Factory) CancelPendingToken(ctx context.Context, strategy, tokenIn common.Address) (int, error) {
	return f.cancel(strategy, func(t types.PendingTrade) bool { return t.TokenIn == tokenIn }), nil
}

func (f *Factory) cancel(strategy common.Address, match func(types.PendingTrade) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for id, t := range f.pending {
		if t.Strategy == strategy && match(t) {
			delete(f.pending, id)
			n++
		}
	}
	if n > 0 {
		f.logger.Info().Str("strategy", strategy.Hex()).Int("cancelled", n).Msg("Pending trades cancelled")
	}
	return n
}

// Execute settles one pending trade. The tokens are pulled from the strategy with the allowance it
// granted, swapped and the proceeds delivered back to the strategy. A failed execution leaves the
// trade pending.
func (f *Factory) Execute(ctx context.Context, caller common.Address, id types.TradeID, swapper Swapper) (ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.operator {
		return ExecutionResult{}, fmt.Errorf("%w: %s", ErrNotOperator, caller.Hex())
	}
	t, ok := f.pending[id]
	if !ok {
		return ExecutionResult{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}

	if err := f.ledger.TransferFrom(t.TokenIn, f.address, t.Strategy, f.address, t.AmountIn); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to pull %s for trade %s: %w", t.TokenIn.Hex(), id, err)
	}
	out, err := swapper.Swap(ctx, t.TokenIn, t.TokenOut, t.AmountIn, f.address, t.Strategy)
	if err != nil {
		// hand the input back so the trade can be retried
		if refundErr := f.ledger.Transfer(t.TokenIn, f.address, t.Strategy, t.AmountIn); refundErr != nil {
			return ExecutionResult{}, errors.Join(fmt.Errorf("swap failed for trade %s: %w", id, err), refundErr)
		}
		return ExecutionResult{}, fmt.Errorf("swap failed for trade %s: %w", id, err)
	}
	delete(f.pending, id)

	f.logger.Info().
		Str("tradeID", id.String()).
		Str("strategy", t.Strategy.Hex()).
		Str("amountIn", t.AmountIn.String()).
		Str("amountOut", out.String()).
		Msg("Trade executed")
	return ExecutionResult{Trade: t, AmountOut: out}, nil
}

// ExecuteAll settles every pending trade it can, oldest first.
func (f *Factory) ExecuteAll(ctx context.Context, caller common.Address, swapper Swapper) ([]ExecutionResult, error) {
	var (
		results []ExecutionResult
		errs    []error
	)
	for _, id := range f.AllPendingTradeIDs() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := f.Execute(ctx, caller, id, swapper)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
