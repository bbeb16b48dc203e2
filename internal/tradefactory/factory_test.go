package tradefactory

import (
	"context"
	"errors"
	"testing"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/types"
)

var (
	factoryAddr = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000f02")
	operator    = common.HexToAddress("0x0000000000000000000000000000000000000f03")
	strategy    = common.HexToAddress("0x0000000000000000000000000000000000000f04")
	toke        = common.HexToAddress("0x0000000000000000000000000000000000000f05")
	want        = common.HexToAddress("0x0000000000000000000000000000000000000f06")
)

type failingSwapper struct{}

func (failingSwapper) Swap(context.Context, common.Address, common.Address, math.Int, common.Address, common.Address) (math.Int, error) {
	return math.ZeroInt(), errors.New("no route")
}

func setup(t *testing.T) (*Factory, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	f := New(factoryAddr, owner, operator, l)
	require.NoError(t, l.Mint(toke, strategy, math.NewInt(100)))
	require.NoError(t, l.Approve(toke, strategy, factoryAddr, ledger.MaxAllowance))
	return f, l
}

func TestCreateRequiresStrategyRole(t *testing.T) {
	f, _ := setup(t)
	ctx := context.Background()

	_, err := f.Create(ctx, strategy, toke, want, math.NewInt(10))
	assert.ErrorIs(t, err, ErrNotStrategy)

	assert.ErrorIs(t, f.GrantRole(strategy, strategy), ErrNotOwner)
	require.NoError(t, f.GrantRole(owner, strategy))
	assert.True(t, f.HasRole(strategy))

	id, err := f.Create(ctx, strategy, toke, want, math.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, types.TradeID(1), id)

	_, err = f.Create(ctx, strategy, toke, toke, math.NewInt(10))
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = f.Create(ctx, strategy, toke, want, math.ZeroInt())
	assert.ErrorIs(t, err, ErrInvalidTrade)

	require.NoError(t, f.RevokeRole(owner, strategy))
	_, err = f.Create(ctx, strategy, toke, want, math.NewInt(10))
	assert.ErrorIs(t, err, ErrNotStrategy)
}

func TestExecuteSettlesIntoStrategy(t *testing.T) {
	f, l := setup(t)
	ctx := context.Background()
	require.NoError(t, f.GrantRole(owner, strategy))

	id, err := f.Create(ctx, strategy, toke, want, math.NewInt(100))
	require.NoError(t, err)

	ids, err := f.PendingTradeIDs(ctx, strategy)
	require.NoError(t, err)
	assert.Equal(t, []types.TradeID{id}, ids)

	swapper := FixedRateSwapper{Ledger: l, Rate: math.LegacyMustNewDecFromStr("0.5")}

	_, err = f.Execute(ctx, strategy, id, swapper)
	assert.ErrorIs(t, err, ErrNotOperator)

	res, err := f.Execute(ctx, operator, id, swapper)
	require.NoError(t, err)
	assert.Equal(t, "50", res.AmountOut.String())
	assert.Equal(t, "50", l.BalanceOf(want, strategy).String())
	assert.True(t, l.BalanceOf(toke, strategy).IsZero())

	ids, _ = f.PendingTradeIDs(ctx, strategy)
	assert.Empty(t, ids)
	_, err = f.PendingTrade(ctx, id)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestExecuteWithoutAllowanceKeepsTradePending(t *testing.T) {
	f, l := setup(t)
	ctx := context.Background()
	require.NoError(t, f.GrantRole(owner, strategy))
	id, err := f.Create(ctx, strategy, toke, want, math.NewInt(100))
	require.NoError(t, err)

	require.NoError(t, l.Approve(toke, strategy, factoryAddr, math.ZeroInt()))
	_, err = f.Execute(ctx, operator, id, FixedRateSwapper{Ledger: l, Rate: math.LegacyOneDec()})
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	trade, err := f.PendingTrade(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "100", trade.AmountIn.String())
}

func TestFailedSwapRefundsInput(t *testing.T) {
	f, l := setup(t)
	ctx := context.Background()
	require.NoError(t, f.GrantRole(owner, strategy))
	id, err := f.Create(ctx, strategy, toke, want, math.NewInt(60))
	require.NoError(t, err)

	_, err = f.Execute(ctx, operator, id, failingSwapper{})
	require.Error(t, err)
	assert.Equal(t, "100", l.BalanceOf(toke, strategy).String())
	_, err = f.PendingTrade(ctx, id)
	assert.NoError(t, err)
}

func TestCancelPendingAndExecuteAll(t *testing.T) {
	f, l := setup(t)
	ctx := context.Background()
	require.NoError(t, f.GrantRole(owner, strategy))

	for i := 0; i < 3; i++ {
		_, err := f.Create(ctx, strategy, toke, want, math.NewInt(10))
		require.NoError(t, err)
	}
	assert.Len(t, f.AllPendingTradeIDs(), 3)

	results, err := f.ExecuteAll(ctx, operator, FixedRateSwapper{Ledger: l, Rate: math.LegacyNewDec(2)})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "60", l.BalanceOf(want, strategy).String())

	_, err = f.Create(ctx, strategy, toke, want, math.NewInt(10))
	require.NoError(t, err)
	n, err := f.CancelPending(ctx, strategy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, f.AllPendingTradeIDs())
}

func TestCancelPendingTokenKeepsOtherTokens(t *testing.T) {
	f, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, f.GrantRole(owner, strategy))

	other := common.HexToAddress("0x0000000000000000000000000000000000000f07")
	_, err := f.Create(ctx, strategy, toke, want, math.NewInt(10))
	require.NoError(t, err)
	kept, err := f.Create(ctx, strategy, other, want, math.NewInt(5))
	require.NoError(t, err)

	n, err := f.CancelPendingToken(ctx, strategy, toke)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := f.PendingTradeIDs(ctx, strategy)
	require.NoError(t, err)
	assert.Equal(t, []types.TradeID{kept}, ids)

	n, err = f.CancelPendingToken(ctx, operator, other)
	require.NoError(t, err)
	assert.Zero(t, n)
}
