package tradefactory

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/ledger"
)

// FixedRateSwapper converts at a constant rate of tokenOut base units per tokenIn base unit. The input is
// burned and the output minted, standing in for a DEX route.
type FixedRateSwapper struct {
	Ledger *ledger.Ledger
	Rate   math.LegacyDec
}

func (s FixedRateSwapper) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn math.Int, from, recipient common.Address) (math.Int, error) {
	if s.Rate.IsNil() || s.Rate.IsNegative() {
		return math.ZeroInt(), fmt.Errorf("invalid swap rate %v", s.Rate)
	}
	out := s.Rate.MulInt(amountIn).TruncateInt()
	if err := s.Ledger.Burn(tokenIn, from, amountIn); err != nil {
		return math.ZeroInt(), err
	}
	if err := s.Ledger.Mint(tokenOut, recipient, out); err != nil {
		return math.ZeroInt(), err
	}
	return out, nil
}
