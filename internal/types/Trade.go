package types

import (
	"strconv"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// TradeID is the opaque identifier the trade facility hands back for a registered trade.
type TradeID uint64

func (id TradeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// PendingTrade is the facility's record of a queued conversion. Strategies only read it.
type PendingTrade struct {
	ID        TradeID        `json:"id"`
	Strategy  common.Address `json:"strategy"`
	TokenIn   common.Address `json:"token_in"`
	TokenOut  common.Address `json:"token_out"`
	AmountIn  math.Int       `json:"amount_in"`
	CreatedAt time.Time      `json:"created_at"`
}
