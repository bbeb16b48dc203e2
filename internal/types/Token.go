/*

This is a custom type for tokens which contains all the state needed to account balances in base units.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

type Token struct {
	Address  common.Address `json:"address"`  // e.g., 0xC02a...6Cc2 (wETH)
	Symbol   string         `json:"symbol"`   // e.g., "weth"
	Decimals int            `json:"decimals"` // e.g., 18 = 1 Token is 10^18 base units
}

// IsZero reports whether the token has no address configured.
func (t Token) IsZero() bool {
	return t.Address == (common.Address{})
}
