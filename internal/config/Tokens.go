/*

This file contains the tokens and venue addresses the strategy knows by symbol.

If WANT_TOKEN or REWARD_TOKEN hold a symbol found here, the address and decimals come from this table.
Anything else must be given as a 0x address together with its decimals.

*/

package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldkeep/tokestrat/internal/types"
)

var (
	KnownTokens = map[string]types.Token{
		"WETH":  {Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18},
		"TOKE":  {Address: common.HexToAddress("0x2e9d63788249371f1DFC918a52f8d799F4a38C94"), Symbol: "TOKE", Decimals: 18},
		"TWETH": {Address: common.HexToAddress("0xD3D13a578a53685B4ac36A1Bab31912D2B2A2F36"), Symbol: "tWETH", Decimals: 18},
		"USDC":  {Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6},
	}

	// DefaultVenueManager is the address cycle rollovers are attributed to when none is configured.
	DefaultVenueManager = common.HexToAddress("0xA86e412109f77c45a3BC1c5870b880492Fb86A14")
)

// ResolveToken turns a symbol or a 0x address into a token. decimals is only used for addresses.
func ResolveToken(value string, decimals int) (types.Token, error) {
	value = strings.TrimSpace(value)
	if token, ok := KnownTokens[strings.ToUpper(value)]; ok {
		return token, nil
	}
	if !common.IsHexAddress(value) {
		return types.Token{}, fmt.Errorf("token %q is neither a known symbol nor an address", value)
	}
	if decimals < 0 || decimals > 18 {
		return types.Token{}, fmt.Errorf("token %q needs decimals between 0 and 18, got %d", value, decimals)
	}
	addr := common.HexToAddress(value)
	return types.Token{Address: addr, Symbol: addr.Hex()[:8], Decimals: decimals}, nil
}
