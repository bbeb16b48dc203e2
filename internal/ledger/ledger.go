/*

This file contains the in-process token book shared by the vault, the strategies, the staking venue and the
trade facility. Every token is identified by its address and every balance is kept in base units.

*/

package ledger

import (
	"errors"
	"fmt"
	"sync"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/utils"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNegativeAmount        = errors.New("amount must not be negative")
)

// MaxAllowance is the infinite approval. It is never decremented by TransferFrom.
var MaxAllowance = utils.MaxUint256

type holding struct {
	token  common.Address
	holder common.Address
}

type approval struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[holding]math.Int
	allowances map[approval]math.Int
	supply     map[common.Address]math.Int
	logger     zerolog.Logger
}

func New() *Ledger {
	return &Ledger{
		balances:   make(map[holding]math.Int),
		allowances: make(map[approval]math.Int),
		supply:     make(map[common.Address]math.Int),
		logger:     logger.GetForComponent("ledger"),
	}
}

func validAmount(amount math.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: %v", ErrNegativeAmount, amount)
	}
	return nil
}

// BalanceOf returns the balance of holder in token.
func (l *Ledger) BalanceOf(token, holder common.Address) math.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(token, holder)
}

func (l *Ledger) balanceLocked(token, holder common.Address) math.Int {
	if bal, ok := l.balances[holding{token, holder}]; ok {
		return bal
	}
	return math.ZeroInt()
}

// TotalSupply returns the amount of token in existence.
func (l *Ledger) TotalSupply(token common.Address) math.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.supply[token]; ok {
		return s
	}
	return math.ZeroInt()
}

// Mint creates amount of token for to.
func (l *Ledger) Mint(token, to common.Address, amount math.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[holding{token, to}] = l.balanceLocked(token, to).Add(amount)
	s, ok := l.supply[token]
	if !ok {
		s = math.ZeroInt()
	}
	l.supply[token] = s.Add(amount)
	l.logger.Trace().Str("token", token.Hex()).Str("to", to.Hex()).Str("amount", amount.String()).Msg("Minted")
	return nil
}

// Burn destroys amount of token held by from.
func (l *Ledger) Burn(token, from common.Address, amount math.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(token, from)
	if bal.LT(amount) {
		return fmt.Errorf("%w: burn %s of %s from %s, have %s", ErrInsufficientBalance, amount, token.Hex(), from.Hex(), bal)
	}
	l.balances[holding{token, from}] = bal.Sub(amount)
	l.supply[token] = l.supply[token].Sub(amount)
	return nil
}

// Transfer moves amount of token from one holder to another.
func (l *Ledger) Transfer(token, from, to common.Address, amount math.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(token, from, to, amount)
}

func (l *Ledger) transferLocked(token, from, to common.Address, amount math.Int) error {
	bal := l.balanceLocked(token, from)
	if bal.LT(amount) {
		return fmt.Errorf("%w: transfer %s of %s from %s, have %s", ErrInsufficientBalance, amount, token.Hex(), from.Hex(), bal)
	}
	if from == to || amount.IsZero() {
		return nil
	}
	l.balances[holding{token, from}] = bal.Sub(amount)
	l.balances[holding{token, to}] = l.balanceLocked(token, to).Add(amount)
	return nil
}

// Approve sets the amount spender may move out of owner's balance. Zero revokes.
func (l *Ledger) Approve(token, owner, spender common.Address, amount math.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.IsZero() {
		delete(l.allowances, approval{token, owner, spender})
		return nil
	}
	l.allowances[approval{token, owner, spender}] = amount
	return nil
}

// Allowance returns what spender may still move out of owner's balance.
func (l *Ledger) Allowance(token, owner, spender common.Address) math.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowanceLocked(token, owner, spender)
}

func (l *Ledger) allowanceLocked(token, owner, spender common.Address) math.Int {
	if a, ok := l.allowances[approval{token, owner, spender}]; ok {
		return a
	}
	return math.ZeroInt()
}

// TransferFrom moves amount of token from owner to to on behalf of spender.
func (l *Ledger) TransferFrom(token, spender, owner, to common.Address, amount math.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowanceLocked(token, owner, spender)
	if allowed.LT(amount) {
		return fmt.Errorf("%w: %s may move %s of %s from %s, asked %s", ErrInsufficientAllowance, spender.Hex(), allowed, token.Hex(), owner.Hex(), amount)
	}
	if err := l.transferLocked(token, owner, to, amount); err != nil {
		return err
	}
	if !allowed.Equal(MaxAllowance) {
		rest := allowed.Sub(amount)
		if rest.IsZero() {
			delete(l.allowances, approval{token, owner, spender})
		} else {
			l.allowances[approval{token, owner, spender}] = rest
		}
	}
	return nil
}
