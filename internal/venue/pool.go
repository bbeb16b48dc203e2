/*

This file contains the in-process staking pool. Deposits are credited 1:1 as a position token whose address
is the pool's own address, withdrawals go through a per-actor request that unlocks LockCycles after the
cycle it was made in.

*/

package venue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/ledger"
	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/types"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientStake = errors.New("insufficient staked balance")
	ErrNotEligible       = errors.New("withdrawal request is not eligible yet")
	ErrExceedsRequest    = errors.New("amount exceeds requested withdrawal")
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Address     common.Address
	Underlying  common.Address
	Ledger      *ledger.Ledger
	Manager     *Manager
	ClockPolicy types.ClockPolicy
	LockCycles  uint64 // Cycles a fresh request waits, defaults to 1
}

// Pool implements Adapter.
type Pool struct {
	mu          sync.Mutex
	address     common.Address
	underlying  common.Address
	ledger      *ledger.Ledger
	manager     *Manager
	clockPolicy types.ClockPolicy
	lockCycles  uint64
	requests    map[common.Address]types.WithdrawalRequest
	accrued     map[common.Address]map[common.Address]math.Int // actor -> reward token -> amount
	logger      zerolog.Logger
}

var _ Adapter = (*Pool)(nil)

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if cfg.Address == (common.Address{}) || cfg.Underlying == (common.Address{}) {
		return nil, fmt.Errorf("pool and underlying addresses are required")
	}
	policy := cfg.ClockPolicy
	if policy == "" {
		policy = types.ClockAnchored
	}
	lock := cfg.LockCycles
	if lock == 0 {
		lock = 1
	}
	return &Pool{
		address:     cfg.Address,
		underlying:  cfg.Underlying,
		ledger:      cfg.Ledger,
		manager:     cfg.Manager,
		clockPolicy: policy,
		lockCycles:  lock,
		requests:    make(map[common.Address]types.WithdrawalRequest),
		accrued:     make(map[common.Address]map[common.Address]math.Int),
		logger:      logger.GetForComponent("venue"),
	}, nil
}

func (p *Pool) Address() common.Address    { return p.address }
func (p *Pool) Underlying() common.Address { return p.underlying }
func (p *Pool) Manager() *Manager          { return p.manager }

func (p *Pool) ClockPolicy() types.ClockPolicy { return p.clockPolicy }

func (p *Pool) Deposit(ctx context.Context, actor common.Address, amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: deposit %v", ErrInvalidAmount, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ledger.TransferFrom(p.underlying, p.address, actor, p.address, amount); err != nil {
		return fmt.Errorf("failed to pull deposit from %s: %w", actor.Hex(), err)
	}
	if err := p.ledger.Mint(p.address, actor, amount); err != nil {
		return fmt.Errorf("failed to credit position: %w", err)
	}

	p.logger.Debug().Str("actor", actor.Hex()).Str("amount", amount.String()).Msg("Deposit")
	return nil
}

func (p *Pool) RequestWithdrawal(ctx context.Context, actor common.Address, amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: request %v", ErrInvalidAmount, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	staked := p.ledger.BalanceOf(p.address, actor)
	if amount.GT(staked) {
		return fmt.Errorf("%w: request %s, staked %s", ErrInsufficientStake, amount, staked)
	}

	current := p.manager.CurrentCycleIndex()
	eligibleAt := current + p.lockCycles
	if prev, ok := p.requests[actor]; ok && prev.IsOpen() && !prev.EligibleAt(current) && p.clockPolicy == types.ClockAnchored {
		eligibleAt = prev.EligibleAtCycle
	}

	p.requests[actor] = types.WithdrawalRequest{
		Amount:          amount,
		EligibleAtCycle: eligibleAt,
		CycleDuration:   p.manager.CycleDuration(),
	}

	p.logger.Debug().
		Str("actor", actor.Hex()).
		Str("amount", amount.String()).
		Uint64("currentCycle", current).
		Uint64("eligibleAtCycle", eligibleAt).
		Str("clockPolicy", string(p.clockPolicy)).
		Msg("Withdrawal requested")
	return nil
}

func (p *Pool) Withdraw(ctx context.Context, actor common.Address, amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: withdraw %v", ErrInvalidAmount, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	req := p.requests[actor]
	current := p.manager.CurrentCycleIndex()
	if !req.EligibleAt(current) {
		return fmt.Errorf("%w: eligible at cycle %d, current %d", ErrNotEligible, req.EligibleAtCycle, current)
	}
	if amount.GT(req.Amount) {
		return fmt.Errorf("%w: withdraw %s, requested %s", ErrExceedsRequest, amount, req.Amount)
	}

	if err := p.ledger.Burn(p.address, actor, amount); err != nil {
		return fmt.Errorf("failed to burn position: %w", err)
	}
	if err := p.ledger.Transfer(p.underlying, p.address, actor, amount); err != nil {
		return fmt.Errorf("failed to pay out withdrawal: %w", err)
	}

	req.Amount = req.Amount.Sub(amount)
	if req.Amount.IsZero() {
		delete(p.requests, actor)
	} else {
		p.requests[actor] = req
	}

	p.logger.Debug().Str("actor", actor.Hex()).Str("amount", amount.String()).Uint64("cycle", current).Msg("Withdrawal finalized")
	return nil
}

func (p *Pool) RequestedWithdrawals(ctx context.Context, actor common.Address) (types.WithdrawalRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req, ok := p.requests[actor]; ok {
		return req, nil
	}
	return types.WithdrawalRequest{Amount: math.ZeroInt(), CycleDuration: p.manager.CycleDuration()}, nil
}

func (p *Pool) BalanceOf(ctx context.Context, actor common.Address) (math.Int, error) {
	return p.ledger.BalanceOf(p.address, actor), nil
}

func (p *Pool) TransferPosition(ctx context.Context, from, to common.Address, amount math.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ledger.Transfer(p.address, from, to, amount); err != nil {
		return fmt.Errorf("failed to transfer position: %w", err)
	}
	if req, ok := p.requests[from]; ok {
		left := p.ledger.BalanceOf(p.address, from)
		if left.IsZero() {
			delete(p.requests, from)
		} else if req.Amount.GT(left) {
			req.Amount = left
			p.requests[from] = req
		}
	}
	return nil
}

func (p *Pool) CurrentCycleIndex(ctx context.Context) (uint64, error) {
	return p.manager.CurrentCycleIndex(), nil
}

func (p *Pool) CycleDuration(ctx context.Context) (uint64, error) {
	return p.manager.CycleDuration(), nil
}

// AccrueRewards credits reward token to actor, payable on the next Claim. It stands in for the
// venue's off-band reward distribution.
func (p *Pool) AccrueRewards(actor, token common.Address, amount math.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: reward %v", ErrInvalidAmount, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	byToken, ok := p.accrued[actor]
	if !ok {
		byToken = make(map[common.Address]math.Int)
		p.accrued[actor] = byToken
	}
	prev, ok := byToken[token]
	if !ok {
		prev = math.ZeroInt()
	}
	byToken[token] = prev.Add(amount)
	return nil
}

// AccrueRewardsProRata splits amount of token across every position holder by stake.
func (p *Pool) AccrueRewardsProRata(token common.Address, holders []common.Address, amount math.Int) error {
	total := math.ZeroInt()
	stakes := make([]math.Int, len(holders))
	for i, h := range holders {
		stakes[i] = p.ledger.BalanceOf(p.address, h)
		total = total.Add(stakes[i])
	}
	if total.IsZero() {
		return nil
	}
	for i, h := range holders {
		share := amount.Mul(stakes[i]).Quo(total)
		if share.IsZero() {
			continue
		}
		if err := p.AccrueRewards(h, token, share); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) Claim(ctx context.Context, actor common.Address) (map[common.Address]math.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byToken := p.accrued[actor]
	tokens := make([]common.Address, 0, len(byToken))
	for token := range byToken {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return bytes.Compare(tokens[i][:], tokens[j][:]) < 0 })

	paid := make(map[common.Address]math.Int, len(tokens))
	var errs []error
	for _, token := range tokens {
		amount := byToken[token]
		if amount.IsZero() {
			continue
		}
		if err := p.ledger.Mint(token, actor, amount); err != nil {
			errs = append(errs, fmt.Errorf("reward %s: %w", token.Hex(), err))
			continue
		}
		paid[token] = amount
		delete(byToken, token)
	}
	if len(byToken) == 0 {
		delete(p.accrued, actor)
	}

	if len(paid) > 0 {
		p.logger.Debug().Str("actor", actor.Hex()).Int("tokens", len(paid)).Msg("Rewards claimed")
	}
	return paid, errors.Join(errs...)
}
