/*

This file contains the instance factory. It owns the arena of every instance it produced together with the
flags an instance cannot be trusted to hold about itself: whether it is a clone and whether it has been
initialized.

*/

package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/types"
)

type record struct {
	strategy    *Strategy
	isClone     bool
	initialized bool
	source      common.Address
}

// Factory deploys the template instance and clones of it. Every instance shares the factory's Template.
type Factory struct {
	mu       sync.Mutex
	address  common.Address
	nonce    uint64
	template *Template
	records  map[common.Address]*record
	order    []common.Address
	events   EventSink
	logger   zerolog.Logger
}

func NewFactory(address common.Address, template Template, events EventSink) (*Factory, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: factory address is required", ErrInvalidTemplate)
	}
	if err := template.validate(); err != nil {
		return nil, err
	}
	if events == nil {
		events = discardSink{}
	}
	return &Factory{
		address:  address,
		template: &template,
		records:  make(map[common.Address]*record),
		events:   events,
		logger:   logger.GetForComponent("strategy_factory"),
	}, nil
}

func (f *Factory) Address() common.Address { return f.address }

func (f *Factory) nextAddressLocked() common.Address {
	addr := crypto.CreateAddress(f.address, f.nonce)
	f.nonce++
	return addr
}

func (f *Factory) allocateLocked(isClone bool, source common.Address) *record {
	addr := f.nextAddressLocked()
	rec := &record{
		strategy: newStrategy(addr, f.template, f.events),
		isClone:  isClone,
		source:   source,
	}
	f.records[addr] = rec
	f.order = append(f.order, addr)
	return rec
}

func (f *Factory) initializeLocked(ctx context.Context, rec *record, p InitParams) error {
	if rec.initialized {
		return ErrAlreadyInitialized
	}
	if err := rec.strategy.bind(ctx, p); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", rec.strategy.Address().Hex(), err)
	}
	rec.initialized = true
	return nil
}

// Deploy creates and initializes a template instance, the only kind that can be cloned.
func (f *Factory) Deploy(ctx context.Context, p InitParams) (*Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.allocateLocked(false, common.Address{})
	if err := f.initializeLocked(ctx, rec, p); err != nil {
		f.dropLocked(rec.strategy.Address())
		return nil, err
	}
	f.logger.Info().Str("strategy", rec.strategy.Address().Hex()).Msg("Strategy deployed")
	return rec.strategy, nil
}

// Allocate reserves an uninitialized clone. Every mutating call on it fails with ErrNotInitialized until
// Initialize succeeds.
func (f *Factory) Allocate() *Strategy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocateLocked(true, common.Address{}).strategy
}

// Initialize binds an allocated instance. It succeeds exactly once per instance.
func (f *Factory) Initialize(ctx context.Context, addr common.Address, p InitParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, addr.Hex())
	}
	return f.initializeLocked(ctx, rec, p)
}

// Clone allocates and initializes a copy of source. Clones cannot be cloned themselves.
func (f *Factory) Clone(ctx context.Context, source common.Address, p InitParams) (*Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	src, ok := f.records[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, source.Hex())
	}
	if src.isClone {
		return nil, ErrCloneOfClone
	}

	rec := f.allocateLocked(true, source)
	if err := f.initializeLocked(ctx, rec, p); err != nil {
		f.dropLocked(rec.strategy.Address())
		return nil, err
	}

	clone := rec.strategy.Address()
	f.events.Emit(types.ClonedEvent{Source: source, Clone: clone})
	f.logger.Info().Str("source", source.Hex()).Str("clone", clone.Hex()).Msg("Strategy cloned")
	return rec.strategy, nil
}

// dropLocked forgets an instance whose initialization failed. Its address is not reused.
func (f *Factory) dropLocked(addr common.Address) {
	delete(f.records, addr)
	for i, a := range f.order {
		if a == addr {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *Factory) Get(addr common.Address) (*Strategy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[addr]
	if !ok {
		return nil, false
	}
	return rec.strategy, true
}

// Instances returns every instance in creation order.
func (f *Factory) Instances() []*Strategy {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Strategy, 0, len(f.order))
	for _, addr := range f.order {
		out = append(out, f.records[addr].strategy)
	}
	return out
}

func (f *Factory) IsClone(addr common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[addr]
	return ok && rec.isClone
}

func (f *Factory) IsInitialized(addr common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[addr]
	return ok && rec.initialized
}

// Snapshot returns the instance's snapshot with the arena flags filled in.
func (f *Factory) Snapshot(ctx context.Context, addr common.Address) (types.StrategySnapshot, error) {
	f.mu.Lock()
	rec, ok := f.records[addr]
	var isClone, initialized bool
	if ok {
		isClone, initialized = rec.isClone, rec.initialized
	}
	f.mu.Unlock()
	if !ok {
		return types.StrategySnapshot{}, fmt.Errorf("%w: %s", ErrUnknownInstance, addr.Hex())
	}

	snap, err := rec.strategy.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	snap.IsClone = isClone
	snap.Initialized = initialized
	return snap, nil
}
