package venue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/logger"
)

var ErrNotRolloverRole = errors.New("caller does not hold the rollover role")

// Manager owns the venue cycle clock. Cycles only advance when the rollover role calls CompleteRollover.
type Manager struct {
	mu             sync.RWMutex
	rolloverRole   common.Address
	cycleIndex     uint64
	cycleDuration  uint64
	cycleStartedAt time.Time
	now            func() time.Time
	logger         zerolog.Logger
}

// NewManager starts the clock at cycle 0. cycleDuration is informational (seconds).
func NewManager(rolloverRole common.Address, cycleDuration uint64) *Manager {
	return &Manager{
		rolloverRole:   rolloverRole,
		cycleDuration:  cycleDuration,
		cycleStartedAt: time.Now(),
		now:            time.Now,
		logger:         logger.GetForComponent("venue_manager"),
	}
}

func (m *Manager) RolloverRole() common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rolloverRole
}

func (m *Manager) CurrentCycleIndex() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycleIndex
}

func (m *Manager) CycleDuration() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycleDuration
}

func (m *Manager) CycleStartedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycleStartedAt
}

// CompleteRollover closes the current cycle and returns the new index.
func (m *Manager) CompleteRollover(caller common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.rolloverRole {
		return 0, fmt.Errorf("%w: %s", ErrNotRolloverRole, caller.Hex())
	}
	m.cycleIndex++
	m.cycleStartedAt = m.now()

	m.logger.Info().Uint64("cycle", m.cycleIndex).Msg("Cycle rollover completed")
	return m.cycleIndex, nil
}
