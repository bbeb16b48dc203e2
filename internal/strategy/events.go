package strategy

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/types"
)

// EventSink receives everything strategies publish.
type EventSink interface {
	Emit(event types.Event)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *Recorder) Emit(event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of what was recorded, oldest first.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// Last returns the most recent event with the given name.
func (r *Recorder) Last(name string) (types.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventName() == name {
			return r.events[i], true
		}
	}
	return nil, false
}

// LogSink writes events to a logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (l LogSink) Emit(event types.Event) {
	l.Logger.Info().Str("event", event.EventName()).Interface("data", event).Msg("Strategy event")
}

// MultiSink fans out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Emit(event types.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(event)
		}
	}
}

type discardSink struct{}

func (discardSink) Emit(types.Event) {}
