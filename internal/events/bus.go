// Package events fans committed chain events out to in-process subscribers
// and to external sinks.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// queueSize bounds the events waiting for the sink worker.
const queueSize = 4096

type sink struct {
	name string
	s    domain.EventSink
}

// Bus implements chain.Dispatcher. Dispatch never blocks: subscribers and
// the sink queue drop events when full and the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan domain.Event
	nextSub uint64
	sinks   []sink
	queue   chan domain.Event
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]chan domain.Event),
		queue:  make(chan domain.Event, queueSize),
		logger: logger.With(slog.String("component", "events")),
	}
}

// AddSink registers a sink served by Run. Sinks must be added before Run.
func (b *Bus) AddSink(name string, s domain.EventSink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, sink{name, s})
	b.mu.Unlock()
}

// Subscribe returns a channel receiving every event dispatched from now on
// and a function that cancels the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, buffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dispatch delivers the events of one committed transaction, in order.
func (b *Bus) Dispatch(_ context.Context, evts []domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range evts {
		for _, ch := range b.subs {
			select {
			case ch <- e:
			default:
				b.drop(e, "subscriber")
			}
		}
		if len(b.sinks) == 0 {
			continue
		}
		select {
		case b.queue <- e:
		default:
			b.drop(e, "sink queue")
		}
	}
}

func (b *Bus) drop(e domain.Event, where string) {
	b.dropped.Add(1)
	b.logger.Warn("events: dropping event",
		slog.String("type", string(e.Type)),
		slog.Uint64("seq", e.Seq),
		slog.String("at", where),
	)
}

// Dropped counts events lost to full buffers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Run feeds queued events to every sink until ctx is cancelled. A failing
// sink is logged and does not stop the others.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.RLock()
	sinks := append([]sink(nil), b.sinks...)
	b.mu.RUnlock()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-b.queue:
			for _, s := range sinks {
				if err := s.s.Publish(ctx, e); err != nil {
					b.logger.Error("events: sink publish failed",
						slog.String("sink", s.name),
						slog.String("type", string(e.Type)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// SinkFunc adapts a function to domain.EventSink.
type SinkFunc func(ctx context.Context, evt domain.Event) error

func (f SinkFunc) Publish(ctx context.Context, evt domain.Event) error { return f(ctx, evt) }
