package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/events"
	"github.com/alanyoungcy/overtimeamm/internal/metrics"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

// RecorderDeps lists the outputs of committed events. Every field is
// optional.
type RecorderDeps struct {
	Events  domain.EventStore
	Tickets domain.TicketStore
	Quotes  domain.QuoteCache
	Stream  domain.EventSink
	Kafka   domain.EventSink
	Hub     domain.EventSink
	Notify  domain.EventSink
	Metrics *metrics.Metrics
}

// Recorder fans committed events out to storage, caches and transports.
type Recorder struct {
	proto  *protocol.Protocol
	deps   RecorderDeps
	logger *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(proto *protocol.Protocol, deps RecorderDeps, logger *slog.Logger) *Recorder {
	return &Recorder{
		proto:  proto,
		deps:   deps,
		logger: logger.With(slog.String("component", "recorder")),
	}
}

// Attach registers one bus sink per configured output. Call before the bus
// runs.
func (r *Recorder) Attach(bus *events.Bus) {
	add := func(name string, s domain.EventSink) {
		if r.deps.Metrics != nil {
			s = r.counted(name, s)
		}
		bus.AddSink(name, s)
	}
	if r.deps.Metrics != nil {
		bus.AddSink("metrics", r.deps.Metrics)
	}
	if r.deps.Events != nil {
		add("event_store", events.SinkFunc(r.deps.Events.Append))
	}
	if r.deps.Tickets != nil {
		add("ticket_store", events.SinkFunc(r.recordTicket))
	}
	if r.deps.Quotes != nil {
		add("quote_cache", events.SinkFunc(r.invalidateQuotes))
	}
	if r.deps.Stream != nil {
		add("redis_stream", r.deps.Stream)
	}
	if r.deps.Kafka != nil {
		add("kafka", r.deps.Kafka)
	}
	if r.deps.Hub != nil {
		add("ws", r.deps.Hub)
	}
	if r.deps.Notify != nil {
		add("notify", r.deps.Notify)
	}
}

func (r *Recorder) counted(name string, s domain.EventSink) domain.EventSink {
	return events.SinkFunc(func(ctx context.Context, evt domain.Event) error {
		err := s.Publish(ctx, evt)
		if err != nil {
			r.deps.Metrics.SinkErrors.WithLabelValues(name).Inc()
		}
		return err
	})
}

func isTicketEvent(t domain.EventType) bool {
	switch t {
	case domain.EventParlayMarketCreated, domain.EventParlayResolved,
		domain.EventParlayExercised, domain.EventParlayExpired, domain.EventParlayPaused:
		return true
	}
	return false
}

// recordTicket upserts the latest snapshot of the ticket an event names.
func (r *Recorder) recordTicket(ctx context.Context, evt domain.Event) error {
	if !isTicketEvent(evt.Type) {
		return nil
	}
	addr, ok := payloadAddress(evt, "ticket")
	if !ok {
		return nil
	}
	var snap domain.Ticket
	err := r.proto.View(ctx, func(*chain.Tx) error {
		t, err := r.proto.Parlay.Ticket(addr)
		if err != nil {
			return err
		}
		snap = t.Info()
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.deps.Tickets.Upsert(ctx, snap)
}

// invalidateQuotes drops cached quotes of the market an event names, and of
// its double-chance children.
func (r *Recorder) invalidateQuotes(ctx context.Context, evt domain.Event) error {
	addr, ok := payloadAddress(evt, "market")
	if !ok {
		return nil
	}
	targets := []common.Address{addr}
	_ = r.proto.View(ctx, func(*chain.Tx) error {
		for _, dc := range r.proto.Markets.DoubleChanceOf(addr) {
			targets = append(targets, dc.Address())
		}
		return nil
	})
	var errs []error
	for _, m := range targets {
		if err := r.deps.Quotes.InvalidateMarket(ctx, m.Hex()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func payloadAddress(evt domain.Event, field string) (common.Address, bool) {
	s, ok := evt.Payload[field].(string)
	if !ok || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
