package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// MessageReader is the subset of *kafkago.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// OracleHandler applies one decoded oracle update.
type OracleHandler interface {
	Apply(ctx context.Context, u domain.OracleUpdate) error
}

// OracleConsumer feeds oracle updates from a topic into a handler. A
// message that fails to decode or apply is logged and skipped.
type OracleConsumer struct {
	r       MessageReader
	handler OracleHandler
	logger  *slog.Logger

	// OnMessage is called once per message with its kind and outcome stage
	// ("applied", "decode", "apply").
	OnMessage func(kind domain.OracleKind, stage string)

	retryDelay time.Duration
}

// NewOracleConsumer creates a consumer.
func NewOracleConsumer(r MessageReader, handler OracleHandler, logger *slog.Logger) *OracleConsumer {
	return &OracleConsumer{
		r:          r,
		handler:    handler,
		logger:     logger.With(slog.String("component", "oracle_consumer")),
		retryDelay: 500 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled.
func (c *OracleConsumer) Run(ctx context.Context) error {
	c.logger.Info("oracle_consumer: started")
	defer c.logger.Info("oracle_consumer: stopped")

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Warn("oracle_consumer: read failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *OracleConsumer) handle(ctx context.Context, m kafkago.Message) {
	u, err := decodeUpdate(m.Value)
	if err != nil {
		c.logger.Warn("oracle_consumer: invalid message",
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()),
		)
		c.observe("", "decode")
		return
	}
	if err := c.handler.Apply(ctx, u); err != nil {
		c.logger.Warn("oracle_consumer: apply failed",
			slog.String("kind", string(u.Kind)),
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()),
		)
		c.observe(u.Kind, "apply")
		return
	}
	c.observe(u.Kind, "applied")
}

func (c *OracleConsumer) observe(kind domain.OracleKind, stage string) {
	if c.OnMessage != nil {
		c.OnMessage(kind, stage)
	}
}

// Close closes the reader.
func (c *OracleConsumer) Close() error {
	return c.r.Close()
}

func decodeUpdate(b []byte) (domain.OracleUpdate, error) {
	var u domain.OracleUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		return u, fmt.Errorf("kafka: decode oracle update: %w", err)
	}
	switch u.Kind {
	case domain.OracleCreateMarket, domain.OracleOdds, domain.OracleResolve,
		domain.OracleCancel, domain.OraclePrice, domain.OracleRate:
		return u, nil
	case "":
		return u, fmt.Errorf("kafka: decode oracle update: missing kind")
	}
	return u, fmt.Errorf("kafka: decode oracle update: unknown kind %q", u.Kind)
}
