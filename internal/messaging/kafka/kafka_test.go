package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

type captureWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestEventProducerKeysByMarket(t *testing.T) {
	w := &captureWriter{}
	p := NewEventProducer(w)
	market := common.HexToAddress("0x01")

	evt := domain.NewEvent(domain.EventBoughtFromAmm, map[string]any{"market": domain.Addr(market)})
	evt.At = time.Unix(1700000000, 0).UTC()
	require.NoError(t, p.Publish(context.Background(), evt))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, market.Hex(), string(w.msgs[0].Key))
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, string(domain.EventBoughtFromAmm), string(w.msgs[0].Headers[0].Value))

	var got domain.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, evt.ID, got.ID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestEventProducerFallsBackToType(t *testing.T) {
	w := &captureWriter{}
	p := NewEventProducer(w)
	require.NoError(t, p.Publish(context.Background(), domain.NewEvent(domain.EventPricePublished, nil)))
	assert.Equal(t, string(domain.EventPricePublished), string(w.msgs[0].Key))
}

func TestEventProducerWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewEventProducer(&captureWriter{err: boom})
	err := p.Publish(context.Background(), domain.NewEvent(domain.EventDeposited, nil))
	require.ErrorIs(t, err, boom)
}

// queueReader serves queued messages and then blocks until ctx ends.
type queueReader struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (r *queueReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *queueReader) Close() error { return nil }

type recordingHandler struct {
	mu      sync.Mutex
	applied []domain.OracleUpdate
	fail    domain.OracleKind
}

func (h *recordingHandler) Apply(_ context.Context, u domain.OracleUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u.Kind == h.fail {
		return domain.ErrInvalidOdds
	}
	h.applied = append(h.applied, u)
	return nil
}

func encode(t *testing.T, u any) kafkago.Message {
	t.Helper()
	b, err := json.Marshal(u)
	require.NoError(t, err)
	return kafkago.Message{Value: b}
}

func TestOracleConsumerAppliesAndSkips(t *testing.T) {
	reader := &queueReader{msgs: []kafkago.Message{
		encode(t, domain.OracleUpdate{Kind: domain.OracleOdds, Market: common.HexToAddress("0x02"), Odds: []int64{-150, 130}}),
		{Value: []byte("not json")},
		encode(t, map[string]string{"kind": "teleport"}),
		encode(t, domain.OracleUpdate{Kind: domain.OracleRate}),
		encode(t, domain.OracleUpdate{Kind: domain.OraclePrice, Asset: "ETH", Price: decimal.NewFromInt(2000)}),
	}}
	handler := &recordingHandler{fail: domain.OracleRate}
	c := NewOracleConsumer(reader, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var mu sync.Mutex
	stages := map[string]int{}
	c.OnMessage = func(_ domain.OracleKind, stage string) {
		mu.Lock()
		stages[stage]++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stages["applied"]+stages["decode"]+stages["apply"] == 5
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 2, stages["applied"])
	assert.Equal(t, 2, stages["decode"])
	assert.Equal(t, 1, stages["apply"])
	require.Len(t, handler.applied, 2)
	assert.Equal(t, []int64{-150, 130}, handler.applied[0].Odds)
	assert.True(t, decimal.NewFromInt(2000).Equal(handler.applied[1].Price))
}

func TestDecodeUpdateRequiresKind(t *testing.T) {
	_, err := decodeUpdate([]byte(`{}`))
	assert.ErrorContains(t, err, "missing kind")
}
