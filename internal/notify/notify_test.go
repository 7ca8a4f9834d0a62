package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DrainEmptiesInOrder(t *testing.T) {
	q := NewQueue(10)
	q.Notify(Success, "Phone added to cart")
	q.Notify(Info, "Phone removed from cart")

	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, Notice{Kind: Success, Message: "Phone added to cart"}, got[0])
	assert.Equal(t, Info, got[1].Kind)

	assert.Empty(t, q.Drain())
	assert.NotNil(t, q.Drain())
}

func TestQueue_KeepsMostRecent(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 5; i++ {
		q.Notify(Info, fmt.Sprintf("n%d", i))
	}

	got := q.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, "n2", got[0].Message)
	assert.Equal(t, "n4", got[2].Message)
}

func TestFanout(t *testing.T) {
	a, b := NewQueue(5), NewQueue(5)
	Fanout{a, nil, b}.Notify(Error, "Invalid coupon code")

	assert.Len(t, a.Drain(), 1)
	assert.Len(t, b.Drain(), 1)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	LogSink{Logger: zerolog.New(&buf)}.Notify(Error, "Invalid coupon code")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "error", line["kind"])
	assert.Equal(t, "Invalid coupon code", line["message"])
}

type mockWriter struct {
	msgs []kafka.Message
	err  error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func TestKafkaPublisher_ForSession(t *testing.T) {
	w := &mockWriter{}
	p := NewKafkaPublisher(w, zerolog.Nop())

	p.ForSession("s-1").Notify(Success, "Coupon TECH10 applied")

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "s-1", string(w.msgs[0].Key))

	var ev noticeEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "s-1", ev.SessionID)
	assert.Equal(t, Success, ev.Kind)
	assert.Equal(t, "Coupon TECH10 applied", ev.Message)
}

func TestKafkaPublisher_ErrorIsSwallowed(t *testing.T) {
	w := &mockWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w, zerolog.Nop())

	assert.NotPanics(t, func() {
		p.ForSession("s-1").Notify(Info, "Cart cleared")
	})
	assert.Empty(t, w.msgs)
}
