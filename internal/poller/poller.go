// Package poller clears carts once their checkout has completed.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic   = "checkout-outbox"
	DefaultGroupID = "cart-service-consumer"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Clearer empties the cart of a session without notifying the shopper.
type Clearer interface {
	Clear(ctx context.Context, sessionID string, showNotification bool) error
}

type checkoutEvent struct {
	SessionID string `json:"session_id"`
}

type Poller struct {
	carts  Clearer
	reader messageReader
	log    zerolog.Logger
	// wait after a failed read before polling again
	backoff time.Duration
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(carts Clearer, reader messageReader, log zerolog.Logger) *Poller {
	return &Poller{carts: carts, reader: reader, log: log, backoff: time.Second}
}

// Run consumes checkout events until ctx is cancelled or the reader is closed.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := p.handleNext(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn().Err(err).Msg("error closing reader")
	}
}

func (p *Poller) handleNext(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, io.EOF) {
			p.log.Warn().Err(err).Msg("error reading message")
		}
		return err
	}

	var ev checkoutEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.log.Warn().Err(err).Int64("offset", m.Offset).Msg("error parsing message")
		return nil
	}
	if ev.SessionID == "" {
		p.log.Warn().Int64("offset", m.Offset).Msg("missing session_id")
		return nil
	}

	if err := p.carts.Clear(ctx, ev.SessionID, false); err != nil {
		p.log.Warn().Err(err).Str("session_id", ev.SessionID).Msg("failed to clear cart")
		return nil
	}
	p.log.Info().Str("session_id", ev.SessionID).Msg("cart cleared after checkout")
	return nil
}
