package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds an async writer so Notify never blocks on the broker.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// KafkaPublisher publishes notices keyed by session id.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

func NewKafkaPublisher(w messageWriter, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		timeout: 2 * time.Second,
		log:     log,
		now:     time.Now,
	}
}

type noticeEvent struct {
	SessionID string    `json:"session_id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// ForSession returns a sink publishing that session's notices.
func (p *KafkaPublisher) ForSession(sessionID string) Sink {
	return SinkFunc(func(kind Kind, message string) {
		p.publish(noticeEvent{SessionID: sessionID, Kind: kind, Message: message, At: p.now()})
	})
}

func (p *KafkaPublisher) publish(ev noticeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal notification failed")
		metrics.NotificationsPublished.WithLabelValues("failed").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.SessionID), Value: payload})
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", ev.SessionID).Msg("publish notification failed")
		metrics.NotificationsPublished.WithLabelValues("failed").Inc()
		return
	}
	metrics.NotificationsPublished.WithLabelValues("published").Inc()
}
