// Package notify carries human-readable cart events to whatever displays
// them. Sinks are fire-and-forget: the cart never waits on or inspects them.
package notify

import (
	"github.com/rs/zerolog"
)

type Kind string

const (
	Info    Kind = "info"
	Success Kind = "success"
	Error   Kind = "error"
)

type Sink interface {
	Notify(kind Kind, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(kind Kind, message string)

func (f SinkFunc) Notify(kind Kind, message string) { f(kind, message) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Kind, string) {})

// Fanout forwards to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(kind Kind, message string) {
	for _, s := range f {
		if s != nil {
			s.Notify(kind, message)
		}
	}
}

// LogSink writes notifications to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (l LogSink) Notify(kind Kind, message string) {
	ev := l.Logger.Info()
	if kind == Error {
		ev = l.Logger.Warn()
	}
	ev.Str("kind", string(kind)).Msg(message)
}
