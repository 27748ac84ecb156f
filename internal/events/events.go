package events

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Event is a domain fact emitted by sessions and the hub for consumers outside the game core.
type Event interface {
	Type() string
	Session() string
}

type HandCompleted struct {
	SessionID  string    `json:"sessionId"`
	HandID     int       `json:"handId"`
	Players    [2]string `json:"players"`
	Winner     string    `json:"winner,omitempty"` // empty on a split pot
	Pot        int       `json:"pot"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (HandCompleted) Type() string      { return "hand_completed" }
func (e HandCompleted) Session() string { return e.SessionID }

type MatchOver struct {
	SessionID  string    `json:"sessionId"`
	Winner     string    `json:"winner"`
	Loser      string    `json:"loser"`
	Hands      int       `json:"hands"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (MatchOver) Type() string      { return "match_over" }
func (e MatchOver) Session() string { return e.SessionID }

type SessionEnded struct {
	SessionID  string    `json:"sessionId"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (SessionEnded) Type() string      { return "session_ended" }
func (e SessionEnded) Session() string { return e.SessionID }

type Sink interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers every event to each sink and reports all failures together.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var err error
	for _, s := range f {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Publish(ctx, e))
	}
	return err
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }
