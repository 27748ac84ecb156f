package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/headsup-poker-backend/internal/events"
	"github.com/DoyleJ11/headsup-poker-backend/internal/session"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

type EnsureSession struct {
	ID    string
	Reply chan *session.Session
}

type RemoveSession struct {
	ID     string
	Reason string
}

type GetStats struct {
	Reply chan Stats
}

type ShutdownHub struct{}

func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (GetStats) isHubMsg()      {}
func (ShutdownHub) isHubMsg()   {}

type Stats struct {
	Sessions int `json:"sessions"`
}

// Hub is the session router: it owns every live session keyed by session id.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	template session.Config
	events   events.Sink
	clock    clockwork.Clock
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the registry. Sessions it creates copy template, with ID and OnClose filled in.
func NewHub(parent context.Context, template session.Config, sink events.Sink) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if template.Logger == nil {
		template.Logger = zap.NewNop()
	}
	if template.Clock == nil {
		template.Clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		template: template,
		events:   sink,
		clock:    template.Clock,
		log:      template.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case EnsureSession:
				msg.Reply <- h.ensure(msg.ID)

			case RemoveSession:
				sess, ok := h.sessions[msg.ID]
				if !ok {
					break
				}
				delete(h.sessions, msg.ID)
				sess.Close()
				h.log.Info("session removed", zap.String("session_id", msg.ID), zap.String("reason", msg.Reason))
				ev := events.SessionEnded{SessionID: msg.ID, Reason: msg.Reason, OccurredAt: h.clock.Now().UTC()}
				if err := h.events.Publish(h.ctx, ev); err != nil {
					h.log.Warn("publish session_ended failed", zap.Error(err))
				}

			case GetStats:
				msg.Reply <- Stats{Sessions: len(h.sessions)}

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

// Sessions nobody joins end themselves after the template's IdleTimeout.
func (h *Hub) ensure(id string) *session.Session {
	if sess := h.sessions[id]; sess != nil {
		return sess
	}
	cfg := h.template
	cfg.ID = id
	cfg.OnClose = h.onSessionClosed
	sess := session.New(h.ctx, cfg)
	h.sessions[id] = sess
	h.log.Info("session created", zap.String("session_id", id))
	return sess
}

// onSessionClosed runs on the session's goroutine.
func (h *Hub) onSessionClosed(id, reason string) {
	select {
	case h.inbox <- RemoveSession{ID: id, Reason: reason}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for _, sess := range h.sessions {
		sess.Close()
	}
	clear(h.sessions)
}

func (h *Hub) request(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func reply[T any](ctx context.Context, h *Hub, ch chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Get returns the live session for id, or nil.
func (h *Hub) Get(ctx context.Context, id string) (*session.Session, error) {
	ch := make(chan *session.Session, 1)
	if err := h.request(ctx, GetSession{ID: id, Reply: ch}); err != nil {
		return nil, err
	}
	return reply(ctx, h, ch)
}

func (h *Hub) Ensure(ctx context.Context, id string) (*session.Session, error) {
	ch := make(chan *session.Session, 1)
	if err := h.request(ctx, EnsureSession{ID: id, Reply: ch}); err != nil {
		return nil, err
	}
	return reply(ctx, h, ch)
}

// Prepare makes sure a session exists for id before players are routed to it.
func (h *Hub) Prepare(ctx context.Context, id string) error {
	_, err := h.Ensure(ctx, id)
	return err
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	ch := make(chan Stats, 1)
	if err := h.request(ctx, GetStats{Reply: ch}); err != nil {
		return Stats{}, err
	}
	return reply(ctx, h, ch)
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}
