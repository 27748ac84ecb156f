package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/headsup-poker-backend/internal/hub"
	"github.com/DoyleJ11/headsup-poker-backend/internal/lobby"
	"github.com/DoyleJ11/headsup-poker-backend/internal/session"
	"github.com/DoyleJ11/headsup-poker-backend/pkg/types"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
)

type Options struct {
	// OriginPatterns is handed to websocket.Accept. Empty allows same-origin only.
	OriginPatterns []string
	Logger         *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func LobbyHandler(l *lobby.Lobby, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		connID := uuid.NewString()
		log := opts.logger().With(zap.String("conn_id", connID))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan types.ServerMessage, outboxSize)
		if err := l.Send(ctx, lobby.Connect{ConnID: connID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "lobby unavailable")
			return
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			_ = l.Send(sctx, lobby.Disconnect{ConnID: connID})
		}()

		go writeLoop(ctx, conn, out, log)

		readLoop(ctx, conn, log, func(cm types.ClientMessage) error {
			if cm.Type == types.MsgPing {
				return writeNow(ctx, conn, types.ServerMessage{Type: types.MsgPong, Timestamp: time.Now().UnixMilli()})
			}
			m, err := toLobbyMsg(connID, cm)
			if err != nil {
				return writeNow(ctx, conn, types.Error(err.Error()))
			}
			return l.Send(ctx, m)
		})
	}
}

// GameHandler serves /ws/game/{sessionID}. Unknown sessions are rejected before the upgrade.
func GameHandler(h *hub.Hub, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		sess, err := h.Get(r.Context(), sessionID)
		if err != nil {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if sess == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		connID := uuid.NewString()
		log := opts.logger().With(zap.String("conn_id", connID), zap.String("session_id", sessionID))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// The session closes out once this connection is seated and the session ends.
		out := make(chan types.ServerMessage, outboxSize)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			_ = sess.Send(sctx, session.Leave{ConnID: connID})
		}()

		go writeLoop(ctx, conn, out, log)

		readLoop(ctx, conn, log, func(cm types.ClientMessage) error {
			m, err := toSessionMsg(connID, cm, out)
			if err != nil {
				return writeNow(ctx, conn, types.Error(err.Error()))
			}
			if err := sess.Send(ctx, m); err != nil {
				_ = writeNow(ctx, conn, types.ServerMessage{Type: types.MsgGameEnded, Reason: "session closed"})
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return err
			}
			return nil
		})
	}
}

// readLoop decodes frames until the connection drops or handle fails.
// Malformed JSON is reported to the client and skipped.
func readLoop(ctx context.Context, conn *websocket.Conn, log *zap.Logger, handle func(types.ClientMessage) error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			log.Warn("bad client frame", zap.Error(err))
			if err := writeNow(ctx, conn, types.Error("bad json")); err != nil {
				return
			}
			continue
		}
		if err := handle(cm); err != nil {
			log.Debug("dropping connection", zap.String("type", cm.Type), zap.Error(err))
			return
		}
	}
}

// writeLoop drains out until the owning actor closes it, then closes the socket.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "bye")
				return
			}
			if err := writeNow(ctx, conn, msg); err != nil {
				log.Debug("write failed", zap.String("type", msg.Type), zap.Error(err))
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func writeNow(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
