package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "poker.events",
		MaxReconnects: -1, // forever
		ReconnectWait: 2 * time.Second,
	}
}

type envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NATSPublisher publishes each event on <prefix>.<type>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

func NewNATSPublisher(cfg NATSConfig, log *zap.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("headsup-poker"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("nats error", zap.Error(err))
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix, log: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := encode(p.prefix, e, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	p.log.Debug("event published", zap.String("subject", msg.Subject), zap.String("session_id", e.Session()))
	return nil
}

func encode(prefix string, e Event, now time.Time) (*nats.Msg, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Type(), err)
	}
	id := uuid.NewString()
	data, err := json.Marshal(envelope{
		EventID:   id,
		EventType: e.Type(),
		SessionID: e.Session(),
		Timestamp: now,
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return &nats.Msg{
		Subject: fmt.Sprintf("%s.%s", prefix, e.Type()),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{e.Type()},
			"Session-ID": []string{e.Session()},
			"Event-ID":   []string{id},
		},
	}, nil
}

// Close flushes buffered messages before closing the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
