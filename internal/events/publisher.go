package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	UserCreated = "created"
	UserUpdated = "updated"
	UserDeleted = "deleted"
)

type UserEvent struct {
	EventType  string    `json:"event_type"`
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher 用户生命周期事件；失败不影响请求结果，由调用方决定是否记录
type Publisher interface {
	PublishUser(ev UserEvent) error
	Close()
}

type NatsPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *zap.Logger
}

func NewNatsPublisher(natsURL, subjectPrefix string, l *zap.Logger) (*NatsPublisher, error) {
	if l == nil {
		l = zap.NewNop()
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("user-account-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if subjectPrefix == "" {
		subjectPrefix = "user"
	}
	return &NatsPublisher{conn: nc, prefix: subjectPrefix, log: l}, nil
}

// Subject 例如 user.created
func (p *NatsPublisher) Subject(eventType string) string { return p.prefix + "." + eventType }

func (p *NatsPublisher) PublishUser(ev UserEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.EventType, err)
	}
	subject := p.Subject(ev.EventType)
	if err := p.conn.Publish(subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug("event published", zap.String("subject", subject), zap.Int64("uid", ev.UserID))
	return nil
}

func (p *NatsPublisher) Close() {
	_ = p.conn.Drain()
}

// Nop 未配置 nats 时使用
type Nop struct{}

func (Nop) PublishUser(UserEvent) error { return nil }
func (Nop) Close()                      {}
