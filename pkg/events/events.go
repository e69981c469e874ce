package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/diagnosis/buildhub/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	PublishRaw(ctx context.Context, subject string, payload []byte) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	return n.PublishRaw(ctx, subject, payload)
}

func (n *NATSEventBus) PublishRaw(ctx context.Context, subject string, payload []byte) error {
	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func toMessage(msg *nats.Msg) *Message {
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        uuid.NewString(),
	}
}

// Subjects
const (
	BookingCreated = "booking.created"
	BookingUpdated = "booking.updated"
	UserVerified   = "user.verified"

	UserRoleChanged = "user.role_changed"
	UserDeleted     = "user.deleted"

	BookingWildcard = "booking.*"
)

// Event is the envelope every publisher writes. UserID routes the event to
// the owner's live room; Data is the subject-specific payload.
type Event struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	UserID     int64           `json:"user_id"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewEvent(subject string, userID int64, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		UserID:     userID,
		Data:       raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

type BookingStatusChangedEvent struct {
	BookingID int64     `json:"booking_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   int64     `json:"actor_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// UserAccessChangedEvent is published on UserRoleChanged and UserDeleted.
// Role is empty for deletions.
type UserAccessChangedEvent struct {
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role,omitempty"`
	ActorID   int64     `json:"actor_id"`
	ChangedAt time.Time `json:"changed_at"`
}

type UserVerifiedEvent struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verified_at"`
}
