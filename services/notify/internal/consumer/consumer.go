// Package consumer turns bus events into live notifications.
package consumer

import (
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/services/notify/internal/hub"
)

// Live message types pushed to clients.
const (
	TypeBookingCreated  = "booking:created"
	TypeBookingUpdated  = "booking:updated"
	TypeAccountVerified = "account:verified"
)

var liveTypes = map[string]string{
	events.BookingCreated: TypeBookingCreated,
	events.BookingUpdated: TypeBookingUpdated,
	events.UserVerified:   TypeAccountVerified,
}

type Publisher interface {
	Publish(room, msgType string, data any) (int, error)
	Disconnect(userID int64) int
}

type Consumer struct {
	hub Publisher
}

func New(h Publisher) *Consumer {
	return &Consumer{hub: h}
}

// Subscribe registers the consumer on the booking and account subjects.
// Role changes and deletions drop the user's connections.
// Plain subscriptions are used so every replica sees every event and can
// reach the clients connected to it.
func (c *Consumer) Subscribe(sub events.Subscriber) error {
	for _, subject := range []string{events.BookingWildcard, events.UserVerified, events.UserRoleChanged, events.UserDeleted} {
		if err := sub.Subscribe(subject, c.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle routes one bus message to the owner's room; booking events are
// mirrored to the admin room.
func (c *Consumer) Handle(msg *events.Message) {
	ev, err := events.Decode(msg.Data)
	if err != nil {
		logger.Warn("Dropping undecodable event", "subject", msg.Subject, "error", err)
		return
	}

	if msg.Subject == events.UserRoleChanged || msg.Subject == events.UserDeleted {
		n := c.hub.Disconnect(ev.UserID)
		logger.Info("Dropped connections after access change", "subject", msg.Subject, "user_id", ev.UserID, "clients", n)
		return
	}

	msgType, ok := liveTypes[msg.Subject]
	if !ok {
		logger.Debug("Ignoring event", "subject", msg.Subject)
		return
	}

	rooms := []string{hub.UserRoom(ev.UserID)}
	if msg.Subject != events.UserVerified {
		rooms = append(rooms, hub.AdminRoom)
	}

	for _, room := range rooms {
		n, err := c.hub.Publish(room, msgType, ev.Data)
		if err != nil {
			logger.Error("Failed to push live event", "event_id", ev.ID, "room", room, "error", err)
			continue
		}
		logger.Debug("Live event pushed", "event_id", ev.ID, "room", room, "clients", n)
	}
}
