// Package notify writes notifications to the durable log and pushes them
// to any live subscriber of the recipient's channel.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"campusconnect/internal/apperr"
	"campusconnect/internal/docstore"
	"campusconnect/internal/metrics"
	"campusconnect/internal/models"
	"campusconnect/internal/pubsub"
)

// Hub is the notification fan-out.
type Hub struct {
	store  *docstore.Store
	broker pubsub.Broker
	now    func() time.Time
}

func NewHub(store *docstore.Store, broker pubsub.Broker) *Hub {
	return &Hub{store: store, broker: broker, now: time.Now}
}

// PublishMany appends all notifications in one write, then delivers each live.
// Live delivery failures are logged and never returned.
func (h *Hub) PublishMany(ctx context.Context, batch []models.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	now := h.now().UTC()
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
		batch[i].CreatedAt = now
		batch[i].Read = false
	}
	err := docstore.Mutate(ctx, h.store, docstore.Notifications, func(all []models.Notification) ([]models.Notification, error) {
		return append(all, batch...), nil
	})
	if err != nil {
		return err
	}

	for _, n := range batch {
		h.deliver(ctx, n)
	}
	return nil
}

func (h *Hub) deliver(ctx context.Context, n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		slog.Error("encode notification", "error", err, "id", n.ID)
		return
	}
	delivered, err := h.broker.Publish(ctx, n.UserID, payload)
	if err != nil {
		slog.Warn("live notification delivery failed", "error", err, "user_id", n.UserID, "type", n.Type)
	}
	metrics.Notifications.WithLabelValues(n.Type, strconv.FormatBool(delivered)).Inc()
}

// Notify publishes and logs instead of returning an error. State changes
// that already committed use it, since their notification is best-effort.
func (h *Hub) Notify(ctx context.Context, batch ...models.Notification) {
	if err := h.PublishMany(ctx, batch); err != nil {
		slog.Error("notification not stored", "error", err, "count", len(batch))
	}
}

// Subscribe opens a live channel for userID.
func (h *Hub) Subscribe(ctx context.Context, userID string) (pubsub.Subscription, error) {
	return h.broker.Subscribe(ctx, userID)
}

// List returns userID's notifications, newest first.
func (h *Hub) List(ctx context.Context, userID string) ([]models.Notification, error) {
	all, err := docstore.Load[models.Notification](ctx, h.store, docstore.Notifications)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0)
	for _, n := range all {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead flags one of userID's notifications as read. Another user's
// notification is reported as not found.
func (h *Hub) MarkRead(ctx context.Context, userID, id string) error {
	return docstore.Mutate(ctx, h.store, docstore.Notifications, func(all []models.Notification) ([]models.Notification, error) {
		for i := range all {
			if all[i].ID != id || all[i].UserID != userID {
				continue
			}
			if all[i].Read {
				return nil, docstore.ErrNoChange
			}
			all[i].Read = true
			return all, nil
		}
		return nil, apperr.NotFound("notification not found")
	})
}

// MarkAllRead flags every unread notification of userID and returns how many changed.
func (h *Hub) MarkAllRead(ctx context.Context, userID string) (int, error) {
	var changed int
	err := docstore.Mutate(ctx, h.store, docstore.Notifications, func(all []models.Notification) ([]models.Notification, error) {
		changed = 0
		for i := range all {
			if all[i].UserID == userID && !all[i].Read {
				all[i].Read = true
				changed++
			}
		}
		if changed == 0 {
			return nil, docstore.ErrNoChange
		}
		return all, nil
	})
	return changed, err
}
