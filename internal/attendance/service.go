// Package attendance manages events, practice sessions and the check-in /
// approval lifecycle of their attendance records.
package attendance

import (
	"context"
	"log/slog"
	"time"

	"campusconnect/internal/docstore"
	"campusconnect/internal/models"
)

// XP awarded for a first check-in, matching the scoring weights.
const (
	EventXP    = 10
	PracticeXP = 5
)

// Users resolves accounts for name snapshots and notification targets.
type Users interface {
	Get(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// Notifier delivers notifications on a best-effort basis.
type Notifier interface {
	Notify(ctx context.Context, batch ...models.Notification)
}

// Auditor records privileged mutations.
type Auditor interface {
	Record(ctx context.Context, action, actorID, details string)
}

// Service coordinates check-ins, approvals and their side effects.
type Service struct {
	store  *docstore.Store
	users  Users
	notify Notifier
	audit  Auditor
	now    func() time.Time
}

// NewService creates a service backed by the document store.
func NewService(store *docstore.Store, users Users, notify Notifier, audit Auditor) *Service {
	return &Service{store: store, users: users, notify: notify, audit: audit, now: time.Now}
}

// CheckInResult describes the outcome of a check-in. Created is false when
// the user had already checked in; Record is then the existing record.
type CheckInResult struct {
	Created  bool `json:"created"`
	XPGained int  `json:"xpGained"`
}

// notifyUser sends n to userID if that user still exists.
func (s *Service) notifyUser(ctx context.Context, userID string, n models.Notification) {
	if userID == "" {
		return
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return
	}
	n.UserID = userID
	s.notify.Notify(ctx, n)
}

// notifyWhere sends one copy of n to every user matching keep.
func (s *Service) notifyWhere(ctx context.Context, keep func(models.User) bool, n models.Notification) {
	users, err := s.users.List(ctx)
	if err != nil {
		slog.Error("load notification audience", "error", err, "type", n.Type)
		return
	}
	var batch []models.Notification
	for _, u := range users {
		if keep(u) {
			c := n
			c.UserID = u.ID
			batch = append(batch, c)
		}
	}
	s.notify.Notify(ctx, batch...)
}
