package audit

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"campusconnect/internal/docstore"
	"campusconnect/internal/metrics"
	"campusconnect/internal/models"
)

// DefaultLimit is the most entries Recent returns.
const DefaultLimit = 100

// Log is the append-only audit trail of privileged mutations.
type Log struct {
	store *docstore.Store
	now   func() time.Time
}

func New(store *docstore.Store) *Log {
	return &Log{store: store, now: time.Now}
}

// Record appends an entry. It never fails the caller: write errors are logged and counted.
func (l *Log) Record(ctx context.Context, action, actorID, details string) {
	entry := models.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		UserID:    actorID,
		UserName:  l.actorName(ctx, actorID),
		Details:   details,
		Timestamp: l.now().UTC(),
	}
	err := docstore.Mutate(ctx, l.store, docstore.AuditLogs, func(all []models.AuditEntry) ([]models.AuditEntry, error) {
		return append(all, entry), nil
	})
	if err != nil {
		metrics.AuditFailures.Inc()
		slog.Error("audit write failed", "error", err, "action", action, "user_id", actorID)
	}
}

// actorName resolves the display name of actorID, or "" when unknown.
func (l *Log) actorName(ctx context.Context, actorID string) string {
	users, err := docstore.Load[models.User](ctx, l.store, docstore.Users)
	if err != nil {
		return ""
	}
	for _, u := range users {
		if u.ID == actorID {
			return u.Name
		}
	}
	return ""
}

// Recent returns the newest n entries, newest first. n is clamped to
// (0, DefaultLimit]; out-of-range values get DefaultLimit.
func (l *Log) Recent(ctx context.Context, n int) ([]models.AuditEntry, error) {
	if n <= 0 || n > DefaultLimit {
		n = DefaultLimit
	}
	all, err := docstore.Load[models.AuditEntry](ctx, l.store, docstore.AuditLogs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}
