// Package announcements manages campus-wide notices.
package announcements

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusconnect/internal/apperr"
	"campusconnect/internal/docstore"
	"campusconnect/internal/models"
)

type Users interface {
	Get(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, batch ...models.Notification)
}

type Auditor interface {
	Record(ctx context.Context, action, actorID, details string)
}

// Input is the create and update payload. On update, empty fields are left unchanged.
type Input struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority string `json:"priority"`
}

type Service struct {
	store  *docstore.Store
	users  Users
	notify Notifier
	audit  Auditor
	now    func() time.Time
}

func NewService(store *docstore.Store, users Users, notify Notifier, audit Auditor) *Service {
	return &Service{store: store, users: users, notify: notify, audit: audit, now: time.Now}
}

// Create posts an announcement and notifies every user.
func (s *Service) Create(ctx context.Context, authorID string, in Input) (models.Announcement, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return models.Announcement{}, apperr.Validation("title and content are required")
	}
	author, err := s.users.Get(ctx, authorID)
	if err != nil {
		return models.Announcement{}, err
	}
	if in.Priority == "" {
		in.Priority = "normal"
	}
	a := models.Announcement{
		ID:            uuid.NewString(),
		Title:         in.Title,
		Content:       in.Content,
		Priority:      in.Priority,
		CreatedBy:     author.ID,
		CreatedByName: author.Name,
		CreatedAt:     s.now().UTC(),
	}
	err = docstore.Mutate(ctx, s.store, docstore.Announcements, func(all []models.Announcement) ([]models.Announcement, error) {
		return append(all, a), nil
	})
	if err != nil {
		return models.Announcement{}, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		slog.Error("load announcement audience", "error", err, "announcement", a.ID)
		return a, nil
	}
	batch := make([]models.Notification, 0, len(users))
	for _, u := range users {
		batch = append(batch, models.Notification{
			UserID:         u.ID,
			Type:           models.NotifyAnnouncement,
			Title:          "New Announcement",
			Message:        a.Title,
			AnnouncementID: a.ID,
		})
	}
	s.notify.Notify(ctx, batch...)
	return a, nil
}

// List returns every announcement, newest first.
func (s *Service) List(ctx context.Context) ([]models.Announcement, error) {
	all, err := docstore.Load[models.Announcement](ctx, s.store, docstore.Announcements)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (models.Announcement, error) {
	var updated models.Announcement
	err := docstore.Mutate(ctx, s.store, docstore.Announcements, func(all []models.Announcement) ([]models.Announcement, error) {
		for i := range all {
			if all[i].ID != id {
				continue
			}
			if in.Title != "" {
				all[i].Title = in.Title
			}
			if in.Content != "" {
				all[i].Content = in.Content
			}
			if in.Priority != "" {
				all[i].Priority = in.Priority
			}
			now := s.now().UTC()
			all[i].UpdatedAt = &now
			updated = all[i]
			return all, nil
		}
		return nil, apperr.NotFound("announcement not found")
	})
	return updated, err
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	var removed models.Announcement
	err := docstore.Mutate(ctx, s.store, docstore.Announcements, func(all []models.Announcement) ([]models.Announcement, error) {
		for i := range all {
			if all[i].ID == id {
				removed = all[i]
				return append(all[:i], all[i+1:]...), nil
			}
		}
		return nil, apperr.NotFound("announcement not found")
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditAnnouncementDeleted, actorID, fmt.Sprintf("Deleted announcement %q", removed.Title))
	return nil
}
