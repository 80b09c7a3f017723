// Package roles handles role-change requests and administrative edits of user accounts.
package roles

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

// Create files a request by userID to be moved to role. A user may hold at
// most one pending request.
func (s *Service) Create(ctx context.Context, userID string, role models.Role, reason string) (models.RoleRequest, error) {
	if !role.Valid() {
		return models.RoleRequest{}, apperr.Validation("invalid role %q", role)
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return models.RoleRequest{}, err
	}
	if u.Role == role {
		return models.RoleRequest{}, apperr.Validation("you already have the %s role", role)
	}

	req := models.RoleRequest{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		UserName:      u.Name,
		CurrentRole:   u.Role,
		RequestedRole: role,
		Reason:        strings.TrimSpace(reason),
		Status:        models.RequestPending,
		CreatedAt:     s.now().UTC(),
	}
	err = docstore.Mutate(ctx, s.store, docstore.RoleRequests, func(all []models.RoleRequest) ([]models.RoleRequest, error) {
		for _, r := range all {
			if r.UserID == userID && r.Status == models.RequestPending {
				return nil, apperr.Conflict("a role request is already pending")
			}
		}
		return append(all, req), nil
	})
	if err != nil {
		return models.RoleRequest{}, err
	}

	admins, err := s.users.List(ctx)
	if err != nil {
		slog.Error("load role request reviewers", "error", err, "request", req.ID)
	} else {
		var batch []models.Notification
		for _, a := range admins {
			if a.Role != models.RoleAdmin {
				continue
			}
			batch = append(batch, models.Notification{
				UserID:    a.ID,
				Type:      models.NotifyRoleRequest,
				Title:     "New Role Request",
				Message:   fmt.Sprintf("%s requested %s role", req.UserName, role),
				RequestID: req.ID,
			})
		}
		s.notify.Notify(ctx, batch...)
	}
	return req, nil
}

// List returns every request, newest first.
func (s *Service) List(ctx context.Context) ([]models.RoleRequest, error) {
	all, err := docstore.Load[models.RoleRequest](ctx, s.store, docstore.RoleRequests)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

// Review approves or rejects a pending request. An approval changes the
// user's role; a request can be reviewed only once. If the role cannot be
// applied the request is put back to pending so the review can be retried.
func (s *Service) Review(ctx context.Context, reviewerID, requestID string, status models.RequestStatus) (models.RoleRequest, error) {
	if status != models.RequestApproved && status != models.RequestRejected {
		return models.RoleRequest{}, apperr.Validation("status must be approved or rejected")
	}

	var req models.RoleRequest
	err := docstore.Mutate(ctx, s.store, docstore.RoleRequests, func(all []models.RoleRequest) ([]models.RoleRequest, error) {
		for i := range all {
			if all[i].ID != requestID {
				continue
			}
			if all[i].Status != models.RequestPending {
				return nil, apperr.Conflict("role request already %s", all[i].Status)
			}
			now := s.now().UTC()
			all[i].Status = status
			all[i].ReviewedBy = reviewerID
			all[i].ReviewedAt = &now
			req = all[i]
			return all, nil
		}
		return nil, apperr.NotFound("role request not found")
	})
	if err != nil {
		return models.RoleRequest{}, err
	}

	if status == models.RequestApproved {
		if err := s.setRole(ctx, req.UserID, req.RequestedRole); err != nil {
			s.reopen(ctx, req)
			return models.RoleRequest{}, fmt.Errorf("apply approved role: %w", err)
		}
		s.notify.Notify(ctx, models.Notification{
			UserID:    req.UserID,
			Type:      models.NotifyRoleApproved,
			Title:     "Role Request Approved",
			Message:   fmt.Sprintf("Your request for %s role has been approved!", req.RequestedRole),
			RequestID: req.ID,
		})
	}
	s.audit.Record(ctx, models.AuditRoleRequestReviewed, reviewerID,
		fmt.Sprintf("%s role request from %s for %s", status, req.UserName, req.RequestedRole))
	return req, nil
}

func (s *Service) setRole(ctx context.Context, userID string, role models.Role) error {
	return docstore.Mutate(ctx, s.store, docstore.Users, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID == userID {
				now := s.now().UTC()
				users[i].Role = role
				users[i].UpdatedAt = &now
				return users, nil
			}
		}
		return nil, apperr.NotFound("user not found")
	})
}

// reopen returns a request this review just decided back to pending.
func (s *Service) reopen(ctx context.Context, req models.RoleRequest) {
	err := docstore.Mutate(ctx, s.store, docstore.RoleRequests, func(all []models.RoleRequest) ([]models.RoleRequest, error) {
		for i := range all {
			if all[i].ID == req.ID && all[i].Status == req.Status && all[i].ReviewedBy == req.ReviewedBy {
				all[i].Status = models.RequestPending
				all[i].ReviewedBy = ""
				all[i].ReviewedAt = nil
				return all, nil
			}
		}
		return nil, docstore.ErrNoChange
	})
	if err != nil {
		slog.Error("role request left decided without role change", "error", err, "request", req.ID)
	}
}

// ListUsers returns every account without password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]models.PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicUser, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out, nil
}

// UserPatch is an administrative edit. Empty fields are left unchanged.
type UserPatch struct {
	Role models.Role `json:"role"`
	models.Profile
}

// UpdateUser applies an administrative edit. Only admins may change roles,
// never their own, and only admins may touch admin accounts.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, patch UserPatch) (models.PublicUser, error) {
	if patch.Role != "" && !patch.Role.Valid() {
		return models.PublicUser{}, apperr.Validation("invalid role %q", patch.Role)
	}
	actor, err := s.actorRole(ctx, actorID)
	if err != nil {
		return models.PublicUser{}, err
	}
	var updated models.User
	err = docstore.Mutate(ctx, s.store, docstore.Users, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID != id {
				continue
			}
			if users[i].Role == models.RoleAdmin && actor != models.RoleAdmin {
				return nil, apperr.Authorization("only admins can edit admin accounts")
			}
			if patch.Role != "" && patch.Role != users[i].Role {
				if actor != models.RoleAdmin {
					return nil, apperr.Authorization("only admins can change roles")
				}
				if id == actorID {
					return nil, apperr.Validation("cannot change your own role")
				}
				users[i].Role = patch.Role
			}
			users[i].Profile.Merge(patch.Profile)
			now := s.now().UTC()
			users[i].UpdatedAt = &now
			updated = users[i]
			return users, nil
		}
		return nil, apperr.NotFound("user not found")
	})
	if err != nil {
		return models.PublicUser{}, err
	}
	s.audit.Record(ctx, models.AuditUserUpdated, actorID, fmt.Sprintf("Updated user %s", updated.Email))
	return updated.Public(), nil
}

// actorRole reads the caller's stored role; a missing caller is unauthorized.
func (s *Service) actorRole(ctx context.Context, actorID string) (models.Role, error) {
	u, err := s.users.Get(ctx, actorID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return "", apperr.Authorization("account no longer exists")
	}
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// DeleteUser removes an account. Nobody can delete themselves, and only
// admins can delete admins.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return apperr.Validation("cannot delete your own account")
	}
	actor, err := s.actorRole(ctx, actorID)
	if err != nil {
		return err
	}
	var removed models.User
	err = docstore.Mutate(ctx, s.store, docstore.Users, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID == id {
				if users[i].Role == models.RoleAdmin && actor != models.RoleAdmin {
					return nil, apperr.Authorization("only admins can delete admin accounts")
				}
				removed = users[i]
				return append(users[:i], users[i+1:]...), nil
			}
		}
		return nil, apperr.NotFound("user not found")
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditUserDeleted, actorID, fmt.Sprintf("Deleted user %s", removed.Email))
	return nil
}
