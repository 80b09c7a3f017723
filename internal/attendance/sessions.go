package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusconnect/internal/apperr"
	"campusconnect/internal/docstore"
	"campusconnect/internal/metrics"
	"campusconnect/internal/models"
	"campusconnect/internal/verification"
)

// CreateSession schedules a practice session and notifies the students of its teacher.
func (s *Service) CreateSession(ctx context.Context, creatorID string, details models.SessionDetails) (models.PracticeSession, error) {
	if strings.TrimSpace(details.Date) == "" {
		return models.PracticeSession{}, apperr.Validation("date is required")
	}
	id := uuid.NewString()
	code := verification.Issue(id, verification.TypePractice)
	qr, err := verification.Render(code)
	if err != nil {
		return models.PracticeSession{}, fmt.Errorf("render session code: %w", err)
	}
	sess := models.PracticeSession{
		ID:             id,
		SessionDetails: details,
		CreatedBy:      creatorID,
		CreatedAt:      s.now().UTC(),
		QRCode:         qr,
		ManualCode:     code.String(),
		Attendance:     []models.SessionAttendance{},
		Status:         models.SessionScheduled,
	}
	err = docstore.Mutate(ctx, s.store, docstore.PracticeSessions, func(all []models.PracticeSession) ([]models.PracticeSession, error) {
		return append(all, sess), nil
	})
	if err != nil {
		return models.PracticeSession{}, err
	}

	if details.TeacherName != "" {
		s.notifyWhere(ctx, func(u models.User) bool {
			return u.Role == models.RoleStudent && u.ClassTeacher == details.TeacherName
		}, models.Notification{
			Type:      models.NotifyPracticeScheduled,
			Title:     "Practice Session Scheduled",
			Message:   fmt.Sprintf("Practice session on %s at %s", details.Date, details.Time),
			SessionID: sess.ID,
		})
	}
	return sess, nil
}

// Viewer is the caller of a visibility-scoped listing.
type Viewer struct {
	UserID string
	Role   models.Role
}

// ListSessions applies the visibility rule: students see sessions of their
// class teacher, faculty see their own sessions, everyone else sees all.
func (s *Service) ListSessions(ctx context.Context, v Viewer) ([]models.PracticeSession, error) {
	all, err := docstore.Load[models.PracticeSession](ctx, s.store, docstore.PracticeSessions)
	if err != nil {
		return nil, err
	}

	var keep func(models.PracticeSession) bool
	switch v.Role {
	case models.RoleStudent:
		u, err := s.users.Get(ctx, v.UserID)
		if err != nil {
			return nil, err
		}
		keep = func(p models.PracticeSession) bool {
			return u.ClassTeacher != "" && p.TeacherName == u.ClassTeacher
		}
	case models.RoleFaculty:
		keep = func(p models.PracticeSession) bool { return p.CreatedBy == v.UserID }
	default:
		return all, nil
	}

	out := make([]models.PracticeSession, 0, len(all))
	for _, p := range all {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetSession returns one practice session.
func (s *Service) GetSession(ctx context.Context, id string) (models.PracticeSession, error) {
	all, err := docstore.Load[models.PracticeSession](ctx, s.store, docstore.PracticeSessions)
	if err != nil {
		return models.PracticeSession{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return models.PracticeSession{}, apperr.NotFound("session not found")
}

// CheckInSession records userID on a practice session once. There is no
// approval step; a repeat is a no-op.
func (s *Service) CheckInSession(ctx context.Context, sessionID, userID string) (models.SessionAttendance, CheckInResult, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return models.SessionAttendance{}, CheckInResult{}, err
	}

	var (
		rec     models.SessionAttendance
		sess    models.PracticeSession
		created bool
	)
	err = docstore.Mutate(ctx, s.store, docstore.PracticeSessions, func(all []models.PracticeSession) ([]models.PracticeSession, error) {
		created = false
		for i := range all {
			if all[i].ID != sessionID {
				continue
			}
			sess = all[i]
			for _, a := range all[i].Attendance {
				if a.ID == userID {
					rec = a
					return nil, docstore.ErrNoChange
				}
			}
			rec = models.SessionAttendance{
				ID:         userID,
				Name:       displayName(user),
				RollNumber: user.RollNumber,
				Timestamp:  s.now().UTC(),
			}
			all[i].Attendance = append(all[i].Attendance, rec)
			created = true
			return all, nil
		}
		return nil, apperr.NotFound("session not found")
	})
	if err != nil {
		return models.SessionAttendance{}, CheckInResult{}, err
	}

	if !created {
		metrics.CheckIns.WithLabelValues("practice", "duplicate").Inc()
		return rec, CheckInResult{}, nil
	}
	metrics.CheckIns.WithLabelValues("practice", "created").Inc()
	s.notifyUser(ctx, sess.CreatedBy, models.Notification{
		Type:      models.NotifyPracticeAttendance,
		Title:     "Student Marked Attendance",
		Message:   fmt.Sprintf("%s marked attendance for practice session", rec.Name),
		SessionID: sess.ID,
	})
	return rec, CheckInResult{Created: true, XPGained: PracticeXP}, nil
}

// SetSessionStatus changes a session's status. Entering completed sends the
// creator a report with the attendee count; re-setting completed does not.
func (s *Service) SetSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) (models.PracticeSession, error) {
	if !status.Valid() {
		return models.PracticeSession{}, apperr.Validation("invalid session status %q", status)
	}
	var (
		updated   models.PracticeSession
		completed bool
	)
	err := docstore.Mutate(ctx, s.store, docstore.PracticeSessions, func(all []models.PracticeSession) ([]models.PracticeSession, error) {
		completed = false
		for i := range all {
			if all[i].ID != sessionID {
				continue
			}
			if all[i].Status == status {
				updated = all[i]
				return nil, docstore.ErrNoChange
			}
			completed = status == models.SessionCompleted
			all[i].Status = status
			now := s.now().UTC()
			all[i].UpdatedAt = &now
			updated = all[i]
			return all, nil
		}
		return nil, apperr.NotFound("session not found")
	})
	if err != nil {
		return models.PracticeSession{}, err
	}

	if completed {
		s.notifyUser(ctx, updated.CreatedBy, models.Notification{
			Type:      models.NotifyPracticeReport,
			Title:     "Practice Session Completed",
			Message:   fmt.Sprintf("%d students attended the practice session", len(updated.Attendance)),
			SessionID: updated.ID,
		})
	}
	return updated, nil
}

// SessionReport summarizes attendance on one practice session.
type SessionReport struct {
	SessionDate     string                     `json:"sessionDate"`
	SessionTime     string                     `json:"sessionTime"`
	TotalAttendance int                        `json:"totalAttendance"`
	Attendance      []models.SessionAttendance `json:"attendance"`
	Status          models.SessionStatus       `json:"status"`
	GeneratedAt     time.Time                  `json:"generatedAt"`
}

func (s *Service) SessionReport(ctx context.Context, id string) (SessionReport, error) {
	p, err := s.GetSession(ctx, id)
	if err != nil {
		return SessionReport{}, err
	}
	return SessionReport{
		SessionDate:     p.Date,
		SessionTime:     p.Time,
		TotalAttendance: len(p.Attendance),
		Attendance:      p.Attendance,
		Status:          p.Status,
		GeneratedAt:     s.now().UTC(),
	}, nil
}

// Redemption is the result of checking in with a verification code.
type Redemption struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	CheckInResult
}

// Redeem parses a verification code and checks userID into the resource it names.
func (s *Service) Redeem(ctx context.Context, codeText, userID string) (Redemption, error) {
	code, err := verification.Parse(codeText)
	if err != nil {
		return Redemption{}, err
	}
	out := Redemption{ResourceType: code.ResourceType, ResourceID: code.ResourceID}
	switch code.ResourceType {
	case verification.TypeAttendance:
		_, out.CheckInResult, err = s.CheckIn(ctx, code.ResourceID, userID)
	case verification.TypePractice:
		_, out.CheckInResult, err = s.CheckInSession(ctx, code.ResourceID, userID)
	}
	if err != nil {
		return Redemption{}, err
	}
	return out, nil
}
