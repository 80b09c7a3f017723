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

// CreateEvent stores a new event with its check-in code and tells every student about it.
func (s *Service) CreateEvent(ctx context.Context, creatorID string, details models.EventDetails) (models.Event, error) {
	if strings.TrimSpace(details.Title) == "" {
		return models.Event{}, apperr.Validation("title is required")
	}
	id := uuid.NewString()
	code := verification.Issue(id, verification.TypeAttendance)
	qr, err := verification.Render(code)
	if err != nil {
		return models.Event{}, fmt.Errorf("render event code: %w", err)
	}
	evt := models.Event{
		ID:           id,
		EventDetails: details,
		CreatedBy:    creatorID,
		CreatedAt:    s.now().UTC(),
		QRCode:       qr,
		ManualCode:   code.String(),
		Attendees:    []models.AttendanceRecord{},
		Status:       "pending",
	}
	err = docstore.Mutate(ctx, s.store, docstore.Events, func(events []models.Event) ([]models.Event, error) {
		return append(events, evt), nil
	})
	if err != nil {
		return models.Event{}, err
	}

	s.notifyWhere(ctx, func(u models.User) bool { return u.Role == models.RoleStudent }, models.Notification{
		Type:    models.NotifyNewEvent,
		Title:   "New Event Created",
		Message: fmt.Sprintf("%s has been scheduled!", evt.Title),
		EventID: evt.ID,
	})
	return evt, nil
}

// ListEvents returns every event in creation order.
func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	return docstore.Load[models.Event](ctx, s.store, docstore.Events)
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, id string) (models.Event, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return models.Event{}, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, nil
		}
	}
	return models.Event{}, apperr.NotFound("event not found")
}

// UpdateEvent applies the non-empty fields of patch to the event's details.
func (s *Service) UpdateEvent(ctx context.Context, id string, patch models.EventDetails) (models.Event, error) {
	var updated models.Event
	err := docstore.Mutate(ctx, s.store, docstore.Events, func(events []models.Event) ([]models.Event, error) {
		for i := range events {
			if events[i].ID != id {
				continue
			}
			events[i].EventDetails.Merge(patch)
			now := s.now().UTC()
			events[i].UpdatedAt = &now
			updated = events[i]
			return events, nil
		}
		return nil, apperr.NotFound("event not found")
	})
	return updated, err
}

// DeleteEvent removes an event and its attendance records.
func (s *Service) DeleteEvent(ctx context.Context, actorID, id string) error {
	var title string
	err := docstore.Mutate(ctx, s.store, docstore.Events, func(events []models.Event) ([]models.Event, error) {
		for i := range events {
			if events[i].ID == id {
				title = events[i].Title
				return append(events[:i], events[i+1:]...), nil
			}
		}
		return nil, apperr.NotFound("event not found")
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditEventDeleted, actorID, fmt.Sprintf("Deleted event: %s", title))
	return nil
}

// EventCode is the check-in code of an event in both renderings.
type EventCode struct {
	Code       string `json:"code"`
	QRCode     string `json:"qrCode"`
	EventID    string `json:"eventId"`
	EventTitle string `json:"eventTitle"`
}

// Code returns the persisted check-in code of an event.
func (s *Service) Code(ctx context.Context, id string) (EventCode, error) {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return EventCode{}, err
	}
	return EventCode{Code: e.ManualCode, QRCode: e.QRCode, EventID: e.ID, EventTitle: e.Title}, nil
}

// CheckIn records userID on the event as pending. Repeating it is a no-op:
// no second record, no second notification to the creator.
func (s *Service) CheckIn(ctx context.Context, eventID, userID string) (models.AttendanceRecord, CheckInResult, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return models.AttendanceRecord{}, CheckInResult{}, err
	}

	var (
		rec     models.AttendanceRecord
		evt     models.Event
		created bool
	)
	err = docstore.Mutate(ctx, s.store, docstore.Events, func(events []models.Event) ([]models.Event, error) {
		created = false
		for i := range events {
			if events[i].ID != eventID {
				continue
			}
			evt = events[i]
			if idx := events[i].Attendee(userID); idx >= 0 {
				rec = events[i].Attendees[idx]
				return nil, docstore.ErrNoChange
			}
			rec = models.AttendanceRecord{
				ID:        userID,
				Name:      displayName(user),
				Timestamp: s.now().UTC(),
				Status:    models.AttendancePending,
			}
			events[i].Attendees = append(events[i].Attendees, rec)
			created = true
			return events, nil
		}
		return nil, apperr.NotFound("event not found")
	})
	if err != nil {
		return models.AttendanceRecord{}, CheckInResult{}, err
	}

	if !created {
		metrics.CheckIns.WithLabelValues("event", "duplicate").Inc()
		return rec, CheckInResult{}, nil
	}
	metrics.CheckIns.WithLabelValues("event", "created").Inc()
	s.notifyUser(ctx, evt.CreatedBy, models.Notification{
		Type:    models.NotifyAttendanceMarked,
		Title:   "New Attendance",
		Message: fmt.Sprintf("%s marked attendance for %s", rec.Name, evt.Title),
		EventID: evt.ID,
	})
	return rec, CheckInResult{Created: true, XPGained: EventXP}, nil
}

// Approve moves userID's record on the event from pending to approved and
// notifies the user. Approving an approved record changes nothing.
func (s *Service) Approve(ctx context.Context, approverID, eventID, userID string) (models.AttendanceRecord, error) {
	var (
		rec     models.AttendanceRecord
		evt     models.Event
		changed bool
	)
	err := docstore.Mutate(ctx, s.store, docstore.Events, func(events []models.Event) ([]models.Event, error) {
		changed = false
		for i := range events {
			if events[i].ID != eventID {
				continue
			}
			evt = events[i]
			idx := events[i].Attendee(userID)
			if idx < 0 {
				return nil, apperr.NotFound("attendee not found")
			}
			if events[i].Attendees[idx].Status == models.AttendanceApproved {
				rec = events[i].Attendees[idx]
				return nil, docstore.ErrNoChange
			}
			events[i].Attendees[idx].Status = models.AttendanceApproved
			rec = events[i].Attendees[idx]
			changed = true
			return events, nil
		}
		return nil, apperr.NotFound("event not found")
	})
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	if !changed {
		metrics.Approvals.WithLabelValues("already_approved").Inc()
		return rec, nil
	}

	metrics.Approvals.WithLabelValues("approved").Inc()
	s.notifyUser(ctx, userID, models.Notification{
		Type:    models.NotifyAttendanceApproved,
		Title:   "Attendance Approved",
		Message: fmt.Sprintf("Your attendance for %s has been approved!", evt.Title),
		EventID: evt.ID,
	})
	s.audit.Record(ctx, models.AuditAttendanceApproved, approverID, fmt.Sprintf("Approved %s for %s", rec.Name, evt.Title))
	return rec, nil
}

// EventReport summarizes attendance on one event.
type EventReport struct {
	EventName      string                    `json:"eventName"`
	TotalAttendees int                       `json:"totalAttendees"`
	Approved       int                       `json:"approved"`
	Pending        int                       `json:"pending"`
	Attendees      []models.AttendanceRecord `json:"attendees"`
	GeneratedAt    time.Time                 `json:"generatedAt"`
}

func (s *Service) EventReport(ctx context.Context, id string) (EventReport, error) {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return EventReport{}, err
	}
	r := EventReport{
		EventName:      e.Title,
		TotalAttendees: len(e.Attendees),
		Attendees:      e.Attendees,
		GeneratedAt:    s.now().UTC(),
	}
	for _, a := range e.Attendees {
		switch a.Status {
		case models.AttendanceApproved:
			r.Approved++
		case models.AttendancePending:
			r.Pending++
		}
	}
	return r, nil
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
