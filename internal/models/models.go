package models

import "time"

// Role is a closed set of account roles.
type Role string

const (
	RoleStudent       Role = "student"
	RoleFaculty       Role = "faculty"
	RoleCoreCommittee Role = "core-committee"
	RoleAdmin         Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleCoreCommittee, RoleAdmin:
		return true
	}
	return false
}

// Profile holds the editable, descriptive user attributes.
type Profile struct {
	Name             string `json:"name"`
	RollNumber       string `json:"rollNumber"`
	Department       string `json:"department"`
	Year             string `json:"year"`
	Phone            string `json:"phone"`
	Designation      string `json:"designation"`
	Residence        string `json:"residence"`
	Position         string `json:"position"`
	Section          string `json:"section"`
	Course           string `json:"course"`
	ClassTeacher     string `json:"classTeacher"`
	ClassCoordinator string `json:"classCoordinator"`
	HOD              string `json:"hod"`
}

// Merge overwrites fields of p with the non-empty fields of patch.
// Empty strings in patch are ignored, so a field can never be cleared this way.
func (p *Profile) Merge(patch Profile) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.Name, patch.Name)
	set(&p.RollNumber, patch.RollNumber)
	set(&p.Department, patch.Department)
	set(&p.Year, patch.Year)
	set(&p.Phone, patch.Phone)
	set(&p.Designation, patch.Designation)
	set(&p.Residence, patch.Residence)
	set(&p.Position, patch.Position)
	set(&p.Section, patch.Section)
	set(&p.Course, patch.Course)
	set(&p.ClassTeacher, patch.ClassTeacher)
	set(&p.ClassCoordinator, patch.ClassCoordinator)
	set(&p.HOD, patch.HOD)
}

// User is the stored account record.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Profile
	Verified  bool       `json:"verified"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// PublicUser is a User without its password hash.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Profile
	Verified  bool       `json:"verified"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Profile:   u.Profile,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// AttendanceStatus is the approval state of an event attendance record.
type AttendanceStatus string

const (
	AttendancePending  AttendanceStatus = "pending"
	AttendanceApproved AttendanceStatus = "approved"
)

// AttendanceRecord is one user's check-in on an event. ID is the user id.
type AttendanceRecord struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Timestamp time.Time        `json:"timestamp"`
	Status    AttendanceStatus `json:"status"`
}

// EventDetails are the descriptive, editable fields of an event.
type EventDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Venue       string `json:"venue"`
	Category    string `json:"category"`
}

// Merge applies the non-empty fields of patch.
func (d *EventDetails) Merge(patch EventDetails) {
	if patch.Title != "" {
		d.Title = patch.Title
	}
	if patch.Description != "" {
		d.Description = patch.Description
	}
	if patch.Date != "" {
		d.Date = patch.Date
	}
	if patch.Time != "" {
		d.Time = patch.Time
	}
	if patch.Venue != "" {
		d.Venue = patch.Venue
	}
	if patch.Category != "" {
		d.Category = patch.Category
	}
}

type Event struct {
	ID string `json:"id"`
	EventDetails
	CreatedBy  string             `json:"createdBy"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  *time.Time         `json:"updatedAt,omitempty"`
	QRCode     string             `json:"qrCode"`
	ManualCode string             `json:"manualCode"`
	Attendees  []AttendanceRecord `json:"attendees"`
	Status     string             `json:"status"`
}

// Attendee returns the index of userID's record, or -1.
func (e *Event) Attendee(userID string) int {
	for i, a := range e.Attendees {
		if a.ID == userID {
			return i
		}
	}
	return -1
}

// SessionStatus is the lifecycle state of a practice session.
type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in-progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionInProgress, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// SessionAttendance is a recorded practice check-in. ID is the user id.
type SessionAttendance struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RollNumber string    `json:"rollNumber"`
	Timestamp  time.Time `json:"timestamp"`
}

type SessionDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Venue       string `json:"venue"`
	TeacherName string `json:"teacherName"`
}

type PracticeSession struct {
	ID string `json:"id"`
	SessionDetails
	CreatedBy  string              `json:"createdBy"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  *time.Time          `json:"updatedAt,omitempty"`
	QRCode     string              `json:"qrCode"`
	ManualCode string              `json:"manualCode"`
	Attendance []SessionAttendance `json:"attendance"`
	Status     SessionStatus       `json:"status"`
}

func (s *PracticeSession) Attended(userID string) bool {
	for _, a := range s.Attendance {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// Notification types.
const (
	NotifyNewEvent           = "new_event"
	NotifyAttendanceMarked   = "attendance_marked"
	NotifyAttendanceApproved = "attendance_approved"
	NotifyPracticeScheduled  = "practice_scheduled"
	NotifyPracticeAttendance = "practice_attendance"
	NotifyPracticeReport     = "practice_report"
	NotifyAnnouncement       = "announcement"
	NotifyRoleRequest        = "role_request"
	NotifyRoleApproved       = "role_approved"
)

type Notification struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	EventID        string    `json:"eventId,omitempty"`
	SessionID      string    `json:"sessionId,omitempty"`
	AnnouncementID string    `json:"announcementId,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type RoleRequest struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	UserName      string        `json:"userName"`
	CurrentRole   Role          `json:"currentRole"`
	RequestedRole Role          `json:"requestedRole"`
	Reason        string        `json:"reason"`
	Status        RequestStatus `json:"status"`
	ReviewedBy    string        `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time    `json:"reviewedAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Audit actions.
const (
	AuditUserRegistered      = "USER_REGISTERED"
	AuditUserUpdated         = "USER_UPDATED"
	AuditUserDeleted         = "USER_DELETED"
	AuditEventDeleted        = "EVENT_DELETED"
	AuditAttendanceApproved  = "ATTENDANCE_APPROVED"
	AuditRoleRequestReviewed = "ROLE_REQUEST_REVIEWED"
	AuditAnnouncementDeleted = "ANNOUNCEMENT_DELETED"
)

type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

type Announcement struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Priority      string     `json:"priority"`
	CreatedBy     string     `json:"createdBy"`
	CreatedByName string     `json:"createdByName"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

type ClubMember struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Club is read by the scorer; membership is managed elsewhere.
type Club struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Members []ClubMember `json:"members"`
}

func (c Club) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
