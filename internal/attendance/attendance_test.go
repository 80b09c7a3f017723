package attendance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"campusconnect/internal/apperr"
	"campusconnect/internal/audit"
	"campusconnect/internal/auth"
	"campusconnect/internal/docstore"
	"campusconnect/internal/identity"
	"campusconnect/internal/models"
	"campusconnect/internal/notify"
	"campusconnect/internal/pubsub"
	"campusconnect/internal/verification"
)

type fixture struct {
	svc   *Service
	store *docstore.Store
	hub   *notify.Hub
}

func newFixture(t *testing.T, users ...models.User) fixture {
	t.Helper()
	b, err := docstore.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := docstore.New(b)
	ctx := context.Background()
	if len(users) > 0 {
		err := docstore.Mutate(ctx, store, docstore.Users, func([]models.User) ([]models.User, error) {
			return users, nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	log := audit.New(store)
	ids := identity.NewService(store, auth.NewSigner("k", "campus", time.Hour), log, nil)
	hub := notify.NewHub(store, pubsub.NewInMemory(16))
	return fixture{svc: NewService(store, ids, hub, log), store: store, hub: hub}
}

func user(id string, role models.Role, teacher string) models.User {
	return models.User{
		ID:      id,
		Email:   id + "@x.edu",
		Role:    role,
		Profile: models.Profile{Name: strings.ToUpper(id), ClassTeacher: teacher, RollNumber: "R-" + id},
	}
}

func (f fixture) notifications(t *testing.T, userID, typ string) []models.Notification {
	t.Helper()
	list, err := f.hub.List(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	var out []models.Notification
	for _, n := range list {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestCreateEventNotifiesStudentsOnly(t *testing.T) {
	f := newFixture(t, user("fac", models.RoleFaculty, ""), user("s1", models.RoleStudent, ""), user("s2", models.RoleStudent, ""))
	evt, err := f.svc.CreateEvent(context.Background(), "fac", models.EventDetails{Title: "Hackathon", Date: "2024-03-01"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(evt.QRCode, "data:image/png;base64,") {
		t.Fatalf("qr code not rendered: %.40s", evt.QRCode)
	}
	code, err := verification.Parse(evt.ManualCode)
	if err != nil || code.Expect(verification.TypeAttendance, evt.ID) != nil {
		t.Fatalf("manual code %q does not name the event: %v", evt.ManualCode, err)
	}
	for _, id := range []string{"s1", "s2"} {
		if got := f.notifications(t, id, models.NotifyNewEvent); len(got) != 1 || got[0].EventID != evt.ID {
			t.Fatalf("%s new_event notifications = %+v", id, got)
		}
	}
	if got := f.notifications(t, "fac", models.NotifyNewEvent); len(got) != 0 {
		t.Fatalf("faculty should not be told about their own event: %+v", got)
	}

	if _, err := f.svc.CreateEvent(context.Background(), "fac", models.EventDetails{}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("want validation error for empty title, got %v", err)
	}
}

func TestCheckInIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user("fac", models.RoleFaculty, ""), user("s1", models.RoleStudent, ""))
	evt, _ := f.svc.CreateEvent(ctx, "fac", models.EventDetails{Title: "Talk"})

	for i := 0; i < 3; i++ {
		rec, res, err := f.svc.CheckIn(ctx, evt.ID, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Status != models.AttendancePending || rec.Name != "S1" {
			t.Fatalf("record %+v", rec)
		}
		if wantCreated := i == 0; res.Created != wantCreated {
			t.Fatalf("attempt %d: created=%v", i, res.Created)
		}
		if i == 0 && res.XPGained != EventXP {
			t.Fatalf("xp = %d", res.XPGained)
		}
	}

	got, _ := f.svc.GetEvent(ctx, evt.ID)
	if len(got.Attendees) != 1 {
		t.Fatalf("attendees = %d, want 1", len(got.Attendees))
	}
	if n := f.notifications(t, "fac", models.NotifyAttendanceMarked); len(n) != 1 {
		t.Fatalf("creator got %d attendance_marked, want 1", len(n))
	}
}

func TestConcurrentCheckInsKeepEveryRecord(t *testing.T) {
	ctx := context.Background()
	const k = 25
	users := []models.User{user("fac", models.RoleFaculty, "")}
	for i := 0; i < k; i++ {
		users = append(users, user(fmt.Sprintf("s%d", i), models.RoleStudent, ""))
	}
	f := newFixture(t, users...)
	evt, _ := f.svc.CreateEvent(ctx, "fac", models.EventDetails{Title: "Fest"})

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, _, err := f.svc.CheckIn(ctx, evt.ID, id); err != nil {
				t.Errorf("check-in %s: %v", id, err)
			}
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()

	got, _ := f.svc.GetEvent(ctx, evt.ID)
	if len(got.Attendees) != k {
		t.Fatalf("attendees = %d, want %d", len(got.Attendees), k)
	}
}

func TestCheckInUnknownEvent(t *testing.T) {
	f := newFixture(t, user("s1", models.RoleStudent, ""))
	if _, _, err := f.svc.CheckIn(context.Background(), "nope", "s1"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestApproveOnceNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user("fac", models.RoleFaculty, ""), user("s1", models.RoleStudent, ""))
	evt, _ := f.svc.CreateEvent(ctx, "fac", models.EventDetails{Title: "Workshop"})
	f.svc.CheckIn(ctx, evt.ID, "s1")

	for i := 0; i < 2; i++ {
		rec, err := f.svc.Approve(ctx, "fac", evt.ID, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Status != models.AttendanceApproved {
			t.Fatalf("status = %q", rec.Status)
		}
	}
	n := f.notifications(t, "s1", models.NotifyAttendanceApproved)
	if len(n) != 1 || !strings.Contains(n[0].Message, "Workshop") {
		t.Fatalf("attendance_approved notifications = %+v", n)
	}
	entries, _ := audit.New(f.store).Recent(ctx, 10)
	approvals := 0
	for _, e := range entries {
		if e.Action == models.AuditAttendanceApproved {
			approvals++
		}
	}
	if approvals != 1 {
		t.Fatalf("audit approvals = %d, want 1", approvals)
	}

	if _, err := f.svc.Approve(ctx, "fac", evt.ID, "ghost"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing attendee: got %v", err)
	}
	if _, err := f.svc.Approve(ctx, "fac", "nope", "s1"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing event: got %v", err)
	}
}

func TestEventReportCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user("fac", models.RoleFaculty, ""), user("s1", models.RoleStudent, ""), user("s2", models.RoleStudent, ""))
	evt, _ := f.svc.CreateEvent(ctx, "fac", models.EventDetails{Title: "Quiz"})
	f.svc.CheckIn(ctx, evt.ID, "s1")
	f.svc.CheckIn(ctx, evt.ID, "s2")
	f.svc.Approve(ctx, "fac", evt.ID, "s2")

	r, err := f.svc.EventReport(ctx, evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.EventName != "Quiz" || r.TotalAttendees != 2 || r.Approved != 1 || r.Pending != 1 {
		t.Fatalf("report %+v", r)
	}
}

func TestUpdateAndDeleteEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user("fac", models.RoleFaculty, ""))
	evt, _ := f.svc.CreateEvent(ctx, "fac", models.EventDetails{Title: "Old", Venue: "Hall A"})

	updated, err := f.svc.UpdateEvent(ctx, evt.ID, models.EventDetails{Title: "New"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "New" || updated.Venue != "Hall A" || updated.UpdatedAt == nil {
		t.Fatalf("updated %+v", updated)
	}

	if err := f.svc.DeleteEvent(ctx, "fac", evt.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GetEvent(ctx, evt.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("deleted event still readable: %v", err)
	}
	if err := f.svc.DeleteEvent(ctx, "fac", evt.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCreateSessionNotifiesTeachersStudents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		user("fac", models.RoleFaculty, ""),
		user("s1", models.RoleStudent, "Mr. Rao"),
		user("s2", models.RoleStudent, "Ms. Iyer"),
	)
	sess, err := f.svc.CreateSession(ctx, "fac", models.SessionDetails{Date: "2024-03-02", Time: "10:00", TeacherName: "Mr. Rao"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != models.SessionScheduled {
		t.Fatalf("status = %q", sess.Status)
	}
	n := f.notifications(t, "s1", models.NotifyPracticeScheduled)
	if len(n) != 1 || n[0].Message != "Practice session on 2024-03-02 at 10:00" || n[0].SessionID != sess.ID {
		t.Fatalf("s1 notifications %+v", n)
	}
	if n := f.notifications(t, "s2", models.NotifyPracticeScheduled); len(n) != 0 {
		t.Fatalf("other teacher's student notified: %+v", n)
	}
}

func TestListSessionsVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		user("fac1", models.RoleFaculty, ""),
		user("fac2", models.RoleFaculty, ""),
		user("s1", models.RoleStudent, "Mr. Rao"),
		user("s2", models.RoleStudent, ""),
		user("cc", models.RoleCoreCommittee, ""),
	)
	a, _ := f.svc.CreateSession(ctx, "fac1", models.SessionDetails{Date: "d1", TeacherName: "Mr. Rao"})
	f.svc.CreateSession(ctx, "fac2", models.SessionDetails{Date: "d2", TeacherName: "Ms. Iyer"})

	cases := []struct {
		viewer Viewer
		want   int
	}{
		{Viewer{"s1", models.RoleStudent}, 1},
		{Viewer{"s2", models.RoleStudent}, 0},
		{Viewer{"fac1", models.RoleFaculty}, 1},
		{Viewer{"cc", models.RoleCoreCommittee}, 2},
		{Viewer{"root", models.RoleAdmin}, 2},
	}
	for _, c := range cases {
		got, err := f.svc.ListSessions(ctx, c.viewer)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != c.want {
			t.Errorf("%s sees %d sessions, want %d", c.viewer.UserID, len(got), c.want)
		}
	}
	got, _ := f.svc.ListSessions(ctx, Viewer{"s1", models.RoleStudent})
	if got[0].ID != a.ID {
		t.Fatalf("student saw the wrong session")
	}
}

func TestSessionCheckInAndCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user("fac", models.RoleFaculty, ""), user("s1", models.RoleStudent, "T"), user("s2", models.RoleStudent, "T"))
	sess, _ := f.svc.CreateSession(ctx, "fac", models.SessionDetails{Date: "d", TeacherName: "T"})

	for _, id := range []string{"s1", "s2", "s1"} {
		if _, _, err := f.svc.CheckInSession(ctx, sess.ID, id); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.notifications(t, "fac", models.NotifyPracticeAttendance); len(n) != 2 {
		t.Fatalf("practice_attendance = %d, want 2", len(n))
	}

	if _, err := f.svc.SetSessionStatus(ctx, sess.ID, "paused"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("invalid status: got %v", err)
	}
	if _, err := f.svc.SetSessionStatus(ctx, sess.ID, models.SessionInProgress); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.SetSessionStatus(ctx, sess.ID, models.SessionCompleted); err != nil {
			t.Fatal(err)
		}
	}
	n := f.notifications(t, "fac", models.NotifyPracticeReport)
	if len(n) != 1 || n[0].Message != "2 students attended the practice session" {
		t.Fatalf("practice_report = %+v", n)
	}

	r, err := f.svc.SessionReport(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalAttendance != 2 || r.Status != models.SessionCompleted {
		t.Fatalf("report %+v", r)
	}
}

func TestRedeemDispatchesOnCodeType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user("fac", models.RoleFaculty, ""), user("s1", models.RoleStudent, "T"))
	evt, _ := f.svc.CreateEvent(ctx, "fac", models.EventDetails{Title: "E"})
	sess, _ := f.svc.CreateSession(ctx, "fac", models.SessionDetails{Date: "d", TeacherName: "T"})

	r, err := f.svc.Redeem(ctx, evt.ManualCode, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if r.ResourceType != verification.TypeAttendance || !r.Created || r.XPGained != EventXP {
		t.Fatalf("event redemption %+v", r)
	}
	r, err = f.svc.Redeem(ctx, sess.ManualCode, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if r.ResourceType != verification.TypePractice || !r.Created || r.XPGained != PracticeXP {
		t.Fatalf("session redemption %+v", r)
	}

	if _, err := f.svc.Redeem(ctx, "not json", "s1"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("garbage code: got %v", err)
	}
	forged := verification.Issue("missing", verification.TypeAttendance).String()
	if _, err := f.svc.Redeem(ctx, forged, "s1"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown event code: got %v", err)
	}
}
