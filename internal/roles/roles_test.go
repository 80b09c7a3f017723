package roles

import (
	"context"
	"errors"
	"sync/atomic"
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
)

type fixture struct {
	svc   *Service
	ids   *identity.Service
	hub   *notify.Hub
	audit *audit.Log
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b, err := docstore.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return newFixtureOn(t, b)
}

func newFixtureOn(t *testing.T, b docstore.Backend) fixture {
	t.Helper()
	store := docstore.New(b)
	users := []models.User{
		{ID: "admin1", Email: "a1@x.edu", Role: models.RoleAdmin, Profile: models.Profile{Name: "Admin One"}},
		{ID: "admin2", Email: "a2@x.edu", Role: models.RoleAdmin, Profile: models.Profile{Name: "Admin Two"}},
		{ID: "stu", Email: "s@x.edu", Role: models.RoleStudent, Profile: models.Profile{Name: "Stu", Phone: "111"}},
		{ID: "stu2", Email: "s2@x.edu", Role: models.RoleStudent, Profile: models.Profile{Name: "Stu Two"}},
	}
	err := docstore.Mutate(context.Background(), store, docstore.Users, func([]models.User) ([]models.User, error) { return users, nil })
	if err != nil {
		t.Fatal(err)
	}
	log := audit.New(store)
	ids := identity.NewService(store, auth.NewSigner("k", "campus", time.Hour), log, nil)
	hub := notify.NewHub(store, pubsub.NewInMemory(8))
	return fixture{svc: NewService(store, ids, hub, log), ids: ids, hub: hub, audit: log}
}

func (f fixture) count(t *testing.T, userID, typ string) int {
	t.Helper()
	list, err := f.hub.List(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, x := range list {
		if x.Type == typ {
			n++
		}
	}
	return n
}

func TestCreateNotifiesEveryAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.Create(ctx, "stu", models.RoleCoreCommittee, "I organise the fest")
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != models.RequestPending || req.CurrentRole != models.RoleStudent || req.UserName != "Stu" {
		t.Fatalf("request %+v", req)
	}
	for _, id := range []string{"admin1", "admin2"} {
		if n := f.count(t, id, models.NotifyRoleRequest); n != 1 {
			t.Fatalf("%s got %d role_request notifications", id, n)
		}
	}

	if _, err := f.svc.Create(ctx, "stu", models.RoleFaculty, ""); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second pending request: got %v", err)
	}
	if _, err := f.svc.Create(ctx, "stu", "wizard", ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad role: got %v", err)
	}
	if _, err := f.svc.Create(ctx, "admin1", models.RoleAdmin, ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("same role: got %v", err)
	}
}

func TestReviewApprovesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Create(ctx, "stu", models.RoleFaculty, "")

	got, err := f.svc.Review(ctx, "admin1", req.ID, models.RequestApproved)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReviewedBy != "admin1" || got.ReviewedAt == nil {
		t.Fatalf("review metadata missing: %+v", got)
	}
	role, _ := f.ids.CurrentRole(ctx, "stu")
	if role != models.RoleFaculty {
		t.Fatalf("role = %q after approval", role)
	}

	if _, err := f.svc.Review(ctx, "admin2", req.ID, models.RequestApproved); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second review: got %v", err)
	}
	if n := f.count(t, "stu", models.NotifyRoleApproved); n != 1 {
		t.Fatalf("role_approved sent %d times", n)
	}
	entries, _ := f.audit.Recent(ctx, 0)
	if len(entries) == 0 || entries[0].Action != models.AuditRoleRequestReviewed {
		t.Fatalf("audit %+v", entries)
	}
}

func TestReviewRejectKeepsRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.svc.Create(ctx, "stu", models.RoleFaculty, "")

	if _, err := f.svc.Review(ctx, "admin1", req.ID, "maybe"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad status: got %v", err)
	}
	if _, err := f.svc.Review(ctx, "admin1", req.ID, models.RequestRejected); err != nil {
		t.Fatal(err)
	}
	role, _ := f.ids.CurrentRole(ctx, "stu")
	if role != models.RoleStudent {
		t.Fatalf("rejected request changed role to %q", role)
	}
	if n := f.count(t, "stu", models.NotifyRoleApproved); n != 0 {
		t.Fatalf("rejection sent role_approved")
	}
	if _, err := f.svc.Review(ctx, "admin1", "missing", models.RequestApproved); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing request: got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }
	first, _ := f.svc.Create(ctx, "stu", models.RoleFaculty, "")
	f.svc.now = func() time.Time { return base.Add(time.Minute) }
	second, _ := f.svc.Create(ctx, "admin1", models.RoleFaculty, "")

	list, err := f.svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("order %+v", list)
	}
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.UpdateUser(ctx, "admin1", "stu", UserPatch{Role: models.RoleCoreCommittee, Profile: models.Profile{Department: "ME"}})
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != models.RoleCoreCommittee || u.Department != "ME" || u.Phone != "111" || u.Name != "Stu" {
		t.Fatalf("updated %+v", u)
	}
	if _, err := f.svc.UpdateUser(ctx, "admin1", "stu", UserPatch{Role: "king"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad role: got %v", err)
	}
	if _, err := f.svc.UpdateUser(ctx, "admin1", "nobody", UserPatch{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing user: got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.DeleteUser(ctx, "admin1", "admin1"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("self delete: got %v", err)
	}
	if err := f.svc.DeleteUser(ctx, "admin1", "stu"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ids.Get(ctx, "stu"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("deleted user still present: %v", err)
	}
	users, _ := f.svc.ListUsers(ctx)
	if len(users) != 3 {
		t.Fatalf("ListUsers = %d", len(users))
	}
	entries, _ := f.audit.Recent(ctx, 1)
	if len(entries) != 1 || entries[0].Action != models.AuditUserDeleted {
		t.Fatalf("audit %+v", entries)
	}
}

func TestRoleChangesNeedAnAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.UpdateUser(ctx, "admin1", "stu", UserPatch{Role: models.RoleCoreCommittee}); err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		actor, target string
		patch         UserPatch
		want          apperr.Kind
	}{
		"committee promotes itself":  {"stu", "stu", UserPatch{Role: models.RoleAdmin}, apperr.KindAuthorization},
		"committee promotes another": {"stu", "stu2", UserPatch{Role: models.RoleFaculty}, apperr.KindAuthorization},
		"committee edits an admin":   {"stu", "admin1", UserPatch{Profile: models.Profile{Name: "pwned"}}, apperr.KindAuthorization},
		"admin changes own role":     {"admin1", "admin1", UserPatch{Role: models.RoleStudent}, apperr.KindValidation},
		"deleted actor":              {"ghost", "stu2", UserPatch{Profile: models.Profile{Name: "x"}}, apperr.KindAuthorization},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.UpdateUser(ctx, c.actor, c.target, c.patch)
			if apperr.KindOf(err) != c.want {
				t.Fatalf("got %v, want %v", err, c.want)
			}
		})
	}

	for id, want := range map[string]models.Role{"stu": models.RoleCoreCommittee, "stu2": models.RoleStudent, "admin1": models.RoleAdmin} {
		if role, _ := f.ids.CurrentRole(ctx, id); role != want {
			t.Fatalf("%s role = %q, want %q", id, role, want)
		}
	}
	if u, _ := f.ids.Get(ctx, "admin1"); u.Name != "Admin One" {
		t.Fatalf("admin profile edited by committee: %+v", u.Profile)
	}

	// Profile edits of non-admins stay open to committee members.
	if _, err := f.svc.UpdateUser(ctx, "stu", "stu2", UserPatch{Profile: models.Profile{Department: "EEE"}}); err != nil {
		t.Fatalf("committee profile edit: %v", err)
	}
	if err := f.svc.DeleteUser(ctx, "stu", "admin1"); apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("committee deletes admin: got %v", err)
	}
}

// failingUsers fails writes to the users collection while fail is set.
type failingUsers struct {
	docstore.Backend
	fail atomic.Bool
}

func (b *failingUsers) Save(ctx context.Context, coll string, data []byte, base int64) (int64, error) {
	if coll == docstore.Users && b.fail.Load() {
		return 0, errors.New("disk full")
	}
	return b.Backend.Save(ctx, coll, data, base)
}

func TestReviewCanBeRetriedAfterRoleWriteFails(t *testing.T) {
	fb, err := docstore.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b := &failingUsers{Backend: fb}
	f := newFixtureOn(t, b)
	ctx := context.Background()
	req, err := f.svc.Create(ctx, "stu", models.RoleFaculty, "")
	if err != nil {
		t.Fatal(err)
	}

	b.fail.Store(true)
	if _, err := f.svc.Review(ctx, "admin1", req.ID, models.RequestApproved); err == nil {
		t.Fatal("review should report the failed role write")
	}
	list, _ := f.svc.List(ctx)
	if list[0].Status != models.RequestPending || list[0].ReviewedBy != "" {
		t.Fatalf("request not reopened: %+v", list[0])
	}
	if n := f.count(t, "stu", models.NotifyRoleApproved); n != 0 {
		t.Fatalf("role_approved sent for a failed approval")
	}

	b.fail.Store(false)
	if _, err := f.svc.Review(ctx, "admin1", req.ID, models.RequestApproved); err != nil {
		t.Fatalf("retry: %v", err)
	}
	role, _ := f.ids.CurrentRole(ctx, "stu")
	if role != models.RoleFaculty {
		t.Fatalf("role = %q after retried approval", role)
	}
	if n := f.count(t, "stu", models.NotifyRoleApproved); n != 1 {
		t.Fatalf("role_approved sent %d times", n)
	}
}
