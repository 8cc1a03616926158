package visit

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rvaldez/porteria/internal/db"
)

func TestCreateAndGet(t *testing.T) {
	env := testSetup(t)

	rec, err := env.records.Create(Fields{
		NotificationID: "n-1",
		CommunityID:    env.communityID,
		HouseNumber:    "104",
		VisitorName:    "Juan Pérez",
		Reason:         "Delivery",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if rec.Status != StatusPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
	if rec.ResolvedAt != nil {
		t.Error("resolved_at should be nil")
	}

	byNotification, err := env.records.GetByNotificationID("n-1")
	if err != nil {
		t.Fatalf("get by notification: %v", err)
	}
	if byNotification.ID != rec.ID {
		t.Errorf("id = %d, want %d", byNotification.ID, rec.ID)
	}

	byRef, err := env.records.Get(Ref{ID: rec.ID})
	if err != nil {
		t.Fatalf("get by ref: %v", err)
	}
	if byRef.NotificationID != "n-1" {
		t.Errorf("notification id = %q, want n-1", byRef.NotificationID)
	}
}

func TestCreateDuplicateNotificationID(t *testing.T) {
	env := testSetup(t)

	fields := Fields{
		NotificationID: "n-dup",
		CommunityID:    env.communityID,
		HouseNumber:    "104",
		VisitorName:    "Juan",
	}
	if _, err := env.records.Create(fields); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := env.records.Create(fields)
	if !errors.Is(err, ErrDuplicateNotificationID) {
		t.Fatalf("err = %v, want ErrDuplicateNotificationID", err)
	}
}

func TestCreateWithoutNotificationID(t *testing.T) {
	env := testSetup(t)

	for i := 0; i < 2; i++ {
		rec, err := env.records.Create(Fields{
			CommunityID: env.communityID,
			HouseNumber: "104",
			VisitorName: "Walk Up",
			Status:      StatusAccepted,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if rec.NotificationID != "" {
			t.Errorf("notification id = %q, want empty", rec.NotificationID)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	env := testSetup(t)

	if _, err := env.records.GetByID(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := env.records.GetByNotificationID("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	env := testSetup(t)
	rec := env.createPending(t, "n-r1", "Juan", "Delivery")

	resolved, err := env.records.Resolve(rec.ID, StatusAccepted, "Maria", 7, time.Now())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusAccepted {
		t.Errorf("status = %q, want accepted", resolved.Status)
	}
	if resolved.ResolvedBy != "Maria" {
		t.Errorf("resolved_by = %q, want Maria", resolved.ResolvedBy)
	}
	if resolved.ResolvedByUserID != 7 {
		t.Errorf("resolved_by_user_id = %d, want 7", resolved.ResolvedByUserID)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved_at should be set")
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	env := testSetup(t)
	rec := env.createPending(t, "n-r2", "Juan", "Delivery")

	if _, err := env.records.Resolve(rec.ID, StatusAccepted, "Maria", 7, time.Now()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	_, err := env.records.Resolve(rec.ID, StatusRejected, "Pedro", 8, time.Now())
	var answered *AlreadyAnsweredError
	if !errors.As(err, &answered) {
		t.Fatalf("err = %v, want AlreadyAnsweredError", err)
	}
	if answered.Existing.Status != StatusAccepted {
		t.Errorf("existing status = %q, want accepted", answered.Existing.Status)
	}
	if answered.Existing.ResolvedBy != "Maria" {
		t.Errorf("existing resolver = %q, want Maria", answered.Existing.ResolvedBy)
	}

	// The stored record still carries the first resolution.
	got, err := env.records.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusAccepted || got.ResolvedBy != "Maria" {
		t.Errorf("record = %q by %q, want accepted by Maria", got.Status, got.ResolvedBy)
	}
}

func TestResolveNonTerminal(t *testing.T) {
	env := testSetup(t)
	rec := env.createPending(t, "n-r3", "Juan", "Delivery")

	if _, err := env.records.Resolve(rec.ID, StatusPending, "Maria", 7, time.Now()); err == nil {
		t.Fatal("expected error for non-terminal target status")
	}
}

func TestFindRecentDuplicate(t *testing.T) {
	env := testSetup(t)
	rec := env.createPending(t, "n-d1", "Juan", "Delivery")

	dup, err := env.records.FindRecentDuplicate(env.communityID, "104", "Juan", "Delivery", 5*time.Minute)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if dup == nil || dup.ID != rec.ID {
		t.Fatalf("dup = %+v, want record %d", dup, rec.ID)
	}

	// Different reason does not match.
	dup, err = env.records.FindRecentDuplicate(env.communityID, "104", "Juan", "Visit", 5*time.Minute)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if dup != nil {
		t.Errorf("dup = %+v, want nil for different reason", dup)
	}

	// Outside the window the record no longer matches.
	env.backdate(t, rec.ID, 5*time.Minute+time.Second)
	dup, err = env.records.FindRecentDuplicate(env.communityID, "104", "Juan", "Delivery", 5*time.Minute)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if dup != nil {
		t.Errorf("dup = %+v, want nil outside window", dup)
	}
}

func TestFindRecentDuplicateIgnoresResolved(t *testing.T) {
	env := testSetup(t)
	rec := env.createPending(t, "n-d2", "Juan", "Delivery")

	if _, err := env.records.Resolve(rec.ID, StatusRejected, "Maria", 7, time.Now()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	dup, err := env.records.FindRecentDuplicate(env.communityID, "104", "Juan", "Delivery", 5*time.Minute)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if dup != nil {
		t.Errorf("dup = %+v, want nil for resolved record", dup)
	}
}

func TestListPendingAndRescan(t *testing.T) {
	env := testSetup(t)
	env.createPending(t, "n-p1", "Juan", "Delivery")
	env.createPending(t, "n-p2", "Ana", "Visit")

	walkup, err := env.records.Create(Fields{
		CommunityID: env.communityID,
		HouseNumber: "104",
		VisitorName: "Walk Up",
	})
	if err != nil {
		t.Fatalf("create walk-up: %v", err)
	}

	pending, err := env.records.ListPending(env.communityID, "104")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("got %d pending, want 3", len(pending))
	}

	// Rescan only covers push-path records (with a notification id).
	rescan, err := env.records.RescanPending()
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(rescan) != 2 {
		t.Fatalf("got %d rescan records, want 2", len(rescan))
	}
	for _, rec := range rescan {
		if rec.ID == walkup.ID {
			t.Error("rescan should skip records without a notification id")
		}
	}
}

func TestDelete(t *testing.T) {
	env := testSetup(t)
	rec := env.createPending(t, "n-del", "Juan", "Delivery")

	if err := env.records.Delete(rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.records.GetByID(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after delete", err)
	}

	if err := env.records.Delete(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for second delete", err)
	}
}

// testEnv is the shared fixture for the visit package tests.
type testEnv struct {
	db          *sql.DB
	records     *Repository
	profiles    *ProfileRepository
	communityID int64
}

func testSetup(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	res, err := d.Exec("INSERT INTO communities (name) VALUES ('Test')")
	if err != nil {
		t.Fatalf("insert community: %v", err)
	}
	communityID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	if _, err := d.Exec("INSERT INTO houses (community_id, number) VALUES (?, '104')", communityID); err != nil {
		t.Fatalf("insert house: %v", err)
	}

	return &testEnv{
		db:          d,
		records:     NewRepository(d),
		profiles:    NewProfileRepository(d),
		communityID: communityID,
	}
}

func (env *testEnv) createPending(t *testing.T, notificationID, visitorName, reason string) *Record {
	t.Helper()
	rec, err := env.records.Create(Fields{
		NotificationID: notificationID,
		CommunityID:    env.communityID,
		HouseNumber:    "104",
		VisitorName:    visitorName,
		Reason:         reason,
	})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	return rec
}

// backdate shifts a record's creation time into the past.
func (env *testEnv) backdate(t *testing.T, id int64, age time.Duration) {
	t.Helper()
	if _, err := env.db.Exec(
		"UPDATE visit_records SET created_at = ? WHERE id = ?",
		time.Now().UTC().Add(-age), id,
	); err != nil {
		t.Fatalf("backdating record %d: %v", id, err)
	}
}
