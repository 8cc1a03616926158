package visit

import (
	"testing"
	"time"
)

func TestSchedulerExpires(t *testing.T) {
	env := testSetup(t)
	fanout := &fakeFanout{}
	sinks := &fakeSinks{}
	sched := NewScheduler(env.records, fanout, sinks, 30*time.Millisecond)

	rec := env.createPending(t, "n-s1", "Juan", "Delivery")
	sched.Arm("n-s1")

	waitForStatus(t, env, rec.ID, StatusExpired)

	got, err := env.records.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResolvedBy != SystemResolver {
		t.Errorf("resolved_by = %q, want %q", got.ResolvedBy, SystemResolver)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at should be set")
	}

	events := fanout.published()
	if len(events) != 1 || events[0].event != EventExpired {
		t.Fatalf("events = %+v, want one %s", events, EventExpired)
	}
	if sinks.updatedCount() != 1 {
		t.Errorf("sink updates = %d, want 1", sinks.updatedCount())
	}
}

func TestSchedulerSkipsAnswered(t *testing.T) {
	env := testSetup(t)
	fanout := &fakeFanout{}
	sched := NewScheduler(env.records, fanout, nil, 40*time.Millisecond)

	rec := env.createPending(t, "n-s2", "Juan", "Delivery")
	sched.Arm("n-s2")

	// Resolve before the timer fires; the human decision must stand.
	if _, err := env.records.Resolve(rec.ID, StatusAccepted, "Maria", 7, time.Now()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	got, err := env.records.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusAccepted || got.ResolvedBy != "Maria" {
		t.Errorf("record = %q by %q, want accepted by Maria", got.Status, got.ResolvedBy)
	}
	if events := fanout.published(); len(events) != 0 {
		t.Errorf("events = %+v, want none for an answered record", events)
	}
}

func TestSchedulerMissingRecord(t *testing.T) {
	env := testSetup(t)
	sched := NewScheduler(env.records, nil, nil, 10*time.Millisecond)

	// Arming an unknown notification must not panic.
	sched.Arm("never-stored")
	time.Sleep(50 * time.Millisecond)
}

func TestArmPending(t *testing.T) {
	env := testSetup(t)
	sched := NewScheduler(env.records, nil, nil, 40*time.Millisecond)

	fresh := env.createPending(t, "n-s3", "Juan", "Delivery")
	overdue := env.createPending(t, "n-s4", "Ana", "Visit")
	env.backdate(t, overdue.ID, time.Hour)

	if err := sched.ArmPending(); err != nil {
		t.Fatalf("arm pending: %v", err)
	}

	// The overdue record expires immediately, the fresh one after its
	// remaining window.
	waitForStatus(t, env, overdue.ID, StatusExpired)
	waitForStatus(t, env, fresh.ID, StatusExpired)
}

func TestArmPendingSkipsWalkUps(t *testing.T) {
	env := testSetup(t)
	sched := NewScheduler(env.records, nil, nil, 10*time.Millisecond)

	walkup, err := env.records.Create(Fields{
		CommunityID: env.communityID,
		HouseNumber: "104",
		VisitorName: "Walk Up",
	})
	if err != nil {
		t.Fatalf("create walk-up: %v", err)
	}

	if err := sched.ArmPending(); err != nil {
		t.Fatalf("arm pending: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	got, err := env.records.GetByID(walkup.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want walk-up to stay pending", got.Status)
	}
}

func waitForStatus(t *testing.T, env *testEnv, id int64, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := env.records.GetByID(id)
		if err != nil {
			t.Fatalf("get record %d: %v", id, err)
		}
		if rec.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("record %d never reached status %q", id, want)
}
