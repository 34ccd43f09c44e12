package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/storage"
)

func TestSweepOverdue_Boundaries(t *testing.T) {
	ctx := context.Background()

	t.Run("sent exactly a day ago is eligible", func(t *testing.T) {
		env := setupTestServices(t, Options{}, nil)
		g := env.newGroup(t, "u1", 5)
		onTime := env.join(t, g, "u2")
		late := env.join(t, g, "u3")

		env.send(t, g, onTime)
		env.clock.Set(t0.Add(time.Second))
		env.send(t, g, late)

		result, err := env.access.SweepOverdue(ctx, t0.Add(24*time.Hour))
		if err != nil {
			t.Fatalf("SweepOverdue failed: %v", err)
		}
		if len(result.Marked) != 1 || result.Marked[0].MembershipID != onTime.ID {
			t.Fatalf("expected only %s marked, got %+v", onTime.ID, result.Marked)
		}
		if got := env.membership(t, late.ID); got.AccessDataStatus != models.AccessSent {
			t.Errorf("row sent one second later must stay SENT, got %s", got.AccessDataStatus)
		}
	})

	t.Run("pending for three days is eligible", func(t *testing.T) {
		env := setupTestServices(t, Options{}, nil)
		g := env.newGroup(t, "u1", 5)
		old := env.join(t, g, "u2")
		env.clock.Set(t0.Add(time.Second))
		young := env.join(t, g, "u3")

		result, err := env.access.SweepOverdue(ctx, t0.Add(72*time.Hour))
		if err != nil {
			t.Fatalf("SweepOverdue failed: %v", err)
		}
		if len(result.Marked) != 1 || result.Marked[0].MembershipID != old.ID {
			t.Fatalf("expected only %s marked, got %+v", old.ID, result.Marked)
		}
		if result.Marked[0].PreviousStatus != models.AccessPending {
			t.Errorf("expected previous status PENDING, got %s", result.Marked[0].PreviousStatus)
		}
		if got := env.membership(t, young.ID); got.AccessDataStatus != models.AccessPending {
			t.Errorf("younger row must stay PENDING, got %s", got.AccessDataStatus)
		}
	})

	t.Run("windows are configurable", func(t *testing.T) {
		env := setupTestServices(t, Options{}, nil)
		env.access.windows.SentGrace = time.Hour
		g := env.newGroup(t, "u1", 5)
		m := env.join(t, g, "u2")
		env.send(t, g, m)

		result, err := env.access.SweepOverdue(ctx, t0.Add(time.Hour))
		if err != nil {
			t.Fatalf("SweepOverdue failed: %v", err)
		}
		if len(result.Marked) != 1 {
			t.Errorf("expected 1 marked with a one hour grace, got %d", len(result.Marked))
		}
	})
}

func TestSweepOverdue_Idempotent(t *testing.T) {
	env := setupTestServices(t, Options{}, nil)
	ctx := context.Background()

	g := env.newGroup(t, "u1", 5)
	sent := env.join(t, g, "u2")
	pending := env.join(t, g, "u3")
	env.send(t, g, sent)

	now := t0.Add(80 * time.Hour)
	first, err := env.access.SweepOverdue(ctx, now)
	if err != nil {
		t.Fatalf("first SweepOverdue failed: %v", err)
	}
	if len(first.Marked) != 2 || len(first.AlreadyOverdue) != 0 {
		t.Fatalf("unexpected first run: %+v", first)
	}
	versions := map[string]int64{
		sent.ID:    env.membership(t, sent.ID).Version,
		pending.ID: env.membership(t, pending.ID).Version,
	}

	second, err := env.access.SweepOverdue(ctx, now)
	if err != nil {
		t.Fatalf("second SweepOverdue failed: %v", err)
	}
	if len(second.Marked) != 0 {
		t.Errorf("second run must not write, marked %+v", second.Marked)
	}
	if len(second.AlreadyOverdue) != 2 || second.Count() != first.Count() {
		t.Errorf("second run should report both rows, got %+v", second)
	}
	for id, v := range versions {
		got := env.membership(t, id)
		if got.Version != v || got.AccessDataStatus != models.AccessOverdue {
			t.Errorf("row %s changed on second run: %+v", id, got)
		}
	}

	if v := testutil.ToFloat64(env.metrics.SweepMarked); v != 2 {
		t.Errorf("expected 2 marked in total, got %v", v)
	}
	if v := testutil.ToFloat64(env.metrics.SweepRuns.WithLabelValues("ok")); v != 2 {
		t.Errorf("expected 2 runs, got %v", v)
	}
}

// staleSweepStore puts an outdated copy of a membership in the sweep's
// candidate list, as if the row changed between the select and the update.
// The copy replaces the current row when that is a candidate too.
type staleSweepStore struct {
	storage.Store
	stale *models.Membership
}

func (s *staleSweepStore) WithTransaction(ctx context.Context, fn func(tx storage.Queries) error) error {
	return s.Store.WithTransaction(ctx, func(tx storage.Queries) error {
		return fn(staleSweepTx{Queries: tx, stale: s.stale})
	})
}

type staleSweepTx struct {
	storage.Queries
	stale *models.Membership
}

func (tx staleSweepTx) FindSweepCandidates(ctx context.Context, sentBefore, createdBefore time.Time) ([]*models.Membership, error) {
	candidates, err := tx.Queries.FindSweepCandidates(ctx, sentBefore, createdBefore)
	if err != nil || tx.stale == nil {
		return candidates, err
	}
	for i, m := range candidates {
		if m.ID == tx.stale.ID {
			candidates[i] = tx.stale
			return candidates, nil
		}
	}
	return append(candidates, tx.stale), nil
}

func TestSweepOverdue_ReportsRowsThatChanged(t *testing.T) {
	var wrapped *staleSweepStore
	env := setupTestServices(t, Options{}, func(s storage.Store) storage.Store {
		wrapped = &staleSweepStore{Store: s}
		return wrapped
	})
	ctx := context.Background()

	g := env.newGroup(t, "u1", 5)
	m := env.join(t, g, "u2")
	env.send(t, g, m)
	stale := env.membership(t, m.ID)

	env.clock.Set(t0.Add(23 * time.Hour))
	env.send(t, g, m)
	wrapped.stale = stale

	result, err := env.access.SweepOverdue(ctx, t0.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("SweepOverdue failed: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0].MembershipID != m.ID {
		t.Fatalf("expected the re-sent row in Failed, got %+v", result)
	}
	if len(result.Marked) != 0 {
		t.Errorf("expected nothing marked, got %+v", result.Marked)
	}
	if got := env.membership(t, m.ID); got.AccessDataStatus != models.AccessSent {
		t.Errorf("re-sent row must stay SENT, got %s", got.AccessDataStatus)
	}
	if v := testutil.ToFloat64(env.metrics.SweepFailedRows); v != 1 {
		t.Errorf("expected 1 failed row counted, got %v", v)
	}
}

func TestSweepOverdue_OverlappingSweepReportsAlreadyOverdue(t *testing.T) {
	var wrapped *staleSweepStore
	env := setupTestServices(t, Options{}, func(s storage.Store) storage.Store {
		wrapped = &staleSweepStore{Store: s}
		return wrapped
	})
	ctx := context.Background()

	g := env.newGroup(t, "u1", 5)
	m := env.join(t, g, "u2")
	env.send(t, g, m)
	sent := env.membership(t, m.ID)

	first, err := env.access.SweepOverdue(ctx, t0.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("first SweepOverdue failed: %v", err)
	}
	if len(first.Marked) != 1 {
		t.Fatalf("expected the first sweep to mark the row, got %+v", first)
	}

	// The second sweep read the row while it was still SENT.
	wrapped.stale = sent
	second, err := env.access.SweepOverdue(ctx, t0.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("second SweepOverdue failed: %v", err)
	}
	if len(second.Failed) != 0 {
		t.Errorf("expected no failed rows, got %+v", second.Failed)
	}
	if len(second.AlreadyOverdue) != 1 || second.AlreadyOverdue[0].MembershipID != m.ID {
		t.Fatalf("expected the row reported as already overdue, got %+v", second)
	}
	if second.AlreadyOverdue[0].PreviousStatus != models.AccessOverdue {
		t.Errorf("PreviousStatus = %s, want OVERDUE", second.AlreadyOverdue[0].PreviousStatus)
	}
	if second.Count() != first.Count() {
		t.Errorf("Count() = %d, want %d", second.Count(), first.Count())
	}
	if v := testutil.ToFloat64(env.metrics.SweepFailedRows); v != 0 {
		t.Errorf("expected no failed rows counted, got %v", v)
	}
}
