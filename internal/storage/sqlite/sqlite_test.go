package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/storage"
	"github.com/mmynk/streamshare/internal/storage/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "streamshare-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedGroup(t *testing.T, store *sqlstore.Store, ownerID string) *models.Group {
	t.Helper()
	ctx := context.Background()

	group := &models.Group{Name: "Family", MaxMembers: 4, CreatedBy: ownerID, CreatedAt: t0}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	owner := &models.Membership{GroupID: group.ID, UserID: ownerID, Role: models.RoleOwner, CreatedAt: t0}
	if err := store.CreateMembership(ctx, owner); err != nil {
		t.Fatalf("CreateMembership failed: %v", err)
	}
	return group
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateGroup generates ID", func(t *testing.T) {
		group := seedGroup(t, store, "owner-1")
		if group.ID == "" {
			t.Error("Expected group ID to be generated")
		}

		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != "Family" || got.MaxMembers != 4 || !got.CreatedAt.Equal(t0) {
			t.Errorf("unexpected group: %+v", got)
		}
	})

	t.Run("GetGroup returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "nonexistent-id")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("owner membership is untracked", func(t *testing.T) {
		group := seedGroup(t, store, "owner-2")
		m, err := store.FindMembership(ctx, group.ID, "owner-2")
		if err != nil {
			t.Fatalf("FindMembership failed: %v", err)
		}
		if m.Role != models.RoleOwner {
			t.Errorf("Role = %s, want OWNER", m.Role)
		}
		if m.AccessDataStatus != models.AccessUntracked {
			t.Errorf("AccessDataStatus = %q, want untracked", m.AccessDataStatus)
		}
	})

	t.Run("duplicate membership", func(t *testing.T) {
		group := seedGroup(t, store, "owner-3")
		err := store.CreateMembership(ctx, &models.Membership{GroupID: group.ID, UserID: "owner-3", Role: models.RoleMember})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("UpdateMembership detects stale version", func(t *testing.T) {
		group := seedGroup(t, store, "owner-4")
		deadline := t0.Add(24 * time.Hour)
		m := &models.Membership{
			GroupID: group.ID, UserID: "member-4", Role: models.RoleMember,
			AccessDataStatus: models.AccessPending, AccessDataDeadline: &deadline, CreatedAt: t0,
		}
		if err := store.CreateMembership(ctx, m); err != nil {
			t.Fatalf("CreateMembership failed: %v", err)
		}

		first, _ := store.GetMembership(ctx, m.ID)
		second, _ := store.GetMembership(ctx, m.ID)

		first.AccessDataStatus = models.AccessSent
		sent := t0.Add(time.Hour)
		first.AccessDataSentAt = &sent
		if err := store.UpdateMembership(ctx, first); err != nil {
			t.Fatalf("UpdateMembership failed: %v", err)
		}
		if first.Version != 1 {
			t.Errorf("Version = %d, want 1", first.Version)
		}

		second.AccessDataStatus = models.AccessOverdue
		if err := store.UpdateMembership(ctx, second); !errors.Is(err, storage.ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}

		got, _ := store.GetMembership(ctx, m.ID)
		if got.AccessDataStatus != models.AccessSent || got.AccessDataSentAt == nil || !got.AccessDataSentAt.Equal(sent) {
			t.Errorf("unexpected membership after race: %+v", got)
		}
		if got.AccessDataDeadline == nil || !got.AccessDataDeadline.Equal(deadline) {
			t.Errorf("deadline changed: %v", got.AccessDataDeadline)
		}
	})

	t.Run("MostRecentDelivery orders by insertion", func(t *testing.T) {
		group := seedGroup(t, store, "owner-5")
		m := &models.Membership{GroupID: group.ID, UserID: "member-5", Role: models.RoleMember, AccessDataStatus: models.AccessPending}
		if err := store.CreateMembership(ctx, m); err != nil {
			t.Fatalf("CreateMembership failed: %v", err)
		}

		if _, err := store.MostRecentDelivery(ctx, m.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound before any delivery, got %v", err)
		}

		for _, content := range []string{"first", "second"} {
			d := &models.AccessDataDelivery{
				MembershipID: m.ID, DeliveryType: models.DeliveryCredentials,
				Content: content, SentAt: t0,
			}
			if err := store.CreateDelivery(ctx, d); err != nil {
				t.Fatalf("CreateDelivery failed: %v", err)
			}
		}

		latest, err := store.MostRecentDelivery(ctx, m.ID)
		if err != nil {
			t.Fatalf("MostRecentDelivery failed: %v", err)
		}
		if latest.Content != "second" {
			t.Errorf("latest content = %q, want second", latest.Content)
		}

		confirmed := t0.Add(time.Hour)
		latest.ConfirmedAt = &confirmed
		latest.Notes = "works"
		if err := store.UpdateDelivery(ctx, latest); err != nil {
			t.Fatalf("UpdateDelivery failed: %v", err)
		}
		all, err := store.ListDeliveries(ctx, m.ID)
		if err != nil {
			t.Fatalf("ListDeliveries failed: %v", err)
		}
		if len(all) != 2 || all[0].Notes != "works" || all[1].ConfirmedAt != nil {
			t.Errorf("unexpected deliveries: %+v %+v", all[0], all[1])
		}
	})

	t.Run("DeleteGroup removes children", func(t *testing.T) {
		group := seedGroup(t, store, "owner-6")
		svc := &models.StreamingService{Name: "Netflix", MaxScreens: 4}
		if err := store.CreateStreamingService(ctx, svc); err != nil {
			t.Fatalf("CreateStreamingService failed: %v", err)
		}
		if err := store.SetGroupStreamingServices(ctx, group.ID, []string{svc.ID}); err != nil {
			t.Fatalf("SetGroupStreamingServices failed: %v", err)
		}
		if err := store.CreateJoinRequest(ctx, &models.JoinRequest{GroupID: group.ID, UserID: "joiner"}); err != nil {
			t.Fatalf("CreateJoinRequest failed: %v", err)
		}

		if err := store.DeleteGroup(ctx, group.ID); err != nil {
			t.Fatalf("DeleteGroup failed: %v", err)
		}

		if _, err := store.GetGroup(ctx, group.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("group still present: %v", err)
		}
		members, _ := store.FindMembershipsByGroup(ctx, group.ID)
		if len(members) != 0 {
			t.Errorf("expected no memberships, got %d", len(members))
		}
		services, _ := store.ListGroupStreamingServices(ctx, group.ID)
		if len(services) != 0 {
			t.Errorf("expected no streaming associations, got %d", len(services))
		}
		if _, err := store.FindJoinRequest(ctx, group.ID, "joiner"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("join request still present: %v", err)
		}
	})

	t.Run("WithTransaction rolls back on error", func(t *testing.T) {
		group := seedGroup(t, store, "owner-7")
		boom := errors.New("boom")

		err := store.WithTransaction(ctx, func(tx storage.Queries) error {
			if err := tx.CreateMembership(ctx, &models.Membership{GroupID: group.ID, UserID: "ghost", Role: models.RoleMember}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if _, err := store.FindMembership(ctx, group.ID, "ghost"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("membership survived rollback: %v", err)
		}
	})
}

func TestMarkOverdue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := seedGroup(t, store, "owner")
	now := t0.Add(100 * time.Hour)

	sentOld := now.Add(-24 * time.Hour)
	sentFresh := now.Add(-24*time.Hour + time.Second)
	rows := map[string]*models.Membership{
		"sent-old":     {UserID: "u1", AccessDataStatus: models.AccessSent, AccessDataSentAt: &sentOld, CreatedAt: t0},
		"sent-fresh":   {UserID: "u2", AccessDataStatus: models.AccessSent, AccessDataSentAt: &sentFresh, CreatedAt: t0},
		"pending-old":  {UserID: "u3", AccessDataStatus: models.AccessPending, CreatedAt: now.Add(-73 * time.Hour)},
		"pending-new":  {UserID: "u4", AccessDataStatus: models.AccessPending, CreatedAt: now.Add(-1 * time.Hour)},
		"already-late": {UserID: "u5", AccessDataStatus: models.AccessOverdue, AccessDataSentAt: &sentOld, CreatedAt: t0},
		"confirmed":    {UserID: "u6", AccessDataStatus: models.AccessConfirmed, AccessDataSentAt: &sentOld, CreatedAt: t0},
	}
	for id, m := range rows {
		m.ID = id
		m.GroupID = group.ID
		m.Role = models.RoleMember
		if err := store.CreateMembership(ctx, m); err != nil {
			t.Fatalf("CreateMembership(%s) failed: %v", id, err)
		}
	}

	sentBefore, createdBefore := now.Add(-24*time.Hour), now.Add(-72*time.Hour)

	candidates, err := store.FindSweepCandidates(ctx, sentBefore, createdBefore)
	if err != nil {
		t.Fatalf("FindSweepCandidates failed: %v", err)
	}
	got := map[string]bool{}
	for _, m := range candidates {
		got[m.ID] = true
	}
	for _, id := range []string{"sent-old", "pending-old", "already-late"} {
		if !got[id] {
			t.Errorf("expected candidate %s", id)
		}
	}
	if len(candidates) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(candidates))
	}

	marked, err := store.MarkOverdue(ctx, sentBefore, createdBefore, now)
	if err != nil {
		t.Fatalf("MarkOverdue failed: %v", err)
	}
	if len(marked) != 2 {
		t.Fatalf("expected 2 rows marked, got %v", marked)
	}

	again, err := store.MarkOverdue(ctx, sentBefore, createdBefore, now)
	if err != nil {
		t.Fatalf("second MarkOverdue failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second sweep wrote %v", again)
	}

	late, _ := store.GetMembership(ctx, "already-late")
	if late.Version != 0 {
		t.Errorf("already-overdue row was rewritten (version %d)", late.Version)
	}
	fresh, _ := store.GetMembership(ctx, "sent-fresh")
	if fresh.AccessDataStatus != models.AccessSent {
		t.Errorf("sent-fresh status = %s, want SENT", fresh.AccessDataStatus)
	}
}
