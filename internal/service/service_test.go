package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mmynk/streamshare/internal/metrics"
	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/policy"
	"github.com/mmynk/streamshare/internal/storage"
	"github.com/mmynk/streamshare/internal/storage/sqlite"
	"github.com/mmynk/streamshare/internal/storage/sqlstore"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Set(t time.Time) { c.now = t }

type testEnv struct {
	store   *sqlstore.Store
	access  *AccessService
	members *MembershipService
	clock   *testClock
	metrics *metrics.Metrics
}

// setupTestServices creates both services over a temp SQLite database.
// opts.Clock and opts.Metrics are always replaced; wrap, if non-nil, wraps
// the store the services see.
func setupTestServices(t *testing.T, opts Options, wrap func(storage.Store) storage.Store) *testEnv {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "streamshare-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	store, err := sqlite.New(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.Remove(tmpFile.Name())
	})

	env := &testEnv{store: store, clock: &testClock{now: t0}, metrics: metrics.NewUnregistered()}
	opts.Clock = env.clock.Now
	opts.Metrics = env.metrics
	if opts.Admins == nil {
		opts.Admins = NewEmailAdmins(store, nil)
	}

	var svcStore storage.Store = store
	if wrap != nil {
		svcStore = wrap(store)
	}
	env.access = NewAccessService(svcStore, opts)
	env.members = NewMembershipService(svcStore, opts)
	return env
}

// newGroup creates a group owned by ownerID at the current clock time.
func (e *testEnv) newGroup(t *testing.T, ownerID string, maxMembers int) *models.Group {
	t.Helper()
	g, err := e.members.CreateGroup(context.Background(), CreateGroupInput{
		Name:       "Family",
		OwnerID:    ownerID,
		MaxMembers: maxMembers,
	})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return g
}

// join files and approves a join request for userID, approved by the
// group's creator, at the current clock time.
func (e *testEnv) join(t *testing.T, g *models.Group, userID string) *models.Membership {
	t.Helper()
	ctx := context.Background()
	req, err := e.members.RequestToJoin(ctx, g.ID, userID, "")
	if err != nil {
		t.Fatalf("RequestToJoin failed: %v", err)
	}
	m, err := e.members.ApproveJoinRequest(ctx, req.ID, g.CreatedBy)
	if err != nil {
		t.Fatalf("ApproveJoinRequest failed: %v", err)
	}
	return m
}

// send delivers access data to m on behalf of the group's creator.
func (e *testEnv) send(t *testing.T, g *models.Group, m *models.Membership) *models.AccessDataDelivery {
	t.Helper()
	d, err := e.access.SendAccessData(context.Background(), SendAccessDataInput{
		MembershipID: m.ID,
		ActingUserID: g.CreatedBy,
		DeliveryType: models.DeliveryCredentials,
		Content:      "user:pass",
	})
	if err != nil {
		t.Fatalf("SendAccessData failed: %v", err)
	}
	return d
}

func (e *testEnv) membership(t *testing.T, id string) *models.Membership {
	t.Helper()
	m, err := e.store.GetMembership(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMembership failed: %v", err)
	}
	return m
}

// assertSingleOwner fails unless the group has exactly one OWNER, or no
// memberships at all.
func (e *testEnv) assertSingleOwner(t *testing.T, groupID string) {
	t.Helper()
	all, err := e.store.FindMembershipsByGroup(context.Background(), groupID)
	if err != nil {
		t.Fatalf("FindMembershipsByGroup failed: %v", err)
	}
	if len(all) > 0 && policy.CountOwners(all) != 1 {
		t.Errorf("group %s has %d owners among %d members", groupID, policy.CountOwners(all), len(all))
	}
}

func assertConfirmedInvariant(t *testing.T, m *models.Membership) {
	t.Helper()
	if (m.AccessDataConfirmedAt != nil) != (m.AccessDataStatus == models.AccessConfirmed) {
		t.Errorf("status %s with confirmedAt %v", m.AccessDataStatus, m.AccessDataConfirmedAt)
	}
}

// staleStore makes the next n membership updates run against an outdated
// version, so they lose the optimistic-lock race for real.
type staleStore struct {
	storage.Store
	n int
}

func (s *staleStore) WithTransaction(ctx context.Context, fn func(tx storage.Queries) error) error {
	return s.Store.WithTransaction(ctx, func(tx storage.Queries) error {
		return fn(staleTx{Queries: tx, s: s})
	})
}

type staleTx struct {
	storage.Queries
	s *staleStore
}

func (tx staleTx) UpdateMembership(ctx context.Context, m *models.Membership) error {
	if tx.s.n == 0 {
		return tx.Queries.UpdateMembership(ctx, m)
	}
	tx.s.n--
	m.Version--
	err := tx.Queries.UpdateMembership(ctx, m)
	m.Version++
	return err
}
