// Package service implements the membership core: the access-data workflow
// engine (AccessService), the membership lifecycle engine
// (MembershipService) and the overdue sweep.
//
// Every operation is a short transaction against a storage.Store. Routing,
// authentication and scheduling are the caller's concern; acting user IDs
// are passed in explicitly and trusted.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/streamshare/internal/metrics"
	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/policy"
	"github.com/mmynk/streamshare/internal/storage"
)

// Options configures the services. Zero values fall back to defaults.
type Options struct {
	// Windows are the access-data deadlines (default 24h/24h/72h).
	Windows policy.Windows

	// MaxConflictRetries bounds how often an operation that lost an
	// optimistic-lock race is re-run from a fresh read.
	MaxConflictRetries int

	// Clock returns the current time (default time.Now).
	Clock func() time.Time

	// Admins resolves system administrators (default: nobody).
	Admins AdminDirectory

	// Metrics receives counters (default: an unregistered set).
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// engine holds what both services share.
type engine struct {
	store      storage.Store
	windows    policy.Windows
	maxRetries int
	clock      func() time.Time
	admins     AdminDirectory
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func newEngine(store storage.Store, opts Options) engine {
	e := engine{
		store:      store,
		windows:    opts.Windows,
		maxRetries: opts.MaxConflictRetries,
		clock:      opts.Clock,
		admins:     opts.Admins,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if e.windows == (policy.Windows{}) {
		e.windows = policy.DefaultWindows()
	}
	if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.admins == nil {
		e.admins = noAdmins{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NewUnregistered()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// now returns the current time at the one-second resolution the store keeps.
func (e *engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Second)
}

// inTx runs fn in a transaction. A storage.ErrConflict from fn or the commit
// re-runs the whole transaction from scratch, so every attempt re-reads the
// current rows; after maxRetries extra attempts ErrConflict is returned.
func (e *engine) inTx(ctx context.Context, op string, fn func(tx storage.Queries) error) error {
	for attempt := 0; ; attempt++ {
		err := e.store.WithTransaction(ctx, fn)
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		if attempt >= e.maxRetries {
			return fmt.Errorf("%w: %s gave up after %d attempts: %w", ErrConflict, op, attempt+1, err)
		}
		e.metrics.ConflictRetries.Inc()
		e.logger.Debug("Retrying after concurrent modification", "op", op, "attempt", attempt+1, "error", err)
	}
}

// isSystemAdmin consults the admin directory.
func (e *engine) isSystemAdmin(ctx context.Context, userID string) (bool, error) {
	ok, err := e.admins.IsSystemAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve system admin: %w", err)
	}
	return ok, nil
}

// findMember returns the user's membership in the group, or nil when the
// user is not a member.
func findMember(ctx context.Context, q storage.Queries, groupID, userID string) (*models.Membership, error) {
	m, err := q.FindMembership(ctx, groupID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// requireManager checks that userID is OWNER or ADMIN of the group or a
// system administrator. The membership is returned when there is one.
func (e *engine) requireManager(ctx context.Context, q storage.Queries, groupID, userID string) (*models.Membership, error) {
	m, err := findMember(ctx, q, groupID, userID)
	if err != nil {
		return nil, err
	}
	if m != nil && m.Role.CanManage() {
		return m, nil
	}
	admin, err := e.isSystemAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if admin {
		return m, nil
	}
	return nil, fmt.Errorf("%w: user %s does not manage group %s", ErrForbidden, userID, groupID)
}

// checkSingleOwner re-reads the group and fails unless exactly one
// membership holds OWNER. Returning an error rolls the transaction back.
func checkSingleOwner(ctx context.Context, q storage.Queries, groupID string) error {
	all, err := q.FindMembershipsByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(all) > 0 && policy.CountOwners(all) != 1 {
		return fmt.Errorf("%w: group %s would have %d owners", ErrInvalidState, groupID, policy.CountOwners(all))
	}
	return nil
}
