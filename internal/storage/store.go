// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/streamshare/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when an update lost an optimistic-lock race:
	// the row's version changed after it was read.
	ErrConflict = errors.New("record was modified concurrently")

	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("record already exists")
)

// Queries is every read and write the membership core performs. It is
// satisfied by the store itself and by the handle passed into a transaction.
type Queries interface {
	// CreateGroup persists a new group. ID and CreatedAt are filled in when empty.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by ID.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// LockGroup retrieves a group and, inside a transaction, holds a row lock
	// on it until the transaction ends. Structural mutations lock the group
	// first so that concurrent changes to one group serialize.
	LockGroup(ctx context.Context, groupID string) (*models.Group, error)

	// UpdateGroup writes the group's mutable fields.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// DeleteGroup removes the group together with its streaming associations,
	// memberships, deliveries and join requests.
	DeleteGroup(ctx context.Context, groupID string) error

	// CountMembers returns how many memberships the group has.
	CountMembers(ctx context.Context, groupID string) (int, error)

	// CreateStreamingService persists a streaming service.
	CreateStreamingService(ctx context.Context, service *models.StreamingService) error

	// UpdateStreamingService writes a service's name and screen limit.
	UpdateStreamingService(ctx context.Context, service *models.StreamingService) error

	// ListStreamingServices returns the services with the given IDs.
	// Unknown IDs are omitted.
	ListStreamingServices(ctx context.Context, serviceIDs []string) ([]*models.StreamingService, error)

	// ListGroupStreamingServices returns the services associated with a group.
	ListGroupStreamingServices(ctx context.Context, groupID string) ([]*models.StreamingService, error)

	// SetGroupStreamingServices replaces the group's service associations.
	SetGroupStreamingServices(ctx context.Context, groupID string, serviceIDs []string) error

	// GetMembership retrieves a membership by ID.
	GetMembership(ctx context.Context, membershipID string) (*models.Membership, error)

	// FindMembership retrieves the membership of a user in a group.
	FindMembership(ctx context.Context, groupID, userID string) (*models.Membership, error)

	// FindMembershipsByGroup returns a group's memberships, oldest first.
	FindMembershipsByGroup(ctx context.Context, groupID string) ([]*models.Membership, error)

	// FindMembershipsByStatus returns memberships of the given groups whose
	// access-data status is one of statuses, oldest first.
	FindMembershipsByStatus(ctx context.Context, groupIDs []string, statuses []models.AccessDataStatus) ([]*models.Membership, error)

	// ListManagedGroupIDs returns the groups in which the user is OWNER or ADMIN.
	ListManagedGroupIDs(ctx context.Context, userID string) ([]string, error)

	// CreateMembership persists a new membership. ID, CreatedAt and UpdatedAt
	// are filled in when empty.
	CreateMembership(ctx context.Context, membership *models.Membership) error

	// UpdateMembership writes the membership's mutable fields if its stored
	// version still equals membership.Version, then bumps the version.
	// Returns ErrConflict when the version moved.
	UpdateMembership(ctx context.Context, membership *models.Membership) error

	// DeleteMembership removes a membership and its deliveries.
	DeleteMembership(ctx context.Context, membershipID string) error

	// CreateDelivery appends a delivery record.
	CreateDelivery(ctx context.Context, delivery *models.AccessDataDelivery) error

	// MostRecentDelivery returns the latest delivery for a membership.
	MostRecentDelivery(ctx context.Context, membershipID string) (*models.AccessDataDelivery, error)

	// ListDeliveries returns a membership's deliveries, newest first.
	ListDeliveries(ctx context.Context, membershipID string) ([]*models.AccessDataDelivery, error)

	// UpdateDelivery writes ConfirmedAt and Notes.
	UpdateDelivery(ctx context.Context, delivery *models.AccessDataDelivery) error

	// CreateJoinRequest persists a new join request.
	CreateJoinRequest(ctx context.Context, request *models.JoinRequest) error

	// GetJoinRequest retrieves a join request by ID.
	GetJoinRequest(ctx context.Context, requestID string) (*models.JoinRequest, error)

	// FindJoinRequest retrieves the join request of a user for a group.
	FindJoinRequest(ctx context.Context, groupID, userID string) (*models.JoinRequest, error)

	// UpdateJoinRequest writes status, messages and response fields.
	UpdateJoinRequest(ctx context.Context, request *models.JoinRequest) error

	// DeletePendingJoinRequests purges PENDING requests of a user for a group.
	DeletePendingJoinRequests(ctx context.Context, groupID, userID string) (int64, error)

	// FindSweepCandidates returns OVERDUE memberships plus SENT memberships
	// sent at or before sentBefore and PENDING memberships created at or
	// before createdBefore.
	FindSweepCandidates(ctx context.Context, sentBefore, createdBefore time.Time) ([]*models.Membership, error)

	// MarkOverdue moves every SENT/PENDING membership that still matches the
	// cutoffs to OVERDUE in a single statement and returns the updated IDs.
	MarkOverdue(ctx context.Context, sentBefore, createdBefore, now time.Time) ([]string, error)

	// CreateUser inserts a new user.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// GetUserByEmail retrieves a user by email address.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store defines the interface for membership storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	Queries

	// WithTransaction runs fn with all-or-nothing semantics. If fn returns an
	// error or the commit fails, no change made through tx is kept.
	WithTransaction(ctx context.Context, fn func(tx Queries) error) error

	// Close releases any resources held by the store.
	Close() error
}
