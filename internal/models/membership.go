package models

import (
	"fmt"
	"time"
)

// Role is a member's role inside a group.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManage reports whether the role may administer the group.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// ParseRole converts a stored or user-supplied value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AccessDataStatus tracks delivery of the shared account's access data to a
// member. The zero value means the membership is not tracked (the owner of a
// group they created never receives access data).
type AccessDataStatus string

const (
	AccessUntracked AccessDataStatus = ""
	AccessPending   AccessDataStatus = "PENDING"
	AccessSent      AccessDataStatus = "SENT"
	AccessConfirmed AccessDataStatus = "CONFIRMED"
	AccessOverdue   AccessDataStatus = "OVERDUE"
)

// Valid reports whether s is a defined status, including AccessUntracked.
func (s AccessDataStatus) Valid() bool {
	switch s {
	case AccessUntracked, AccessPending, AccessSent, AccessConfirmed, AccessOverdue:
		return true
	}
	return false
}

// Tracked reports whether the status participates in the delivery workflow.
func (s AccessDataStatus) Tracked() bool {
	return s != AccessUntracked
}

// ParseAccessDataStatus converts a stored value into an AccessDataStatus.
// The empty string maps to AccessUntracked.
func ParseAccessDataStatus(s string) (AccessDataStatus, error) {
	st := AccessDataStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown access data status %q", s)
	}
	return st, nil
}

// Membership binds a user to a group.
type Membership struct {
	// ID is the unique identifier for the membership (UUID format).
	ID string

	GroupID string
	UserID  string

	// Role is exactly OWNER for one membership per group.
	Role Role

	// AccessDataStatus is where the member is in the delivery workflow.
	AccessDataStatus AccessDataStatus

	// AccessDataDeadline is set when the membership is created from an
	// approved join request (creation time plus the pending deadline).
	AccessDataDeadline *time.Time

	// AccessDataSentAt is the time of the most recent delivery.
	AccessDataSentAt *time.Time

	// AccessDataConfirmedAt is non-nil only while the status is CONFIRMED.
	AccessDataConfirmedAt *time.Time

	// CreatedAt doubles as the tenure used for ownership succession.
	CreatedAt time.Time
	UpdatedAt time.Time

	// JoinSeq orders memberships of one group by insertion. It is assigned
	// by the store and breaks CreatedAt ties, which are kept to the second.
	JoinSeq int64

	// Version is bumped on every update and guards status transitions
	// against lost updates.
	Version int64
}
