package models

import (
	"fmt"
	"time"
)

// JoinRequestStatus is the state of a join request.
type JoinRequestStatus string

const (
	JoinPending  JoinRequestStatus = "PENDING"
	JoinApproved JoinRequestStatus = "APPROVED"
	JoinRejected JoinRequestStatus = "REJECTED"
)

// Valid reports whether s is a defined join request status.
func (s JoinRequestStatus) Valid() bool {
	switch s {
	case JoinPending, JoinApproved, JoinRejected:
		return true
	}
	return false
}

// ParseJoinRequestStatus converts a stored value into a JoinRequestStatus.
func ParseJoinRequestStatus(s string) (JoinRequestStatus, error) {
	st := JoinRequestStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown join request status %q", s)
	}
	return st, nil
}

// JoinRequest is a user's request to be admitted to a group.
// It is terminal once responded to; approval creates the membership in the
// same transaction as the status flip.
type JoinRequest struct {
	ID      string
	GroupID string
	UserID  string
	Status  JoinRequestStatus

	// Message is the requester's optional note.
	Message string

	// ResponseMessage is the responder's optional note (usually on rejection).
	ResponseMessage string

	RespondedBy string
	CreatedAt   time.Time
	RespondedAt *time.Time
}
