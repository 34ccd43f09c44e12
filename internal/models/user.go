package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user account.
// Authentication lives outside this module; the core only reads users to
// resolve email addresses for the system-admin role store.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Email is the user's email address (unique).
	Email string

	// DisplayName is the name shown to other group members.
	DisplayName string

	CreatedAt time.Time
}

// NewUser builds a user with a fresh ID.
func NewUser(email, displayName string) *User {
	return &User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
}
