package models

import "time"

// Group represents a shared streaming subscription.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Family Netflix").
	Name string

	// Description is free text shown to prospective members.
	Description string

	// MaxMembers is the capacity ceiling. It is derived from the screen limit
	// of the associated streaming services and never drops below the current
	// member count.
	MaxMembers int

	// CreatedBy is the user ID of the creator.
	CreatedBy string

	// CreatedAt is when the group was created.
	CreatedAt time.Time
}

// StreamingService is a subscription product a group can share.
type StreamingService struct {
	ID string

	Name string

	// MaxScreens is how many simultaneous streams the plan allows.
	MaxScreens int
}
