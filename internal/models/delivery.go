package models

import (
	"fmt"
	"time"
)

// DeliveryType describes what kind of access data was transmitted.
type DeliveryType string

const (
	DeliveryCredentials    DeliveryType = "CREDENTIALS"
	DeliveryInviteLink     DeliveryType = "INVITE_LINK"
	DeliveryAccountSharing DeliveryType = "ACCOUNT_SHARING"
	DeliveryInstructions   DeliveryType = "INSTRUCTIONS"
)

// Valid reports whether t is a defined delivery type.
func (t DeliveryType) Valid() bool {
	switch t {
	case DeliveryCredentials, DeliveryInviteLink, DeliveryAccountSharing, DeliveryInstructions:
		return true
	}
	return false
}

// ParseDeliveryType converts a stored or user-supplied value into a DeliveryType.
func ParseDeliveryType(s string) (DeliveryType, error) {
	t := DeliveryType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown delivery type %q", s)
	}
	return t, nil
}

// AccessDataDelivery is one transmission of access data to a member.
// Records are append-only except for ConfirmedAt and Notes, which are
// updated on the most recent delivery when the member confirms.
type AccessDataDelivery struct {
	ID           string
	MembershipID string
	DeliveryType DeliveryType

	// Content is opaque to the core (credentials, a link, instructions).
	Content string

	IsInviteLink bool
	SentAt       time.Time
	ConfirmedAt  *time.Time
	Notes        string
}
