// Package models defines the core domain models for streamshare.
//
// # Models
//
//   - Group: a shared-subscription collective with a member ceiling
//   - StreamingService: a service a group shares, carrying its screen limit
//   - Membership: binds a user to a group with a role and access-data state
//   - AccessDataDelivery: one transmission of credentials or an invite link
//   - JoinRequest: a user's request to be admitted to a group
//   - User: a registered account, used for admin lookups
//
// # Enumerations
//
// Role, AccessDataStatus, DeliveryType and JoinRequestStatus are closed string
// types. Values read from storage or callers go through the Parse* functions,
// so an unknown value is rejected at the boundary instead of flowing into a
// transition.
//
// # Conventions
//
//  1. Relationships are ID strings, never pointers.
//  2. Timestamps are UTC. Optional timestamps are pointers and nil means unset.
package models
