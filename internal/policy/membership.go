package policy

import (
	"errors"
	"sort"

	"github.com/mmynk/streamshare/internal/models"
)

var (
	ErrNotManager        = errors.New("acting member must be an owner or admin")
	ErrAdminRemovesAdmin = errors.New("only the owner may remove an admin")
	ErrOwnerRemoval      = errors.New("the owner cannot be removed; transfer ownership first")
	ErrSelfRemoval       = errors.New("members leave a group instead of removing themselves")
)

// CheckRemoval decides whether actor may remove target from their group.
// A nil actor means the acting user is not a member.
func CheckRemoval(actor, target *models.Membership) error {
	if actor != nil && actor.UserID == target.UserID {
		return ErrSelfRemoval
	}
	if actor == nil || !actor.Role.CanManage() {
		return ErrNotManager
	}
	if target.Role == models.RoleOwner {
		return ErrOwnerRemoval
	}
	if actor.Role == models.RoleAdmin && target.Role == models.RoleAdmin {
		return ErrAdminRemovesAdmin
	}
	return nil
}

// LeaveOutcome is the branch taken when a member leaves.
type LeaveOutcome int

const (
	// LeaveDeleteGroup: the departing member is the only one left.
	LeaveDeleteGroup LeaveOutcome = iota
	// LeaveTransferOwnership: the owner departs and a successor is promoted.
	LeaveTransferOwnership
	// LeaveRemoveRow: a member or admin departs.
	LeaveRemoveRow
)

// PlanLeave picks the leave branch for departing given every membership of
// the group (departing included). For LeaveTransferOwnership the successor
// is returned.
func PlanLeave(departing *models.Membership, all []*models.Membership) (LeaveOutcome, *models.Membership) {
	others := make([]*models.Membership, 0, len(all))
	for _, m := range all {
		if m.ID != departing.ID {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		return LeaveDeleteGroup, nil
	}
	if departing.Role != models.RoleOwner {
		return LeaveRemoveRow, nil
	}
	return LeaveTransferOwnership, ChooseSuccessor(others)
}

// ChooseSuccessor returns the longest-tenured admin among candidates, or the
// longest-tenured member of any role when there is no admin. Ties on
// CreatedAt fall back to join order, then ID.
func ChooseSuccessor(candidates []*models.Membership) *models.Membership {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]*models.Membership, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		if sorted[i].JoinSeq != sorted[j].JoinSeq {
			return sorted[i].JoinSeq < sorted[j].JoinSeq
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, m := range sorted {
		if m.Role == models.RoleAdmin {
			return m
		}
	}
	return sorted[0]
}

// CountOwners returns how many memberships hold the OWNER role.
func CountOwners(all []*models.Membership) int {
	n := 0
	for _, m := range all {
		if m.Role == models.RoleOwner {
			n++
		}
	}
	return n
}
