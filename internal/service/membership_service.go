package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/policy"
	"github.com/mmynk/streamshare/internal/storage"
)

// MembershipService is the membership lifecycle engine. Every structural
// change runs in one transaction that locks the group row first, so
// concurrent changes to the same group are serialized.
type MembershipService struct {
	engine
}

// NewMembershipService creates a new MembershipService.
func NewMembershipService(store storage.Store, opts Options) *MembershipService {
	return &MembershipService{engine: newEngine(store, opts)}
}

// CreateGroupInput describes a new group.
type CreateGroupInput struct {
	Name        string
	Description string
	OwnerID     string

	// MaxMembers is used when no streaming service sets a lower limit.
	MaxMembers int

	StreamingServiceIDs []string
}

// CreateGroup creates a group with its owner's membership.
func (s *MembershipService) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.Group, error) {
	s.logger.Info("CreateGroup request received", "name", in.Name, "owner", in.OwnerID)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidArgument)
	}
	if in.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}
	if in.MaxMembers < 0 {
		return nil, fmt.Errorf("%w: max members must not be negative", ErrInvalidArgument)
	}
	serviceIDs := dedupe(in.StreamingServiceIDs)

	var group *models.Group
	err := s.inTx(ctx, "CreateGroup", func(tx storage.Queries) error {
		services, err := lookupServices(ctx, tx, serviceIDs)
		if err != nil {
			return err
		}

		now := s.now()
		group = &models.Group{
			Name:        name,
			Description: in.Description,
			MaxMembers:  policy.RecomputeCapacity(services, in.MaxMembers, 1),
			CreatedBy:   in.OwnerID,
			CreatedAt:   now,
		}
		if err := tx.CreateGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		owner := &models.Membership{
			GroupID:   group.ID,
			UserID:    in.OwnerID,
			Role:      models.RoleOwner,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateMembership(ctx, owner); err != nil {
			return translate(err)
		}
		return tx.SetGroupStreamingServices(ctx, group.ID, serviceIDs)
	})
	if err != nil {
		s.logger.Error("CreateGroup failed", "error", err)
		return nil, err
	}

	s.logger.Info("Group created successfully", "group_id", group.ID, "max_members", group.MaxMembers)
	return group, nil
}

// SetStreamingServices replaces the group's streaming services and
// recomputes its capacity.
func (s *MembershipService) SetStreamingServices(ctx context.Context, groupID, actingUserID string, serviceIDs []string) (*models.Group, error) {
	s.logger.Info("SetStreamingServices request received", "group_id", groupID, "actor", actingUserID, "services", len(serviceIDs))

	serviceIDs = dedupe(serviceIDs)
	var group *models.Group
	err := s.inTx(ctx, "SetStreamingServices", func(tx storage.Queries) error {
		g, err := tx.LockGroup(ctx, groupID)
		if err != nil {
			return translate(err)
		}
		if _, err := s.requireManager(ctx, tx, groupID, actingUserID); err != nil {
			return err
		}
		services, err := lookupServices(ctx, tx, serviceIDs)
		if err != nil {
			return err
		}
		count, err := tx.CountMembers(ctx, groupID)
		if err != nil {
			return err
		}

		g.MaxMembers = policy.RecomputeCapacity(services, g.MaxMembers, count)
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return err
		}
		if err := tx.SetGroupStreamingServices(ctx, groupID, serviceIDs); err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// RequestToJoin files a join request. A pending request is returned as is;
// a responded one is reopened.
func (s *MembershipService) RequestToJoin(ctx context.Context, groupID, userID, message string) (*models.JoinRequest, error) {
	s.logger.Info("RequestToJoin request received", "group_id", groupID, "user_id", userID)

	var req *models.JoinRequest
	err := s.inTx(ctx, "RequestToJoin", func(tx storage.Queries) error {
		if _, err := tx.LockGroup(ctx, groupID); err != nil {
			return translate(err)
		}
		existing, err := findMember(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: user %s in group %s", ErrAlreadyMember, userID, groupID)
		}

		r, err := tx.FindJoinRequest(ctx, groupID, userID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			req = &models.JoinRequest{
				GroupID:   groupID,
				UserID:    userID,
				Status:    models.JoinPending,
				Message:   message,
				CreatedAt: s.now(),
			}
			return tx.CreateJoinRequest(ctx, req)
		case err != nil:
			return err
		case r.Status == models.JoinPending:
			req = r
			return nil
		}

		r.Status = models.JoinPending
		r.Message = message
		r.ResponseMessage = ""
		r.RespondedBy = ""
		r.RespondedAt = nil
		r.CreatedAt = s.now()
		req = r
		return tx.UpdateJoinRequest(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ApproveJoinRequest accepts a pending request and creates the member's
// membership (MEMBER, PENDING, deadline now + PendingDeadline) in the same
// transaction.
func (s *MembershipService) ApproveJoinRequest(ctx context.Context, requestID, responderID string) (*models.Membership, error) {
	s.logger.Info("ApproveJoinRequest request received", "request_id", requestID, "responder", responderID)

	var membership *models.Membership
	err := s.inTx(ctx, "ApproveJoinRequest", func(tx storage.Queries) error {
		req, group, err := s.lockRequest(ctx, tx, requestID, responderID)
		if err != nil {
			return err
		}

		existing, err := findMember(ctx, tx, req.GroupID, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: user %s in group %s", ErrAlreadyMember, req.UserID, req.GroupID)
		}
		count, err := tx.CountMembers(ctx, req.GroupID)
		if err != nil {
			return err
		}
		if !policy.HasCapacity(group, count) {
			return fmt.Errorf("%w: %d of %d places taken", ErrCapacity, count, group.MaxMembers)
		}

		now := s.now()
		req.Status = models.JoinApproved
		req.RespondedBy = responderID
		req.RespondedAt = &now
		if err := tx.UpdateJoinRequest(ctx, req); err != nil {
			return err
		}

		deadline := now.Add(s.windows.PendingDeadline)
		membership = &models.Membership{
			GroupID:            req.GroupID,
			UserID:             req.UserID,
			Role:               models.RoleMember,
			AccessDataStatus:   models.AccessPending,
			AccessDataDeadline: &deadline,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return translate(tx.CreateMembership(ctx, membership))
	})
	if err != nil {
		s.logger.Warn("ApproveJoinRequest failed", "request_id", requestID, "error", err)
		return nil, err
	}

	s.metrics.JoinDecisions.WithLabelValues("approved").Inc()
	s.logger.Info("Join request approved", "request_id", requestID, "membership_id", membership.ID)
	return membership, nil
}

// RejectJoinRequest declines a pending request.
func (s *MembershipService) RejectJoinRequest(ctx context.Context, requestID, responderID, message string) (*models.JoinRequest, error) {
	s.logger.Info("RejectJoinRequest request received", "request_id", requestID, "responder", responderID)

	var out *models.JoinRequest
	err := s.inTx(ctx, "RejectJoinRequest", func(tx storage.Queries) error {
		req, _, err := s.lockRequest(ctx, tx, requestID, responderID)
		if err != nil {
			return err
		}
		now := s.now()
		req.Status = models.JoinRejected
		req.ResponseMessage = message
		req.RespondedBy = responderID
		req.RespondedAt = &now
		if err := tx.UpdateJoinRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.JoinDecisions.WithLabelValues("rejected").Inc()
	return out, nil
}

// lockRequest loads a join request, locks its group, re-reads the request
// under the lock and checks that it is pending and that responderID may
// answer it.
func (s *MembershipService) lockRequest(ctx context.Context, tx storage.Queries, requestID, responderID string) (*models.JoinRequest, *models.Group, error) {
	req, err := tx.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, nil, translate(err)
	}
	group, err := tx.LockGroup(ctx, req.GroupID)
	if err != nil {
		return nil, nil, translate(err)
	}
	if req, err = tx.GetJoinRequest(ctx, requestID); err != nil {
		return nil, nil, translate(err)
	}
	if _, err := s.requireManager(ctx, tx, req.GroupID, responderID); err != nil {
		return nil, nil, err
	}
	if req.Status != models.JoinPending {
		return nil, nil, fmt.Errorf("%w: join request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	return req, group, nil
}

// RemoveMember removes targetUserID from the group on behalf of
// actingUserID, and purges the target's pending join requests.
//
// Owners and admins may remove members; only the owner may remove an
// admin. The owner cannot be removed, and nobody removes themselves.
func (s *MembershipService) RemoveMember(ctx context.Context, groupID, targetUserID, actingUserID string) error {
	s.logger.Info("RemoveMember request received", "group_id", groupID, "target", targetUserID, "actor", actingUserID)

	err := s.inTx(ctx, "RemoveMember", func(tx storage.Queries) error {
		if _, err := tx.LockGroup(ctx, groupID); err != nil {
			return translate(err)
		}
		target, err := tx.FindMembership(ctx, groupID, targetUserID)
		if err != nil {
			return translate(err)
		}
		actor, err := findMember(ctx, tx, groupID, actingUserID)
		if err != nil {
			return err
		}
		if actor == nil || !actor.Role.CanManage() {
			admin, err := s.isSystemAdmin(ctx, actingUserID)
			if err != nil {
				return err
			}
			if admin {
				// System admins act with the owner's authority.
				actor = &models.Membership{GroupID: groupID, UserID: actingUserID, Role: models.RoleOwner}
			}
		}

		if err := policy.CheckRemoval(actor, target); err != nil {
			if errors.Is(err, policy.ErrSelfRemoval) || errors.Is(err, policy.ErrOwnerRemoval) {
				return fmt.Errorf("%w: %w", ErrInvalidState, err)
			}
			return fmt.Errorf("%w: %w", ErrForbidden, err)
		}

		if err := tx.DeleteMembership(ctx, target.ID); err != nil {
			return translate(err)
		}
		purged, err := tx.DeletePendingJoinRequests(ctx, groupID, targetUserID)
		if err != nil {
			return err
		}
		if purged > 0 {
			s.logger.Debug("Purged pending join requests", "group_id", groupID, "user_id", targetUserID, "count", purged)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("RemoveMember failed", "group_id", groupID, "target", targetUserID, "error", err)
		return err
	}

	s.metrics.MembersRemoved.Inc()
	s.logger.Info("Member removed", "group_id", groupID, "user_id", targetUserID)
	return nil
}

// LeaveResult reports which branch LeaveGroup took.
type LeaveResult struct {
	// GroupDeleted is set when the departing user was the last member.
	GroupDeleted bool

	// NewOwnerID is set when the owner left and ownership passed on.
	NewOwnerID string
}

// LeaveGroup removes userID from the group.
//
// The last member leaving deletes the group with everything attached to
// it. An owner leaving hands the group to the longest-tenured admin, or to
// the longest-tenured member when there is no admin. Anyone else simply
// loses their membership.
func (s *MembershipService) LeaveGroup(ctx context.Context, groupID, userID string) (*LeaveResult, error) {
	s.logger.Info("LeaveGroup request received", "group_id", groupID, "user_id", userID)

	var (
		result  *LeaveResult
		outcome policy.LeaveOutcome
	)
	err := s.inTx(ctx, "LeaveGroup", func(tx storage.Queries) error {
		result = &LeaveResult{}
		if _, err := tx.LockGroup(ctx, groupID); err != nil {
			return translate(err)
		}
		all, err := tx.FindMembershipsByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		var departing *models.Membership
		for _, m := range all {
			if m.UserID == userID {
				departing = m
				break
			}
		}
		if departing == nil {
			return fmt.Errorf("%w: user %s is not in group %s", ErrNotFound, userID, groupID)
		}

		var successor *models.Membership
		outcome, successor = policy.PlanLeave(departing, all)
		switch outcome {
		case policy.LeaveDeleteGroup:
			result.GroupDeleted = true
			return translate(tx.DeleteGroup(ctx, groupID))

		case policy.LeaveTransferOwnership:
			if err := tx.DeleteMembership(ctx, departing.ID); err != nil {
				return translate(err)
			}
			promoteToOwner(successor, s.now())
			if err := tx.UpdateMembership(ctx, successor); err != nil {
				return translate(err)
			}
			result.NewOwnerID = successor.UserID
			return checkSingleOwner(ctx, tx, groupID)

		case policy.LeaveRemoveRow:
			return translate(tx.DeleteMembership(ctx, departing.ID))
		}
		return fmt.Errorf("unknown leave outcome %d", outcome)
	})
	if err != nil {
		s.logger.Warn("LeaveGroup failed", "group_id", groupID, "user_id", userID, "error", err)
		return nil, err
	}

	switch {
	case result.GroupDeleted:
		s.metrics.MembersLeft.WithLabelValues("group_deleted").Inc()
		s.logger.Info("Last member left, group deleted", "group_id", groupID)
	case result.NewOwnerID != "":
		s.metrics.MembersLeft.WithLabelValues("ownership_transferred").Inc()
		s.metrics.OwnershipTransfers.Inc()
		s.logger.Info("Owner left, ownership transferred", "group_id", groupID, "new_owner", result.NewOwnerID)
	default:
		s.metrics.MembersLeft.WithLabelValues("removed").Inc()
		s.logger.Info("Member left group", "group_id", groupID, "user_id", userID)
	}
	return result, nil
}

// TransferOwnership hands the group from its owner to another member. The
// previous owner becomes an admin.
func (s *MembershipService) TransferOwnership(ctx context.Context, groupID, newOwnerID, actingUserID string) error {
	s.logger.Info("TransferOwnership request received", "group_id", groupID, "new_owner", newOwnerID, "actor", actingUserID)

	if newOwnerID == actingUserID {
		return fmt.Errorf("%w: user %s already owns the group", ErrInvalidState, actingUserID)
	}
	err := s.inTx(ctx, "TransferOwnership", func(tx storage.Queries) error {
		if _, err := tx.LockGroup(ctx, groupID); err != nil {
			return translate(err)
		}
		owner, err := findMember(ctx, tx, groupID, actingUserID)
		if err != nil {
			return err
		}
		if owner == nil || owner.Role != models.RoleOwner {
			return fmt.Errorf("%w: only the owner may transfer group %s", ErrForbidden, groupID)
		}
		next, err := tx.FindMembership(ctx, groupID, newOwnerID)
		if err != nil {
			return translate(err)
		}

		now := s.now()
		owner.Role = models.RoleAdmin
		owner.UpdatedAt = now
		if err := tx.UpdateMembership(ctx, owner); err != nil {
			return translate(err)
		}
		promoteToOwner(next, now)
		if err := tx.UpdateMembership(ctx, next); err != nil {
			return translate(err)
		}
		return checkSingleOwner(ctx, tx, groupID)
	})
	if err != nil {
		return err
	}

	s.metrics.OwnershipTransfers.Inc()
	s.logger.Info("Ownership transferred", "group_id", groupID, "new_owner", newOwnerID)
	return nil
}

// SetMemberRole promotes a member to admin or demotes an admin. Only the
// owner or a system admin may change roles; ownership itself moves through
// TransferOwnership.
func (s *MembershipService) SetMemberRole(ctx context.Context, groupID, targetUserID string, role models.Role, actingUserID string) error {
	if role != models.RoleAdmin && role != models.RoleMember {
		return fmt.Errorf("%w: role %q cannot be assigned", ErrInvalidArgument, role)
	}
	return s.inTx(ctx, "SetMemberRole", func(tx storage.Queries) error {
		if _, err := tx.LockGroup(ctx, groupID); err != nil {
			return translate(err)
		}
		actor, err := findMember(ctx, tx, groupID, actingUserID)
		if err != nil {
			return err
		}
		if actor == nil || actor.Role != models.RoleOwner {
			admin, err := s.isSystemAdmin(ctx, actingUserID)
			if err != nil {
				return err
			}
			if !admin {
				return fmt.Errorf("%w: only the owner may change roles in group %s", ErrForbidden, groupID)
			}
		}
		target, err := tx.FindMembership(ctx, groupID, targetUserID)
		if err != nil {
			return translate(err)
		}
		if target.Role == models.RoleOwner {
			return fmt.Errorf("%w: the owner's role changes only by transfer", ErrInvalidState)
		}
		if target.Role == role {
			return nil
		}
		target.Role = role
		target.UpdatedAt = s.now()
		return translate(tx.UpdateMembership(ctx, target))
	})
}

// lookupServices resolves serviceIDs, failing if any is unknown.
func lookupServices(ctx context.Context, q storage.Queries, serviceIDs []string) ([]*models.StreamingService, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	services, err := q.ListStreamingServices(ctx, serviceIDs)
	if err != nil {
		return nil, err
	}
	if len(services) != len(serviceIDs) {
		return nil, fmt.Errorf("%w: %d of %d streaming services exist", ErrNotFound, len(services), len(serviceIDs))
	}
	return services, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// promoteToOwner makes m the group's owner. Owners never receive access
// data, so the membership leaves the delivery workflow.
func promoteToOwner(m *models.Membership, now time.Time) {
	m.Role = models.RoleOwner
	m.AccessDataStatus = models.AccessUntracked
	m.AccessDataDeadline = nil
	m.AccessDataSentAt = nil
	m.AccessDataConfirmedAt = nil
	m.UpdatedAt = now
}
