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

// AccessService is the access-data workflow engine.
type AccessService struct {
	engine
}

// NewAccessService creates a new AccessService.
func NewAccessService(store storage.Store, opts Options) *AccessService {
	return &AccessService{engine: newEngine(store, opts)}
}

// SendAccessDataInput describes one delivery of access data to a member.
type SendAccessDataInput struct {
	MembershipID string
	ActingUserID string
	DeliveryType models.DeliveryType
	Content      string
	IsInviteLink bool
	Notes        string
}

// SendAccessData records a delivery and moves the membership to SENT.
// It is allowed from PENDING, SENT and OVERDUE; the deadline is not changed.
func (s *AccessService) SendAccessData(ctx context.Context, in SendAccessDataInput) (*models.AccessDataDelivery, error) {
	s.logger.Info("SendAccessData request received", "membership_id", in.MembershipID, "actor", in.ActingUserID, "type", in.DeliveryType)

	if !in.DeliveryType.Valid() {
		return nil, fmt.Errorf("%w: delivery type %q", ErrInvalidArgument, in.DeliveryType)
	}

	var delivery *models.AccessDataDelivery
	err := s.inTx(ctx, "SendAccessData", func(tx storage.Queries) error {
		m, err := tx.GetMembership(ctx, in.MembershipID)
		if err != nil {
			return translate(err)
		}
		if _, err := s.requireManager(ctx, tx, m.GroupID, in.ActingUserID); err != nil {
			return err
		}

		next, err := policy.Transition(m.AccessDataStatus, policy.EventSend)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}

		now := s.now()
		delivery = &models.AccessDataDelivery{
			MembershipID: m.ID,
			DeliveryType: in.DeliveryType,
			Content:      in.Content,
			IsInviteLink: in.IsInviteLink,
			SentAt:       now,
			Notes:        in.Notes,
		}
		if err := tx.CreateDelivery(ctx, delivery); err != nil {
			return err
		}

		m.AccessDataStatus = next
		m.AccessDataSentAt = &now
		m.AccessDataConfirmedAt = nil
		m.UpdatedAt = now
		return translate(tx.UpdateMembership(ctx, m))
	})
	if err != nil {
		s.logger.Warn("SendAccessData failed", "membership_id", in.MembershipID, "error", err)
		return nil, err
	}

	s.metrics.Deliveries.WithLabelValues(string(in.DeliveryType)).Inc()
	s.logger.Info("Access data sent", "membership_id", in.MembershipID, "delivery_id", delivery.ID)
	return delivery, nil
}

// ConfirmReceiptInput is a member's response to a delivery.
type ConfirmReceiptInput struct {
	MembershipID string
	ActingUserID string

	// Confirmed is false when the member reports a problem.
	Confirmed bool

	Notes string
}

// ConfirmReceipt records the member's response to the latest delivery.
//
// Confirming moves SENT to CONFIRMED and stamps the confirmation time;
// confirming again refreshes it. Reporting a problem keeps the membership
// SENT with its deadline unchanged, so it stays on the admin's pending list.
// In both cases the notes are appended to the most recent delivery.
func (s *AccessService) ConfirmReceipt(ctx context.Context, in ConfirmReceiptInput) (*models.Membership, error) {
	s.logger.Info("ConfirmReceipt request received", "membership_id", in.MembershipID, "confirmed", in.Confirmed)

	ev := policy.EventReportProblem
	if in.Confirmed {
		ev = policy.EventConfirm
	}

	var out *models.Membership
	err := s.inTx(ctx, "ConfirmReceipt", func(tx storage.Queries) error {
		m, err := tx.GetMembership(ctx, in.MembershipID)
		if err != nil {
			return translate(err)
		}
		if m.UserID != in.ActingUserID {
			return fmt.Errorf("%w: only the member may confirm membership %s", ErrForbidden, m.ID)
		}

		next, err := policy.Transition(m.AccessDataStatus, ev)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}

		now := s.now()
		m.AccessDataStatus = next
		if next == models.AccessConfirmed {
			m.AccessDataConfirmedAt = &now
		} else {
			m.AccessDataConfirmedAt = nil
		}
		m.UpdatedAt = now
		if err := tx.UpdateMembership(ctx, m); err != nil {
			return translate(err)
		}

		d, err := tx.MostRecentDelivery(ctx, m.ID)
		if errors.Is(err, storage.ErrNotFound) {
			out = m
			return nil
		}
		if err != nil {
			return err
		}
		d.Notes = mergeNotes(d.Notes, in.Notes)
		if in.Confirmed {
			d.ConfirmedAt = &now
		}
		if err := tx.UpdateDelivery(ctx, d); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		s.logger.Warn("ConfirmReceipt failed", "membership_id", in.MembershipID, "error", err)
		return nil, err
	}

	outcome := "problem"
	if in.Confirmed {
		outcome = "confirmed"
	}
	s.metrics.Confirmations.WithLabelValues(outcome).Inc()
	s.logger.Info("Receipt recorded", "membership_id", out.ID, "status", out.AccessDataStatus)
	return out, nil
}

func mergeNotes(existing, add string) string {
	add = strings.TrimSpace(add)
	switch {
	case add == "":
		return existing
	case existing == "":
		return add
	}
	return existing + "\n" + add
}

// PendingQuery selects the memberships ListPendingForAdmin returns. With
// GroupID set, only that group is listed and AdminUserID, if set, must
// manage it. With only AdminUserID set, every group the user manages is
// listed.
type PendingQuery struct {
	GroupID     string
	AdminUserID string
}

// PendingAccess is a membership still waiting on access data, with its
// deadline projected against the current time.
type PendingAccess struct {
	Membership *models.Membership
	Deadline   *time.Time
	Projection policy.Projection

	// LatestDelivery is nil when nothing has been sent yet.
	LatestDelivery *models.AccessDataDelivery
}

// ListPendingForAdmin returns PENDING, SENT and OVERDUE memberships,
// oldest first.
func (s *AccessService) ListPendingForAdmin(ctx context.Context, q PendingQuery) ([]PendingAccess, error) {
	var groupIDs []string
	switch {
	case q.GroupID != "":
		if _, err := s.store.GetGroup(ctx, q.GroupID); err != nil {
			return nil, translate(err)
		}
		if q.AdminUserID != "" {
			if _, err := s.requireManager(ctx, s.store, q.GroupID, q.AdminUserID); err != nil {
				return nil, err
			}
		}
		groupIDs = []string{q.GroupID}
	case q.AdminUserID != "":
		ids, err := s.store.ListManagedGroupIDs(ctx, q.AdminUserID)
		if err != nil {
			return nil, err
		}
		groupIDs = ids
	default:
		return nil, fmt.Errorf("%w: a group or admin must be given", ErrInvalidArgument)
	}
	if len(groupIDs) == 0 {
		return nil, nil
	}

	memberships, err := s.store.FindMembershipsByStatus(ctx, groupIDs, []models.AccessDataStatus{
		models.AccessPending, models.AccessSent, models.AccessOverdue,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]PendingAccess, 0, len(memberships))
	for _, m := range memberships {
		deadline := policy.EffectiveDeadline(m, s.windows)
		p := PendingAccess{
			Membership: m,
			Deadline:   deadline,
			Projection: policy.ComputeOverdueProjection(deadline, now),
		}
		d, err := s.store.MostRecentDelivery(ctx, m.ID)
		switch {
		case err == nil:
			p.LatestDelivery = d
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
