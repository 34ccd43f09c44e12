package service

import (
	"context"
	"time"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/policy"
	"github.com/mmynk/streamshare/internal/storage"
)

// SweepEntry identifies one membership touched by a sweep.
type SweepEntry struct {
	MembershipID string
	UserID       string
	GroupID      string

	// PreviousStatus is the status read before the sweep wrote.
	PreviousStatus models.AccessDataStatus
}

// SweepResult reports what a sweep did.
type SweepResult struct {
	RanAt time.Time

	// Marked were moved to OVERDUE by this run.
	Marked []SweepEntry

	// AlreadyOverdue matched but were OVERDUE before the run; not written.
	AlreadyOverdue []SweepEntry

	// Failed were eligible when selected but changed before the update
	// (typically a concurrent re-send) and were left alone. Rows another
	// sweep marked in between are reported as AlreadyOverdue instead.
	Failed []SweepEntry
}

// Count is the number of memberships that are overdue after the run.
func (r *SweepResult) Count() int {
	return len(r.Marked) + len(r.AlreadyOverdue)
}

// SweepOverdue moves expired PENDING and SENT memberships to OVERDUE.
//
// Eligible rows are updated by one conditional statement, so re-running the
// sweep, or running two at once, converges on the same state. A row that no
// longer qualifies when the update runs is reported in Failed instead of
// aborting the sweep.
func (s *AccessService) SweepOverdue(ctx context.Context, now time.Time) (*SweepResult, error) {
	now = now.UTC().Truncate(time.Second)
	sentBefore, createdBefore := policy.SweepCutoffs(now, s.windows)
	result := &SweepResult{RanAt: now}

	start := time.Now()
	err := s.store.WithTransaction(ctx, func(tx storage.Queries) error {
		candidates, err := tx.FindSweepCandidates(ctx, sentBefore, createdBefore)
		if err != nil {
			return err
		}
		marked, err := tx.MarkOverdue(ctx, sentBefore, createdBefore, now)
		if err != nil {
			return err
		}

		markedSet := make(map[string]struct{}, len(marked))
		for _, id := range marked {
			markedSet[id] = struct{}{}
		}

		seen := make(map[string]struct{}, len(candidates))
		for _, m := range candidates {
			seen[m.ID] = struct{}{}
			entry := sweepEntry(m)
			_, wasMarked := markedSet[m.ID]
			switch policy.SweepDecision(m, now, s.windows) {
			case policy.SweepReport:
				result.AlreadyOverdue = append(result.AlreadyOverdue, entry)
			case policy.SweepMark:
				if wasMarked {
					result.Marked = append(result.Marked, entry)
					continue
				}
				// An overlapping sweep may have marked it first.
				cur, err := tx.GetMembership(ctx, m.ID)
				if err != nil {
					return err
				}
				if cur.AccessDataStatus == models.AccessOverdue {
					result.AlreadyOverdue = append(result.AlreadyOverdue, sweepEntry(cur))
				} else {
					result.Failed = append(result.Failed, entry)
				}
			default:
				// Selected by the store but not by the policy; only possible
				// if a concurrent write landed between the two reads.
				if wasMarked {
					result.Marked = append(result.Marked, entry)
				}
			}
		}

		// Rows that became eligible between the select and the update.
		for _, id := range marked {
			if _, ok := seen[id]; ok {
				continue
			}
			m, err := tx.GetMembership(ctx, id)
			if err != nil {
				return err
			}
			result.Marked = append(result.Marked, SweepEntry{
				MembershipID: m.ID, UserID: m.UserID, GroupID: m.GroupID,
			})
		}
		return nil
	})
	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("error").Inc()
		s.logger.Error("Overdue sweep failed", "error", err)
		return nil, err
	}

	s.metrics.SweepRuns.WithLabelValues("ok").Inc()
	s.metrics.SweepMarked.Add(float64(len(result.Marked)))
	s.metrics.SweepFailedRows.Add(float64(len(result.Failed)))
	for _, e := range result.Failed {
		s.logger.Warn("Sweep skipped a row that changed concurrently", "membership_id", e.MembershipID, "group_id", e.GroupID)
	}
	s.logger.Info("Overdue sweep completed",
		"marked", len(result.Marked),
		"already_overdue", len(result.AlreadyOverdue),
		"failed", len(result.Failed),
	)
	return result, nil
}

func sweepEntry(m *models.Membership) SweepEntry {
	return SweepEntry{
		MembershipID:   m.ID,
		UserID:         m.UserID,
		GroupID:        m.GroupID,
		PreviousStatus: m.AccessDataStatus,
	}
}
