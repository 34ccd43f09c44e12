package policy

import (
	"math"
	"time"

	"github.com/mmynk/streamshare/internal/models"
)

// Windows are the deadline durations of the access-data workflow.
type Windows struct {
	// PendingDeadline is added to the creation time of an admitted
	// membership to form its access-data deadline.
	PendingDeadline time.Duration

	// SentGrace is how long a member has to confirm after a delivery.
	SentGrace time.Duration

	// PendingSweepAge is how long a membership may stay PENDING before the
	// sweep marks it overdue.
	PendingSweepAge time.Duration
}

// DefaultWindows returns the 24h/24h/72h windows.
func DefaultWindows() Windows {
	return Windows{
		PendingDeadline: 24 * time.Hour,
		SentGrace:       24 * time.Hour,
		PendingSweepAge: 72 * time.Hour,
	}
}

// Projection is the remaining-time view of a deadline.
type Projection struct {
	IsOverdue bool
	// HoursRemaining is nil when there is no deadline. It is negative once
	// the deadline has passed by more than an hour.
	HoursRemaining *int
}

// ComputeOverdueProjection computes ceil((deadline - now) / 1h) and whether
// now is past the deadline.
func ComputeOverdueProjection(deadline *time.Time, now time.Time) Projection {
	if deadline == nil {
		return Projection{}
	}
	diff := deadline.Sub(now)
	hours := int(math.Ceil(float64(diff) / float64(time.Hour)))
	return Projection{
		IsOverdue:      now.After(*deadline),
		HoursRemaining: &hours,
	}
}

// EffectiveDeadline is the deadline shown for a membership: the confirmation
// window after the last delivery for SENT rows, the admission deadline
// otherwise. Untracked and confirmed rows have none.
func EffectiveDeadline(m *models.Membership, w Windows) *time.Time {
	switch m.AccessDataStatus {
	case models.AccessSent:
		if m.AccessDataSentAt != nil {
			d := m.AccessDataSentAt.Add(w.SentGrace)
			return &d
		}
		return m.AccessDataDeadline
	case models.AccessPending, models.AccessOverdue:
		return m.AccessDataDeadline
	case models.AccessConfirmed, models.AccessUntracked:
		return nil
	}
	return nil
}

// SweepAction is what the overdue sweep does with a membership.
type SweepAction int

const (
	SweepSkip SweepAction = iota
	// SweepMark transitions the row to OVERDUE.
	SweepMark
	// SweepReport lists an already-overdue row without writing it.
	SweepReport
)

// SweepDecision classifies m for a sweep at now. Cutoffs are inclusive: a
// delivery sent exactly SentGrace before now is eligible.
func SweepDecision(m *models.Membership, now time.Time, w Windows) SweepAction {
	switch m.AccessDataStatus {
	case models.AccessSent:
		if m.AccessDataSentAt != nil && !m.AccessDataSentAt.After(now.Add(-w.SentGrace)) {
			return SweepMark
		}
	case models.AccessPending:
		if !m.CreatedAt.After(now.Add(-w.PendingSweepAge)) {
			return SweepMark
		}
	case models.AccessOverdue:
		return SweepReport
	case models.AccessConfirmed, models.AccessUntracked:
	}
	return SweepSkip
}

// SweepCutoffs returns the sentAt and createdAt cutoffs for a store query.
func SweepCutoffs(now time.Time, w Windows) (sentBefore, createdBefore time.Time) {
	return now.Add(-w.SentGrace), now.Add(-w.PendingSweepAge)
}
