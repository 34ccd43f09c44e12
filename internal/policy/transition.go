package policy

import (
	"errors"
	"fmt"

	"github.com/mmynk/streamshare/internal/models"
)

// ErrInvalidTransition is returned when an event does not apply to a status.
var ErrInvalidTransition = errors.New("invalid access data transition")

// Event is something that happens to a membership's access data.
type Event int

const (
	// EventSend records a delivery by an owner or admin.
	EventSend Event = iota
	// EventConfirm is the member confirming receipt.
	EventConfirm
	// EventReportProblem is the member declining to confirm.
	EventReportProblem
	// EventExpire is the overdue sweep.
	EventExpire
)

func (e Event) String() string {
	switch e {
	case EventSend:
		return "send"
	case EventConfirm:
		return "confirm"
	case EventReportProblem:
		return "report_problem"
	case EventExpire:
		return "expire"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Transition returns the status reached by applying ev to from.
//
//	PENDING   --send-->            SENT
//	PENDING   --expire-->          OVERDUE
//	SENT      --send-->            SENT
//	SENT      --confirm-->         CONFIRMED
//	SENT      --report_problem-->  SENT
//	SENT      --expire-->          OVERDUE
//	OVERDUE   --send-->            SENT
//	CONFIRMED --confirm-->         CONFIRMED (timestamp refresh only)
//
// Everything else, including any event on an untracked membership, is
// rejected with ErrInvalidTransition.
func Transition(from models.AccessDataStatus, ev Event) (models.AccessDataStatus, error) {
	switch from {
	case models.AccessPending:
		switch ev {
		case EventSend:
			return models.AccessSent, nil
		case EventExpire:
			return models.AccessOverdue, nil
		case EventConfirm, EventReportProblem:
			return "", invalid(from, ev)
		}
	case models.AccessSent:
		switch ev {
		case EventSend, EventReportProblem:
			return models.AccessSent, nil
		case EventConfirm:
			return models.AccessConfirmed, nil
		case EventExpire:
			return models.AccessOverdue, nil
		}
	case models.AccessOverdue:
		switch ev {
		case EventSend:
			return models.AccessSent, nil
		case EventConfirm, EventReportProblem, EventExpire:
			return "", invalid(from, ev)
		}
	case models.AccessConfirmed:
		switch ev {
		case EventConfirm:
			return models.AccessConfirmed, nil
		case EventSend, EventReportProblem, EventExpire:
			return "", invalid(from, ev)
		}
	case models.AccessUntracked:
		return "", invalid(from, ev)
	}
	return "", fmt.Errorf("%w: unknown status %q or event %s", ErrInvalidTransition, from, ev)
}

func invalid(from models.AccessDataStatus, ev Event) error {
	if from == models.AccessUntracked {
		return fmt.Errorf("%w: %s on untracked membership", ErrInvalidTransition, ev)
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
}
