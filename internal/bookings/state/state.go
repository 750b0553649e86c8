package state

import (
	"fleetdesk/pkg/model"
)

// Per-kind transition tables. Registered bookings go through manager
// approval; guest bookings are created by a manager and enter at confirmed;
// shared bookings are merge results. StatusMerged is reachable only through
// the merge engine, never as a caller-requested transition.
var transitions = map[model.Kind]map[model.Status][]model.Status{
	model.KindRegistered: {
		model.StatusPending:  {model.StatusApproved, model.StatusCancelled, model.StatusMerged},
		model.StatusApproved: {model.StatusCompleted, model.StatusCancelled, model.StatusMerged},
	},
	model.KindGuest: {
		model.StatusConfirmed: {model.StatusCompleted, model.StatusCancelled, model.StatusMerged},
	},
	model.KindShared: {
		model.StatusShared: {model.StatusCompleted, model.StatusCancelled, model.StatusMerged},
	},
}

// IsTerminal reports whether no further state-machine operation may change
// the booking's status.
func IsTerminal(s model.Status) bool {
	switch s {
	case model.StatusCompleted, model.StatusCancelled, model.StatusMerged:
		return true
	}
	return false
}

// CanTransition reports whether a booking of the given kind may move from
// one status to another.
func CanTransition(kind model.Kind, from, to model.Status) bool {
	targets, ok := transitions[kind][from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// Mergeable reports whether a booking may be used as a merge source.
func Mergeable(b *model.Booking) bool {
	return !IsTerminal(b.Status) && CanTransition(b.Kind, b.Status, model.StatusMerged)
}

// InitialStatus returns the entry status for a newly created booking of the
// given kind. Guest bookings skip the approval queue.
func InitialStatus(kind model.Kind) model.Status {
	if kind == model.KindGuest {
		return model.StatusConfirmed
	}
	return model.StatusPending
}

// KindOf derives the kind for bookings persisted before the kind field
// existed.
func KindOf(b *model.Booking) model.Kind {
	if b.Kind != "" {
		return b.Kind
	}
	switch {
	case b.IsSharedRide:
		return model.KindShared
	case b.IsGuestBooking:
		return model.KindGuest
	default:
		return model.KindRegistered
	}
}
