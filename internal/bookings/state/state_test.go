package state

import (
	"testing"

	"fleetdesk/pkg/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		kind model.Kind
		from model.Status
		to   model.Status
		want bool
	}{
		{model.KindRegistered, model.StatusPending, model.StatusApproved, true},
		{model.KindRegistered, model.StatusPending, model.StatusCancelled, true},
		{model.KindRegistered, model.StatusPending, model.StatusMerged, true},
		{model.KindRegistered, model.StatusPending, model.StatusCompleted, false},
		{model.KindRegistered, model.StatusApproved, model.StatusCompleted, true},
		{model.KindRegistered, model.StatusApproved, model.StatusPending, false},
		{model.KindRegistered, model.StatusCompleted, model.StatusCancelled, false},
		{model.KindRegistered, model.StatusConfirmed, model.StatusCompleted, false},

		{model.KindGuest, model.StatusConfirmed, model.StatusCompleted, true},
		{model.KindGuest, model.StatusConfirmed, model.StatusCancelled, true},
		{model.KindGuest, model.StatusPending, model.StatusApproved, false},

		{model.KindShared, model.StatusShared, model.StatusCompleted, true},
		{model.KindShared, model.StatusShared, model.StatusMerged, true},
		{model.KindShared, model.StatusPending, model.StatusApproved, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.kind, tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s -> %s) = %v, want %v", tc.kind, tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusMerged}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
	live := []model.Status{model.StatusPending, model.StatusApproved, model.StatusConfirmed, model.StatusShared}
	for _, s := range live {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestMergeable(t *testing.T) {
	if !Mergeable(&model.Booking{Kind: model.KindRegistered, Status: model.StatusPending}) {
		t.Error("pending registered booking must be mergeable")
	}
	if !Mergeable(&model.Booking{Kind: model.KindShared, Status: model.StatusShared}) {
		t.Error("active shared ride must be mergeable")
	}
	if Mergeable(&model.Booking{Kind: model.KindRegistered, Status: model.StatusCompleted}) {
		t.Error("completed booking must not be mergeable")
	}
	if Mergeable(&model.Booking{Kind: model.KindGuest, Status: model.StatusPending}) {
		t.Error("guest bookings never sit in pending")
	}
}

func TestInitialStatus(t *testing.T) {
	if got := InitialStatus(model.KindRegistered); got != model.StatusPending {
		t.Errorf("registered initial = %s, want pending", got)
	}
	if got := InitialStatus(model.KindGuest); got != model.StatusConfirmed {
		t.Errorf("guest initial = %s, want confirmed", got)
	}
}

func TestKindOfDerivesLegacyDocuments(t *testing.T) {
	if got := KindOf(&model.Booking{Kind: model.KindGuest}); got != model.KindGuest {
		t.Errorf("explicit kind must win, got %s", got)
	}
	if got := KindOf(&model.Booking{IsSharedRide: true}); got != model.KindShared {
		t.Errorf("shared derivation = %s", got)
	}
	if got := KindOf(&model.Booking{IsGuestBooking: true}); got != model.KindGuest {
		t.Errorf("guest derivation = %s", got)
	}
	if got := KindOf(&model.Booking{}); got != model.KindRegistered {
		t.Errorf("default derivation = %s", got)
	}
}
