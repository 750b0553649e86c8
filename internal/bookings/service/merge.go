package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	bookingserrors "fleetdesk/internal/bookings/errors"
	"fleetdesk/internal/bookings/repository"
	"fleetdesk/internal/bookings/state"
	userrepo "fleetdesk/internal/users/repository"
	apperrors "fleetdesk/pkg/errors"
	"fleetdesk/pkg/model"
	"fleetdesk/pkg/sanitizer"
)

// Default reason stamped on a shared ride when the manager gives none.
const defaultMergeReason = "Bookings merged by manager"

// Merge folds two or more active bookings into one shared ride. All writes
// happen in a single transaction: create the shared booking, mark every
// source as merged, and flip vehicle assignments. The operation is
// idempotent on opID, so a retried request returns the ride created by the
// first attempt instead of merging twice.
func (s *bookingService) Merge(ctx context.Context, input MergeInput, actor model.Principal) (*model.Booking, error) {
	if !actor.IsManager() {
		return nil, apperrors.Forbidden("only managers can merge bookings")
	}

	ids := dedupe(input.BookingIDs)
	if len(ids) < 2 {
		return nil, apperrors.InvalidInput("merging requires at least two distinct booking IDs")
	}
	primaryID := input.PrimaryID
	if primaryID == "" {
		primaryID = ids[0]
	} else if !containsID(ids, primaryID) {
		return nil, apperrors.InvalidInput("primaryBookingId must be one of the bookings being merged")
	}
	if err := s.validator.ValidateMergeDetails(input.Details); err != nil {
		return nil, err
	}

	opID := input.OpID
	if opID == "" {
		opID = uuid.NewString()
	} else if existing, err := s.repo.FindByMergeOpID(ctx, opID); err == nil {
		s.log.Info("merge replayed, returning existing shared ride", "merge_op_id", opID, "booking_id", existing.ID)
		return existing, nil
	} else if !errors.Is(err, bookingserrors.ErrNotFound) {
		return nil, s.mapError(err)
	}

	timer := s.operationTimer("merge")
	defer timer()

	sources, err := s.loadMergeSources(ctx, ids)
	if err != nil {
		return nil, err
	}
	primary := sources[0]
	for _, src := range sources {
		if src.ID == primaryID {
			primary = src
			break
		}
	}

	merged, err := s.buildMergedBooking(ctx, sources, primary, input, opID, actor)
	if err != nil {
		return nil, err
	}

	var lockKey string
	if merged.VehicleID != "" {
		lockKey = repository.SlotKey(merged.VehicleID, merged.ScheduledAt)
		if err := s.locks.Acquire(ctx, lockKey); err != nil {
			return nil, s.mapError(err)
		}
		defer func() {
			if err := s.locks.Release(context.WithoutCancel(ctx), lockKey); err != nil {
				s.log.Warn("failed to release slot lock", "key", lockKey, "error", err)
			}
		}()
	}

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if merged.VehicleID != "" {
			conflicts, err := s.findConflicts(txCtx, merged.VehicleID, merged.ScheduledAt, merged.EndTime(), "")
			if err != nil {
				return err
			}
			if outside := subtract(conflicts, ids); len(outside) > 0 {
				s.metrics.SchedulingConflicts.Inc()
				return apperrors.Conflict("vehicle is already booked for an overlapping time slot").
					WithDetails(map[string]any{"conflictingBookingIds": outside})
			}
		}

		if err := s.repo.Create(txCtx, merged); err != nil {
			return err
		}
		if err := s.repo.MarkMerged(txCtx, ids, merged.ID); err != nil {
			return err
		}
		return s.reassignVehicles(txCtx, sources, merged.VehicleID)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.MergesTotal.Inc()
	s.log.Info("bookings merged into shared ride",
		"booking_id", merged.ID,
		"merge_op_id", opID,
		"source_count", len(ids),
		"members", merged.Members,
		"merged_by", actor.Username,
	)
	s.notifier.BookingsMerged(ctx, merged, ids)
	return merged, nil
}

func (s *bookingService) loadMergeSources(ctx context.Context, ids []string) ([]*model.Booking, error) {
	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.mapError(err)
	}

	byID := make(map[string]*model.Booking, len(found))
	for _, b := range found {
		byID[b.ID] = b
	}

	sources := make([]*model.Booking, 0, len(ids))
	for _, id := range ids {
		b, ok := byID[id]
		if !ok {
			return nil, apperrors.NotFoundWithID("booking", id)
		}
		if !state.Mergeable(b) {
			return nil, apperrors.Conflict(
				fmt.Sprintf("booking %s cannot be merged from status '%s'", b.ID, b.Status))
		}
		sources = append(sources, b)
	}
	return sources, nil
}

// buildMergedBooking assembles the shared ride: the union time window over
// all sources, the concatenated passenger list in source order, the
// primary source's location, requester and vehicle, and the manager's
// optional overrides on top.
func (s *bookingService) buildMergedBooking(ctx context.Context, sources []*model.Booking, primary *model.Booking, input MergeInput, opID string, actor model.Principal) (*model.Booking, error) {
	start := sources[0].ScheduledAt
	end := sources[0].EndTime()
	var passengers []model.Passenger
	sourceIDs := make([]string, 0, len(sources))

	for _, src := range sources {
		sourceIDs = append(sourceIDs, src.ID)
		if src.ScheduledAt.Before(start) {
			start = src.ScheduledAt
		}
		if src.EndTime().After(end) {
			end = src.EndTime()
		}

		if src.IsSharedRide && len(src.Passengers) > 0 {
			passengers = append(passengers, src.Passengers...)
		} else {
			p, err := s.passengerFrom(ctx, src)
			if err != nil {
				return nil, err
			}
			passengers = append(passengers, p)
		}
	}

	members := 0
	for _, p := range passengers {
		members += p.Members
	}

	reason := sanitizer.SanitizeName(input.Reason)
	if reason == "" {
		reason = defaultMergeReason
	}

	now := time.Now().UTC()
	merged := &model.Booking{
		ScheduledAt:  start,
		Duration:     round2(end.Sub(start).Hours()),
		Status:       model.StatusShared,
		Kind:         model.KindShared,
		IsSharedRide: true,
		Passengers:   passengers,
		MergedFrom:   sourceIDs,
		MergeOpID:    opID,
		Members:      members,
		UserID:       primary.UserID,
		Location:     primary.Location,
		Reason:       reason,
		IsActive:     true,
		LastEditedAt: &now,
		LastEditedBy: actor.Username,
	}

	// Inherit the primary's vehicle, falling back to the first assigned
	// one, unless overridden below.
	vehicleSources := append([]*model.Booking{primary}, sources...)
	for _, src := range vehicleSources {
		if src.VehicleID != "" {
			merged.VehicleID = src.VehicleID
			merged.VehicleName = src.VehicleName
			merged.VehicleNumber = src.VehicleNumber
			merged.DriverName = src.DriverName
			merged.DriverNumber = src.DriverNumber
			break
		}
	}

	if err := s.applyMergeDetails(ctx, merged, input.Details); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateBooking(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *bookingService) applyMergeDetails(ctx context.Context, merged *model.Booking, details *model.MergeDetails) error {
	if details == nil {
		return nil
	}

	if details.ScheduledAt != nil {
		merged.ScheduledAt = *details.ScheduledAt
	}
	if details.Duration != nil {
		merged.Duration = round2(*details.Duration)
	}
	if details.VehicleID != "" {
		vehicle, err := s.vehicleRepo.FindByID(ctx, details.VehicleID)
		if err != nil {
			return s.mapError(err)
		}
		merged.VehicleID = vehicle.ID
		merged.VehicleName = vehicle.Name
		merged.VehicleNumber = vehicle.Number
		merged.DriverName = vehicle.DriverName
		merged.DriverNumber = vehicle.DriverNumber
	}
	if details.VehicleName != "" {
		merged.VehicleName = details.VehicleName
	}
	if details.DriverName != "" {
		merged.DriverName = details.DriverName
	}
	if details.DriverNumber != "" {
		merged.DriverNumber = details.DriverNumber
	}
	if details.Location != "" {
		merged.Location = sanitizer.SanitizeName(details.Location)
	}
	if details.Notes != "" {
		merged.Notes = details.Notes
	}
	return nil
}

// passengerFrom synthesizes a passenger entry from a non-shared source
// booking. Registered bookings resolve the rider's name and number from
// the user record.
func (s *bookingService) passengerFrom(ctx context.Context, src *model.Booking) (model.Passenger, error) {
	p := model.Passenger{
		Location:    src.Location,
		Reason:      src.Reason,
		Members:     src.Members,
		Duration:    src.Duration,
		BookingTime: src.ScheduledAt,
	}

	if src.IsGuestBooking {
		p.Username = src.GuestName
		p.Number = src.GuestPhone
		return p, nil
	}

	user, err := s.userRepo.FindByID(ctx, src.UserID)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return model.Passenger{}, apperrors.Conflict(
				fmt.Sprintf("booking %s belongs to a user that no longer exists", src.ID))
		}
		return model.Passenger{}, s.mapError(err)
	}
	p.Username = user.Username
	p.Number = user.Number
	return p, nil
}

// reassignVehicles points the shared ride's vehicle at assigned and frees
// every other vehicle the sources were holding.
func (s *bookingService) reassignVehicles(ctx context.Context, sources []*model.Booking, mergedVehicleID string) error {
	released := map[string]bool{}
	for _, src := range sources {
		if src.VehicleID == "" || src.VehicleID == mergedVehicleID || released[src.VehicleID] {
			continue
		}
		released[src.VehicleID] = true
		if err := s.releaseVehicle(ctx, src.VehicleID); err != nil {
			return err
		}
	}

	if mergedVehicleID != "" {
		return s.vehicleRepo.UpdateStatus(ctx, mergedVehicleID, model.VehicleAssigned)
	}
	return nil
}

// Unmerge splits a shared ride apart. Each passenger gets a fresh booking
// that re-enters the lifecycle from the start; the shared ride itself is
// cancelled and its vehicle freed. The original source bookings stay
// merged, so replaying an unmerge cannot resurrect riders twice.
func (s *bookingService) Unmerge(ctx context.Context, id string, actor model.Principal) (*model.Booking, error) {
	if !actor.IsManager() {
		return nil, apperrors.Forbidden("only managers can unmerge bookings")
	}

	timer := s.operationTimer("unmerge")
	defer timer()

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if booking.Status != model.StatusShared || !booking.IsSharedRide {
		return nil, apperrors.Conflict("only an active shared ride can be unmerged")
	}
	if len(booking.MergedFrom) == 0 {
		return nil, apperrors.Conflict("booking is not the result of a merge")
	}

	replacements := make([]*model.Booking, 0, len(booking.Passengers))
	for _, p := range booking.Passengers {
		replacements = append(replacements, s.bookingFromPassenger(ctx, p))
	}

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		for _, r := range replacements {
			if err := s.repo.Create(txCtx, r); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		booking.Status = model.StatusCancelled
		booking.CancelledAt = &now
		booking.LastEditedAt = &now
		booking.LastEditedBy = actor.Username
		booking.IsActive = false
		booking.CancellationHistory = append(booking.CancellationHistory, model.CancellationRecord{
			UserID:      actor.UserID,
			Username:    actor.Username,
			Number:      actor.Number,
			CancelledAt: now,
			Role:        model.CancelRoleManager,
		})

		if err := s.repo.Replace(txCtx, booking); err != nil {
			return err
		}
		return s.releaseVehicle(txCtx, booking.VehicleID)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.UnmergesTotal.Inc()
	s.log.Info("shared ride unmerged",
		"booking_id", booking.ID,
		"replacement_count", len(replacements),
		"unmerged_by", actor.Username,
	)
	s.notifier.BookingsUnmerged(ctx, booking)
	return booking, nil
}

// bookingFromPassenger rebuilds an individual booking for a rider leaving
// an unmerged ride. Riders with a registered account re-enter the approval
// queue; unknown numbers come back as guest bookings.
func (s *bookingService) bookingFromPassenger(ctx context.Context, p model.Passenger) *model.Booking {
	b := &model.Booking{
		ScheduledAt: p.BookingTime,
		Duration:    p.Duration,
		Members:     p.Members,
		Location:    p.Location,
		Reason:      p.Reason,
		IsActive:    true,
	}

	if user, err := s.userRepo.FindByNumber(ctx, p.Number); err == nil {
		b.UserID = user.ID
		b.Kind = model.KindRegistered
	} else {
		b.GuestName = p.Username
		b.GuestPhone = p.Number
		b.IsGuestBooking = true
		b.Kind = model.KindGuest
	}
	b.Status = state.InitialStatus(b.Kind)
	return b
}

// RemovePassenger peels one rider off a shared ride. Managers may remove
// anyone; a rider may only remove themself. The removed rider gets a
// fresh individual booking so they are not left without a ride.
func (s *bookingService) RemovePassenger(ctx context.Context, id string, phone string, actor model.Principal) (*model.Booking, error) {
	if !actor.IsManager() && !sanitizer.SamePhone(actor.Number, phone) {
		return nil, apperrors.Forbidden("you can only remove yourself from a shared ride")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if state.IsTerminal(booking.Status) {
		return nil, apperrors.Conflict("booking is already in terminal status '" + string(booking.Status) + "'")
	}
	if !booking.IsSharedRide {
		return nil, apperrors.Conflict("booking is not a shared ride")
	}

	return s.removePassengerByPhone(ctx, booking, phone, actor, true)
}

func (s *bookingService) removePassengerByPhone(ctx context.Context, booking *model.Booking, phone string, actor model.Principal, createReplacement bool) (*model.Booking, error) {
	idx := -1
	for i, p := range booking.Passengers {
		if sanitizer.SamePhone(phone, p.Number) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, apperrors.NoChange("no passenger with this phone number is on the ride")
	}

	removed := booking.Passengers[idx]
	var replacement *model.Booking
	if createReplacement {
		replacement = s.bookingFromPassenger(ctx, removed)
	}

	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if replacement != nil {
			if err := s.repo.Create(txCtx, replacement); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		booking.Passengers = append(booking.Passengers[:idx:idx], booking.Passengers[idx+1:]...)
		booking.Members -= removed.Members
		booking.LastEditedAt = &now
		booking.LastEditedBy = actor.Username
		booking.CancellationHistory = append(booking.CancellationHistory, model.CancellationRecord{
			UserID:      actor.UserID,
			Username:    removed.Username,
			Number:      removed.Number,
			CancelledAt: now,
			Role:        model.CancelRolePassenger,
		})

		// The last rider leaving collapses the ride entirely.
		if len(booking.Passengers) == 0 {
			booking.Status = model.StatusCancelled
			booking.CancelledAt = &now
			booking.IsActive = false
			booking.Members = 0
			if err := s.repo.Replace(txCtx, booking); err != nil {
				return err
			}
			return s.releaseVehicle(txCtx, booking.VehicleID)
		}
		return s.repo.Replace(txCtx, booking)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.PassengersRemoved.Inc()
	if booking.Status == model.StatusCancelled {
		s.metrics.BookingsCancelled.Inc()
		s.notifier.BookingCancelled(ctx, booking, model.CancelRolePassenger)
	} else {
		s.notifier.PassengerRemoved(ctx, booking, removed)
	}
	replacementID := ""
	if replacement != nil {
		replacementID = replacement.ID
	}
	s.log.Info("passenger removed from shared ride",
		"booking_id", booking.ID,
		"remaining_passengers", len(booking.Passengers),
		"replacement_booking_id", replacementID,
		"removed_by", actor.Username,
	)
	return booking, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func subtract(ids, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []string
	for _, id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
