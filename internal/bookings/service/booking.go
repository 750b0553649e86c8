package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "fleetdesk/internal/bookings/errors"
	"fleetdesk/internal/bookings/repository"
	"fleetdesk/internal/bookings/state"
	"fleetdesk/internal/bookings/validator"
	userrepo "fleetdesk/internal/users/repository"
	vehiclerepo "fleetdesk/internal/vehicles/repository"
	apperrors "fleetdesk/pkg/errors"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/metrics"
	"fleetdesk/pkg/model"
	"fleetdesk/pkg/sanitizer"
)

// Notifier delivers best-effort notifications after a lifecycle operation
// commits. Implementations must never fail the calling operation.
type Notifier interface {
	BookingApproved(ctx context.Context, booking *model.Booking)
	BookingCompleted(ctx context.Context, booking *model.Booking)
	BookingCancelled(ctx context.Context, booking *model.Booking, role string)
	BookingsMerged(ctx context.Context, merged *model.Booking, sourceIDs []string)
	BookingsUnmerged(ctx context.Context, shared *model.Booking)
	PassengerRemoved(ctx context.Context, shared *model.Booking, passenger model.Passenger)
}

// ApproveInput carries the manager's assignment choices. Driver fields
// override the vehicle record when set; a non-nil ScheduledAt moves the
// booking to that slot as part of the approval.
type ApproveInput struct {
	VehicleID    string
	DriverName   string
	DriverNumber string
	ScheduledAt  *time.Time
}

// MergeInput is a manager's merge request. PrimaryID selects the source
// booking whose location, requester and vehicle seed the shared ride; it
// defaults to the first ID when empty.
type MergeInput struct {
	BookingIDs []string
	PrimaryID  string
	Details    *model.MergeDetails
	Reason     string
	OpID       string
}

type BookingService interface {
	Create(ctx context.Context, booking *model.Booking) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	Approve(ctx context.Context, id string, input ApproveInput, actor model.Principal) (*model.Booking, error)
	Complete(ctx context.Context, id string, actor model.Principal) (*model.Booking, error)
	Cancel(ctx context.Context, id string, actor model.Principal) (*model.Booking, error)
	Reschedule(ctx context.Context, id string, scheduledAt time.Time, duration *float64, actor model.Principal) (*model.Booking, error)
	Merge(ctx context.Context, input MergeInput, actor model.Principal) (*model.Booking, error)
	Unmerge(ctx context.Context, id string, actor model.Principal) (*model.Booking, error)
	RemovePassenger(ctx context.Context, id string, phone string, actor model.Principal) (*model.Booking, error)
}

type bookingService struct {
	repo        repository.BookingRepository
	vehicleRepo vehiclerepo.VehicleRepository
	userRepo    userrepo.UserRepository
	locks       repository.SlotLockRepository
	validator   *validator.BookingValidator
	notifier    Notifier
	metrics     *metrics.Metrics
	log         *logger.Logger
}

func NewBookingService(
	repo repository.BookingRepository,
	vehicleRepo vehiclerepo.VehicleRepository,
	userRepo userrepo.UserRepository,
	locks repository.SlotLockRepository,
	v *validator.BookingValidator,
	notifier Notifier,
	m *metrics.Metrics,
	log *logger.Logger,
) BookingService {
	return &bookingService{
		repo:        repo,
		vehicleRepo: vehicleRepo,
		userRepo:    userRepo,
		locks:       locks,
		validator:   v,
		notifier:    notifier,
		metrics:     m,
		log:         log,
	}
}

func (s *bookingService) Create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	booking.Location = sanitizer.SanitizeName(booking.Location)
	booking.Reason = sanitizer.SanitizeName(booking.Reason)
	booking.GuestName = sanitizer.SanitizeName(booking.GuestName)
	if booking.GuestPhone != "" {
		if normalized := sanitizer.SanitizePhone(booking.GuestPhone); normalized != "" {
			booking.GuestPhone = normalized
		}
	}

	if booking.Kind == "" {
		booking.Kind = state.KindOf(booking)
	}
	booking.IsGuestBooking = booking.Kind == model.KindGuest
	booking.Status = state.InitialStatus(booking.Kind)
	booking.IsActive = true
	booking.Revision = 0
	if booking.Members <= 0 {
		booking.Members = 1
	}

	if err := s.validator.ValidateBooking(booking); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.BookingsCreated.Inc()
	s.log.Info("booking created",
		"booking_id", booking.ID,
		"kind", booking.Kind,
		"status", booking.Status,
		"scheduled_at", booking.ScheduledAt,
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	bookings, err := s.repo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return bookings, total, nil
}

// Approve assigns a vehicle to a pending booking. The scheduling-conflict
// check and all writes run inside one transaction, serialized per
// vehicle/slot by an advisory lock so two managers approving overlapping
// bookings cannot both pass the check. When the manager proposes a new
// time, the lock and the conflict check both cover the proposed slot.
func (s *bookingService) Approve(ctx context.Context, id string, input ApproveInput, actor model.Principal) (*model.Booking, error) {
	if !actor.IsManager() {
		return nil, apperrors.Forbidden("only managers can approve bookings")
	}

	timer := s.operationTimer("approve")
	defer timer()

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if !state.CanTransition(state.KindOf(booking), booking.Status, model.StatusApproved) {
		return nil, apperrors.Conflict("booking cannot be approved from status '" + string(booking.Status) + "'")
	}

	vehicle, err := s.vehicleRepo.FindByID(ctx, input.VehicleID)
	if err != nil {
		return nil, s.mapError(err)
	}

	if input.ScheduledAt != nil && !input.ScheduledAt.IsZero() {
		booking.ScheduledAt = *input.ScheduledAt
	}

	lockKey := repository.SlotKey(vehicle.ID, booking.ScheduledAt)
	if err := s.locks.Acquire(ctx, lockKey); err != nil {
		return nil, s.mapError(err)
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			s.log.Warn("failed to release slot lock", "key", lockKey, "error", err)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		conflicts, err := s.findConflicts(txCtx, vehicle.ID, booking.ScheduledAt, booking.EndTime(), booking.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			s.metrics.SchedulingConflicts.Inc()
			return apperrors.Conflict("vehicle is already booked for an overlapping time slot").
				WithDetails(map[string]any{"conflictingBookingIds": conflicts})
		}

		now := time.Now().UTC()
		booking.VehicleID = vehicle.ID
		booking.VehicleName = vehicle.Name
		booking.VehicleNumber = vehicle.Number
		booking.DriverName = vehicle.DriverName
		booking.DriverNumber = vehicle.DriverNumber
		if input.DriverName != "" {
			booking.DriverName = sanitizer.SanitizeName(input.DriverName)
		}
		if input.DriverNumber != "" {
			booking.DriverNumber = input.DriverNumber
		}
		booking.Status = model.StatusApproved
		booking.ApprovedAt = &now
		booking.LastEditedAt = &now
		booking.LastEditedBy = actor.Username

		if err := s.repo.Replace(txCtx, booking); err != nil {
			return err
		}
		return s.vehicleRepo.UpdateStatus(txCtx, vehicle.ID, model.VehicleAssigned)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.BookingsApproved.Inc()
	s.log.Info("booking approved", "booking_id", booking.ID, "vehicle_id", vehicle.ID, "approved_by", actor.Username)
	s.notifier.BookingApproved(ctx, booking)
	return booking, nil
}

func (s *bookingService) Complete(ctx context.Context, id string, actor model.Principal) (*model.Booking, error) {
	if !actor.IsManager() {
		return nil, apperrors.Forbidden("only managers can complete bookings")
	}

	timer := s.operationTimer("complete")
	defer timer()

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if !state.CanTransition(state.KindOf(booking), booking.Status, model.StatusCompleted) {
		return nil, apperrors.Conflict("booking cannot be completed from status '" + string(booking.Status) + "'")
	}

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()
		booking.Status = model.StatusCompleted
		booking.CompletedAt = &now
		booking.LastEditedAt = &now
		booking.LastEditedBy = actor.Username
		booking.IsActive = false

		if err := s.repo.Replace(txCtx, booking); err != nil {
			return err
		}
		return s.releaseVehicle(txCtx, booking.VehicleID)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.BookingsCompleted.Inc()
	s.log.Info("booking completed", "booking_id", booking.ID, "completed_by", actor.Username)
	s.notifier.BookingCompleted(ctx, booking)
	return booking, nil
}

// Cancel applies the role-dependent cancellation matrix. Managers cancel
// outright. The owner of a shared ride is only flagged, keeping the ride
// alive for the remaining passengers. A passenger on a shared ride is
// matched by phone number and removed; a passenger-style request that
// matches nobody is reported as a no-change rather than an error in
// authorization.
func (s *bookingService) Cancel(ctx context.Context, id string, actor model.Principal) (*model.Booking, error) {
	timer := s.operationTimer("cancel")
	defer timer()

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if state.IsTerminal(booking.Status) {
		return nil, apperrors.Conflict("booking is already in terminal status '" + string(booking.Status) + "'")
	}

	if actor.IsManager() {
		return s.cancelOutright(ctx, booking, actor, model.CancelRoleManager)
	}

	isOwner := booking.UserID != "" && booking.UserID == actor.UserID
	switch {
	case isOwner && booking.IsSharedRide:
		return s.flagOwnerCancelled(ctx, booking, actor)
	case isOwner:
		return s.cancelOutright(ctx, booking, actor, model.CancelRoleOwner)
	case booking.IsSharedRide:
		// A passenger cancelling their seat is withdrawing, so no
		// replacement booking is created for them.
		return s.removePassengerByPhone(ctx, booking, actor.Number, actor, false)
	default:
		return nil, apperrors.Forbidden("you are not allowed to cancel this booking")
	}
}

func (s *bookingService) cancelOutright(ctx context.Context, booking *model.Booking, actor model.Principal, role string) (*model.Booking, error) {
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
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
			Role:        role,
		})

		if err := s.repo.Replace(txCtx, booking); err != nil {
			return err
		}
		return s.releaseVehicle(txCtx, booking.VehicleID)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.BookingsCancelled.Inc()
	s.log.Info("booking cancelled", "booking_id", booking.ID, "role", role, "cancelled_by", actor.Username)
	s.notifier.BookingCancelled(ctx, booking, role)
	return booking, nil
}

// flagOwnerCancelled records the owner's withdrawal from a shared ride
// without touching the ride itself.
func (s *bookingService) flagOwnerCancelled(ctx context.Context, booking *model.Booking, actor model.Principal) (*model.Booking, error) {
	if booking.OwnerCancelled {
		return nil, apperrors.NoChange("owner has already cancelled their participation")
	}

	now := time.Now().UTC()
	booking.OwnerCancelled = true
	booking.LastEditedAt = &now
	booking.LastEditedBy = actor.Username
	booking.CancellationHistory = append(booking.CancellationHistory, model.CancellationRecord{
		UserID:      actor.UserID,
		Username:    actor.Username,
		Number:      actor.Number,
		CancelledAt: now,
		Role:        model.CancelRoleOwner,
	})

	if err := s.repo.Replace(ctx, booking); err != nil {
		return nil, s.mapError(err)
	}

	s.log.Info("owner withdrew from shared ride", "booking_id", booking.ID, "user_id", actor.UserID)
	s.notifier.BookingCancelled(ctx, booking, model.CancelRoleOwner)
	return booking, nil
}

// Reschedule moves a booking to a new time slot. Approved bookings keep
// their vehicle, so the conflict check runs again for the new window.
func (s *bookingService) Reschedule(ctx context.Context, id string, scheduledAt time.Time, duration *float64, actor model.Principal) (*model.Booking, error) {
	if !actor.IsManager() {
		return nil, apperrors.Forbidden("only managers can reschedule bookings")
	}
	if scheduledAt.IsZero() {
		return nil, apperrors.InvalidInput("scheduledAt is required")
	}
	if duration != nil && *duration < 0 {
		return nil, apperrors.Validation("duration cannot be negative", nil)
	}

	timer := s.operationTimer("reschedule")
	defer timer()

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if state.IsTerminal(booking.Status) {
		return nil, apperrors.Conflict("booking is already in terminal status '" + string(booking.Status) + "'")
	}

	newDuration := booking.Duration
	if duration != nil {
		newDuration = *duration
	}

	apply := func(txCtx context.Context) error {
		now := time.Now().UTC()
		booking.ScheduledAt = scheduledAt
		booking.Duration = newDuration
		booking.LastEditedAt = &now
		booking.LastEditedBy = actor.Username
		return s.repo.Replace(txCtx, booking)
	}

	if booking.VehicleID == "" {
		if err := apply(ctx); err != nil {
			return nil, s.mapError(err)
		}
		s.log.Info("booking rescheduled", "booking_id", booking.ID, "scheduled_at", scheduledAt)
		return booking, nil
	}

	candidate := &model.Booking{ScheduledAt: scheduledAt, Duration: newDuration}
	lockKey := repository.SlotKey(booking.VehicleID, scheduledAt)
	if err := s.locks.Acquire(ctx, lockKey); err != nil {
		return nil, s.mapError(err)
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			s.log.Warn("failed to release slot lock", "key", lockKey, "error", err)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		conflicts, err := s.findConflicts(txCtx, booking.VehicleID, candidate.ScheduledAt, candidate.EndTime(), booking.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			s.metrics.SchedulingConflicts.Inc()
			return apperrors.Conflict("vehicle is already booked for an overlapping time slot").
				WithDetails(map[string]any{"conflictingBookingIds": conflicts})
		}
		return apply(txCtx)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.log.Info("booking rescheduled", "booking_id", booking.ID, "scheduled_at", scheduledAt, "duration", newDuration)
	return booking, nil
}

// findConflicts returns the IDs of approved bookings whose occupancy
// window on the vehicle intersects [start, end). The repository narrows by
// start time; the interval-end comparison happens here because the end is
// derived, not stored.
func (s *bookingService) findConflicts(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]string, error) {
	candidates, err := s.repo.FindApprovedByVehicleBefore(ctx, vehicleID, end, excludeID)
	if err != nil {
		return nil, err
	}

	var conflicting []string
	for _, c := range candidates {
		if c.Overlaps(start, end) {
			conflicting = append(conflicting, c.ID)
		}
	}
	return conflicting, nil
}

func (s *bookingService) releaseVehicle(ctx context.Context, vehicleID string) error {
	if vehicleID == "" {
		return nil
	}
	err := s.vehicleRepo.UpdateStatus(ctx, vehicleID, model.VehicleAvailable)
	if errors.Is(err, vehiclerepo.ErrNotFound) {
		// A deleted vehicle must not block finishing the booking.
		s.log.Warn("vehicle missing while releasing", "vehicle_id", vehicleID)
		return nil
	}
	return err
}

func (s *bookingService) operationTimer(operation string) func() {
	start := time.Now()
	return func() {
		s.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// mapError translates repository sentinels into the service error
// taxonomy. AppErrors pass through untouched.
func (s *bookingService) mapError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	switch {
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFound("booking")
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("invalid booking ID format")
	case errors.Is(err, bookingserrors.ErrRevisionConflict):
		return apperrors.Conflict("booking was modified concurrently, retry the request")
	case errors.Is(err, bookingserrors.ErrSlotLocked):
		return apperrors.Conflict("another operation is holding this vehicle slot, retry shortly")
	case errors.Is(err, vehiclerepo.ErrNotFound):
		return apperrors.NotFound("vehicle")
	case errors.Is(err, vehiclerepo.ErrInvalidID):
		return apperrors.InvalidInput("invalid vehicle ID format")
	default:
		return apperrors.Internal("An unexpected error occurred", err)
	}
}
