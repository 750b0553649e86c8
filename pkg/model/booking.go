package model

import (
	"time"
)

// Status is the lifecycle state of a booking. Legal transitions depend on
// the booking Kind and are enforced by internal/bookings/state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusConfirmed Status = "confirmed"
	StatusShared    Status = "shared"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusMerged    Status = "merged"
)

// Kind discriminates which transition table applies to a booking.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindGuest      Kind = "guest"
	KindShared     Kind = "shared"
)

// Cancellation-history roles.
const (
	CancelRoleManager   = "manager"
	CancelRoleOwner     = "owner"
	CancelRolePassenger = "passenger"
)

// Passenger is one rider entry on a shared-ride booking.
type Passenger struct {
	Username    string    `json:"username" bson:"username"`
	Number      string    `json:"number" bson:"number"`
	Location    string    `json:"location" bson:"location"`
	Reason      string    `json:"reason" bson:"reason"`
	Members     int       `json:"members" bson:"members" validate:"min=1"`
	Duration    float64   `json:"duration" bson:"duration" validate:"gte=0"`
	BookingTime time.Time `json:"bookingTime" bson:"booking_time"`
}

// CancellationRecord is an audit entry appended on every cancel action.
type CancellationRecord struct {
	UserID      string    `json:"userId,omitempty" bson:"user_id,omitempty"`
	Username    string    `json:"username" bson:"username"`
	Number      string    `json:"number" bson:"number"`
	CancelledAt time.Time `json:"cancelledAt" bson:"cancelled_at"`
	Role        string    `json:"role" bson:"role" validate:"oneof=manager owner passenger"`
}

type Booking struct {
	ID string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`

	// Subject: exactly one of UserID or (GuestName, GuestPhone).
	UserID         string `json:"userId,omitempty" bson:"user_id,omitempty" validate:"omitempty,mongodb"`
	GuestName      string `json:"guestName,omitempty" bson:"guest_name,omitempty"`
	GuestPhone     string `json:"guestPhone,omitempty" bson:"guest_phone,omitempty"`
	IsGuestBooking bool   `json:"isGuestBooking" bson:"is_guest_booking"`

	ScheduledAt time.Time `json:"scheduledAt" bson:"scheduled_at" validate:"required"`
	Duration    float64   `json:"duration" bson:"duration" validate:"gte=0"`

	VehicleID     string `json:"vehicleId,omitempty" bson:"vehicle_id,omitempty" validate:"omitempty,mongodb"`
	VehicleName   string `json:"vehicleName,omitempty" bson:"vehicle_name,omitempty"`
	VehicleNumber string `json:"vehicleNumber,omitempty" bson:"vehicle_number,omitempty"`
	DriverName    string `json:"driverName,omitempty" bson:"driver_name,omitempty"`
	DriverNumber  string `json:"driverNumber,omitempty" bson:"driver_number,omitempty"`

	Status Status `json:"status" bson:"status" validate:"required,oneof=pending approved confirmed shared completed cancelled merged"`
	Kind   Kind   `json:"kind" bson:"kind" validate:"required,oneof=registered guest shared"`

	IsSharedRide   bool        `json:"isSharedRide" bson:"is_shared_ride"`
	Passengers     []Passenger `json:"passengers,omitempty" bson:"passengers,omitempty" validate:"omitempty,dive"`
	MergedFrom     []string    `json:"mergedFrom,omitempty" bson:"merged_from,omitempty"`
	MergedInto     string      `json:"mergedInto,omitempty" bson:"merged_into,omitempty"`
	MergeOpID      string      `json:"mergeOpId,omitempty" bson:"merge_op_id,omitempty"`
	OwnerCancelled bool        `json:"ownerCancelled" bson:"owner_cancelled"`

	Members  int    `json:"members" bson:"members" validate:"min=1"`
	Location string `json:"location" bson:"location"`
	Reason   string `json:"reason" bson:"reason"`
	Notes    string `json:"notes,omitempty" bson:"notes,omitempty"`
	IsActive bool   `json:"isActive" bson:"is_active"`

	CancellationHistory []CancellationRecord `json:"cancellationHistory,omitempty" bson:"cancellation_history,omitempty"`

	ApprovedAt   *time.Time `json:"approvedAt,omitempty" bson:"approved_at,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty" bson:"cancelled_at,omitempty"`
	LastEditedAt *time.Time `json:"lastEditedAt,omitempty" bson:"last_edited_at,omitempty"`
	LastEditedBy string     `json:"lastEditedBy,omitempty" bson:"last_edited_by,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`

	// Revision is the optimistic-lock counter. Every CAS write matches on
	// (_id, revision) and increments it, so concurrent conflicting writes
	// fail loudly instead of last-write-wins.
	Revision int64 `json:"revision" bson:"revision"`
}

// EndTime is the exclusive end of the booking's occupancy window,
// ScheduledAt + Duration hours.
func (b *Booking) EndTime() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.Duration * float64(time.Hour)))
}

// Overlaps reports whether the booking's half-open window intersects
// [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.ScheduledAt.Before(end) && b.EndTime().After(start)
}

// MergeDetails carries the manager's optional overrides for a merged
// booking. Status is deliberately absent: a merge result is always shared.
type MergeDetails struct {
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
	Duration     *float64   `json:"duration,omitempty" validate:"omitempty,gte=0"`
	VehicleID    string     `json:"vehicleId,omitempty" validate:"omitempty,mongodb"`
	VehicleName  string     `json:"vehicleName,omitempty"`
	DriverName   string     `json:"driverName,omitempty"`
	DriverNumber string     `json:"driverNumber,omitempty"`
	Location     string     `json:"location,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}
