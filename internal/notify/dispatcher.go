package notify

import (
	"context"
	"fmt"
	"time"

	"fleetdesk/pkg/kafka"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/metrics"
	"fleetdesk/pkg/model"
)

// Event types published to the booking-events topic.
const (
	EventBookingApproved  = "booking.approved"
	EventBookingCompleted = "booking.completed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingsMerged   = "booking.merged"
	EventBookingsUnmerged = "booking.unmerged"
	EventPassengerRemoved = "booking.passenger_removed"

	eventSource = "dispatch"
)

// Producer is the slice of the Kafka producer the dispatcher needs.
type Producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// UserLookup resolves a booking's registered rider so their phone number
// can be texted.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Dispatcher fans booking lifecycle events out to Kafka and SMS. Every
// delivery is best effort: failures are counted and logged, never
// propagated back into the operation that already committed.
type Dispatcher struct {
	producer Producer
	sms      SMSSender
	users    UserLookup
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewDispatcher(producer Producer, sms SMSSender, users UserLookup, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		producer: producer,
		sms:      sms,
		users:    users,
		metrics:  m,
		log:      log,
	}
}

type bookingEvent struct {
	EventType   string    `json:"eventType"`
	BookingID   string    `json:"bookingId"`
	Status      string    `json:"status"`
	Kind        string    `json:"kind"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Members     int       `json:"members"`
	SourceIDs   []string  `json:"sourceIds,omitempty"`
	Role        string    `json:"role,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func (d *Dispatcher) BookingApproved(ctx context.Context, booking *model.Booking) {
	d.publish(ctx, EventBookingApproved, eventFor(EventBookingApproved, booking))
	d.textSubject(ctx, booking, fmt.Sprintf(
		"Your booking for %s is approved. Vehicle: %s (%s), driver %s.",
		booking.ScheduledAt.Format("Jan 2 15:04"), booking.VehicleName, booking.VehicleNumber, booking.DriverName))
	d.text(ctx, booking.DriverNumber, fmt.Sprintf(
		"New trip assigned: %s departing %s, pickup at %s.",
		booking.VehicleNumber, booking.ScheduledAt.Format("Jan 2 15:04"), booking.Location))
}

func (d *Dispatcher) BookingCompleted(ctx context.Context, booking *model.Booking) {
	d.publish(ctx, EventBookingCompleted, eventFor(EventBookingCompleted, booking))
}

func (d *Dispatcher) BookingCancelled(ctx context.Context, booking *model.Booking, role string) {
	ev := eventFor(EventBookingCancelled, booking)
	ev.Role = role
	d.publish(ctx, EventBookingCancelled, ev)

	// Riders on a cancelled shared ride each get a text; an individual
	// booking only notifies its subject.
	if booking.IsSharedRide {
		for _, p := range booking.Passengers {
			d.text(ctx, p.Number, fmt.Sprintf(
				"Your shared ride for %s has been cancelled.", booking.ScheduledAt.Format("Jan 2 15:04")))
		}
		return
	}
	d.textSubject(ctx, booking, fmt.Sprintf(
		"Your booking for %s has been cancelled.", booking.ScheduledAt.Format("Jan 2 15:04")))
}

func (d *Dispatcher) BookingsMerged(ctx context.Context, merged *model.Booking, sourceIDs []string) {
	ev := eventFor(EventBookingsMerged, merged)
	ev.SourceIDs = sourceIDs
	d.publish(ctx, EventBookingsMerged, ev)

	for _, p := range merged.Passengers {
		d.text(ctx, p.Number, fmt.Sprintf(
			"Your ride has been combined into a shared ride departing %s.", merged.ScheduledAt.Format("Jan 2 15:04")))
	}
}

func (d *Dispatcher) BookingsUnmerged(ctx context.Context, shared *model.Booking) {
	d.publish(ctx, EventBookingsUnmerged, eventFor(EventBookingsUnmerged, shared))

	for _, p := range shared.Passengers {
		d.text(ctx, p.Number,
			"Your shared ride has been split. A new booking has been created for you.")
	}
}

func (d *Dispatcher) PassengerRemoved(ctx context.Context, shared *model.Booking, passenger model.Passenger) {
	d.publish(ctx, EventPassengerRemoved, eventFor(EventPassengerRemoved, shared))
	d.text(ctx, passenger.Number, fmt.Sprintf(
		"You have been removed from the shared ride departing %s.", shared.ScheduledAt.Format("Jan 2 15:04")))
}

func eventFor(eventType string, booking *model.Booking) bookingEvent {
	return bookingEvent{
		EventType:   eventType,
		BookingID:   booking.ID,
		Status:      string(booking.Status),
		Kind:        string(booking.Kind),
		VehicleID:   booking.VehicleID,
		ScheduledAt: booking.ScheduledAt,
		Members:     booking.Members,
		OccurredAt:  time.Now().UTC(),
	}
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, ev bookingEvent) {
	msg := kafka.NewMessage().
		WithKey(ev.BookingID).
		WithValue(ev).
		WithEventType(eventType).
		WithSource(eventSource).
		Build()

	if err := d.producer.Publish(ctx, msg); err != nil {
		d.metrics.NotificationFailures.WithLabelValues("kafka").Inc()
		d.log.Warn("failed to publish booking event",
			"event_type", eventType,
			"booking_id", ev.BookingID,
			"error", err,
		)
	}
}

// textSubject texts the person the booking is for: the guest's phone when
// one is recorded, otherwise the registered rider's number from the user
// record.
func (d *Dispatcher) textSubject(ctx context.Context, booking *model.Booking, body string) {
	if booking.GuestPhone != "" {
		d.text(ctx, booking.GuestPhone, body)
		return
	}
	if booking.UserID == "" {
		return
	}
	user, err := d.users.FindByID(ctx, booking.UserID)
	if err != nil {
		d.metrics.NotificationFailures.WithLabelValues("sms").Inc()
		d.log.Warn("failed to resolve rider for SMS", "booking_id", booking.ID, "error", err)
		return
	}
	d.text(ctx, user.Number, body)
}

func (d *Dispatcher) text(ctx context.Context, to string, body string) {
	if to == "" {
		return
	}
	if err := d.sms.Send(ctx, to, body); err != nil {
		d.metrics.NotificationFailures.WithLabelValues("sms").Inc()
		d.log.Warn("failed to send SMS", "error", err)
	}
}
