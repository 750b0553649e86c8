package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetdesk/pkg/kafka"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/metrics"
	"fleetdesk/pkg/model"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics("fleetdesk_notify_test")

var testLogger = logger.New(logger.Config{Level: logger.ERROR})

type fakeProducer struct {
	messages []kafka.Message
}

func (f *fakeProducer) Publish(_ context.Context, msg kafka.Message) error {
	f.messages = append(f.messages, msg)
	return nil
}

type fakeSMS struct {
	sent map[string][]string
}

func newFakeSMS() *fakeSMS {
	return &fakeSMS{sent: make(map[string][]string)}
}

func (f *fakeSMS) Send(_ context.Context, to string, body string) error {
	f.sent[to] = append(f.sent[to], body)
	return nil
}

type fakeUsers struct {
	users map[string]*model.User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("user not found")
}

func newTestDispatcher(users map[string]*model.User) (*Dispatcher, *fakeProducer, *fakeSMS) {
	producer := &fakeProducer{}
	sms := newFakeSMS()
	d := NewDispatcher(producer, sms, &fakeUsers{users: users}, testMetrics, testLogger)
	return d, producer, sms
}

func TestApprovedTextsRegisteredRiderAndDriver(t *testing.T) {
	riderID := "64b0c5f2a1b2c3d4e5f60718"
	d, producer, sms := newTestDispatcher(map[string]*model.User{
		riderID: {ID: riderID, Username: "arjun", Number: "+919876543211"},
	})

	d.BookingApproved(context.Background(), &model.Booking{
		ID:           "64b0c5f2a1b2c3d4e5f60719",
		UserID:       riderID,
		Kind:         model.KindRegistered,
		Status:       model.StatusApproved,
		ScheduledAt:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		VehicleName:  "Innova",
		DriverNumber: "+919876500000",
	})

	if len(producer.messages) != 1 {
		t.Fatalf("published events = %d, want 1", len(producer.messages))
	}
	if got := producer.messages[0].Headers[kafka.HeaderEventType]; got != EventBookingApproved {
		t.Errorf("event type = %s, want %s", got, EventBookingApproved)
	}
	if len(sms.sent["+919876543211"]) != 1 {
		t.Error("registered rider must be texted on approval")
	}
	if len(sms.sent["+919876500000"]) != 1 {
		t.Error("driver must be texted on approval")
	}
}

func TestApprovedTextsGuestDirectly(t *testing.T) {
	d, _, sms := newTestDispatcher(nil)

	d.BookingApproved(context.Background(), &model.Booking{
		ID:          "64b0c5f2a1b2c3d4e5f60720",
		GuestPhone:  "+919876543299",
		Kind:        model.KindGuest,
		ScheduledAt: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
	})

	if len(sms.sent["+919876543299"]) != 1 {
		t.Error("guest must be texted on their recorded number")
	}
}

func TestCancelledSharedRideTextsEveryPassenger(t *testing.T) {
	d, _, sms := newTestDispatcher(nil)

	d.BookingCancelled(context.Background(), &model.Booking{
		ID:           "64b0c5f2a1b2c3d4e5f60721",
		IsSharedRide: true,
		Status:       model.StatusCancelled,
		ScheduledAt:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		Passengers: []model.Passenger{
			{Username: "arjun", Number: "+919876543211"},
			{Username: "sana", Number: "+919876543212"},
		},
	}, model.CancelRoleManager)

	for _, number := range []string{"+919876543211", "+919876543212"} {
		if len(sms.sent[number]) != 1 {
			t.Errorf("passenger %s not texted", number)
		}
	}
}
