package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	"fleetdesk/internal/bookings/service"
	apperrors "fleetdesk/pkg/errors"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/middleware"
	"fleetdesk/pkg/model"
)

var testLogger = logger.New(logger.Config{Level: logger.ERROR})

// mockBookingService lets each test wire only the call it cares about.
type mockBookingService struct {
	createFn  func(ctx context.Context, b *model.Booking) (*model.Booking, error)
	approveFn func(ctx context.Context, id string, input service.ApproveInput, actor model.Principal) (*model.Booking, error)
	mergeFn   func(ctx context.Context, input service.MergeInput, actor model.Principal) (*model.Booking, error)
	cancelFn  func(ctx context.Context, id string, actor model.Principal) (*model.Booking, error)
}

func (m *mockBookingService) Create(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	return m.createFn(ctx, b)
}
func (m *mockBookingService) GetByID(context.Context, string) (*model.Booking, error) {
	return nil, apperrors.NotFound("booking")
}
func (m *mockBookingService) GetAll(context.Context, int, int64) ([]*model.Booking, int64, error) {
	return nil, 0, nil
}
func (m *mockBookingService) Approve(ctx context.Context, id string, input service.ApproveInput, actor model.Principal) (*model.Booking, error) {
	return m.approveFn(ctx, id, input, actor)
}
func (m *mockBookingService) Complete(context.Context, string, model.Principal) (*model.Booking, error) {
	return nil, apperrors.NotFound("booking")
}
func (m *mockBookingService) Cancel(ctx context.Context, id string, actor model.Principal) (*model.Booking, error) {
	return m.cancelFn(ctx, id, actor)
}
func (m *mockBookingService) Reschedule(context.Context, string, time.Time, *float64, model.Principal) (*model.Booking, error) {
	return nil, apperrors.NotFound("booking")
}
func (m *mockBookingService) Merge(ctx context.Context, input service.MergeInput, actor model.Principal) (*model.Booking, error) {
	return m.mergeFn(ctx, input, actor)
}
func (m *mockBookingService) Unmerge(context.Context, string, model.Principal) (*model.Booking, error) {
	return nil, apperrors.NotFound("booking")
}
func (m *mockBookingService) RemovePassenger(context.Context, string, string, model.Principal) (*model.Booking, error) {
	return nil, apperrors.NotFound("booking")
}

func doRequest(h *BookingHandler, method, path, body string, principal *model.Principal) *httptest.ResponseRecorder {
	router := httprouter.New()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if principal != nil {
		req = req.WithContext(context.WithValue(req.Context(), middleware.PrincipalKey, *principal))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateNormalizesMembersFromWireShapes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
	}{
		{"number", `{"scheduledAt":"2026-09-01T09:00:00Z","members":3}`, 3},
		{"numeric string", `{"scheduledAt":"2026-09-01T09:00:00Z","members":"4"}`, 4},
		{"single-element array", `{"scheduledAt":"2026-09-01T09:00:00Z","members":[2]}`, 2},
		{"absent", `{"scheduledAt":"2026-09-01T09:00:00Z"}`, 1},
	}

	principal := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60718", Username: "arjun", Role: model.RoleUser}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got int
			h := NewBookingHandler(&mockBookingService{
				createFn: func(_ context.Context, b *model.Booking) (*model.Booking, error) {
					got = b.Members
					b.ID = "64b0c5f2a1b2c3d4e5f60719"
					return b, nil
				},
			}, testLogger)

			rec := doRequest(h, http.MethodPost, "/api/v1/bookings", tc.payload, principal)
			if rec.Code != http.StatusCreated {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if got != tc.want {
				t.Errorf("members = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCreateRejectsMalformedMembers(t *testing.T) {
	principal := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60718", Role: model.RoleUser}
	h := NewBookingHandler(&mockBookingService{}, testLogger)

	for _, payload := range []string{
		`{"scheduledAt":"2026-09-01T09:00:00Z","members":"several"}`,
		`{"scheduledAt":"2026-09-01T09:00:00Z","members":[1,2]}`,
		`{"scheduledAt":"2026-09-01T09:00:00Z","members":2.5}`,
	} {
		rec := doRequest(h, http.MethodPost, "/api/v1/bookings", payload, principal)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %s: status = %d, want 400", payload, rec.Code)
		}
	}
}

func TestCreateRequiresAuthentication(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{}, testLogger)
	rec := doRequest(h, http.MethodPost, "/api/v1/bookings", `{}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGuestBookingRequiresManager(t *testing.T) {
	principal := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60718", Role: model.RoleUser}
	h := NewBookingHandler(&mockBookingService{}, testLogger)

	rec := doRequest(h, http.MethodPost, "/api/v1/bookings",
		`{"scheduledAt":"2026-09-01T09:00:00Z","guestName":"Walk In","guestPhone":"+919876543299"}`, principal)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestApproveResponseShape(t *testing.T) {
	manager := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60720", Username: "meera", Role: model.RoleManager}
	h := NewBookingHandler(&mockBookingService{
		approveFn: func(_ context.Context, id string, input service.ApproveInput, _ model.Principal) (*model.Booking, error) {
			return &model.Booking{ID: id, VehicleID: input.VehicleID, Status: model.StatusApproved}, nil
		},
	}, testLogger)

	rec := doRequest(h, http.MethodPost, "/api/v1/bookings/id/64b0c5f2a1b2c3d4e5f60721/approve",
		`{"vehicleId":"64b0c5f2a1b2c3d4e5f60722"}`, manager)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message string         `json:"message"`
		Booking *model.Booking `json:"booking"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message == "" || resp.Booking == nil || resp.Booking.Status != model.StatusApproved {
		t.Errorf("unexpected response: %s", rec.Body.String())
	}
}

func TestMergeResponseUsesMergedBookingKey(t *testing.T) {
	manager := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60720", Role: model.RoleManager}
	h := NewBookingHandler(&mockBookingService{
		mergeFn: func(_ context.Context, input service.MergeInput, _ model.Principal) (*model.Booking, error) {
			return &model.Booking{ID: "64b0c5f2a1b2c3d4e5f60730", Status: model.StatusShared, MergedFrom: input.BookingIDs}, nil
		},
	}, testLogger)

	rec := doRequest(h, http.MethodPost, "/api/v1/bookings/merge",
		`{"bookingIds":["64b0c5f2a1b2c3d4e5f60731","64b0c5f2a1b2c3d4e5f60732"]}`, manager)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp["mergedBooking"]; !ok {
		t.Errorf("response must carry mergedBooking, got %s", rec.Body.String())
	}
}

// Registering the static /bookings/merge route next to the per-booking
// routes must not trip httprouter's wildcard conflict detection, and both
// shapes must resolve.
func TestRegisterRoutesMixesStaticAndParamPaths(t *testing.T) {
	router := httprouter.New()
	h := NewBookingHandler(&mockBookingService{}, testLogger)
	h.RegisterRoutes(router)

	for _, path := range []string{
		"/api/v1/bookings/merge",
		"/api/v1/bookings/id/64b0c5f2a1b2c3d4e5f60721/approve",
		"/api/v1/bookings/id/64b0c5f2a1b2c3d4e5f60721/cancel",
		"/api/v1/bookings/id/64b0c5f2a1b2c3d4e5f60721/passengers/remove",
	} {
		handle, _, _ := router.Lookup(http.MethodPost, path)
		if handle == nil {
			t.Errorf("no route registered for POST %s", path)
		}
	}
	if handle, _, _ := router.Lookup(http.MethodGet, "/api/v1/bookings/id/64b0c5f2a1b2c3d4e5f60721"); handle == nil {
		t.Error("no route registered for GET by ID")
	}
}

func TestApproveForwardsDriverAndScheduleFields(t *testing.T) {
	manager := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60720", Role: model.RoleManager}
	var got service.ApproveInput
	h := NewBookingHandler(&mockBookingService{
		approveFn: func(_ context.Context, id string, input service.ApproveInput, _ model.Principal) (*model.Booking, error) {
			got = input
			return &model.Booking{ID: id, Status: model.StatusApproved}, nil
		},
	}, testLogger)

	rec := doRequest(h, http.MethodPost, "/api/v1/bookings/id/64b0c5f2a1b2c3d4e5f60721/approve",
		`{"vehicleId":"64b0c5f2a1b2c3d4e5f60722","driverName":"Suresh","driverNumber":"+919876500011","scheduledAt":"2026-09-02T10:00:00Z"}`, manager)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got.DriverName != "Suresh" || got.DriverNumber != "+919876500011" {
		t.Errorf("driver fields not forwarded: %+v", got)
	}
	want := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(want) {
		t.Errorf("scheduledAt = %v, want %v", got.ScheduledAt, want)
	}
}

func TestMergeForwardsPrimaryReasonAndNewDetails(t *testing.T) {
	manager := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60720", Role: model.RoleManager}
	var got service.MergeInput
	h := NewBookingHandler(&mockBookingService{
		mergeFn: func(_ context.Context, input service.MergeInput, _ model.Principal) (*model.Booking, error) {
			got = input
			return &model.Booking{ID: "64b0c5f2a1b2c3d4e5f60730", Status: model.StatusShared}, nil
		},
	}, testLogger)

	rec := doRequest(h, http.MethodPost, "/api/v1/bookings/merge",
		`{"bookingIds":["64b0c5f2a1b2c3d4e5f60731","64b0c5f2a1b2c3d4e5f60732"],"primaryBookingId":"64b0c5f2a1b2c3d4e5f60732","managerReason":"Same route","newDetails":{"location":"Central Depot"}}`, manager)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got.PrimaryID != "64b0c5f2a1b2c3d4e5f60732" || got.Reason != "Same route" {
		t.Errorf("primary/reason not forwarded: %+v", got)
	}
	if got.Details == nil || got.Details.Location != "Central Depot" {
		t.Error("newDetails not decoded into merge details")
	}
}

func TestErrorsMapToTaxonomyStatus(t *testing.T) {
	principal := &model.Principal{UserID: "64b0c5f2a1b2c3d4e5f60718", Role: model.RoleUser}
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.NotFound("booking"), http.StatusNotFound},
		{apperrors.Conflict("overlap"), http.StatusConflict},
		{apperrors.Forbidden("nope"), http.StatusForbidden},
		{apperrors.NoChange("nothing matched"), http.StatusBadRequest},
		{apperrors.Validation("bad", nil), http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		h := NewBookingHandler(&mockBookingService{
			cancelFn: func(context.Context, string, model.Principal) (*model.Booking, error) {
				return nil, tc.err
			},
		}, testLogger)
		rec := doRequest(h, http.MethodPost, "/api/v1/bookings/id/64b0c5f2a1b2c3d4e5f60721/cancel", `{}`, principal)
		if rec.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
