package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"fleetdesk/internal/bookings/service"
	apperrors "fleetdesk/pkg/errors"
	httputil "fleetdesk/pkg/http"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/middleware"
	"fleetdesk/pkg/model"
	"fleetdesk/pkg/sanitizer"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(s service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{service: s, log: log}
}

// Single-booking routes live under /bookings/id/:id so the static
// /bookings/merge segment never collides with the :id wildcard.
func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/v1/bookings", h.Create)
	router.HandlerFunc(http.MethodGet, "/api/v1/bookings", h.List)
	router.HandlerFunc(http.MethodPost, "/api/v1/bookings/merge", h.Merge)
	router.Handle(http.MethodGet, "/api/v1/bookings/id/:id", h.GetByID)
	router.Handle(http.MethodPost, "/api/v1/bookings/id/:id/approve", h.Approve)
	router.Handle(http.MethodPost, "/api/v1/bookings/id/:id/complete", h.Complete)
	router.Handle(http.MethodPost, "/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.Handle(http.MethodPost, "/api/v1/bookings/id/:id/reschedule", h.Reschedule)
	router.Handle(http.MethodPost, "/api/v1/bookings/id/:id/unmerge", h.Unmerge)
	router.Handle(http.MethodPost, "/api/v1/bookings/id/:id/passengers/remove", h.RemovePassenger)
}

// createBookingRequest accepts members as a raw value because clients send
// it as a number, a numeric string or a single-element array.
type createBookingRequest struct {
	GuestName   string    `json:"guestName"`
	GuestPhone  string    `json:"guestPhone"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Duration    float64   `json:"duration"`
	Members     any       `json:"members"`
	Location    string    `json:"location"`
	Reason      string    `json:"reason"`
	Notes       string    `json:"notes"`
}

type bookingResponse struct {
	Message string         `json:"message"`
	Booking *model.Booking `json:"booking"`
}

type mergeResponse struct {
	Message       string         `json:"message"`
	MergedBooking *model.Booking `json:"mergedBooking"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid JSON body"))
		return
	}

	members, err := sanitizer.NormalizeMembers(req.Members)
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput(err.Error()))
		return
	}

	booking := &model.Booking{
		ScheduledAt: req.ScheduledAt,
		Duration:    req.Duration,
		Members:     members,
		Location:    req.Location,
		Reason:      req.Reason,
		Notes:       req.Notes,
	}

	// A guest booking is entered by a manager on behalf of someone without
	// an account; everyone else books for themselves.
	if req.GuestName != "" || req.GuestPhone != "" {
		if !principal.IsManager() {
			h.writeError(w, r, apperrors.Forbidden("only managers can create guest bookings"))
			return
		}
		booking.GuestName = req.GuestName
		booking.GuestPhone = req.GuestPhone
		booking.Kind = model.KindGuest
	} else {
		booking.UserID = principal.UserID
		booking.Kind = model.KindRegistered
	}

	created, err := h.service.Create(r.Context(), booking)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusCreated, bookingResponse{
		Message: "Booking created successfully",
		Booking: created,
	})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	bookings, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WritePaginated(w, bookings, total, limit, offset)
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, booking)
}

type approveRequest struct {
	VehicleID    string     `json:"vehicleId"`
	DriverName   string     `json:"driverName"`
	DriverNumber string     `json:"driverNumber"`
	ScheduledAt  *time.Time `json:"scheduledAt"`
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid JSON body"))
		return
	}
	if req.VehicleID == "" {
		h.writeError(w, r, apperrors.InvalidInput("vehicleId is required"))
		return
	}

	booking, err := h.service.Approve(r.Context(), ps.ByName("id"), service.ApproveInput{
		VehicleID:    req.VehicleID,
		DriverName:   req.DriverName,
		DriverNumber: req.DriverNumber,
		ScheduledAt:  req.ScheduledAt,
	}, principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, bookingResponse{
		Message: "Booking approved successfully",
		Booking: booking,
	})
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	booking, err := h.service.Complete(r.Context(), ps.ByName("id"), principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, bookingResponse{
		Message: "Booking completed successfully",
		Booking: booking,
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	booking, err := h.service.Cancel(r.Context(), ps.ByName("id"), principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, bookingResponse{
		Message: "Booking cancelled successfully",
		Booking: booking,
	})
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
	Duration    *float64  `json:"duration"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid JSON body"))
		return
	}

	booking, err := h.service.Reschedule(r.Context(), ps.ByName("id"), req.ScheduledAt, req.Duration, principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, bookingResponse{
		Message: "Booking rescheduled successfully",
		Booking: booking,
	})
}

type mergeRequest struct {
	BookingIDs       []string            `json:"bookingIds"`
	PrimaryBookingID string              `json:"primaryBookingId"`
	NewDetails       *model.MergeDetails `json:"newDetails"`
	ManagerReason    string              `json:"managerReason"`
	MergeOpID        string              `json:"mergeOpId"`
}

func (h *BookingHandler) Merge(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid JSON body"))
		return
	}

	merged, err := h.service.Merge(r.Context(), service.MergeInput{
		BookingIDs: req.BookingIDs,
		PrimaryID:  req.PrimaryBookingID,
		Details:    req.NewDetails,
		Reason:     req.ManagerReason,
		OpID:       req.MergeOpID,
	}, principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, mergeResponse{
		Message:       "Bookings merged successfully",
		MergedBooking: merged,
	})
}

func (h *BookingHandler) Unmerge(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	booking, err := h.service.Unmerge(r.Context(), ps.ByName("id"), principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, bookingResponse{
		Message: "Shared ride unmerged successfully",
		Booking: booking,
	})
}

type removePassengerRequest struct {
	Number string `json:"number"`
}

func (h *BookingHandler) RemovePassenger(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.Unauthorized("authentication required"))
		return
	}

	var req removePassengerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid JSON body"))
		return
	}
	if req.Number == "" {
		h.writeError(w, r, apperrors.InvalidInput("number is required"))
		return
	}

	booking, err := h.service.RemovePassenger(r.Context(), ps.ByName("id"), req.Number, principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, bookingResponse{
		Message: "Passenger removed successfully",
		Booking: booking,
	})
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.log.Error("request failed",
			"request_id", middleware.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	_ = httputil.WriteError(w, appErr)
}
