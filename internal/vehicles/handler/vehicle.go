package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"fleetdesk/internal/vehicles/service"
	apperrors "fleetdesk/pkg/errors"
	httputil "fleetdesk/pkg/http"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/middleware"
	"fleetdesk/pkg/model"
)

type VehicleHandler struct {
	service service.VehicleService
	log     *logger.Logger
}

func NewVehicleHandler(s service.VehicleService, log *logger.Logger) *VehicleHandler {
	return &VehicleHandler{service: s, log: log}
}

func (h *VehicleHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/v1/vehicles", h.Create)
	router.HandlerFunc(http.MethodGet, "/api/v1/vehicles", h.List)
	router.Handle(http.MethodGet, "/api/v1/vehicles/:id", h.GetByID)
	router.Handle(http.MethodPut, "/api/v1/vehicles/:id/status", h.SetStatus)
}

func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		_ = httputil.WriteError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var vehicle model.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&vehicle); err != nil {
		_ = httputil.WriteError(w, apperrors.InvalidInput("invalid JSON body"))
		return
	}

	created, err := h.service.Create(r.Context(), &vehicle, principal)
	if err != nil {
		_ = httputil.WriteError(w, apperrors.AsAppError(err))
		return
	}
	_ = httputil.WriteCreated(w, created)
}

func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		_ = httputil.WriteError(w, err)
		return
	}

	vehicles, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		_ = httputil.WriteError(w, apperrors.AsAppError(err))
		return
	}
	_ = httputil.WritePaginated(w, vehicles, total, limit, offset)
}

func (h *VehicleHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	vehicle, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		_ = httputil.WriteError(w, apperrors.AsAppError(err))
		return
	}
	_ = httputil.WriteSuccess(w, vehicle)
}

type setStatusRequest struct {
	Status model.VehicleStatus `json:"status"`
}

func (h *VehicleHandler) SetStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		_ = httputil.WriteError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httputil.WriteError(w, apperrors.InvalidInput("invalid JSON body"))
		return
	}

	if err := h.service.SetStatus(r.Context(), ps.ByName("id"), req.Status, principal); err != nil {
		_ = httputil.WriteError(w, apperrors.AsAppError(err))
		return
	}
	httputil.WriteNoContent(w)
}
