package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"fleetdesk/internal/users/service"
	apperrors "fleetdesk/pkg/errors"
	httputil "fleetdesk/pkg/http"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/middleware"
	"fleetdesk/pkg/model"
)

type UserHandler struct {
	service service.UserService
	log     *logger.Logger
}

func NewUserHandler(s service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{service: s, log: log}
}

func (h *UserHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/v1/users/register", h.Register)
	router.HandlerFunc(http.MethodPost, "/api/v1/users/login", h.Login)
	router.Handle(http.MethodGet, "/api/v1/users/:id", h.GetByID)
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = httputil.WriteError(w, apperrors.InvalidInput("invalid JSON body"))
		return
	}

	user, err := h.service.Register(r.Context(), input)
	if err != nil {
		_ = httputil.WriteError(w, apperrors.AsAppError(err))
		return
	}
	_ = httputil.WriteCreated(w, user)
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = httputil.WriteError(w, apperrors.InvalidInput("invalid JSON body"))
		return
	}

	token, user, err := h.service.Login(r.Context(), input)
	if err != nil {
		_ = httputil.WriteError(w, apperrors.AsAppError(err))
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		_ = httputil.WriteError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	id := ps.ByName("id")
	if !principal.IsManager() && principal.UserID != id {
		_ = httputil.WriteError(w, apperrors.Forbidden("you can only view your own profile"))
		return
	}

	user, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		_ = httputil.WriteError(w, apperrors.AsAppError(err))
		return
	}
	_ = httputil.WriteSuccess(w, user)
}
