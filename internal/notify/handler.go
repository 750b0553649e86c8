package notify

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apperrors "fleetdesk/pkg/errors"
	httputil "fleetdesk/pkg/http"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/middleware"
)

// SubscriptionHandler manages the push endpoints users register to be
// reached when their booking changes state.
type SubscriptionHandler struct {
	subs SubscriptionRepository
	log  *logger.Logger
}

func NewSubscriptionHandler(subs SubscriptionRepository, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, log: log}
}

func (h *SubscriptionHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/v1/subscriptions", h.Subscribe)
	router.HandlerFunc(http.MethodDelete, "/api/v1/subscriptions", h.Unsubscribe)
}

type subscribeRequest struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys"`
}

func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		_ = httputil.WriteError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httputil.WriteError(w, apperrors.InvalidInput("invalid JSON body"))
		return
	}
	if req.Endpoint == "" {
		_ = httputil.WriteError(w, apperrors.InvalidInput("endpoint is required"))
		return
	}

	sub := &PushSubscription{
		UserID:   principal.UserID,
		Endpoint: req.Endpoint,
		Keys:     req.Keys,
	}
	if err := h.subs.Save(r.Context(), sub); err != nil {
		h.log.Error("failed to save push subscription", "error", err)
		_ = httputil.WriteError(w, apperrors.Internal("failed to save subscription", err))
		return
	}
	_ = httputil.WriteCreated(w, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.PrincipalFrom(r.Context()); !ok {
		_ = httputil.WriteError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httputil.WriteError(w, apperrors.InvalidInput("invalid JSON body"))
		return
	}
	if req.Endpoint == "" {
		_ = httputil.WriteError(w, apperrors.InvalidInput("endpoint is required"))
		return
	}

	if err := h.subs.Delete(r.Context(), req.Endpoint); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			_ = httputil.WriteError(w, apperrors.NotFound("subscription"))
			return
		}
		_ = httputil.WriteError(w, apperrors.Internal("failed to delete subscription", err))
		return
	}
	httputil.WriteNoContent(w)
}
