package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"inbox/internal/messaging"
	"inbox/internal/models"
)

type RequestHandler struct {
	gate *messaging.Gate
}

func NewRequestHandler(gate *messaging.Gate) *RequestHandler {
	return &RequestHandler{gate: gate}
}

// GET /api/v1/messages/requests
func (h *RequestHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	requests, err := h.gate.ListIncoming(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if requests == nil {
		requests = []*models.MessageRequest{}
	}

	writeData(w, http.StatusOK, requests)
}

// GET /api/v1/messages/request-status/{counterpartId}
func (h *RequestHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	counterpartID := strings.TrimSpace(chi.URLParam(r, "counterpartId"))
	view, err := h.gate.Status(r.Context(), userID, counterpartID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, view)
}

// POST /api/v1/messages/requests/{requestId}/accept
func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.gate.Accept)
}

// POST /api/v1/messages/requests/{requestId}/reject
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.gate.Reject)
}

type respondFunc func(ctx context.Context, requestID, actorID string) (*models.MessageRequest, error)

func (h *RequestHandler) respond(w http.ResponseWriter, r *http.Request, fn respondFunc) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	requestID := strings.TrimSpace(chi.URLParam(r, "requestId"))
	if requestID == "" {
		badRequest(w, "requestId is required")
		return
	}

	req, err := fn(r.Context(), requestID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, req)
}
