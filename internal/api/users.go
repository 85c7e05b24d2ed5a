package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"inbox/internal/messaging"
	"inbox/internal/models"
)

type UserHandler struct {
	service *messaging.Service
}

func NewUserHandler(service *messaging.Service) *UserHandler {
	return &UserHandler{service: service}
}

// GET /api/v1/users/{userId}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if GetUserID(r) == "" {
		unauthorized(w, "User not found in context")
		return
	}

	user, err := h.service.GetUser(r.Context(), strings.TrimSpace(chi.URLParam(r, "userId")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, user)
}

// GET /api/v1/connections
func (h *UserHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	users, err := h.service.ListConnections(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}

	writeData(w, http.StatusOK, users)
}
