package api

import (
	"context"
	"net/http"
	"time"

	"inbox/internal/db"
	"inbox/internal/ws"
)

type HealthHandler struct {
	database *db.DB
	hub      *ws.Hub
}

func NewHealthHandler(database *db.DB, hub *ws.Hub) *HealthHandler {
	return &HealthHandler{database: database, hub: hub}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.database.PingContext(ctx); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	body := map[string]any{
		"status": result,
		"checks": map[string]string{
			"database": dbStatus,
		},
	}
	if h.hub != nil {
		body["websocketConnections"] = h.hub.ConnectionCount()
	}
	writeJSON(w, status, body)
}
