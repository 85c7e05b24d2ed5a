package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"inbox/internal/auth"
	"inbox/internal/ws"
)

type WebSocketHandler struct {
	hub        *ws.Hub
	jwtService *auth.JWTService
	upgrader   websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, jwtService *auth.JWTService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		jwtService: jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, allowedOrigins)
			},
		},
	}
}

// checkOrigin accepts requests without an Origin header, which native
// clients do not send.
func checkOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return isOriginAllowed(origin, allowedOrigins)
}

// GET /ws?token=
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		unauthorized(w, "Missing token")
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil {
		unauthorized(w, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID)
	client.SendHello()

	go client.WritePump()
	go client.ReadPump()

	if err := h.hub.Register(client); err != nil {
		slog.Warn("websocket register failed", "error", err, "user_id", claims.UserID)
		client.Close()
	}
}
