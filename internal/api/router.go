package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"inbox/internal/auth"
	"inbox/internal/blob"
	"inbox/internal/config"
	"inbox/internal/db"
	"inbox/internal/messaging"
	"inbox/internal/ws"
)

const jsonBodyLimitBytes = 1 << 20

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *ws.Hub
}

// ServerDeps are built by the caller so storage and quota backends can be
// chosen from config. Blobs is nil when attachments live in object storage.
// SendCounter is nil when the send quota is kept in process.
type ServerDeps struct {
	DB          *db.DB
	Messaging   *messaging.Service
	JWT         *auth.JWTService
	Hub         *ws.Hub
	Blobs       *blob.Service
	SendCounter httprate.LimitCounter
}

func NewServer(cfg *config.Config, deps ServerDeps) (*Server, error) {
	ipResolver, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("configuring client ip resolver: %w", err)
	}

	messageHandler := NewMessageHandler(deps.Messaging, cfg.Messaging.MaxAttachmentBytes)
	requestHandler := NewRequestHandler(deps.Messaging.Gate())
	userHandler := NewUserHandler(deps.Messaging)
	serverInfoHandler := NewServerInfoHandler(
		cfg.Server.Name,
		cfg.Messaging.MaxContentLength,
		cfg.Messaging.MaxAttachmentBytes,
		cfg.Polling.ConversationInterval,
		cfg.Polling.ThreadInterval,
	)
	healthHandler := NewHealthHandler(deps.DB, deps.Hub)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.JWT, cfg.Server.CORSOrigins)

	authMiddleware := NewAuthMiddleware(deps.JWT)
	sendQuota := SendQuotaMiddleware(cfg.Messaging.SendRateLimit, cfg.Messaging.SendRateWindow, deps.SendCounter)
	uploadLimit := ipRateLimit(ipResolver, 20, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)

	if deps.Blobs != nil {
		mediaHandler := NewMediaHandler(deps.DB.Queries().Messages, deps.Blobs)
		r.Get("/media/{blobID}", mediaHandler.GetBlob)
		r.Get("/media/{blobID}/preview", mediaHandler.GetBlobPreview)
	}

	jsonOnly := chi.Chain(
		maxBodySizeMiddleware(jsonBodyLimitBytes),
		middleware.AllowContentType("application/json"),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)

		r.With(jsonOnly...).Get("/server/info", serverInfoHandler.GetInfo)
		r.With(jsonOnly...).Get("/users/{userId}", userHandler.Get)
		r.With(jsonOnly...).Get("/connections", userHandler.ListConnections)

		r.Route("/messages", func(r chi.Router) {
			r.With(
				uploadLimit,
				middleware.AllowContentType("multipart/form-data"),
				sendQuota,
			).Post("/send-file", messageHandler.SendFile)

			r.Group(func(r chi.Router) {
				r.Use(jsonOnly...)

				r.With(sendQuota).Post("/send", messageHandler.Send)
				r.Get("/conversations", messageHandler.ListConversations)
				r.Get("/unread-count", messageHandler.UnreadCount)
				r.Get("/requests", requestHandler.ListIncoming)
				r.Get("/request-status/{counterpartId}", requestHandler.Status)
				r.Post("/requests/{requestId}/accept", requestHandler.Accept)
				r.Post("/requests/{requestId}/reject", requestHandler.Reject)
				r.Get("/{counterpartId}", messageHandler.ListThread)
				r.Post("/{counterpartId}/read", messageHandler.MarkRead)
			})
		})
	})

	r.With(ipRateLimit(ipResolver, 10, time.Minute)).Get("/ws", wsHandler.ServeWS)

	return &Server{
		router: r,
		config: cfg,
		hub:    deps.Hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	if s.hub != nil {
		s.hub.Shutdown()
	}
}

func ipRateLimit(resolver *ClientIPResolver, limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(resolver.Key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Too many requests, please try again later")
		}),
	)
}
