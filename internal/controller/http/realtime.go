package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/httpx/response"
	"github.com/vadim/glimpse/internal/realtime"
)

// RealtimeHandler upgrades authenticated requests to websocket sessions
// registered in the connection hub.
type RealtimeHandler struct {
	hub      *realtime.Hub
	verifier TokenVerifier
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(hub *realtime.Hub, verifier TokenVerifier, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from a separate origin; the bearer
			// token is the access control, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the realtime route
func (h *RealtimeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/realtime", h.Connect())
}

// Connect handles GET /realtime. The credential arrives as a `token` query
// parameter or an Authorization header; it must be verified before the
// upgrade since a websocket handshake cannot carry an error body afterwards.
func (h *RealtimeHandler) Connect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			response.Unauthorized(w, string(apperr.CodeUnauthorized), "missing access token")
			return
		}
		claims, err := h.verifier.VerifyAccess(token)
		if err != nil {
			response.Unauthorized(w, string(apperr.CodeUnauthorized), "invalid access token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			response.Unauthorized(w, string(apperr.CodeUnauthorized), "invalid access token")
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote its own error response.
			h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
			return
		}

		session := realtime.NewWSSession(conn)
		sessionID := h.hub.Register(userID, session)
		h.logger.Info("realtime session opened", "user_id", userID, "session_id", sessionID)

		// Blocks until the peer disconnects.
		session.ReadLoop()

		h.hub.Unregister(userID, sessionID)
		session.Close()
		h.logger.Info("realtime session closed", "user_id", userID, "session_id", sessionID)
	}
}
