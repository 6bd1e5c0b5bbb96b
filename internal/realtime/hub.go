package realtime

import (
	"log/slog"
	"sync"
)

// Session is the minimal interface the hub needs from a connected client:
// the ability to push one named event with a JSON-serializable payload.
type Session interface {
	Send(event string, payload any) error
}

// Hub tracks the live sessions of every connected user. It maps user ids to
// one or more active sessions so newly created messages and deletion notices
// can be pushed to all currently-connected endpoints for a user.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[int64]Session
	nextID   int64
	logger   *slog.Logger
}

// NewHub creates a new hub instance.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[int64]map[int64]Session),
		logger:   logger,
	}
}

// Register registers a session for the given user and returns a connection
// id to be used when the session closes.
func (h *Hub) Register(userID int64, s Session) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[userID]; !ok {
		h.sessions[userID] = make(map[int64]Session)
	}

	h.nextID++
	id := h.nextID
	h.sessions[userID][id] = s
	return id
}

// Unregister removes a previously-registered session.
func (h *Hub) Unregister(userID, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.sessions[userID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(h.sessions, userID)
		}
	}
}

// Connected reports whether the user has at least one live session.
func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// NotifyUser pushes an event to every live session of the user. Delivery is
// best-effort: an absent user is a no-op, and sessions that fail to accept
// the event are dropped from the hub so stale connections don't accumulate.
func (h *Hub) NotifyUser(userID int64, event string, payload any) {
	h.mu.RLock()
	conns := make(map[int64]Session, len(h.sessions[userID]))
	for id, s := range h.sessions[userID] {
		conns[id] = s
	}
	h.mu.RUnlock()

	var failedIDs []int64
	for id, s := range conns {
		if err := s.Send(event, payload); err != nil {
			h.logger.Warn("dropping realtime session",
				"user_id", userID, "session_id", id, "event", event, "error", err)
			failedIDs = append(failedIDs, id)
		}
	}

	for _, id := range failedIDs {
		h.Unregister(userID, id)
	}
}
