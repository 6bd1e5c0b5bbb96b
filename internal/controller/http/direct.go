package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/domain/direct/entity"
	"github.com/vadim/glimpse/internal/domain/direct/service"
	"github.com/vadim/glimpse/internal/httpx/response"
)

// DirectService defines the conversation operations the handler needs.
// Interface is defined by consumer (handler), not provider (service).
type DirectService interface {
	FindOrCreateDirect(ctx context.Context, callerID, otherUserID int64) (int64, error)
	ListConversations(ctx context.Context, callerID int64) ([]entity.Summary, error)
	ListMessages(ctx context.Context, in service.ListMessagesInput) (*service.ListMessagesOutput, error)
	SendMessage(ctx context.Context, callerID, conversationID int64, body string) (*entity.MessageView, error)
	MarkRead(ctx context.Context, callerID, conversationID, messageID int64) error
	DeleteConversation(ctx context.Context, callerID, conversationID int64, scope entity.DeleteScope) error
}

// DirectHandler handles HTTP requests for direct conversations
type DirectHandler struct {
	svc DirectService
}

// NewDirectHandler creates a new direct conversation handler
func NewDirectHandler(svc DirectService) *DirectHandler {
	return &DirectHandler{svc: svc}
}

// RegisterRoutes registers conversation routes
func (h *DirectHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.List())
		r.Post("/", h.FindOrCreate())
		r.Get("/{id}/messages", h.ListMessages())
		r.Post("/{id}/messages", h.SendMessage())
		r.Post("/{id}/read", h.MarkRead())
		r.Delete("/{id}", h.Delete())
	})
}

// List handles GET /conversations
func (h *DirectHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		items, err := h.svc.ListConversations(r.Context(), callerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"items": items})
	}
}

// FindOrCreateRequest represents the request body for opening a conversation
type FindOrCreateRequest struct {
	UserID int64 `json:"userId"`
}

// FindOrCreate handles POST /conversations
func (h *DirectHandler) FindOrCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		var req FindOrCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		id, err := h.svc.FindOrCreateDirect(r.Context(), callerID, req.UserID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"item": map[string]any{"id": id}})
	}
}

// ListMessages handles GET /conversations/{id}/messages
func (h *DirectHandler) ListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		conversationID, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid conversation id")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		beforeID, _ := strconv.ParseInt(r.URL.Query().Get("beforeId"), 10, 64)

		page, err := h.svc.ListMessages(r.Context(), service.ListMessagesInput{
			CallerID:       callerID,
			ConversationID: conversationID,
			Limit:          limit,
			BeforeID:       beforeID,
		})
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"items": page.Items, "hasMore": page.HasMore})
	}
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Body string `json:"body"`
}

// SendMessage handles POST /conversations/{id}/messages
func (h *DirectHandler) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		conversationID, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid conversation id")
			return
		}

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		msg, err := h.svc.SendMessage(r.Context(), callerID, conversationID, req.Body)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.Created(w, map[string]any{"item": msg})
	}
}

// MarkReadRequest represents the request body for advancing the read cursor
type MarkReadRequest struct {
	MessageID int64 `json:"messageId"`
}

// MarkRead handles POST /conversations/{id}/read
func (h *DirectHandler) MarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		conversationID, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid conversation id")
			return
		}

		// An empty body means "read everything".
		var req MarkReadRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if err := h.svc.MarkRead(r.Context(), callerID, conversationID, req.MessageID); err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"ok": true})
	}
}

// DeleteRequest represents the request body for deleting a conversation
type DeleteRequest struct {
	Scope string `json:"scope"`
}

// Delete handles DELETE /conversations/{id}. The scope may arrive in the
// body or as a query parameter; anything but "self" means full deletion.
func (h *DirectHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		conversationID, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid conversation id")
			return
		}

		var req DeleteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Scope == "" {
			req.Scope = r.URL.Query().Get("scope")
		}
		scope := entity.ParseDeleteScope(req.Scope)

		if err := h.svc.DeleteConversation(r.Context(), callerID, conversationID, scope); err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"ok": true, "scope": string(scope)})
	}
}

// pathID parses a positive int64 URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
