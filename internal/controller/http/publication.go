package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/domain/publication/entity"
	"github.com/vadim/glimpse/internal/domain/publication/service"
	"github.com/vadim/glimpse/internal/httpx/response"
)

// PublicationService defines the post operations the handler needs.
type PublicationService interface {
	CreatePost(ctx context.Context, in service.CreateInput) (*entity.Post, error)
	ListPosts(ctx context.Context, in service.ListInput) ([]entity.PostView, error)
	GetPost(ctx context.Context, id, viewerID int64) (*entity.PostView, error)
	UpdatePost(ctx context.Context, id, callerID int64, in service.UpdateInput) (*entity.PostView, error)
	DeletePost(ctx context.Context, id, callerID int64) error
	Like(ctx context.Context, postID, callerID int64) (*entity.LikeState, error)
	Unlike(ctx context.Context, postID, callerID int64) (*entity.LikeState, error)
	AddComment(ctx context.Context, postID, authorID int64, body string) (*entity.CommentView, error)
	ListComments(ctx context.Context, postID, viewerID int64) ([]entity.CommentView, error)
	UpdateComment(ctx context.Context, id, callerID int64, body string) (*entity.CommentView, error)
	DeleteComment(ctx context.Context, id, callerID int64) error
	LikeComment(ctx context.Context, commentID, callerID int64) (*entity.LikeState, error)
	UnlikeComment(ctx context.Context, commentID, callerID int64) (*entity.LikeState, error)
	Feed(ctx context.Context, userID int64, limit, offset int) ([]entity.PostView, error)
}

// PublicationHandler handles HTTP requests for posts, likes, comments and the feed
type PublicationHandler struct {
	svc      PublicationService
	verifier TokenVerifier
}

// NewPublicationHandler creates a new publication handler
func NewPublicationHandler(svc PublicationService, verifier TokenVerifier) *PublicationHandler {
	return &PublicationHandler{svc: svc, verifier: verifier}
}

// RegisterRoutes registers post, comment and feed routes
func (h *PublicationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/posts", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(OptionalAuth(h.verifier))
			r.Get("/", h.List())
			r.Get("/{id}", h.Get())
			r.Get("/{id}/comments", h.ListComments())
		})
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.verifier))
			r.Post("/", h.Create())
			r.Put("/{id}", h.Update())
			r.Delete("/{id}", h.Delete())
			r.Post("/{id}/like", h.Like())
			r.Delete("/{id}/like", h.Unlike())
			r.Post("/{id}/comments", h.AddComment())
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.verifier))
		r.Put("/comments/{id}", h.UpdateComment())
		r.Delete("/comments/{id}", h.DeleteComment())
		r.Post("/comments/{id}/like", h.LikeComment())
		r.Delete("/comments/{id}/like", h.UnlikeComment())
		r.Get("/feed", h.Feed())
	})
}

// CreatePostRequest represents the request body for creating a post
type CreatePostRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// Create handles POST /posts
func (h *PublicationHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		var req CreatePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		post, err := h.svc.CreatePost(r.Context(), service.CreateInput{
			OwnerID:  callerID,
			Title:    req.Title,
			Content:  req.Content,
			ImageURL: req.ImageURL,
		})
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.Created(w, map[string]any{"item": post})
	}
}

// List handles GET /posts
func (h *PublicationHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, _ := UserIDFrom(r.Context())

		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		var ownerID int64
		switch owner := q.Get("owner"); owner {
		case "":
		case "me":
			if viewerID == 0 {
				response.Unauthorized(w, string(apperr.CodeUnauthorized), "owner=me requires authentication")
				return
			}
			ownerID = viewerID
		default:
			id, err := strconv.ParseInt(owner, 10, 64)
			if err != nil || id <= 0 {
				response.BadRequest(w, string(apperr.CodeValidation), "invalid owner filter")
				return
			}
			ownerID = id
		}

		items, err := h.svc.ListPosts(r.Context(), service.ListInput{
			ViewerID: viewerID,
			Query:    q.Get("q"),
			OwnerID:  ownerID,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"items": items})
	}
}

// Get handles GET /posts/{id}
func (h *PublicationHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid post id")
			return
		}
		viewerID, _ := UserIDFrom(r.Context())

		item, err := h.svc.GetPost(r.Context(), id, viewerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"item": item})
	}
}

// UpdatePostRequest represents the request body for editing a post. Absent
// fields are left unchanged.
type UpdatePostRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

// Update handles PUT /posts/{id}
func (h *PublicationHandler) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid post id")
			return
		}

		var req UpdatePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		item, err := h.svc.UpdatePost(r.Context(), id, callerID, service.UpdateInput{
			Title:    req.Title,
			Content:  req.Content,
			ImageURL: req.ImageURL,
		})
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"item": item})
	}
}

// Delete handles DELETE /posts/{id}
func (h *PublicationHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid post id")
			return
		}

		if err := h.svc.DeletePost(r.Context(), id, callerID); err != nil {
			response.FromError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// Like handles POST /posts/{id}/like
func (h *PublicationHandler) Like() http.HandlerFunc {
	return h.likeAction(func(ctx context.Context, postID, callerID int64) (*entity.LikeState, error) {
		return h.svc.Like(ctx, postID, callerID)
	})
}

// Unlike handles DELETE /posts/{id}/like
func (h *PublicationHandler) Unlike() http.HandlerFunc {
	return h.likeAction(func(ctx context.Context, postID, callerID int64) (*entity.LikeState, error) {
		return h.svc.Unlike(ctx, postID, callerID)
	})
}

func (h *PublicationHandler) likeAction(fn func(ctx context.Context, postID, callerID int64) (*entity.LikeState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid post id")
			return
		}

		state, err := fn(r.Context(), id, callerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, state)
	}
}

// AddCommentRequest represents the request body for adding a comment
type AddCommentRequest struct {
	Body string `json:"body"`
}

// AddComment handles POST /posts/{id}/comments
func (h *PublicationHandler) AddComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid post id")
			return
		}

		var req AddCommentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		comment, err := h.svc.AddComment(r.Context(), id, callerID, req.Body)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.Created(w, map[string]any{"item": comment})
	}
}

// ListComments handles GET /posts/{id}/comments
func (h *PublicationHandler) ListComments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid post id")
			return
		}
		viewerID, _ := UserIDFrom(r.Context())

		items, err := h.svc.ListComments(r.Context(), id, viewerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"items": items})
	}
}

// UpdateComment handles PUT /comments/{id}
func (h *PublicationHandler) UpdateComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid comment id")
			return
		}

		var req AddCommentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		item, err := h.svc.UpdateComment(r.Context(), id, callerID, req.Body)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"item": item})
	}
}

// LikeComment handles POST /comments/{id}/like
func (h *PublicationHandler) LikeComment() http.HandlerFunc {
	return h.commentLikeAction(func(ctx context.Context, commentID, callerID int64) (*entity.LikeState, error) {
		return h.svc.LikeComment(ctx, commentID, callerID)
	})
}

// UnlikeComment handles DELETE /comments/{id}/like
func (h *PublicationHandler) UnlikeComment() http.HandlerFunc {
	return h.commentLikeAction(func(ctx context.Context, commentID, callerID int64) (*entity.LikeState, error) {
		return h.svc.UnlikeComment(ctx, commentID, callerID)
	})
}

func (h *PublicationHandler) commentLikeAction(fn func(ctx context.Context, commentID, callerID int64) (*entity.LikeState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid comment id")
			return
		}

		state, err := fn(r.Context(), id, callerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, state)
	}
}

// DeleteComment handles DELETE /comments/{id}
func (h *PublicationHandler) DeleteComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid comment id")
			return
		}

		if err := h.svc.DeleteComment(r.Context(), id, callerID); err != nil {
			response.FromError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// Feed handles GET /feed
func (h *PublicationHandler) Feed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		items, err := h.svc.Feed(r.Context(), callerID, limit, offset)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"items": items})
	}
}
