package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/domain/account/entity"
	"github.com/vadim/glimpse/internal/domain/account/service"
	"github.com/vadim/glimpse/internal/httpx/response"
)

// AccountService defines the auth and profile operations the handler needs.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*entity.User, *entity.TokenPair, error)
	Login(ctx context.Context, email, password string) (*entity.User, *entity.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error)
	Me(ctx context.Context, userID int64) (*entity.User, error)
	UpdateProfile(ctx context.Context, userID int64, in service.UpdateProfileInput) (*entity.User, error)
	GetProfile(ctx context.Context, id, viewerID int64) (*entity.Profile, error)
	SearchUsers(ctx context.Context, callerID int64, query string) ([]entity.SearchResult, error)
	Followers(ctx context.Context, targetID, viewerID int64) ([]entity.FollowEntry, error)
	Following(ctx context.Context, targetID, viewerID int64) ([]entity.FollowEntry, error)
	Follow(ctx context.Context, callerID, targetID int64) error
	Unfollow(ctx context.Context, callerID, targetID int64) error
}

// AccountHandler handles HTTP requests for auth and user profiles
type AccountHandler struct {
	svc      AccountService
	verifier TokenVerifier
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(svc AccountService, verifier TokenVerifier) *AccountHandler {
	return &AccountHandler{svc: svc, verifier: verifier}
}

// RegisterRoutes registers auth and user routes
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register())
		r.Post("/login", h.Login())
		r.Post("/refresh", h.Refresh())
	})

	r.Route("/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.verifier))
			r.Get("/me", h.Me())
			r.Patch("/me", h.UpdateMe())
			r.Get("/search", h.Search())
			r.Post("/{id}/follow", h.Follow())
			r.Delete("/{id}/follow", h.Unfollow())
		})
		r.Group(func(r chi.Router) {
			r.Use(OptionalAuth(h.verifier))
			r.Get("/{id}", h.Profile())
			r.Get("/{id}/followers", h.Followers())
			r.Get("/{id}/following", h.Following())
		})
	})
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register handles POST /auth/register
func (h *AccountHandler) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		user, tokens, err := h.svc.Register(r.Context(), service.RegisterInput{
			Email:    req.Email,
			Name:     req.Name,
			Password: req.Password,
		})
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.Created(w, map[string]any{"user": user, "tokens": tokens})
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login
func (h *AccountHandler) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		user, tokens, err := h.svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"user": user, "tokens": tokens})
	}
}

// RefreshRequest represents the request body for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /auth/refresh
func (h *AccountHandler) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"tokens": tokens})
	}
}

// Me handles GET /users/me
func (h *AccountHandler) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		user, err := h.svc.Me(r.Context(), callerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"user": user})
	}
}

// UpdateMeRequest represents the request body for a profile update. Absent
// fields are left unchanged.
type UpdateMeRequest struct {
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

// UpdateMe handles PATCH /users/me
func (h *AccountHandler) UpdateMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		var req UpdateMeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid JSON")
			return
		}

		user, err := h.svc.UpdateProfile(r.Context(), callerID, service.UpdateProfileInput{
			Name:      req.Name,
			Bio:       req.Bio,
			AvatarURL: req.AvatarURL,
		})
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"user": user})
	}
}

// Profile handles GET /users/{id}
func (h *AccountHandler) Profile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid user id")
			return
		}
		viewerID, _ := UserIDFrom(r.Context())

		profile, err := h.svc.GetProfile(r.Context(), id, viewerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"user": profile})
	}
}

// Search handles GET /users/search
func (h *AccountHandler) Search() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		items, err := h.svc.SearchUsers(r.Context(), callerID, r.URL.Query().Get("q"))
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"items": items})
	}
}

// Followers handles GET /users/{id}/followers
func (h *AccountHandler) Followers() http.HandlerFunc {
	return h.followListing(func(ctx context.Context, targetID, viewerID int64) ([]entity.FollowEntry, error) {
		return h.svc.Followers(ctx, targetID, viewerID)
	})
}

// Following handles GET /users/{id}/following
func (h *AccountHandler) Following() http.HandlerFunc {
	return h.followListing(func(ctx context.Context, targetID, viewerID int64) ([]entity.FollowEntry, error) {
		return h.svc.Following(ctx, targetID, viewerID)
	})
}

func (h *AccountHandler) followListing(fn func(ctx context.Context, targetID, viewerID int64) ([]entity.FollowEntry, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid user id")
			return
		}
		viewerID, _ := UserIDFrom(r.Context())

		items, err := fn(r.Context(), id, viewerID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"items": items})
	}
}

// Follow handles POST /users/{id}/follow
func (h *AccountHandler) Follow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid user id")
			return
		}

		if err := h.svc.Follow(r.Context(), callerID, id); err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"ok": true})
	}
}

// Unfollow handles DELETE /users/{id}/follow
func (h *AccountHandler) Unfollow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := UserIDFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			response.BadRequest(w, string(apperr.CodeValidation), "invalid user id")
			return
		}

		if err := h.svc.Unfollow(r.Context(), callerID, id); err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{"ok": true})
	}
}
