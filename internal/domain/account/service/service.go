package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/auth"
	"github.com/vadim/glimpse/internal/domain/account/dao"
	"github.com/vadim/glimpse/internal/domain/account/entity"
)

const (
	minPasswordLength = 8
	maxNameLength     = 64
	maxBioLength      = 500
	searchLimit       = 20
)

// UserRepository is the persistence surface the account service needs.
type UserRepository interface {
	Create(ctx context.Context, email, name, passwordHash string) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UpdateProfile(ctx context.Context, id int64, name, bio, avatarURL *string) error
	Profile(ctx context.Context, id, viewerID int64) (*entity.Profile, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Search(ctx context.Context, callerID int64, query string, limit int) ([]entity.SearchResult, error)
	Followers(ctx context.Context, id, viewerID int64) ([]entity.FollowEntry, error)
	Following(ctx context.Context, id, viewerID int64) ([]entity.FollowEntry, error)
	Follow(ctx context.Context, followerID, followeeID int64) error
	Unfollow(ctx context.Context, followerID, followeeID int64) error
}

// TokenIssuer mints and verifies the token pair handed out at login.
// Implemented by auth.Manager.
type TokenIssuer interface {
	IssueAccess(userID int64, email, name string) (string, error)
	IssueRefresh(userID int64, email, name string) (string, error)
	VerifyRefresh(tokenString string) (*auth.Claims, error)
}

// Service implements registration, login and the user profile operations.
type Service struct {
	users  UserRepository
	tokens TokenIssuer
	logger *slog.Logger
}

// New creates a new account service.
func New(users UserRepository, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register creates a new account and returns the user with a fresh token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, *entity.TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, apperr.Invalid("a valid email is required")
	}
	if name == "" || len(name) > maxNameLength {
		return nil, nil, apperr.Invalid(fmt.Sprintf("name must be 1-%d characters", maxNameLength))
	}
	if len(in.Password) < minPasswordLength {
		return nil, nil, apperr.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, apperr.Internal("hashing password", err)
	}

	user, err := s.users.Create(ctx, email, name, hash)
	if err != nil {
		switch {
		case errors.Is(err, dao.ErrEmailTaken):
			return nil, nil, apperr.AlreadyExists("email is already registered")
		case errors.Is(err, dao.ErrNameTaken):
			return nil, nil, apperr.AlreadyExists("name is already taken")
		}
		return nil, nil, apperr.Internal("creating user", err)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

// Login verifies credentials and returns the user with a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*entity.User, *entity.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, apperr.Internal("looking up user", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, nil, apperr.Unauthorized("invalid email or password")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	// Re-read the user so a renamed or deleted account doesn't keep minting
	// tokens with stale claims.
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("looking up user", err)
	}
	if user == nil {
		return nil, apperr.Unauthorized("account no longer exists")
	}
	return s.issuePair(user)
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, userID int64) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("looking up user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return user, nil
}

// UpdateProfileInput carries the optional fields of a profile update; nil
// means leave the field unchanged.
type UpdateProfileInput struct {
	Name      *string
	Bio       *string
	AvatarURL *string
}

// UpdateProfile applies the provided fields to the caller's account and
// returns the updated user.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*entity.User, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if trimmed == "" || len(trimmed) > maxNameLength {
			return nil, apperr.Invalid(fmt.Sprintf("name must be 1-%d characters", maxNameLength))
		}
		in.Name = &trimmed
	}
	if in.Bio != nil && len(*in.Bio) > maxBioLength {
		return nil, apperr.Invalid(fmt.Sprintf("bio must be at most %d characters", maxBioLength))
	}

	if err := s.users.UpdateProfile(ctx, userID, in.Name, in.Bio, in.AvatarURL); err != nil {
		if errors.Is(err, dao.ErrNameTaken) {
			return nil, apperr.AlreadyExists("name is already taken")
		}
		return nil, apperr.Internal("updating profile", err)
	}
	return s.Me(ctx, userID)
}

// GetProfile returns the public profile of a user as seen by the viewer.
func (s *Service) GetProfile(ctx context.Context, id, viewerID int64) (*entity.Profile, error) {
	profile, err := s.users.Profile(ctx, id, viewerID)
	if err != nil {
		return nil, apperr.Internal("looking up profile", err)
	}
	if profile == nil {
		return nil, apperr.NotFound("user not found")
	}
	return profile, nil
}

// SearchUsers matches other users by name or email substring. A blank query
// matches nobody.
func (s *Service) SearchUsers(ctx context.Context, callerID int64, query string) ([]entity.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []entity.SearchResult{}, nil
	}

	results, err := s.users.Search(ctx, callerID, query, searchLimit)
	if err != nil {
		return nil, apperr.Internal("searching users", err)
	}
	return results, nil
}

// Followers lists the users following the target, as seen by the viewer.
func (s *Service) Followers(ctx context.Context, targetID, viewerID int64) ([]entity.FollowEntry, error) {
	if err := s.requireUser(ctx, targetID); err != nil {
		return nil, err
	}
	entries, err := s.users.Followers(ctx, targetID, viewerID)
	if err != nil {
		return nil, apperr.Internal("listing followers", err)
	}
	return entries, nil
}

// Following lists the users the target follows, as seen by the viewer.
func (s *Service) Following(ctx context.Context, targetID, viewerID int64) ([]entity.FollowEntry, error) {
	if err := s.requireUser(ctx, targetID); err != nil {
		return nil, err
	}
	entries, err := s.users.Following(ctx, targetID, viewerID)
	if err != nil {
		return nil, apperr.Internal("listing following", err)
	}
	return entries, nil
}

// Follow makes the caller follow the target user. Idempotent.
func (s *Service) Follow(ctx context.Context, callerID, targetID int64) error {
	if err := s.checkFollowTarget(ctx, callerID, targetID); err != nil {
		return err
	}
	if err := s.users.Follow(ctx, callerID, targetID); err != nil {
		return apperr.Internal("recording follow", err)
	}
	return nil
}

// Unfollow removes the caller's follow of the target user. Idempotent.
func (s *Service) Unfollow(ctx context.Context, callerID, targetID int64) error {
	if err := s.checkFollowTarget(ctx, callerID, targetID); err != nil {
		return err
	}
	if err := s.users.Unfollow(ctx, callerID, targetID); err != nil {
		return apperr.Internal("removing follow", err)
	}
	return nil
}

func (s *Service) checkFollowTarget(ctx context.Context, callerID, targetID int64) error {
	if targetID <= 0 || targetID == callerID {
		return apperr.Invalid("cannot follow this user")
	}
	return s.requireUser(ctx, targetID)
}

func (s *Service) requireUser(ctx context.Context, id int64) error {
	exists, err := s.users.Exists(ctx, id)
	if err != nil {
		return apperr.Internal("checking user", err)
	}
	if !exists {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (s *Service) issuePair(user *entity.User) (*entity.TokenPair, error) {
	access, err := s.tokens.IssueAccess(user.ID, user.Email, user.Name)
	if err != nil {
		return nil, apperr.Internal("issuing access token", err)
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, user.Email, user.Name)
	if err != nil {
		return nil, apperr.Internal("issuing refresh token", err)
	}
	return &entity.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
