package dao

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/glimpse/internal/domain/account/entity"
	directentity "github.com/vadim/glimpse/internal/domain/direct/entity"
)

// Duplicate-key sentinels surfaced from unique constraint violations.
var (
	ErrEmailTaken = errors.New("email already registered")
	ErrNameTaken  = errors.New("name already taken")
)

// UserPostgres implements the user repository for PostgreSQL
type UserPostgres struct {
	pool *pgxpool.Pool
}

// NewUserPostgres creates a new PostgreSQL user repository
func NewUserPostgres(pool *pgxpool.Pool) *UserPostgres {
	return &UserPostgres{pool: pool}
}

const userColumns = `id, email, name, COALESCE(bio, ''), COALESCE(avatar_url, ''), password_hash, created_at`

// Create inserts a new user. Duplicate email/name map to the sentinel errors
// above based on the violated constraint.
func (r *UserPostgres) Create(ctx context.Context, email, name, passwordHash string) (*entity.User, error) {
	var u entity.User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING `+userColumns+`
	`, email, name, passwordHash).Scan(
		&u.ID, &u.Email, &u.Name, &u.Bio, &u.AvatarURL, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return &u, nil
}

// GetByID retrieves a user by id, or nil when absent.
func (r *UserPostgres) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

// GetByEmail retrieves a user by email, or nil when absent.
func (r *UserPostgres) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

func (r *UserPostgres) get(ctx context.Context, query string, arg any) (*entity.User, error) {
	var u entity.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.Bio, &u.AvatarURL, &u.PasswordHash, &u.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// UpdateProfile applies the non-nil profile fields to the user.
func (r *UserPostgres) UpdateProfile(ctx context.Context, id int64, name, bio, avatarURL *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
		    bio = COALESCE($3, bio),
		    avatar_url = COALESCE($4, avatar_url)
		WHERE id = $1
	`, id, name, bio, avatarURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrNameTaken
		}
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

// Exists reports whether a user id is registered.
func (r *UserPostgres) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return exists, nil
}

// Refs resolves user ids to their compact display representation.
func (r *UserPostgres) Refs(ctx context.Context, ids []int64) (map[int64]directentity.UserRef, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, name, COALESCE(avatar_url, '') FROM users WHERE id = ANY($1)", ids,
	)
	if err != nil {
		return nil, fmt.Errorf("querying user refs: %w", err)
	}
	defer rows.Close()

	refs := make(map[int64]directentity.UserRef, len(ids))
	for rows.Next() {
		var ref directentity.UserRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.AvatarURL); err != nil {
			return nil, fmt.Errorf("scanning user ref: %w", err)
		}
		refs[ref.ID] = ref
	}
	return refs, nil
}

// Profile retrieves the public profile of a user with follow counts and the
// viewer's follow relationship (viewerID 0 means anonymous).
func (r *UserPostgres) Profile(ctx context.Context, id, viewerID int64) (*entity.Profile, error) {
	var p entity.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.name, COALESCE(u.bio, ''), COALESCE(u.avatar_url, ''),
		       (SELECT COUNT(*) FROM follows WHERE followee_id = u.id),
		       (SELECT COUNT(*) FROM follows WHERE follower_id = u.id),
		       EXISTS (SELECT 1 FROM follows WHERE follower_id = $2 AND followee_id = u.id)
		FROM users u
		WHERE u.id = $1
	`, id, viewerID).Scan(
		&p.ID, &p.Name, &p.Bio, &p.AvatarURL, &p.Followers, &p.Following, &p.IsFollowing,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning profile: %w", err)
	}
	return &p, nil
}

// Search matches users by name or email substring, excluding the caller,
// ordered by name.
func (r *UserPostgres) Search(ctx context.Context, callerID int64, query string, limit int) ([]entity.SearchResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email
		FROM users
		WHERE id <> $1
		  AND (name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY name ASC
		LIMIT $3
	`, callerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	defer rows.Close()

	results := []entity.SearchResult{}
	for rows.Next() {
		var res entity.SearchResult
		if err := rows.Scan(&res.ID, &res.Name, &res.Email); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// Followers lists the users following id, newest edge first, with the
// viewer's own follow relationship per row (viewerID 0 means anonymous).
func (r *UserPostgres) Followers(ctx context.Context, id, viewerID int64) ([]entity.FollowEntry, error) {
	return r.listFollowEdges(ctx, `
		SELECT u.id, u.name, COALESCE(u.avatar_url, ''), f.created_at,
		       EXISTS (SELECT 1 FROM follows v WHERE v.follower_id = $2 AND v.followee_id = u.id)
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = $1
		ORDER BY f.created_at DESC
	`, id, viewerID)
}

// Following lists the users id follows, newest edge first, with the viewer's
// own follow relationship per row.
func (r *UserPostgres) Following(ctx context.Context, id, viewerID int64) ([]entity.FollowEntry, error) {
	return r.listFollowEdges(ctx, `
		SELECT u.id, u.name, COALESCE(u.avatar_url, ''), f.created_at,
		       EXISTS (SELECT 1 FROM follows v WHERE v.follower_id = $2 AND v.followee_id = u.id)
		FROM follows f
		JOIN users u ON u.id = f.followee_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC
	`, id, viewerID)
}

func (r *UserPostgres) listFollowEdges(ctx context.Context, query string, id, viewerID int64) ([]entity.FollowEntry, error) {
	rows, err := r.pool.Query(ctx, query, id, viewerID)
	if err != nil {
		return nil, fmt.Errorf("querying follow edges: %w", err)
	}
	defer rows.Close()

	entries := []entity.FollowEntry{}
	for rows.Next() {
		var e entity.FollowEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.AvatarURL, &e.FollowedAt, &e.IsFollowing); err != nil {
			return nil, fmt.Errorf("scanning follow edge: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating follow edges: %w", err)
	}
	return entries, nil
}

// Follow records a follow edge; already-following is a no-op.
func (r *UserPostgres) Follow(ctx context.Context, followerID, followeeID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (follower_id, followee_id) DO NOTHING
	`, followerID, followeeID)
	if err != nil {
		return fmt.Errorf("inserting follow: %w", err)
	}
	return nil
}

// Unfollow removes a follow edge; not-following is a no-op.
func (r *UserPostgres) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2",
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("deleting follow: %w", err)
	}
	return nil
}
