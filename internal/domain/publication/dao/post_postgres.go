package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/glimpse/internal/domain/publication/entity"
)

// PostPostgres implements the post repository for PostgreSQL
type PostPostgres struct {
	pool *pgxpool.Pool
}

// NewPostPostgres creates a new PostgreSQL post repository
func NewPostPostgres(pool *pgxpool.Pool) *PostPostgres {
	return &PostPostgres{pool: pool}
}

// viewColumns selects a post joined with its author and counters. $1 is the
// viewer id (0 for anonymous) used for the likedByMe flag.
const viewColumns = `
	p.id, p.owner_id, COALESCE(p.title, ''), p.content, COALESCE(p.image_url, ''),
	p.created_at, p.updated_at,
	u.name, COALESCE(u.avatar_url, ''),
	(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id),
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
	EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = $1)
`

// Create inserts a new post and returns it.
func (r *PostPostgres) Create(ctx context.Context, ownerID int64, title, content, imageURL string) (*entity.Post, error) {
	var p entity.Post
	err := r.pool.QueryRow(ctx, `
		INSERT INTO posts (owner_id, title, content, image_url, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), now(), now())
		RETURNING id, owner_id, COALESCE(title, ''), content, COALESCE(image_url, ''), created_at, updated_at
	`, ownerID, title, content, imageURL).Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Content, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting post: %w", err)
	}
	return &p, nil
}

// GetView retrieves a single post with author and counters as seen by the
// viewer, or nil when absent.
func (r *PostPostgres) GetView(ctx context.Context, id, viewerID int64) (*entity.PostView, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+viewColumns+`
		FROM posts p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = $2
	`, viewerID, id)

	view, err := scanView(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning post: %w", err)
	}
	return view, nil
}

// ListFilter narrows a post listing.
type ListFilter struct {
	Query   string // substring match on title/content, empty for all
	OwnerID int64  // 0 for all owners
	Limit   int
	Offset  int
}

// List returns posts newest-first as seen by the viewer.
func (r *PostPostgres) List(ctx context.Context, viewerID int64, f ListFilter) ([]entity.PostView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+viewColumns+`
		FROM posts p
		JOIN users u ON u.id = p.owner_id
		WHERE ($2 = '' OR p.content ILIKE '%' || $2 || '%' OR p.title ILIKE '%' || $2 || '%')
		  AND ($3::bigint = 0 OR p.owner_id = $3)
		ORDER BY p.id DESC
		LIMIT $4 OFFSET $5
	`, viewerID, f.Query, f.OwnerID, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	return collectViews(rows)
}

// Feed returns posts by the user and everyone they follow, newest-first.
func (r *PostPostgres) Feed(ctx context.Context, userID int64, limit, offset int) ([]entity.PostView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+viewColumns+`
		FROM posts p
		JOIN users u ON u.id = p.owner_id
		WHERE p.owner_id = $1
		   OR p.owner_id IN (SELECT followee_id FROM follows WHERE follower_id = $1)
		ORDER BY p.id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}
	defer rows.Close()

	return collectViews(rows)
}

// Update applies the provided fields to a post; nil pointers leave the column
// untouched. An empty title or image URL clears the column.
func (r *PostPostgres) Update(ctx context.Context, id int64, title, content, imageURL *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET title = CASE WHEN $2::text IS NULL THEN title ELSE NULLIF($2, '') END,
		    content = COALESCE($3, content),
		    image_url = CASE WHEN $4::text IS NULL THEN image_url ELSE NULLIF($4, '') END,
		    updated_at = now()
		WHERE id = $1
	`, id, title, content, imageURL)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}
	return nil
}

// OwnerOf returns the owner id of a post, or 0 when the post is absent.
func (r *PostPostgres) OwnerOf(ctx context.Context, id int64) (int64, error) {
	var ownerID int64
	err := r.pool.QueryRow(ctx, "SELECT owner_id FROM posts WHERE id = $1", id).Scan(&ownerID)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying post owner: %w", err)
	}
	return ownerID, nil
}

// Delete removes a post together with its likes and comments.
func (r *PostPostgres) Delete(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM comment_likes
		WHERE comment_id IN (SELECT id FROM comments WHERE post_id = $1)
	`, id); err != nil {
		return fmt.Errorf("deleting comment likes: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM comments WHERE post_id = $1", id); err != nil {
		return fmt.Errorf("deleting comments: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM post_likes WHERE post_id = $1", id); err != nil {
		return fmt.Errorf("deleting likes: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM posts WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}

	return tx.Commit(ctx)
}

// Like records a like; already-liked is a no-op. Returns the current state.
func (r *PostPostgres) Like(ctx context.Context, postID, userID int64) (*entity.LikeState, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO post_likes (post_id, user_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (post_id, user_id) DO NOTHING
	`, postID, userID)
	if err != nil {
		return nil, fmt.Errorf("inserting like: %w", err)
	}
	return r.likeState(ctx, postID, true)
}

// Unlike removes a like; not-liked is a no-op. Returns the current state.
func (r *PostPostgres) Unlike(ctx context.Context, postID, userID int64) (*entity.LikeState, error) {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2", postID, userID)
	if err != nil {
		return nil, fmt.Errorf("deleting like: %w", err)
	}
	return r.likeState(ctx, postID, false)
}

func (r *PostPostgres) likeState(ctx context.Context, postID int64, liked bool) (*entity.LikeState, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM post_likes WHERE post_id = $1", postID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("counting likes: %w", err)
	}
	return &entity.LikeState{LikeCount: count, Liked: liked}, nil
}

func scanView(row pgx.Row) (*entity.PostView, error) {
	var v entity.PostView
	err := row.Scan(
		&v.ID, &v.OwnerID, &v.Title, &v.Content, &v.ImageURL,
		&v.CreatedAt, &v.UpdatedAt,
		&v.Author.Name, &v.Author.AvatarURL,
		&v.LikeCount, &v.CommentCount, &v.LikedByMe,
	)
	if err != nil {
		return nil, err
	}
	v.Author.ID = v.OwnerID
	return &v, nil
}

func collectViews(rows pgx.Rows) ([]entity.PostView, error) {
	views := []entity.PostView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		views = append(views, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	return views, nil
}
