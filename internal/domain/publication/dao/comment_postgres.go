package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/glimpse/internal/domain/publication/entity"
)

// CommentPostgres implements the comment repository for PostgreSQL
type CommentPostgres struct {
	pool *pgxpool.Pool
}

// NewCommentPostgres creates a new PostgreSQL comment repository
func NewCommentPostgres(pool *pgxpool.Pool) *CommentPostgres {
	return &CommentPostgres{pool: pool}
}

// Create inserts a comment and returns it with its author attached.
func (r *CommentPostgres) Create(ctx context.Context, postID, authorID int64, body string) (*entity.CommentView, error) {
	var v entity.CommentView
	err := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO comments (post_id, author_id, body, created_at)
			VALUES ($1, $2, $3, now())
			RETURNING id, post_id, author_id, body, created_at
		)
		SELECT i.id, i.post_id, i.author_id, i.body, i.created_at,
		       u.name, COALESCE(u.avatar_url, '')
		FROM inserted i
		JOIN users u ON u.id = i.author_id
	`, postID, authorID, body).Scan(
		&v.ID, &v.PostID, &v.AuthorID, &v.Body, &v.CreatedAt,
		&v.Author.Name, &v.Author.AvatarURL,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting comment: %w", err)
	}
	v.Author.ID = v.AuthorID
	return &v, nil
}

// ListByPost returns a post's comments oldest-first with their authors and
// like counters as seen by the viewer (0 for anonymous).
func (r *CommentPostgres) ListByPost(ctx context.Context, postID, viewerID int64) ([]entity.CommentView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.post_id, c.author_id, c.body, c.created_at,
		       u.name, COALESCE(u.avatar_url, ''),
		       (SELECT COUNT(*) FROM comment_likes cl WHERE cl.comment_id = c.id),
		       EXISTS (SELECT 1 FROM comment_likes cl WHERE cl.comment_id = c.id AND cl.user_id = $2)
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = $1
		ORDER BY c.id ASC
	`, postID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	views := []entity.CommentView{}
	for rows.Next() {
		var v entity.CommentView
		if err := rows.Scan(
			&v.ID, &v.PostID, &v.AuthorID, &v.Body, &v.CreatedAt,
			&v.Author.Name, &v.Author.AvatarURL,
			&v.LikeCount, &v.LikedByMe,
		); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		v.Author.ID = v.AuthorID
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}
	return views, nil
}

// AuthorOf returns the author id of a comment, or 0 when absent.
func (r *CommentPostgres) AuthorOf(ctx context.Context, id int64) (int64, error) {
	var authorID int64
	err := r.pool.QueryRow(ctx, "SELECT author_id FROM comments WHERE id = $1", id).Scan(&authorID)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying comment author: %w", err)
	}
	return authorID, nil
}

// Update replaces a comment's body and returns the updated view as seen by
// the editor.
func (r *CommentPostgres) Update(ctx context.Context, id, viewerID int64, body string) (*entity.CommentView, error) {
	var v entity.CommentView
	err := r.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE comments SET body = $2 WHERE id = $1
			RETURNING id, post_id, author_id, body, created_at
		)
		SELECT c.id, c.post_id, c.author_id, c.body, c.created_at,
		       u.name, COALESCE(u.avatar_url, ''),
		       (SELECT COUNT(*) FROM comment_likes cl WHERE cl.comment_id = c.id),
		       EXISTS (SELECT 1 FROM comment_likes cl WHERE cl.comment_id = c.id AND cl.user_id = $3)
		FROM updated c
		JOIN users u ON u.id = c.author_id
	`, id, body, viewerID).Scan(
		&v.ID, &v.PostID, &v.AuthorID, &v.Body, &v.CreatedAt,
		&v.Author.Name, &v.Author.AvatarURL,
		&v.LikeCount, &v.LikedByMe,
	)
	if err != nil {
		return nil, fmt.Errorf("updating comment: %w", err)
	}
	v.Author.ID = v.AuthorID
	return &v, nil
}

// Like records a comment like; already-liked is a no-op. Returns the current
// state.
func (r *CommentPostgres) Like(ctx context.Context, commentID, userID int64) (*entity.LikeState, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO comment_likes (comment_id, user_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (comment_id, user_id) DO NOTHING
	`, commentID, userID)
	if err != nil {
		return nil, fmt.Errorf("inserting comment like: %w", err)
	}
	return r.likeState(ctx, commentID, true)
}

// Unlike removes a comment like; not-liked is a no-op. Returns the current
// state.
func (r *CommentPostgres) Unlike(ctx context.Context, commentID, userID int64) (*entity.LikeState, error) {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2", commentID, userID)
	if err != nil {
		return nil, fmt.Errorf("deleting comment like: %w", err)
	}
	return r.likeState(ctx, commentID, false)
}

func (r *CommentPostgres) likeState(ctx context.Context, commentID int64, liked bool) (*entity.LikeState, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM comment_likes WHERE comment_id = $1", commentID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("counting comment likes: %w", err)
	}
	return &entity.LikeState{LikeCount: count, Liked: liked}, nil
}

// Delete removes a comment together with its likes.
func (r *CommentPostgres) Delete(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM comment_likes WHERE comment_id = $1", id); err != nil {
		return fmt.Errorf("deleting comment likes: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM comments WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}

	return tx.Commit(ctx)
}
