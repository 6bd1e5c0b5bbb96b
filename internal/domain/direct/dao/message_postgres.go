package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/glimpse/internal/domain/direct/entity"
)

// MessagePostgres implements the message repository for PostgreSQL
type MessagePostgres struct {
	pool *pgxpool.Pool
}

// NewMessagePostgres creates a new PostgreSQL message repository
func NewMessagePostgres(pool *pgxpool.Pool) *MessagePostgres {
	return &MessagePostgres{pool: pool}
}

// Append inserts a message and applies the send side effects in a single
// transaction: the conversation's updated_at is bumped, every participant who
// had hidden the thread is made to see it again (watermarks untouched), and
// the sender's read cursor advances to the new message.
func (r *MessagePostgres) Append(ctx context.Context, conversationID, senderID int64, body string) (*entity.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msg := entity.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, created_at
	`, conversationID, senderID, body).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE conversations SET updated_at = now() WHERE id = $1", conversationID,
	); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversation_participants
		SET hidden = FALSE
		WHERE conversation_id = $1 AND hidden
	`, conversationID); err != nil {
		return nil, fmt.Errorf("unhiding participants: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversation_participants
		SET last_read_message_id = GREATEST(last_read_message_id, $3)
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, senderID, msg.ID); err != nil {
		return nil, fmt.Errorf("advancing sender cursor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing tx: %w", err)
	}

	return &msg, nil
}

// ListPage retrieves up to limit messages newest-first, strictly older than
// beforeID (when non-zero) and strictly newer than floorID.
func (r *MessagePostgres) ListPage(ctx context.Context, conversationID, beforeID, floorID int64, limit int) ([]entity.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages
		WHERE conversation_id = $1
		  AND ($2::bigint = 0 OR id < $2)
		  AND id > $3
		ORDER BY id DESC
		LIMIT $4
	`, conversationID, beforeID, floorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []entity.Message
	for rows.Next() {
		var msg entity.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Body,
			&msg.CreatedAt,
			&msg.ReadAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// Latest retrieves the newest message of a conversation, or nil when empty.
func (r *MessagePostgres) Latest(ctx context.Context, conversationID int64) (*entity.Message, error) {
	var msg entity.Message
	err := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, conversationID).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Body,
		&msg.CreatedAt,
		&msg.ReadAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning latest message: %w", err)
	}
	return &msg, nil
}

// LatestID retrieves the newest message id of a conversation, or 0 when the
// conversation has no messages.
func (r *MessagePostgres) LatestID(ctx context.Context, conversationID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(id), 0) FROM messages WHERE conversation_id = $1", conversationID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("querying latest message id: %w", err)
	}
	return id, nil
}

// CountAfter counts messages with id strictly greater than afterID.
func (r *MessagePostgres) CountAfter(ctx context.Context, conversationID, afterID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND id > $2",
		conversationID, afterID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}
