package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/glimpse/internal/domain/direct/entity"
)

// ConversationPostgres implements the conversation repository for PostgreSQL
type ConversationPostgres struct {
	pool *pgxpool.Pool
}

// NewConversationPostgres creates a new PostgreSQL conversation repository
func NewConversationPostgres(pool *pgxpool.Pool) *ConversationPostgres {
	return &ConversationPostgres{pool: pool}
}

// findDirectQuery matches conversations whose participant set is exactly the
// given pair: both users present and no third participant.
const findDirectQuery = `
	SELECT cp.conversation_id
	FROM conversation_participants cp
	WHERE cp.user_id IN ($1, $2)
	GROUP BY cp.conversation_id
	HAVING COUNT(DISTINCT cp.user_id) = 2
	   AND (SELECT COUNT(*) FROM conversation_participants p2
	        WHERE p2.conversation_id = cp.conversation_id) = 2
	ORDER BY cp.conversation_id DESC
	LIMIT 1
`

// FindDirect returns the id of the existing one-to-one conversation between
// the two users, or 0 when none exists.
func (r *ConversationPostgres) FindDirect(ctx context.Context, a, b int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, findDirectQuery, a, b).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("finding direct conversation: %w", err)
	}
	return id, nil
}

// CreateDirect creates a conversation with two participant rows. Concurrent
// creators for the same pair are serialized with a transaction-scoped
// advisory lock keyed on the unordered pair, and the existence check is
// repeated under the lock, so exactly one conversation survives a race.
func (r *ConversationPostgres) CreateDirect(ctx context.Context, a, b int64) (int64, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := fmt.Sprintf("direct:%d:%d", lo, hi)
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", lockKey); err != nil {
		return 0, fmt.Errorf("acquiring pair lock: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, findDirectQuery, lo, hi).Scan(&id)
	if err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("re-checking direct conversation: %w", err)
	}
	if id == 0 {
		if err := tx.QueryRow(ctx,
			"INSERT INTO conversations (created_at, updated_at) VALUES (now(), now()) RETURNING id",
		).Scan(&id); err != nil {
			return 0, fmt.Errorf("inserting conversation: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, last_read_message_id, hidden, created_at)
			VALUES ($1, $2, 0, FALSE, now()), ($1, $3, 0, FALSE, now())
		`, id, lo, hi); err != nil {
			return 0, fmt.Errorf("inserting participants: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}

	return id, nil
}

// GetByID retrieves a conversation by id, or nil when absent.
func (r *ConversationPostgres) GetByID(ctx context.Context, id int64) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.pool.QueryRow(ctx,
		"SELECT id, created_at, updated_at FROM conversations WHERE id = $1", id,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return &conv, nil
}

// GetParticipant retrieves the participant row for a user in a conversation,
// or nil when the user never joined it.
func (r *ConversationPostgres) GetParticipant(ctx context.Context, conversationID, userID int64) (*entity.Participant, error) {
	var p entity.Participant
	err := r.pool.QueryRow(ctx, `
		SELECT conversation_id, user_id, last_read_message_id, hidden, COALESCE(hidden_since_message_id, 0)
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID).Scan(
		&p.ConversationID,
		&p.UserID,
		&p.LastReadMessageID,
		&p.Hidden,
		&p.HiddenSinceMessageID,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning participant: %w", err)
	}
	return &p, nil
}

// Participants retrieves all participant rows of a conversation.
func (r *ConversationPostgres) Participants(ctx context.Context, conversationID int64) ([]entity.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, user_id, last_read_message_id, hidden, COALESCE(hidden_since_message_id, 0)
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY user_id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []entity.Participant
	for rows.Next() {
		var p entity.Participant
		if err := rows.Scan(
			&p.ConversationID,
			&p.UserID,
			&p.LastReadMessageID,
			&p.Hidden,
			&p.HiddenSinceMessageID,
		); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, nil
}

// ListVisible retrieves the conversations a user has not hidden, newest
// first, together with that user's participant state and the other
// participants' user refs.
func (r *ConversationPostgres) ListVisible(ctx context.Context, userID int64) ([]entity.ListRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.created_at, c.updated_at,
		       cp.last_read_message_id, COALESCE(cp.hidden_since_message_id, 0)
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1 AND cp.hidden = FALSE
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var result []entity.ListRow
	var ids []int64
	index := make(map[int64]int)
	for rows.Next() {
		var row entity.ListRow
		if err := rows.Scan(
			&row.Conversation.ID,
			&row.Conversation.CreatedAt,
			&row.Conversation.UpdatedAt,
			&row.Self.LastReadMessageID,
			&row.Self.HiddenSinceMessageID,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		row.Self.ConversationID = row.Conversation.ID
		row.Self.UserID = userID
		index[row.Conversation.ID] = len(result)
		ids = append(ids, row.Conversation.ID)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	otherRows, err := r.pool.Query(ctx, `
		SELECT cp.conversation_id, u.id, u.name, COALESCE(u.avatar_url, '')
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = ANY($1) AND cp.user_id <> $2
	`, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("querying other participants: %w", err)
	}
	defer otherRows.Close()

	for otherRows.Next() {
		var conversationID int64
		var ref entity.UserRef
		if err := otherRows.Scan(&conversationID, &ref.ID, &ref.Name, &ref.AvatarURL); err != nil {
			return nil, fmt.Errorf("scanning other participant: %w", err)
		}
		if i, ok := index[conversationID]; ok {
			result[i].Others = append(result[i].Others, ref)
		}
	}

	return result, nil
}

// Unhide clears the hidden flag for the given users. The hide watermark is
// deliberately left in place: resuming a thread never resurrects history
// below it.
func (r *ConversationPostgres) Unhide(ctx context.Context, conversationID int64, userIDs []int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversation_participants
		SET hidden = FALSE
		WHERE conversation_id = $1 AND user_id = ANY($2)
	`, conversationID, userIDs)
	if err != nil {
		return fmt.Errorf("unhiding participants: %w", err)
	}
	return nil
}

// AdvanceReadCursor moves the read cursor forward. GREATEST keeps the cursor
// monotonic under concurrent read-triggering requests.
func (r *ConversationPostgres) AdvanceReadCursor(ctx context.Context, conversationID, userID, messageID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversation_participants
		SET last_read_message_id = GREATEST(last_read_message_id, $3)
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID, messageID)
	if err != nil {
		return fmt.Errorf("advancing read cursor: %w", err)
	}
	return nil
}

// Hide soft-deletes the conversation for one participant, recording the
// newest message id as the hide watermark and read cursor.
func (r *ConversationPostgres) Hide(ctx context.Context, conversationID, userID, watermarkID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversation_participants
		SET hidden = TRUE,
		    hidden_since_message_id = $3,
		    last_read_message_id = GREATEST(last_read_message_id, $3)
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID, watermarkID)
	if err != nil {
		return fmt.Errorf("hiding participant: %w", err)
	}
	return nil
}

// Delete removes the conversation and cascades to its participants and
// messages in one transaction.
func (r *ConversationPostgres) Delete(ctx context.Context, conversationID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE conversation_id = $1", conversationID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM conversation_participants WHERE conversation_id = $1", conversationID); err != nil {
		return fmt.Errorf("deleting participants: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM conversations WHERE id = $1", conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}
