package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/domain/direct/entity"
)

// Page size bounds for message history.
const (
	DefaultPageLimit = 25
	MaxPageLimit     = 100
)

// Realtime event names pushed to connected sessions.
const (
	EventMessageNew          = "message:new"
	EventConversationDeleted = "conversation:deleted"
)

// ConversationRepository defines the interface for conversation and
// participant storage
type ConversationRepository interface {
	FindDirect(ctx context.Context, a, b int64) (int64, error)
	CreateDirect(ctx context.Context, a, b int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*entity.Conversation, error)
	GetParticipant(ctx context.Context, conversationID, userID int64) (*entity.Participant, error)
	Participants(ctx context.Context, conversationID int64) ([]entity.Participant, error)
	ListVisible(ctx context.Context, userID int64) ([]entity.ListRow, error)
	Unhide(ctx context.Context, conversationID int64, userIDs []int64) error
	AdvanceReadCursor(ctx context.Context, conversationID, userID, messageID int64) error
	Hide(ctx context.Context, conversationID, userID, watermarkID int64) error
	Delete(ctx context.Context, conversationID int64) error
}

// MessageRepository defines the interface for the per-conversation message log
type MessageRepository interface {
	Append(ctx context.Context, conversationID, senderID int64, body string) (*entity.Message, error)
	ListPage(ctx context.Context, conversationID, beforeID, floorID int64, limit int) ([]entity.Message, error)
	Latest(ctx context.Context, conversationID int64) (*entity.Message, error)
	LatestID(ctx context.Context, conversationID int64) (int64, error)
	CountAfter(ctx context.Context, conversationID, afterID int64) (int64, error)
}

// UserDirectory resolves user identities to their display representation
type UserDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Refs(ctx context.Context, ids []int64) (map[int64]entity.UserRef, error)
}

// Notifier pushes events to the live sessions of a user. Delivery is
// best-effort: implementations must never fail the triggering operation.
type Notifier interface {
	NotifyUser(userID int64, event string, payload any)
}

// MessageEvent is the payload of a message:new event.
type MessageEvent struct {
	ConversationID int64              `json:"conversationId"`
	Message        entity.MessageView `json:"message"`
}

// DeletedEvent is the payload of a conversation:deleted event.
type DeletedEvent struct {
	ConversationID int64              `json:"conversationId"`
	Scope          entity.DeleteScope `json:"scope"`
}

// Service implements the conversation business logic. It is the sole mutator
// of the conversation and message tables.
type Service struct {
	convRepo ConversationRepository
	msgRepo  MessageRepository
	users    UserDirectory
	notifier Notifier
	logger   *slog.Logger
}

// New creates a new conversation service
func New(convRepo ConversationRepository, msgRepo MessageRepository, users UserDirectory, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		users:    users,
		notifier: notifier,
		logger:   logger,
	}
}

// FindOrCreateDirect returns the id of the one-to-one conversation between
// the caller and the target user, creating it when the pair has never talked.
// Rediscovering an existing thread unhides it for both sides but leaves the
// hide watermarks alone.
func (s *Service) FindOrCreateDirect(ctx context.Context, callerID, otherUserID int64) (int64, error) {
	if otherUserID <= 0 || otherUserID == callerID {
		return 0, apperr.Invalid("invalid conversation target")
	}

	exists, err := s.users.Exists(ctx, otherUserID)
	if err != nil {
		return 0, apperr.Internal("looking up target user", err)
	}
	if !exists {
		return 0, apperr.NotFound("target user not found")
	}

	id, err := s.convRepo.FindDirect(ctx, callerID, otherUserID)
	if err != nil {
		return 0, apperr.Internal("finding conversation", err)
	}
	if id != 0 {
		if err := s.convRepo.Unhide(ctx, id, []int64{callerID, otherUserID}); err != nil {
			return 0, apperr.Internal("unhiding conversation", err)
		}
		return id, nil
	}

	id, err = s.convRepo.CreateDirect(ctx, callerID, otherUserID)
	if err != nil {
		return 0, apperr.Internal("creating conversation", err)
	}
	return id, nil
}

// ListConversations returns the caller's inbox: visible conversations with
// the other participant, the most recent message and the unread count,
// newest activity first.
func (s *Service) ListConversations(ctx context.Context, callerID int64) ([]entity.Summary, error) {
	rows, err := s.convRepo.ListVisible(ctx, callerID)
	if err != nil {
		return nil, apperr.Internal("listing conversations", err)
	}

	selfRefs, err := s.users.Refs(ctx, []int64{callerID})
	if err != nil {
		return nil, apperr.Internal("resolving caller", err)
	}
	self := selfRefs[callerID]

	// Keep only the newest thread per counterpart: duplicate pair rows are a
	// historical artifact and must not show up as separate threads.
	byOther := make(map[int64]entity.Summary)
	for _, row := range rows {
		// Threads that only contain the caller are skipped.
		if len(row.Others) == 0 {
			continue
		}

		summary, err := s.buildSummary(ctx, callerID, self, row)
		if err != nil {
			return nil, err
		}

		otherID := summary.OtherParticipant.ID
		if existing, ok := byOther[otherID]; ok && !summary.UpdatedAt.After(existing.UpdatedAt) {
			continue
		}
		byOther[otherID] = summary
	}

	items := make([]entity.Summary, 0, len(byOther))
	for _, summary := range byOther {
		items = append(items, summary)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})

	return items, nil
}

func (s *Service) buildSummary(ctx context.Context, callerID int64, self entity.UserRef, row entity.ListRow) (entity.Summary, error) {
	participants := append([]entity.UserRef{self}, row.Others...)

	summary := entity.Summary{
		ID:               row.Conversation.ID,
		Participants:     participants,
		OtherParticipant: row.Others[0],
		UpdatedAt:        row.Conversation.UpdatedAt,
	}

	last, err := s.msgRepo.Latest(ctx, row.Conversation.ID)
	if err != nil {
		return entity.Summary{}, apperr.Internal("loading last message", err)
	}
	if last != nil {
		view := last.ViewFor(callerID, refByID(participants, last.SenderID))
		summary.LastMessage = &view
	}

	unread, err := s.msgRepo.CountAfter(ctx, row.Conversation.ID, row.Self.VisibilityFloor())
	if err != nil {
		return entity.Summary{}, apperr.Internal("counting unread messages", err)
	}
	summary.UnreadCount = unread

	return summary, nil
}

// ListMessagesInput represents input for reading message history
type ListMessagesInput struct {
	CallerID       int64
	ConversationID int64
	Limit          int
	BeforeID       int64
}

// ListMessagesOutput represents one page of message history, oldest first
type ListMessagesOutput struct {
	Items   []entity.MessageView
	HasMore bool
}

// ListMessages returns a page of history for the caller, excluding anything
// at or below the caller's hide watermark, and advances the caller's read
// cursor to the newest message of the returned page.
func (s *Service) ListMessages(ctx context.Context, in ListMessagesInput) (*ListMessagesOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	participant, err := s.activeParticipant(ctx, in.ConversationID, in.CallerID)
	if err != nil {
		return nil, err
	}

	// Newest-first fetch, then reverse: "the last N messages" in one indexed
	// range scan.
	page, err := s.msgRepo.ListPage(ctx, in.ConversationID, in.BeforeID, participant.HiddenSinceMessageID, limit)
	if err != nil {
		return nil, apperr.Internal("loading messages", err)
	}

	views, err := s.shapeForRecipient(ctx, in.CallerID, page)
	if err != nil {
		return nil, err
	}
	reverse(views)

	out := &ListMessagesOutput{
		Items: views,
		// Heuristic page boundary: a full page means there is probably more.
		HasMore: len(page) == limit,
	}

	// Reading history marks it read.
	if len(views) > 0 {
		newestID := views[len(views)-1].ID
		if err := s.convRepo.AdvanceReadCursor(ctx, in.ConversationID, in.CallerID, newestID); err != nil {
			return nil, apperr.Internal("advancing read cursor", err)
		}
	}

	return out, nil
}

// MarkRead advances the caller's read cursor to the given message id, or to
// the conversation's newest message when no id is given. The cursor never
// regresses, so repeated or stale calls are no-ops.
func (s *Service) MarkRead(ctx context.Context, callerID, conversationID, messageID int64) error {
	if _, err := s.activeParticipant(ctx, conversationID, callerID); err != nil {
		return err
	}

	target := messageID
	if target <= 0 {
		latest, err := s.msgRepo.LatestID(ctx, conversationID)
		if err != nil {
			return apperr.Internal("resolving latest message", err)
		}
		target = latest
	}
	if target == 0 {
		return nil
	}

	if err := s.convRepo.AdvanceReadCursor(ctx, conversationID, callerID, target); err != nil {
		return apperr.Internal("advancing read cursor", err)
	}
	return nil
}

// SendMessage appends a message to the conversation and fans it out to every
// participant's live sessions. The returned view is shaped for the sender.
func (s *Service) SendMessage(ctx context.Context, callerID, conversationID int64, body string) (*entity.MessageView, error) {
	text := entity.NormalizeBody(body)
	if text == "" {
		return nil, apperr.Invalid("message body required")
	}

	if _, err := s.activeParticipant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, apperr.Internal("loading conversation", err)
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}

	// Single transaction: message insert, recency bump, unhide, sender cursor.
	msg, err := s.msgRepo.Append(ctx, conversationID, callerID, text)
	if err != nil {
		return nil, apperr.Internal("appending message", err)
	}

	senderRefs, err := s.users.Refs(ctx, []int64{callerID})
	if err != nil {
		return nil, apperr.Internal("resolving sender", err)
	}
	sender := senderRefs[callerID]

	// Fan-out happens only after the transaction committed. It is a
	// non-critical side effect: a failed lookup costs a realtime nudge, never
	// the response.
	if participants, err := s.convRepo.Participants(ctx, conversationID); err != nil {
		s.logger.Warn("skipping message fan-out", "conversation_id", conversationID, "error", err)
	} else {
		for _, p := range participants {
			s.notifier.NotifyUser(p.UserID, EventMessageNew, MessageEvent{
				ConversationID: conversationID,
				Message:        msg.ViewFor(p.UserID, sender),
			})
		}
	}

	view := msg.ViewFor(callerID, sender)
	return &view, nil
}

// DeleteConversation hides the conversation for the caller (scope self) or
// destroys it for everyone (scope all), notifying the affected sessions.
func (s *Service) DeleteConversation(ctx context.Context, callerID, conversationID int64, scope entity.DeleteScope) error {
	if _, err := s.activeParticipant(ctx, conversationID, callerID); err != nil {
		return err
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return apperr.Internal("loading conversation", err)
	}
	if conv == nil {
		return apperr.NotFound("conversation not found")
	}

	if scope == entity.DeleteScopeSelf {
		watermark, err := s.msgRepo.LatestID(ctx, conversationID)
		if err != nil {
			return apperr.Internal("resolving hide watermark", err)
		}
		if err := s.convRepo.Hide(ctx, conversationID, callerID, watermark); err != nil {
			return apperr.Internal("hiding conversation", err)
		}

		// Only the caller's own sessions learn about a private removal.
		s.notifier.NotifyUser(callerID, EventConversationDeleted, DeletedEvent{
			ConversationID: conversationID,
			Scope:          entity.DeleteScopeSelf,
		})
		return nil
	}

	participants, err := s.convRepo.Participants(ctx, conversationID)
	if err != nil {
		return apperr.Internal("loading participants", err)
	}

	if err := s.convRepo.Delete(ctx, conversationID); err != nil {
		return apperr.Internal("deleting conversation", err)
	}

	for _, p := range participants {
		s.notifier.NotifyUser(p.UserID, EventConversationDeleted, DeletedEvent{
			ConversationID: conversationID,
			Scope:          entity.DeleteScopeAll,
		})
	}
	return nil
}

// activeParticipant loads the caller's participant row and requires it to be
// present and not hidden.
func (s *Service) activeParticipant(ctx context.Context, conversationID, callerID int64) (*entity.Participant, error) {
	participant, err := s.convRepo.GetParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, apperr.Internal("loading participant", err)
	}
	if !participant.Active() {
		return nil, apperr.Forbidden("you are not in this conversation")
	}
	return participant, nil
}

// shapeForRecipient resolves sender refs for a page and shapes each message
// for the given recipient.
func (s *Service) shapeForRecipient(ctx context.Context, recipientID int64, page []entity.Message) ([]entity.MessageView, error) {
	if len(page) == 0 {
		return []entity.MessageView{}, nil
	}

	seen := make(map[int64]struct{}, 2)
	var senderIDs []int64
	for _, msg := range page {
		if _, ok := seen[msg.SenderID]; !ok {
			seen[msg.SenderID] = struct{}{}
			senderIDs = append(senderIDs, msg.SenderID)
		}
	}

	refs, err := s.users.Refs(ctx, senderIDs)
	if err != nil {
		return nil, apperr.Internal("resolving senders", err)
	}

	views := make([]entity.MessageView, 0, len(page))
	for _, msg := range page {
		views = append(views, msg.ViewFor(recipientID, refs[msg.SenderID]))
	}
	return views, nil
}

func refByID(refs []entity.UserRef, id int64) entity.UserRef {
	for _, ref := range refs {
		if ref.ID == id {
			return ref
		}
	}
	return entity.UserRef{ID: id}
}

func reverse(views []entity.MessageView) {
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}
}
