package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/domain/direct/entity"
)

// memStore is an in-memory implementation of both repository interfaces with
// store-assigned, strictly increasing message ids.
type memStore struct {
	mu         sync.Mutex
	users      map[int64]entity.UserRef
	convs      map[int64]*convRecord
	nextConvID int64
	nextMsgID  int64
	clock      time.Time
}

type convRecord struct {
	conv         entity.Conversation
	participants map[int64]*entity.Participant
	messages     []entity.Message
}

func newMemStore(users ...entity.UserRef) *memStore {
	s := &memStore{
		users: make(map[int64]entity.UserRef),
		convs: make(map[int64]*convRecord),
		clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) FindDirect(_ context.Context, a, b int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.convs {
		if len(rec.participants) != 2 {
			continue
		}
		_, hasA := rec.participants[a]
		_, hasB := rec.participants[b]
		if hasA && hasB {
			return id, nil
		}
	}
	return 0, nil
}

func (s *memStore) CreateDirect(_ context.Context, a, b int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextConvID++
	id := s.nextConvID
	now := s.tick()
	s.convs[id] = &convRecord{
		conv: entity.Conversation{ID: id, CreatedAt: now, UpdatedAt: now},
		participants: map[int64]*entity.Participant{
			a: {ConversationID: id, UserID: a},
			b: {ConversationID: id, UserID: b},
		},
	}
	return id, nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[id]
	if !ok {
		return nil, nil
	}
	conv := rec.conv
	return &conv, nil
}

func (s *memStore) GetParticipant(_ context.Context, conversationID, userID int64) (*entity.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok {
		return nil, nil
	}
	p, ok := rec.participants[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) Participants(_ context.Context, conversationID int64) ([]entity.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok {
		return nil, nil
	}
	var out []entity.Participant
	for _, p := range rec.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) ListVisible(_ context.Context, userID int64) ([]entity.ListRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []entity.ListRow
	for _, rec := range s.convs {
		p, ok := rec.participants[userID]
		if !ok || p.Hidden {
			continue
		}
		row := entity.ListRow{Conversation: rec.conv, Self: *p}
		for uid := range rec.participants {
			if uid != userID {
				row.Others = append(row.Others, s.users[uid])
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Conversation.UpdatedAt.After(rows[j].Conversation.UpdatedAt)
	})
	return rows, nil
}

func (s *memStore) Unhide(_ context.Context, conversationID int64, userIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	for _, uid := range userIDs {
		if p, ok := rec.participants[uid]; ok {
			p.Hidden = false
		}
	}
	return nil
}

func (s *memStore) AdvanceReadCursor(_ context.Context, conversationID, userID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	if p, ok := rec.participants[userID]; ok && messageID > p.LastReadMessageID {
		p.LastReadMessageID = messageID
	}
	return nil
}

func (s *memStore) Hide(_ context.Context, conversationID, userID, watermarkID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	if p, ok := rec.participants[userID]; ok {
		p.Hidden = true
		p.HiddenSinceMessageID = watermarkID
		if watermarkID > p.LastReadMessageID {
			p.LastReadMessageID = watermarkID
		}
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
	return nil
}

func (s *memStore) Append(_ context.Context, conversationID, senderID int64, body string) (*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.convs[conversationID]
	s.nextMsgID++
	msg := entity.Message{
		ID:             s.nextMsgID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      s.tick(),
	}
	rec.messages = append(rec.messages, msg)
	rec.conv.UpdatedAt = msg.CreatedAt
	for _, p := range rec.participants {
		p.Hidden = false
	}
	if p, ok := rec.participants[senderID]; ok && msg.ID > p.LastReadMessageID {
		p.LastReadMessageID = msg.ID
	}
	return &msg, nil
}

func (s *memStore) ListPage(_ context.Context, conversationID, beforeID, floorID int64, limit int) ([]entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok {
		return nil, nil
	}
	var page []entity.Message
	for i := len(rec.messages) - 1; i >= 0 && len(page) < limit; i-- {
		msg := rec.messages[i]
		if beforeID != 0 && msg.ID >= beforeID {
			continue
		}
		if msg.ID <= floorID {
			continue
		}
		page = append(page, msg)
	}
	return page, nil
}

func (s *memStore) Latest(_ context.Context, conversationID int64) (*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok || len(rec.messages) == 0 {
		return nil, nil
	}
	msg := rec.messages[len(rec.messages)-1]
	return &msg, nil
}

func (s *memStore) LatestID(_ context.Context, conversationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok || len(rec.messages) == 0 {
		return 0, nil
	}
	return rec.messages[len(rec.messages)-1].ID, nil
}

func (s *memStore) CountAfter(_ context.Context, conversationID, afterID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.convs[conversationID]
	if !ok {
		return 0, nil
	}
	var count int64
	for _, msg := range rec.messages {
		if msg.ID > afterID {
			count++
		}
	}
	return count, nil
}

func (s *memStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *memStore) Refs(_ context.Context, ids []int64) (map[int64]entity.UserRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]entity.UserRef, len(ids))
	for _, id := range ids {
		if ref, ok := s.users[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

// recordingNotifier captures fan-out events per recipient.
type recordingNotifier struct {
	mu     sync.Mutex
	events map[int64][]recordedEvent
}

type recordedEvent struct {
	event   string
	payload any
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[int64][]recordedEvent)}
}

func (n *recordingNotifier) NotifyUser(userID int64, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[userID] = append(n.events[userID], recordedEvent{event: event, payload: payload})
}

func (n *recordingNotifier) eventsFor(userID int64) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedEvent(nil), n.events[userID]...)
}

func newTestService() (*Service, *memStore, *recordingNotifier) {
	store := newMemStore(
		entity.UserRef{ID: 1, Name: "alice", AvatarURL: "https://cdn.test/a.png"},
		entity.UserRef{ID: 2, Name: "bob"},
		entity.UserRef{ID: 3, Name: "carol"},
	)
	notifier := newRecordingNotifier()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, store, store, notifier, logger), store, notifier
}

func TestFindOrCreateDirect(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	id, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	require.NotZero(t, id)

	// Either ordering of the pair resolves to the same conversation.
	again, err := svc.FindOrCreateDirect(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	t.Run("self target rejected", func(t *testing.T) {
		_, err := svc.FindOrCreateDirect(ctx, 1, 1)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	})

	t.Run("missing target rejected", func(t *testing.T) {
		_, err := svc.FindOrCreateDirect(ctx, 1, 0)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	})

	t.Run("unknown target not found", func(t *testing.T) {
		_, err := svc.FindOrCreateDirect(ctx, 1, 99)
		assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	})
}

func TestBasicExchange(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	sent, err := svc.SendMessage(ctx, 1, convID, "hi")
	require.NoError(t, err)
	assert.True(t, sent.IsMine)
	assert.Equal(t, "hi", sent.Body)
	assert.Equal(t, "alice", sent.Sender.Name)

	// Bob's inbox shows one unread message.
	inbox, err := svc.ListConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, convID, inbox[0].ID)
	assert.EqualValues(t, 1, inbox[0].UnreadCount)
	require.NotNil(t, inbox[0].LastMessage)
	assert.False(t, inbox[0].LastMessage.IsMine)
	assert.Equal(t, int64(1), inbox[0].OtherParticipant.ID)

	// Reading the history returns the message and clears the unread count.
	page, err := svc.ListMessages(ctx, ListMessagesInput{CallerID: 2, ConversationID: convID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sent.ID, page.Items[0].ID)
	assert.False(t, page.Items[0].IsMine)
	assert.False(t, page.HasMore)

	inbox, err = svc.ListConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.EqualValues(t, 0, inbox[0].UnreadCount)

	// Both participants received the realtime event, shaped per recipient.
	aliceEvents := notifier.eventsFor(1)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMessageNew, aliceEvents[0].event)
	assert.True(t, aliceEvents[0].payload.(MessageEvent).Message.IsMine)

	bobEvents := notifier.eventsFor(2)
	require.Len(t, bobEvents, 1)
	assert.False(t, bobEvents[0].payload.(MessageEvent).Message.IsMine)
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, 1, convID, "   \n\t ")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	// Carol never joined this conversation.
	_, err = svc.SendMessage(ctx, 3, convID, "hello?")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	var ids []int64
	for i := 0; i < 30; i++ {
		sent, err := svc.SendMessage(ctx, 1, convID, "message")
		require.NoError(t, err)
		ids = append(ids, sent.ID)
	}

	page, err := svc.ListMessages(ctx, ListMessagesInput{CallerID: 2, ConversationID: convID})
	require.NoError(t, err)
	require.Len(t, page.Items, 25)
	assert.True(t, page.HasMore)

	// Oldest-first with strictly ascending ids, ending at the newest.
	for i := 1; i < len(page.Items); i++ {
		assert.Greater(t, page.Items[i].ID, page.Items[i-1].ID)
	}
	assert.Equal(t, ids[len(ids)-1], page.Items[len(page.Items)-1].ID)

	rest, err := svc.ListMessages(ctx, ListMessagesInput{
		CallerID:       2,
		ConversationID: convID,
		BeforeID:       page.Items[0].ID,
	})
	require.NoError(t, err)
	require.Len(t, rest.Items, 5)
	assert.False(t, rest.HasMore)
	assert.Equal(t, ids[0], rest.Items[0].ID)
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	first, err := svc.SendMessage(ctx, 1, convID, "one")
	require.NoError(t, err)
	second, err := svc.SendMessage(ctx, 1, convID, "two")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, 2, convID, second.ID))
	p, err := store.GetParticipant(ctx, convID, 2)
	require.NoError(t, err)
	assert.Equal(t, second.ID, p.LastReadMessageID)

	// Repeating the call and passing an older id both leave the cursor alone.
	require.NoError(t, svc.MarkRead(ctx, 2, convID, second.ID))
	require.NoError(t, svc.MarkRead(ctx, 2, convID, first.ID))
	p, err = store.GetParticipant(ctx, convID, 2)
	require.NoError(t, err)
	assert.Equal(t, second.ID, p.LastReadMessageID)

	t.Run("defaults to newest message", func(t *testing.T) {
		third, err := svc.SendMessage(ctx, 1, convID, "three")
		require.NoError(t, err)

		require.NoError(t, svc.MarkRead(ctx, 2, convID, 0))
		p, err := store.GetParticipant(ctx, convID, 2)
		require.NoError(t, err)
		assert.Equal(t, third.ID, p.LastReadMessageID)
	})
}

func TestHideAndResume(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	hidden, err := svc.SendMessage(ctx, 2, convID, "old news")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, 1, convID, entity.DeleteScopeSelf))

	inbox, err := svc.ListConversations(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	// Hidden participants are locked out until new traffic arrives.
	_, err = svc.ListMessages(ctx, ListMessagesInput{CallerID: 1, ConversationID: convID})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	// A new inbound message resurrects the thread for Alice...
	fresh, err := svc.SendMessage(ctx, 2, convID, "are you there?")
	require.NoError(t, err)

	inbox, err = svc.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.EqualValues(t, 1, inbox[0].UnreadCount)

	// ...but history below the hide watermark stays gone.
	page, err := svc.ListMessages(ctx, ListMessagesInput{CallerID: 1, ConversationID: convID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, fresh.ID, page.Items[0].ID)
	for _, item := range page.Items {
		assert.Greater(t, item.ID, hidden.ID)
	}

	// Bob still sees everything.
	page, err = svc.ListMessages(ctx, ListMessagesInput{CallerID: 2, ConversationID: convID})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestReopenAfterHideKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, 2, convID, "before the hide")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, 1, convID, entity.DeleteScopeSelf))

	// Re-discovering the pair reuses and unhides the thread.
	again, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, convID, again)

	p, err := store.GetParticipant(ctx, convID, 1)
	require.NoError(t, err)
	assert.False(t, p.Hidden)
	assert.NotZero(t, p.HiddenSinceMessageID)

	// Unhidden, but pre-hide history is still suppressed.
	page, err := svc.ListMessages(ctx, ListMessagesInput{CallerID: 1, ConversationID: convID})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestDeleteForAll(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, 1, convID, "doomed")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, 2, convID, entity.DeleteScopeAll))

	for _, userID := range []int64{1, 2} {
		inbox, err := svc.ListConversations(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, inbox)

		events := notifier.eventsFor(userID)
		last := events[len(events)-1]
		assert.Equal(t, EventConversationDeleted, last.event)
		assert.Equal(t, entity.DeleteScopeAll, last.payload.(DeletedEvent).Scope)
	}

	_, err = svc.SendMessage(ctx, 1, convID, "too late")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestDeleteSelfNotifiesOnlyCaller(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newTestService()

	convID, err := svc.FindOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, 1, convID, entity.DeleteScopeSelf))

	aliceEvents := notifier.eventsFor(1)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, entity.DeleteScopeSelf, aliceEvents[0].payload.(DeletedEvent).Scope)
	assert.Empty(t, notifier.eventsFor(2))

	// The other side still sees the thread.
	inbox, err := svc.ListConversations(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}
