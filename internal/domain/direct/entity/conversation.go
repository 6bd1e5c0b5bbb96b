package entity

import "time"

// Conversation is a direct message thread between two users.
type Conversation struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participant is the per-(conversation, user) state record: the read cursor,
// the hidden flag and the hide watermark.
type Participant struct {
	ConversationID       int64 `json:"conversationId"`
	UserID               int64 `json:"userId"`
	LastReadMessageID    int64 `json:"lastReadMessageId"`
	Hidden               bool  `json:"hidden"`
	HiddenSinceMessageID int64 `json:"hiddenSinceMessageId"`
}

// Active reports whether the participant currently sees the conversation.
func (p *Participant) Active() bool {
	return p != nil && !p.Hidden
}

// VisibilityFloor is the message id at or below which messages are not
// counted as unread for this participant.
func (p *Participant) VisibilityFloor() int64 {
	if p.LastReadMessageID > p.HiddenSinceMessageID {
		return p.LastReadMessageID
	}
	return p.HiddenSinceMessageID
}

// UserRef is the compact user representation attached to messages and
// conversation listings.
type UserRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// ListRow is one visible conversation of a user together with that user's
// participant state and the other participants, as loaded from the store.
type ListRow struct {
	Conversation Conversation
	Self         Participant
	Others       []UserRef
}

// Summary is a conversation as presented in the caller's inbox.
type Summary struct {
	ID               int64        `json:"id"`
	Participants     []UserRef    `json:"participants"`
	OtherParticipant UserRef      `json:"otherParticipant"`
	LastMessage      *MessageView `json:"lastMessage"`
	UpdatedAt        time.Time    `json:"updatedAt"`
	UnreadCount      int64        `json:"unreadCount"`
}

// DeleteScope selects between hiding a conversation for the caller only and
// destroying it for everyone.
type DeleteScope string

const (
	DeleteScopeSelf DeleteScope = "self"
	DeleteScopeAll  DeleteScope = "all"
)

// ParseDeleteScope normalizes a raw scope value; anything but "self" means
// delete for all participants.
func ParseDeleteScope(raw string) DeleteScope {
	if raw == string(DeleteScopeSelf) {
		return DeleteScopeSelf
	}
	return DeleteScopeAll
}
