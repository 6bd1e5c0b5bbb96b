package entity

import (
	"strings"
	"time"
)

// Message is one entry in a conversation's append-only log. The id is
// assigned by the store and strictly increases in creation order; pagination
// cursors and read/hide watermarks compare against it, never against
// CreatedAt.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	SenderID       int64      `json:"senderId"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt"`
}

// MessageView is a message shaped for one recipient: IsMine reflects that
// recipient's relationship to the sender.
type MessageView struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	Sender         UserRef    `json:"sender"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt"`
	IsMine         bool       `json:"isMine"`
}

// ViewFor shapes the message for the given recipient.
func (m Message) ViewFor(recipientID int64, sender UserRef) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
		IsMine:         m.SenderID == recipientID,
	}
}

// NormalizeBody trims a raw message body; an empty result means the message
// is invalid.
func NormalizeBody(raw string) string {
	return strings.TrimSpace(raw)
}
