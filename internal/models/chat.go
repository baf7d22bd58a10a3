package models

import "time"

// LastMessage is the denormalized preview stored on a conversation. It
// mirrors the most recently created message's text/sender/seen triple so
// conversation-list views never touch the messages table.
type LastMessage struct {
	Text     string `json:"text"`
	SenderID string `json:"sender_id"`
	Seen     bool   `json:"seen"`
}

// Conversation pairs two participants. The pair is stored lexicographically
// ordered (UserA < UserB) so an unordered lookup hits a single row.
type Conversation struct {
	ID          string      `json:"id"`
	UserA       string      `json:"user_a"`
	UserB       string      `json:"user_b"`
	LastMessage LastMessage `json:"last_message"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	ImageURL       string    `json:"image_url,omitempty"`
	SharedPostID   string    `json:"shared_post_id,omitempty"`
	Seen           bool      `json:"seen"`
	Seq            int64     `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageView is a message resolved for delivery: sender details and, when
// the message shares a post, the shared post's summary are attached.
type MessageView struct {
	Message
	Sender     UserSummary  `json:"sender"`
	SharedPost *PostSummary `json:"shared_post,omitempty"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	Participant UserSummary `json:"participant"`
	UnreadCount int         `json:"unread_count"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
