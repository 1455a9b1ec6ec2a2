package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable turn of a conversation. Messages of a
// conversation are ordered by CreatedAt, then Seq.
type Message struct {
	Seq            uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID             string    `gorm:"size:36;uniqueIndex;not null" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	Role           string    `gorm:"size:20;not null" json:"role"` // free text; only "assistant" is treated specially
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_conversation_created,priority:2" json:"created_at"`
}
