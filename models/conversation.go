package models

import "time"

// Conversation is a titled thread of messages. Seq is an internal insertion
// counter used to break ordering ties; ID is the public identifier.
//
// No gorm.DeletedAt: deletes are hard so the message cascade actually runs.
type Conversation struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID        string    `gorm:"size:36;uniqueIndex;not null" json:"id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	UserID    *string   `gorm:"size:100;index" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
	Messages  []Message `gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE" json:"messages"`
}

// ConversationSummary is the list-view projection of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       *string   `json:"user_id"`
	MessageCount int64     `json:"message_count"`
	LastMessage  *string   `json:"last_message"`
}
