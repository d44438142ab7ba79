package model

import "time"

type Message struct {
	ID             uint      `gorm:"column:message_id;primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	IsUser         bool      `gorm:"not null" json:"is_user"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
}

func (m Message) Role() string {
	if m.IsUser {
		return "user"
	}
	return "assistant"
}
