package model

import "time"

type Conversation struct {
	ID        uint      `gorm:"column:conversation_id;primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
