package chat

import "time"

type Chat struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Number        int64     `gorm:"not null;index:uniq_chat_app_number,unique,priority:2" json:"number"`
	ApplicationID string    `gorm:"type:varchar(36);not null;index:uniq_chat_app_number,unique,priority:1" json:"application_id"`
	UserID        string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	MessagesCount int64     `gorm:"not null;default:0" json:"messages_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

type Message struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChatID    string    `gorm:"type:varchar(36);not null;index:uniq_msg_chat_number,unique,priority:1" json:"chat_id"`
	Number    int64     `gorm:"not null;index:uniq_msg_chat_number,unique,priority:2" json:"number"`
	UserID    string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Message) TableName() string { return "messages" }
