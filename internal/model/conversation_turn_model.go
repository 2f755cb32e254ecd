package model

import "time"

type ConversationTurn struct {
	Id             uint      `gorm:"primaryKey;autoIncrement"`
	UserId         string    `gorm:"type:varchar(128);not null;index:idx_conversation_user_session"`
	SessionId      string    `gorm:"type:varchar(128);not null;index:idx_conversation_user_session"`
	ParentId       uint      `gorm:"not null;default:0"`
	MessageId      string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	QaId           string    `gorm:"type:varchar(32);not null;index"`
	QaType         string    `gorm:"type:varchar(16);not null"`
	MessageContent string    `gorm:"type:text"`
	Timestamp      time.Time `gorm:"not null;index"`
}

func (ConversationTurn) TableName() string {
	return "conversation_messages"
}
