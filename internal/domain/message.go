package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RepeatType string

const (
	RepeatNone    RepeatType = "none"
	RepeatDaily   RepeatType = "daily"
	RepeatWeekly  RepeatType = "weekly"
	RepeatMonthly RepeatType = "monthly"
)

type MessageStatus string

const (
	MessageScheduled  MessageStatus = "scheduled"
	MessageProcessing MessageStatus = "processing"
	MessageSent       MessageStatus = "sent"
	MessageFailed     MessageStatus = "failed"
	MessageCancelled  MessageStatus = "cancelled"
)

// ScheduledMessage is created by the console in status scheduled and mutated
// only by the engine afterwards. UpdatedAt doubles as the claim timestamp
// used for stale-processing recovery.
type ScheduledMessage struct {
	ID         string        `gorm:"type:uuid;primaryKey" json:"id"`
	Body       string        `gorm:"type:text;not null" json:"body"`
	Recipients StringList    `gorm:"type:text" json:"recipients"`
	SendAt     time.Time     `gorm:"not null;index" json:"send_at"`
	RepeatType RepeatType    `gorm:"type:varchar(10);not null;default:none" json:"repeat_type"`
	Status     MessageStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  *time.Time    `json:"updated_at"`
}

func (m *ScheduledMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
