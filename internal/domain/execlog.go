package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExecutionLog is append-only: exactly one row per dispatch run, no matter
// how many recipients the run fanned out to. Exactly one of CampaignID and
// ScheduledMessageID is set.
type ExecutionLog struct {
	ID                 string    `gorm:"type:uuid;primaryKey" json:"id"`
	CampaignID         *string   `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	ScheduledMessageID *string   `gorm:"type:uuid;index" json:"scheduled_message_id,omitempty"`
	ExecutedAt         time.Time `gorm:"not null;index" json:"executed_at"`
	MessagesSent       int       `gorm:"not null" json:"messages_sent"`
	MessagesFailed     int       `gorm:"not null" json:"messages_failed"`
}

func (l *ExecutionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
