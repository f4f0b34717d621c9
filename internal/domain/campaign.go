package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Metrics are monotonic counters; the engine only ever increments Sent.
// Delivered/Opened/Clicked are written by the console's webhook ingestion.
type Metrics struct {
	Sent      int `gorm:"not null;default:0" json:"sent"`
	Delivered int `gorm:"not null;default:0" json:"delivered"`
	Opened    int `gorm:"not null;default:0" json:"opened"`
	Clicked   int `gorm:"not null;default:0" json:"clicked"`
}

// Media is a single optional attachment referenced by URL.
type Media struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Campaign struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string         `gorm:"type:varchar(255);not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	TargetAudience  StringList     `gorm:"type:text" json:"target_audience"`
	StartDate       time.Time      `gorm:"not null" json:"start_date"`
	EndDate         time.Time      `gorm:"not null" json:"end_date"`
	Status          CampaignStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	MessageTemplate string         `gorm:"type:text" json:"message_template"`
	MediaType       string         `gorm:"type:varchar(20)" json:"media_type,omitempty"`
	MediaURL        string         `gorm:"type:text" json:"media_url,omitempty"`
	Variables       StringMap      `gorm:"type:text" json:"variables,omitempty"`
	Metrics         Metrics        `gorm:"embedded;embeddedPrefix:metrics_" json:"metrics"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       *time.Time     `json:"updated_at"`
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Attachment returns the campaign's media reference, or nil when none is set.
func (c *Campaign) Attachment() *Media {
	if c.MediaURL == "" {
		return nil
	}
	return &Media{Type: c.MediaType, URL: c.MediaURL}
}
