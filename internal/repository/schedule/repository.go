package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campaign-engine/internal/cache"
	"campaign-engine/internal/domain"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Repository is the engine's view of the Schedule Store. Claim-shaped
// operations are atomic conditional updates so that multiple engine
// instances can share one store without in-process coordination.
type Repository interface {
	DueCampaigns(now time.Time) ([]domain.Campaign, error)
	DueMessages(now time.Time) ([]domain.ScheduledMessage, error)
	ExpiredActiveCampaigns(now time.Time) ([]domain.Campaign, error)
	GetCampaign(id string) (*domain.Campaign, error)
	GetMessage(id string) (*domain.ScheduledMessage, error)

	ClaimCampaign(id string) (bool, error)
	ReleaseCampaign(id string) error
	CompleteCampaign(id string) (bool, error)
	AddCampaignSent(id string, sent int) error
	ResetStaleCampaigns(before time.Time) (int64, error)

	ClaimMessage(id string) (bool, error)
	ReleaseMessage(id string) error
	FinalizeMessage(id string, status domain.MessageStatus) error
	RescheduleMessage(id string, nextSendAt time.Time) error
	ResetStaleProcessing(before time.Time) (int64, error)

	AppendExecutionLog(entry *domain.ExecutionLog) error
	RecentExecutionLogs(refID string, limit int) ([]domain.ExecutionLog, error)
	CacheDelivery(ctx context.Context, deliveryID string, sentAt time.Time) error
}

type repo struct {
	db    *gorm.DB
	cache cache.Cache
}

func NewScheduleRepository(db *gorm.DB, cache cache.Cache) Repository {
	return &repo{db: db, cache: cache}
}

// DueCampaigns returns claimable campaigns whose send window covers now.
func (r *repo) DueCampaigns(now time.Time) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := r.db.
		Where("status = ? AND start_date <= ? AND end_date >= ?", domain.CampaignScheduled, now, now).
		Find(&campaigns).Error
	return campaigns, err
}

// DueMessages returns scheduled messages whose send_at has arrived.
func (r *repo) DueMessages(now time.Time) ([]domain.ScheduledMessage, error) {
	var messages []domain.ScheduledMessage
	err := r.db.
		Where("status = ? AND send_at <= ?", domain.MessageScheduled, now).
		Find(&messages).Error
	return messages, err
}

// ExpiredActiveCampaigns returns active campaigns whose window has closed.
func (r *repo) ExpiredActiveCampaigns(now time.Time) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := r.db.
		Where("status = ? AND end_date < ?", domain.CampaignActive, now).
		Find(&campaigns).Error
	return campaigns, err
}

func (r *repo) GetCampaign(id string) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := r.db.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repo) GetMessage(id string) (*domain.ScheduledMessage, error) {
	var m domain.ScheduledMessage
	if err := r.db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ClaimCampaign grants execution rights over a campaign's blast. The
// scheduled -> active transition is the claim: exactly one caller sees
// an affected row.
func (r *repo) ClaimCampaign(id string) (bool, error) {
	return r.conditionalUpdate(&domain.Campaign{}, id, domain.CampaignScheduled, domain.CampaignActive)
}

// ReleaseCampaign undoes a claim whose occurrence was never attempted so
// a later tick can retry from a clean state.
func (r *repo) ReleaseCampaign(id string) error {
	_, err := r.conditionalUpdate(&domain.Campaign{}, id, domain.CampaignActive, domain.CampaignScheduled)
	return err
}

// CompleteCampaign closes out an active campaign once its window passed.
func (r *repo) CompleteCampaign(id string) (bool, error) {
	return r.conditionalUpdate(&domain.Campaign{}, id, domain.CampaignActive, domain.CampaignCompleted)
}

// AddCampaignSent increments the monotonic sent counter.
func (r *repo) AddCampaignSent(id string, sent int) error {
	if sent <= 0 {
		return nil
	}
	return r.db.Model(&domain.Campaign{}).
		Where("id = ?", id).
		UpdateColumn("metrics_sent", gorm.Expr("metrics_sent + ?", sent)).Error
}

// ClaimMessage grants execution rights over one due occurrence.
func (r *repo) ClaimMessage(id string) (bool, error) {
	return r.conditionalUpdate(&domain.ScheduledMessage{}, id, domain.MessageScheduled, domain.MessageProcessing)
}

// ReleaseMessage undoes a claim whose occurrence was never attempted.
func (r *repo) ReleaseMessage(id string) error {
	_, err := r.conditionalUpdate(&domain.ScheduledMessage{}, id, domain.MessageProcessing, domain.MessageScheduled)
	return err
}

// FinalizeMessage moves a claimed message to its terminal status.
func (r *repo) FinalizeMessage(id string, status domain.MessageStatus) error {
	return r.db.Model(&domain.ScheduledMessage{}).
		Where("id = ? AND status = ?", id, domain.MessageProcessing).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

// RescheduleMessage advances a recurring message to its next occurrence
// and makes it claimable again.
func (r *repo) RescheduleMessage(id string, nextSendAt time.Time) error {
	return r.db.Model(&domain.ScheduledMessage{}).
		Where("id = ? AND status = ?", id, domain.MessageProcessing).
		Updates(map[string]any{
			"status":     domain.MessageScheduled,
			"send_at":    nextSendAt,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ResetStaleCampaigns reclaims campaigns whose claim crashed before the
// blast ran: active past the staleness cutoff with no ExecutionLog row.
// The missing log row distinguishes a crashed claim from a legitimately
// executed campaign still inside its window.
func (r *repo) ResetStaleCampaigns(before time.Time) (int64, error) {
	res := r.db.Model(&domain.Campaign{}).
		Where("status = ? AND updated_at < ?", domain.CampaignActive, before).
		Where("NOT EXISTS (SELECT 1 FROM execution_logs WHERE execution_logs.campaign_id = campaigns.id)").
		Updates(map[string]any{"status": domain.CampaignScheduled, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// ResetStaleProcessing reclaims messages left in processing by a crashed
// executor. The conditional guard resets each stale record exactly once.
func (r *repo) ResetStaleProcessing(before time.Time) (int64, error) {
	res := r.db.Model(&domain.ScheduledMessage{}).
		Where("status = ? AND updated_at < ?", domain.MessageProcessing, before).
		Updates(map[string]any{"status": domain.MessageScheduled, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// AppendExecutionLog records one dispatch run. Append-only.
func (r *repo) AppendExecutionLog(entry *domain.ExecutionLog) error {
	return r.db.Create(entry).Error
}

// RecentExecutionLogs returns the newest runs referencing the given
// campaign or message id.
func (r *repo) RecentExecutionLogs(refID string, limit int) ([]domain.ExecutionLog, error) {
	var logs []domain.ExecutionLog
	err := r.db.
		Where("campaign_id = ? OR scheduled_message_id = ?", refID, refID).
		Order("executed_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CacheDelivery writes a gateway delivery id to the cache.
func (r *repo) CacheDelivery(ctx context.Context, deliveryID string, sentAt time.Time) error {
	key := fmt.Sprintf("delivery:%s", deliveryID)

	value := map[string]any{
		"deliveryId": deliveryID,
		"sentAt":     sentAt,
	}

	jsonVal, _ := json.Marshal(value)
	// Expire after 24 hours to keep memory clean
	return r.cache.Set(ctx, key, string(jsonVal), 24*time.Hour)
}

// conditionalUpdate performs "set status = to WHERE id = ? AND status =
// from" and reports whether this caller's update took effect.
func (r *repo) conditionalUpdate(model any, id string, from, to any) (bool, error) {
	res := r.db.Model(model).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
