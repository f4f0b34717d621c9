package service

import (
	"fmt"
	"maps"
	"time"

	"campaign-engine/internal/domain"
	"campaign-engine/internal/recurrence"
	"campaign-engine/internal/repository/schedule"
	"campaign-engine/internal/template"
)

const (
	KindCampaign = "campaign"
	KindMessage  = "message"
)

// Result aggregates one occurrence's recipient outcomes. Err is set only
// when the occurrence could not be attempted at all (e.g. the limiter was
// saturated before the first send); partial recipient failure is normal
// and reported through the counters.
type Result struct {
	Sent   int
	Failed int
	Err    error
}

// Occurrence is one due instance of a campaign or scheduled message,
// treated uniformly by the scheduler loop and executor.
type Occurrence interface {
	ID() string
	Kind() string
	Due(now time.Time) bool
	Recipients() []string
	Render(recipient string) (body string, media *domain.Media)
	// Claim grants exclusive execution rights; false means another
	// instance owns the occurrence.
	Claim() (bool, error)
	// Release undoes a claim whose occurrence was never attempted.
	Release() error
	// Finalize records the run and drives the status state machine.
	Finalize(result Result, now time.Time) error
}

type campaignOccurrence struct {
	campaign domain.Campaign
	repo     schedule.Repository
}

func newCampaignOccurrence(c domain.Campaign, repo schedule.Repository) Occurrence {
	return &campaignOccurrence{campaign: c, repo: repo}
}

func (o *campaignOccurrence) ID() string { return o.campaign.ID }
func (o *campaignOccurrence) Kind() string { return KindCampaign }

func (o *campaignOccurrence) Due(now time.Time) bool {
	return o.campaign.Status == domain.CampaignScheduled &&
		!now.Before(o.campaign.StartDate) && !now.After(o.campaign.EndDate)
}

func (o *campaignOccurrence) Recipients() []string { return o.campaign.TargetAudience }

func (o *campaignOccurrence) Render(recipient string) (string, *domain.Media) {
	vars := make(map[string]string, len(o.campaign.Variables)+1)
	maps.Copy(vars, o.campaign.Variables)
	vars["recipient"] = recipient
	return template.Render(o.campaign.MessageTemplate, vars), o.campaign.Attachment()
}

func (o *campaignOccurrence) Claim() (bool, error) { return o.repo.ClaimCampaign(o.campaign.ID) }

func (o *campaignOccurrence) Release() error { return o.repo.ReleaseCampaign(o.campaign.ID) }

func (o *campaignOccurrence) Finalize(result Result, now time.Time) error {
	if result.Err != nil {
		// never attempted: hand the claim back for a later tick
		return o.Release()
	}

	entry := &domain.ExecutionLog{
		CampaignID:     &o.campaign.ID,
		ExecutedAt:     now,
		MessagesSent:   result.Sent,
		MessagesFailed: result.Failed,
	}
	if err := o.repo.AppendExecutionLog(entry); err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	if err := o.repo.AddCampaignSent(o.campaign.ID, result.Sent); err != nil {
		return fmt.Errorf("failed to update campaign metrics: %w", err)
	}
	if now.After(o.campaign.EndDate) {
		if _, err := o.repo.CompleteCampaign(o.campaign.ID); err != nil {
			return fmt.Errorf("failed to complete campaign: %w", err)
		}
	}
	return nil
}

type messageOccurrence struct {
	message domain.ScheduledMessage
	repo    schedule.Repository
}

func newMessageOccurrence(m domain.ScheduledMessage, repo schedule.Repository) Occurrence {
	return &messageOccurrence{message: m, repo: repo}
}

func (o *messageOccurrence) ID() string { return o.message.ID }
func (o *messageOccurrence) Kind() string { return KindMessage }

func (o *messageOccurrence) Due(now time.Time) bool {
	return o.message.Status == domain.MessageScheduled && !o.message.SendAt.After(now)
}

func (o *messageOccurrence) Recipients() []string { return o.message.Recipients }

func (o *messageOccurrence) Render(recipient string) (string, *domain.Media) {
	return template.Render(o.message.Body, map[string]string{"recipient": recipient}), nil
}

func (o *messageOccurrence) Claim() (bool, error) { return o.repo.ClaimMessage(o.message.ID) }

func (o *messageOccurrence) Release() error { return o.repo.ReleaseMessage(o.message.ID) }

func (o *messageOccurrence) Finalize(result Result, now time.Time) error {
	if result.Err != nil {
		return o.Release()
	}

	entry := &domain.ExecutionLog{
		ScheduledMessageID: &o.message.ID,
		ExecutedAt:         now,
		MessagesSent:       result.Sent,
		MessagesFailed:     result.Failed,
	}
	if err := o.repo.AppendExecutionLog(entry); err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}

	// A failed occurrence of a recurring message still advances to the
	// next cadence; missed beats are not retried indefinitely.
	if next, ok := recurrence.Next(o.message.SendAt, o.message.RepeatType); ok {
		return o.repo.RescheduleMessage(o.message.ID, next)
	}

	status := domain.MessageSent
	if result.Sent == 0 && result.Failed > 0 {
		status = domain.MessageFailed
	}
	return o.repo.FinalizeMessage(o.message.ID, status)
}
