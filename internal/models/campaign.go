package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "draft"
	CampaignPending  CampaignStatus = "pending"
	CampaignApproved CampaignStatus = "approved"
	CampaignRejected CampaignStatus = "rejected"
	CampaignClosed   CampaignStatus = "closed"
)

// Campaign is the read-only configuration of a review campaign. It is owned by the
// admin CRUD service; this service only approves it and updates its daily allowance.
type Campaign struct {
	bun.BaseModel `bun:"table:campaigns,alias:c"`

	ID         int64          `bun:"id,pk,autoincrement" json:"id"`
	Title      string         `bun:"title,notnull" json:"title"`
	Platform   string         `bun:"platform,notnull" json:"platform"`
	Status     CampaignStatus `bun:"status,notnull" json:"status"`
	TotalSlots int            `bun:"total_slots,notnull" json:"total_slots"`
	DailyCount int            `bun:"daily_count,notnull" json:"daily_count"`
	StartDate  time.Time      `bun:"start_date,notnull" json:"start_date"`
	EndDate    time.Time      `bun:"end_date,notnull" json:"end_date"`
	CreatedAt  time.Time      `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero" json:"updated_at"`
}

func (c *Campaign) IsApproved() bool {
	return c.Status == CampaignApproved
}

// CampaignUpdatedEvent is consumed from the admin service whenever a campaign's
// configuration changes.
type CampaignUpdatedEvent struct {
	CampaignID int64     `json:"campaign_id"`
	DailyCount *int      `json:"daily_count,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
