package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DailyQuota holds the allowance for one campaign on one date. ReservedSlots is
// recomputed from the slot table on every synchronization.
type DailyQuota struct {
	bun.BaseModel `bun:"table:daily_quotas,alias:dq"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	CampaignID     int64     `bun:"campaign_id,notnull,unique:campaign_date" json:"campaign_id"`
	Date           string    `bun:"quota_date,notnull,unique:campaign_date" json:"date"`
	AvailableSlots int       `bun:"available_slots,notnull" json:"available_slots"`
	ReservedSlots  int       `bun:"reserved_slots,notnull" json:"reserved_slots"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

// SyncResult summarizes one synchronization run.
type SyncResult struct {
	CampaignID    int64  `json:"campaign_id"`
	Date          string `json:"date"`
	Opened        int    `json:"opened"`
	Closed        int    `json:"closed"`
	Repaired      int    `json:"repaired"`
	ReservedCount int    `json:"reserved_count"`
	Skipped       bool   `json:"skipped"`
	Reason        string `json:"reason,omitempty"`
}

// DailyLimitStatus is the per-platform daily claim counter shown to a user.
type DailyLimitStatus struct {
	Platform string `json:"platform"`
	Date     string `json:"date"`
	Count    int    `json:"count"`
	Limit    int    `json:"limit"`
	Limited  bool   `json:"limited"`
}
