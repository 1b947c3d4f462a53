package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-reviews/internal/models"
)

// UpsertDailyQuota records the allowance for a campaign on date. A new row starts
// with reserved_slots = 0; an existing row keeps its reserved count until the next
// SetReservedSlots.
func (d *DB) UpsertDailyQuota(ctx context.Context, campaignID int64, date string, available int, now time.Time) error {
	q := &models.DailyQuota{
		CampaignID:     campaignID,
		Date:           date,
		AvailableSlots: available,
		UpdatedAt:      now,
	}
	_, err := d.idb().NewInsert().
		Model(q).
		On("CONFLICT (campaign_id, quota_date) DO UPDATE").
		Set("available_slots = EXCLUDED.available_slots").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("NULL").
		Exec(ctx)
	return storageErr("upsert daily quota", err)
}

func (d *DB) SetReservedSlots(ctx context.Context, campaignID int64, date string, reserved int, now time.Time) error {
	res, err := d.idb().NewUpdate().
		Model((*models.DailyQuota)(nil)).
		Set("reserved_slots = ?", reserved).
		Set("updated_at = ?", now).
		Where("campaign_id = ?", campaignID).
		Where("quota_date = ?", date).
		Exec(ctx)
	if err != nil {
		return storageErr("set reserved slots", err)
	}
	ok, err := affected(res)
	if err != nil {
		return storageErr("set reserved slots", err)
	}
	if !ok {
		return fmt.Errorf("set reserved slots: no quota row for campaign %d on %s", campaignID, date)
	}
	return nil
}

// GetDailyQuota returns nil without error when no row exists for the date.
func (d *DB) GetDailyQuota(ctx context.Context, campaignID int64, date string) (*models.DailyQuota, error) {
	var q models.DailyQuota
	err := d.idb().NewSelect().
		Model(&q).
		Where("dq.campaign_id = ?", campaignID).
		Where("dq.quota_date = ?", date).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get daily quota", err)
	}
	return &q, nil
}

// ListDailyQuotas returns the ledger newest date first.
func (d *DB) ListDailyQuotas(ctx context.Context, campaignID int64) ([]models.DailyQuota, error) {
	var rows []models.DailyQuota
	err := d.idb().NewSelect().
		Model(&rows).
		Where("dq.campaign_id = ?", campaignID).
		Order("dq.quota_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("list daily quotas", err)
	}
	return rows, nil
}
