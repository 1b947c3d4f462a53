package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/models"

	"github.com/uptrace/bun"
)

func (d *DB) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	err := d.idb().NewSelect().
		Model(&c).
		Where("c.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrCampaignNotFound
	}
	if err != nil {
		return nil, storageErr("get campaign", err)
	}
	return &c, nil
}

func (d *DB) ListApprovedCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := d.idb().NewSelect().
		Model(&campaigns).
		Where("c.status = ?", models.CampaignApproved).
		Order("c.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("list approved campaigns", err)
	}
	return campaigns, nil
}

// CreateCampaign is used by seeding and tests; campaign metadata is otherwise
// owned by the admin service.
func (d *DB) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := d.idb().NewInsert().Model(c).Exec(ctx)
	return storageErr("create campaign", err)
}

// UpdateCampaignStatus moves a campaign to status `to` only if it is currently in
// one of `from`.
func (d *DB) UpdateCampaignStatus(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus, now time.Time) (bool, error) {
	res, err := d.idb().NewUpdate().
		Model((*models.Campaign)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, storageErr("update campaign status", err)
	}
	return affected(res)
}

func (d *DB) UpdateDailyCount(ctx context.Context, id int64, dailyCount int, now time.Time) error {
	res, err := d.idb().NewUpdate().
		Model((*models.Campaign)(nil)).
		Set("daily_count = ?", dailyCount).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return storageErr("update daily count", err)
	}
	ok, err := affected(res)
	if err != nil {
		return storageErr("update daily count", err)
	}
	if !ok {
		return common.ErrCampaignNotFound
	}
	return nil
}
