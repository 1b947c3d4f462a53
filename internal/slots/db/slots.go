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

// CreateSlots inserts slot numbers 1..total as unopened. Numbers that already exist
// are left alone, so approving twice is harmless. It returns the number inserted.
func (d *DB) CreateSlots(ctx context.Context, campaignID int64, total int, now time.Time) (int, error) {
	if total <= 0 {
		return 0, nil
	}
	slots := make([]models.Slot, total)
	for i := range slots {
		slots[i] = models.Slot{
			CampaignID: campaignID,
			SlotNumber: i + 1,
			Status:     models.SlotUnopened,
			UpdatedAt:  now,
		}
	}
	res, err := d.idb().NewInsert().
		Model(&slots).
		On("CONFLICT (campaign_id, slot_number) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return 0, storageErr("create slots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("create slots", err)
	}
	return int(n), nil
}

func (d *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	var s models.Slot
	err := d.idb().NewSelect().
		Model(&s).
		Where("s.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrSlotNotFound
	}
	if err != nil {
		return nil, storageErr("get slot", err)
	}
	return &s, nil
}

func (d *DB) ListSlots(ctx context.Context, campaignID int64) ([]models.Slot, error) {
	var slots []models.Slot
	err := d.idb().NewSelect().
		Model(&slots).
		Where("s.campaign_id = ?", campaignID).
		Order("s.slot_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("list slots", err)
	}
	return slots, nil
}

// ClaimSlot is the conditional write behind a claim: it only succeeds on an
// available slot without a holder.
func (d *DB) ClaimSlot(ctx context.Context, slotID int64, userID, date string, now time.Time) (bool, error) {
	res, err := d.idb().NewUpdate().
		Model((*models.Slot)(nil)).
		Set("status = ?", models.SlotReserved).
		Set("reservation_user_id = ?", userID).
		Set("reserved_date = ?", date).
		Set("reserved_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("status = ?", models.SlotAvailable).
		Where("reservation_user_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, storageErr("claim slot", err)
	}
	return affected(res)
}

// ReleaseSlot returns a reserved slot held by userID to available. opened_date is
// kept so the slot still counts against the day it was opened for.
func (d *DB) ReleaseSlot(ctx context.Context, slotID int64, userID string, now time.Time) (bool, error) {
	res, err := d.idb().NewUpdate().
		Model((*models.Slot)(nil)).
		Set("status = ?", models.SlotAvailable).
		Set("reservation_user_id = NULL").
		Set("reserved_date = NULL").
		Set("reserved_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("status = ?", models.SlotReserved).
		Where("reservation_user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, storageErr("release slot", err)
	}
	return affected(res)
}

func (d *DB) CompleteSlot(ctx context.Context, slotID int64, userID string, now time.Time) (bool, error) {
	res, err := d.idb().NewUpdate().
		Model((*models.Slot)(nil)).
		Set("status = ?", models.SlotComplete).
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("status = ?", models.SlotReserved).
		Where("reservation_user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, storageErr("complete slot", err)
	}
	return affected(res)
}

func (d *DB) OpenSlot(ctx context.Context, slotID int64, date string, now time.Time) (bool, error) {
	res, err := d.idb().NewUpdate().
		Model((*models.Slot)(nil)).
		Set("status = ?", models.SlotAvailable).
		Set("opened_date = ?", date).
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("status = ?", models.SlotUnopened).
		Where("reservation_user_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, storageErr("open slot", err)
	}
	return affected(res)
}

func (d *DB) CloseSlot(ctx context.Context, slotID int64, now time.Time) (bool, error) {
	res, err := d.idb().NewUpdate().
		Model((*models.Slot)(nil)).
		Set("status = ?", models.SlotUnopened).
		Set("opened_date = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("status = ?", models.SlotAvailable).
		Where("reservation_user_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, storageErr("close slot", err)
	}
	return affected(res)
}

// RepairSlot overwrites status, holder and opened date with the values in repaired,
// provided the row still looks exactly like observed.
func (d *DB) RepairSlot(ctx context.Context, observed, repaired *models.Slot, now time.Time) (bool, error) {
	q := d.idb().NewUpdate().
		Model((*models.Slot)(nil)).
		Set("status = ?", repaired.Status).
		Set("updated_at = ?", now)
	q = setNullable(q, "reservation_user_id", repaired.ReservationUserID)
	q = setNullable(q, "opened_date", repaired.OpenedDate)
	if !repaired.HasHolder() {
		q = q.Set("reserved_date = NULL").Set("reserved_at = NULL")
	}

	q = q.Where("id = ?", observed.ID).Where("status = ?", observed.Status)
	q = whereNullable(q, "reservation_user_id", observed.ReservationUserID)
	q = whereNullable(q, "opened_date", observed.OpenedDate)

	res, err := q.Exec(ctx)
	if err != nil {
		return false, storageErr("repair slot", err)
	}
	return affected(res)
}

// ForceSlotStatus is the unconditional administrative override. The holder and
// reservation date are always cleared; openedDate empty means NULL.
func (d *DB) ForceSlotStatus(ctx context.Context, slotID int64, target models.SlotStatus, openedDate string, now time.Time) (bool, error) {
	q := d.idb().NewUpdate().
		Model((*models.Slot)(nil)).
		Set("status = ?", target).
		Set("reservation_user_id = NULL").
		Set("reserved_date = NULL").
		Set("reserved_at = NULL").
		Set("updated_at = ?", now)
	q = setNullable(q, "opened_date", openedDate)

	res, err := q.Where("id = ?", slotID).Exec(ctx)
	if err != nil {
		return false, storageErr("force slot status", err)
	}
	return affected(res)
}

// CountUserCampaignClaims counts the reserved and complete slots a user holds in a
// campaign.
func (d *DB) CountUserCampaignClaims(ctx context.Context, userID string, campaignID int64) (int, error) {
	n, err := d.idb().NewSelect().
		Model((*models.Slot)(nil)).
		Where("s.campaign_id = ?", campaignID).
		Where("s.reservation_user_id = ?", userID).
		Where("s.status IN (?)", bun.In(models.HeldStatuses)).
		Count(ctx)
	if err != nil {
		return 0, storageErr("count campaign claims", err)
	}
	return n, nil
}

// CountUserPlatformClaims counts the reserved and complete slots a user claimed on
// date across every campaign of platform.
func (d *DB) CountUserPlatformClaims(ctx context.Context, userID, platform, date string) (int, error) {
	n, err := d.idb().NewSelect().
		Model((*models.Slot)(nil)).
		Join("JOIN campaigns AS c ON c.id = s.campaign_id").
		Where("c.platform = ?", platform).
		Where("s.reservation_user_id = ?", userID).
		Where("s.reserved_date = ?", date).
		Where("s.status IN (?)", bun.In(models.HeldStatuses)).
		Count(ctx)
	if err != nil {
		return 0, storageErr("count platform claims", err)
	}
	return n, nil
}

// CountOpenedOn counts the slots opened on date that have not been closed again.
func (d *DB) CountOpenedOn(ctx context.Context, campaignID int64, date string) (int, error) {
	n, err := d.idb().NewSelect().
		Model((*models.Slot)(nil)).
		Where("s.campaign_id = ?", campaignID).
		Where("s.opened_date = ?", date).
		Where("s.status IN (?)", bun.In(models.OpenStatuses)).
		Count(ctx)
	if err != nil {
		return 0, storageErr("count opened slots", err)
	}
	return n, nil
}

func (d *DB) CountHeld(ctx context.Context, campaignID int64) (int, error) {
	n, err := d.idb().NewSelect().
		Model((*models.Slot)(nil)).
		Where("s.campaign_id = ?", campaignID).
		Where("s.status IN (?)", bun.In(models.HeldStatuses)).
		Count(ctx)
	if err != nil {
		return 0, storageErr("count held slots", err)
	}
	return n, nil
}

func setNullable(q *bun.UpdateQuery, column, value string) *bun.UpdateQuery {
	if value == "" {
		return q.Set("? = NULL", bun.Ident(column))
	}
	return q.Set("? = ?", bun.Ident(column), value)
}

func whereNullable(q *bun.UpdateQuery, column, value string) *bun.UpdateQuery {
	if value == "" {
		return q.Where("? IS NULL", bun.Ident(column))
	}
	return q.Where("? = ?", bun.Ident(column), value)
}
