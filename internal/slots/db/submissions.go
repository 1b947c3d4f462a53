package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/models"
)

func (d *DB) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	err := d.idb().NewSelect().
		Model(&sub).
		Where("sub.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, storageErr("get submission", err)
	}
	return &sub, nil
}

func (d *DB) GetSubmissionBySlot(ctx context.Context, slotID int64) (*models.Submission, error) {
	var sub models.Submission
	err := d.idb().NewSelect().
		Model(&sub).
		Where("sub.slot_id = ?", slotID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, storageErr("get submission by slot", err)
	}
	return &sub, nil
}

// UpsertSubmission inserts the submission for its slot, replacing the details of a
// leftover row for the same slot. The stored id of a replaced row is kept.
func (d *DB) UpsertSubmission(ctx context.Context, sub *models.Submission) error {
	_, err := d.idb().NewInsert().
		Model(sub).
		On("CONFLICT (slot_id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("nickname = EXCLUDED.nickname").
		Set("name = EXCLUDED.name").
		Set("phone = EXCLUDED.phone").
		Set("bank_name = EXCLUDED.bank_name").
		Set("account_number = EXCLUDED.account_number").
		Set("account_holder = EXCLUDED.account_holder").
		Set("review_url = EXCLUDED.review_url").
		Set("attachments = EXCLUDED.attachments").
		Set("payment_status = EXCLUDED.payment_status").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("NULL").
		Exec(ctx)
	return storageErr("upsert submission", err)
}

func (d *DB) UpdateSubmission(ctx context.Context, sub *models.Submission) error {
	res, err := d.idb().NewUpdate().
		Model(sub).
		Column("nickname", "name", "phone", "bank_name", "account_number", "account_holder",
			"review_url", "attachments", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return storageErr("update submission", err)
	}
	ok, err := affected(res)
	if err != nil {
		return storageErr("update submission", err)
	}
	if !ok {
		return common.ErrSubmissionNotFound
	}
	return nil
}

// DeleteSubmissionBySlot removes the submission attached to a slot and returns it,
// or nil when there was none.
func (d *DB) DeleteSubmissionBySlot(ctx context.Context, slotID int64) (*models.Submission, error) {
	sub, err := d.GetSubmissionBySlot(ctx, slotID)
	if errors.Is(err, common.ErrSubmissionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = d.idb().NewDelete().
		Model((*models.Submission)(nil)).
		Where("slot_id = ?", slotID).
		Exec(ctx)
	if err != nil {
		return nil, storageErr("delete submission", err)
	}
	return sub, nil
}

func (d *DB) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus, now time.Time) (bool, error) {
	res, err := d.idb().NewUpdate().
		Model((*models.Submission)(nil)).
		Set("payment_status = ?", status).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, storageErr("set payment status", err)
	}
	return affected(res)
}
