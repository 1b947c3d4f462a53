package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-reviews/internal/admin"
	"ms-reviews/internal/common"
	"ms-reviews/internal/events"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"
	"ms-reviews/internal/quota"
	"ms-reviews/internal/slots/db/dbtest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func TestBulkSetStatus(t *testing.T) {
	ctx := context.Background()
	store := dbtest.NewStore(t)
	rec := &events.Recorder{}
	svc := admin.NewService(store, rec, rec, logger.Nop(), time.UTC)

	c := dbtest.SeedCampaign(t, store, 4, asOf, dbtest.WithDailyCount(3))
	_, err := quota.NewService(store, nil, nil, logger.Nop(), time.UTC).Synchronize(ctx, c.ID, asOf)
	require.NoError(t, err)
	slots := dbtest.Slots(t, store, c.ID)

	// Slot 1 reserved by A with a completed submission, slot 2 reserved by B.
	ok, err := store.ClaimSlot(ctx, slots[1].ID, "A", "2026-03-10", asOf)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.CompleteSlot(ctx, slots[1].ID, "A", asOf)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.UpsertSubmission(ctx, &models.Submission{
		ID: uuid.New().String(), SlotID: slots[1].ID, CampaignID: c.ID, UserID: "A", Nickname: "a",
		Attachments: []string{"https://cdn/a.png"}, PaymentStatus: models.PaymentPending, CreatedAt: asOf,
	}))
	ok, err = store.ClaimSlot(ctx, slots[2].ID, "B", "2026-03-10", asOf)
	require.NoError(t, err)
	require.True(t, ok)

	other := dbtest.SeedCampaign(t, store, 1, asOf)
	foreign := dbtest.Slots(t, store, other.ID)[1]

	ids := []int64{slots[1].ID, slots[2].ID, slots[4].ID, 99999, foreign.ID, slots[4].ID}
	res, err := svc.BulkSetStatus(ctx, c.ID, ids, models.SlotAvailable, asOf)
	require.NoError(t, err)
	assert.Equal(t, []int64{slots[1].ID, slots[2].ID, slots[4].ID}, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, int64(99999), res.Failed[0].SlotID)
	assert.Equal(t, "slot not found", res.Failed[0].Reason)
	assert.Equal(t, foreign.ID, res.Failed[1].SlotID)

	after := dbtest.Slots(t, store, c.ID)
	for _, n := range []int{1, 2, 4} {
		assert.Equal(t, models.SlotAvailable, after[n].Status, "slot %d", n)
		assert.Empty(t, after[n].ReservationUserID, "slot %d", n)
		assert.Empty(t, after[n].ReservedDate, "slot %d", n)
		assert.Equal(t, "2026-03-10", after[n].OpenedDate, "slot %d", n)
	}
	dbtest.RequireConsistent(t, store, c.ID)

	_, err = store.GetSubmissionBySlot(ctx, slots[1].ID)
	assert.True(t, errors.Is(err, common.ErrSubmissionNotFound))
	removed := rec.RemovedAttachments()
	require.Len(t, removed, 1)
	assert.Equal(t, slots[1].ID, removed[0].SlotID)
	assert.Len(t, rec.Events, 3)

	res, err = svc.BulkSetStatus(ctx, c.ID, []int64{slots[1].ID}, models.SlotUnopened, asOf)
	require.NoError(t, err)
	assert.Equal(t, []int64{slots[1].ID}, res.Succeeded)
	assert.Empty(t, res.Failed)
	s1, err := store.GetSlot(ctx, slots[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotUnopened, s1.Status)
	assert.Empty(t, s1.OpenedDate)
}

func TestBulkSetStatus_RejectsHeldTargets(t *testing.T) {
	ctx := context.Background()
	store := dbtest.NewStore(t)
	svc := admin.NewService(store, nil, nil, logger.Nop(), time.UTC)
	c := dbtest.SeedCampaign(t, store, 1, asOf)
	slot := dbtest.Slots(t, store, c.ID)[1]

	for _, target := range []models.SlotStatus{models.SlotReserved, models.SlotComplete, "bogus"} {
		_, err := svc.BulkSetStatus(ctx, c.ID, []int64{slot.ID}, target, asOf)
		var verr *common.ValidationError
		require.True(t, errors.As(err, &verr), "target %s", target)
		assert.Contains(t, verr.Fields, "status")
	}

	_, err := svc.BulkSetStatus(ctx, c.ID, nil, models.SlotAvailable, asOf)
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	_, err = svc.BulkSetStatus(ctx, 4242, []int64{slot.ID}, models.SlotAvailable, asOf)
	assert.True(t, errors.Is(err, common.ErrCampaignNotFound))
}

func TestBulkSetStatus_NextSyncLeavesForcedSlotsConsistent(t *testing.T) {
	ctx := context.Background()
	store := dbtest.NewStore(t)
	svc := admin.NewService(store, nil, nil, logger.Nop(), time.UTC)
	q := quota.NewService(store, nil, nil, logger.Nop(), time.UTC)

	c := dbtest.SeedCampaign(t, store, 3, asOf, dbtest.WithDailyCount(1))
	_, err := q.Synchronize(ctx, c.ID, asOf)
	require.NoError(t, err)
	slots := dbtest.Slots(t, store, c.ID)

	_, err = svc.BulkSetStatus(ctx, c.ID, []int64{slots[2].ID, slots[3].ID}, models.SlotAvailable, asOf)
	require.NoError(t, err)

	res, err := q.Synchronize(ctx, c.ID, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Closed)
	dbtest.RequireConsistent(t, store, c.ID)
	assert.Equal(t, models.SlotAvailable, dbtest.Slots(t, store, c.ID)[1].Status)
}
