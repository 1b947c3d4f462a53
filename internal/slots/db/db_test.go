package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/models"
	"ms-reviews/internal/slots/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const today = "2026-03-10"

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.OpenSQLite("file:slotsdb_" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.CreateSchema(context.Background()))
	return store
}

func seedCampaign(t *testing.T, store *db.DB, platform string, total int) *models.Campaign {
	t.Helper()
	ctx := context.Background()
	c := &models.Campaign{
		Title:      "campaign",
		Platform:   platform,
		Status:     models.CampaignApproved,
		TotalSlots: total,
		DailyCount: 2,
		StartDate:  now.AddDate(0, 0, -5),
		EndDate:    now.AddDate(0, 0, 5),
		CreatedAt:  now,
	}
	require.NoError(t, store.CreateCampaign(ctx, c))
	_, err := store.CreateSlots(ctx, c.ID, total, now)
	require.NoError(t, err)
	return c
}

func slotByNumber(t *testing.T, store *db.DB, campaignID int64, number int) models.Slot {
	t.Helper()
	slots, err := store.ListSlots(context.Background(), campaignID)
	require.NoError(t, err)
	for _, s := range slots {
		if s.SlotNumber == number {
			return s
		}
	}
	t.Fatalf("slot %d not found", number)
	return models.Slot{}
}

func TestCreateSlots_Idempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 4)

	n, err := store.CreateSlots(ctx, c.ID, 6, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	slots, err := store.ListSlots(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, slots, 6)
	for i, s := range slots {
		assert.Equal(t, i+1, s.SlotNumber)
		assert.Equal(t, models.SlotUnopened, s.Status)
		assert.True(t, s.Consistent())
	}
}

func TestGetSlot_NotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetSlot(context.Background(), 999)
	assert.True(t, errors.Is(err, common.ErrSlotNotFound))

	_, err = store.GetCampaign(context.Background(), 999)
	assert.True(t, errors.Is(err, common.ErrCampaignNotFound))
}

func TestClaimSlot_OnlyFromAvailable(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 2)
	s := slotByNumber(t, store, c.ID, 1)

	ok, err := store.ClaimSlot(ctx, s.ID, "u1", today, now)
	require.NoError(t, err)
	assert.False(t, ok, "unopened slot must not be claimable")

	ok, err = store.OpenSlot(ctx, s.ID, today, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ClaimSlot(ctx, s.ID, "u1", today, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ClaimSlot(ctx, s.ID, "u2", today, now)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	got, err := store.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotReserved, got.Status)
	assert.Equal(t, "u1", got.ReservationUserID)
	assert.Equal(t, today, got.ReservedDate)
	assert.Equal(t, today, got.OpenedDate)
	assert.True(t, got.Consistent())
}

func TestReleaseSlot_KeepsOpenedDate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 1)
	s := slotByNumber(t, store, c.ID, 1)

	_, err := store.OpenSlot(ctx, s.ID, "2026-03-09", now)
	require.NoError(t, err)
	_, err = store.ClaimSlot(ctx, s.ID, "u1", today, now)
	require.NoError(t, err)

	ok, err := store.ReleaseSlot(ctx, s.ID, "u2", now)
	require.NoError(t, err)
	assert.False(t, ok, "only the holder may release")

	ok, err = store.ReleaseSlot(ctx, s.ID, "u1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotAvailable, got.Status)
	assert.Empty(t, got.ReservationUserID)
	assert.Empty(t, got.ReservedDate)
	assert.Equal(t, "2026-03-09", got.OpenedDate)
}

func TestCountUserPlatformClaims_AcrossCampaigns(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	blogA := seedCampaign(t, store, "blog", 2)
	blogB := seedCampaign(t, store, "blog", 2)
	insta := seedCampaign(t, store, "instagram", 2)

	claim := func(c *models.Campaign, number int, date string) {
		s := slotByNumber(t, store, c.ID, number)
		_, err := store.OpenSlot(ctx, s.ID, date, now)
		require.NoError(t, err)
		ok, err := store.ClaimSlot(ctx, s.ID, "u1", date, now)
		require.NoError(t, err)
		require.True(t, ok)
	}
	claim(blogA, 1, today)
	claim(blogB, 1, today)
	claim(blogB, 2, "2026-03-09")
	claim(insta, 1, today)

	n, err := store.CountUserPlatformClaims(ctx, "u1", "blog", today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountUserPlatformClaims(ctx, "u1", "instagram", today)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountUserCampaignClaims(ctx, "u1", blogB.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountHeld(ctx, blogB.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountOpenedOn(ctx, blogB.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepairSlot_GuardedOnObservedState(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 1)
	s := slotByNumber(t, store, c.ID, 1)

	// Corrupt the row: available with a holder.
	_, err := store.OpenSlot(ctx, s.ID, today, now)
	require.NoError(t, err)
	_, err = store.Bun.NewUpdate().Model((*models.Slot)(nil)).
		Set("reservation_user_id = ?", "ghost").
		Where("id = ?", s.ID).
		Exec(ctx)
	require.NoError(t, err)

	observed, err := store.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	require.False(t, observed.Consistent())

	stale := *observed
	stale.ReservationUserID = ""
	repaired := *observed
	repaired.Status = models.SlotReserved

	ok, err := store.RepairSlot(ctx, &stale, &repaired, now)
	require.NoError(t, err)
	assert.False(t, ok, "a stale observation must not be applied")

	ok, err = store.RepairSlot(ctx, observed, &repaired, now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotReserved, got.Status)
	assert.Equal(t, "ghost", got.ReservationUserID)
	assert.True(t, got.Consistent())
}

func TestForceSlotStatus_ClearsHolder(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 1)
	s := slotByNumber(t, store, c.ID, 1)

	_, err := store.OpenSlot(ctx, s.ID, today, now)
	require.NoError(t, err)
	_, err = store.ClaimSlot(ctx, s.ID, "u1", today, now)
	require.NoError(t, err)

	ok, err := store.ForceSlotStatus(ctx, s.ID, models.SlotUnopened, "", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotUnopened, got.Status)
	assert.Empty(t, got.ReservationUserID)
	assert.Empty(t, got.OpenedDate)
	assert.True(t, got.Consistent())

	ok, err = store.ForceSlotStatus(ctx, 12345, models.SlotAvailable, today, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDailyQuota_UpsertKeepsReserved(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 1)

	require.NoError(t, store.UpsertDailyQuota(ctx, c.ID, today, 3, now))
	require.NoError(t, store.SetReservedSlots(ctx, c.ID, today, 2, now))
	require.NoError(t, store.UpsertDailyQuota(ctx, c.ID, today, 1, now))
	require.NoError(t, store.UpsertDailyQuota(ctx, c.ID, "2026-03-09", 4, now))

	q, err := store.GetDailyQuota(ctx, c.ID, today)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 1, q.AvailableSlots)
	assert.Equal(t, 2, q.ReservedSlots)

	rows, err := store.ListDailyQuotas(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, today, rows[0].Date)

	missing, err := store.GetDailyQuota(ctx, c.ID, "2030-01-01")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = store.SetReservedSlots(ctx, c.ID, "2030-01-01", 1, now)
	assert.Error(t, err)
}

func TestSubmissions_UpsertAndDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 1)
	s := slotByNumber(t, store, c.ID, 1)

	sub := &models.Submission{
		ID:            uuid.New().String(),
		SlotID:        s.ID,
		CampaignID:    c.ID,
		UserID:        "u1",
		Nickname:      "reviewer",
		Attachments:   []string{"https://cdn/a.png"},
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
	}
	require.NoError(t, store.UpsertSubmission(ctx, sub))

	again := *sub
	again.ID = uuid.New().String()
	again.Nickname = "renamed"
	again.Attachments = []string{"https://cdn/b.png", "https://cdn/c.png"}
	require.NoError(t, store.UpsertSubmission(ctx, &again))

	got, err := store.GetSubmissionBySlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, "renamed", got.Nickname)
	assert.Equal(t, []string{"https://cdn/b.png", "https://cdn/c.png"}, got.Attachments)

	ok, err := store.SetPaymentStatus(ctx, got.ID, models.PaymentCompleted, now)
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := store.DeleteSubmissionBySlot(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, models.PaymentCompleted, deleted.PaymentStatus)

	deleted, err = store.DeleteSubmissionBySlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	_, err = store.GetSubmission(ctx, got.ID)
	assert.True(t, errors.Is(err, common.ErrSubmissionNotFound))
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 1)
	s := slotByNumber(t, store, c.ID, 1)

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		if _, err := tx.OpenSlot(ctx, s.ID, today, now); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	got, err := store.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotUnopened, got.Status)
}

func TestUpdateCampaignStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, store, "blog", 1)

	ok, err := store.UpdateCampaignStatus(ctx, c.ID, []models.CampaignStatus{models.CampaignPending}, models.CampaignClosed, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.UpdateCampaignStatus(ctx, c.ID, []models.CampaignStatus{models.CampaignApproved}, models.CampaignClosed, now)
	require.NoError(t, err)
	assert.True(t, ok)

	approved, err := store.ListApprovedCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, approved)

	require.NoError(t, store.UpdateDailyCount(ctx, c.ID, 7, now))
	got, err := store.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.DailyCount)

	assert.True(t, errors.Is(store.UpdateDailyCount(ctx, 999, 1, now), common.ErrCampaignNotFound))
}
