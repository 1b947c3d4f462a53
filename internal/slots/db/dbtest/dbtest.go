// Package dbtest provides an in-memory sqlite store and seed helpers for service
// tests.
package dbtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"ms-reviews/internal/models"
	"ms-reviews/internal/slots/db"

	"github.com/stretchr/testify/require"
)

var seq int64

// NewStore opens a fresh in-memory database with the schema created.
func NewStore(t testing.TB) *db.DB {
	t.Helper()
	// A named shared-cache database keeps every test isolated.
	dsn := fmt.Sprintf("file:test%d?mode=memory&cache=shared", atomic.AddInt64(&seq, 1))
	store, err := db.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateSchema(context.Background()))
	return store
}

type CampaignOption func(*models.Campaign)

func WithStatus(s models.CampaignStatus) CampaignOption {
	return func(c *models.Campaign) { c.Status = s }
}

func WithPlatform(p string) CampaignOption {
	return func(c *models.Campaign) { c.Platform = p }
}

func WithWindow(start, end time.Time) CampaignOption {
	return func(c *models.Campaign) { c.StartDate, c.EndDate = start, end }
}

func WithDailyCount(n int) CampaignOption {
	return func(c *models.Campaign) { c.DailyCount = n }
}

// SeedCampaign inserts an approved campaign active around asOf together with its
// unopened slots.
func SeedCampaign(t testing.TB, store *db.DB, total int, asOf time.Time, opts ...CampaignOption) *models.Campaign {
	t.Helper()
	ctx := context.Background()
	c := &models.Campaign{
		Title:      "test campaign",
		Platform:   "blog",
		Status:     models.CampaignApproved,
		TotalSlots: total,
		DailyCount: 3,
		StartDate:  asOf.AddDate(0, 0, -7),
		EndDate:    asOf.AddDate(0, 0, 7),
		CreatedAt:  asOf,
	}
	for _, opt := range opts {
		opt(c)
	}
	require.NoError(t, store.CreateCampaign(ctx, c))
	_, err := store.CreateSlots(ctx, c.ID, total, asOf)
	require.NoError(t, err)
	return c
}

// Slots returns the campaign's slots keyed by slot number.
func Slots(t testing.TB, store *db.DB, campaignID int64) map[int]models.Slot {
	t.Helper()
	list, err := store.ListSlots(context.Background(), campaignID)
	require.NoError(t, err)
	out := make(map[int]models.Slot, len(list))
	for _, s := range list {
		out[s.SlotNumber] = s
	}
	return out
}

// RequireConsistent fails the test if any slot of the campaign breaks the holder or
// opened-date invariant.
func RequireConsistent(t testing.TB, store *db.DB, campaignID int64) {
	t.Helper()
	for n, s := range Slots(t, store, campaignID) {
		require.True(t, s.Consistent(), "slot %d inconsistent: %+v", n, s)
	}
}

// Corrupt writes raw column values to a slot, bypassing every guard.
func Corrupt(t testing.TB, store *db.DB, slotID int64, status models.SlotStatus, holder, openedDate string) {
	t.Helper()
	q := store.Bun.NewUpdate().Model((*models.Slot)(nil)).Set("status = ?", status)
	if holder == "" {
		q = q.Set("reservation_user_id = NULL")
	} else {
		q = q.Set("reservation_user_id = ?", holder)
	}
	if openedDate == "" {
		q = q.Set("opened_date = NULL")
	} else {
		q = q.Set("opened_date = ?", openedDate)
	}
	_, err := q.Where("id = ?", slotID).Exec(context.Background())
	require.NoError(t, err)
}
