package db

import (
	"context"
	"errors"
	"testing"

	"ms-reviews/internal/common"
	"ms-reviews/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageErr_Classification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind common.Kind
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, common.KindTransient},
		{"deadlock", &pq.Error{Code: "40P01"}, common.KindTransient},
		{"connection lost", &pq.Error{Code: "08006"}, common.KindTransient},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), common.KindTransient},
		{"value too long", &pq.Error{Code: "22001"}, common.KindValidation},
		{"check violation", &pq.Error{Code: "23514"}, common.KindValidation},
		{"sqlite check", errors.New("constraint failed: CHECK constraint failed: daily_count >= 0"), common.KindValidation},
		{"other", errors.New("syntax error"), common.KindInternal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := storageErr("claim slot", c.err)
			assert.Equal(t, c.kind, common.KindOf(err))
			assert.ErrorIs(t, err, c.err)
		})
	}
	assert.NoError(t, storageErr("claim slot", nil))
}

func TestStorageErr_ConstraintViolationOnWriteIsNotTransient(t *testing.T) {
	store, err := OpenSQLite("file:errors_" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.CreateSchema(ctx))

	c := &models.Campaign{ID: 1, Title: "t", Platform: "blog", Status: models.CampaignApproved, TotalSlots: 1}
	require.NoError(t, store.CreateCampaign(ctx, c))

	dup := &models.Campaign{ID: 1, Title: "t", Platform: "blog", Status: models.CampaignApproved, TotalSlots: 1}
	err = store.CreateCampaign(ctx, dup)
	require.Error(t, err)
	assert.False(t, common.IsTransient(err))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
