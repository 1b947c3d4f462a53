package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/config"
	"ms-reviews/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Store is the persistence surface used by the reservation, quota, submission and
// admin services. Every method honours the transaction it was obtained from.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Campaigns
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListApprovedCampaigns(ctx context.Context) ([]models.Campaign, error)
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	UpdateCampaignStatus(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus, now time.Time) (bool, error)
	UpdateDailyCount(ctx context.Context, id int64, dailyCount int, now time.Time) error

	// Slots
	CreateSlots(ctx context.Context, campaignID int64, total int, now time.Time) (int, error)
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	ListSlots(ctx context.Context, campaignID int64) ([]models.Slot, error)
	ClaimSlot(ctx context.Context, slotID int64, userID, date string, now time.Time) (bool, error)
	ReleaseSlot(ctx context.Context, slotID int64, userID string, now time.Time) (bool, error)
	CompleteSlot(ctx context.Context, slotID int64, userID string, now time.Time) (bool, error)
	OpenSlot(ctx context.Context, slotID int64, date string, now time.Time) (bool, error)
	CloseSlot(ctx context.Context, slotID int64, now time.Time) (bool, error)
	RepairSlot(ctx context.Context, observed, repaired *models.Slot, now time.Time) (bool, error)
	ForceSlotStatus(ctx context.Context, slotID int64, target models.SlotStatus, openedDate string, now time.Time) (bool, error)
	CountUserCampaignClaims(ctx context.Context, userID string, campaignID int64) (int, error)
	CountUserPlatformClaims(ctx context.Context, userID, platform, date string) (int, error)
	CountOpenedOn(ctx context.Context, campaignID int64, date string) (int, error)
	CountHeld(ctx context.Context, campaignID int64) (int, error)

	// Daily quota ledger
	UpsertDailyQuota(ctx context.Context, campaignID int64, date string, available int, now time.Time) error
	SetReservedSlots(ctx context.Context, campaignID int64, date string, reserved int, now time.Time) error
	GetDailyQuota(ctx context.Context, campaignID int64, date string) (*models.DailyQuota, error)
	ListDailyQuotas(ctx context.Context, campaignID int64) ([]models.DailyQuota, error)

	// Submissions
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	GetSubmissionBySlot(ctx context.Context, slotID int64) (*models.Submission, error)
	UpsertSubmission(ctx context.Context, sub *models.Submission) error
	UpdateSubmission(ctx context.Context, sub *models.Submission) error
	DeleteSubmissionBySlot(ctx context.Context, slotID int64) (*models.Submission, error)
	SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus, now time.Time) (bool, error)
}

type DB struct {
	Bun       *bun.DB
	TxOptions *sql.TxOptions

	tx bun.IDB
}

var _ Store = (*DB)(nil)

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// Open connects to postgres through lib/pq or to sqlite through bun's sqliteshim.
// Postgres transactions run serializable.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "postgres", "":
		sqldb, err := sql.Open("postgres", cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		return &DB{
			Bun:       bun.NewDB(sqldb, pgdialect.New()),
			TxOptions: &sql.TxOptions{Isolation: sql.LevelSerializable},
		}, nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// OpenSQLite pins the pool to a single connection, which serializes writers the
// same way sqlite itself does and keeps :memory: databases alive.
func OpenSQLite(dsn string) (*DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)
	return &DB{Bun: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

func (d *DB) Close() error {
	return d.Bun.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

func (d *DB) idb() bun.IDB {
	if d.tx != nil {
		return d.tx
	}
	return d.Bun
}

// RunInTx runs fn in a transaction. Errors returned by fn are passed through
// untouched; failures to begin or commit are reported as transient. Calls on a
// store that is already inside a transaction reuse it.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if d.tx != nil {
		return fn(ctx, d)
	}

	var fnErr error
	err := d.Bun.RunInTx(ctx, d.TxOptions, func(ctx context.Context, tx bun.Tx) error {
		fnErr = fn(ctx, &DB{Bun: d.Bun, TxOptions: d.TxOptions, tx: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return common.Transient("commit transaction", err)
	}
	return nil
}

// CreateSchema creates the tables and indexes for dev mode and tests. Production
// schemas are managed by the migrations directory.
func (d *DB) CreateSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.Campaign)(nil),
		(*models.Slot)(nil),
		(*models.DailyQuota)(nil),
		(*models.Submission)(nil),
	}
	for _, model := range tables {
		if _, err := d.Bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		model   interface{}
		columns []string
	}{
		{"idx_slots_campaign_status", (*models.Slot)(nil), []string{"campaign_id", "status"}},
		{"idx_slots_holder", (*models.Slot)(nil), []string{"reservation_user_id", "reserved_date"}},
		{"idx_submissions_campaign", (*models.Submission)(nil), []string{"campaign_id"}},
	}
	for _, idx := range indexes {
		_, err := d.Bun.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// storageErr classifies a driver error. Serialization failures, deadlocks, lost
// connections and sqlite busy errors are transient. Rejected values and
// constraint violations are invalid input and are not retried.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isRetryable(err) {
		return common.Transient(op, err)
	}
	if isRejected(err) {
		return fmt.Errorf("%s: %w: %w", op, common.ErrInvalidInput, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// isRejected reports data exceptions (class 22, e.g. 22001 value too long) and
// integrity constraint violations (class 23).
func isRejected(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return class == "22" || class == "23"
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
