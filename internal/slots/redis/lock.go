package redis

import (
	"context"
	"fmt"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	claimLockPrefix  = "claim_lock:"
	syncMarkerPrefix = "quota_sync:"
)

// unlockScript deletes the key only if it still holds our token, so a lock that
// expired and was taken by another request is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Redis struct {
	Client    *redis.Client
	LockTTL   time.Duration
	MarkerTTL time.Duration
	Logger    *logger.Logger
}

func NewRedis(client *redis.Client, lockTTL, markerTTL time.Duration, log *logger.Logger) *Redis {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	if markerTTL <= 0 {
		markerTTL = 26 * time.Hour
	}
	return &Redis{Client: client, LockTTL: lockTTL, MarkerTTL: markerTTL, Logger: log}
}

// Acquire takes the short-lived lock named key. It fails fast with
// common.ErrClaimInProgress when somebody else holds it. The returned release
// function is safe to call more than once.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := claimLockPrefix + key
	token := uuid.New().String()

	ok, err := r.Client.SetNX(ctx, lockKey, token, r.LockTTL).Result()
	if err != nil {
		return nil, common.Transient("acquire claim lock", err)
	}
	if !ok {
		return nil, common.ErrClaimInProgress
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Release on a fresh context so a cancelled request still frees the lock.
		relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := unlockScript.Run(relCtx, r.Client, []string{lockKey}, token).Err(); err != nil && err != redis.Nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("release %s: %v", lockKey, err))
		}
	}, nil
}

// IsLocked reports whether key is currently held.
func (r *Redis) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, claimLockPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func syncMarkerKey(campaignID int64, date string) string {
	return fmt.Sprintf("%s%d:%s", syncMarkerPrefix, campaignID, date)
}

// MarkSynchronized sets the marker for (campaign, date) and reports whether this
// call was the one that set it.
func (r *Redis) MarkSynchronized(ctx context.Context, campaignID int64, date string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, syncMarkerKey(campaignID, date), time.Now().UTC().Format(time.RFC3339), r.MarkerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("set sync marker: %w", err)
	}
	return ok, nil
}

func (r *Redis) ClearSyncMarker(ctx context.Context, campaignID int64, date string) error {
	if err := r.Client.Del(ctx, syncMarkerKey(campaignID, date)).Err(); err != nil {
		return fmt.Errorf("clear sync marker: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
