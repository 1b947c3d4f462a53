package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/events"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/metrics"
	"ms-reviews/internal/models"
	"ms-reviews/internal/slots/db"
	"ms-reviews/internal/utils"
)

// Locker serializes claims by the same user. Acquire must fail fast with
// common.ErrClaimInProgress rather than wait.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Synchronizer brings a campaign up to date on the first view of the day.
type Synchronizer interface {
	EnsureSynchronized(ctx context.Context, campaignID int64, asOf time.Time) (*models.SyncResult, error)
}

type Limits struct {
	CampaignLimit        int
	DailyLimit           int
	RateLimitedPlatforms []string
}

func (l Limits) rateLimited(platform string) bool {
	for _, p := range l.RateLimitedPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

type Service struct {
	Store       db.Store
	Locker      Locker
	Sync        Synchronizer
	Events      events.Publisher
	Attachments events.AttachmentSink
	Logger      *logger.Logger
	Location    *time.Location
	Limits      Limits
}

func NewService(store db.Store, locker Locker, sync Synchronizer, pub events.Publisher, attachments events.AttachmentSink,
	log *logger.Logger, loc *time.Location, limits Limits) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		Store:       store,
		Locker:      locker,
		Sync:        sync,
		Events:      pub,
		Attachments: attachments,
		Logger:      log,
		Location:    loc,
		Limits:      limits,
	}
}

type ClaimRequest struct {
	CampaignID      int64
	SlotID          int64
	UserID          string
	ProfileComplete bool
	AsOf            time.Time
}

// Claim reserves an available slot for a user. The status check, both admission
// counts and the write happen in one transaction; the counts are checked again
// after the write so a concurrent claim that slipped past the first check rolls
// back instead of exceeding a limit.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (slot *models.Slot, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = common.KindOf(err).String()
		}
		metrics.RecordClaim(outcome, time.Since(start).Seconds())
	}()

	if req.UserID == "" {
		return nil, common.ErrUnauthorized
	}
	if !req.ProfileComplete {
		return nil, common.ErrProfileIncomplete
	}

	release, err := s.Locker.Acquire(ctx, "user:"+req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	today := utils.DateKey(req.AsOf, s.Location)
	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		current, err := slotInCampaign(ctx, tx, req.CampaignID, req.SlotID)
		if err != nil {
			return err
		}

		campaign, err := tx.GetCampaign(ctx, req.CampaignID)
		if err != nil {
			return err
		}
		if !campaign.IsApproved() {
			return common.ErrCampaignNotApproved
		}
		if !utils.WithinWindow(today, campaign.StartDate, campaign.EndDate, s.Location) {
			return common.ErrOutsideWindow
		}

		if _, err := models.Transition(current.Status, models.EventClaim); err != nil || current.HasHolder() {
			return common.NewStateConflict(current, common.ErrSlotNotAvailable)
		}

		if err := s.checkLimits(ctx, tx, req.UserID, campaign, today, 0); err != nil {
			return err
		}

		ok, err := tx.ClaimSlot(ctx, req.SlotID, req.UserID, today, req.AsOf)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ctx, tx, req.SlotID, common.ErrSlotNotAvailable)
		}

		// The new claim is now counted, so the limits allow exactly one more.
		if err := s.checkLimits(ctx, tx, req.UserID, campaign, today, 1); err != nil {
			return err
		}

		slot, err = tx.GetSlot(ctx, req.SlotID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogSlot("claim", slot.ID, fmt.Sprintf("reserved by %s (campaign %d)", req.UserID, req.CampaignID))
	events.Emit(ctx, s.Events, s.Logger, models.NewSlotChangeEvent(models.SlotEventReserved, slot, req.AsOf))
	return slot, nil
}

// checkLimits fails if the user already holds more than allowance claims, where
// allowance is the configured limit minus one before the write and the limit
// itself after it.
func (s *Service) checkLimits(ctx context.Context, tx db.Store, userID string, campaign *models.Campaign, today string, slack int) error {
	n, err := tx.CountUserCampaignClaims(ctx, userID, campaign.ID)
	if err != nil {
		return err
	}
	if n-slack >= s.Limits.CampaignLimit {
		return &common.LimitError{Count: n - slack, Limit: s.Limits.CampaignLimit, Err: common.ErrCampaignLimitExceeded}
	}

	if !s.Limits.rateLimited(campaign.Platform) {
		return nil
	}
	n, err = tx.CountUserPlatformClaims(ctx, userID, campaign.Platform, today)
	if err != nil {
		return err
	}
	if n-slack >= s.Limits.DailyLimit {
		return &common.LimitError{Count: n - slack, Limit: s.Limits.DailyLimit, Err: common.ErrDailyLimitExceeded}
	}
	return nil
}

type CancelRequest struct {
	CampaignID int64
	SlotID     int64
	UserID     string
	AsOf       time.Time
}

// Cancel gives a reserved slot back. The slot keeps its opened date and any
// submission attached to it is removed.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*models.Slot, error) {
	if req.UserID == "" {
		return nil, common.ErrUnauthorized
	}

	var slot *models.Slot
	var removed *models.Submission
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		current, err := slotInCampaign(ctx, tx, req.CampaignID, req.SlotID)
		if err != nil {
			return err
		}
		if !current.HeldBy(req.UserID) {
			return common.ErrNotHolder
		}
		if current.Status == models.SlotComplete {
			return common.NewStateConflict(current, common.ErrAlreadyComplete)
		}
		if _, err := models.Transition(current.Status, models.EventCancel); err != nil {
			return common.NewStateConflict(current, err)
		}

		ok, err := tx.ReleaseSlot(ctx, req.SlotID, req.UserID, req.AsOf)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ctx, tx, req.SlotID, common.ErrReservationLost)
		}

		if removed, err = tx.DeleteSubmissionBySlot(ctx, req.SlotID); err != nil {
			return err
		}
		slot, err = tx.GetSlot(ctx, req.SlotID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition("cancel", 1)
	s.Logger.LogSlot("cancel", slot.ID, fmt.Sprintf("released by %s", req.UserID))
	events.Emit(ctx, s.Events, s.Logger, models.NewSlotChangeEvent(models.SlotEventCancelled, slot, req.AsOf))
	s.removeAttachments(ctx, removed, req.AsOf)
	return slot, nil
}

func (s *Service) removeAttachments(ctx context.Context, sub *models.Submission, at time.Time) {
	if sub == nil || len(sub.Attachments) == 0 || s.Attachments == nil {
		return
	}
	ev := models.AttachmentsRemovedEvent{SubmissionID: sub.ID, SlotID: sub.SlotID, URLs: sub.Attachments, Timestamp: at}
	if err := s.Attachments.PublishAttachmentsRemoved(ctx, ev); err != nil {
		s.Logger.Warn("EVENTS", fmt.Sprintf("attachment removal for submission %s: %v", sub.ID, err))
	}
}

// ListSlots returns the campaign's slot board from userID's point of view. The
// first view of the day synchronizes the campaign; a failed synchronization is
// logged and the current state is served anyway.
func (s *Service) ListSlots(ctx context.Context, campaignID int64, userID string, asOf time.Time) ([]models.SlotView, error) {
	campaign, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if s.Sync != nil && campaign.IsApproved() {
		if _, err := s.Sync.EnsureSynchronized(ctx, campaignID, asOf); err != nil {
			s.Logger.Warn("QUOTA", fmt.Sprintf("sync on view for campaign %d: %v", campaignID, err))
		}
	}

	slots, err := s.Store.ListSlots(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	views := make([]models.SlotView, len(slots))
	for i := range slots {
		views[i] = slots[i].View(userID)
	}
	return views, nil
}

// DailyLimitStatus reports how many slots userID claimed today on platform.
// Platforms without a daily limit report Limit 0 and are never limited.
func (s *Service) DailyLimitStatus(ctx context.Context, userID, platform string, asOf time.Time) (*models.DailyLimitStatus, error) {
	if userID == "" {
		return nil, common.ErrUnauthorized
	}
	if platform == "" {
		return nil, (&common.ValidationError{}).Add("platform", "is required")
	}

	today := utils.DateKey(asOf, s.Location)
	n, err := s.Store.CountUserPlatformClaims(ctx, userID, platform, today)
	if err != nil {
		return nil, err
	}

	status := &models.DailyLimitStatus{Platform: platform, Date: today, Count: n}
	if s.Limits.rateLimited(platform) {
		status.Limit = s.Limits.DailyLimit
		status.Limited = n >= s.Limits.DailyLimit
	}
	return status, nil
}

func slotInCampaign(ctx context.Context, tx db.Store, campaignID, slotID int64) (*models.Slot, error) {
	slot, err := tx.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.CampaignID != campaignID {
		return nil, common.ErrSlotNotFound
	}
	return slot, nil
}

// conflict re-reads a slot whose conditional write matched no row and reports the
// status it has now.
func (s *Service) conflict(ctx context.Context, tx db.Store, slotID int64, cause error) error {
	current, err := tx.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	return common.NewStateConflict(current, cause)
}

// LocalLocker is the in-process Locker used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, common.ErrClaimInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
