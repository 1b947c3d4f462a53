package quota

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

const reasonOutsideWindow = "not in active window"

// Marker remembers which (campaign, date) pairs have already been synchronized.
type Marker interface {
	MarkSynchronized(ctx context.Context, campaignID int64, date string) (bool, error)
	ClearSyncMarker(ctx context.Context, campaignID int64, date string) error
}

type Service struct {
	Store    db.Store
	Marker   Marker
	Events   events.Publisher
	Logger   *logger.Logger
	Location *time.Location
	// Now is the clock for work not started by a request, such as campaign
	// update events. Defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func NewService(store db.Store, marker Marker, pub events.Publisher, log *logger.Logger, loc *time.Location) *Service {
	if marker == nil {
		marker = NewLocalMarker()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{Store: store, Marker: marker, Events: pub, Logger: log, Location: loc}
}

// Synchronize reconciles a campaign's slots with its daily allowance for the civil
// date of asOf. It repairs invariant violations, opens or closes slots until the
// number opened today matches daily_count, and refreshes the quota ledger. Held
// slots are never closed. Running it again with the same inputs changes nothing.
func (s *Service) Synchronize(ctx context.Context, campaignID int64, asOf time.Time) (*models.SyncResult, error) {
	today := utils.DateKey(asOf, s.Location)
	result := &models.SyncResult{CampaignID: campaignID, Date: today}

	campaign, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsApproved() {
		return nil, fmt.Errorf("synchronize campaign %d: %w", campaignID, common.ErrCampaignNotApproved)
	}
	if !utils.WithinWindow(today, campaign.StartDate, campaign.EndDate, s.Location) {
		result.Skipped = true
		result.Reason = reasonOutsideWindow
		metrics.RecordSync("skipped", 0, 0, 0)
		s.Logger.LogSync(campaignID, today, "skipped: "+reasonOutsideWindow)
		return result, nil
	}

	if err := s.run(ctx, campaign, today, asOf, result); err != nil {
		metrics.RecordSync("error", result.Opened, result.Closed, result.Repaired)
		return nil, err
	}

	metrics.RecordSync("ok", result.Opened, result.Closed, result.Repaired)
	s.Logger.LogSync(campaignID, today, fmt.Sprintf("opened=%d closed=%d repaired=%d reserved=%d",
		result.Opened, result.Closed, result.Repaired, result.ReservedCount))

	events.Emit(ctx, s.Events, s.Logger, models.SlotChangeEvent{
		Type:       models.SlotEventSynced,
		CampaignID: campaignID,
		Sync:       result,
		Timestamp:  asOf,
	})
	return result, nil
}

func (s *Service) run(ctx context.Context, campaign *models.Campaign, today string, now time.Time, result *models.SyncResult) error {
	if err := s.Store.UpsertDailyQuota(ctx, campaign.ID, today, campaign.DailyCount, now); err != nil {
		return err
	}

	slots, err := s.Store.ListSlots(ctx, campaign.ID)
	if err != nil {
		return err
	}
	for i := range slots {
		observed := &slots[i]
		repaired, ok := Repair(observed, today)
		if !ok {
			continue
		}
		applied, err := s.Store.RepairSlot(ctx, observed, &repaired, now)
		if err != nil {
			return err
		}
		if applied {
			result.Repaired++
			s.Logger.LogSlot("repair", observed.ID, fmt.Sprintf("%s -> %s", observed.Status, repaired.Status))
			events.Emit(ctx, s.Events, s.Logger, models.NewSlotChangeEvent(models.SlotEventUpdated, &repaired, now))
		}
	}

	current, err := s.Store.CountOpenedOn(ctx, campaign.ID, today)
	if err != nil {
		return err
	}

	target := campaign.DailyCount
	switch {
	case current < target:
		if err := s.open(ctx, campaign.ID, target-current, today, now, result); err != nil {
			return err
		}
	case current > target:
		if err := s.close(ctx, campaign.ID, current-target, today, now, result); err != nil {
			return err
		}
	}

	reserved, err := s.Store.CountHeld(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if err := s.Store.SetReservedSlots(ctx, campaign.ID, today, reserved, now); err != nil {
		return err
	}
	result.ReservedCount = reserved
	return nil
}

// open moves up to n unopened slots to available, lowest slot number first.
func (s *Service) open(ctx context.Context, campaignID int64, n int, today string, now time.Time, result *models.SyncResult) error {
	slots, err := s.Store.ListSlots(ctx, campaignID)
	if err != nil {
		return err
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotNumber < slots[j].SlotNumber })

	for i := range slots {
		if result.Opened >= n {
			break
		}
		if slots[i].Status != models.SlotUnopened || slots[i].HasHolder() {
			continue
		}
		ok, err := s.Store.OpenSlot(ctx, slots[i].ID, today, now)
		if err != nil {
			return err
		}
		if ok {
			result.Opened++
		}
	}
	if result.Opened < n {
		s.Logger.Warn("QUOTA", fmt.Sprintf("campaign %d: wanted %d more open slots on %s, only %d unopened left",
			campaignID, n, today, result.Opened))
	}
	return nil
}

// close moves up to n of today's available slots back to unopened, highest slot
// number first. Slots held by a user are not candidates.
func (s *Service) close(ctx context.Context, campaignID int64, n int, today string, now time.Time, result *models.SyncResult) error {
	slots, err := s.Store.ListSlots(ctx, campaignID)
	if err != nil {
		return err
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotNumber > slots[j].SlotNumber })

	for i := range slots {
		if result.Closed >= n {
			break
		}
		sl := slots[i]
		if sl.Status != models.SlotAvailable || sl.HasHolder() || sl.OpenedDate != today {
			continue
		}
		ok, err := s.Store.CloseSlot(ctx, sl.ID, now)
		if err != nil {
			return err
		}
		if ok {
			result.Closed++
		}
	}
	return nil
}

// Repair returns the corrected form of a slot that violates the holder/status or
// opened-date invariant, and false if the slot is already consistent. At most one
// rule applies, checked in order:
//
//	a. holder on an available slot: reserved
//	b. no holder on a reserved or complete slot: available
//	c. opened_date on an unopened slot: available, or reserved if it has a holder
//	d. no opened_date on an opened slot: opened today if held, else unopened
//	e. holder on an unopened slot without opened_date: reserved, opened today
//
// The result always satisfies both invariants.
func Repair(slot *models.Slot, today string) (models.Slot, bool) {
	if slot.Consistent() {
		return *slot, false
	}

	r := *slot
	holder := slot.HasHolder()
	switch {
	case holder && slot.Status == models.SlotAvailable:
		r.Status = models.SlotReserved
	case !holder && slot.Status.IsHeld():
		r.Status = models.SlotAvailable
		r.ReservedDate = ""
	case slot.OpenedDate != "" && slot.Status == models.SlotUnopened:
		if holder {
			r.Status = models.SlotReserved
		} else {
			r.Status = models.SlotAvailable
		}
	case slot.OpenedDate == "" && slot.Status != models.SlotUnopened:
		if holder {
			r.OpenedDate = today
		} else {
			r.Status = models.SlotUnopened
		}
	case holder && slot.Status == models.SlotUnopened:
		r.Status = models.SlotReserved
		r.OpenedDate = today
	}

	// Rules a and b leave opened_date alone; an opened status still needs one.
	if r.Status != models.SlotUnopened && r.OpenedDate == "" {
		r.OpenedDate = today
	}
	if r.Status == models.SlotUnopened {
		r.OpenedDate = ""
	}
	return r, true
}

// EnsureSynchronized runs Synchronize the first time a campaign is looked at on a
// given date. It returns nil when the date was already handled.
func (s *Service) EnsureSynchronized(ctx context.Context, campaignID int64, asOf time.Time) (*models.SyncResult, error) {
	today := utils.DateKey(asOf, s.Location)
	first, err := s.Marker.MarkSynchronized(ctx, campaignID, today)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, nil
	}

	result, err := s.Synchronize(ctx, campaignID, asOf)
	if err != nil {
		// Let the next view try again.
		if clearErr := s.Marker.ClearSyncMarker(ctx, campaignID, today); clearErr != nil {
			s.Logger.Warn("QUOTA", fmt.Sprintf("clear sync marker for campaign %d: %v", campaignID, clearErr))
		}
		return nil, err
	}
	return result, nil
}

// UpdateDailyCount stores a new allowance and re-synchronizes today.
func (s *Service) UpdateDailyCount(ctx context.Context, campaignID int64, dailyCount int, asOf time.Time) (*models.SyncResult, error) {
	if dailyCount < 0 {
		return nil, (&common.ValidationError{}).Add("daily_count", "must not be negative")
	}
	campaign, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.TotalSlots > 0 && dailyCount > campaign.TotalSlots {
		return nil, (&common.ValidationError{}).Add("daily_count", fmt.Sprintf("must not exceed total slots (%d)", campaign.TotalSlots))
	}

	if err := s.Store.UpdateDailyCount(ctx, campaignID, dailyCount, asOf); err != nil {
		return nil, err
	}
	s.Logger.Info("QUOTA", fmt.Sprintf("campaign %d daily_count %d -> %d", campaignID, campaign.DailyCount, dailyCount))

	return s.Resynchronize(ctx, campaignID, asOf)
}

// Resynchronize forgets today's marker and synchronizes again. Campaigns that are
// not approved are reported as skipped.
func (s *Service) Resynchronize(ctx context.Context, campaignID int64, asOf time.Time) (*models.SyncResult, error) {
	today := utils.DateKey(asOf, s.Location)
	if err := s.Marker.ClearSyncMarker(ctx, campaignID, today); err != nil {
		s.Logger.Warn("QUOTA", fmt.Sprintf("clear sync marker for campaign %d: %v", campaignID, err))
	}

	result, err := s.Synchronize(ctx, campaignID, asOf)
	if errors.Is(err, common.ErrCampaignNotApproved) {
		return &models.SyncResult{CampaignID: campaignID, Date: today, Skipped: true, Reason: "campaign not approved"}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.Marker.MarkSynchronized(ctx, campaignID, today); err != nil {
		s.Logger.Warn("QUOTA", fmt.Sprintf("set sync marker for campaign %d: %v", campaignID, err))
	}
	return result, nil
}

// ApproveResult reports what approving a campaign did.
type ApproveResult struct {
	CampaignID   int64              `json:"campaign_id"`
	SlotsCreated int                `json:"slots_created"`
	Sync         *models.SyncResult `json:"sync"`
}

// Approve moves a draft or pending campaign to approved, creates its slots and
// opens today's allowance. Approving an approved campaign only fills in missing
// slots.
func (s *Service) Approve(ctx context.Context, campaignID int64, asOf time.Time) (*ApproveResult, error) {
	campaign, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if !campaign.IsApproved() {
		ok, err := s.Store.UpdateCampaignStatus(ctx, campaignID,
			[]models.CampaignStatus{models.CampaignDraft, models.CampaignPending}, models.CampaignApproved, asOf)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("approve campaign %d in status %s: %w", campaignID, campaign.Status, common.ErrNotApprovable)
		}
	}

	created, err := s.Store.CreateSlots(ctx, campaignID, campaign.TotalSlots, asOf)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("QUOTA", fmt.Sprintf("campaign %d approved, %d slots created", campaignID, created))

	result, err := s.Resynchronize(ctx, campaignID, asOf)
	if err != nil {
		return nil, err
	}
	return &ApproveResult{CampaignID: campaignID, SlotsCreated: created, Sync: result}, nil
}

// History returns the daily quota ledger of a campaign, newest first.
func (s *Service) History(ctx context.Context, campaignID int64) ([]models.DailyQuota, error) {
	if _, err := s.Store.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.Store.ListDailyQuotas(ctx, campaignID)
}

// SyncAll synchronizes every approved campaign. A failing campaign does not stop
// the others; their errors are joined.
func (s *Service) SyncAll(ctx context.Context, asOf time.Time) ([]models.SyncResult, error) {
	campaigns, err := s.Store.ListApprovedCampaigns(ctx)
	if err != nil {
		return nil, err
	}

	var results []models.SyncResult
	var errs []error
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.Resynchronize(ctx, c.ID, asOf)
		if err != nil {
			errs = append(errs, fmt.Errorf("campaign %d: %w", c.ID, err))
			continue
		}
		results = append(results, *result)
	}
	return results, errors.Join(errs...)
}

// HandleCampaignUpdated reacts to a configuration change published by the
// campaign admin service.
func (s *Service) HandleCampaignUpdated(ctx context.Context, ev models.CampaignUpdatedEvent) error {
	asOf := s.now()
	if ev.DailyCount != nil {
		campaign, err := s.Store.GetCampaign(ctx, ev.CampaignID)
		if err != nil {
			return err
		}
		if campaign.DailyCount != *ev.DailyCount {
			_, err := s.UpdateDailyCount(ctx, ev.CampaignID, *ev.DailyCount, asOf)
			return err
		}
	}
	_, err := s.Resynchronize(ctx, ev.CampaignID, asOf)
	return err
}

// LocalMarker is an in-process Marker used when Redis is not configured.
type LocalMarker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewLocalMarker() *LocalMarker {
	return &LocalMarker{seen: make(map[string]struct{})}
}

func (m *LocalMarker) key(campaignID int64, date string) string {
	return fmt.Sprintf("%d:%s", campaignID, date)
}

func (m *LocalMarker) MarkSynchronized(_ context.Context, campaignID int64, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(campaignID, date)
	if _, ok := m.seen[k]; ok {
		return false, nil
	}
	m.seen[k] = struct{}{}
	return true, nil
}

func (m *LocalMarker) ClearSyncMarker(_ context.Context, campaignID int64, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, m.key(campaignID, date))
	return nil
}
