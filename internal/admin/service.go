package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/events"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/metrics"
	"ms-reviews/internal/models"
	"ms-reviews/internal/slots/db"
	"ms-reviews/internal/utils"
)

type Service struct {
	Store       db.Store
	Events      events.Publisher
	Attachments events.AttachmentSink
	Logger      *logger.Logger
	Location    *time.Location
}

func NewService(store db.Store, pub events.Publisher, attachments events.AttachmentSink, log *logger.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{Store: store, Events: pub, Attachments: attachments, Logger: log, Location: loc}
}

type FailedItem struct {
	SlotID int64  `json:"id"`
	Reason string `json:"reason"`
}

type BulkResult struct {
	Succeeded []int64      `json:"succeeded"`
	Failed    []FailedItem `json:"failed"`
}

// BulkSetStatus forces each slot into target regardless of its current state or
// holder. Slots are updated one by one; a failure is reported for that slot and the
// rest carry on.
func (s *Service) BulkSetStatus(ctx context.Context, campaignID int64, slotIDs []int64, target models.SlotStatus, asOf time.Time) (*BulkResult, error) {
	if !models.ForceTarget(target) {
		return nil, (&common.ValidationError{}).Add("status", fmt.Sprintf("cannot force slots to %q", target))
	}
	if len(slotIDs) == 0 {
		return nil, (&common.ValidationError{}).Add("slot_ids", "at least one slot is required")
	}
	if _, err := s.Store.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	opened := ""
	if target == models.SlotAvailable {
		opened = utils.DateKey(asOf, s.Location)
	}

	result := &BulkResult{Succeeded: []int64{}, Failed: []FailedItem{}}
	seen := make(map[int64]bool, len(slotIDs))
	for _, id := range slotIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		slot, removed, err := s.force(ctx, campaignID, id, target, opened, asOf)
		if err != nil {
			result.Failed = append(result.Failed, FailedItem{SlotID: id, Reason: reason(err)})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)

		events.Emit(ctx, s.Events, s.Logger, models.NewSlotChangeEvent(models.SlotEventUpdated, slot, asOf))
		if removed != nil && len(removed.Attachments) > 0 && s.Attachments != nil {
			ev := models.AttachmentsRemovedEvent{SubmissionID: removed.ID, SlotID: id, URLs: removed.Attachments, Timestamp: asOf}
			if err := s.Attachments.PublishAttachmentsRemoved(ctx, ev); err != nil {
				s.Logger.Warn("EVENTS", fmt.Sprintf("attachment removal for submission %s: %v", removed.ID, err))
			}
		}
	}

	metrics.RecordBulk(len(result.Succeeded), len(result.Failed))
	s.Logger.Info("ADMIN", fmt.Sprintf("campaign %d: forced %d slots to %s, %d failed",
		campaignID, len(result.Succeeded), target, len(result.Failed)))
	return result, nil
}

func (s *Service) force(ctx context.Context, campaignID, slotID int64, target models.SlotStatus, opened string, asOf time.Time) (*models.Slot, *models.Submission, error) {
	var slot *models.Slot
	var removed *models.Submission
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		current, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if current.CampaignID != campaignID {
			return common.ErrSlotNotFound
		}
		ok, err := tx.ForceSlotStatus(ctx, slotID, target, opened, asOf)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrSlotNotFound
		}
		if removed, err = tx.DeleteSubmissionBySlot(ctx, slotID); err != nil {
			return err
		}
		slot, err = tx.GetSlot(ctx, slotID)
		return err
	})
	return slot, removed, err
}

func reason(err error) string {
	switch {
	case errors.Is(err, common.ErrSlotNotFound):
		return "slot not found"
	case common.IsTransient(err):
		return "temporarily unavailable"
	}
	return err.Error()
}
