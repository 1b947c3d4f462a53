package submission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/events"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/metrics"
	"ms-reviews/internal/models"
	"ms-reviews/internal/slots/db"

	"github.com/google/uuid"
)

type Service struct {
	Store       db.Store
	Events      events.Publisher
	Attachments events.AttachmentSink
	Logger      *logger.Logger
}

func NewService(store db.Store, pub events.Publisher, attachments events.AttachmentSink, log *logger.Logger) *Service {
	return &Service{Store: store, Events: pub, Attachments: attachments, Logger: log}
}

type Request struct {
	SlotID      int64
	UserID      string
	Profile     models.Profile
	Attachments []string
	AsOf        time.Time
}

func (r *Request) normalize() {
	r.Profile.Nickname = strings.TrimSpace(r.Profile.Nickname)
	kept := make([]string, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		if a = strings.TrimSpace(a); a != "" {
			kept = append(kept, a)
		}
	}
	r.Attachments = kept
}

func (r *Request) validate() error {
	verr := &common.ValidationError{}
	if r.Profile.Nickname == "" {
		verr.Add("nickname", "is required")
	}
	if len(r.Attachments) == 0 {
		verr.Add("attachments", "at least one attachment is required")
	}
	return verr.OrNil()
}

// Submit records the proof material for a reserved slot and completes it. The
// submission and the slot transition are committed together.
func (s *Service) Submit(ctx context.Context, req Request) (*models.Submission, error) {
	if req.UserID == "" {
		return nil, common.ErrUnauthorized
	}
	req.normalize()

	var sub *models.Submission
	var slot *models.Slot
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		current, err := tx.GetSlot(ctx, req.SlotID)
		if err != nil {
			return err
		}
		if !current.HeldBy(req.UserID) {
			return common.ErrNotHolder
		}
		if _, err := models.Transition(current.Status, models.EventSubmit); err != nil {
			if current.Status == models.SlotComplete {
				return common.NewStateConflict(current, common.ErrAlreadyComplete)
			}
			return common.NewStateConflict(current, common.ErrNotSubmittable)
		}
		if err := req.validate(); err != nil {
			return err
		}

		row := &models.Submission{
			ID:            uuid.New().String(),
			SlotID:        current.ID,
			CampaignID:    current.CampaignID,
			UserID:        req.UserID,
			Attachments:   req.Attachments,
			PaymentStatus: models.PaymentPending,
			CreatedAt:     req.AsOf,
			UpdatedAt:     req.AsOf,
		}
		row.ApplyProfile(req.Profile)
		if err := tx.UpsertSubmission(ctx, row); err != nil {
			return err
		}

		ok, err := tx.CompleteSlot(ctx, current.ID, req.UserID, req.AsOf)
		if err != nil {
			return err
		}
		if !ok {
			latest, err := tx.GetSlot(ctx, current.ID)
			if err != nil {
				return err
			}
			return common.NewStateConflict(latest, common.ErrNotSubmittable)
		}

		if sub, err = tx.GetSubmissionBySlot(ctx, current.ID); err != nil {
			return err
		}
		slot, err = tx.GetSlot(ctx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition("submit", 1)
	s.Logger.LogSlot("submit", slot.ID, fmt.Sprintf("submission %s by %s", sub.ID, req.UserID))
	ev := models.NewSlotChangeEvent(models.SlotEventCompleted, slot, req.AsOf)
	ev.SubmissionID = sub.ID
	events.Emit(ctx, s.Events, s.Logger, ev)
	return sub, nil
}

// Edit replaces the details of a completed submission. The slot stays complete and
// attachments that are no longer referenced are reported for removal.
func (s *Service) Edit(ctx context.Context, req Request) (*models.Submission, error) {
	if req.UserID == "" {
		return nil, common.ErrUnauthorized
	}
	req.normalize()

	var sub *models.Submission
	var slot *models.Slot
	var dropped []string
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		current, err := tx.GetSlot(ctx, req.SlotID)
		if err != nil {
			return err
		}
		if !current.HeldBy(req.UserID) {
			return common.ErrNotHolder
		}
		if _, err := models.Transition(current.Status, models.EventEdit); err != nil {
			return common.NewStateConflict(current, common.ErrNotEditable)
		}
		if err := req.validate(); err != nil {
			return err
		}

		existing, err := tx.GetSubmissionBySlot(ctx, current.ID)
		if err != nil {
			return err
		}
		dropped = removedURLs(existing.Attachments, req.Attachments)

		existing.ApplyProfile(req.Profile)
		existing.Attachments = req.Attachments
		existing.UpdatedAt = req.AsOf
		if err := tx.UpdateSubmission(ctx, existing); err != nil {
			return err
		}
		sub = existing
		slot = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogSlot("edit", slot.ID, fmt.Sprintf("submission %s updated by %s", sub.ID, req.UserID))
	ev := models.NewSlotChangeEvent(models.SlotEventSubmission, slot, req.AsOf)
	ev.SubmissionID = sub.ID
	events.Emit(ctx, s.Events, s.Logger, ev)

	if len(dropped) > 0 && s.Attachments != nil {
		rm := models.AttachmentsRemovedEvent{SubmissionID: sub.ID, SlotID: sub.SlotID, URLs: dropped, Timestamp: req.AsOf}
		if err := s.Attachments.PublishAttachmentsRemoved(ctx, rm); err != nil {
			s.Logger.Warn("EVENTS", fmt.Sprintf("attachment removal for submission %s: %v", sub.ID, err))
		}
	}
	return sub, nil
}

// SetPaymentStatus records the payout outcome of a submission.
func (s *Service) SetPaymentStatus(ctx context.Context, submissionID string, status models.PaymentStatus, asOf time.Time) (*models.Submission, error) {
	if !status.Valid() {
		return nil, (&common.ValidationError{}).Add("payment_status", fmt.Sprintf("unknown value %q", status))
	}

	ok, err := s.Store.SetPaymentStatus(ctx, submissionID, status, asOf)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrSubmissionNotFound
	}
	sub, err := s.Store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("PAYMENT", fmt.Sprintf("submission %s payment %s", sub.ID, status))
	events.Emit(ctx, s.Events, s.Logger, models.SlotChangeEvent{
		Type:          models.SlotEventPayment,
		CampaignID:    sub.CampaignID,
		SlotID:        sub.SlotID,
		UserID:        sub.UserID,
		SubmissionID:  sub.ID,
		PaymentStatus: status,
		Timestamp:     asOf,
	})
	return sub, nil
}

// Get returns the submission attached to a slot, visible to its holder only.
func (s *Service) Get(ctx context.Context, slotID int64, userID string) (*models.Submission, error) {
	sub, err := s.Store.GetSubmissionBySlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, common.ErrNotHolder
	}
	return sub, nil
}

func removedURLs(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, u := range after {
		keep[u] = struct{}{}
	}
	var out []string
	for _, u := range before {
		if _, ok := keep[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
