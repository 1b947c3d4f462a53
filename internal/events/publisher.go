package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"
)

// Publisher receives slot, submission and quota changes after they are committed.
type Publisher interface {
	PublishSlotEvent(ctx context.Context, ev models.SlotChangeEvent) error
}

// AttachmentSink is told which uploaded files a submission no longer references.
type AttachmentSink interface {
	PublishAttachmentsRemoved(ctx context.Context, ev models.AttachmentsRemovedEvent) error
}

// Fanout forwards every event to each sink and joins their errors.
type Fanout struct {
	sinks []Publisher
}

func NewFanout(sinks ...Publisher) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) PublishSlotEvent(ctx context.Context, ev models.SlotChangeEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.PublishSlotEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes ev and logs a failure instead of returning it.
func Emit(ctx context.Context, pub Publisher, log *logger.Logger, ev models.SlotChangeEvent) {
	if pub == nil {
		return
	}
	if err := pub.PublishSlotEvent(ctx, ev); err != nil {
		log.Warn("EVENTS", fmt.Sprintf("publish %s for campaign %d: %v", ev.Type, ev.CampaignID, err))
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu          sync.Mutex
	Events      []models.SlotChangeEvent
	Attachments []models.AttachmentsRemovedEvent
}

func (r *Recorder) PublishSlotEvent(_ context.Context, ev models.SlotChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	return nil
}

func (r *Recorder) PublishAttachmentsRemoved(_ context.Context, ev models.AttachmentsRemovedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attachments = append(r.Attachments, ev)
	return nil
}

// Types returns the recorded event types in publication order.
func (r *Recorder) Types() []models.SlotEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SlotEventType, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Type
	}
	return out
}

func (r *Recorder) RemovedAttachments() []models.AttachmentsRemovedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AttachmentsRemovedEvent(nil), r.Attachments...)
}
