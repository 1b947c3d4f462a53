package models

import "time"

type SlotEventType string

const (
	SlotEventReserved   SlotEventType = "slot.reserved"
	SlotEventCancelled  SlotEventType = "slot.cancelled"
	SlotEventCompleted  SlotEventType = "slot.completed"
	SlotEventUpdated    SlotEventType = "slot.updated"
	SlotEventSubmission SlotEventType = "submission.updated"
	SlotEventPayment    SlotEventType = "submission.payment"
	SlotEventSynced     SlotEventType = "quota.synchronized"
)

// SlotChangeEvent is published to Kafka and streamed to SSE subscribers whenever a
// slot, its submission or a campaign's quota changes.
type SlotChangeEvent struct {
	Type          SlotEventType `json:"type"`
	CampaignID    int64         `json:"campaign_id"`
	SlotID        int64         `json:"slot_id,omitempty"`
	SlotNumber    int           `json:"slot_number,omitempty"`
	Status        SlotStatus    `json:"status,omitempty"`
	UserID        string        `json:"user_id,omitempty"`
	SubmissionID  string        `json:"submission_id,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	Sync          *SyncResult   `json:"sync,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

func NewSlotChangeEvent(typ SlotEventType, slot *Slot, at time.Time) SlotChangeEvent {
	return SlotChangeEvent{
		Type:       typ,
		CampaignID: slot.CampaignID,
		SlotID:     slot.ID,
		SlotNumber: slot.SlotNumber,
		Status:     slot.Status,
		UserID:     slot.ReservationUserID,
		Timestamp:  at,
	}
}

// AttachmentsRemovedEvent tells the storage service which uploads are no longer
// referenced by any submission.
type AttachmentsRemovedEvent struct {
	SubmissionID string    `json:"submission_id"`
	SlotID       int64     `json:"slot_id"`
	URLs         []string  `json:"urls"`
	Timestamp    time.Time `json:"timestamp"`
}
