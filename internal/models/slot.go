package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Slot is one claimable unit of a campaign, numbered 1..TotalSlots.
//
// ReservationUserID is set iff Status is reserved or complete, and OpenedDate is set
// iff Status is not unopened. Dates are civil dates formatted as YYYY-MM-DD.
type Slot struct {
	bun.BaseModel `bun:"table:slots,alias:s"`

	ID                int64      `bun:"id,pk,autoincrement" json:"id"`
	CampaignID        int64      `bun:"campaign_id,notnull,unique:campaign_slot_number" json:"campaign_id"`
	SlotNumber        int        `bun:"slot_number,notnull,unique:campaign_slot_number" json:"slot_number"`
	Status            SlotStatus `bun:"status,notnull" json:"status"`
	ReservationUserID string     `bun:"reservation_user_id,nullzero" json:"reservation_user_id,omitempty"`
	OpenedDate        string     `bun:"opened_date,nullzero" json:"opened_date,omitempty"`
	ReservedDate      string     `bun:"reserved_date,nullzero" json:"reserved_date,omitempty"`
	ReservedAt        time.Time  `bun:"reserved_at,nullzero" json:"reserved_at,omitempty"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero" json:"updated_at"`
}

func (s *Slot) HasHolder() bool {
	return s.ReservationUserID != ""
}

func (s *Slot) HeldBy(userID string) bool {
	return userID != "" && s.ReservationUserID == userID
}

// Consistent reports whether the slot satisfies both the holder/status and the
// opened-date invariants.
func (s *Slot) Consistent() bool {
	if s.HasHolder() != s.Status.IsHeld() {
		return false
	}
	return (s.OpenedDate != "") == (s.Status != SlotUnopened)
}

// SlotView is the listSlots projection handed to page rendering.
type SlotView struct {
	SlotID     int64      `json:"slot_id"`
	SlotNumber int        `json:"slot_number"`
	Status     SlotStatus `json:"status"`
	OpenedDate string     `json:"opened_date,omitempty"`
	IsMine     bool       `json:"is_mine"`
}

func (s *Slot) View(userID string) SlotView {
	return SlotView{
		SlotID:     s.ID,
		SlotNumber: s.SlotNumber,
		Status:     s.Status,
		OpenedDate: s.OpenedDate,
		IsMine:     s.HeldBy(userID),
	}
}
