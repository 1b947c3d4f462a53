package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

// Submission is the proof material and contact details attached to a claimed slot.
type Submission struct {
	bun.BaseModel `bun:"table:submissions,alias:sub"`

	ID            string        `bun:"id,pk" json:"id"`
	SlotID        int64         `bun:"slot_id,notnull,unique" json:"slot_id"`
	CampaignID    int64         `bun:"campaign_id,notnull" json:"campaign_id"`
	UserID        string        `bun:"user_id,notnull" json:"user_id"`
	Nickname      string        `bun:"nickname,notnull" json:"nickname"`
	Name          string        `bun:"name" json:"name"`
	Phone         string        `bun:"phone" json:"phone"`
	BankName      string        `bun:"bank_name" json:"bank_name"`
	AccountNumber string        `bun:"account_number" json:"account_number"`
	AccountHolder string        `bun:"account_holder" json:"account_holder"`
	ReviewURL     string        `bun:"review_url" json:"review_url"`
	Attachments   []string      `bun:"attachments,type:jsonb" json:"attachments"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero" json:"updated_at"`
}

// Profile is the contact information a user attaches to a submission.
type Profile struct {
	Nickname      string `json:"nickname"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
	ReviewURL     string `json:"review_url"`
}

func (s *Submission) ApplyProfile(p Profile) {
	s.Nickname = p.Nickname
	s.Name = p.Name
	s.Phone = p.Phone
	s.BankName = p.BankName
	s.AccountNumber = p.AccountNumber
	s.AccountHolder = p.AccountHolder
	s.ReviewURL = p.ReviewURL
}
