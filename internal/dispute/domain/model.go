package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Dispute freezes settlement for one invoice until an admin resolves it.
// The partial unique index on (invoice_id) WHERE status='open' allows at
// most one open dispute per invoice.
type Dispute struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	InvoiceID  snowflake.ID  `json:"invoice_id" gorm:"not null"`
	OpenedBy   Party         `json:"opened_by" gorm:"type:text;not null"`
	Reason     string        `json:"reason" gorm:"type:text;not null"`
	AdminToken string        `json:"-" gorm:"type:text;not null;uniqueIndex"`
	Status     DisputeStatus `json:"status" gorm:"type:text;not null"`
	OpenedAt   time.Time     `json:"opened_at" gorm:"not null"`
	ResolvedAt *time.Time    `json:"resolved_at"`
}

func (Dispute) TableName() string { return "disputes" }

type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

type DisputeStatus string

const (
	DisputeStatusOpen           DisputeStatus = "open"
	DisputeStatusResolvedSeller DisputeStatus = "resolved_seller"
	DisputeStatusResolvedBuyer  DisputeStatus = "resolved_buyer"
)

// SellerWindow is how long a seller must wait after delivery before they may
// escalate a stuck confirmation to a dispute.
const SellerWindow = 48 * time.Hour

var (
	ErrNotFound         = errors.New("dispute_not_found")
	ErrDisputeActive    = errors.New("dispute_already_open")
	ErrAlreadyResolved  = errors.New("dispute_already_resolved")
	ErrInvalidParty     = errors.New("dispute_invalid_party")
	ErrSellerWindow     = errors.New("dispute_seller_window_not_elapsed")
	ErrNotDelivered     = errors.New("dispute_invoice_not_delivered")
	ErrInvalidOutcome   = errors.New("dispute_invalid_outcome")
	ErrInvoiceNotEscrow = errors.New("dispute_invoice_not_in_escrow")
)
