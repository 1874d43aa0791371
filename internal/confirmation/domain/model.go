package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Credential is the single-use authorization for one settlement: a short
// seller-facing code and a link token for the buyer's email, both bound to
// one invoice. The is_used flag is the claim that serializes the payout.
type Credential struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID snowflake.ID `json:"invoice_id" gorm:"not null;uniqueIndex"`
	Code      string       `json:"-" gorm:"type:text;not null;uniqueIndex"`
	Token     string       `json:"-" gorm:"type:text;not null;uniqueIndex"`
	IsUsed    bool         `json:"is_used" gorm:"not null;default:false"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UsedAt    *time.Time   `json:"used_at"`
}

func (Credential) TableName() string { return "confirmation_tokens" }

var (
	ErrNotFound        = errors.New("credential_not_found")
	ErrCodeMismatch    = errors.New("credential_code_mismatch")
	ErrInvoiceMismatch = errors.New("credential_invoice_mismatch")
)
