package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Payment is one charge attempt by a buyer. An invoice may accumulate many
// attempts; only one ever reaches paid.
type Payment struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	InvoiceID         snowflake.ID  `json:"invoice_id" gorm:"not null;index"`
	ExternalReference string        `json:"external_reference" gorm:"type:text;not null;uniqueIndex"`
	PayerNumber       string        `json:"payer_number" gorm:"type:text;not null"`
	Amount            int64         `json:"amount" gorm:"not null"`
	Status            PaymentStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt         time.Time     `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// ProcessedPayment is the permanent idempotency marker: its insertion is the
// claim that a payment reference has been processed. Rows are never deleted.
type ProcessedPayment struct {
	Reference   string    `json:"reference" gorm:"primaryKey"`
	ProcessedAt time.Time `json:"processed_at" gorm:"not null"`
}

func (ProcessedPayment) TableName() string { return "processed_payments" }

var (
	ErrAlreadyProcessed = errors.New("payment_already_processed")
	ErrPaymentNotFound  = errors.New("payment_not_found")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrNotSuccessful    = errors.New("payment_not_successful")
	ErrCredentialMint   = errors.New("credential_mint_exhausted")
)
