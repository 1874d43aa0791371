package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Invoice struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	InvoiceNumber string        `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	SellerID      snowflake.ID  `json:"seller_id" gorm:"not null;index"`
	BuyerEmail    string        `json:"buyer_email" gorm:"type:text;not null"`
	BuyerPhone    string        `json:"buyer_phone" gorm:"type:text;not null"`
	GrossAmount   int64         `json:"gross_amount" gorm:"not null"`
	Currency      string        `json:"currency" gorm:"type:text;not null"`
	Status        InvoiceStatus `json:"status" gorm:"type:text;not null"`
	PaymentType   PaymentType   `json:"payment_type" gorm:"type:text;not null"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null"`
	ExpiresAt     *time.Time    `json:"expires_at"`
	DeliveredAt   *time.Time    `json:"delivered_at"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

type Milestone struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID    snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	Seq          int             `json:"seq" gorm:"not null"`
	Label        string          `json:"label" gorm:"type:text;not null"`
	Amount       int64           `json:"amount" gorm:"not null"`
	Status       MilestoneStatus `json:"status" gorm:"type:text;not null"`
	ReleaseToken *string         `json:"-" gorm:"type:text"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Milestone) TableName() string { return "milestones" }

type PaymentType string

const (
	PaymentTypeSingle      PaymentType = "single"
	PaymentTypeInstallment PaymentType = "installment"
)
