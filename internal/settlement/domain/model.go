package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Payout is the ledger record of one outbound transfer. Method says whose
// money it is: seller settlements, buyer refunds.
type Payout struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	InvoiceID       *snowflake.ID `json:"invoice_id"`
	MilestoneID     *snowflake.ID `json:"milestone_id"`
	RecipientID     *snowflake.ID `json:"recipient_id"`
	RecipientNumber string        `json:"recipient_number" gorm:"type:text;not null"`
	Amount          int64         `json:"amount" gorm:"not null"`
	Method          PayoutMethod  `json:"method" gorm:"type:text;not null"`
	Status          string        `json:"status" gorm:"type:text;not null"`
	Reference       string        `json:"reference" gorm:"type:text;not null"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }

type PayoutMethod string

const (
	PayoutMethodSettlement PayoutMethod = "settlement"
	PayoutMethodRefund     PayoutMethod = "refund"
)

const PayoutStatusCompleted = "completed"

// PayoutFailure records a settlement unit whose claim succeeded but whose
// rail transfer did not. The claim stays consumed; these rows are the manual
// reconciliation queue.
type PayoutFailure struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey"`
	UnitType  string        `json:"unit_type" gorm:"type:text;not null"`
	UnitID    snowflake.ID  `json:"unit_id" gorm:"not null"`
	InvoiceID *snowflake.ID `json:"invoice_id"`
	Amount    int64         `json:"amount" gorm:"not null"`
	Reason    string        `json:"reason" gorm:"type:text;not null"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null"`
}

func (PayoutFailure) TableName() string { return "payout_failures" }

var (
	ErrAlreadyProcessed = errors.New("settlement_already_processed")
	ErrNotAuthorized    = errors.New("settlement_not_authorized")
	ErrGatewayFailure   = errors.New("settlement_gateway_failure")
)
