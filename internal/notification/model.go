package notification

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Notification struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID   `json:"user_id" gorm:"not null;index"`
	Type      string         `json:"type" gorm:"type:text;not null"`
	Title     string         `json:"title" gorm:"type:text;not null"`
	Body      string         `json:"body" gorm:"type:text;not null"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
	ReadAt    *time.Time     `json:"read_at"`
}

func (Notification) TableName() string { return "notifications" }

const (
	TypePaymentReceived = "payment_received"
	TypePayoutCompleted = "payout_completed"
	TypeRefundIssued    = "refund_issued"
	TypeDisputeOpened   = "dispute_opened"
)
