package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("chat.service",
	fx.Provide(NewService),
)

type Channel struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID  snowflake.ID `json:"invoice_id" gorm:"not null;uniqueIndex"`
	BuyerToken string       `json:"-" gorm:"type:text;not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (Channel) TableName() string { return "chat_channels" }

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("chat.service"),
		genID: p.GenID,
	}
}

// OpenChannel creates the buyer↔seller channel for an invoice and mints the
// buyer's unauthenticated access token. A second call for the same invoice
// returns the existing channel.
func (s *Service) OpenChannel(ctx context.Context, invoiceID snowflake.ID) (*Channel, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	channel := Channel{
		ID:         s.genID.Generate(),
		InvoiceID:  invoiceID,
		BuyerToken: hex.EncodeToString(raw),
		CreatedAt:  time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO chat_channels (id, invoice_id, buyer_token, created_at)
		 VALUES (?, ?, ?, ?)`,
		channel.ID,
		channel.InvoiceID,
		channel.BuyerToken,
		channel.CreatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.findByInvoice(ctx, invoiceID)
		}
		return nil, err
	}
	return &channel, nil
}

func (s *Service) findByInvoice(ctx context.Context, invoiceID snowflake.ID) (*Channel, error) {
	var item Channel
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, buyer_token, created_at
		 FROM chat_channels
		 WHERE invoice_id = ?
		 LIMIT 1`,
		invoiceID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
