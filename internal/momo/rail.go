package momo

import (
	"context"
	"errors"
)

// Rail is the mobile-money transfer rail: collect charges the buyer,
// withdraw pays out to a registered number, transaction status backs the
// reconciliation poller.
type Rail interface {
	Collect(ctx context.Context, req CollectRequest) (TransferResponse, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (TransferResponse, error)
	TransactionStatus(ctx context.Context, reference string) (Transaction, error)
}

const (
	StatusSuccessful = "SUCCESSFUL"
	StatusPending    = "PENDING"
	StatusFailed     = "FAILED"
)

var (
	ErrRateLimited    = errors.New("momo_rate_limited")
	ErrUnauthorized   = errors.New("momo_unauthorized")
	ErrTransferFailed = errors.New("momo_transfer_failed")
	ErrNoCredentials  = errors.New("momo_no_credentials")
)

// CollectRequest charges a buyer's mobile-money number.
type CollectRequest struct {
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	From              string `json:"from"`
	Description       string `json:"description"`
	ExternalReference string `json:"external_reference"`
}

// WithdrawRequest pays out to a seller, referrer or refunded buyer.
type WithdrawRequest struct {
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	To                string `json:"to"`
	Description       string `json:"description"`
	ExternalReference string `json:"external_reference"`
}

type TransferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type Transaction struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Operator  string `json:"operator"`
}
