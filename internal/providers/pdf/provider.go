package pdf

import "context"

type ReceiptData struct {
	InvoiceNumber string
	SellerName    string
	BuyerEmail    string
	Amount        string
	Currency      string
	DatePaid      string
	Method        string
}

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return nil, nil
}
