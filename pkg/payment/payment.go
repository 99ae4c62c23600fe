// Package payment defines the port to the external payment gateway.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=payment.go -destination=mock/gateway.go -package=mock

// Gateway creates charges and reports their authoritative status.
type Gateway interface {
	// ValidateAmount reports whether the gateway can charge amount at all.
	ValidateAmount(amount decimal.Decimal) error
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// Status fetches the settlement state of a charge from the gateway itself.
	// Webhook bodies are never trusted directly.
	Status(ctx context.Context, orderID string) (*ChargeStatus, error)
}

type ChargeRequest struct {
	OrderID      string
	Amount       decimal.Decimal
	CustomerName string
	Description  string
}

type Charge struct {
	OrderID     string
	Token       string
	RedirectURL string
}

type State string

const (
	StatePending  State = "PENDING"
	StateSettled  State = "SETTLED"
	StateFailed   State = "FAILED"
	StateRefunded State = "REFUNDED"
)

type ChargeStatus struct {
	OrderID       string
	TransactionID string
	State         State
	RawStatus     string
	GrossAmount   string
}
