package midtrans

import (
	"context"

	"bringitback-controlplane/pkg/config"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/payment"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.midtrans",
	fx.Provide(
		fx.Annotate(New, fx.As(new(payment.Gateway))),
	),
)

type Gateway struct {
	snap snap.Client
	core coreapi.Client
}

func New(cfg *config.Config) *Gateway {
	env := midtrans.Sandbox
	if cfg.Midtrans.Environment == "production" {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(cfg.Midtrans.ServerKey, env)

	var c coreapi.Client
	c.New(cfg.Midtrans.ServerKey, env)

	return &Gateway{snap: s, core: c}
}

// ValidateAmount rejects fractional amounts: midtrans settles in whole currency units.
func (g *Gateway) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsInteger() {
		return errutil.ValidationFailed("amount must be a whole currency unit for this gateway", nil,
			errutil.WithReason("INVALID_AMOUNT"))
	}
	return nil
}

func (g *Gateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	if err := g.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount.IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.OrderID,
				Price: req.Amount.IntPart(),
				Qty:   1,
				Name:  req.Description,
			},
		},
	}

	resp, mErr := g.snap.CreateTransaction(snapReq)
	if resp == nil {
		var cause error
		if mErr != nil {
			cause = mErr
		}
		return nil, errutil.BadGateway("payment gateway rejected the charge", cause, errutil.WithReason("GATEWAY_UNAVAILABLE"))
	}
	if mErr != nil {
		zap.L().Warn("midtrans returned a response with an error", zap.String("order_id", req.OrderID), zap.Error(mErr))
	}

	return &payment.Charge{
		OrderID:     req.OrderID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

func (g *Gateway) Status(ctx context.Context, orderID string) (*payment.ChargeStatus, error) {
	resp, mErr := g.core.CheckTransaction(orderID)
	if resp == nil {
		var cause error
		if mErr != nil {
			cause = mErr
		}
		return nil, errutil.BadGateway("failed to verify transaction with payment gateway", cause, errutil.WithReason("GATEWAY_UNAVAILABLE"))
	}

	return &payment.ChargeStatus{
		OrderID:       resp.OrderID,
		TransactionID: resp.TransactionID,
		State:         MapStatus(resp.TransactionStatus, resp.FraudStatus),
		RawStatus:     resp.TransactionStatus,
		GrossAmount:   resp.GrossAmount,
	}, nil
}

// MapStatus normalises midtrans transaction_status values.
func MapStatus(transactionStatus, fraudStatus string) payment.State {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return payment.StatePending
		}
		return payment.StateSettled
	case "settlement":
		return payment.StateSettled
	case "deny", "cancel", "expire", "failure":
		return payment.StateFailed
	case "refund", "partial_refund", "chargeback", "partial_chargeback":
		return payment.StateRefunded
	default:
		return payment.StatePending
	}
}
