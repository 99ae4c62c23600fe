package midtrans

import (
	"context"
	"testing"

	"bringitback-controlplane/pkg/config"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		status, fraud string
		want          payment.State
	}{
		{"settlement", "", payment.StateSettled},
		{"capture", "accept", payment.StateSettled},
		{"capture", "challenge", payment.StatePending},
		{"pending", "", payment.StatePending},
		{"expire", "", payment.StateFailed},
		{"deny", "", payment.StateFailed},
		{"refund", "", payment.StateRefunded},
		{"partial_refund", "", payment.StateRefunded},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, MapStatus(tc.status, tc.fraud), tc.status)
	}
}

func TestCreateChargeRejectsFractionalAmount(t *testing.T) {
	g := New(&config.Config{})

	_, err := g.CreateCharge(context.Background(), payment.ChargeRequest{
		OrderID: "PLG-261017-001AB",
		Amount:  decimal.RequireFromString("10.50"),
	})
	require.Error(t, err)
	require.Equal(t, "INVALID_AMOUNT", errutil.ReasonOf(err))

	require.Equal(t, "INVALID_AMOUNT", errutil.ReasonOf(g.ValidateAmount(decimal.RequireFromString("0.99"))))
	require.NoError(t, g.ValidateAmount(decimal.NewFromInt(15000)))
}
