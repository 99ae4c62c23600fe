package payout

import (
	"bringitback-controlplane/pkg/config"

	"github.com/shopspring/decimal"
)

type Amounts struct {
	Gross         decimal.Decimal
	PlatformFee   decimal.Decimal
	ProcessingFee decimal.Decimal
	Net           decimal.Decimal
}

// ComputeFees splits gross into fees and net. Each fee is rounded to cents
// and net is the exact remainder, so the parts always sum to gross.
func ComputeFees(gross decimal.Decimal, fees config.FeeSchedule) Amounts {
	platform := gross.Mul(fees.PlatformFeeRate).Round(2)
	processing := gross.Mul(fees.ProcessingFeeRate).Add(fees.ProcessingFeeFixed).Round(2)

	return Amounts{
		Gross:         gross,
		PlatformFee:   platform,
		ProcessingFee: processing,
		Net:           gross.Sub(platform).Sub(processing),
	}
}
