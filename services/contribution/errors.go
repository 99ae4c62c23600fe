package contribution

import "bringitback-controlplane/pkg/errutil"

var (
	ErrContributionNotFound = errutil.NotFound("contribution not found", nil, errutil.WithReason("CONTRIBUTION_NOT_FOUND"))
	ErrCampaignNotFundable  = errutil.Conflict("campaign is not accepting contributions", nil, errutil.WithReason("CAMPAIGN_NOT_FUNDABLE"))
	ErrNotRefundable        = errutil.Conflict("only completed contributions can be refunded", nil, errutil.WithReason("NOT_REFUNDABLE"))
)

func invalidAmount(msg string) error {
	return errutil.ValidationFailed(msg, nil,
		errutil.WithReason("INVALID_AMOUNT"),
		errutil.WithDetails(errutil.Detail{Field: "amount", Message: msg}))
}
