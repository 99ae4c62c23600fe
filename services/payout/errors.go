package payout

import "bringitback-controlplane/pkg/errutil"

var (
	ErrPayoutNotFound         = errutil.NotFound("payout not found", nil, errutil.WithReason("PAYOUT_NOT_FOUND"))
	ErrNotSubmitter           = errutil.Forbidden("only the solution submitter may request its payout", nil, errutil.WithReason("FORBIDDEN"))
	ErrSolutionNotAccepted    = errutil.Conflict("solution has not been accepted", nil, errutil.WithReason("SOLUTION_NOT_ACCEPTED"))
	ErrPayoutAlreadyRequested = errutil.Conflict("a payout was already requested for this solution", nil, errutil.WithReason("PAYOUT_ALREADY_REQUESTED"))
	ErrPayoutNotPending       = errutil.Conflict("payout is no longer pending", nil, errutil.WithReason("PAYOUT_NOT_PENDING"))
	ErrPayoutsPaused          = errutil.Unavailable("payout requests are temporarily paused", nil, errutil.WithReason("PAYOUTS_PAUSED"))
)

func belowMinimum(net, minimum string) error {
	return errutil.Conflict("payout amount is below the minimum", nil,
		errutil.WithReason("PAYOUT_BELOW_MINIMUM"),
		errutil.WithDetails(errutil.Detail{Field: "net", Message: net + " is below the minimum of " + minimum}))
}
