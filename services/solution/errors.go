package solution

import "bringitback-controlplane/pkg/errutil"

var (
	ErrSolutionNotFound        = errutil.NotFound("solution not found", nil, errutil.WithReason("SOLUTION_NOT_FOUND"))
	ErrSolutionAlreadyAccepted = errutil.Conflict("campaign already has an accepted solution", nil, errutil.WithReason("SOLUTION_ALREADY_ACCEPTED"))
	ErrDuplicateSubmission     = errutil.Conflict("you already submitted a solution for this campaign", nil, errutil.WithReason("DUPLICATE_SUBMISSION"))
)
