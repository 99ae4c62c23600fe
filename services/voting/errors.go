package voting

import "bringitback-controlplane/pkg/errutil"

var (
	ErrVotingClosed      = errutil.Conflict("voting is closed for this solution", nil, errutil.WithReason("VOTING_CLOSED"))
	ErrNotEligible       = errutil.Forbidden("only contributors to this campaign may vote", nil, errutil.WithReason("NOT_ELIGIBLE"))
	ErrSelfVoteForbidden = errutil.Forbidden("you cannot vote on your own solution", nil, errutil.WithReason("SELF_VOTE_FORBIDDEN"))
	ErrInvalidVote       = errutil.ValidationFailed("vote must be APPROVE or REJECT", nil,
		errutil.WithReason("VALIDATION_ERROR"),
		errutil.WithDetails(errutil.Detail{Field: "value", Message: "must be APPROVE or REJECT"}))
)
