package campaign

import "bringitback-controlplane/pkg/errutil"

var (
	ErrCampaignNotFound  = errutil.NotFound("campaign not found", nil, errutil.WithReason("CAMPAIGN_NOT_FOUND"))
	ErrCampaignNotActive = errutil.Conflict("campaign is not active", nil, errutil.WithReason("CAMPAIGN_NOT_ACTIVE"))
	ErrInvalidTransition = errutil.Conflict("campaign status transition is not allowed", nil, errutil.WithReason("INVALID_TRANSITION"))
	ErrNotCreator        = errutil.Forbidden("only the campaign creator may do this", nil, errutil.WithReason("FORBIDDEN"))
)
