package solution

import (
	"context"

	"gorm.io/gorm"
)

// ApprovalPercentage is approvals/electorate as a whole percentage, rounded
// half up. An empty electorate yields 0.
func ApprovalPercentage(approvals, electorate int64) int64 {
	if electorate <= 0 {
		return 0
	}
	return (approvals*200 + electorate) / (electorate * 2)
}

// ReachesQuorum reports whether approvals make up at least half of the
// electorate. The boundary is inclusive and decided on exact integers.
func ReachesQuorum(approvals, electorate int64) bool {
	return electorate > 0 && approvals*2 >= electorate
}

// CountVotes does a full recount of a solution's votes.
func CountVotes(ctx context.Context, tx *gorm.DB, solutionID string) (approvals, rejects int64, err error) {
	var rows []struct {
		Value VoteValue
		N     int64
	}
	err = tx.WithContext(ctx).Model(&Vote{}).
		Select("value, COUNT(*) AS n").
		Where("solution_id = ?", solutionID).
		Group("value").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}

	for _, r := range rows {
		switch r.Value {
		case VoteApprove:
			approvals = r.N
		case VoteReject:
			rejects = r.N
		}
	}
	return approvals, rejects, nil
}
