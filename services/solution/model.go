package solution

import "time"

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// Solution is a candidate fix submitted against a campaign.
//
// VotersAtSubmission records the electorate when the solution was submitted.
// It is display only: acceptance is always decided against the live electorate.
type Solution struct {
	ID                 string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CampaignID         string     `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:idx_solutions_campaign_submitter,priority:1" json:"campaign_id"`
	SubmitterID        string     `gorm:"column:submitter_id;type:varchar(64);not null;uniqueIndex:idx_solutions_campaign_submitter,priority:2" json:"submitter_id"`
	Title              string     `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description        string     `gorm:"column:description;type:text" json:"description"`
	ReferenceURL       string     `gorm:"column:reference_url;type:text;not null" json:"reference_url"`
	Status             Status     `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ApprovalCount      int64      `gorm:"column:approval_count;not null;default:0" json:"approval_count"`
	VotersAtSubmission int64      `gorm:"column:voters_at_submission;not null;default:0" json:"voters_at_submission"`
	AcceptedAt         *time.Time `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type VoteValue string

const (
	VoteApprove VoteValue = "APPROVE"
	VoteReject  VoteValue = "REJECT"
)

func (v VoteValue) Valid() bool {
	return v == VoteApprove || v == VoteReject
}

// Vote is one voter's current stance on a solution. A later vote overwrites
// the row, there is never more than one per (solution, voter).
type Vote struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	SolutionID string    `gorm:"column:solution_id;type:varchar(32);not null;uniqueIndex:idx_votes_solution_voter,priority:1" json:"solution_id"`
	VoterID    string    `gorm:"column:voter_id;type:varchar(64);not null;uniqueIndex:idx_votes_solution_voter,priority:2" json:"voter_id"`
	Value      VoteValue `gorm:"column:value;type:varchar(10);not null" json:"value"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// View is a solution with its live tally.
type View struct {
	*Solution
	RejectCount        int64   `json:"reject_count"`
	ElectorateSize     int64   `json:"current_electorate_size"`
	ApprovalPercentage int64   `json:"approval_percentage"`
	Votes              []*Vote `json:"votes"`
}
