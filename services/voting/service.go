package voting

import (
	"context"
	"time"

	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/contribution"
	"bringitback-controlplane/services/notification"
	"bringitback-controlplane/services/solution"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	emitter notification.Emitter
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Emitter notification.Emitter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		emitter: p.Emitter,
	}
}

type Result struct {
	Vote               *solution.Vote  `json:"vote"`
	ApprovalCount      int64           `json:"approval_count"`
	RejectCount        int64           `json:"reject_count"`
	ElectorateSize     int64           `json:"electorate_size"`
	ApprovalPercentage int64           `json:"approval_percentage"`
	SolutionStatus     solution.Status `json:"solution_status"`
	// Accepted is true only for the call that performed the acceptance.
	Accepted bool `json:"accepted"`
}

// CastVote records voterID's stance on a solution, recounts the tally against
// the live electorate and accepts the solution once approvals reach half of it.
//
// Everything happens in one transaction. The solution row is locked first and
// the PENDING -> ACCEPTED move is a compare-and-set, so exactly one caller
// accepts and completes the campaign however many votes race.
func (s *Service) CastVote(ctx context.Context, solutionID, voterID string, value solution.VoteValue) (*Result, error) {
	log := logger.FromContext(ctx).With(zap.String("solution_id", solutionID), zap.String("voter_id", voterID))

	if !value.Valid() {
		return nil, ErrInvalidVote
	}

	var (
		res *Result
		sol *solution.Solution
		cmp *campaign.Campaign
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sol, err = solution.Lock(ctx, tx, solutionID)
		if err != nil {
			return err
		}
		if sol.Status != solution.StatusPending {
			return ErrVotingClosed
		}

		cmp, err = campaign.Lock(ctx, tx, sol.CampaignID)
		if err != nil {
			return err
		}
		if !cmp.IsActive() {
			return campaign.ErrCampaignNotActive
		}

		eligible, err := contribution.IsContributor(ctx, tx, cmp.ID, voterID)
		if err != nil {
			return err
		}
		if !eligible {
			return ErrNotEligible
		}
		if sol.SubmitterID == voterID {
			return ErrSelfVoteForbidden
		}

		now := time.Now()
		vote := &solution.Vote{
			ID:         s.node.Generate().String(),
			SolutionID: sol.ID,
			VoterID:    voterID,
			Value:      value,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "solution_id"}, {Name: "voter_id"}},
			DoUpdates: clause.Assignments(map[string]any{"value": value, "updated_at": now}),
		}).Create(vote).Error; err != nil {
			return err
		}
		var stored solution.Vote
		if err := tx.Where("solution_id = ? AND voter_id = ?", sol.ID, voterID).Take(&stored).Error; err != nil {
			return err
		}
		vote = &stored

		approvals, rejects, err := solution.CountVotes(ctx, tx, sol.ID)
		if err != nil {
			return err
		}
		electorate, err := contribution.ElectorateSize(ctx, tx, cmp.ID)
		if err != nil {
			return err
		}

		if err := tx.Model(&solution.Solution{}).
			Where("id = ?", sol.ID).
			Updates(map[string]any{"approval_count": approvals, "updated_at": now}).Error; err != nil {
			return err
		}

		res = &Result{
			Vote:               vote,
			ApprovalCount:      approvals,
			RejectCount:        rejects,
			ElectorateSize:     electorate,
			ApprovalPercentage: solution.ApprovalPercentage(approvals, electorate),
			SolutionStatus:     solution.StatusPending,
		}

		if !solution.ReachesQuorum(approvals, electorate) {
			return nil
		}

		accepted := tx.Model(&solution.Solution{}).
			Where("id = ? AND status = ?", sol.ID, solution.StatusPending).
			Updates(map[string]any{"status": solution.StatusAccepted, "accepted_at": now, "updated_at": now})
		if accepted.Error != nil {
			return accepted.Error
		}
		if accepted.RowsAffected == 0 {
			res.SolutionStatus = solution.StatusAccepted
			return nil
		}

		if err := campaign.MarkCompleted(ctx, tx, cmp.ID); err != nil {
			return err
		}

		sol.Status = solution.StatusAccepted
		sol.AcceptedAt = &now
		res.SolutionStatus = solution.StatusAccepted
		res.Accepted = true
		return nil
	})
	if err != nil {
		rejectedVotesTotal.WithLabelValues(errutil.ReasonOf(err)).Inc()
		return nil, errutil.Wrap("failed to cast vote", err)
	}

	votesTotal.WithLabelValues(string(value)).Inc()
	log.Info("vote recorded",
		zap.String("value", string(value)),
		zap.Int64("approvals", res.ApprovalCount),
		zap.Int64("electorate", res.ElectorateSize))

	if res.Accepted {
		acceptancesTotal.Inc()
		log.Info("solution accepted", zap.String("campaign_id", cmp.ID))
		s.notifyAccepted(ctx, sol, cmp)
	}

	return res, nil
}

func (s *Service) notifyAccepted(ctx context.Context, sol *solution.Solution, cmp *campaign.Campaign) {
	meta := map[string]string{
		"campaign_id": cmp.ID,
		"solution_id": sol.ID,
		"link":        "/campaigns/" + cmp.ID + "/solutions/" + sol.ID,
	}

	msgs := notification.For(notification.Message{
		Type:     notification.TypeSolutionAccepted,
		Title:    "Your solution was accepted",
		Body:     "Contributors approved \"" + sol.Title + "\". You can now request the payout.",
		Metadata: meta,
	}, sol.SubmitterID)
	msgs = append(msgs, notification.For(notification.Message{
		Type:     notification.TypeCampaignCompleted,
		Title:    "Your campaign is complete",
		Body:     "\"" + sol.Title + "\" was accepted for " + cmp.Title + ".",
		Metadata: meta,
	}, cmp.CreatorID)...)

	s.emitter.Emit(ctx, msgs...)
}

// Votes lists the votes on a solution, oldest first.
func (s *Service) Votes(ctx context.Context, solutionID string) ([]*solution.Vote, error) {
	var out []*solution.Vote
	if err := s.db.WithContext(ctx).
		Where("solution_id = ?", solutionID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, errutil.Wrap("failed to list votes", err)
	}
	return out, nil
}
