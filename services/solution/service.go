package solution

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"bringitback-controlplane/pkg/db/option"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/pkg/repository"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/contribution"
	"bringitback-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	emitter   notification.Emitter
	solutions repository.Repository[Solution]
	votes     repository.Repository[Vote]
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Emitter notification.Emitter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		emitter:   p.Emitter,
		solutions: repository.ProvideStore[Solution](p.DB),
		votes:     repository.ProvideStore[Vote](p.DB),
	}
}

// Lock loads a solution with a row lock inside tx.
func Lock(ctx context.Context, tx *gorm.DB, id string) (*Solution, error) {
	var s Solution
	err := tx.WithContext(ctx).Scopes(option.LockingUpdate).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSolutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type SubmitRequest struct {
	CampaignID   string `json:"-"`
	SubmitterID  string `json:"-"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ReferenceURL string `json:"reference_url"`
}

func (r SubmitRequest) validate() error {
	var details []errutil.Detail
	if strings.TrimSpace(r.Title) == "" {
		details = append(details, errutil.Detail{Field: "title", Message: "required"})
	}
	if len(r.Title) > 255 {
		details = append(details, errutil.Detail{Field: "title", Message: "must be at most 255 characters"})
	}
	if strings.TrimSpace(r.Description) == "" {
		details = append(details, errutil.Detail{Field: "description", Message: "required"})
	}
	if u, err := url.ParseRequestURI(r.ReferenceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		details = append(details, errutil.Detail{Field: "reference_url", Message: "must be an absolute http(s) URL"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid solution", nil, errutil.WithReason("VALIDATION_ERROR"), errutil.WithDetails(details...))
	}
	return nil
}

// Submit registers a PENDING solution. The campaign row is locked so a
// submission cannot race an acceptance on the same campaign.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Solution, error) {
	log := logger.FromContext(ctx).With(zap.String("campaign_id", req.CampaignID), zap.String("submitter_id", req.SubmitterID))

	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		out     *Solution
		creator string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := campaign.Lock(ctx, tx, req.CampaignID)
		if err != nil {
			return err
		}
		if !c.IsActive() {
			return campaign.ErrCampaignNotActive
		}
		creator = c.CreatorID

		var accepted int64
		if err := tx.Model(&Solution{}).
			Where("campaign_id = ? AND status = ?", c.ID, StatusAccepted).
			Count(&accepted).Error; err != nil {
			return err
		}
		if accepted > 0 {
			return ErrSolutionAlreadyAccepted
		}

		var mine int64
		if err := tx.Model(&Solution{}).
			Where("campaign_id = ? AND submitter_id = ?", c.ID, req.SubmitterID).
			Count(&mine).Error; err != nil {
			return err
		}
		if mine > 0 {
			return ErrDuplicateSubmission
		}

		electorate, err := contribution.ElectorateSize(ctx, tx, c.ID)
		if err != nil {
			return err
		}

		out = &Solution{
			ID:                 s.node.Generate().String(),
			CampaignID:         c.ID,
			SubmitterID:        req.SubmitterID,
			Title:              strings.TrimSpace(req.Title),
			Description:        req.Description,
			ReferenceURL:       req.ReferenceURL,
			Status:             StatusPending,
			VotersAtSubmission: electorate,
		}
		if err := tx.Create(out).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSubmission
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap("failed to submit solution", err)
	}

	log.Info("solution submitted", zap.String("solution_id", out.ID), zap.Int64("voters_at_submission", out.VotersAtSubmission))

	if creator != req.SubmitterID {
		s.emitter.Emit(ctx, notification.For(notification.Message{
			Type:  notification.TypeSolutionSubmitted,
			Title: "New solution submitted",
			Body:  "A solution \"" + out.Title + "\" was submitted to your campaign.",
			Metadata: map[string]string{
				"campaign_id": out.CampaignID,
				"solution_id": out.ID,
				"link":        "/campaigns/" + out.CampaignID + "/solutions/" + out.ID,
			},
		}, creator)...)
	}

	return out, nil
}

// Get returns a solution with its live tally and voter list.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	sol, err := s.solutions.FindOne(ctx, &Solution{ID: id})
	if err != nil {
		return nil, errutil.Wrap("failed to load solution", err)
	}
	if sol == nil {
		return nil, ErrSolutionNotFound
	}

	views, err := s.views(ctx, sol.CampaignID, []*Solution{sol})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// List returns the campaign's solutions, accepted first, then by approvals,
// newest first on ties.
func (s *Service) List(ctx context.Context, campaignID string) ([]*View, error) {
	items, err := s.solutions.Find(ctx, &Solution{CampaignID: campaignID},
		func(db *gorm.DB) *gorm.DB {
			return db.Order("CASE WHEN status = 'ACCEPTED' THEN 0 ELSE 1 END").
				Order("approval_count DESC").
				Order("created_at DESC")
		})
	if err != nil {
		return nil, errutil.Wrap("failed to list solutions", err)
	}
	if len(items) == 0 {
		return []*View{}, nil
	}
	return s.views(ctx, campaignID, items)
}

func (s *Service) views(ctx context.Context, campaignID string, items []*Solution) ([]*View, error) {
	electorate, err := contribution.ElectorateSize(ctx, s.db, campaignID)
	if err != nil {
		return nil, errutil.Wrap("failed to count electorate", err)
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	votes, err := s.votes.Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "solution_id", Operator: option.IN, Value: ids}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}))
	if err != nil {
		return nil, errutil.Wrap("failed to load votes", err)
	}

	bySolution := make(map[string][]*Vote, len(items))
	for _, v := range votes {
		bySolution[v.SolutionID] = append(bySolution[v.SolutionID], v)
	}

	out := make([]*View, 0, len(items))
	for _, it := range items {
		view := &View{Solution: it, ElectorateSize: electorate, Votes: bySolution[it.ID]}
		if view.Votes == nil {
			view.Votes = []*Vote{}
		}

		var approvals int64
		for _, v := range view.Votes {
			switch v.Value {
			case VoteApprove:
				approvals++
			case VoteReject:
				view.RejectCount++
			}
		}
		it.ApprovalCount = approvals
		view.ApprovalPercentage = ApprovalPercentage(approvals, electorate)
		out = append(out, view)
	}
	return out, nil
}
