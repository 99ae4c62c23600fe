package payout

import (
	"context"
	"errors"
	"strings"
	"time"

	"bringitback-controlplane/pkg/config"
	"bringitback-controlplane/pkg/db/option"
	"bringitback-controlplane/pkg/db/pagination"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/featureflags"
	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/pkg/repository"
	"bringitback-controlplane/pkg/sequence"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/notification"
	"bringitback-controlplane/services/solution"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminDirectory lists the users who process payouts.
type AdminDirectory interface {
	Administrators() []string
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	seq     sequence.Generator
	flags   featureflags.FeatureFlag
	admins  AdminDirectory
	emitter notification.Emitter
	fees    config.FeeSchedule
	payouts repository.Repository[Payout]
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Seq     sequence.Generator
	Flags   featureflags.FeatureFlag
	Admins  AdminDirectory
	Emitter notification.Emitter
	Config  *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		seq:     p.Seq,
		flags:   p.Flags,
		admins:  p.Admins,
		emitter: p.Emitter,
		fees:    p.Config.Payout.Fees(),
		payouts: repository.ProvideStore[Payout](p.DB),
	}
}

// RequestPayout records a PENDING payout for an accepted solution. Gross is the
// campaign's funding at this moment, and the fees are locked in with it.
func (s *Service) RequestPayout(ctx context.Context, solutionID, requesterID string) (*Payout, error) {
	log := logger.FromContext(ctx).With(zap.String("solution_id", solutionID), zap.String("requester_id", requesterID))

	if !s.flags.Enabled(ctx, requesterID, featureflags.PayoutRequests, true) {
		return nil, ErrPayoutsPaused
	}

	code, err := s.seq.NextPayoutCode(ctx)
	if err != nil {
		log.Error("failed to generate payout code", zap.Error(err))
		return nil, errutil.Unavailable("failed to request payout", err, errutil.WithReason("SEQUENCE_UNAVAILABLE"))
	}

	var out *Payout
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sol, err := solution.Lock(ctx, tx, solutionID)
		if err != nil {
			return err
		}
		if sol.SubmitterID != requesterID {
			return ErrNotSubmitter
		}
		if sol.Status != solution.StatusAccepted {
			return ErrSolutionNotAccepted
		}

		var active int64
		if err := tx.Model(&Payout{}).
			Where("solution_id = ? AND status <> ?", sol.ID, StatusFailed).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrPayoutAlreadyRequested
		}

		c, err := campaign.Lock(ctx, tx, sol.CampaignID)
		if err != nil {
			return err
		}

		amounts := ComputeFees(c.FundingCurrent, s.fees)
		if amounts.Net.LessThan(s.fees.MinimumNet) {
			return belowMinimum(amounts.Net.StringFixed(2), s.fees.MinimumNet.StringFixed(2))
		}

		out = &Payout{
			ID:            s.node.Generate().String(),
			Code:          code,
			SolutionID:    sol.ID,
			CampaignID:    c.ID,
			RequesterID:   requesterID,
			Gross:         amounts.Gross,
			PlatformFee:   amounts.PlatformFee,
			ProcessingFee: amounts.ProcessingFee,
			Net:           amounts.Net,
			Status:        StatusPending,
		}
		if err := tx.Create(out).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPayoutAlreadyRequested
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap("failed to request payout", err)
	}

	payoutsTotal.WithLabelValues(string(StatusPending)).Inc()
	log.Info("payout requested",
		zap.String("payout_id", out.ID),
		zap.String("gross", out.Gross.StringFixed(2)),
		zap.String("net", out.Net.StringFixed(2)))

	meta := map[string]string{
		"payout_id":   out.ID,
		"solution_id": out.SolutionID,
		"campaign_id": out.CampaignID,
		"link":        "/payouts/" + out.ID,
	}
	msgs := notification.For(notification.Message{
		Type:     notification.TypePayoutRequested,
		Title:    "Payout requested",
		Body:     "Your payout of " + out.Net.StringFixed(2) + " is pending review.",
		Metadata: meta,
	}, requesterID)
	msgs = append(msgs, notification.For(notification.Message{
		Type:     notification.TypePayoutRequested,
		Title:    "Payout awaiting processing",
		Body:     "Payout " + out.Code + " for " + out.Net.StringFixed(2) + " needs to be processed.",
		Metadata: meta,
	}, s.adminsExcept(requesterID)...)...)
	s.emitter.Emit(ctx, msgs...)

	return out, nil
}

func (s *Service) adminsExcept(userID string) []string {
	var out []string
	for _, id := range s.admins.Administrators() {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// MarkCompleted records that an administrator paid out a PENDING payout.
func (s *Service) MarkCompleted(ctx context.Context, payoutID, adminID string) (*Payout, error) {
	return s.process(ctx, payoutID, adminID, StatusCompleted, "")
}

// MarkFailed closes a PENDING payout. The submitter may then request again.
func (s *Service) MarkFailed(ctx context.Context, payoutID, adminID, reason string) (*Payout, error) {
	return s.process(ctx, payoutID, adminID, StatusFailed, strings.TrimSpace(reason))
}

func (s *Service) process(ctx context.Context, payoutID, adminID string, to Status, reason string) (*Payout, error) {
	log := logger.FromContext(ctx).With(zap.String("payout_id", payoutID), zap.String("admin_id", adminID))

	var out *Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Payout
		err := tx.Scopes(option.LockingUpdate).Where("id = ?", payoutID).Take(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPayoutNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]any{
			"status":       to,
			"processed_by": adminID,
			"processed_at": now,
			"updated_at":   now,
		}
		if reason != "" {
			updates["failure_reason"] = reason
		}
		res := tx.Model(&Payout{}).Where("id = ? AND status = ?", p.ID, StatusPending).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPayoutNotPending
		}

		p.Status, p.ProcessedBy, p.ProcessedAt = to, adminID, &now
		if reason != "" {
			p.FailureReason = reason
		}
		out = &p
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap("failed to process payout", err)
	}

	payoutsTotal.WithLabelValues(string(to)).Inc()
	log.Info("payout processed", zap.String("status", string(to)))

	msg := notification.Message{
		Type:     notification.TypePayoutCompleted,
		Title:    "Payout sent",
		Body:     "Your payout of " + out.Net.StringFixed(2) + " has been sent.",
		Metadata: map[string]string{"payout_id": out.ID, "solution_id": out.SolutionID, "link": "/payouts/" + out.ID},
	}
	if to == StatusFailed {
		msg.Type = notification.TypePayoutFailed
		msg.Title = "Payout failed"
		msg.Body = "Your payout could not be processed. You can request it again."
		if reason != "" {
			msg.Body = "Your payout could not be processed: " + reason + ". You can request it again."
		}
	}
	s.emitter.Emit(ctx, notification.For(msg, out.RequesterID)...)

	return out, nil
}

// ListForSolution returns a solution's payouts to its submitter or an administrator.
func (s *Service) ListForSolution(ctx context.Context, solutionID, viewerID string, admin bool) ([]*Payout, error) {
	sol, err := repository.ProvideStore[solution.Solution](s.db).FindOne(ctx, &solution.Solution{ID: solutionID})
	if err != nil {
		return nil, errutil.Wrap("failed to load solution", err)
	}
	if sol == nil {
		return nil, solution.ErrSolutionNotFound
	}
	if !admin && sol.SubmitterID != viewerID {
		return nil, errutil.Forbidden("not allowed to view these payouts", nil, errutil.WithReason("FORBIDDEN"))
	}

	items, err := s.payouts.Find(ctx, &Payout{SolutionID: solutionID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
	if err != nil {
		return nil, errutil.Wrap("failed to list payouts", err)
	}
	return items, nil
}

type ListRequest struct {
	Status Status `form:"status"`
	pagination.Pagination
}

// List is the administrators' queue, newest first.
func (s *Service) List(ctx context.Context, req ListRequest) ([]*Payout, *pagination.PageInfo, error) {
	items, err := s.payouts.Find(ctx, &Payout{Status: req.Status}, option.ApplyPagination(req.Pagination))
	if err != nil {
		return nil, nil, errutil.Wrap("failed to list payouts", err)
	}

	items, info := pagination.Page(items, req.Pagination, func(p *Payout) (time.Time, string) {
		return p.CreatedAt, p.ID
	})
	return items, info, nil
}
