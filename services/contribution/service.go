package contribution

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bringitback-controlplane/pkg/db/option"
	"bringitback-controlplane/pkg/db/pagination"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/pkg/payment"
	"bringitback-controlplane/pkg/repository"
	"bringitback-controlplane/pkg/sequence"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db            *gorm.DB
	node          *snowflake.Node
	seq           sequence.Generator
	gateway       payment.Gateway
	emitter       notification.Emitter
	contributions repository.Repository[Contribution]
	campaigns     repository.Repository[campaign.Campaign]
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Seq     sequence.Generator
	Gateway payment.Gateway
	Emitter notification.Emitter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:            p.DB,
		node:          p.Node,
		seq:           p.Seq,
		gateway:       p.Gateway,
		emitter:       p.Emitter,
		contributions: repository.ProvideStore[Contribution](p.DB),
		campaigns:     repository.ProvideStore[campaign.Campaign](p.DB),
	}
}

type PledgeRequest struct {
	CampaignID   string          `json:"-"`
	UserID       string          `json:"-"`
	CustomerName string          `json:"customer_name"`
	Amount       decimal.Decimal `json:"amount"`
	Anonymous    bool            `json:"anonymous"`
	Message      string          `json:"message"`
}

// RecordPledge creates a PENDING contribution and opens a charge for it.
// Funding is untouched until the gateway confirms the charge.
func (s *Service) RecordPledge(ctx context.Context, req PledgeRequest) (*Contribution, error) {
	log := logger.FromContext(ctx).With(zap.String("campaign_id", req.CampaignID), zap.String("user_id", req.UserID))

	if !req.Amount.IsPositive() {
		return nil, invalidAmount("amount must be greater than zero")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, invalidAmount("amount must have at most two decimal places")
	}

	c, err := s.campaigns.FindOne(ctx, &campaign.Campaign{ID: req.CampaignID})
	if err != nil {
		return nil, errutil.Wrap("failed to load campaign", err)
	}
	if c == nil {
		return nil, campaign.ErrCampaignNotFound
	}
	if !c.IsActive() {
		return nil, ErrCampaignNotFundable
	}
	if err := s.gateway.ValidateAmount(req.Amount); err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, invalidAmount(err.Error())
	}

	orderID, err := s.seq.NextPledgeOrderID(ctx)
	if err != nil {
		log.Error("failed to generate pledge order id", zap.Error(err))
		return nil, errutil.Unavailable("failed to record pledge", err, errutil.WithReason("SEQUENCE_UNAVAILABLE"))
	}

	contrib := &Contribution{
		ID:            s.node.Generate().String(),
		CampaignID:    c.ID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Status:        StatusPending,
		Anonymous:     req.Anonymous,
		Message:       req.Message,
		CorrelationID: orderID,
	}
	if err := s.contributions.Create(ctx, contrib); err != nil {
		log.Error("failed to insert contribution", zap.Error(err))
		return nil, errutil.Wrap("failed to record pledge", err)
	}

	charge, err := s.gateway.CreateCharge(ctx, payment.ChargeRequest{
		OrderID:      orderID,
		Amount:       req.Amount,
		CustomerName: req.CustomerName,
		Description:  c.Title,
	})
	if err != nil {
		log.Warn("payment gateway rejected pledge", zap.String("correlation_id", orderID), zap.Error(err))
		if uerr := s.markFailed(ctx, orderID); uerr != nil {
			log.Error("failed to mark contribution failed", zap.Error(uerr))
		}
		pledgesTotal.WithLabelValues(string(StatusFailed)).Inc()

		var be errutil.BaseError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, errutil.BadGateway("payment gateway unavailable", err, errutil.WithReason("GATEWAY_UNAVAILABLE"))
	}

	contrib.GatewayToken = charge.Token
	contrib.RedirectURL = charge.RedirectURL
	if err := s.contributions.Update(ctx, contrib.ID, map[string]any{
		"gateway_token": charge.Token,
		"redirect_url":  charge.RedirectURL,
	}); err != nil {
		return nil, errutil.Wrap("failed to store charge", err)
	}

	pledgesTotal.WithLabelValues(string(StatusPending)).Inc()
	log.Info("pledge recorded", zap.String("contribution_id", contrib.ID), zap.String("correlation_id", orderID))
	return contrib, nil
}

func lockByCorrelation(ctx context.Context, tx *gorm.DB, correlationID string) (*Contribution, error) {
	var c Contribution
	err := tx.WithContext(ctx).Scopes(option.LockingUpdate).Where("correlation_id = ?", correlationID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContributionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func lockByID(ctx context.Context, tx *gorm.DB, id string) (*Contribution, error) {
	var c Contribution
	err := tx.WithContext(ctx).Scopes(option.LockingUpdate).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContributionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// compareAndSet moves a contribution between statuses and reports whether this
// call performed the move.
func compareAndSet(ctx context.Context, tx *gorm.DB, id string, from, to Status, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now()}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.WithContext(ctx).Model(&Contribution{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// adjustFunding adds delta to the campaign total under a row lock. The total
// never drops below zero.
func adjustFunding(ctx context.Context, tx *gorm.DB, campaignID string, delta decimal.Decimal) (*campaign.Campaign, error) {
	c, err := campaign.Lock(ctx, tx, campaignID)
	if err != nil {
		return nil, err
	}

	total := c.FundingCurrent.Add(delta)
	if total.IsNegative() {
		total = decimal.Zero
	}

	if err := tx.WithContext(ctx).Model(&campaign.Campaign{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{"funding_current": total, "updated_at": time.Now()}).Error; err != nil {
		return nil, err
	}
	c.FundingCurrent = total
	return c, nil
}

// ConfirmPledge settles the PENDING contribution behind correlationID and adds
// its amount to the campaign total. Redelivery is a no-op.
func (s *Service) ConfirmPledge(ctx context.Context, correlationID, transactionID string) (*Contribution, error) {
	log := logger.FromContext(ctx).With(zap.String("correlation_id", correlationID))

	var (
		out       *Contribution
		confirmed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockByCorrelation(ctx, tx, correlationID)
		if err != nil {
			return err
		}
		out = c
		if c.Status != StatusPending {
			return nil
		}

		now := time.Now()
		extra := map[string]any{"confirmed_at": now}
		if transactionID != "" {
			extra["gateway_transaction_id"] = transactionID
		}
		ok, err := compareAndSet(ctx, tx, c.ID, StatusPending, StatusCompleted, extra)
		if err != nil || !ok {
			return err
		}

		if _, err := adjustFunding(ctx, tx, c.CampaignID, c.Amount); err != nil {
			return err
		}

		c.Status = StatusCompleted
		c.ConfirmedAt = &now
		c.GatewayTransactionID = transactionID
		confirmed = true
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap("failed to confirm pledge", err)
	}

	if !confirmed {
		log.Info("pledge confirmation ignored", zap.String("status", string(out.Status)))
		return out, nil
	}

	amount, _ := out.Amount.Float64()
	fundingConfirmed.Add(amount)
	pledgesTotal.WithLabelValues(string(StatusCompleted)).Inc()
	log.Info("pledge confirmed", zap.String("contribution_id", out.ID), zap.String("amount", out.Amount.StringFixed(2)))

	s.emitter.Emit(ctx, notification.For(notification.Message{
		Type:  notification.TypeContributionConfirmed,
		Title: "Your contribution was received",
		Body:  "Thank you! Your pledge of " + out.Amount.StringFixed(2) + " is now counted and you can vote on solutions.",
		Metadata: map[string]string{
			"campaign_id":     out.CampaignID,
			"contribution_id": out.ID,
			"link":            "/campaigns/" + out.CampaignID,
		},
	}, out.UserID)...)

	return out, nil
}

// FailPledge closes a PENDING contribution whose charge did not go through.
func (s *Service) FailPledge(ctx context.Context, correlationID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockByCorrelation(ctx, tx, correlationID)
		if err != nil {
			return err
		}
		_, err = compareAndSet(ctx, tx, c.ID, StatusPending, StatusFailed, nil)
		return err
	})
	if err != nil {
		return errutil.Wrap("failed to fail pledge", err)
	}
	pledgesTotal.WithLabelValues(string(StatusFailed)).Inc()
	return nil
}

func (s *Service) markFailed(ctx context.Context, correlationID string) error {
	return s.db.WithContext(ctx).Model(&Contribution{}).
		Where("correlation_id = ? AND status = ?", correlationID, StatusPending).
		Updates(map[string]any{"status": StatusFailed, "updated_at": time.Now()}).Error
}

// Refund reverses a COMPLETED contribution. Anything else, including an
// already refunded one, is NOT_REFUNDABLE.
func (s *Service) Refund(ctx context.Context, contributionID string) (*Contribution, error) {
	return s.refund(ctx, func(tx *gorm.DB) (*Contribution, error) {
		return lockByID(ctx, tx, contributionID)
	})
}

// RefundByCorrelation is Refund keyed by the gateway order id.
func (s *Service) RefundByCorrelation(ctx context.Context, correlationID string) (*Contribution, error) {
	return s.refund(ctx, func(tx *gorm.DB) (*Contribution, error) {
		return lockByCorrelation(ctx, tx, correlationID)
	})
}

func (s *Service) refund(ctx context.Context, lock func(tx *gorm.DB) (*Contribution, error)) (*Contribution, error) {
	var out *Contribution
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lock(tx)
		if err != nil {
			return err
		}
		out = c
		if c.Status != StatusCompleted {
			return ErrNotRefundable
		}

		now := time.Now()
		ok, err := compareAndSet(ctx, tx, c.ID, StatusCompleted, StatusRefunded, map[string]any{"refunded_at": now})
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotRefundable
		}

		if _, err := adjustFunding(ctx, tx, c.CampaignID, c.Amount.Neg()); err != nil {
			return err
		}
		c.Status = StatusRefunded
		c.RefundedAt = &now
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap("failed to refund contribution", err)
	}

	logger.FromContext(ctx).Info("contribution refunded", zap.String("contribution_id", out.ID), zap.String("campaign_id", out.CampaignID))
	return out, nil
}

// HandleGatewayNotification re-reads the charge from the gateway and applies
// the settled state. The notification body itself only names the order.
func (s *Service) HandleGatewayNotification(ctx context.Context, orderID string) error {
	log := logger.FromContext(ctx).With(zap.String("correlation_id", orderID))

	exist, err := s.contributions.FindOne(ctx, &Contribution{CorrelationID: orderID})
	if err != nil {
		return errutil.Wrap("failed to load contribution", err)
	}
	if exist == nil {
		return ErrContributionNotFound
	}

	st, err := s.gateway.Status(ctx, orderID)
	if err != nil {
		log.Warn("failed to fetch charge status", zap.Error(err))
		var be errutil.BaseError
		if errors.As(err, &be) {
			return err
		}
		return errutil.BadGateway("payment gateway unavailable", err, errutil.WithReason("GATEWAY_UNAVAILABLE"))
	}

	if payload, err := json.Marshal(st); err == nil {
		if err := s.db.WithContext(ctx).Model(&Contribution{}).
			Where("correlation_id = ?", orderID).
			Update("gateway_payload", datatypes.JSON(payload)).Error; err != nil {
			log.Warn("failed to store gateway payload", zap.Error(err))
		}
	}

	switch st.State {
	case payment.StateSettled:
		_, err = s.ConfirmPledge(ctx, orderID, st.TransactionID)
	case payment.StateFailed:
		err = s.FailPledge(ctx, orderID)
	case payment.StateRefunded:
		_, err = s.RefundByCorrelation(ctx, orderID)
		if errutil.ReasonOf(err) == "NOT_REFUNDABLE" {
			log.Warn("refund for unsettled contribution ignored")
			err = nil
		}
	default:
		log.Debug("charge still pending", zap.String("raw_status", st.RawStatus))
	}
	return err
}

// Electorate is ElectorateSize outside of any transaction.
func (s *Service) Electorate(ctx context.Context, campaignID string) (int64, error) {
	n, err := ElectorateSize(ctx, s.db, campaignID)
	if err != nil {
		return 0, errutil.Wrap("failed to count electorate", err)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, campaignID string, page pagination.Pagination) ([]*Contribution, *pagination.PageInfo, error) {
	items, err := s.contributions.Find(ctx, &Contribution{CampaignID: campaignID, Status: StatusCompleted}, option.ApplyPagination(page))
	if err != nil {
		return nil, nil, errutil.Wrap("failed to list contributions", err)
	}

	items, info := pagination.Page(items, page, func(c *Contribution) (time.Time, string) {
		return c.CreatedAt, c.ID
	})

	out := make([]*Contribution, 0, len(items))
	for _, c := range items {
		out = append(out, c.Public())
	}
	return out, info, nil
}
