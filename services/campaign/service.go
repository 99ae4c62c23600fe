package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bringitback-controlplane/pkg/db/option"
	"bringitback-controlplane/pkg/db/pagination"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/pkg/repository"
	"bringitback-controlplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	seq       sequence.Generator
	campaigns repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		campaigns: repository.ProvideStore[Campaign](p.DB),
	}
}

type CreateRequest struct {
	CreatorID   string `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProductName string `json:"product_name"`
	Publish     bool   `json:"publish"`
}

func (r CreateRequest) validate() error {
	var details []errutil.Detail
	if r.CreatorID == "" {
		details = append(details, errutil.Detail{Field: "creator_id", Message: "required"})
	}
	if strings.TrimSpace(r.Title) == "" {
		details = append(details, errutil.Detail{Field: "title", Message: "required"})
	}
	if len(r.Title) > 255 {
		details = append(details, errutil.Detail{Field: "title", Message: "must be at most 255 characters"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid campaign", nil, errutil.WithReason("VALIDATION_ERROR"), errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Campaign, error) {
	log := logger.FromContext(ctx)

	if err := req.validate(); err != nil {
		return nil, err
	}

	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		log.Error("failed to generate campaign code", zap.Error(err))
		return nil, errutil.Unavailable("failed to create campaign", err, errutil.WithReason("SEQUENCE_UNAVAILABLE"))
	}

	status := StatusDraft
	var publishedAt *time.Time
	if req.Publish {
		now := time.Now()
		status, publishedAt = StatusActive, &now
	}

	c := &Campaign{
		ID:             s.node.Generate().String(),
		Code:           code,
		CreatorID:      req.CreatorID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		ProductName:    req.ProductName,
		Status:         status,
		FundingCurrent: decimal.Zero,
		PublishedAt:    publishedAt,
	}

	c.Slug, err = s.uniqueSlug(ctx, c.Title)
	if err != nil {
		return nil, errutil.Wrap("failed to create campaign", err)
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("campaign slug already taken", err, errutil.WithReason("SLUG_TAKEN"))
		}
		log.Error("failed to create campaign", zap.Error(err))
		return nil, errutil.Wrap("failed to create campaign", err)
	}

	log.Info("campaign created", zap.String("campaign_id", c.ID), zap.String("code", c.Code), zap.String("status", string(c.Status)))
	return c, nil
}

func (s *Service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "campaign"
	}

	candidate := base
	for i := 2; i < 100; i++ {
		exist, err := s.campaigns.FindOne(ctx, &Campaign{Slug: candidate})
		if err != nil {
			return "", err
		}
		if exist == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.node.Generate().String()), nil
}

// Get resolves a campaign by id or slug.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{ID: idOrSlug})
	if err != nil {
		return nil, errutil.Wrap("failed to load campaign", err)
	}
	if c == nil {
		c, err = s.campaigns.FindOne(ctx, &Campaign{Slug: idOrSlug})
		if err != nil {
			return nil, errutil.Wrap("failed to load campaign", err)
		}
	}
	if c == nil {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

type ListRequest struct {
	Status    Status `form:"status"`
	CreatorID string `form:"creator_id"`
	pagination.Pagination
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]*Campaign, *pagination.PageInfo, error) {
	items, err := s.campaigns.Find(ctx, &Campaign{Status: req.Status, CreatorID: req.CreatorID}, option.ApplyPagination(req.Pagination))
	if err != nil {
		return nil, nil, errutil.Wrap("failed to list campaigns", err)
	}

	items, info := pagination.Page(items, req.Pagination, func(c *Campaign) (time.Time, string) {
		return c.CreatedAt, c.ID
	})
	return items, info, nil
}

// Publish opens a DRAFT campaign for contributions. Only its creator may do it.
func (s *Service) Publish(ctx context.Context, id, userID string) (*Campaign, error) {
	var out *Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.CreatorID != userID {
			return ErrNotCreator
		}
		if c.Status == StatusActive {
			out = c
			return nil
		}
		if err := Transition(ctx, tx, c.ID, c.Status, StatusActive); err != nil {
			return err
		}
		out, err = Lock(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return nil, errutil.Wrap("failed to publish campaign", err)
	}

	logger.FromContext(ctx).Info("campaign published", zap.String("campaign_id", out.ID))
	return out, nil
}

// AdminTransition lets an administrator cancel or expire a campaign.
func (s *Service) AdminTransition(ctx context.Context, id string, to Status) (*Campaign, error) {
	if !adminTargets[to] {
		return nil, errutil.ValidationFailed("unsupported target status", nil,
			errutil.WithReason("VALIDATION_ERROR"),
			errutil.WithDetails(errutil.Detail{Field: "status", Message: fmt.Sprintf("%s cannot be set by hand", to)}))
	}

	var out *Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := Transition(ctx, tx, c.ID, c.Status, to); err != nil {
			return err
		}
		out, err = Lock(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return nil, errutil.Wrap("failed to transition campaign", err)
	}

	logger.FromContext(ctx).Info("campaign transitioned", zap.String("campaign_id", out.ID), zap.String("status", string(out.Status)))
	return out, nil
}
