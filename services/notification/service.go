package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bringitback-controlplane/pkg/db/option"
	"bringitback-controlplane/pkg/db/pagination"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/repository"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotificationNotFound = errutil.NotFound("notification not found", nil, errutil.WithReason("NOTIFICATION_NOT_FOUND"))

type Service struct {
	db            *gorm.DB
	notifications repository.Repository[Notification]
}

type ServiceParams struct {
	fx.In

	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:            p.DB,
		notifications: repository.ProvideStore[Notification](p.DB),
	}
}

// HandleDeliverTask persists a notification. Redelivery of the same id is a no-op.
func (s *Service) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		zap.L().Error("invalid notification payload", zap.Error(err))
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	if n.ID == "" || n.UserID == "" {
		return fmt.Errorf("notification without id or recipient: %w", asynq.SkipRetry)
	}

	n.ReadAt = nil
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&n).Error; err != nil {
		return err
	}

	zap.L().Debug("notification delivered", zap.String("notification_id", n.ID), zap.String("user_id", n.UserID))
	return nil
}

func (s *Service) List(ctx context.Context, userID string, page pagination.Pagination) ([]*Notification, *pagination.PageInfo, error) {
	items, err := s.notifications.Find(ctx, &Notification{UserID: userID}, option.ApplyPagination(page))
	if err != nil {
		return nil, nil, errutil.Wrap("failed to list notifications", err)
	}

	items, info := pagination.Page(items, page, func(n *Notification) (time.Time, string) {
		return n.CreatedAt, n.ID
	})

	return items, info, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) (*Notification, error) {
	n, err := s.notifications.FindOne(ctx, &Notification{ID: notificationID, UserID: userID})
	if err != nil {
		return nil, errutil.Wrap("failed to load notification", err)
	}
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	if n.ReadAt != nil {
		return n, nil
	}

	now := time.Now()
	if err := s.notifications.Update(ctx, n.ID, map[string]any{"read_at": now}); err != nil {
		return nil, errutil.Wrap("failed to mark notification read", err)
	}
	n.ReadAt = &now
	return n, nil
}
