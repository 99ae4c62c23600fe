package bootstrap

import (
	"context"
	"fmt"

	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/contribution"
	"bringitback-controlplane/services/notification"
	"bringitback-controlplane/services/payout"
	"bringitback-controlplane/services/solution"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// activePayoutIndex keeps at most one non-FAILED payout per solution. MySQL has
// no partial indexes, there the row lock in RequestPayout is the only guard.
const activePayoutIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_payouts_active_solution ON payouts (solution_id) WHERE status <> 'FAILED'`

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

func Models() []any {
	return []any{
		&campaign.Campaign{},
		&contribution.Contribution{},
		&solution.Solution{},
		&solution.Vote{},
		&payout.Payout{},
		&notification.Notification{},
	}
}

func (s *Service) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	if err := db.AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] auto migrate failed", zap.Error(err))
		return fmt.Errorf("auto migrate: %w", err)
	}

	switch db.Dialector.Name() {
	case "postgres", "sqlite":
		if err := db.Exec(activePayoutIndex).Error; err != nil {
			zap.L().Error("[bootstrap] failed to create payout index", zap.Error(err))
			return fmt.Errorf("create payout index: %w", err)
		}
	default:
		zap.L().Warn("[bootstrap] partial indexes unsupported, skipping active payout index", zap.String("dialect", db.Dialector.Name()))
	}

	zap.L().Info("[bootstrap] schema up to date")
	return nil
}
