package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bringitback-controlplane/services/payout"
	"bringitback-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newPayout(id string, status payout.Status) *payout.Payout {
	return &payout.Payout{
		ID: id, Code: "PAY-" + id, SolutionID: "s1", CampaignID: "c1", RequesterID: "e",
		Gross: decimal.NewFromInt(10), PlatformFee: decimal.Zero, ProcessingFee: decimal.Zero, Net: decimal.NewFromInt(10),
		Status: status,
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(ServiceParams{DB: db})

	require.NoError(t, svc.Migrate(context.Background()))
	require.NoError(t, svc.Migrate(context.Background()))

	for _, m := range Models() {
		require.True(t, db.Migrator().HasTable(m))
	}
}

func TestActivePayoutIndex(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, NewService(ServiceParams{DB: db}).Migrate(context.Background()))

	require.NoError(t, db.Create(newPayout("p1", payout.StatusFailed)).Error)
	require.NoError(t, db.Create(newPayout("p2", payout.StatusFailed)).Error)
	require.NoError(t, db.Create(newPayout("p3", payout.StatusPending)).Error)

	err := db.Create(newPayout("p4", payout.StatusPending)).Error
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	err = db.Create(newPayout("p5", payout.StatusCompleted)).Error
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}
