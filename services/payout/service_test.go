package payout

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"bringitback-controlplane/pkg/accesscontrol"
	"bringitback-controlplane/pkg/config"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/featureflags"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/notification"
	"bringitback-controlplane/services/solution"
	"bringitback-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (r *recordingEmitter) Emit(ctx context.Context, ns ...*notification.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ns...)
}

func (r *recordingEmitter) recipients(typ notification.Type) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		if n.Type == typ {
			out = append(out, n.UserID)
		}
	}
	return out
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	emitter *recordingEmitter
}

func newFixture(t *testing.T, flags featureflags.FeatureFlag) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &campaign.Campaign{}, &solution.Solution{}, &Payout{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	admins, err := accesscontrol.NewInMemory("admin-1", "admin-2")
	require.NoError(t, err)

	em := &recordingEmitter{}
	svc := NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Seq:     &testutil.Sequence{},
		Flags:   flags,
		Admins:  admins,
		Emitter: em,
		Config:  &config.Config{},
	})
	return &fixture{svc: svc, db: db, emitter: em}
}

// accepted seeds a completed campaign with the given funding and an accepted
// solution s1 submitted by "e".
func (f *fixture) accepted(t *testing.T, funding string) {
	t.Helper()
	require.NoError(t, f.db.Create(&campaign.Campaign{
		ID: "c1", Code: "CMP-1", Slug: "c1", CreatorID: "creator", Title: "Reader",
		Status: campaign.StatusCompleted, FundingCurrent: decimal.RequireFromString(funding),
	}).Error)
	require.NoError(t, f.db.Create(&solution.Solution{
		ID: "s1", CampaignID: "c1", SubmitterID: "e", Title: "Revival", ReferenceURL: "https://example.com",
		Status: solution.StatusAccepted, ApprovalCount: 2,
	}).Error)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeFees(t *testing.T) {
	got := ComputeFees(dec("1000"), config.DefaultFeeSchedule())
	require.True(t, got.PlatformFee.Equal(dec("50")), got.PlatformFee.String())
	require.True(t, got.ProcessingFee.Equal(dec("29.30")), got.ProcessingFee.String())
	require.True(t, got.Net.Equal(dec("920.70")), got.Net.String())

	odd := ComputeFees(dec("33.33"), config.DefaultFeeSchedule())
	require.True(t, odd.PlatformFee.Equal(dec("1.67")), odd.PlatformFee.String())
	require.True(t, odd.ProcessingFee.Equal(dec("1.27")), odd.ProcessingFee.String())
	require.True(t, odd.Gross.Equal(odd.PlatformFee.Add(odd.ProcessingFee).Add(odd.Net)))

	tiny := ComputeFees(dec("0.25"), config.DefaultFeeSchedule())
	require.True(t, tiny.Net.IsNegative())
}

func TestRequestPayout(t *testing.T) {
	f := newFixture(t, featureflags.Static{})
	f.accepted(t, "1000")
	ctx := context.Background()

	p, err := f.svc.RequestPayout(ctx, "s1", "e")
	require.NoError(t, err)
	require.Equal(t, StatusPending, p.Status)
	require.Equal(t, "PAY-TEST-0001", p.Code)
	require.Equal(t, "c1", p.CampaignID)
	require.True(t, p.Gross.Equal(dec("1000")))
	require.True(t, p.PlatformFee.Equal(dec("50")))
	require.True(t, p.ProcessingFee.Equal(dec("29.30")))
	require.True(t, p.Net.Equal(dec("920.70")))

	var stored Payout
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	require.True(t, stored.Net.Equal(dec("920.70")))

	_, err = f.svc.RequestPayout(ctx, "s1", "e")
	require.Equal(t, "PAYOUT_ALREADY_REQUESTED", errutil.ReasonOf(err))
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	require.ElementsMatch(t, []string{"e", "admin-1", "admin-2"}, f.emitter.recipients(notification.TypePayoutRequested))
}

func TestGrossIsFundingAtRequestTime(t *testing.T) {
	f := newFixture(t, featureflags.Static{})
	f.accepted(t, "1000")

	require.NoError(t, f.db.Model(&campaign.Campaign{}).Where("id = ?", "c1").Update("funding_current", dec("1250.50")).Error)

	p, err := f.svc.RequestPayout(context.Background(), "s1", "e")
	require.NoError(t, err)
	require.True(t, p.Gross.Equal(dec("1250.50")), p.Gross.String())
	require.True(t, p.Net.Equal(p.Gross.Sub(p.PlatformFee).Sub(p.ProcessingFee)))
}

func TestRequestPayoutPreconditions(t *testing.T) {
	f := newFixture(t, featureflags.Static{})
	f.accepted(t, "1000")
	ctx := context.Background()

	_, err := f.svc.RequestPayout(ctx, "missing", "e")
	require.Equal(t, "SOLUTION_NOT_FOUND", errutil.ReasonOf(err))

	_, err = f.svc.RequestPayout(ctx, "s1", "someone-else")
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))

	require.NoError(t, f.db.Create(&solution.Solution{
		ID: "s2", CampaignID: "c1", SubmitterID: "z", Title: "Pending", ReferenceURL: "https://example.org", Status: solution.StatusPending,
	}).Error)
	_, err = f.svc.RequestPayout(ctx, "s2", "z")
	require.Equal(t, "SOLUTION_NOT_ACCEPTED", errutil.ReasonOf(err))
}

func TestRequestPayoutBelowMinimum(t *testing.T) {
	f := newFixture(t, featureflags.Static{})
	f.accepted(t, "1.20")

	_, err := f.svc.RequestPayout(context.Background(), "s1", "e")
	require.Equal(t, "PAYOUT_BELOW_MINIMUM", errutil.ReasonOf(err))

	var n int64
	require.NoError(t, f.db.Model(&Payout{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestRequestPayoutPaused(t *testing.T) {
	f := newFixture(t, featureflags.Static{featureflags.PayoutRequests: false})
	f.accepted(t, "1000")

	_, err := f.svc.RequestPayout(context.Background(), "s1", "e")
	require.Equal(t, "PAYOUTS_PAUSED", errutil.ReasonOf(err))
	require.True(t, errutil.StatusOf(err).Retryable())
}

func TestConcurrentRequestsCreateOnePayout(t *testing.T) {
	f := newFixture(t, featureflags.Static{})
	f.accepted(t, "500")

	var (
		mu       sync.Mutex
		created  int
		rejected int
	)
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := f.svc.RequestPayout(context.Background(), "s1", "e")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errutil.ReasonOf(err) == "PAYOUT_ALREADY_REQUESTED":
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, created)
	require.Equal(t, 5, rejected)

	var pending int64
	require.NoError(t, f.db.Model(&Payout{}).Where("solution_id = ? AND status = ?", "s1", StatusPending).Count(&pending).Error)
	require.EqualValues(t, 1, pending)
}

func TestFailedPayoutCanBeRequestedAgain(t *testing.T) {
	f := newFixture(t, featureflags.Static{})
	f.accepted(t, "1000")
	ctx := context.Background()

	first, err := f.svc.RequestPayout(ctx, "s1", "e")
	require.NoError(t, err)

	failed, err := f.svc.MarkFailed(ctx, first.ID, "admin-1", " bank rejected ")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Equal(t, "bank rejected", failed.FailureReason)
	require.Equal(t, []string{"e"}, f.emitter.recipients(notification.TypePayoutFailed))

	_, err = f.svc.MarkCompleted(ctx, first.ID, "admin-1")
	require.Equal(t, "PAYOUT_NOT_PENDING", errutil.ReasonOf(err))

	second, err := f.svc.RequestPayout(ctx, "s1", "e")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	done, err := f.svc.MarkCompleted(ctx, second.ID, "admin-2")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, "admin-2", done.ProcessedBy)
	require.NotNil(t, done.ProcessedAt)

	_, err = f.svc.RequestPayout(ctx, "s1", "e")
	require.Equal(t, "PAYOUT_ALREADY_REQUESTED", errutil.ReasonOf(err))

	_, err = f.svc.MarkCompleted(ctx, "missing", "admin-1")
	require.Equal(t, "PAYOUT_NOT_FOUND", errutil.ReasonOf(err))
}

func TestListForSolution(t *testing.T) {
	f := newFixture(t, featureflags.Static{})
	f.accepted(t, "1000")
	ctx := context.Background()

	_, err := f.svc.RequestPayout(ctx, "s1", "e")
	require.NoError(t, err)

	items, err := f.svc.ListForSolution(ctx, "s1", "e", false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = f.svc.ListForSolution(ctx, "s1", "admin-1", true)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = f.svc.ListForSolution(ctx, "s1", "stranger", false)
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))

	queue, info, err := f.svc.List(ctx, ListRequest{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.False(t, info.HasMore)
}
