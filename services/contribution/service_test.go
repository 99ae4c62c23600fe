package contribution

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"bringitback-controlplane/pkg/db/pagination"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/payment"
	"bringitback-controlplane/pkg/payment/mock"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/notification"
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

func (r *recordingEmitter) count(typ notification.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	gateway *mock.MockGateway
	emitter *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &campaign.Campaign{}, &Contribution{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	gw := mock.NewMockGateway(gomock.NewController(t))
	em := &recordingEmitter{}
	svc := NewService(ServiceParams{DB: db, Node: node, Seq: &testutil.Sequence{}, Gateway: gw, Emitter: em})
	return &fixture{svc: svc, db: db, gateway: gw, emitter: em}
}

func (f *fixture) campaign(t *testing.T, id string, status campaign.Status) {
	t.Helper()
	require.NoError(t, f.db.Create(&campaign.Campaign{
		ID:             id,
		Code:           "CMP-" + id,
		Slug:           id,
		CreatorID:      "creator",
		Title:          "Campaign " + id,
		Status:         status,
		FundingCurrent: decimal.Zero,
	}).Error)
}

func (f *fixture) completed(t *testing.T, campaignID, userID, amount string) *Contribution {
	t.Helper()
	c := &Contribution{
		ID:            campaignID + "-" + userID + "-" + amount,
		CampaignID:    campaignID,
		UserID:        userID,
		Amount:        decimal.RequireFromString(amount),
		Status:        StatusPending,
		CorrelationID: "corr-" + campaignID + "-" + userID + "-" + amount,
	}
	require.NoError(t, f.db.Create(c).Error)
	out, err := f.svc.ConfirmPledge(context.Background(), c.CorrelationID, "tx-"+c.ID)
	require.NoError(t, err)
	return out
}

func (f *fixture) funding(t *testing.T, campaignID string) decimal.Decimal {
	t.Helper()
	var c campaign.Campaign
	require.NoError(t, f.db.First(&c, "id = ?", campaignID).Error)
	return c.FundingCurrent
}

func TestRecordPledgeRejectsInvalidAmount(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)

	for _, amount := range []string{"0", "-5", "10.001"} {
		_, err := f.svc.RecordPledge(context.Background(), PledgeRequest{
			CampaignID: "c1",
			UserID:     "u1",
			Amount:     decimal.RequireFromString(amount),
		})
		require.Equal(t, "INVALID_AMOUNT", errutil.ReasonOf(err), amount)
		require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
	}
}

func TestRecordPledgeRequiresActiveCampaign(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "draft", campaign.StatusDraft)
	f.campaign(t, "done", campaign.StatusCompleted)

	for _, id := range []string{"draft", "done"} {
		_, err := f.svc.RecordPledge(context.Background(), PledgeRequest{CampaignID: id, UserID: "u1", Amount: decimal.NewFromInt(10)})
		require.Equal(t, "CAMPAIGN_NOT_FUNDABLE", errutil.ReasonOf(err))
		require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
	}

	_, err := f.svc.RecordPledge(context.Background(), PledgeRequest{CampaignID: "nope", UserID: "u1", Amount: decimal.NewFromInt(10)})
	require.Equal(t, "CAMPAIGN_NOT_FOUND", errutil.ReasonOf(err))
}

func TestRecordPledgeOpensCharge(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)

	f.gateway.EXPECT().ValidateAmount(gomock.Any()).Return(nil)
	f.gateway.EXPECT().
		CreateCharge(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
			require.Equal(t, "PLG-TEST-0001", req.OrderID)
			require.True(t, req.Amount.Equal(decimal.NewFromInt(25)))
			return &payment.Charge{OrderID: req.OrderID, Token: "tok", RedirectURL: "https://pay.example/tok"}, nil
		})

	out, err := f.svc.RecordPledge(context.Background(), PledgeRequest{
		CampaignID: "c1",
		UserID:     "u1",
		Amount:     decimal.NewFromInt(25),
		Anonymous:  true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Status)
	require.Equal(t, "PLG-TEST-0001", out.CorrelationID)
	require.Equal(t, "https://pay.example/tok", out.RedirectURL)
	require.True(t, f.funding(t, "c1").IsZero())

	n, err := f.svc.Electorate(context.Background(), "c1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecordPledgeGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)

	f.gateway.EXPECT().ValidateAmount(gomock.Any()).Return(nil)
	f.gateway.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	_, err := f.svc.RecordPledge(context.Background(), PledgeRequest{CampaignID: "c1", UserID: "u1", Amount: decimal.NewFromInt(10)})
	require.Equal(t, errutil.StatusBadGateway, errutil.StatusOf(err))

	var stored Contribution
	require.NoError(t, f.db.First(&stored, "correlation_id = ?", "PLG-TEST-0001").Error)
	require.Equal(t, StatusFailed, stored.Status)
}

func TestRecordPledgeGatewayAmountRuleWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)

	amount := decimal.RequireFromString("10.50")
	f.gateway.EXPECT().ValidateAmount(amount).
		Return(errutil.ValidationFailed("whole units only", nil, errutil.WithReason("INVALID_AMOUNT")))

	_, err := f.svc.RecordPledge(context.Background(), PledgeRequest{CampaignID: "c1", UserID: "u1", Amount: amount})
	require.Equal(t, "INVALID_AMOUNT", errutil.ReasonOf(err))
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	var rows int64
	require.NoError(t, f.db.Model(&Contribution{}).Count(&rows).Error)
	require.Zero(t, rows)

	// the order id sequence was not consumed
	next, err := f.svc.seq.NextPledgeOrderID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "PLG-TEST-0001", next)
}

func TestConfirmPledgeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)

	require.NoError(t, f.db.Create(&Contribution{
		ID:            "k1",
		CampaignID:    "c1",
		UserID:        "u1",
		Amount:        decimal.RequireFromString("40.50"),
		Status:        StatusPending,
		CorrelationID: "cs_123",
	}).Error)

	ctx := context.Background()
	first, err := f.svc.ConfirmPledge(ctx, "cs_123", "tx-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, first.Status)

	second, err := f.svc.ConfirmPledge(ctx, "cs_123", "tx-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, second.Status)

	require.True(t, f.funding(t, "c1").Equal(decimal.RequireFromString("40.50")))
	require.Equal(t, 1, f.emitter.count(notification.TypeContributionConfirmed))
}

func TestConcurrentConfirmationsCountOnce(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)

	require.NoError(t, f.db.Create(&Contribution{
		ID:            "k1",
		CampaignID:    "c1",
		UserID:        "u1",
		Amount:        decimal.NewFromInt(100),
		Status:        StatusPending,
		CorrelationID: "cs_dup",
	}).Error)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.svc.ConfirmPledge(context.Background(), "cs_dup", "tx")
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.True(t, f.funding(t, "c1").Equal(decimal.NewFromInt(100)))
	require.Equal(t, 1, f.emitter.count(notification.TypeContributionConfirmed))
}

func TestConfirmUnknownCorrelation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ConfirmPledge(context.Background(), "missing", "")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
	require.Equal(t, "CONTRIBUTION_NOT_FOUND", errutil.ReasonOf(err))
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)
	ctx := context.Background()

	a := f.completed(t, "c1", "u1", "30")
	f.completed(t, "c1", "u2", "20")
	require.True(t, f.funding(t, "c1").Equal(decimal.NewFromInt(50)))

	refunded, err := f.svc.Refund(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, refunded.Status)
	require.True(t, f.funding(t, "c1").Equal(decimal.NewFromInt(20)))

	_, err = f.svc.Refund(ctx, a.ID)
	require.Equal(t, "NOT_REFUNDABLE", errutil.ReasonOf(err))
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
	require.True(t, f.funding(t, "c1").Equal(decimal.NewFromInt(20)))

	n, err := f.svc.Electorate(ctx, "c1")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, f.db.Create(&Contribution{
		ID: "pending", CampaignID: "c1", UserID: "u3", Amount: decimal.NewFromInt(5), Status: StatusPending, CorrelationID: "cs_pending",
	}).Error)
	_, err = f.svc.Refund(ctx, "pending")
	require.Equal(t, "NOT_REFUNDABLE", errutil.ReasonOf(err))

	var c campaign.Campaign
	require.NoError(t, f.db.First(&c, "id = ?", "c1").Error)
	require.Equal(t, campaign.StatusActive, c.Status)
}

func TestFailPledge(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&Contribution{
		ID: "p1", CampaignID: "c1", UserID: "u1", Amount: decimal.NewFromInt(15), Status: StatusPending, CorrelationID: "PLG-1",
	}).Error)

	require.NoError(t, f.svc.FailPledge(ctx, "PLG-1"))
	require.NoError(t, f.svc.FailPledge(ctx, "PLG-1"))

	var stored Contribution
	require.NoError(t, f.db.First(&stored, "id = ?", "p1").Error)
	require.Equal(t, StatusFailed, stored.Status)

	// A late settlement for a failed order does not count.
	out, err := f.svc.ConfirmPledge(ctx, "PLG-1", "tx-late")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, out.Status)
	require.True(t, f.funding(t, "c1").IsZero())
	require.Zero(t, f.emitter.count(notification.TypeContributionConfirmed))

	err = f.svc.FailPledge(ctx, "PLG-missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestRefundByCorrelationFloorsFunding(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)
	ctx := context.Background()

	c := f.completed(t, "c1", "u1", "40")
	require.NoError(t, f.db.Model(&campaign.Campaign{}).Where("id = ?", "c1").
		Update("funding_current", decimal.NewFromInt(25)).Error)

	refunded, err := f.svc.RefundByCorrelation(ctx, c.CorrelationID)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, refunded.Status)
	require.True(t, f.funding(t, "c1").IsZero())
}

func TestElectorateCountsDistinctCompletedContributors(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)
	f.campaign(t, "c2", campaign.StatusActive)
	ctx := context.Background()

	f.completed(t, "c1", "u1", "10")
	f.completed(t, "c1", "u1", "15")
	f.completed(t, "c1", "u2", "5")
	f.completed(t, "c2", "u3", "5")
	require.NoError(t, f.db.Create(&Contribution{
		ID: "p", CampaignID: "c1", UserID: "u4", Amount: decimal.NewFromInt(5), Status: StatusPending, CorrelationID: "cs_p",
	}).Error)

	n, err := ElectorateSize(ctx, f.db, "c1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	ok, err := IsContributor(ctx, f.db, "c1", "u1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = IsContributor(ctx, f.db, "c1", "u4")
	require.NoError(t, err)
	require.False(t, ok)

	require.True(t, f.funding(t, "c1").Equal(decimal.NewFromInt(30)))
}

func TestHandleGatewayNotification(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&Contribution{
		ID: "k1", CampaignID: "c1", UserID: "u1", Amount: decimal.NewFromInt(75), Status: StatusPending, CorrelationID: "PLG-1",
	}).Error)

	gomock.InOrder(
		f.gateway.EXPECT().Status(gomock.Any(), "PLG-1").
			Return(&payment.ChargeStatus{OrderID: "PLG-1", TransactionID: "tx-9", State: payment.StateSettled, RawStatus: "settlement"}, nil),
		f.gateway.EXPECT().Status(gomock.Any(), "PLG-1").
			Return(&payment.ChargeStatus{OrderID: "PLG-1", TransactionID: "tx-9", State: payment.StateRefunded, RawStatus: "refund"}, nil).
			Times(2),
	)

	require.NoError(t, f.svc.HandleGatewayNotification(ctx, "PLG-1"))
	require.True(t, f.funding(t, "c1").Equal(decimal.NewFromInt(75)))

	var stored Contribution
	require.NoError(t, f.db.First(&stored, "id = ?", "k1").Error)
	require.Equal(t, "tx-9", stored.GatewayTransactionID)
	require.NotEmpty(t, stored.GatewayPayload)

	require.NoError(t, f.svc.HandleGatewayNotification(ctx, "PLG-1"))
	require.True(t, f.funding(t, "c1").IsZero())

	// redelivered refund notification
	require.NoError(t, f.svc.HandleGatewayNotification(ctx, "PLG-1"))
	require.True(t, f.funding(t, "c1").IsZero())

	err := f.svc.HandleGatewayNotification(ctx, "unknown")
	require.Equal(t, "CONTRIBUTION_NOT_FOUND", errutil.ReasonOf(err))
}

func TestListHidesAnonymousContributors(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", campaign.StatusActive)

	f.completed(t, "c1", "u1", "10")
	require.NoError(t, f.db.Model(&Contribution{}).Where("user_id = ?", "u1").Update("anonymous", true).Error)
	f.completed(t, "c1", "u2", "10")

	items, _, err := f.svc.List(context.Background(), "c1", pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)

	users := map[string]bool{}
	for _, c := range items {
		users[c.UserID] = true
	}
	require.True(t, users[""])
	require.True(t, users["u2"])
	require.False(t, users["u1"])
}
