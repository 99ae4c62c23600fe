package voting

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/contribution"
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

var models = []any{&campaign.Campaign{}, &contribution.Contribution{}, &solution.Solution{}, &solution.Vote{}}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewTestDB(t, models...))
}

func newFixtureOn(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	em := &recordingEmitter{}
	return &fixture{svc: NewService(ServiceParams{DB: db, Node: node, Emitter: em}), db: db, emitter: em}
}

// scenario seeds campaign c1 owned by "creator" with the given contributors
// and a PENDING solution s1 submitted by "e".
func (f *fixture) scenario(t *testing.T, contributors ...string) {
	t.Helper()
	require.NoError(t, f.db.Create(&campaign.Campaign{
		ID: "c1", Code: "CMP-1", Slug: "c1", CreatorID: "creator", Title: "Reader", Status: campaign.StatusActive, FundingCurrent: decimal.Zero,
	}).Error)
	for _, u := range contributors {
		f.contribute(t, u)
	}
	require.NoError(t, f.db.Create(&solution.Solution{
		ID: "s1", CampaignID: "c1", SubmitterID: "e", Title: "Revival", ReferenceURL: "https://example.com",
		Status: solution.StatusPending, VotersAtSubmission: int64(len(contributors)),
	}).Error)
}

func (f *fixture) contribute(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&contribution.Contribution{
		ID: "k-" + userID, CampaignID: "c1", UserID: userID, Amount: decimal.NewFromInt(10),
		Status: contribution.StatusCompleted, CorrelationID: "corr-" + userID,
	}).Error)
}

func (f *fixture) statuses(t *testing.T) (solution.Status, campaign.Status) {
	t.Helper()
	var s solution.Solution
	require.NoError(t, f.db.First(&s, "id = ?", "s1").Error)
	var c campaign.Campaign
	require.NoError(t, f.db.First(&c, "id = ?", "c1").Error)
	return s.Status, c.Status
}

func TestThresholdAcceptsAndCompletesCampaign(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b", "d")
	ctx := context.Background()

	res, err := f.svc.CastVote(ctx, "s1", "a", solution.VoteApprove)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.ApprovalCount)
	require.EqualValues(t, 3, res.ElectorateSize)
	require.EqualValues(t, 33, res.ApprovalPercentage)
	require.False(t, res.Accepted)
	require.Equal(t, solution.StatusPending, res.SolutionStatus)

	res, err = f.svc.CastVote(ctx, "s1", "b", solution.VoteApprove)
	require.NoError(t, err)
	require.EqualValues(t, 2, res.ApprovalCount)
	require.EqualValues(t, 67, res.ApprovalPercentage)
	require.True(t, res.Accepted)
	require.Equal(t, solution.StatusAccepted, res.SolutionStatus)

	sol, cmp := f.statuses(t)
	require.Equal(t, solution.StatusAccepted, sol)
	require.Equal(t, campaign.StatusCompleted, cmp)

	require.Equal(t, []string{"e"}, f.emitter.recipients(notification.TypeSolutionAccepted))
	require.Equal(t, []string{"creator"}, f.emitter.recipients(notification.TypeCampaignCompleted))
}

func TestLateContributorShiftsDenominator(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b", "d")
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, "s1", "a", solution.VoteApprove)
	require.NoError(t, err)

	f.contribute(t, "f")

	res, err := f.svc.CastVote(ctx, "s1", "b", solution.VoteApprove)
	require.NoError(t, err)
	require.EqualValues(t, 2, res.ApprovalCount)
	require.EqualValues(t, 4, res.ElectorateSize)
	require.EqualValues(t, 50, res.ApprovalPercentage)
	require.True(t, res.Accepted)
}

func TestLateContributorsCanBlockAcceptance(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b", "d")
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, "s1", "a", solution.VoteApprove)
	require.NoError(t, err)
	f.contribute(t, "f")
	f.contribute(t, "g")

	res, err := f.svc.CastVote(ctx, "s1", "b", solution.VoteApprove)
	require.NoError(t, err)
	require.EqualValues(t, 5, res.ElectorateSize)
	require.EqualValues(t, 40, res.ApprovalPercentage)
	require.False(t, res.Accepted)
}

func TestChangedVoteOverwrites(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b", "d")
	ctx := context.Background()

	res, err := f.svc.CastVote(ctx, "s1", "a", solution.VoteApprove)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.ApprovalCount)
	firstID := res.Vote.ID

	res, err = f.svc.CastVote(ctx, "s1", "a", solution.VoteReject)
	require.NoError(t, err)
	require.EqualValues(t, 0, res.ApprovalCount)
	require.EqualValues(t, 1, res.RejectCount)
	require.Equal(t, firstID, res.Vote.ID)
	require.Equal(t, solution.VoteReject, res.Vote.Value)

	var rows int64
	require.NoError(t, f.db.Model(&solution.Vote{}).Where("solution_id = ? AND voter_id = ?", "s1", "a").Count(&rows).Error)
	require.EqualValues(t, 1, rows)

	var s solution.Solution
	require.NoError(t, f.db.First(&s, "id = ?", "s1").Error)
	require.EqualValues(t, 0, s.ApprovalCount)

	votes, err := f.svc.Votes(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, solution.VoteReject, votes[0].Value)
}

func TestTallyMatchesRecordedApprovals(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b", "d", "g", "h", "i", "j")
	ctx := context.Background()

	steps := []struct {
		voter string
		value solution.VoteValue
	}{
		{"a", solution.VoteApprove},
		{"b", solution.VoteReject},
		{"a", solution.VoteReject},
		{"d", solution.VoteApprove},
		{"b", solution.VoteApprove},
		{"a", solution.VoteApprove},
	}

	for _, step := range steps {
		res, err := f.svc.CastVote(ctx, "s1", step.voter, step.value)
		require.NoError(t, err)

		var approvals int64
		require.NoError(t, f.db.Model(&solution.Vote{}).
			Where("solution_id = ? AND value = ?", "s1", solution.VoteApprove).
			Count(&approvals).Error)
		require.Equal(t, approvals, res.ApprovalCount)

		var voters int64
		require.NoError(t, f.db.Model(&solution.Vote{}).Where("solution_id = ?", "s1").Count(&voters).Error)
		require.GreaterOrEqual(t, res.ElectorateSize, voters)
	}
}

func TestPreconditions(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b", "d", "e")
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, "missing", "a", solution.VoteApprove)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	_, err = f.svc.CastVote(ctx, "s1", "stranger", solution.VoteApprove)
	require.Equal(t, "NOT_ELIGIBLE", errutil.ReasonOf(err))
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))

	_, err = f.svc.CastVote(ctx, "s1", "e", solution.VoteApprove)
	require.Equal(t, "SELF_VOTE_FORBIDDEN", errutil.ReasonOf(err))

	_, err = f.svc.CastVote(ctx, "s1", "a", solution.VoteValue("MAYBE"))
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	require.NoError(t, f.db.Model(&campaign.Campaign{}).Where("id = ?", "c1").Update("status", campaign.StatusCancelled).Error)
	_, err = f.svc.CastVote(ctx, "s1", "a", solution.VoteApprove)
	require.Equal(t, "CAMPAIGN_NOT_ACTIVE", errutil.ReasonOf(err))

	require.NoError(t, f.db.Model(&solution.Solution{}).Where("id = ?", "s1").Update("status", solution.StatusRejected).Error)
	_, err = f.svc.CastVote(ctx, "s1", "a", solution.VoteApprove)
	require.Equal(t, "VOTING_CLOSED", errutil.ReasonOf(err))
}

func TestVoteOnAcceptedSolutionIsClosed(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b", "d")
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, "s1", "b", solution.VoteApprove)
	require.NoError(t, err)
	_, err = f.svc.CastVote(ctx, "s1", "d", solution.VoteApprove)
	require.NoError(t, err)

	_, err = f.svc.CastVote(ctx, "s1", "a", solution.VoteReject)
	require.Equal(t, "VOTING_CLOSED", errutil.ReasonOf(err))
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
}

func TestConcurrentVotesAcceptOnce(t *testing.T) {
	assertSingleAcceptance(t, newFixture(t))
}

// assertSingleAcceptance races six approvals on a three-vote quorum.
func assertSingleAcceptance(t *testing.T, f *fixture) {
	t.Helper()
	voters := []string{"a", "b", "d", "g", "h", "i"}
	f.scenario(t, voters...)

	var (
		accepted atomic.Int32
		closed   atomic.Int32
	)
	var g errgroup.Group
	for _, voter := range voters {
		g.Go(func() error {
			res, err := f.svc.CastVote(context.Background(), "s1", voter, solution.VoteApprove)
			if errutil.ReasonOf(err) == "VOTING_CLOSED" {
				closed.Add(1)
				return nil
			}
			if err != nil {
				return err
			}
			if res.Accepted {
				accepted.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.EqualValues(t, 1, accepted.Load())
	require.EqualValues(t, 3, closed.Load())
	require.Len(t, f.emitter.recipients(notification.TypeCampaignCompleted), 1)

	sol, cmp := f.statuses(t)
	require.Equal(t, solution.StatusAccepted, sol)
	require.Equal(t, campaign.StatusCompleted, cmp)
}

func TestSecondSolutionCannotBeAccepted(t *testing.T) {
	f := newFixture(t)
	f.scenario(t, "a", "b")
	require.NoError(t, f.db.Create(&solution.Solution{
		ID: "s2", CampaignID: "c1", SubmitterID: "z", Title: "Other", ReferenceURL: "https://example.org", Status: solution.StatusPending,
	}).Error)
	ctx := context.Background()

	res, err := f.svc.CastVote(ctx, "s1", "a", solution.VoteApprove)
	require.NoError(t, err)
	require.True(t, res.Accepted)

	_, err = f.svc.CastVote(ctx, "s2", "b", solution.VoteApprove)
	require.Equal(t, "CAMPAIGN_NOT_ACTIVE", errutil.ReasonOf(err))

	var accepted int64
	require.NoError(t, f.db.Model(&solution.Solution{}).Where("campaign_id = ? AND status = ?", "c1", solution.StatusAccepted).Count(&accepted).Error)
	require.EqualValues(t, 1, accepted)
}
