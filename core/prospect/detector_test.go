package prospect_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkamba/kanisa/core/prospect"
	inmemdb "github.com/tmkamba/kanisa/storage/database/inmem"
	testutil "github.com/tmkamba/kanisa/tests"
)

type schedulerMock struct {
	calls []schedulerCall
}

type schedulerCall struct {
	prospectID string
	assignee   string
	cycle      int
	due        time.Time
}

func (s *schedulerMock) EnsureRecoveryTask(_ context.Context, prospectID, _, assignee string, cycle int, due time.Time) error {
	s.calls = append(s.calls, schedulerCall{prospectID, assignee, cycle, due})
	return nil
}

func detectorSetup(t *testing.T) (*prospect.Service, prospect.Repository, *schedulerMock) {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewProspectRepository(db)
	sched := &schedulerMock{}
	svc := prospect.NewService(repo, testutil.NewFakeDirectory(), testutil.NewConfig(), testutil.NewLogger())
	svc.SetFollowUpScheduler(sched)
	return svc, repo, sched
}

func TestService_DetectDropOffs(t *testing.T) {
	conf := testutil.NewConfig()
	thresholds := prospect.Thresholds(conf.Detector)

	t.Run("flags past-threshold prospects only", func(t *testing.T) {
		svc, repo, sched := detectorSetup(t)
		ctx := context.Background()

		// invited 2024-01-01, attended 2024-01-08, then silence; with a 21-day
		// ATTENDED window the prospect is overdue by day 29.
		attended := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
		quiet := testutil.CreateProspect(t, repo, "Quiet", "inviter-1", "c1", prospect.StageAttended, attended)

		// active prospect, last seen 3 days ago
		asOf := time.Date(2024, 2, 8, 0, 0, 0, 0, time.UTC)
		testutil.CreateProspect(t, repo, "Active", "inviter-2", "c1", prospect.StageAttended, asOf.AddDate(0, 0, -3))

		flagged, err := svc.DetectDropOffs(ctx, thresholds, asOf)
		require.NoError(t, err)
		require.Len(t, flagged, 1)

		d := flagged[0]
		assert.Equal(t, quiet.ID, d.ProspectID)
		assert.Equal(t, prospect.StageAttended, d.DropOffStage)
		assert.Equal(t, 31, d.DaysInactive)
		assert.Equal(t, prospect.DropOffNoContact, d.Reason)
		assert.Equal(t, asOf, d.DropOffDate)

		got, err := repo.GetProspectByID(ctx, quiet.ID)
		require.NoError(t, err)
		assert.True(t, got.IsDroppedOff)
		assert.Equal(t, prospect.StageAttended, got.DropOffStage)

		// a recovery task is scheduled for the inviter
		require.Len(t, sched.calls, 1)
		assert.Equal(t, quiet.ID, sched.calls[0].prospectID)
		assert.Equal(t, "inviter-1", sched.calls[0].assignee)
		assert.Equal(t, 1, sched.calls[0].cycle)
		assert.Equal(t, asOf.Add(conf.Detector.FollowUpDueIn), sched.calls[0].due)
	})

	t.Run("scan is idempotent", func(t *testing.T) {
		svc, repo, sched := detectorSetup(t)
		ctx := context.Background()

		testutil.CreateProspect(t, repo, "Quiet", "inviter-1", "c1", prospect.StageInvited,
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		asOf := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

		first, err := svc.DetectDropOffs(ctx, thresholds, asOf)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := svc.DetectDropOffs(ctx, thresholds, asOf)
		require.NoError(t, err)
		assert.Empty(t, second)

		dropOffs, err := repo.QueryDropOffs(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, dropOffs, 1, "re-running the scan must not create a second drop-off")
		assert.Len(t, sched.calls, 1)
	})

	t.Run("converted prospects are never flagged", func(t *testing.T) {
		svc, repo, _ := detectorSetup(t)

		testutil.CreateProspect(t, repo, "Done", "inviter-1", "c1", prospect.StageConverted,
			time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))

		flagged, err := svc.DetectDropOffs(context.Background(), thresholds, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Empty(t, flagged)
	})

	t.Run("cycle count escalates on repeat drop-offs", func(t *testing.T) {
		svc, repo, sched := detectorSetup(t)
		ctx := context.Background()

		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		p := testutil.CreateProspect(t, repo, "Relapse", "inviter-1", "c1", prospect.StageInvited, start)

		asOf1 := start.AddDate(0, 0, 20)
		flagged, err := svc.DetectDropOffs(ctx, thresholds, asOf1)
		require.NoError(t, err)
		require.Len(t, flagged, 1)

		// forward activity recovers the prospect...
		_, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageAttended, ActivityDate: asOf1.AddDate(0, 0, 2)})
		require.NoError(t, err)

		// ...then the prospect goes quiet again
		asOf2 := asOf1.AddDate(0, 0, 30)
		flagged, err = svc.DetectDropOffs(ctx, thresholds, asOf2)
		require.NoError(t, err)
		require.Len(t, flagged, 1)

		require.Len(t, sched.calls, 2)
		assert.Equal(t, 1, sched.calls[0].cycle)
		assert.Equal(t, 2, sched.calls[1].cycle)
	})
}
