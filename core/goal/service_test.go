package goal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/goal"
	inmemdb "github.com/tmkamba/kanisa/storage/database/inmem"
	testutil "github.com/tmkamba/kanisa/tests"
)

func setup(t *testing.T) (*goal.Service, *conversion.Service) {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	convRepo := inmemdb.NewConversionRepository(db)
	svc := goal.NewService(inmemdb.NewGoalRepository(db), convRepo)
	convSvc := conversion.NewService(convRepo, svc, testutil.NewLogger())
	return svc, convSvc
}

func recordConversion(t *testing.T, svc *conversion.Service, cluster string, date time.Time) {
	t.Helper()
	_, err := svc.Record(context.Background(), conversion.NewConversion{
		PersonID:       "person-" + date.Format("20060102"),
		ConvertedBy:    "m1",
		Cluster:        cluster,
		ConversionDate: date,
	})
	require.NoError(t, err)
}

func TestService_Create(t *testing.T) {
	svc, convSvc := setup(t)
	ctx := context.Background()

	t.Run("starts at zero", func(t *testing.T) {
		g, err := svc.Create(ctx, goal.NewGoal{Cluster: "c1", ClusterName: "Nairobi West", Year: 2024, TargetConversions: 10})
		require.NoError(t, err)
		assert.Equal(t, goal.StatusNotStarted, g.Status)
		assert.Zero(t, g.AchievedConversions)
		assert.Zero(t, g.ProgressPercentage)
	})

	t.Run("counts pre-existing conversions", func(t *testing.T) {
		recordConversion(t, convSvc, "c2", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
		recordConversion(t, convSvc, "c2", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

		g, err := svc.Create(ctx, goal.NewGoal{Cluster: "c2", Year: 2024, TargetConversions: 8})
		require.NoError(t, err)
		assert.Equal(t, 2, g.AchievedConversions)
		assert.Equal(t, goal.StatusInProgress, g.Status)
		assert.Equal(t, 25.0, g.ProgressPercentage)
	})

	t.Run("rejects a duplicate cluster/year", func(t *testing.T) {
		_, err := svc.Create(ctx, goal.NewGoal{Cluster: "c1", Year: 2024, TargetConversions: 5})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, goal.ErrExists, vErr.Err)

		// same cluster, another year is fine
		_, err = svc.Create(ctx, goal.NewGoal{Cluster: "c1", Year: 2025, TargetConversions: 5})
		assert.NoError(t, err)
	})
}

func TestService_Refresh(t *testing.T) {
	svc, convSvc := setup(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, goal.NewGoal{Cluster: "c1", Year: 2024, TargetConversions: 2})
	require.NoError(t, err)

	// conversions recorded through the service refresh the goal on their own
	recordConversion(t, convSvc, "c1", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	g, err = svc.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.AchievedConversions)
	assert.Equal(t, goal.StatusInProgress, g.Status)
	assert.Equal(t, 50.0, g.ProgressPercentage)

	// exceeding the target completes the goal and caps the percentage
	recordConversion(t, convSvc, "c1", time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	recordConversion(t, convSvc, "c1", time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC))
	g, err = svc.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, g.AchievedConversions)
	assert.Equal(t, goal.StatusCompleted, g.Status)
	assert.Equal(t, 100.0, g.ProgressPercentage)

	// conversions in another year do not touch this goal
	recordConversion(t, convSvc, "c1", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
	g, err = svc.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, g.AchievedConversions)

	// clusters without a goal are ignored
	assert.NoError(t, svc.Refresh(ctx, "no-goal-cluster", 2024))
}

func TestService_Update(t *testing.T) {
	svc, convSvc := setup(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, goal.NewGoal{Cluster: "c1", Year: 2024, TargetConversions: 1})
	require.NoError(t, err)
	recordConversion(t, convSvc, "c1", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))

	// raising the target reopens a completed goal
	g, err = svc.Update(ctx, g.ID, goal.UpdateGoal{TargetConversions: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, g.TargetConversions)
	assert.Equal(t, 1, g.AchievedConversions)
	assert.Equal(t, goal.StatusInProgress, g.Status)
	assert.Equal(t, 25.0, g.ProgressPercentage)

	// zero target means "leave unchanged"
	g, err = svc.Update(ctx, g.ID, goal.UpdateGoal{})
	require.NoError(t, err)
	assert.Equal(t, 4, g.TargetConversions)

	_, err = svc.Update(ctx, "no-such-id", goal.UpdateGoal{TargetConversions: 2})
	assert.ErrorIs(t, err, goal.ErrNotFound)
}
