package conversion_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/prospect"
	inmemdb "github.com/tmkamba/kanisa/storage/database/inmem"
	testutil "github.com/tmkamba/kanisa/tests"
)

type refresherMock struct {
	calls []string // "cluster/year"
}

func (r *refresherMock) Refresh(_ context.Context, cluster string, year int) error {
	r.calls = append(r.calls, fmt.Sprintf("%s/%d", cluster, year))
	return nil
}

func setup(t *testing.T) (*conversion.Service, conversion.Repository, *refresherMock) {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewConversionRepository(db)
	goals := &refresherMock{}
	return conversion.NewService(repo, goals, testutil.NewLogger()), repo, goals
}

func TestService_RecordFromPipeline(t *testing.T) {
	svc, repo, goals := setup(t)
	ctx := context.Background()

	rec := prospect.PipelineConversion{
		ProspectID:      "p1",
		ProspectName:    "Amos",
		PersonID:        "person-1",
		ConvertedBy:     "m1",
		Cluster:         "nairobi-west",
		EvangelismGroup: "youth",
		Date:            time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, svc.RecordFromPipeline(ctx, rec))

	c, err := repo.GetConversionByProspectID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Amos", c.PersonName)
	assert.Equal(t, "m1", c.ConvertedBy)
	assert.Equal(t, rec.Date, c.ConversionDate)
	assert.False(t, c.IsComplete)
	assert.Equal(t, []string{"nairobi-west/2024"}, goals.calls)

	// replay from a retried pipeline advance must not duplicate
	require.NoError(t, svc.RecordFromPipeline(ctx, rec))
	convs, err := repo.QueryConversions(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
	assert.Len(t, goals.calls, 1)
}

func TestService_RecordFromPipeline_missingPersonLink(t *testing.T) {
	svc, repo, goals := setup(t)
	ctx := context.Background()

	err := svc.RecordFromPipeline(ctx, prospect.PipelineConversion{
		ProspectID:   "p2",
		ProspectName: "Chipo",
		ConvertedBy:  "m1",
		Cluster:      "nairobi-west",
		Date:         time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
	})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "person", vErr.Fields[0].Field)

	// nothing was written
	_, err = repo.GetConversionByProspectID(ctx, "p2")
	assert.ErrorIs(t, err, conversion.ErrNotFound)
	assert.Empty(t, goals.calls)
}

func TestService_Record(t *testing.T) {
	svc, _, goals := setup(t)
	ctx := context.Background()

	t.Run("creates and refreshes the goal", func(t *testing.T) {
		c, err := svc.Record(ctx, conversion.NewConversion{
			PersonID:       "person-2",
			PersonName:     "Beatrice",
			ConvertedBy:    "m2",
			Cluster:        "kisumu",
			ConversionDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Contains(t, goals.calls, "kisumu/2024")
	})

	t.Run("reuses the existing conversion for a prospect", func(t *testing.T) {
		first, err := svc.Record(ctx, conversion.NewConversion{
			PersonID:       "person-3",
			ProspectID:     "p9",
			ConvertedBy:    "m2",
			ConversionDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		again, err := svc.Record(ctx, conversion.NewConversion{
			PersonID:       "person-3",
			ProspectID:     "p9",
			ConvertedBy:    "someone-else",
			ConversionDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "m2", again.ConvertedBy)
	})

	t.Run("skips the goal refresh without a cluster", func(t *testing.T) {
		before := len(goals.calls)
		_, err := svc.Record(ctx, conversion.NewConversion{
			PersonID:       "person-4",
			ConvertedBy:    "m2",
			ConversionDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Len(t, goals.calls, before)
	})
}

func TestService_SetBaptismDates(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	c, err := svc.Record(ctx, conversion.NewConversion{
		PersonID:       "person-5",
		ConvertedBy:    "m1",
		Cluster:        "kisumu",
		ConversionDate: time.Date(2024, 4, 7, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.False(t, c.IsComplete)

	water := time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC)
	c, err = svc.SetBaptismDates(ctx, c.ID, conversion.BaptismUpdate{WaterBaptismDate: water})
	require.NoError(t, err)
	assert.Equal(t, water, c.WaterBaptismDate)
	assert.False(t, c.IsComplete, "one baptism date is not enough")

	spirit := time.Date(2024, 4, 21, 0, 0, 0, 0, time.UTC)
	c, err = svc.SetBaptismDates(ctx, c.ID, conversion.BaptismUpdate{SpiritBaptismDate: spirit, VerifiedBy: "pastor-1"})
	require.NoError(t, err)
	assert.Equal(t, water, c.WaterBaptismDate, "earlier date survives a partial update")
	assert.Equal(t, spirit, c.SpiritBaptismDate)
	assert.Equal(t, "pastor-1", c.VerifiedBy)
	assert.True(t, c.IsComplete)

	_, err = svc.SetBaptismDates(ctx, "no-such-id", conversion.BaptismUpdate{WaterBaptismDate: water})
	assert.ErrorIs(t, err, conversion.ErrNotFound)
}
