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

type recorderMock struct {
	calls []prospect.PipelineConversion
}

func (r *recorderMock) RecordFromPipeline(_ context.Context, rec prospect.PipelineConversion) error {
	r.calls = append(r.calls, rec)
	return nil
}

func setup(t *testing.T) (*prospect.Service, prospect.Repository, *recorderMock) {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewProspectRepository(db)
	rec := &recorderMock{}
	svc := prospect.NewService(repo, testutil.NewFakeDirectory(), testutil.NewConfig(), testutil.NewLogger())
	svc.SetConversionRecorder(rec)
	return svc, repo, rec
}

func TestService_Create(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	firstContact := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := svc.Create(ctx, prospect.NewProspect{
		Name:             "Jac Kalenga",
		InvitedBy:        "person-77",
		InviterCluster:   "cluster-ki",
		FirstContactDate: firstContact,
	})
	require.NoError(t, err)

	assert.Equal(t, prospect.StageInvited, p.PipelineStage)
	assert.Equal(t, prospect.FastTrackNone, p.FastTrackReason)
	assert.Equal(t, firstContact, p.FirstContactDate)
	assert.Equal(t, firstContact, p.LastActivityDate)
	assert.False(t, p.IsDroppedOff)

	// creation is itself a funnel event
	entries, err := repo.QueryStageEntries(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, prospect.StageInvited, entries[0].ToStage)
	assert.Empty(t, entries[0].FromStage)
	assert.Equal(t, firstContact, entries[0].ActivityDate)
}

func TestService_AdvanceStage(t *testing.T) {
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	t.Run("single step forward", func(t *testing.T) {
		svc, _, _ := setup(t)
		p, err := svc.Create(ctx, prospect.NewProspect{Name: "A", InvitedBy: "p1", InviterCluster: "c1"})
		require.NoError(t, err)

		p, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageAttended, ActivityDate: day(2)})
		require.NoError(t, err)
		assert.Equal(t, prospect.StageAttended, p.PipelineStage)
		assert.Equal(t, day(2), p.LastActivityDate)
	})

	t.Run("skip without fast-track rejected", func(t *testing.T) {
		svc, _, _ := setup(t)
		p, err := svc.Create(ctx, prospect.NewProspect{Name: "B", InvitedBy: "p1", InviterCluster: "c1"})
		require.NoError(t, err)

		_, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageBaptized, ActivityDate: day(2)})
		assert.Equal(t, prospect.ErrInvalidTransition, err)
	})

	t.Run("fast-track skips one stage and audits it", func(t *testing.T) {
		svc, repo, _ := setup(t)
		p, err := svc.Create(ctx, prospect.NewProspect{
			Name: "C", InvitedBy: "p1", InviterCluster: "c1",
			FastTrackReason: prospect.FastTrackGoingAbroad,
		})
		require.NoError(t, err)

		p, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageBaptized, ActivityDate: day(2)})
		require.NoError(t, err)
		assert.Equal(t, prospect.StageBaptized, p.PipelineStage)

		entries, err := repo.QueryStageEntries(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		last := entries[len(entries)-1]
		assert.Equal(t, prospect.StageInvited, last.FromStage)
		assert.Equal(t, prospect.StageBaptized, last.ToStage)
		assert.Equal(t, prospect.StageAttended, last.SkippedStage)
	})

	t.Run("fast-track cannot skip two stages", func(t *testing.T) {
		svc, _, _ := setup(t)
		p, err := svc.Create(ctx, prospect.NewProspect{
			Name: "D", InvitedBy: "p1", InviterCluster: "c1",
			FastTrackReason: prospect.FastTrackHealthIssues,
		})
		require.NoError(t, err)

		_, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageReceivedHG, ActivityDate: day(2)})
		assert.Equal(t, prospect.ErrInvalidTransition, err)
	})

	t.Run("backward move rejected", func(t *testing.T) {
		svc, _, _ := setup(t)
		p, err := svc.Create(ctx, prospect.NewProspect{Name: "E", InvitedBy: "p1", InviterCluster: "c1"})
		require.NoError(t, err)
		_, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageAttended, ActivityDate: day(2)})
		require.NoError(t, err)

		_, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageInvited, ActivityDate: day(3)})
		assert.Equal(t, prospect.ErrInvalidTransition, err)
	})

	t.Run("terminal prospect cannot advance", func(t *testing.T) {
		svc, _, _ := setup(t)
		p := advanceToConverted(t, svc, day)

		_, err := svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageConverted, ActivityDate: day(9)})
		assert.Equal(t, prospect.ErrAlreadyTerminal, err)
	})

	t.Run("reaching CONVERTED records the conversion once", func(t *testing.T) {
		svc, _, rec := setup(t)
		p := advanceToConverted(t, svc, day)

		require.Len(t, rec.calls, 1)
		call := rec.calls[0]
		assert.Equal(t, p.ID, call.ProspectID)
		assert.Equal(t, p.InvitedBy, call.ConvertedBy)
		assert.Equal(t, p.InviterCluster, call.Cluster)
	})

	t.Run("plain advance through ATTENDED provisions the person record", func(t *testing.T) {
		svc, _, rec := setup(t)
		p := advanceToConverted(t, svc, day)

		assert.NotEmpty(t, p.PersonID)
		require.Len(t, rec.calls, 1)
		assert.Equal(t, p.PersonID, rec.calls[0].PersonID, "conversions carry the person link")
	})

	t.Run("fast-track past ATTENDED still provisions the person record", func(t *testing.T) {
		svc, _, _ := setup(t)
		p, err := svc.Create(ctx, prospect.NewProspect{
			Name: "J", InvitedBy: "p1", InviterCluster: "c1",
			FastTrackReason: prospect.FastTrackGoingAbroad,
		})
		require.NoError(t, err)

		p, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageBaptized, ActivityDate: day(2)})
		require.NoError(t, err)
		assert.NotEmpty(t, p.PersonID)
	})

	t.Run("unknown stage rejected", func(t *testing.T) {
		svc, _, _ := setup(t)
		p, err := svc.Create(ctx, prospect.NewProspect{Name: "F", InvitedBy: "p1", InviterCluster: "c1"})
		require.NoError(t, err)

		_, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: "ENLIGHTENED", ActivityDate: day(2)})
		assert.Equal(t, prospect.ErrInvalidTransition, err)
	})
}

func advanceToConverted(t *testing.T, svc *prospect.Service, day func(int) time.Time) prospect.Prospect {
	t.Helper()
	ctx := context.Background()
	p, err := svc.Create(ctx, prospect.NewProspect{Name: "Full Funnel", InvitedBy: "p1", InviterCluster: "c1"})
	require.NoError(t, err)
	for i, stage := range []string{prospect.StageAttended, prospect.StageBaptized, prospect.StageReceivedHG, prospect.StageConverted} {
		p, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: stage, ActivityDate: day(i + 2)})
		require.NoError(t, err)
	}
	return p
}

func TestService_AdvanceStage_recoversDropOff(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, prospect.NewProspect{Name: "G", InvitedBy: "p1", InviterCluster: "c1"})
	require.NoError(t, err)

	dropDate := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	_, won, err := repo.FlagDroppedOff(ctx, p.ID, prospect.DropOff{
		ProspectID:   p.ID,
		DropOffDate:  dropDate,
		DropOffStage: prospect.StageInvited,
		DaysInactive: 14,
		Reason:       prospect.DropOffNoContact,
	})
	require.NoError(t, err)
	require.True(t, won)

	activity := dropDate.AddDate(0, 0, 3)
	p, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageAttended, ActivityDate: activity})
	require.NoError(t, err)
	assert.False(t, p.IsDroppedOff)

	// the active drop-off is closed, not deleted
	_, err = repo.GetActiveDropOff(ctx, p.ID)
	assert.Equal(t, prospect.ErrDropOffNotFound, err)

	recovered := true
	dropOffs, err := repo.QueryDropOffs(ctx, &prospect.DropOffFilter{Recovered: &recovered})
	require.NoError(t, err)
	require.Len(t, dropOffs, 1)
	assert.True(t, dropOffs[0].RecoveryAttempted)
	assert.Equal(t, activity, dropOffs[0].RecoveredDate)
}

func TestService_MarkAttended(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, prospect.NewProspect{Name: "H", InvitedBy: "p1", InviterCluster: "c1"})
	require.NoError(t, err)
	require.Empty(t, p.PersonID)

	p, err = svc.MarkAttended(ctx, p.ID, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, prospect.StageAttended, p.PipelineStage)
	assert.NotEmpty(t, p.PersonID, "attending prospects get a directory Person record")

	// second call keeps the existing Person record
	personID := p.PersonID
	_, err = svc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: prospect.StageBaptized, ActivityDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	got, err := svc.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, personID, got.PersonID)
}

func TestService_Update(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, prospect.NewProspect{Name: "I", InvitedBy: "p1", InviterCluster: "c1"})
	require.NoError(t, err)

	attending := true
	p, err = svc.Update(ctx, p.ID, prospect.UpdateProspect{
		Name:               "I Renamed",
		IsAttendingCluster: &attending,
	})
	require.NoError(t, err)
	assert.Equal(t, "I Renamed", p.Name)
	assert.True(t, p.IsAttendingCluster)
	assert.Equal(t, prospect.StageInvited, p.PipelineStage, "stage is not updatable via Update")
}

func TestService_StageHistory_unknownProspect(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.StageHistory(context.Background(), "nope")
	assert.Equal(t, prospect.ErrNotFound, err)
}
