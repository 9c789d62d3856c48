package prospect

import (
	"context"
	"errors"
	"time"

	"github.com/tmkamba/kanisa/core"
)

var (
	// errors
	ErrNotFound          = errors.New("prospect not found")
	ErrDropOffNotFound   = errors.New("drop-off not found")
	ErrInvalidTransition = errors.New("invalid pipeline transition")
	ErrAlreadyTerminal   = errors.New("prospect already converted")
)

// maxUpdateRetries bounds the internal retry loop on optimistic-lock conflicts.
const maxUpdateRetries = 3

type (
	Repository interface {
		CreateProspect(ctx context.Context, p Prospect) (Prospect, error)
		GetProspectByID(ctx context.Context, id string) (Prospect, error)
		// QueryProspects applies AND operation on available QueryFilter fields.
		QueryProspects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Prospect, error)
		// UpdateProspect performs an optimistic update guarded by Prospect.Version;
		// it returns a core.ConflictError when the row changed underneath.
		UpdateProspect(ctx context.Context, p Prospect) (Prospect, error)
		DeleteProspectsByID(ctx context.Context, ids ...string) error

		CreateStageEntry(ctx context.Context, entry StageEntry) (StageEntry, error)
		QueryStageEntries(ctx context.Context, prospectID string) ([]StageEntry, error)
		// QueryStageEntriesBetween returns all stage entries with ActivityDate in [from, to).
		// A zero `from` means no lower bound.
		QueryStageEntriesBetween(ctx context.Context, from, to time.Time) ([]StageEntry, error)

		CreateDropOff(ctx context.Context, d DropOff) (DropOff, error)
		// GetActiveDropOff returns the single unrecovered drop-off of a prospect,
		// or ErrDropOffNotFound.
		GetActiveDropOff(ctx context.Context, prospectID string) (DropOff, error)
		UpdateDropOff(ctx context.Context, d DropOff) (DropOff, error)
		QueryDropOffs(ctx context.Context, filter *DropOffFilter) ([]DropOff, error)
		CountDropOffs(ctx context.Context, prospectID string) (int, error)

		// QueryStalled returns non-dropped-off, non-converted prospects at the given
		// stage whose last activity predates the cutoff.
		QueryStalled(ctx context.Context, stage string, cutoff time.Time) ([]Prospect, error)
		// FlagDroppedOff atomically flags a prospect and creates its DropOff row.
		// The update is conditional on is_dropped_off = false; the returned bool is
		// false when another writer won the race (no row is created in that case).
		FlagDroppedOff(ctx context.Context, prospectID string, d DropOff) (DropOff, bool, error)
	}

	// DirectoryService provisions and checks Person records in the external people module.
	DirectoryService interface {
		EnsurePerson(ctx context.Context, name, contactInfo string) (personID string, err error)
	}

	// PipelineConversion carries the data the conversion recorder needs when a
	// prospect completes the funnel.
	PipelineConversion struct {
		ProspectID      string
		ProspectName    string
		PersonID        string
		ConvertedBy     string
		Cluster         string
		EvangelismGroup string
		Date            time.Time
	}

	// ConversionRecorder is notified when a prospect reaches CONVERTED.
	ConversionRecorder interface {
		RecordFromPipeline(ctx context.Context, rec PipelineConversion) error
	}

	// FollowUpScheduler creates recovery tasks for freshly dropped-off prospects.
	FollowUpScheduler interface {
		EnsureRecoveryTask(ctx context.Context, prospectID, prospectName, assignee string, cycle int, due time.Time) error
	}

	Service struct {
		repo      Repository
		directory DirectoryService
		recorder  ConversionRecorder
		scheduler FollowUpScheduler
		conf      *core.Config
		logger    core.Logger
	}
)

func NewService(repo Repository, directory DirectoryService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		conf:      conf,
		logger:    logger,
	}
}

// SetConversionRecorder wires the conversion recorder after construction; the
// conversion service depends on prospect types, so the hook breaks the cycle.
func (svc *Service) SetConversionRecorder(recorder ConversionRecorder) { svc.recorder = recorder }

// SetFollowUpScheduler wires the follow-up scheduler used by the drop-off detector.
func (svc *Service) SetFollowUpScheduler(scheduler FollowUpScheduler) { svc.scheduler = scheduler }

func (svc *Service) Create(ctx context.Context, np NewProspect) (Prospect, error) {
	now := time.Now().UTC()
	firstContact := np.FirstContactDate
	if firstContact.IsZero() {
		firstContact = now
	}
	fastTrack := np.FastTrackReason
	if fastTrack == "" {
		fastTrack = FastTrackNone
	}

	p := Prospect{
		Name:             np.Name,
		ContactInfo:      np.ContactInfo,
		SocialHandle:     np.SocialHandle,
		InvitedBy:        np.InvitedBy,
		InvitedByName:    np.InvitedByName,
		InviterCluster:   np.InviterCluster,
		EvangelismGroup:  np.EvangelismGroup,
		EndorsedCluster:  np.EndorsedCluster,
		PipelineStage:    StageInvited,
		FastTrackReason:  fastTrack,
		FirstContactDate: firstContact.UTC(),
		LastActivityDate: firstContact.UTC(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	p, err := svc.repo.CreateProspect(ctx, p)
	if err != nil {
		return Prospect{}, err
	}

	// entering INVITED is a funnel event like any other
	if _, err = svc.repo.CreateStageEntry(ctx, StageEntry{
		ProspectID:   p.ID,
		ToStage:      StageInvited,
		ActivityDate: p.FirstContactDate,
		CreatedAt:    now,
	}); err != nil {
		svc.logger.Error("recording INVITED stage entry", err)
	}
	return p, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Prospect, error) {
	return svc.repo.GetProspectByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Prospect, error) {
	return svc.repo.QueryProspects(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, up UpdateProspect) (Prospect, error) {
	var updated Prospect
	err := svc.withRetry(ctx, id, func(p Prospect) error {
		if up.Name != "" {
			p.Name = up.Name
		}
		if up.ContactInfo != "" {
			p.ContactInfo = up.ContactInfo
		}
		if up.SocialHandle != "" {
			p.SocialHandle = up.SocialHandle
		}
		if up.EvangelismGroup != "" {
			p.EvangelismGroup = up.EvangelismGroup
		}
		if up.EndorsedCluster != "" {
			p.EndorsedCluster = up.EndorsedCluster
		}
		if up.IsAttendingCluster != nil {
			p.IsAttendingCluster = *up.IsAttendingCluster
		}
		if up.HasFinishedLessons != nil {
			p.HasFinishedLessons = *up.HasFinishedLessons
		}
		if up.CommitmentFormSigned != nil {
			p.CommitmentFormSigned = *up.CommitmentFormSigned
		}
		if up.FastTrackReason != "" {
			p.FastTrackReason = up.FastTrackReason
		}
		p.UpdatedAt = time.Now().UTC()

		var err error
		updated, err = svc.repo.UpdateProspect(ctx, p)
		return err
	})
	return updated, err
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteProspectsByID(ctx, ids...)
}

func (svc *Service) QueryDropOffs(ctx context.Context, filter *DropOffFilter) ([]DropOff, error) {
	return svc.repo.QueryDropOffs(ctx, filter)
}

func (svc *Service) StageHistory(ctx context.Context, id string) ([]StageEntry, error) {
	if _, err := svc.repo.GetProspectByID(ctx, id); err != nil {
		return nil, err
	}
	return svc.repo.QueryStageEntries(ctx, id)
}

// AdvanceStage moves a prospect forward in the pipeline. Only the immediate
// successor stage is allowed, except that fast-tracked prospects may skip a
// single stage; the skipped stage is recorded in the audit history. Entering
// ATTENDED or beyond provisions a directory Person record if the prospect has
// none. Forward activity recovers any active drop-off.
func (svc *Service) AdvanceStage(ctx context.Context, id string, sa StageAdvance) (Prospect, error) {
	var (
		updated Prospect
		skipped string
		from    string
	)
	err := svc.withRetry(ctx, id, func(p Prospect) error {
		if p.IsTerminal() {
			return ErrAlreadyTerminal
		}
		var err error
		if skipped, err = validateTransition(&p, sa.Stage); err != nil {
			return err
		}

		// crossing into ATTENDED (directly or via a fast-track skip) provisions
		// the directory Person record
		if p.PersonID == "" && StageRank(sa.Stage) >= StageRank(StageAttended) {
			if p.PersonID, err = svc.directory.EnsurePerson(ctx, p.Name, p.ContactInfo); err != nil {
				return err
			}
		}

		from = p.PipelineStage
		p.PipelineStage = sa.Stage
		p.LastActivityDate = sa.ActivityDate.UTC()
		p.IsDroppedOff = false
		p.UpdatedAt = time.Now().UTC()

		updated, err = svc.repo.UpdateProspect(ctx, p)
		return err
	})
	if err != nil {
		return Prospect{}, err
	}

	if _, err = svc.repo.CreateStageEntry(ctx, StageEntry{
		ProspectID:   id,
		FromStage:    from,
		ToStage:      sa.Stage,
		SkippedStage: skipped,
		ActivityDate: sa.ActivityDate.UTC(),
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		svc.logger.Error("recording stage entry", err)
	}

	svc.recoverActiveDropOff(ctx, id, sa.ActivityDate)

	if updated.IsTerminal() && svc.recorder != nil {
		rec := PipelineConversion{
			ProspectID:      updated.ID,
			ProspectName:    updated.Name,
			PersonID:        updated.PersonID,
			ConvertedBy:     updated.InvitedBy,
			Cluster:         updated.InviterCluster,
			EvangelismGroup: updated.EvangelismGroup,
			Date:            sa.ActivityDate.UTC(),
		}
		if err = svc.recorder.RecordFromPipeline(ctx, rec); err != nil {
			svc.logger.Error("recording conversion", err)
		}
	}
	return updated, nil
}

// MarkAttended advances a prospect to ATTENDED; the directory Person record is
// provisioned on the way if the prospect has none.
func (svc *Service) MarkAttended(ctx context.Context, id string, activityDate time.Time) (Prospect, error) {
	return svc.AdvanceStage(ctx, id, StageAdvance{Stage: StageAttended, ActivityDate: activityDate})
}

// validateTransition checks a forward move and returns the skipped stage when a
// fast-track jump was used.
func validateTransition(p *Prospect, target string) (skipped string, err error) {
	cur, tgt := StageRank(p.PipelineStage), StageRank(target)
	if tgt < 0 {
		return "", ErrInvalidTransition
	}
	switch {
	case tgt == cur+1:
		return "", nil
	case tgt == cur+2 && p.FastTrackReason != FastTrackNone && p.FastTrackReason != "":
		return Stages[cur+1], nil
	default:
		return "", ErrInvalidTransition
	}
}

// recoverActiveDropOff closes the prospect's active drop-off, if any.
func (svc *Service) recoverActiveDropOff(ctx context.Context, prospectID string, activityDate time.Time) {
	d, err := svc.repo.GetActiveDropOff(ctx, prospectID)
	if err != nil {
		if errors.Is(err, ErrDropOffNotFound) {
			return
		}
		svc.logger.Error("looking up active drop-off", err)
		return
	}
	d.Recovered = true
	d.RecoveryAttempted = true
	d.RecoveredDate = activityDate.UTC()
	d.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateDropOff(ctx, d); err != nil {
		svc.logger.Error("recovering drop-off", err)
	}
}

// withRetry re-reads and re-applies `mutate` on optimistic-lock conflicts, a
// bounded number of times.
func (svc *Service) withRetry(ctx context.Context, id string, mutate func(p Prospect) error) error {
	var err error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var p Prospect
		if p, err = svc.repo.GetProspectByID(ctx, id); err != nil {
			return err
		}
		if err = mutate(p); err == nil || !core.IsConflict(err) {
			return err
		}
	}
	return err
}
