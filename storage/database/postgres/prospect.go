package pgrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/prospect"
)

type prospectRow struct {
	ID                   string      `db:"id"`
	Name                 string      `db:"name"`
	ContactInfo          null.String `db:"contact_info"`
	SocialHandle         null.String `db:"social_handle"`
	InvitedBy            string      `db:"invited_by"`
	InvitedByName        null.String `db:"invited_by_name"`
	InviterCluster       string      `db:"inviter_cluster"`
	InviterClusterName   null.String `db:"inviter_cluster_name"`
	EvangelismGroup      null.String `db:"evangelism_group"`
	EndorsedCluster      null.String `db:"endorsed_cluster"`
	PersonID             null.String `db:"person_id"`
	PipelineStage        string      `db:"pipeline_stage"`
	FirstContactDate     time.Time   `db:"first_contact_date"`
	LastActivityDate     time.Time   `db:"last_activity_date"`
	IsAttendingCluster   bool        `db:"is_attending_cluster"`
	HasFinishedLessons   bool        `db:"has_finished_lessons"`
	CommitmentFormSigned bool        `db:"commitment_form_signed"`
	FastTrackReason      string      `db:"fast_track_reason"`
	IsDroppedOff         bool        `db:"is_dropped_off"`
	DropOffDate          null.Time   `db:"drop_off_date"`
	DropOffStage         null.String `db:"drop_off_stage"`
	DropOffReason        null.String `db:"drop_off_reason"`
	Version              int         `db:"version"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

const prospectColumns = `id, name, contact_info, social_handle, invited_by, invited_by_name,
	inviter_cluster, inviter_cluster_name, evangelism_group, endorsed_cluster, person_id,
	pipeline_stage, first_contact_date, last_activity_date, is_attending_cluster,
	has_finished_lessons, commitment_form_signed, fast_track_reason, is_dropped_off,
	drop_off_date, drop_off_stage, drop_off_reason, version, created_at, updated_at`

type prospectRepository struct {
	db *sqlx.DB
}

var _ prospect.Repository = (*prospectRepository)(nil) // interface compliance check

func NewProspectRepository(db *sqlx.DB) *prospectRepository {
	return &prospectRepository{db: db}
}

func (repo prospectRepository) pack(p prospect.Prospect) prospectRow {
	return prospectRow{
		ID:                   p.ID,
		Name:                 p.Name,
		ContactInfo:          null.NewString(p.ContactInfo, p.ContactInfo != ""),
		SocialHandle:         null.NewString(p.SocialHandle, p.SocialHandle != ""),
		InvitedBy:            p.InvitedBy,
		InvitedByName:        null.NewString(p.InvitedByName, p.InvitedByName != ""),
		InviterCluster:       p.InviterCluster,
		InviterClusterName:   null.NewString(p.InviterClusterName, p.InviterClusterName != ""),
		EvangelismGroup:      null.NewString(p.EvangelismGroup, p.EvangelismGroup != ""),
		EndorsedCluster:      null.NewString(p.EndorsedCluster, p.EndorsedCluster != ""),
		PersonID:             null.NewString(p.PersonID, p.PersonID != ""),
		PipelineStage:        p.PipelineStage,
		FirstContactDate:     p.FirstContactDate.UTC(),
		LastActivityDate:     p.LastActivityDate.UTC(),
		IsAttendingCluster:   p.IsAttendingCluster,
		HasFinishedLessons:   p.HasFinishedLessons,
		CommitmentFormSigned: p.CommitmentFormSigned,
		FastTrackReason:      p.FastTrackReason,
		IsDroppedOff:         p.IsDroppedOff,
		DropOffDate:          null.NewTime(p.DropOffDate.UTC(), !p.DropOffDate.IsZero()),
		DropOffStage:         null.NewString(p.DropOffStage, p.DropOffStage != ""),
		DropOffReason:        null.NewString(p.DropOffReason, p.DropOffReason != ""),
		Version:              p.Version,
		CreatedAt:            p.CreatedAt.UTC(),
		UpdatedAt:            p.UpdatedAt.UTC(),
	}
}

func (repo prospectRepository) unpack(r prospectRow) prospect.Prospect {
	return prospect.Prospect{
		ID:                   r.ID,
		Name:                 r.Name,
		ContactInfo:          r.ContactInfo.String,
		SocialHandle:         r.SocialHandle.String,
		InvitedBy:            r.InvitedBy,
		InvitedByName:        r.InvitedByName.String,
		InviterCluster:       r.InviterCluster,
		InviterClusterName:   r.InviterClusterName.String,
		EvangelismGroup:      r.EvangelismGroup.String,
		EndorsedCluster:      r.EndorsedCluster.String,
		PersonID:             r.PersonID.String,
		PipelineStage:        r.PipelineStage,
		FirstContactDate:     r.FirstContactDate,
		LastActivityDate:     r.LastActivityDate,
		IsAttendingCluster:   r.IsAttendingCluster,
		HasFinishedLessons:   r.HasFinishedLessons,
		CommitmentFormSigned: r.CommitmentFormSigned,
		FastTrackReason:      r.FastTrackReason,
		IsDroppedOff:         r.IsDroppedOff,
		DropOffDate:          r.DropOffDate.Time,
		DropOffStage:         r.DropOffStage.String,
		DropOffReason:        r.DropOffReason.String,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func (repo prospectRepository) unpackSlice(rows []prospectRow) []prospect.Prospect {
	prospects := make([]prospect.Prospect, 0, len(rows))
	for _, r := range rows {
		prospects = append(prospects, repo.unpack(r))
	}
	return prospects
}

// trapNoRowsErr maps psql "no rows" err to prospect.ErrNotFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo prospectRepository) CreateProspect(ctx context.Context, p prospect.Prospect) (prospect.Prospect, error) {
	p.ID = uuid.New().String()
	p.Version = 1
	r := repo.pack(p)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO prospect (`+prospectColumns+`)
		VALUES (:id, :name, :contact_info, :social_handle, :invited_by, :invited_by_name,
			:inviter_cluster, :inviter_cluster_name, :evangelism_group, :endorsed_cluster, :person_id,
			:pipeline_stage, :first_contact_date, :last_activity_date, :is_attending_cluster,
			:has_finished_lessons, :commitment_form_signed, :fast_track_reason, :is_dropped_off,
			:drop_off_date, :drop_off_stage, :drop_off_reason, :version, :created_at, :updated_at)`, r)
	if err != nil {
		return prospect.Prospect{}, errors.Wrap(err, "inserting prospect")
	}
	return p, nil
}

func (repo prospectRepository) GetProspectByID(ctx context.Context, id string) (prospect.Prospect, error) {
	var r prospectRow
	err := repo.db.GetContext(ctx, &r, `SELECT `+prospectColumns+` FROM prospect WHERE id = $1`, id)
	if err != nil {
		return prospect.Prospect{}, trapNoRowsErr(err, prospect.ErrNotFound, "getting prospect")
	}
	return repo.unpack(r), nil
}

func (repo prospectRepository) QueryProspects(ctx context.Context, filter *prospect.QueryFilter, ordering []core.DBOrdering) ([]prospect.Prospect, error) {
	where := []string{"true"}
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			ph := arg(val)
			where = append(where, "(name ILIKE "+ph+" OR contact_info ILIKE "+ph+")")
		}
		if filter.Stage != "" {
			where = append(where, "pipeline_stage = "+arg(filter.Stage))
		}
		if filter.Cluster != "" {
			where = append(where, "inviter_cluster = "+arg(filter.Cluster))
		}
		if filter.Group != "" {
			where = append(where, "evangelism_group = "+arg(filter.Group))
		}
		if filter.IsDroppedOff != nil {
			where = append(where, "is_dropped_off = "+arg(*filter.IsDroppedOff))
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	query := `SELECT ` + prospectColumns + ` FROM prospect WHERE ` + strings.Join(where, " AND ") +
		orderBy(ordering, "created_at ASC, id ASC")

	var rows []prospectRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying prospects")
	}
	return repo.unpackSlice(rows), nil
}

func (repo prospectRepository) UpdateProspect(ctx context.Context, p prospect.Prospect) (prospect.Prospect, error) {
	prev := p.Version
	p.Version++
	r := repo.pack(p)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE prospect SET
			name = :name, contact_info = :contact_info, social_handle = :social_handle,
			invited_by_name = :invited_by_name, inviter_cluster_name = :inviter_cluster_name,
			evangelism_group = :evangelism_group, endorsed_cluster = :endorsed_cluster,
			person_id = :person_id, pipeline_stage = :pipeline_stage,
			last_activity_date = :last_activity_date, is_attending_cluster = :is_attending_cluster,
			has_finished_lessons = :has_finished_lessons, commitment_form_signed = :commitment_form_signed,
			fast_track_reason = :fast_track_reason, is_dropped_off = :is_dropped_off,
			drop_off_date = :drop_off_date, drop_off_stage = :drop_off_stage,
			drop_off_reason = :drop_off_reason, version = :version, updated_at = :updated_at
		WHERE id = :id AND version = :prev_version`,
		struct {
			prospectRow
			PrevVersion int `db:"prev_version"`
		}{r, prev})
	if err != nil {
		return prospect.Prospect{}, errors.Wrap(err, "updating prospect")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return prospect.Prospect{}, errors.Wrap(err, "updating prospect")
	}
	if n == 0 {
		if _, err = repo.GetProspectByID(ctx, p.ID); err != nil {
			return prospect.Prospect{}, err
		}
		return prospect.Prospect{}, core.NewConflictError("prospect", p.ID)
	}
	return p, nil
}

func (repo prospectRepository) DeleteProspectsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM prospect WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting prospects")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting prospects")
	}
	return nil
}

type stageEntryRow struct {
	ID           string      `db:"id"`
	ProspectID   string      `db:"prospect_id"`
	FromStage    null.String `db:"from_stage"`
	ToStage      string      `db:"to_stage"`
	SkippedStage null.String `db:"skipped_stage"`
	ActivityDate time.Time   `db:"activity_date"`
	CreatedAt    time.Time   `db:"created_at"`
}

func unpackStageEntry(r stageEntryRow) prospect.StageEntry {
	return prospect.StageEntry{
		ID:           r.ID,
		ProspectID:   r.ProspectID,
		FromStage:    r.FromStage.String,
		ToStage:      r.ToStage,
		SkippedStage: r.SkippedStage.String,
		ActivityDate: r.ActivityDate,
		CreatedAt:    r.CreatedAt,
	}
}

func (repo prospectRepository) CreateStageEntry(ctx context.Context, entry prospect.StageEntry) (prospect.StageEntry, error) {
	entry.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO prospect_stage_entry (id, prospect_id, from_stage, to_stage, skipped_stage, activity_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ProspectID,
		null.NewString(entry.FromStage, entry.FromStage != ""),
		entry.ToStage,
		null.NewString(entry.SkippedStage, entry.SkippedStage != ""),
		entry.ActivityDate.UTC(), entry.CreatedAt.UTC())
	if err != nil {
		return prospect.StageEntry{}, errors.Wrap(err, "inserting stage entry")
	}
	return entry, nil
}

func (repo prospectRepository) QueryStageEntries(ctx context.Context, prospectID string) ([]prospect.StageEntry, error) {
	var rows []stageEntryRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, prospect_id, from_stage, to_stage, skipped_stage, activity_date, created_at
		FROM prospect_stage_entry WHERE prospect_id = $1
		ORDER BY activity_date ASC, id ASC`, prospectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying stage entries")
	}
	entries := make([]prospect.StageEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, unpackStageEntry(r))
	}
	return entries, nil
}

func (repo prospectRepository) QueryStageEntriesBetween(ctx context.Context, from, to time.Time) ([]prospect.StageEntry, error) {
	where := []string{"true"}
	var args []interface{}
	if !from.IsZero() {
		args = append(args, from.UTC())
		where = append(where, "activity_date >= $"+itoa(len(args)))
	}
	if !to.IsZero() {
		args = append(args, to.UTC())
		where = append(where, "activity_date < $"+itoa(len(args)))
	}

	var rows []stageEntryRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, prospect_id, from_stage, to_stage, skipped_stage, activity_date, created_at
		FROM prospect_stage_entry WHERE `+strings.Join(where, " AND ")+`
		ORDER BY activity_date ASC, id ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying stage entries")
	}
	entries := make([]prospect.StageEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, unpackStageEntry(r))
	}
	return entries, nil
}

type dropOffRow struct {
	ID                string      `db:"id"`
	ProspectID        string      `db:"prospect_id"`
	ProspectName      null.String `db:"prospect_name"`
	DropOffDate       time.Time   `db:"drop_off_date"`
	DropOffStage      string      `db:"drop_off_stage"`
	DaysInactive      int         `db:"days_inactive"`
	Reason            string      `db:"reason"`
	RecoveryAttempted bool        `db:"recovery_attempted"`
	Recovered         bool        `db:"recovered"`
	RecoveredDate     null.Time   `db:"recovered_date"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

const dropOffColumns = `id, prospect_id, prospect_name, drop_off_date, drop_off_stage,
	days_inactive, reason, recovery_attempted, recovered, recovered_date, created_at, updated_at`

func packDropOff(d prospect.DropOff) dropOffRow {
	return dropOffRow{
		ID:                d.ID,
		ProspectID:        d.ProspectID,
		ProspectName:      null.NewString(d.ProspectName, d.ProspectName != ""),
		DropOffDate:       d.DropOffDate.UTC(),
		DropOffStage:      d.DropOffStage,
		DaysInactive:      d.DaysInactive,
		Reason:            d.Reason,
		RecoveryAttempted: d.RecoveryAttempted,
		Recovered:         d.Recovered,
		RecoveredDate:     null.NewTime(d.RecoveredDate.UTC(), !d.RecoveredDate.IsZero()),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

func unpackDropOff(r dropOffRow) prospect.DropOff {
	return prospect.DropOff{
		ID:                r.ID,
		ProspectID:        r.ProspectID,
		ProspectName:      r.ProspectName.String,
		DropOffDate:       r.DropOffDate,
		DropOffStage:      r.DropOffStage,
		DaysInactive:      r.DaysInactive,
		Reason:            r.Reason,
		RecoveryAttempted: r.RecoveryAttempted,
		Recovered:         r.Recovered,
		RecoveredDate:     r.RecoveredDate.Time,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (repo prospectRepository) CreateDropOff(ctx context.Context, d prospect.DropOff) (prospect.DropOff, error) {
	d.ID = uuid.New().String()
	r := packDropOff(d)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO drop_off (`+dropOffColumns+`)
		VALUES (:id, :prospect_id, :prospect_name, :drop_off_date, :drop_off_stage,
			:days_inactive, :reason, :recovery_attempted, :recovered, :recovered_date, :created_at, :updated_at)`, r)
	if err != nil {
		return prospect.DropOff{}, errors.Wrap(err, "inserting drop-off")
	}
	return d, nil
}

func (repo prospectRepository) GetActiveDropOff(ctx context.Context, prospectID string) (prospect.DropOff, error) {
	var r dropOffRow
	err := repo.db.GetContext(ctx, &r, `
		SELECT `+dropOffColumns+` FROM drop_off
		WHERE prospect_id = $1 AND recovered = false
		ORDER BY drop_off_date DESC LIMIT 1`, prospectID)
	if err != nil {
		return prospect.DropOff{}, trapNoRowsErr(err, prospect.ErrDropOffNotFound, "getting active drop-off")
	}
	return unpackDropOff(r), nil
}

func (repo prospectRepository) UpdateDropOff(ctx context.Context, d prospect.DropOff) (prospect.DropOff, error) {
	r := packDropOff(d)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE drop_off SET
			reason = :reason, recovery_attempted = :recovery_attempted, recovered = :recovered,
			recovered_date = :recovered_date, updated_at = :updated_at
		WHERE id = :id`, r)
	if err != nil {
		return prospect.DropOff{}, errors.Wrap(err, "updating drop-off")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return prospect.DropOff{}, errors.Wrap(err, "updating drop-off")
	}
	if n == 0 {
		return prospect.DropOff{}, prospect.ErrDropOffNotFound
	}
	return d, nil
}

func (repo prospectRepository) QueryDropOffs(ctx context.Context, filter *prospect.DropOffFilter) ([]prospect.DropOff, error) {
	where := []string{"true"}
	var args []interface{}
	if filter != nil {
		if filter.Stage != "" {
			args = append(args, filter.Stage)
			where = append(where, "drop_off_stage = $"+itoa(len(args)))
		}
		if filter.Reason != "" {
			args = append(args, filter.Reason)
			where = append(where, "reason = $"+itoa(len(args)))
		}
		if filter.Recovered != nil {
			args = append(args, *filter.Recovered)
			where = append(where, "recovered = $"+itoa(len(args)))
		}
	}

	var rows []dropOffRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+dropOffColumns+` FROM drop_off WHERE `+strings.Join(where, " AND ")+`
		ORDER BY drop_off_date ASC, id ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying drop-offs")
	}
	dropOffs := make([]prospect.DropOff, 0, len(rows))
	for _, r := range rows {
		dropOffs = append(dropOffs, unpackDropOff(r))
	}
	return dropOffs, nil
}

func (repo prospectRepository) CountDropOffs(ctx context.Context, prospectID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM drop_off WHERE prospect_id = $1`, prospectID)
	if err != nil {
		return 0, errors.Wrap(err, "counting drop-offs")
	}
	return count, nil
}

func (repo prospectRepository) QueryStalled(ctx context.Context, stage string, cutoff time.Time) ([]prospect.Prospect, error) {
	var rows []prospectRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+prospectColumns+` FROM prospect
		WHERE is_dropped_off = false AND pipeline_stage = $1 AND pipeline_stage <> $2
			AND last_activity_date < $3
		ORDER BY last_activity_date ASC, id ASC`,
		stage, prospect.StageConverted, cutoff.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying stalled prospects")
	}
	return repo.unpackSlice(rows), nil
}

// FlagDroppedOff runs the conditional flag update and the DropOff insert in one
// transaction; the `is_dropped_off = false` guard makes the scan idempotent and
// race-free against concurrent stage advances.
func (repo prospectRepository) FlagDroppedOff(ctx context.Context, prospectID string, d prospect.DropOff) (prospect.DropOff, bool, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return prospect.DropOff{}, false, errors.Wrap(err, "beginning flag transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var stage string
	err = tx.GetContext(ctx, &stage, `
		UPDATE prospect SET
			is_dropped_off = true, drop_off_date = $2, drop_off_stage = pipeline_stage,
			drop_off_reason = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND is_dropped_off = false AND pipeline_stage <> $5
		RETURNING pipeline_stage`,
		prospectID, d.DropOffDate.UTC(), d.Reason, d.UpdatedAt.UTC(), prospect.StageConverted)
	if err != nil {
		if err == sql.ErrNoRows {
			return prospect.DropOff{}, false, nil // already flagged or converted
		}
		return prospect.DropOff{}, false, errors.Wrap(err, "flagging prospect")
	}

	d.ID = uuid.New().String()
	d.DropOffStage = stage
	r := packDropOff(d)
	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO drop_off (`+dropOffColumns+`)
		VALUES (:id, :prospect_id, :prospect_name, :drop_off_date, :drop_off_stage,
			:days_inactive, :reason, :recovery_attempted, :recovered, :recovered_date, :created_at, :updated_at)`, r); err != nil {
		return prospect.DropOff{}, false, errors.Wrap(err, "inserting drop-off")
	}

	if err = tx.Commit(); err != nil {
		return prospect.DropOff{}, false, errors.Wrap(err, "committing flag transaction")
	}
	return d, true, nil
}
