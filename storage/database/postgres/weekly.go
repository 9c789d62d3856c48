package pgrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/weekly"
)

type weeklyReportRow struct {
	ID              string      `db:"id"`
	Cluster         string      `db:"cluster"`
	EvangelismGroup null.String `db:"evangelism_group"`
	GatheringType   string      `db:"gathering_type"`
	Year            int         `db:"year"`
	WeekNumber      int         `db:"week_number"`
	MembersPresent  int         `db:"members_present"`
	VisitorsPresent int         `db:"visitors_present"`
	ReportedBy      string      `db:"reported_by"`
	ReportDate      time.Time   `db:"report_date"`
	CreatedAt       time.Time   `db:"created_at"`
}

const weeklyReportColumns = `id, cluster, evangelism_group, gathering_type, year, week_number,
	members_present, visitors_present, reported_by, report_date, created_at`

type weeklyReportRepository struct {
	db *sqlx.DB
}

var _ weekly.Repository = (*weeklyReportRepository)(nil) // interface compliance check

func NewWeeklyReportRepository(db *sqlx.DB) *weeklyReportRepository {
	return &weeklyReportRepository{db: db}
}

func (repo weeklyReportRepository) pack(r weekly.Report) weeklyReportRow {
	return weeklyReportRow{
		ID:              r.ID,
		Cluster:         r.Cluster,
		EvangelismGroup: null.NewString(r.EvangelismGroup, r.EvangelismGroup != ""),
		GatheringType:   r.GatheringType,
		Year:            r.Year,
		WeekNumber:      r.WeekNumber,
		MembersPresent:  r.MembersPresent,
		VisitorsPresent: r.VisitorsPresent,
		ReportedBy:      r.ReportedBy,
		ReportDate:      r.ReportDate.UTC(),
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

func (repo weeklyReportRepository) unpack(r weeklyReportRow) weekly.Report {
	return weekly.Report{
		ID:              r.ID,
		Cluster:         r.Cluster,
		EvangelismGroup: r.EvangelismGroup.String,
		GatheringType:   r.GatheringType,
		Year:            r.Year,
		WeekNumber:      r.WeekNumber,
		MembersPresent:  r.MembersPresent,
		VisitorsPresent: r.VisitorsPresent,
		ReportedBy:      r.ReportedBy,
		ReportDate:      r.ReportDate,
		CreatedAt:       r.CreatedAt,
	}
}

func (repo weeklyReportRepository) CreateReport(ctx context.Context, r weekly.Report) (weekly.Report, error) {
	r.ID = uuid.New().String()
	row := repo.pack(r)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO weekly_report (`+weeklyReportColumns+`)
		VALUES (:id, :cluster, :evangelism_group, :gathering_type, :year, :week_number,
			:members_present, :visitors_present, :reported_by, :report_date, :created_at)`, row)
	if err != nil {
		return weekly.Report{}, errors.Wrap(err, "inserting weekly report")
	}
	return r, nil
}

func (repo weeklyReportRepository) GetReportByID(ctx context.Context, id string) (weekly.Report, error) {
	var r weeklyReportRow
	err := repo.db.GetContext(ctx, &r, `SELECT `+weeklyReportColumns+` FROM weekly_report WHERE id = $1`, id)
	if err != nil {
		return weekly.Report{}, trapNoRowsErr(err, weekly.ErrNotFound, "getting weekly report")
	}
	return repo.unpack(r), nil
}

func (repo weeklyReportRepository) QueryReports(ctx context.Context, filter *weekly.QueryFilter, ordering []core.DBOrdering) ([]weekly.Report, error) {
	where := []string{"true"}
	var args []interface{}
	if filter != nil {
		if filter.Cluster != "" {
			args = append(args, filter.Cluster)
			where = append(where, "cluster = $"+itoa(len(args)))
		}
		if filter.Group != "" {
			args = append(args, filter.Group)
			where = append(where, "evangelism_group = $"+itoa(len(args)))
		}
		if filter.Year != 0 {
			args = append(args, filter.Year)
			where = append(where, "year = $"+itoa(len(args)))
		}
		if filter.WeekNumber != 0 {
			args = append(args, filter.WeekNumber)
			where = append(where, "week_number = $"+itoa(len(args)))
		}
	}

	query := `SELECT ` + weeklyReportColumns + ` FROM weekly_report WHERE ` + strings.Join(where, " AND ") +
		orderBy(ordering, "report_date ASC, id ASC")

	var rows []weeklyReportRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying weekly reports")
	}
	reports := make([]weekly.Report, 0, len(rows))
	for _, r := range rows {
		reports = append(reports, repo.unpack(r))
	}
	return reports, nil
}

func (repo weeklyReportRepository) DeleteReportsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM weekly_report WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting weekly reports")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting weekly reports")
	}
	return nil
}
