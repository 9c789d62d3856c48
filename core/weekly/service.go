package weekly

import (
	"context"
	"errors"
	"time"

	"github.com/tmkamba/kanisa/core"
)

var (
	// errors
	ErrNotFound = errors.New("weekly report not found")
)

type (
	Repository interface {
		CreateReport(ctx context.Context, r Report) (Report, error)
		GetReportByID(ctx context.Context, id string) (Report, error)
		// QueryReports applies AND operation on available QueryFilter fields.
		QueryReports(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Report, error)
		DeleteReportsByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Submit(ctx context.Context, nr NewReport) (Report, error) {
	reportDate := nr.ReportDate
	if reportDate.IsZero() {
		reportDate = time.Now()
	}
	year, week := reportDate.UTC().ISOWeek()

	r := Report{
		Cluster:         nr.Cluster,
		EvangelismGroup: nr.EvangelismGroup,
		GatheringType:   nr.GatheringType,
		Year:            year,
		WeekNumber:      week,
		MembersPresent:  nr.MembersPresent,
		VisitorsPresent: nr.VisitorsPresent,
		ReportedBy:      nr.ReportedBy,
		ReportDate:      reportDate.UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	return svc.repo.CreateReport(ctx, r)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Report, error) {
	return svc.repo.GetReportByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Report, error) {
	return svc.repo.QueryReports(ctx, filter, ordering)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteReportsByID(ctx, ids...)
}
