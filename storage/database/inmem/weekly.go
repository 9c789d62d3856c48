package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/weekly"
)

type reportRepository struct {
	db *reportTable
}

var _ weekly.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) *reportRepository {
	return &reportRepository{db: db.reports}
}

func (repo *reportRepository) CreateReport(_ context.Context, r weekly.Report) (weekly.Report, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r.ID = uuid.New().String()
	repo.db.reports[r.ID] = &r
	return r, nil
}

func (repo *reportRepository) GetReportByID(_ context.Context, id string) (weekly.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.reports[id]; ok {
		return *r, nil
	}
	return weekly.Report{}, weekly.ErrNotFound
}

func (repo *reportRepository) QueryReports(_ context.Context, filter *weekly.QueryFilter, _ []core.DBOrdering) ([]weekly.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reports := make([]weekly.Report, 0, len(repo.db.reports))
	for _, r := range repo.db.reports {
		if filter != nil {
			if filter.Cluster != "" && r.Cluster != filter.Cluster {
				continue
			}
			if filter.Group != "" && r.EvangelismGroup != filter.Group {
				continue
			}
			if filter.Year != 0 && r.Year != filter.Year {
				continue
			}
			if filter.WeekNumber != 0 && r.WeekNumber != filter.WeekNumber {
				continue
			}
		}
		reports = append(reports, *r)
	}
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].ReportDate.Equal(reports[j].ReportDate) {
			return reports[i].ReportDate.Before(reports[j].ReportDate)
		}
		return reports[i].ID < reports[j].ID
	})
	return reports, nil
}

func (repo *reportRepository) DeleteReportsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.reports, id)
	}
	return nil
}
