package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/prospect"
)

type prospectRepository struct {
	db *prospectTable
}

var _ prospect.Repository = (*prospectRepository)(nil) // interface compliance check

func NewProspectRepository(db *DB) *prospectRepository {
	return &prospectRepository{db: db.prospects}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (repo *prospectRepository) CreateProspect(_ context.Context, p prospect.Prospect) (prospect.Prospect, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = uuid.New().String()
	p.Version = 1
	repo.db.prospects[p.ID] = &p
	return p, nil
}

func (repo *prospectRepository) GetProspectByID(_ context.Context, id string) (prospect.Prospect, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.prospects[id]; ok {
		return *p, nil
	}
	return prospect.Prospect{}, prospect.ErrNotFound
}

func (repo *prospectRepository) QueryProspects(_ context.Context, filter *prospect.QueryFilter, _ []core.DBOrdering) ([]prospect.Prospect, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	prospects := make([]prospect.Prospect, 0, len(repo.db.prospects))
	for _, p := range repo.db.prospects {
		if filter != nil {
			if filter.Search != "" && !matchSearch(filter.Search, p.Name, p.ContactInfo) {
				continue
			}
			if filter.Stage != "" && p.PipelineStage != filter.Stage {
				continue
			}
			if filter.Cluster != "" && p.InviterCluster != filter.Cluster {
				continue
			}
			if filter.Group != "" && p.EvangelismGroup != filter.Group {
				continue
			}
			if filter.IsDroppedOff != nil && p.IsDroppedOff != *filter.IsDroppedOff {
				continue
			}
			if !filter.CreatedFrom.IsZero() && p.CreatedAt.Before(filter.CreatedFrom) {
				continue
			}
			if !filter.CreatedTo.IsZero() && p.CreatedAt.After(filter.CreatedTo) {
				continue
			}
		}
		prospects = append(prospects, *p)
	}

	// stable default ordering; field-level orderings are a SQL concern
	sort.Slice(prospects, func(i, j int) bool {
		if !prospects[i].CreatedAt.Equal(prospects[j].CreatedAt) {
			return prospects[i].CreatedAt.Before(prospects[j].CreatedAt)
		}
		return prospects[i].ID < prospects[j].ID
	})
	return prospects, nil
}

func (repo *prospectRepository) UpdateProspect(_ context.Context, p prospect.Prospect) (prospect.Prospect, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.prospects[p.ID]
	if !ok {
		return prospect.Prospect{}, prospect.ErrNotFound
	}
	if stored.Version != p.Version {
		return prospect.Prospect{}, core.NewConflictError("prospect", p.ID)
	}
	p.Version++
	repo.db.prospects[p.ID] = &p
	return p, nil
}

func (repo *prospectRepository) DeleteProspectsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.prospects, id)
	}
	return nil
}

func (repo *prospectRepository) CreateStageEntry(_ context.Context, entry prospect.StageEntry) (prospect.StageEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	entry.ID = uuid.New().String()
	repo.db.entries[entry.ID] = &entry
	return entry, nil
}

func (repo *prospectRepository) QueryStageEntries(_ context.Context, prospectID string) ([]prospect.StageEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]prospect.StageEntry, 0)
	for _, e := range repo.db.entries {
		if e.ProspectID == prospectID {
			entries = append(entries, *e)
		}
	}
	sortStageEntries(entries)
	return entries, nil
}

func (repo *prospectRepository) QueryStageEntriesBetween(_ context.Context, from, to time.Time) ([]prospect.StageEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]prospect.StageEntry, 0)
	for _, e := range repo.db.entries {
		if !from.IsZero() && e.ActivityDate.Before(from) {
			continue
		}
		if !to.IsZero() && !e.ActivityDate.Before(to) {
			continue
		}
		entries = append(entries, *e)
	}
	sortStageEntries(entries)
	return entries, nil
}

func sortStageEntries(entries []prospect.StageEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ActivityDate.Equal(entries[j].ActivityDate) {
			return entries[i].ActivityDate.Before(entries[j].ActivityDate)
		}
		return entries[i].ID < entries[j].ID
	})
}

func (repo *prospectRepository) CreateDropOff(_ context.Context, d prospect.DropOff) (prospect.DropOff, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d.ID = uuid.New().String()
	repo.db.dropOffs[d.ID] = &d
	return d, nil
}

func (repo *prospectRepository) GetActiveDropOff(_ context.Context, prospectID string) (prospect.DropOff, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, d := range repo.db.dropOffs {
		if d.ProspectID == prospectID && !d.Recovered {
			return *d, nil
		}
	}
	return prospect.DropOff{}, prospect.ErrDropOffNotFound
}

func (repo *prospectRepository) UpdateDropOff(_ context.Context, d prospect.DropOff) (prospect.DropOff, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.dropOffs[d.ID]; !ok {
		return prospect.DropOff{}, prospect.ErrDropOffNotFound
	}
	repo.db.dropOffs[d.ID] = &d
	return d, nil
}

func (repo *prospectRepository) QueryDropOffs(_ context.Context, filter *prospect.DropOffFilter) ([]prospect.DropOff, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	dropOffs := make([]prospect.DropOff, 0, len(repo.db.dropOffs))
	for _, d := range repo.db.dropOffs {
		if filter != nil {
			if filter.Stage != "" && d.DropOffStage != filter.Stage {
				continue
			}
			if filter.Reason != "" && d.Reason != filter.Reason {
				continue
			}
			if filter.Recovered != nil && d.Recovered != *filter.Recovered {
				continue
			}
		}
		dropOffs = append(dropOffs, *d)
	}
	sort.Slice(dropOffs, func(i, j int) bool {
		if !dropOffs[i].DropOffDate.Equal(dropOffs[j].DropOffDate) {
			return dropOffs[i].DropOffDate.Before(dropOffs[j].DropOffDate)
		}
		return dropOffs[i].ID < dropOffs[j].ID
	})
	return dropOffs, nil
}

func (repo *prospectRepository) CountDropOffs(_ context.Context, prospectID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, d := range repo.db.dropOffs {
		if d.ProspectID == prospectID {
			count++
		}
	}
	return count, nil
}

func (repo *prospectRepository) QueryStalled(_ context.Context, stage string, cutoff time.Time) ([]prospect.Prospect, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	stalled := make([]prospect.Prospect, 0)
	for _, p := range repo.db.prospects {
		if p.IsDroppedOff || p.PipelineStage != stage || p.PipelineStage == prospect.StageConverted {
			continue
		}
		if !p.LastActivityDate.Before(cutoff) {
			continue
		}
		stalled = append(stalled, *p)
	}
	sort.Slice(stalled, func(i, j int) bool { return stalled[i].ID < stalled[j].ID })
	return stalled, nil
}

// FlagDroppedOff flags the prospect and creates its DropOff row under one lock;
// the check-and-set on IsDroppedOff makes concurrent detector runs idempotent.
func (repo *prospectRepository) FlagDroppedOff(_ context.Context, prospectID string, d prospect.DropOff) (prospect.DropOff, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.prospects[prospectID]
	if !ok {
		return prospect.DropOff{}, false, prospect.ErrNotFound
	}
	if p.IsDroppedOff || p.PipelineStage == prospect.StageConverted {
		return prospect.DropOff{}, false, nil
	}

	p.IsDroppedOff = true
	p.DropOffDate = d.DropOffDate
	p.DropOffStage = p.PipelineStage
	p.DropOffReason = d.Reason
	p.Version++
	p.UpdatedAt = d.UpdatedAt

	d.ID = uuid.New().String()
	d.DropOffStage = p.PipelineStage
	repo.db.dropOffs[d.ID] = &d
	return d, true, nil
}
