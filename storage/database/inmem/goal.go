package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/goal"
)

type goalRepository struct {
	db *goalTable
}

var _ goal.Repository = (*goalRepository)(nil) // interface compliance check

func NewGoalRepository(db *DB) *goalRepository {
	return &goalRepository{db: db.goals}
}

func (repo *goalRepository) CreateGoal(_ context.Context, g goal.Goal) (goal.Goal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	g.ID = uuid.New().String()
	repo.db.goals[g.ID] = &g
	return g, nil
}

func (repo *goalRepository) GetGoalByID(_ context.Context, id string) (goal.Goal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if g, ok := repo.db.goals[id]; ok {
		return *g, nil
	}
	return goal.Goal{}, goal.ErrNotFound
}

func (repo *goalRepository) GetGoalByClusterYear(_ context.Context, cluster string, year int) (goal.Goal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, g := range repo.db.goals {
		if g.Cluster == cluster && g.Year == year {
			return *g, nil
		}
	}
	return goal.Goal{}, goal.ErrNotFound
}

func (repo *goalRepository) QueryGoals(_ context.Context, filter *goal.QueryFilter, _ []core.DBOrdering) ([]goal.Goal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	goals := make([]goal.Goal, 0, len(repo.db.goals))
	for _, g := range repo.db.goals {
		if filter != nil {
			if filter.Cluster != "" && g.Cluster != filter.Cluster {
				continue
			}
			if filter.Year != 0 && g.Year != filter.Year {
				continue
			}
			if filter.Status != "" && g.Status != filter.Status {
				continue
			}
		}
		goals = append(goals, *g)
	}
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].Year != goals[j].Year {
			return goals[i].Year < goals[j].Year
		}
		return goals[i].Cluster < goals[j].Cluster
	})
	return goals, nil
}

func (repo *goalRepository) UpdateGoal(_ context.Context, g goal.Goal) (goal.Goal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.goals[g.ID]; !ok {
		return goal.Goal{}, goal.ErrNotFound
	}
	repo.db.goals[g.ID] = &g
	return g, nil
}
