package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/followup"
)

type taskRepository struct {
	db *taskTable
}

var _ followup.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *DB) *taskRepository {
	return &taskRepository{db: db.tasks}
}

func (repo *taskRepository) CreateTask(_ context.Context, t followup.Task) (followup.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t.ID = uuid.New().String()
	repo.db.tasks[t.ID] = &t
	return t, nil
}

func (repo *taskRepository) GetTaskByID(_ context.Context, id string) (followup.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.tasks[id]; ok {
		return *t, nil
	}
	return followup.Task{}, followup.ErrNotFound
}

func (repo *taskRepository) QueryTasks(_ context.Context, filter *followup.QueryFilter, _ []core.DBOrdering) ([]followup.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tasks := make([]followup.Task, 0, len(repo.db.tasks))
	for _, t := range repo.db.tasks {
		if filter != nil {
			if filter.ProspectID != "" && t.ProspectID != filter.ProspectID {
				continue
			}
			if filter.AssignedTo != "" && t.AssignedTo != filter.AssignedTo {
				continue
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if filter.Priority != "" && t.Priority != filter.Priority {
				continue
			}
			if !filter.DueBefore.IsZero() && !t.DueDate.Before(filter.DueBefore) {
				continue
			}
		}
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].DueDate.Equal(tasks[j].DueDate) {
			return tasks[i].DueDate.Before(tasks[j].DueDate)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

func (repo *taskRepository) UpdateTask(_ context.Context, t followup.Task) (followup.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tasks[t.ID]; !ok {
		return followup.Task{}, followup.ErrNotFound
	}
	repo.db.tasks[t.ID] = &t
	return t, nil
}

// CloseTask is the conditional terminal-state update: the status check and the
// write happen under one lock, so one of two concurrent closers loses.
func (repo *taskRepository) CloseTask(_ context.Context, id, status string, completedDate time.Time) (followup.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t, ok := repo.db.tasks[id]
	if !ok {
		return followup.Task{}, followup.ErrNotFound
	}
	if t.IsClosed() {
		return followup.Task{}, followup.ErrTaskClosed
	}

	t.Status = status
	if status == followup.StatusCompleted {
		t.CompletedDate = completedDate
	}
	t.UpdatedAt = time.Now().UTC()
	return *t, nil
}

func (repo *taskRepository) HasOpenTask(_ context.Context, prospectID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.tasks {
		if t.ProspectID == prospectID && !t.IsClosed() {
			return true, nil
		}
	}
	return false, nil
}
