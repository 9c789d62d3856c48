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
	"github.com/tmkamba/kanisa/core/followup"
)

type taskRow struct {
	ID             string      `db:"id"`
	ProspectID     string      `db:"prospect_id"`
	ProspectName   null.String `db:"prospect_name"`
	AssignedTo     string      `db:"assigned_to"`
	AssignedToName null.String `db:"assigned_to_name"`
	TaskType       string      `db:"task_type"`
	Notes          null.String `db:"notes"`
	DueDate        time.Time   `db:"due_date"`
	Status         string      `db:"status"`
	Priority       string      `db:"priority"`
	CompletedDate  null.Time   `db:"completed_date"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

const taskColumns = `id, prospect_id, prospect_name, assigned_to, assigned_to_name, task_type,
	notes, due_date, status, priority, completed_date, created_at, updated_at`

type taskRepository struct {
	db *sqlx.DB
}

var _ followup.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *sqlx.DB) *taskRepository {
	return &taskRepository{db: db}
}

func (repo taskRepository) pack(t followup.Task) taskRow {
	return taskRow{
		ID:             t.ID,
		ProspectID:     t.ProspectID,
		ProspectName:   null.NewString(t.ProspectName, t.ProspectName != ""),
		AssignedTo:     t.AssignedTo,
		AssignedToName: null.NewString(t.AssignedToName, t.AssignedToName != ""),
		TaskType:       t.TaskType,
		Notes:          null.NewString(t.Notes, t.Notes != ""),
		DueDate:        t.DueDate.UTC(),
		Status:         t.Status,
		Priority:       t.Priority,
		CompletedDate:  null.NewTime(t.CompletedDate.UTC(), !t.CompletedDate.IsZero()),
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	}
}

func (repo taskRepository) unpack(r taskRow) followup.Task {
	return followup.Task{
		ID:             r.ID,
		ProspectID:     r.ProspectID,
		ProspectName:   r.ProspectName.String,
		AssignedTo:     r.AssignedTo,
		AssignedToName: r.AssignedToName.String,
		TaskType:       r.TaskType,
		Notes:          r.Notes.String,
		DueDate:        r.DueDate,
		Status:         r.Status,
		Priority:       r.Priority,
		CompletedDate:  r.CompletedDate.Time,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (repo taskRepository) CreateTask(ctx context.Context, t followup.Task) (followup.Task, error) {
	t.ID = uuid.New().String()
	r := repo.pack(t)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO follow_up_task (`+taskColumns+`)
		VALUES (:id, :prospect_id, :prospect_name, :assigned_to, :assigned_to_name, :task_type,
			:notes, :due_date, :status, :priority, :completed_date, :created_at, :updated_at)`, r)
	if err != nil {
		return followup.Task{}, errors.Wrap(err, "inserting task")
	}
	return t, nil
}

func (repo taskRepository) GetTaskByID(ctx context.Context, id string) (followup.Task, error) {
	var r taskRow
	err := repo.db.GetContext(ctx, &r, `SELECT `+taskColumns+` FROM follow_up_task WHERE id = $1`, id)
	if err != nil {
		return followup.Task{}, trapNoRowsErr(err, followup.ErrNotFound, "getting task")
	}
	return repo.unpack(r), nil
}

func (repo taskRepository) QueryTasks(ctx context.Context, filter *followup.QueryFilter, ordering []core.DBOrdering) ([]followup.Task, error) {
	where := []string{"true"}
	var args []interface{}
	if filter != nil {
		if filter.ProspectID != "" {
			args = append(args, filter.ProspectID)
			where = append(where, "prospect_id = $"+itoa(len(args)))
		}
		if filter.AssignedTo != "" {
			args = append(args, filter.AssignedTo)
			where = append(where, "assigned_to = $"+itoa(len(args)))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			where = append(where, "status = $"+itoa(len(args)))
		}
		if filter.Priority != "" {
			args = append(args, filter.Priority)
			where = append(where, "priority = $"+itoa(len(args)))
		}
		if !filter.DueBefore.IsZero() {
			args = append(args, filter.DueBefore.UTC())
			where = append(where, "due_date < $"+itoa(len(args)))
		}
	}

	query := `SELECT ` + taskColumns + ` FROM follow_up_task WHERE ` + strings.Join(where, " AND ") +
		orderBy(ordering, "due_date ASC, id ASC")

	var rows []taskRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]followup.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, repo.unpack(r))
	}
	return tasks, nil
}

func (repo taskRepository) UpdateTask(ctx context.Context, t followup.Task) (followup.Task, error) {
	r := repo.pack(t)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE follow_up_task SET
			assigned_to = :assigned_to, assigned_to_name = :assigned_to_name, task_type = :task_type,
			notes = :notes, due_date = :due_date, status = :status, priority = :priority,
			updated_at = :updated_at
		WHERE id = :id`, r)
	if err != nil {
		return followup.Task{}, errors.Wrap(err, "updating task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return followup.Task{}, errors.Wrap(err, "updating task")
	}
	if n == 0 {
		return followup.Task{}, followup.ErrNotFound
	}
	return t, nil
}

// CloseTask is a single conditional update guarded on the open statuses, so two
// concurrent closers cannot both win.
func (repo taskRepository) CloseTask(ctx context.Context, id, status string, completedDate time.Time) (followup.Task, error) {
	var completed null.Time
	if status == followup.StatusCompleted {
		completed = null.TimeFrom(completedDate.UTC())
	}

	var r taskRow
	err := repo.db.GetContext(ctx, &r, `
		UPDATE follow_up_task SET status = $2, completed_date = $3, updated_at = $4
		WHERE id = $1 AND status IN ($5, $6)
		RETURNING `+taskColumns,
		id, status, completed, time.Now().UTC(), followup.StatusPending, followup.StatusInProgress)
	if err == nil {
		return repo.unpack(r), nil
	}
	if err != sql.ErrNoRows {
		return followup.Task{}, errors.Wrap(err, "closing task")
	}
	// no row updated: closed already, or missing entirely
	if _, gerr := repo.GetTaskByID(ctx, id); gerr != nil {
		return followup.Task{}, gerr
	}
	return followup.Task{}, followup.ErrTaskClosed
}

func (repo taskRepository) HasOpenTask(ctx context.Context, prospectID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM follow_up_task
			WHERE prospect_id = $1 AND status IN ($2, $3)
		)`, prospectID, followup.StatusPending, followup.StatusInProgress)
	if err != nil {
		return false, errors.Wrap(err, "checking open tasks")
	}
	return exists, nil
}
