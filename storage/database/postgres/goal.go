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
	"github.com/tmkamba/kanisa/core/goal"
)

type goalRow struct {
	ID                  string      `db:"id"`
	Cluster             string      `db:"cluster"`
	ClusterName         null.String `db:"cluster_name"`
	Year                int         `db:"year"`
	TargetConversions   int         `db:"target_conversions"`
	AchievedConversions int         `db:"achieved_conversions"`
	Status              string      `db:"status"`
	ProgressPercentage  float64     `db:"progress_percentage"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
}

const goalColumns = `id, cluster, cluster_name, year, target_conversions, achieved_conversions,
	status, progress_percentage, created_at, updated_at`

type goalRepository struct {
	db *sqlx.DB
}

var _ goal.Repository = (*goalRepository)(nil) // interface compliance check

func NewGoalRepository(db *sqlx.DB) *goalRepository {
	return &goalRepository{db: db}
}

func (repo goalRepository) pack(g goal.Goal) goalRow {
	return goalRow{
		ID:                  g.ID,
		Cluster:             g.Cluster,
		ClusterName:         null.NewString(g.ClusterName, g.ClusterName != ""),
		Year:                g.Year,
		TargetConversions:   g.TargetConversions,
		AchievedConversions: g.AchievedConversions,
		Status:              g.Status,
		ProgressPercentage:  g.ProgressPercentage,
		CreatedAt:           g.CreatedAt.UTC(),
		UpdatedAt:           g.UpdatedAt.UTC(),
	}
}

func (repo goalRepository) unpack(r goalRow) goal.Goal {
	return goal.Goal{
		ID:                  r.ID,
		Cluster:             r.Cluster,
		ClusterName:         r.ClusterName.String,
		Year:                r.Year,
		TargetConversions:   r.TargetConversions,
		AchievedConversions: r.AchievedConversions,
		Status:              r.Status,
		ProgressPercentage:  r.ProgressPercentage,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func (repo goalRepository) CreateGoal(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	g.ID = uuid.New().String()
	r := repo.pack(g)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO each1reach1_goal (`+goalColumns+`)
		VALUES (:id, :cluster, :cluster_name, :year, :target_conversions, :achieved_conversions,
			:status, :progress_percentage, :created_at, :updated_at)`, r)
	if err != nil {
		return goal.Goal{}, errors.Wrap(err, "inserting goal")
	}
	return g, nil
}

func (repo goalRepository) GetGoalByID(ctx context.Context, id string) (goal.Goal, error) {
	var r goalRow
	err := repo.db.GetContext(ctx, &r, `SELECT `+goalColumns+` FROM each1reach1_goal WHERE id = $1`, id)
	if err != nil {
		return goal.Goal{}, trapNoRowsErr(err, goal.ErrNotFound, "getting goal")
	}
	return repo.unpack(r), nil
}

func (repo goalRepository) GetGoalByClusterYear(ctx context.Context, cluster string, year int) (goal.Goal, error) {
	var r goalRow
	err := repo.db.GetContext(ctx, &r, `
		SELECT `+goalColumns+` FROM each1reach1_goal WHERE cluster = $1 AND year = $2`, cluster, year)
	if err != nil {
		return goal.Goal{}, trapNoRowsErr(err, goal.ErrNotFound, "getting goal by cluster/year")
	}
	return repo.unpack(r), nil
}

func (repo goalRepository) QueryGoals(ctx context.Context, filter *goal.QueryFilter, ordering []core.DBOrdering) ([]goal.Goal, error) {
	where := []string{"true"}
	var args []interface{}
	if filter != nil {
		if filter.Cluster != "" {
			args = append(args, filter.Cluster)
			where = append(where, "cluster = $"+itoa(len(args)))
		}
		if filter.Year != 0 {
			args = append(args, filter.Year)
			where = append(where, "year = $"+itoa(len(args)))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			where = append(where, "status = $"+itoa(len(args)))
		}
	}

	query := `SELECT ` + goalColumns + ` FROM each1reach1_goal WHERE ` + strings.Join(where, " AND ") +
		orderBy(ordering, "year ASC, cluster ASC")

	var rows []goalRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying goals")
	}
	goals := make([]goal.Goal, 0, len(rows))
	for _, r := range rows {
		goals = append(goals, repo.unpack(r))
	}
	return goals, nil
}

func (repo goalRepository) UpdateGoal(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	r := repo.pack(g)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE each1reach1_goal SET
			cluster_name = :cluster_name, target_conversions = :target_conversions,
			achieved_conversions = :achieved_conversions, status = :status,
			progress_percentage = :progress_percentage, updated_at = :updated_at
		WHERE id = :id`, r)
	if err != nil {
		return goal.Goal{}, errors.Wrap(err, "updating goal")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goal.Goal{}, errors.Wrap(err, "updating goal")
	}
	if n == 0 {
		return goal.Goal{}, goal.ErrNotFound
	}
	return g, nil
}
