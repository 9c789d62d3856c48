package goal

import (
	"context"
	"errors"
	"time"

	"github.com/tmkamba/kanisa/core"
)

var (
	// errors
	ErrNotFound = errors.New("goal not found")
	ErrExists   = errors.New("a goal for this cluster and year already exists")
)

type (
	Repository interface {
		CreateGoal(ctx context.Context, g Goal) (Goal, error)
		GetGoalByID(ctx context.Context, id string) (Goal, error)
		GetGoalByClusterYear(ctx context.Context, cluster string, year int) (Goal, error)
		// QueryGoals applies AND operation on available QueryFilter fields.
		QueryGoals(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Goal, error)
		UpdateGoal(ctx context.Context, g Goal) (Goal, error)
	}

	// ConversionCounter counts conversions attributed to a cluster in a year;
	// the conversion repository satisfies it directly.
	ConversionCounter interface {
		CountConversions(ctx context.Context, cluster string, year int) (int, error)
	}

	Service struct {
		repo        Repository
		conversions ConversionCounter
	}
)

func NewService(repo Repository, conversions ConversionCounter) *Service {
	return &Service{repo: repo, conversions: conversions}
}

func (svc *Service) Create(ctx context.Context, ng NewGoal) (Goal, error) {
	if _, err := svc.repo.GetGoalByClusterYear(ctx, ng.Cluster, ng.Year); err == nil {
		return Goal{}, core.NewValidationError(ErrExists, core.FieldError{Field: "cluster", Error: ErrExists.Error()})
	} else if !errors.Is(err, ErrNotFound) {
		return Goal{}, err
	}

	achieved, err := svc.conversions.CountConversions(ctx, ng.Cluster, ng.Year)
	if err != nil {
		return Goal{}, err
	}

	now := time.Now().UTC()
	g := Goal{
		Cluster:           ng.Cluster,
		ClusterName:       ng.ClusterName,
		Year:              ng.Year,
		TargetConversions: ng.TargetConversions,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	g.Recompute(achieved)
	return svc.repo.CreateGoal(ctx, g)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Goal, error) {
	return svc.repo.GetGoalByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Goal, error) {
	return svc.repo.QueryGoals(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, ug UpdateGoal) (Goal, error) {
	g, err := svc.repo.GetGoalByID(ctx, id)
	if err != nil {
		return Goal{}, err
	}
	if ug.TargetConversions > 0 {
		g.TargetConversions = ug.TargetConversions
	}

	achieved, err := svc.conversions.CountConversions(ctx, g.Cluster, g.Year)
	if err != nil {
		return Goal{}, err
	}
	g.Recompute(achieved)
	g.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateGoal(ctx, g)
}

// Refresh recomputes the derived fields of the cluster/year goal from the
// current conversion count. Missing goals are ignored: not every cluster sets one.
func (svc *Service) Refresh(ctx context.Context, cluster string, year int) error {
	g, err := svc.repo.GetGoalByClusterYear(ctx, cluster, year)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	achieved, err := svc.conversions.CountConversions(ctx, cluster, year)
	if err != nil {
		return err
	}
	g.Recompute(achieved)
	g.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateGoal(ctx, g)
	return err
}
