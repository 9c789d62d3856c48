package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/prospect"
)

var (
	// errors
	ErrNotFound = errors.New("conversion not found")
)

type (
	Repository interface {
		CreateConversion(ctx context.Context, c Conversion) (Conversion, error)
		GetConversionByID(ctx context.Context, id string) (Conversion, error)
		// GetConversionByProspectID returns ErrNotFound when the prospect has no
		// conversion yet; this is the idempotency guard of RecordFromPipeline.
		GetConversionByProspectID(ctx context.Context, prospectID string) (Conversion, error)
		// QueryConversions applies AND operation on available QueryFilter fields.
		QueryConversions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Conversion, error)
		UpdateConversion(ctx context.Context, c Conversion) (Conversion, error)
		// CountConversions counts conversions attributed to a cluster in a year.
		CountConversions(ctx context.Context, cluster string, year int) (int, error)
	}

	// GoalRefresher recomputes the Each1Reach1 goal progress for a cluster/year
	// after a conversion lands.
	GoalRefresher interface {
		Refresh(ctx context.Context, cluster string, year int) error
	}

	Service struct {
		repo   Repository
		goals  GoalRefresher
		logger core.Logger
	}
)

func NewService(repo Repository, goals GoalRefresher, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		goals:  goals,
		logger: logger,
	}
}

var _ prospect.ConversionRecorder = (*Service)(nil)

// RecordFromPipeline finalizes a prospect that reached the end of the funnel.
// Idempotent: a prospect that already has a Conversion keeps its existing record.
func (svc *Service) RecordFromPipeline(ctx context.Context, rec prospect.PipelineConversion) error {
	// a conversion is meaningless without a directory person to attach it to
	if rec.PersonID == "" {
		return core.NewValidationError(
			errors.New("conversion requires a person record"),
			core.FieldError{Field: "person", Error: "prospect has no directory person record"},
		)
	}

	if _, err := svc.repo.GetConversionByProspectID(ctx, rec.ProspectID); err == nil {
		return nil // already recorded
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	c := Conversion{
		PersonID:        rec.PersonID,
		PersonName:      rec.ProspectName,
		ProspectID:      rec.ProspectID,
		ConvertedBy:     rec.ConvertedBy,
		Cluster:         rec.Cluster,
		EvangelismGroup: rec.EvangelismGroup,
		ConversionDate:  rec.Date.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	c.Recompute()
	c, err := svc.repo.CreateConversion(ctx, c)
	if err != nil {
		return err
	}
	svc.refreshGoal(ctx, c)
	return nil
}

// Record creates a Conversion directly, outside the prospect pipeline.
func (svc *Service) Record(ctx context.Context, nc NewConversion) (Conversion, error) {
	if nc.ProspectID != "" {
		// same idempotency rule as the pipeline path
		if existing, err := svc.repo.GetConversionByProspectID(ctx, nc.ProspectID); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrNotFound) {
			return Conversion{}, err
		}
	}

	now := time.Now().UTC()
	c := Conversion{
		PersonID:        nc.PersonID,
		PersonName:      nc.PersonName,
		ProspectID:      nc.ProspectID,
		ConvertedBy:     nc.ConvertedBy,
		ConvertedByName: nc.ConvertedByName,
		Cluster:         nc.Cluster,
		EvangelismGroup: nc.EvangelismGroup,
		ConversionDate:  nc.ConversionDate.UTC(),
		VerifiedBy:      nc.VerifiedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	c.Recompute()
	c, err := svc.repo.CreateConversion(ctx, c)
	if err != nil {
		return Conversion{}, err
	}
	svc.refreshGoal(ctx, c)
	return c, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Conversion, error) {
	return svc.repo.GetConversionByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Conversion, error) {
	return svc.repo.QueryConversions(ctx, filter, ordering)
}

// SetBaptismDates amends a Conversion with baptism dates and re-derives IsComplete.
func (svc *Service) SetBaptismDates(ctx context.Context, id string, bu BaptismUpdate) (Conversion, error) {
	c, err := svc.repo.GetConversionByID(ctx, id)
	if err != nil {
		return Conversion{}, err
	}

	if !bu.WaterBaptismDate.IsZero() {
		c.WaterBaptismDate = bu.WaterBaptismDate.UTC()
	}
	if !bu.SpiritBaptismDate.IsZero() {
		c.SpiritBaptismDate = bu.SpiritBaptismDate.UTC()
	}
	if bu.VerifiedBy != "" {
		c.VerifiedBy = bu.VerifiedBy
	}
	c.Recompute()
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateConversion(ctx, c)
}

func (svc *Service) refreshGoal(ctx context.Context, c Conversion) {
	if svc.goals == nil || c.Cluster == "" {
		return
	}
	if err := svc.goals.Refresh(ctx, c.Cluster, c.ConversionDate.Year()); err != nil {
		svc.logger.Error(fmt.Sprintf("refreshing goal for cluster %s", c.Cluster), err)
	}
}
