package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/conversion"
)

type conversionRepository struct {
	db *conversionTable
}

var _ conversion.Repository = (*conversionRepository)(nil) // interface compliance check

func NewConversionRepository(db *DB) *conversionRepository {
	return &conversionRepository{db: db.conversions}
}

func (repo *conversionRepository) CreateConversion(_ context.Context, c conversion.Conversion) (conversion.Conversion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = uuid.New().String()
	repo.db.conversions[c.ID] = &c
	return c, nil
}

func (repo *conversionRepository) GetConversionByID(_ context.Context, id string) (conversion.Conversion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.conversions[id]; ok {
		return *c, nil
	}
	return conversion.Conversion{}, conversion.ErrNotFound
}

func (repo *conversionRepository) GetConversionByProspectID(_ context.Context, prospectID string) (conversion.Conversion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.conversions {
		if c.ProspectID == prospectID {
			return *c, nil
		}
	}
	return conversion.Conversion{}, conversion.ErrNotFound
}

func (repo *conversionRepository) QueryConversions(_ context.Context, filter *conversion.QueryFilter, _ []core.DBOrdering) ([]conversion.Conversion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	conversions := make([]conversion.Conversion, 0, len(repo.db.conversions))
	for _, c := range repo.db.conversions {
		if filter != nil {
			if filter.ConvertedBy != "" && c.ConvertedBy != filter.ConvertedBy {
				continue
			}
			if filter.Cluster != "" && c.Cluster != filter.Cluster {
				continue
			}
			if filter.Group != "" && c.EvangelismGroup != filter.Group {
				continue
			}
			if filter.Year != 0 && c.ConversionDate.Year() != filter.Year {
				continue
			}
		}
		conversions = append(conversions, *c)
	}
	sort.Slice(conversions, func(i, j int) bool {
		if !conversions[i].ConversionDate.Equal(conversions[j].ConversionDate) {
			return conversions[i].ConversionDate.Before(conversions[j].ConversionDate)
		}
		return conversions[i].ID < conversions[j].ID
	})
	return conversions, nil
}

func (repo *conversionRepository) UpdateConversion(_ context.Context, c conversion.Conversion) (conversion.Conversion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.conversions[c.ID]; !ok {
		return conversion.Conversion{}, conversion.ErrNotFound
	}
	repo.db.conversions[c.ID] = &c
	return c, nil
}

func (repo *conversionRepository) CountConversions(_ context.Context, cluster string, year int) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, c := range repo.db.conversions {
		if c.Cluster == cluster && c.ConversionDate.Year() == year {
			count++
		}
	}
	return count, nil
}
