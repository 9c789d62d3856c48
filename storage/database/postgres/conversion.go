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
	"github.com/tmkamba/kanisa/core/conversion"
)

type conversionRow struct {
	ID                string      `db:"id"`
	PersonID          string      `db:"person_id"`
	PersonName        null.String `db:"person_name"`
	ProspectID        null.String `db:"prospect_id"`
	ConvertedBy       string      `db:"converted_by"`
	ConvertedByName   null.String `db:"converted_by_name"`
	Cluster           null.String `db:"cluster"`
	EvangelismGroup   null.String `db:"evangelism_group"`
	ConversionDate    time.Time   `db:"conversion_date"`
	WaterBaptismDate  null.Time   `db:"water_baptism_date"`
	SpiritBaptismDate null.Time   `db:"spirit_baptism_date"`
	IsComplete        bool        `db:"is_complete"`
	VerifiedBy        null.String `db:"verified_by"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

const conversionColumns = `id, person_id, person_name, prospect_id, converted_by, converted_by_name,
	cluster, evangelism_group, conversion_date, water_baptism_date, spirit_baptism_date,
	is_complete, verified_by, created_at, updated_at`

type conversionRepository struct {
	db *sqlx.DB
}

var _ conversion.Repository = (*conversionRepository)(nil) // interface compliance check

func NewConversionRepository(db *sqlx.DB) *conversionRepository {
	return &conversionRepository{db: db}
}

func (repo conversionRepository) pack(c conversion.Conversion) conversionRow {
	return conversionRow{
		ID:                c.ID,
		PersonID:          c.PersonID,
		PersonName:        null.NewString(c.PersonName, c.PersonName != ""),
		ProspectID:        null.NewString(c.ProspectID, c.ProspectID != ""),
		ConvertedBy:       c.ConvertedBy,
		ConvertedByName:   null.NewString(c.ConvertedByName, c.ConvertedByName != ""),
		Cluster:           null.NewString(c.Cluster, c.Cluster != ""),
		EvangelismGroup:   null.NewString(c.EvangelismGroup, c.EvangelismGroup != ""),
		ConversionDate:    c.ConversionDate.UTC(),
		WaterBaptismDate:  null.NewTime(c.WaterBaptismDate.UTC(), !c.WaterBaptismDate.IsZero()),
		SpiritBaptismDate: null.NewTime(c.SpiritBaptismDate.UTC(), !c.SpiritBaptismDate.IsZero()),
		IsComplete:        c.IsComplete,
		VerifiedBy:        null.NewString(c.VerifiedBy, c.VerifiedBy != ""),
		CreatedAt:         c.CreatedAt.UTC(),
		UpdatedAt:         c.UpdatedAt.UTC(),
	}
}

func (repo conversionRepository) unpack(r conversionRow) conversion.Conversion {
	return conversion.Conversion{
		ID:                r.ID,
		PersonID:          r.PersonID,
		PersonName:        r.PersonName.String,
		ProspectID:        r.ProspectID.String,
		ConvertedBy:       r.ConvertedBy,
		ConvertedByName:   r.ConvertedByName.String,
		Cluster:           r.Cluster.String,
		EvangelismGroup:   r.EvangelismGroup.String,
		ConversionDate:    r.ConversionDate,
		WaterBaptismDate:  r.WaterBaptismDate.Time,
		SpiritBaptismDate: r.SpiritBaptismDate.Time,
		IsComplete:        r.IsComplete,
		VerifiedBy:        r.VerifiedBy.String,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (repo conversionRepository) CreateConversion(ctx context.Context, c conversion.Conversion) (conversion.Conversion, error) {
	c.ID = uuid.New().String()
	r := repo.pack(c)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO conversion (`+conversionColumns+`)
		VALUES (:id, :person_id, :person_name, :prospect_id, :converted_by, :converted_by_name,
			:cluster, :evangelism_group, :conversion_date, :water_baptism_date, :spirit_baptism_date,
			:is_complete, :verified_by, :created_at, :updated_at)`, r)
	if err != nil {
		return conversion.Conversion{}, errors.Wrap(err, "inserting conversion")
	}
	return c, nil
}

func (repo conversionRepository) GetConversionByID(ctx context.Context, id string) (conversion.Conversion, error) {
	var r conversionRow
	err := repo.db.GetContext(ctx, &r, `SELECT `+conversionColumns+` FROM conversion WHERE id = $1`, id)
	if err != nil {
		return conversion.Conversion{}, trapNoRowsErr(err, conversion.ErrNotFound, "getting conversion")
	}
	return repo.unpack(r), nil
}

func (repo conversionRepository) GetConversionByProspectID(ctx context.Context, prospectID string) (conversion.Conversion, error) {
	var r conversionRow
	err := repo.db.GetContext(ctx, &r, `SELECT `+conversionColumns+` FROM conversion WHERE prospect_id = $1`, prospectID)
	if err != nil {
		return conversion.Conversion{}, trapNoRowsErr(err, conversion.ErrNotFound, "getting conversion by prospect")
	}
	return repo.unpack(r), nil
}

func (repo conversionRepository) QueryConversions(ctx context.Context, filter *conversion.QueryFilter, ordering []core.DBOrdering) ([]conversion.Conversion, error) {
	where := []string{"true"}
	var args []interface{}
	if filter != nil {
		if filter.ConvertedBy != "" {
			args = append(args, filter.ConvertedBy)
			where = append(where, "converted_by = $"+itoa(len(args)))
		}
		if filter.Cluster != "" {
			args = append(args, filter.Cluster)
			where = append(where, "cluster = $"+itoa(len(args)))
		}
		if filter.Group != "" {
			args = append(args, filter.Group)
			where = append(where, "evangelism_group = $"+itoa(len(args)))
		}
		if filter.Year != 0 {
			args = append(args, filter.Year)
			where = append(where, "EXTRACT(YEAR FROM conversion_date) = $"+itoa(len(args)))
		}
	}

	query := `SELECT ` + conversionColumns + ` FROM conversion WHERE ` + strings.Join(where, " AND ") +
		orderBy(ordering, "conversion_date ASC, id ASC")

	var rows []conversionRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying conversions")
	}
	conversions := make([]conversion.Conversion, 0, len(rows))
	for _, r := range rows {
		conversions = append(conversions, repo.unpack(r))
	}
	return conversions, nil
}

func (repo conversionRepository) UpdateConversion(ctx context.Context, c conversion.Conversion) (conversion.Conversion, error) {
	r := repo.pack(c)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE conversion SET
			person_name = :person_name, converted_by_name = :converted_by_name,
			water_baptism_date = :water_baptism_date, spirit_baptism_date = :spirit_baptism_date,
			is_complete = :is_complete, verified_by = :verified_by, updated_at = :updated_at
		WHERE id = :id`, r)
	if err != nil {
		return conversion.Conversion{}, errors.Wrap(err, "updating conversion")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return conversion.Conversion{}, errors.Wrap(err, "updating conversion")
	}
	if n == 0 {
		return conversion.Conversion{}, conversion.ErrNotFound
	}
	return c, nil
}

func (repo conversionRepository) CountConversions(ctx context.Context, cluster string, year int) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM conversion
		WHERE cluster = $1 AND EXTRACT(YEAR FROM conversion_date) = $2`, cluster, year)
	if err != nil {
		return 0, errors.Wrap(err, "counting conversions")
	}
	return count, nil
}
