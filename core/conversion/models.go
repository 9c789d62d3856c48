package conversion

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tmkamba/kanisa/core"
)

// Conversion is the terminal success record of the funnel: a prospect (or an
// externally introduced person) who became a full convert. IsComplete is always
// derived from the two baptism dates, never set directly.
type Conversion struct {
	ID              string `json:"id"`
	PersonID        string `json:"person"`
	PersonName      string `json:"person_name,omitempty"`
	ProspectID      string `json:"prospect,omitempty"`
	ConvertedBy     string `json:"converted_by"`
	ConvertedByName string `json:"converted_by_name,omitempty"`
	Cluster         string `json:"cluster,omitempty"`
	EvangelismGroup string `json:"evangelism_group,omitempty"`

	ConversionDate    time.Time `json:"conversion_date"`
	WaterBaptismDate  time.Time `json:"water_baptism_date,omitempty"`
	SpiritBaptismDate time.Time `json:"spirit_baptism_date,omitempty"`
	IsComplete        bool      `json:"is_complete"`
	VerifiedBy        string    `json:"verified_by,omitempty"` // verifying pastor

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Recompute re-derives IsComplete from the baptism dates.
func (c *Conversion) Recompute() {
	c.IsComplete = !c.WaterBaptismDate.IsZero() && !c.SpiritBaptismDate.IsZero()
}

// NewConversion contains information needed to record a Conversion directly
// (e.g. for converts that never went through the prospect pipeline).
type NewConversion struct {
	PersonID        string    `json:"person" validate:"required"`
	PersonName      string    `json:"person_name"`
	ProspectID      string    `json:"prospect"`
	ConvertedBy     string    `json:"converted_by" validate:"required"`
	ConvertedByName string    `json:"converted_by_name"`
	Cluster         string    `json:"cluster"`
	EvangelismGroup string    `json:"evangelism_group"`
	ConversionDate  time.Time `json:"conversion_date" validate:"required"`
	VerifiedBy      string    `json:"verified_by"`
}

func (nc *NewConversion) Validate(validate *validator.Validate) error {
	nc.PersonName = core.CleanString(nc.PersonName)
	return validate.Struct(nc)
}

// BaptismUpdate amends a Conversion with baptism dates. Zero dates are left untouched.
type BaptismUpdate struct {
	WaterBaptismDate  time.Time `json:"water_baptism_date"`
	SpiritBaptismDate time.Time `json:"spirit_baptism_date"`
	VerifiedBy        string    `json:"verified_by"`
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	ConvertedBy string `query:"converted_by"`
	Cluster     string `query:"cluster"`
	Group       string `query:"group"`
	Year        int    `query:"year"`
}
