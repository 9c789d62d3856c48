package weekly

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tmkamba/kanisa/core"
)

// Gathering types reported by group leaders.
const (
	GatheringCellGroup     = "CELL_GROUP"
	GatheringBibleStudy    = "BIBLE_STUDY"
	GatheringPrayerMeeting = "PRAYER_MEETING"
	GatheringSundayService = "SUNDAY_SERVICE"

	// GatheringMixed is never reported directly; the weekly tally uses it when
	// reports for the same group and week disagree on the gathering type.
	GatheringMixed = "MIXED"
	// GatheringUnknown marks tally rows that could not be attributed to a cluster.
	GatheringUnknown = "UNKNOWN"
)

var GatheringTypes = []string{GatheringCellGroup, GatheringBibleStudy, GatheringPrayerMeeting, GatheringSundayService}

// Report is a group leader's weekly gathering report; the raw input of the
// weekly tally.
type Report struct {
	ID              string    `json:"id"`
	Cluster         string    `json:"cluster"`
	EvangelismGroup string    `json:"evangelism_group,omitempty"`
	GatheringType   string    `json:"gathering_type"`
	Year            int       `json:"year"`
	WeekNumber      int       `json:"week_number"` // ISO week
	MembersPresent  int       `json:"members_present"`
	VisitorsPresent int       `json:"visitors_present"`
	ReportedBy      string    `json:"reported_by"`
	ReportDate      time.Time `json:"report_date"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

// NewReport contains information needed to submit a weekly Report.
type NewReport struct {
	Cluster         string    `json:"cluster" validate:"required"`
	EvangelismGroup string    `json:"evangelism_group"`
	GatheringType   string    `json:"gathering_type" validate:"required,gatheringtype"`
	MembersPresent  int       `json:"members_present" validate:"min=0"`
	VisitorsPresent int       `json:"visitors_present" validate:"min=0"`
	ReportedBy      string    `json:"reported_by" validate:"required"`
	ReportDate      time.Time `json:"report_date"`
}

func (nr *NewReport) Validate(validate *validator.Validate) error {
	nr.GatheringType = strings.ToUpper(core.CleanString(nr.GatheringType))
	return validate.Struct(nr)
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	Cluster    string `query:"cluster"`
	Group      string `query:"group"`
	Year       int    `query:"year"`
	WeekNumber int    `query:"week_number"`
}

// InitValidators registers the weekly-report domain's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterEnumValidation(validate, translator, "gatheringtype", GatheringTypes)
}
