package prospect

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tmkamba/kanisa/core"
)

// Pipeline stages, in funnel order.
const (
	StageInvited    = "INVITED"
	StageAttended   = "ATTENDED"
	StageBaptized   = "BAPTIZED"
	StageReceivedHG = "RECEIVED_HG"
	StageConverted  = "CONVERTED"
)

// Fast-track reasons. A prospect with a reason other than NONE may skip a single
// pipeline stage per transition.
const (
	FastTrackNone         = "NONE"
	FastTrackGoingAbroad  = "GOING_ABROAD"
	FastTrackHealthIssues = "HEALTH_ISSUES"
	FastTrackOther        = "OTHER"
)

// Drop-off reasons.
const (
	DropOffNoContact    = "NO_CONTACT"
	DropOffNoShow       = "NO_SHOW"
	DropOffLostInterest = "LOST_INTEREST"
	DropOffMoved        = "MOVED"
	DropOffOther        = "OTHER"
)

var (
	// Stages lists the pipeline stages in forward order.
	Stages = []string{StageInvited, StageAttended, StageBaptized, StageReceivedHG, StageConverted}

	FastTrackReasons = []string{FastTrackNone, FastTrackGoingAbroad, FastTrackHealthIssues, FastTrackOther}
	DropOffReasons   = []string{DropOffNoContact, DropOffNoShow, DropOffLostInterest, DropOffMoved, DropOffOther}

	stageRanks = map[string]int{
		StageInvited:    0,
		StageAttended:   1,
		StageBaptized:   2,
		StageReceivedHG: 3,
		StageConverted:  4,
	}
)

// StageRank returns the position of a stage in the funnel, or -1 for an unknown stage.
func StageRank(stage string) int {
	if rank, ok := stageRanks[stage]; ok {
		return rank
	}
	return -1
}

// Prospect is an invited individual tracked through the conversion funnel.
// Person, cluster and group ids reference records owned by the directory module;
// the *Name fields are denormalized for read convenience.
type Prospect struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactInfo  string `json:"contact_info,omitempty"`
	SocialHandle string `json:"social_handle,omitempty"`

	InvitedBy          string `json:"invited_by"`
	InvitedByName      string `json:"invited_by_name,omitempty"`
	InviterCluster     string `json:"inviter_cluster"`
	InviterClusterName string `json:"inviter_cluster_name,omitempty"`
	EvangelismGroup    string `json:"evangelism_group,omitempty"`
	EndorsedCluster    string `json:"endorsed_cluster,omitempty"`
	PersonID           string `json:"person,omitempty"`

	PipelineStage    string    `json:"pipeline_stage"`
	FirstContactDate time.Time `json:"first_contact_date"` // UTC
	LastActivityDate time.Time `json:"last_activity_date"` // UTC

	IsAttendingCluster   bool   `json:"is_attending_cluster"`
	HasFinishedLessons   bool   `json:"has_finished_lessons"`
	CommitmentFormSigned bool   `json:"commitment_form_signed"`
	FastTrackReason      string `json:"fast_track_reason"`

	IsDroppedOff  bool      `json:"is_dropped_off"`
	DropOffDate   time.Time `json:"drop_off_date,omitempty"`
	DropOffStage  string    `json:"drop_off_stage,omitempty"`
	DropOffReason string    `json:"drop_off_reason,omitempty"`

	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// IsTerminal reports whether the prospect completed the funnel.
func (p *Prospect) IsTerminal() bool {
	return p.PipelineStage == StageConverted
}

// DropOff records a detected stall in a prospect's pipeline activity.
type DropOff struct {
	ID           string `json:"id"`
	ProspectID   string `json:"prospect"`
	ProspectName string `json:"prospect_name,omitempty"`

	DropOffDate  time.Time `json:"drop_off_date"`
	DropOffStage string    `json:"drop_off_stage"`
	DaysInactive int       `json:"days_inactive"`
	Reason       string    `json:"reason"`

	RecoveryAttempted bool      `json:"recovery_attempted"`
	Recovered         bool      `json:"recovered"`
	RecoveredDate     time.Time `json:"recovered_date,omitempty"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// StageEntry is an audit row written on every pipeline transition. SkippedStage is
// set when a fast-tracked prospect jumped over a stage.
type StageEntry struct {
	ID           string    `json:"id"`
	ProspectID   string    `json:"prospect"`
	FromStage    string    `json:"from_stage,omitempty"`
	ToStage      string    `json:"to_stage"`
	SkippedStage string    `json:"skipped_stage,omitempty"`
	ActivityDate time.Time `json:"activity_date"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// NewProspect contains information needed to invite a new Prospect.
type NewProspect struct {
	Name             string    `json:"name" validate:"required"`
	ContactInfo      string    `json:"contact_info"`
	SocialHandle     string    `json:"social_handle"`
	InvitedBy        string    `json:"invited_by" validate:"required"`
	InvitedByName    string    `json:"invited_by_name"`
	InviterCluster   string    `json:"inviter_cluster" validate:"required"`
	EvangelismGroup  string    `json:"evangelism_group"`
	EndorsedCluster  string    `json:"endorsed_cluster"`
	FirstContactDate time.Time `json:"first_contact_date"`
	FastTrackReason  string    `json:"fast_track_reason" validate:"omitempty,fasttrackreason"`
}

func (np *NewProspect) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.ContactInfo = core.CleanString(np.ContactInfo)
	np.SocialHandle = core.CleanString(np.SocialHandle)
	return validate.Struct(np)
}

// UpdateProspect defines what information may be provided to modify an existing Prospect.
// Pipeline stage is not updatable here; use the stage-advance operations.
type UpdateProspect struct {
	Name                 string `json:"name"`
	ContactInfo          string `json:"contact_info"`
	SocialHandle         string `json:"social_handle"`
	EvangelismGroup      string `json:"evangelism_group"`
	EndorsedCluster      string `json:"endorsed_cluster"`
	IsAttendingCluster   *bool  `json:"is_attending_cluster"`
	HasFinishedLessons   *bool  `json:"has_finished_lessons"`
	CommitmentFormSigned *bool  `json:"commitment_form_signed"`
	FastTrackReason      string `json:"fast_track_reason" validate:"omitempty,fasttrackreason"`
}

func (up *UpdateProspect) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	return validate.Struct(up)
}

// StageAdvance is the payload of a pipeline stage transition.
type StageAdvance struct {
	Stage        string    `json:"stage" validate:"required,pipelinestage"`
	ActivityDate time.Time `json:"activity_date" validate:"required"`
}

func (sa *StageAdvance) Validate(validate *validator.Validate) error {
	sa.Stage = strings.ToUpper(core.CleanString(sa.Stage))
	return validate.Struct(sa)
}

// QueryFilter applies AND operation on available fields.
// Search does a case-insensitive match on Prospect.Name or ContactInfo.
type QueryFilter struct {
	Search       string    `query:"search"`
	Stage        string    `query:"stage"`
	Cluster      string    `query:"cluster"`
	Group        string    `query:"group"`
	IsDroppedOff *bool     `query:"is_dropped_off"`
	CreatedFrom  time.Time `query:"created_from"`
	CreatedTo    time.Time `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// DropOffFilter filters drop-off records.
type DropOffFilter struct {
	Stage     string `query:"stage"`
	Reason    string `query:"reason"`
	Recovered *bool  `query:"recovered"`
}

// InitValidators registers the prospect domain's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterEnumValidation(validate, translator, "pipelinestage", Stages)
	core.RegisterEnumValidation(validate, translator, "fasttrackreason", FastTrackReasons)
	core.RegisterEnumValidation(validate, translator, "dropoffreason", DropOffReasons)
}
