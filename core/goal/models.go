package goal

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Goal statuses.
const (
	StatusNotStarted = "NOT_STARTED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

var Statuses = []string{StatusNotStarted, StatusInProgress, StatusCompleted}

// Goal is an annual Each1Reach1 conversion target for a cluster.
// AchievedConversions, Status and ProgressPercentage are derived from the
// conversion records; they are recomputed on every refresh, never set by callers.
type Goal struct {
	ID                  string    `json:"id"`
	Cluster             string    `json:"cluster"`
	ClusterName         string    `json:"cluster_name,omitempty"`
	Year                int       `json:"year"`
	TargetConversions   int       `json:"target_conversions"`
	AchievedConversions int       `json:"achieved_conversions"`
	Status              string    `json:"status"`
	ProgressPercentage  float64   `json:"progress_percentage"`
	CreatedAt           time.Time `json:"created_at"` // UTC
	UpdatedAt           time.Time `json:"updated_at"` // UTC
}

// Recompute re-derives the goal's status and progress from the achieved count.
// The percentage is capped at 100 even when the target is exceeded.
func (g *Goal) Recompute(achieved int) {
	g.AchievedConversions = achieved
	switch {
	case g.TargetConversions > 0 && achieved >= g.TargetConversions:
		g.Status = StatusCompleted
	case achieved > 0:
		g.Status = StatusInProgress
	default:
		g.Status = StatusNotStarted
	}

	if g.TargetConversions <= 0 {
		g.ProgressPercentage = 0
		return
	}
	pct := float64(achieved) / float64(g.TargetConversions) * 100
	if pct > 100 {
		pct = 100
	}
	g.ProgressPercentage = pct
}

// NewGoal contains information needed to create a new Goal.
type NewGoal struct {
	Cluster           string `json:"cluster" validate:"required"`
	ClusterName       string `json:"cluster_name"`
	Year              int    `json:"year" validate:"required,min=2000"`
	TargetConversions int    `json:"target_conversions" validate:"required,gt=0"`
}

func (ng *NewGoal) Validate(validate *validator.Validate) error {
	return validate.Struct(ng)
}

// UpdateGoal defines what information may be provided to modify an existing Goal.
type UpdateGoal struct {
	TargetConversions int `json:"target_conversions" validate:"omitempty,gt=0"`
}

func (ug *UpdateGoal) Validate(validate *validator.Validate) error {
	return validate.Struct(ug)
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	Cluster string `query:"cluster"`
	Year    int    `query:"year"`
	Status  string `query:"status"`
}
