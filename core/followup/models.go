package followup

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tmkamba/kanisa/core"
)

// Task types.
const (
	TypePhoneCall   = "PHONE_CALL"
	TypeTextMessage = "TEXT_MESSAGE"
	TypeVisit       = "VISIT"
	TypeEmail       = "EMAIL"
	TypePrayer      = "PRAYER"
	TypeOther       = "OTHER"
)

// Task statuses. COMPLETED and CANCELLED are terminal.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// Task priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

var (
	Types      = []string{TypePhoneCall, TypeTextMessage, TypeVisit, TypeEmail, TypePrayer, TypeOther}
	Statuses   = []string{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}
	Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
)

// Task is a scheduled outreach action on a prospect. CompletedDate is set if and
// only if Status is COMPLETED.
type Task struct {
	ID             string    `json:"id"`
	ProspectID     string    `json:"prospect"`
	ProspectName   string    `json:"prospect_name,omitempty"`
	AssignedTo     string    `json:"assigned_to"`
	AssignedToName string    `json:"assigned_to_name,omitempty"`
	TaskType       string    `json:"task_type"`
	Notes          string    `json:"notes,omitempty"`
	DueDate        time.Time `json:"due_date"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	CompletedDate  time.Time `json:"completed_date,omitempty"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// IsClosed reports whether the task reached a terminal status.
func (t *Task) IsClosed() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// NewTask contains information needed to create a new Task.
type NewTask struct {
	ProspectID     string    `json:"prospect" validate:"required"`
	AssignedTo     string    `json:"assigned_to" validate:"required"`
	AssignedToName string    `json:"assigned_to_name"`
	TaskType       string    `json:"task_type" validate:"required,tasktype"`
	Notes          string    `json:"notes"`
	DueDate        time.Time `json:"due_date" validate:"required"`
	Priority       string    `json:"priority" validate:"omitempty,taskpriority"`
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.TaskType = strings.ToUpper(core.CleanString(nt.TaskType))
	nt.Priority = strings.ToUpper(core.CleanString(nt.Priority))
	nt.Notes = core.CleanString(nt.Notes)
	return validate.Struct(nt)
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	ProspectID string    `query:"prospect"`
	AssignedTo string    `query:"assigned_to"`
	Status     string    `query:"status"`
	Priority   string    `query:"priority"`
	DueBefore  time.Time `query:"due_before"`
}

// InitValidators registers the follow-up domain's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterEnumValidation(validate, translator, "tasktype", Types)
	core.RegisterEnumValidation(validate, translator, "taskstatus", Statuses)
	core.RegisterEnumValidation(validate, translator, "taskpriority", Priorities)
}
