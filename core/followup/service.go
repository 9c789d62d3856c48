package followup

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/tmkamba/kanisa/core"
)

var (
	// errors
	ErrNotFound        = errors.New("follow-up task not found")
	ErrTaskClosed      = errors.New("task already closed")
	ErrInvalidAssignee = errors.New("assignee is not an active person")
)

type (
	Repository interface {
		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTaskByID(ctx context.Context, id string) (Task, error)
		// QueryTasks applies AND operation on available QueryFilter fields.
		QueryTasks(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Task, error)
		UpdateTask(ctx context.Context, t Task) (Task, error)
		// CloseTask conditionally moves a PENDING or IN_PROGRESS task to a terminal
		// status; it returns ErrTaskClosed when the task is already terminal, so
		// exactly one of two concurrent closers wins.
		CloseTask(ctx context.Context, id, status string, completedDate time.Time) (Task, error)
		// HasOpenTask reports whether the prospect has a PENDING or IN_PROGRESS task.
		HasOpenTask(ctx context.Context, prospectID string) (bool, error)
	}

	// PersonChecker verifies assignees against the external people directory.
	PersonChecker interface {
		IsActivePerson(ctx context.Context, personID string) (bool, error)
		PersonEmail(ctx context.Context, personID string) (string, error)
	}

	Service struct {
		repo    Repository
		people  PersonChecker
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

func NewService(repo Repository, people PersonChecker, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		people:  people,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
	}
}

func (svc *Service) checkAssignee(ctx context.Context, personID string) error {
	active, err := svc.people.IsActivePerson(ctx, personID)
	if err != nil {
		return err
	}
	if !active {
		return core.NewValidationError(ErrInvalidAssignee, core.FieldError{Field: "assigned_to", Error: ErrInvalidAssignee.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nt NewTask) (Task, error) {
	if err := svc.checkAssignee(ctx, nt.AssignedTo); err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	priority := nt.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	t := Task{
		ProspectID:     nt.ProspectID,
		AssignedTo:     nt.AssignedTo,
		AssignedToName: nt.AssignedToName,
		TaskType:       nt.TaskType,
		Notes:          nt.Notes,
		DueDate:        nt.DueDate.UTC(),
		Status:         StatusPending,
		Priority:       priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t, err := svc.repo.CreateTask(ctx, t)
	if err != nil {
		return Task{}, err
	}
	svc.notifyAssignee(ctx, t)
	return t, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Task, error) {
	return svc.repo.GetTaskByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Task, error) {
	return svc.repo.QueryTasks(ctx, filter, ordering)
}

// ListPending returns the assignee's open tasks due before the given time.
func (svc *Service) ListPending(ctx context.Context, assignee string, dueBefore time.Time) ([]Task, error) {
	filter := &QueryFilter{
		AssignedTo: assignee,
		Status:     StatusPending,
		DueBefore:  dueBefore,
	}
	ordering := []core.DBOrdering{{Field: "due_date", Ascending: true}}
	return svc.repo.QueryTasks(ctx, filter, ordering)
}

// Assign hands the task to a different (active) person.
func (svc *Service) Assign(ctx context.Context, id, assignee, assigneeName string) (Task, error) {
	t, err := svc.repo.GetTaskByID(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if t.IsClosed() {
		return Task{}, ErrTaskClosed
	}
	if err = svc.checkAssignee(ctx, assignee); err != nil {
		return Task{}, err
	}

	t.AssignedTo = assignee
	t.AssignedToName = assigneeName
	t.UpdatedAt = time.Now().UTC()
	t, err = svc.repo.UpdateTask(ctx, t)
	if err != nil {
		return Task{}, err
	}
	svc.notifyAssignee(ctx, t)
	return t, nil
}

// Start moves a PENDING task to IN_PROGRESS.
func (svc *Service) Start(ctx context.Context, id string) (Task, error) {
	t, err := svc.repo.GetTaskByID(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if t.IsClosed() {
		return Task{}, ErrTaskClosed
	}
	t.Status = StatusInProgress
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTask(ctx, t)
}

// Complete closes the task. CompletedDate is only ever set here, keeping the
// status/completed-date invariant in one place.
func (svc *Service) Complete(ctx context.Context, id string, completedDate time.Time) (Task, error) {
	if completedDate.IsZero() {
		completedDate = time.Now()
	}
	return svc.repo.CloseTask(ctx, id, StatusCompleted, completedDate.UTC())
}

func (svc *Service) Cancel(ctx context.Context, id string) (Task, error) {
	return svc.repo.CloseTask(ctx, id, StatusCancelled, time.Time{})
}

// EnsureRecoveryTask creates a recovery task for a dropped-off prospect unless an
// open one already exists. Priority escalates with the prospect's drop-off cycle
// count: first MEDIUM, second HIGH, then URGENT.
func (svc *Service) EnsureRecoveryTask(ctx context.Context, prospectID, prospectName, assignee string, cycle int, due time.Time) error {
	open, err := svc.repo.HasOpenTask(ctx, prospectID)
	if err != nil {
		return err
	}
	if open {
		return nil
	}

	priority := PriorityMedium
	switch {
	case cycle >= 3:
		priority = PriorityUrgent
	case cycle == 2:
		priority = PriorityHigh
	}

	now := time.Now().UTC()
	t := Task{
		ProspectID:   prospectID,
		ProspectName: prospectName,
		AssignedTo:   assignee,
		TaskType:     TypePhoneCall,
		Notes:        fmt.Sprintf("%s has gone quiet; reach out and check in", prospectName),
		DueDate:      due.UTC(),
		Status:       StatusPending,
		Priority:     priority,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	t, err = svc.repo.CreateTask(ctx, t)
	if err != nil {
		return err
	}
	svc.notifyAssignee(ctx, t)
	return nil
}

func (svc *Service) notifyAssignee(ctx context.Context, t Task) {
	if svc.mailSvc == nil || svc.people == nil {
		return
	}
	email, err := svc.people.PersonEmail(ctx, t.AssignedTo)
	if err != nil || email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: t.AssignedToName, Address: email}},
		Subject: "New follow-up task assigned to you",
		BodyStr: fmt.Sprintf(
			"You have been assigned a %s follow-up (priority %s), due %s.\n\nNotes: %s\n",
			t.TaskType, t.Priority, t.DueDate.Format("Mon, 02 Jan 2006"), t.Notes,
		),
	})
}
