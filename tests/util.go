package testutil

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/followup"
	"github.com/tmkamba/kanisa/core/prospect"
	logsvc "github.com/tmkamba/kanisa/services/logger"
)

// NewConfig returns a self-contained test configuration; no env files are read.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Kanisa",
		Env:              "TEST",
		Debug:            false,
		TestMode:         true,
		Build:            "test",
		SecretKey:        "secret",
		DefaultFromEmail: "noreply@localhost",
		Server: core.ServerConfig{
			Host:               "127.0.0.1",
			Port:               0,
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: 10 * time.Minute,
		},
		Detector: core.DetectorConfig{
			ScanInterval:  time.Hour,
			InvitedDays:   14,
			AttendedDays:  21,
			BaptizedDays:  30,
			ReceivedDays:  45,
			FollowUpDueIn: 72 * time.Hour,
		},
	}
}

// NewLogger returns a quiet logger for tests.
func NewLogger() core.Logger {
	return logsvc.NewConsoleLogger(log.New(ioutil.Discard, "", 0))
}

// FakeDirectory is an in-memory stand-in for the people directory. All persons
// are active unless listed in Inactive.
type FakeDirectory struct {
	mu        sync.Mutex
	nextID    int
	Inactive  map[string]bool
	Emails    map[string]string
	EnsureErr error
}

var (
	_ prospect.DirectoryService = (*FakeDirectory)(nil)
	_ followup.PersonChecker    = (*FakeDirectory)(nil)
)

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		Inactive: make(map[string]bool),
		Emails:   make(map[string]string),
	}
}

func (d *FakeDirectory) EnsurePerson(_ context.Context, name, contactInfo string) (string, error) {
	if d.EnsureErr != nil {
		return "", d.EnsureErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return fmt.Sprintf("person-%d", d.nextID), nil
}

func (d *FakeDirectory) IsActivePerson(_ context.Context, personID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.Inactive[personID], nil
}

func (d *FakeDirectory) PersonEmail(_ context.Context, personID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Emails[personID], nil
}

// CreateProspect inserts a prospect directly through the repository, bypassing
// service-level side effects (no stage entry is written).
func CreateProspect(
	t *testing.T,
	repo prospect.Repository,
	name, invitedBy, cluster, stage string,
	lastActivity time.Time,
) prospect.Prospect {
	t.Helper()
	now := time.Now().UTC()
	p := prospect.Prospect{
		Name:             name,
		InvitedBy:        invitedBy,
		InviterCluster:   cluster,
		PipelineStage:    stage,
		FastTrackReason:  prospect.FastTrackNone,
		FirstContactDate: lastActivity.UTC(),
		LastActivityDate: lastActivity.UTC(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	p, err := repo.CreateProspect(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateProspect() failed: %v", err)
	}
	return p
}

// CreateTask inserts a follow-up task directly through the repository.
func CreateTask(
	t *testing.T,
	repo followup.Repository,
	prospectID, assignee, taskType, status, priority string,
	due time.Time,
) followup.Task {
	t.Helper()
	now := time.Now().UTC()
	task := followup.Task{
		ProspectID: prospectID,
		AssignedTo: assignee,
		TaskType:   taskType,
		DueDate:    due.UTC(),
		Status:     status,
		Priority:   priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	task, err := repo.CreateTask(context.Background(), task)
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	return task
}
