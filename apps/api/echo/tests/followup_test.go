package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkamba/kanisa/core/followup"
)

func createTask(t *testing.T, app *testApp, prospectID, assignee string, due time.Time) followup.Task {
	t.Helper()
	task, err := app.taskSvc.Create(context.Background(), followup.NewTask{
		ProspectID: prospectID,
		AssignedTo: assignee,
		TaskType:   followup.TypeVisit,
		DueDate:    due,
	})
	require.NoError(t, err)
	return task
}

func Test_taskApi_create(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	t.Run("auth required", func(t *testing.T) {
		tt := httpTest{
			path:     "/v1/tasks",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		}
		req, rec := newRequest(http.MethodPost, tt.path)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("required fields", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/tasks", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"prospect":    "this field is required",
				"assigned_to": "this field is required",
				"task_type":   "this field is required",
				"due_date":    "this field is required",
			}),
		}
		req, rec := newAuthRequest(http.MethodPost, tt.path, token, tt.body)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("inactive assignee", func(t *testing.T) {
		app.dir.Inactive["gone"] = true
		body := marchallObj(t, followup.NewTask{
			ProspectID: "p1", AssignedTo: "gone", TaskType: followup.TypeVisit, DueDate: time.Now().UTC(),
		})
		tt := httpTest{
			path: "/v1/tasks", body: body,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"assigned_to": "assignee is not an active person"}),
		}
		req, rec := newAuthRequest(http.MethodPost, tt.path, token, tt.body)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("ok, task type is normalized", func(t *testing.T) {
		body := []byte(`{"prospect": "p1", "assigned_to": "m1", "task_type": "phone_call", "due_date": "2024-06-01T00:00:00Z"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/tasks", token, body)
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got followup.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, followup.TypePhoneCall, got.TaskType)
		assert.Equal(t, followup.StatusPending, got.Status)
		assert.Equal(t, followup.PriorityMedium, got.Priority)
	})
}

func Test_taskApi_lifecycle(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	task := createTask(t, app, "p1", "m1", time.Now().UTC().Add(48*time.Hour))
	post := func(t *testing.T, action string, body []byte) *followup.Task {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/v1/tasks/"+task.ID+"/"+action, token, body)
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var got followup.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		return &got
	}

	got := post(t, "assign", marchallObj(t, map[string]string{"assigned_to": "m2", "assigned_to_name": "John"}))
	assert.Equal(t, "m2", got.AssignedTo)

	got = post(t, "start", nil)
	assert.Equal(t, followup.StatusInProgress, got.Status)

	done := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	got = post(t, "complete", marchallObj(t, map[string]time.Time{"completed_date": done}))
	assert.Equal(t, followup.StatusCompleted, got.Status)
	assert.Equal(t, done, got.CompletedDate)

	t.Run("completing twice conflicts", func(t *testing.T) {
		tt := httpTest{
			path:     "/v1/tasks/" + task.ID + "/complete",
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "task already closed"}),
		}
		req, rec := newAuthRequest(http.MethodPost, tt.path, token, []byte(`{}`))
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_taskApi_listPending(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	mine := createTask(t, app, "p1", "m1", now.Add(-time.Hour))
	createTask(t, app, "p1", "m1", now.Add(200*time.Hour)) // not due yet
	other := createTask(t, app, "p2", "m2", now.Add(-time.Hour))
	started := createTask(t, app, "p3", "m1", now.Add(-2*time.Hour))
	_, err := app.taskSvc.Start(ctx, started.ID)
	require.NoError(t, err)

	tests := []httpTest{
		{
			name: "defaults to the token subject", path: "/v1/tasks/pending", token: app.getToken(t, "m1"),
			wantCode: http.StatusOK, wantData: marchallList(t, mine),
		},
		{
			name: "explicit assignee", path: "/v1/tasks/pending?assigned_to=m2", token: app.getToken(t, "m1"),
			wantCode: http.StatusOK, wantData: marchallList(t, other),
		},
		{
			name: "bad due_before", path: "/v1/tasks/pending?due_before=tomorrow", token: app.getToken(t, "m1"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"due_before": "invalid RFC3339 timestamp"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
