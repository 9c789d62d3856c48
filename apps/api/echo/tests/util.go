package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/tmkamba/kanisa/apps/api/echo"
	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/followup"
	"github.com/tmkamba/kanisa/core/goal"
	"github.com/tmkamba/kanisa/core/prospect"
	"github.com/tmkamba/kanisa/core/report"
	"github.com/tmkamba/kanisa/core/weekly"
	emailsvc "github.com/tmkamba/kanisa/services/email"
	inmemdb "github.com/tmkamba/kanisa/storage/database/inmem"
	testutil "github.com/tmkamba/kanisa/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp bundles the server with the repos and services its tests seed data through.
type testApp struct {
	app  *Server
	conf *core.Config
	dir  *testutil.FakeDirectory

	prospectSvc *prospect.Service
	taskSvc     *followup.Service
	convSvc     *conversion.Service
	goalSvc     *goal.Service
	weeklySvc   *weekly.Service

	healthErr error // returned by the server's storage health check
}

func setup(t *testing.T) *testApp {
	t.Helper()

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	prospectRepo := inmemdb.NewProspectRepository(db)
	taskRepo := inmemdb.NewTaskRepository(db)
	convRepo := inmemdb.NewConversionRepository(db)
	goalRepo := inmemdb.NewGoalRepository(db)
	weeklyRepo := inmemdb.NewReportRepository(db)

	// set up services
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	dir := testutil.NewFakeDirectory()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	prospectSvc := prospect.NewService(prospectRepo, dir, conf, logger)
	taskSvc := followup.NewService(taskRepo, dir, mailSvc, conf, logger)
	goalSvc := goal.NewService(goalRepo, convRepo)
	convSvc := conversion.NewService(convRepo, goalSvc, logger)
	weeklySvc := weekly.NewService(weeklyRepo)
	reportSvc := report.NewService(prospectRepo, convRepo, weeklyRepo, goalRepo, logger)

	prospectSvc.SetConversionRecorder(convSvc)
	prospectSvc.SetFollowUpScheduler(taskSvc)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	prospect.InitValidators(validate, translator)
	followup.InitValidators(validate, translator)
	weekly.InitValidators(validate, translator)

	ta := &testApp{
		conf:        conf,
		dir:         dir,
		prospectSvc: prospectSvc,
		taskSvc:     taskSvc,
		convSvc:     convSvc,
		goalSvc:     goalSvc,
		weeklySvc:   weeklySvc,
	}

	// set up server
	ta.app = NewServer(
		ServerDeps{
			Conf:           conf,
			Logger:         logger,
			ProspectSvc:    prospectSvc,
			TaskSvc:        taskSvc,
			ConversionSvc:  convSvc,
			GoalSvc:        goalSvc,
			WeeklySvc:      weeklySvc,
			ReportSvc:      reportSvc,
			Validate:       validate,
			Translator:     translator,
			HealthCheck:    func(context.Context) error { return ta.healthErr },
			DisableReqLogs: true,
		},
	)
	return ta
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func (ta *testApp) getToken(t *testing.T, personID string) string {
	claims := GetPersonClaims(ta.conf, personID, "Test Member", "member@test.cd", "c1")
	token, err := GenerateToken(ta.conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
