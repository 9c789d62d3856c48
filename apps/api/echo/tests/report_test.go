package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/goal"
	"github.com/tmkamba/kanisa/core/report"
	"github.com/tmkamba/kanisa/core/weekly"
)

func Test_conversionApi(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	t.Run("create", func(t *testing.T) {
		body := marchallObj(t, conversion.NewConversion{
			PersonID:       "person-1",
			PersonName:     "Amos Otieno",
			ConvertedBy:    "m1",
			Cluster:        "c1",
			ConversionDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversions", token, body)
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got conversion.Conversion
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.IsComplete)

		t.Run("baptism dates", func(t *testing.T) {
			body := marchallObj(t, conversion.BaptismUpdate{
				WaterBaptismDate:  time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
				SpiritBaptismDate: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
				VerifiedBy:        "pastor-1",
			})
			req, rec := newAuthRequest(http.MethodPost, "/v1/conversions/"+got.ID+"/baptism-dates", token, body)
			app.app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)

			var updated conversion.Conversion
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
			assert.True(t, updated.IsComplete)
			assert.Equal(t, "pastor-1", updated.VerifiedBy)
		})
	})

	t.Run("required fields", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/conversions", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"person":          "this field is required",
				"converted_by":    "this field is required",
				"conversion_date": "this field is required",
			}),
		}
		req, rec := newAuthRequest(http.MethodPost, tt.path, token, tt.body)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_goalApi(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	body := marchallObj(t, goal.NewGoal{Cluster: "c1", ClusterName: "Nairobi West", Year: 2024, TargetConversions: 12})

	req, rec := newAuthRequest(http.MethodPost, "/v1/goals", token, body)
	app.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var g goal.Goal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, goal.StatusNotStarted, g.Status)

	t.Run("duplicate cluster/year", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/goals", body: body,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"cluster": "a goal for this cluster and year already exists"}),
		}
		req, rec := newAuthRequest(http.MethodPost, tt.path, token, tt.body)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("update target", func(t *testing.T) {
		body := marchallObj(t, goal.UpdateGoal{TargetConversions: 20})
		req, rec := newAuthRequest(http.MethodPut, "/v1/goals/"+g.ID, token, body)
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var updated goal.Goal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, 20, updated.TargetConversions)
	})
}

func Test_weeklyApi(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	t.Run("invalid gathering type", func(t *testing.T) {
		body := marchallObj(t, weekly.NewReport{
			Cluster: "c1", GatheringType: "POTLUCK", ReportedBy: "leader-1",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/weekly-reports", token, body)
		app.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "gathering_type")
	})

	t.Run("submit and query", func(t *testing.T) {
		body := marchallObj(t, weekly.NewReport{
			Cluster:         "c1",
			EvangelismGroup: "youth",
			GatheringType:   weekly.GatheringCellGroup,
			MembersPresent:  9,
			VisitorsPresent: 3,
			ReportedBy:      "leader-1",
			ReportDate:      time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/weekly-reports", token, body)
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var r weekly.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		assert.Equal(t, 2024, r.Year)
		assert.Equal(t, 10, r.WeekNumber)

		tt := httpTest{
			path: "/v1/weekly-reports?year=2024&week_number=10", token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, r),
		}
		req, rec = newAuthRequest(http.MethodGet, tt.path, tt.token)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_reportApi(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")
	ctx := context.Background()

	// seed one week of activity in 2024 ISO week 10 (Mar 4 - Mar 10)
	inWeek := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	_, err := app.weeklySvc.Submit(ctx, weekly.NewReport{
		Cluster: "c1", EvangelismGroup: "youth", GatheringType: weekly.GatheringCellGroup,
		MembersPresent: 9, VisitorsPresent: 3, ReportedBy: "leader-1", ReportDate: inWeek,
	})
	require.NoError(t, err)
	createProspect(t, app, "Amos Otieno", "c1", "youth", inWeek)
	_, err = app.goalSvc.Create(ctx, goal.NewGoal{Cluster: "c1", Year: 2024, TargetConversions: 10})
	require.NoError(t, err)
	_, err = app.convSvc.Record(ctx, conversion.NewConversion{
		PersonID: "person-9", ConvertedBy: "m1", Cluster: "c1", EvangelismGroup: "youth", ConversionDate: inWeek,
	})
	require.NoError(t, err)

	t.Run("weekly tally", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/reports/weekly-tally?year=2024&week=10", token: token,
			wantCode: http.StatusOK,
			wantData: marchallList(t, report.WeeklyTallyRow{
				Cluster:         "c1",
				EvangelismGroup: "youth",
				Year:            2024,
				WeekNumber:      10,
				GatheringType:   weekly.GatheringCellGroup,
				MembersPresent:  9,
				VisitorsPresent: 3,
				NewProspects:    1,
				Conversions:     1,
			}),
		}
		req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("monthly statistics", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/reports/monthly-statistics?year=2024&month=3", token: token,
			wantCode: http.StatusOK,
			wantData: marchallList(t, report.MonthlyStatisticsRow{
				Cluster: "c1", Year: 2024, Month: time.March, Invited: 1,
			}),
		}
		req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("people tally has twelve rows", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/reports/people-tally?year=2024", token)
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var rows []report.PeopleTallyRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 12)
		assert.Equal(t, 1, rows[2].Invited)
	})

	t.Run("goal progress", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/reports/goal-progress?cluster=c1&year=2024", token: token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, report.GoalProgressRow{
				Cluster:             "c1",
				Year:                2024,
				TargetConversions:   10,
				AchievedConversions: 1,
				ProgressPercentage:  10,
				Status:              goal.StatusInProgress,
			}),
		}
		req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("goal progress, unknown cluster", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/reports/goal-progress?cluster=nope&year=2024", token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		}
		req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}
