package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkamba/kanisa/core/prospect"
)

func createProspect(t *testing.T, app *testApp, name, cluster, group string, firstContact time.Time) prospect.Prospect {
	t.Helper()
	p, err := app.prospectSvc.Create(context.Background(), prospect.NewProspect{
		Name:             name,
		InvitedBy:        "m1",
		InviterCluster:   cluster,
		EvangelismGroup:  group,
		FirstContactDate: firstContact,
	})
	require.NoError(t, err)
	return p
}

func Test_prospectApi_create(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	t.Run("auth required", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/v1/prospects",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		}
		req, rec := newRequest(tt.method, tt.path)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("required fields", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/v1/prospects", token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":            "this field is required",
				"invited_by":      "this field is required",
				"inviter_cluster": "this field is required",
			}),
		}
		req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("invalid fast-track reason", func(t *testing.T) {
		body := marchallObj(t, prospect.NewProspect{
			Name: "Amos", InvitedBy: "m1", InviterCluster: "c1", FastTrackReason: "IN_A_HURRY",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/prospects", token, body)
		app.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "fast_track_reason")
	})

	t.Run("ok", func(t *testing.T) {
		body := marchallObj(t, prospect.NewProspect{
			Name: "Amos Otieno", ContactInfo: "+254700000001",
			InvitedBy: "m1", InviterCluster: "c1", EvangelismGroup: "youth",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/prospects", token, body)
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got prospect.Prospect
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, prospect.StageInvited, got.PipelineStage)
		assert.Equal(t, prospect.FastTrackNone, got.FastTrackReason)
		assert.False(t, got.FirstContactDate.IsZero())

		// the INVITED entry is on record
		hist, err := app.prospectSvc.StageHistory(context.Background(), got.ID)
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Equal(t, prospect.StageInvited, hist[0].ToStage)
	})
}

func Test_prospectApi_query(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	now := time.Now().UTC()
	amos := createProspect(t, app, "Amos Otieno", "c1", "youth", now)
	grace := createProspect(t, app, "Grace Wanjiru", "c1", "women", now)
	peter := createProspect(t, app, "Peter Kamau", "c2", "youth", now)

	_, err := app.prospectSvc.AdvanceStage(context.Background(), amos.ID,
		prospect.StageAdvance{Stage: prospect.StageAttended, ActivityDate: now})
	require.NoError(t, err)
	amos, err = app.prospectSvc.GetByID(context.Background(), amos.ID)
	require.NoError(t, err)

	path := func(params url.Values) string { return "/v1/prospects?" + params.Encode() }
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "auth required", path: "/v1/prospects", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "get all", path: "/v1/prospects", token: token, wantCode: http.StatusOK, wantData: marchallList(t, amos, grace, peter)},
		{
			name: "search", path: path(url.Values{"search": {"wanji"}}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, grace),
		},
		{
			name: "search (unknown)", path: path(url.Values{"search": {"lol"}}), token: token,
			wantCode: http.StatusOK, wantData: empty,
		},
		{
			name: "stage=ATTENDED", path: path(url.Values{"stage": {prospect.StageAttended}}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, amos),
		},
		{
			name: "cluster=c1", path: path(url.Values{"cluster": {"c1"}}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, amos, grace),
		},
		{
			name: "cluster & group", path: path(url.Values{"cluster": {"c2"}, "group": {"youth"}}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, peter),
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

func Test_prospectApi_retrieve(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	p := createProspect(t, app, "Amos Otieno", "c1", "youth", time.Now().UTC())

	tests := []httpTest{
		{name: "found", path: "/v1/prospects/" + p.ID, token: token, wantCode: http.StatusOK, wantData: marchallObj(t, p)},
		{
			name: "not found", path: "/v1/prospects/nope", token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
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

func Test_prospectApi_updateProgress(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")
	ctx := context.Background()

	now := time.Now().UTC()
	p := createProspect(t, app, "Amos Otieno", "c1", "youth", now)

	advanceBody := func(stage string) []byte {
		return marchallObj(t, prospect.StageAdvance{Stage: stage, ActivityDate: now})
	}

	t.Run("skipping a stage is rejected", func(t *testing.T) {
		tt := httpTest{
			path: "/v1/prospects/" + p.ID + "/update-progress", body: advanceBody(prospect.StageBaptized),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid pipeline transition"}),
		}
		req, rec := newAuthRequest(http.MethodPost, tt.path, token, tt.body)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/prospects/"+p.ID+"/update-progress", token, advanceBody(prospect.StageAttended))
		app.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got prospect.Prospect
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, prospect.StageAttended, got.PipelineStage)
	})

	t.Run("converted prospects are frozen", func(t *testing.T) {
		for _, stage := range []string{prospect.StageBaptized, prospect.StageReceivedHG, prospect.StageConverted} {
			_, err := app.prospectSvc.AdvanceStage(ctx, p.ID, prospect.StageAdvance{Stage: stage, ActivityDate: now})
			require.NoError(t, err)
		}

		tt := httpTest{
			path: "/v1/prospects/" + p.ID + "/update-progress", body: advanceBody(prospect.StageConverted),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "prospect already converted"}),
		}
		req, rec := newAuthRequest(http.MethodPost, tt.path, token, tt.body)
		app.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_prospectApi_markAttended(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")

	p := createProspect(t, app, "Amos Otieno", "c1", "youth", time.Now().UTC())

	req, rec := newAuthRequest(http.MethodPost, "/v1/prospects/"+p.ID+"/mark-attended", token, []byte(`{}`))
	app.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got prospect.Prospect
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, prospect.StageAttended, got.PipelineStage)
	assert.NotEmpty(t, got.PersonID, "a directory Person is provisioned on first attendance")
}

func Test_prospectApi_queryDropOffs(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")
	ctx := context.Background()

	stale := time.Now().UTC().AddDate(0, 0, -60)
	p := createProspect(t, app, "Gone Quiet", "c1", "youth", stale)
	flagged, err := app.prospectSvc.DetectDropOffs(ctx, prospect.Thresholds(app.conf.Detector), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	require.Equal(t, p.ID, flagged[0].ProspectID)

	tests := []httpTest{
		{name: "auth required", path: "/v1/drop-offs", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "get all", path: "/v1/drop-offs", token: token, wantCode: http.StatusOK, wantData: marchallList(t, flagged[0])},
		{
			name: "stage filter (empty)", path: "/v1/drop-offs?stage=" + prospect.StageBaptized, token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
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

func Test_prospectApi_destroy(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, "m1")
	ctx := context.Background()

	p1 := createProspect(t, app, "One", "c1", "", time.Now().UTC())
	p2 := createProspect(t, app, "Two", "c1", "", time.Now().UTC())
	p3 := createProspect(t, app, "Three", "c1", "", time.Now().UTC())

	req, rec := newAuthRequest(http.MethodDelete, "/v1/prospects/"+p1.ID, token)
	app.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodDelete, "/v1/prospects?id="+p2.ID+"&id="+p3.ID, token)
	app.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	left, err := app.prospectSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, left)
}
