package manage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthos/healthos/internal/platform/auth"
	"github.com/healthos/healthos/internal/platform/predictor"
)

func newTestServer(svc *Service, roles ...string) *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const busyQueueJSON = `{"queue_length":8,"current_wait_time":40,"staff_available":3,"rooms_available":4,"hour_of_day":14,"day_of_week":2}`

func TestHandler_PredictWaitTime_Fallback(t *testing.T) {
	svc, _ := newTestService(predictor.Disabled{})
	e := newTestServer(svc, auth.RoleFrontDesk)

	rec := doJSON(e, http.MethodPost, "/api/v1/manage/wait-time", busyQueueJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body outcomeResponse[WaitTimePrediction]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, SourceFallback, body.Source)
	assert.Equal(t, string(predictor.ReasonUnavailable), body.FallbackReason)
	assert.Equal(t, EstimateWaitTime(busyQueue), body.Result)
}

func TestHandler_ClassifyTriage_Model(t *testing.T) {
	p := replyWith(`{"urgency_level":5,"urgency_description":"Emergency","recommended_department":"Emergency","estimated_wait_time":"Immediate","confidence":0.93}`)
	svc, _ := newTestService(p)
	e := newTestServer(svc, auth.RoleNurse)

	rec := doJSON(e, http.MethodPost, "/api/v1/manage/triage",
		`{"patient_id":"pat-1","age":30,"urgency_level":3,"department":"General","medical_complexity":2,"symptoms":["cough"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "model", body["source"])
	assert.NotContains(t, body, "fallback_reason")
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(5), data["urgency_level"])
}

func TestHandler_OptimizeResources(t *testing.T) {
	svc, _ := newTestService(predictor.Disabled{})
	e := newTestServer(svc, auth.RoleOperations)

	rec := doJSON(e, http.MethodPost, "/api/v1/manage/optimize", busyQueueJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body outcomeResponse[ResourceOptimization]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, OptimizeResources(busyQueue), body.Result)
}

func TestHandler_ValidationErrors(t *testing.T) {
	svc, repo := newTestService(predictor.Disabled{})
	e := newTestServer(svc, auth.RoleAdmin)

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"negative queue", "/api/v1/manage/wait-time", `{"queue_length":-1,"staff_available":1,"rooms_available":1}`},
		{"zero staff", "/api/v1/manage/optimize", `{"queue_length":3,"staff_available":0,"rooms_available":1}`},
		{"hour out of range", "/api/v1/manage/wait-time", `{"queue_length":3,"staff_available":1,"rooms_available":1,"hour_of_day":24}`},
		{"missing patient id", "/api/v1/manage/triage", `{"age":30,"urgency_level":3}`},
		{"urgency out of range", "/api/v1/manage/triage", `{"patient_id":"p","age":30,"urgency_level":9}`},
		{"malformed json", "/api/v1/manage/triage", `{"patient_id":`},
		{"check-in without queue", "/api/v1/manage/check-in", `{"patient":{"patient_id":"p","age":30,"urgency_level":3}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, repo.records, "rejected requests must not reach the predictor or the log")
}

func TestHandler_RoleChecks(t *testing.T) {
	svc, _ := newTestService(predictor.Disabled{})

	frontDesk := newTestServer(svc, auth.RoleFrontDesk)
	assert.Equal(t, http.StatusForbidden, doJSON(frontDesk, http.MethodPost, "/api/v1/manage/triage", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(frontDesk, http.MethodPost, "/api/v1/manage/optimize", busyQueueJSON).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(frontDesk, http.MethodGet, "/api/v1/manage/status", "").Code)

	nobody := newTestServer(svc)
	assert.Equal(t, http.StatusForbidden, doJSON(nobody, http.MethodPost, "/api/v1/manage/wait-time", busyQueueJSON).Code)
}

func TestHandler_CheckIn(t *testing.T) {
	svc, repo := newTestService(predictor.Disabled{})
	e := newTestServer(svc, auth.RoleFrontDesk)

	rec := doJSON(e, http.MethodPost, "/api/v1/manage/check-in",
		`{"patient":{"patient_id":"pat-17","age":78,"urgency_level":2,"department":"General","medical_complexity":6.5,"symptoms":["chest tightness"]},"queue":`+busyQueueJSON+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body dataResponse[CheckIn]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "pat-17", body.Data.PatientID)
	assert.Equal(t, 9, body.Data.QueuePosition)
	assert.Equal(t, "Cardiology", body.Data.Department)
	assert.Len(t, repo.records, 2)
}

func TestHandler_Status(t *testing.T) {
	svc, _ := newTestService(predictor.Disabled{})
	svc.SetMode(predictor.ModeNone)
	e := newTestServer(svc, auth.RoleOperations)

	doJSON(e, http.MethodPost, "/api/v1/manage/optimize", busyQueueJSON)
	rec := doJSON(e, http.MethodGet, "/api/v1/manage/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body dataResponse[Status]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "none", body.Data.Predictor)
	assert.Equal(t, int64(1), body.Data.Counts[string(predictor.KindOptimization)][SourceFallback])
}

func TestHandler_Dashboard(t *testing.T) {
	svc, repo := newTestService(predictor.Disabled{})
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	e := newTestServer(svc, auth.RoleOperations)

	repo.records = []*PredictionRecord{
		{Kind: "triage", Source: SourceFallback, CreatedAt: now.Add(-2 * time.Hour)},
		{Kind: "triage", Source: SourceModel, CreatedAt: now.Add(-3 * time.Hour)},
		{Kind: "triage", Source: SourceModel, CreatedAt: now.Add(-48 * time.Hour)},
	}

	rec := doJSON(e, http.MethodGet, "/api/v1/manage/dashboard?hours=6", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body dataResponse[Dashboard]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.Total)
	assert.InDelta(t, 0.5, body.Data.FallbackRate, 1e-9)
	assert.True(t, body.Data.Since.Equal(now.Add(-6*time.Hour)))

	for _, bad := range []string{"0", "-1", "abc", "10000"} {
		rec := doJSON(e, http.MethodGet, "/api/v1/manage/dashboard?hours="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "hours=%s", bad)
	}
}

func TestHandler_DashboardRepoError(t *testing.T) {
	svc, repo := newTestService(predictor.Disabled{})
	repo.err = errors.New("connection reset")
	e := newTestServer(svc, auth.RoleOperations)

	rec := doJSON(e, http.MethodGet, "/api/v1/manage/dashboard", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_ListPredictions(t *testing.T) {
	svc, repo := newTestService(predictor.Disabled{})
	e := newTestServer(svc, auth.RoleOperations)
	for i := 0; i < 3; i++ {
		repo.records = append(repo.records, &PredictionRecord{Kind: "triage", Source: SourceFallback})
	}
	repo.records = append(repo.records, &PredictionRecord{Kind: "wait_time", Source: SourceModel})

	rec := doJSON(e, http.MethodGet, "/api/v1/manage/predictions?kind=triage&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success bool                `json:"success"`
		Data    []*PredictionRecord `json:"data"`
		Total   int                 `json:"total"`
		HasMore bool                `json:"has_more"`
		Next    string              `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 3, body.Total)
	assert.True(t, body.HasMore)
	assert.Equal(t, "/api/v1/manage/predictions?limit=2&offset=2&kind=triage", body.Next)

	rec = doJSON(e, http.MethodGet, "/api/v1/manage/predictions?kind=surgery", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
