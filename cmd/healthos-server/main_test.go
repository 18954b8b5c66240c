package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthos/healthos/internal/config"
	"github.com/healthos/healthos/internal/domain/manage"
	"github.com/healthos/healthos/internal/platform/db"
	"github.com/healthos/healthos/internal/platform/metrics"
	"github.com/healthos/healthos/internal/platform/middleware"
	"github.com/healthos/healthos/internal/platform/predictor"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		RequestTimeout: 5 * time.Second,
		BodyLimit:      "1K",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	m := metrics.New()
	svc := manage.NewService(predictor.Disabled{}, zerolog.Nop())
	svc.SetMetrics(m)
	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	return newServer(deps{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		svc:     svc,
		metrics: m,
		limiter: middleware.NewMemoryStore(rl, time.Minute),
	})
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
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

const queueJSON = `{"queue_length":4,"current_wait_time":20,"staff_available":2,"rooms_available":3,"hour_of_day":14,"day_of_week":2}`

func TestServer_Health(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := serve(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/health/db", "")
	var body db.HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusOK || body.Status != "disabled" {
		t.Errorf("expected disabled database health, got %d %+v", rec.Code, body)
	}
}

func TestServer_WaitTimeFallsBack(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := serve(e, http.MethodPost, "/api/v1/manage/wait-time", queueJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool                      `json:"success"`
		Source  string                    `json:"source"`
		Data    manage.WaitTimePrediction `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success || body.Source != "fallback" {
		t.Errorf("expected successful fallback answer, got %+v", body)
	}
	want := manage.EstimateWaitTime(manage.QueueState{QueueLength: 4, CurrentWaitTime: 20, StaffAvailable: 2, RoomsAvailable: 3, HourOfDay: 14, DayOfWeek: 2})
	if body.Data != want {
		t.Errorf("expected %+v, got %+v", want, body.Data)
	}

	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Errorf("expected rate limit header, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestServer_ErrorEnvelope(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := serve(e, http.MethodPost, "/api/v1/manage/wait-time", `{"queue_length":-1,"staff_available":1,"rooms_available":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body middleware.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Error == "" || body.RequestID == "" {
		t.Errorf("unexpected error envelope %+v", body)
	}
}

func TestServer_UnimplementedAgents(t *testing.T) {
	e := newTestServer(t, testConfig())

	for _, path := range []string{"/api/v1/insights/revenue", "/api/v1/market", "/api/v1/make/orders"} {
		rec := serve(e, http.MethodGet, path, "")
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s: expected 501, got %d", path, rec.Code)
		}
	}
}

func TestServer_BodyLimit(t *testing.T) {
	e := newTestServer(t, testConfig())

	big := `{"patient_id":"p","age":30,"urgency_level":3,"symptoms":["` + strings.Repeat("a", 4096) + `"]}`
	rec := serve(e, http.MethodPost, "/api/v1/manage/triage", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestServer_RequiresTokenOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = "0123456789abcdef0123456789abcdef"
	e := newTestServer(t, cfg)

	rec := serve(e, http.MethodPost, "/api/v1/manage/wait-time", queueJSON)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected public health check, got %d", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	e := newTestServer(t, testConfig())
	serve(e, http.MethodPost, "/api/v1/manage/optimize", queueJSON)

	rec := serve(e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{
		`healthos_predictions_total{kind="optimization",source="fallback"} 1`,
		`healthos_http_requests_total{method="POST",route="/api/v1/manage/optimize",status="200"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}
}

func runPredictCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PREDICTOR_MODE", "none")
	cmd := predictCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPredictCommand_TriageFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patient.yaml")
	input := `patient_id: pat-9
age: 70
urgency_level: 2
department: General
medical_complexity: 8
symptoms:
  - severe chest pain
`
	if err := os.WriteFile(path, []byte(input), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runPredictCLI(t, "triage", "-f", path, "--offline")
	if err != nil {
		t.Fatalf("predict triage: %v", err)
	}

	var got manage.Outcome[manage.TriageResult]
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if got.Source != manage.SourceFallback {
		t.Errorf("expected fallback source, got %s", got.Source)
	}
	if got.Result.RecommendedDepartment != "Cardiology" {
		t.Errorf("expected Cardiology, got %s", got.Result.RecommendedDepartment)
	}
	if got.Result.UrgencyLevel != 4 {
		t.Errorf("expected urgency 4, got %d", got.Result.UrgencyLevel)
	}
}

func TestPredictCommand_YAMLOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte(queueJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runPredictCLI(t, "optimize", "-f", path, "--offline", "-o", "yaml")
	if err != nil {
		t.Fatalf("predict optimize: %v", err)
	}
	if !strings.Contains(out, "source: fallback") || !strings.Contains(out, "optimal_staff_allocation:") {
		t.Errorf("unexpected yaml output:\n%s", out)
	}
}

func TestPredictCommand_InvalidInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.yaml")
	if err := os.WriteFile(path, []byte("queue_length: 3\nstaff_available: 0\nrooms_available: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runPredictCLI(t, "wait-time", "-f", path, "--offline"); err == nil {
		t.Error("expected validation error")
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_prediction_log.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})

	out := buf.String()
	if !strings.Contains(out, "001_prediction_log.sql") || !strings.Contains(out, "2026-01-02 03:04:05") {
		t.Errorf("missing applied row:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("missing pending row:\n%s", out)
	}
}
