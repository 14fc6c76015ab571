package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, testSettings(t))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(testNow) {
		t.Fatalf("expected timestamp %s, got %s", testNow, body.Timestamp)
	}
}

func TestHealthReportsFailingDependency(t *testing.T) {
	settings := testSettings(t)
	core, logs := observer.New(zap.WarnLevel)
	handler := NewHandler(settings,
		WithHandlerLogger(zap.New(core)),
		WithHealthCheck("database", func(context.Context) error { return nil }),
		WithHealthCheck("broker", func(context.Context) error { return errors.New("dial tcp 10.0.0.5:6379: connection refused") }),
	)

	rec := httptest.NewRecorder()
	handler.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Checks["database"] != "ok" || body.Checks["broker"] != "unavailable" {
		t.Fatalf("unexpected health body: %+v", body)
	}
	entries := logs.FilterMessage("health check failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged failure, got %d", len(entries))
	}
	if detail, _ := entries[0].ContextMap()["error"].(string); !strings.Contains(detail, "10.0.0.5") {
		t.Fatalf("expected failure detail in the log, got %q", detail)
	}
}

func TestSettingsEndpointDebugOnly(t *testing.T) {
	settings := testSettings(t)
	settings.Tasks.BrokerURL = "redis://:hunter2@cache:6379/0"

	handler := NewHandler(settings)
	rec := httptest.NewRecorder()
	handler.handleSettings(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside debug, got %d", rec.Code)
	}

	settings.Debug = true
	handler = NewHandler(settings)
	rec = httptest.NewRecorder()
	handler.handleSettings(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 in debug, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "hunter2") || strings.Contains(body, "s3cret") {
		t.Fatalf("expected secrets to be redacted, got %s", body)
	}
	if !strings.Contains(body, `"staticUrl":"/static/"`) {
		t.Fatalf("expected static URL in body, got %s", body)
	}
}

func TestMeWithoutPrincipal(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(testSettings(t)).handleMe(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
