package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestLoggingMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var called bool
	handler := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
}

type failingNotifier struct{ calls int }

func (n *failingNotifier) NotifyError(context.Context, string, string) error {
	n.calls++
	return errors.New("broker down")
}

func TestRecoveryMiddlewareSurvivesNotifierFailure(t *testing.T) {
	notifier := &failingNotifier{}
	handler := recoveryMiddleware(zaptest.NewLogger(t), notifier, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one notification attempt, got %d", notifier.calls)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Internal error" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

type contextNotifier struct{ ctxErr error }

func (n *contextNotifier) NotifyError(ctx context.Context, _, _ string) error {
	n.ctxErr = ctx.Err()
	return nil
}

func TestRecoveryMiddlewareNotifiesAfterClientDisconnect(t *testing.T) {
	notifier := &contextNotifier{}
	handler := recoveryMiddleware(zaptest.NewLogger(t), notifier, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/courses", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if notifier.ctxErr != nil {
		t.Fatalf("expected notification context to outlive the request, got %v", notifier.ctxErr)
	}
}

func TestResponseRecorderWriteHeader(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: underlying}
	rec.WriteHeader(http.StatusTeapot)

	if rec.status != http.StatusTeapot {
		t.Fatalf("expected status to be recorded")
	}
	if underlying.Code != http.StatusTeapot {
		t.Fatalf("expected status to propagate to ResponseWriter")
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %s", got)
	}
}

func TestRequestIDMiddlewareKeepsIncomingID(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		if got := requestIDFromContext(r.Context()); got != "given" {
			t.Fatalf("expected incoming id in context, got %q", got)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "given" {
		t.Fatalf("expected incoming id to be echoed")
	}
}

func TestHostAllowed(t *testing.T) {
	patterns := []string{".railway.app", "127.0.0.1", "localhost"}
	tests := []struct {
		host string
		want bool
	}{
		{"railway.app", true},
		{"saas.prod.railway.app", true},
		{"SAAS.Railway.App:443", true},
		{"localhost:8000", true},
		{"127.0.0.1", true},
		{"notrailway.app", false},
		{"railway.app.evil.test", false},
		{"example.com", false},
		{"localhost:abc", false},
		{"localhost:", false},
		{"local host", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := hostAllowed(tc.host, patterns); got != tc.want {
			t.Errorf("hostAllowed(%q) = %v, want %v", tc.host, got, tc.want)
		}
	}

	if !hostAllowed("anything.test", []string{"*"}) {
		t.Fatalf("expected wildcard to match")
	}
	if !hostAllowed("[::1]:8000", []string{"::1"}) {
		t.Fatalf("expected IPv6 literal with port to match")
	}
}
