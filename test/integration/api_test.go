package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/coursehub/internal/api"
	"github.com/eugenenazirov/coursehub/internal/auth"
	"github.com/eugenenazirov/coursehub/internal/config"
	"github.com/eugenenazirov/coursehub/internal/email"
	"github.com/eugenenazirov/coursehub/internal/tasks"
)

type capturingSender struct {
	sent chan email.Message
}

func (c *capturingSender) Send(_ context.Context, msg email.Message) error {
	c.sent <- msg
	return nil
}

// loadSettings resolves settings the way the binary does, from an env file.
func loadSettings(t *testing.T, redisURL string) config.Settings {
	t.Helper()

	for _, key := range []string{"DJANGO_SECRET_KEY", "DJANGO_DEBUG", "DATABASE_URL", "REDIS_URL", "ADMIN_USER_NAME", "ADMIN_USER_EMAIL", "EMAIL_USE_SSL", "EMAIL_USE_TLS", "EMAIL_PORT",
		"DB_NAME", "DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT"} {
		if value, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { _ = os.Setenv(key, value) })
			_ = os.Unsetenv(key)
		}
	}

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "DJANGO_SECRET_KEY=integration\n" +
		"DJANGO_DEBUG=true\n" +
		"DB_NAME=coursehub\n" +
		"DB_USER=coursehub\n" +
		"DB_PASSWORD=coursehub\n" +
		"DB_HOST=localhost\n" +
		"DB_PORT=5432\n" +
		"DATABASE_URL=sqlite:///" + filepath.Join(dir, "app.db") + "\n" +
		"REDIS_URL=" + redisURL + "\n" +
		"ADMIN_USER_NAME=Ops\n" +
		"ADMIN_USER_EMAIL=ops@example.com\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	settings, err := config.Load(&config.CLIOverrides{EnvFile: envFile, BaseDir: dir})
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	return settings
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Host = "localhost:8000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIntegrationFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	settings := loadSettings(t, "redis://"+mr.Addr()+"/0")
	logger := zaptest.NewLogger(t)

	broker, err := tasks.NewBroker(settings.Tasks.BrokerURL, settings.Tasks.ResultBackend)
	if err != nil {
		t.Fatalf("NewBroker returned error: %v", err)
	}
	t.Cleanup(func() { _ = broker.Close() })

	tokens, err := auth.NewTokenService(settings.SecretKey, settings.REST.AccessTokenLifetime)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}

	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("course catalogue unavailable")
	})
	router, err := api.NewRouter(api.NewHandler(settings), settings, logger,
		api.WithTokens(tokens),
		api.WithErrorNotifier(email.NewAdminNotifier(settings.Email, settings.Admins, broker)),
		api.WithIndex(panicking),
	)
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}

	rec := performRequest(t, router, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}

	rec = performRequest(t, router, http.MethodGet, "/api/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := tokens.Issue("ada")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + token}
	rec = performRequest(t, router, http.MethodGet, "/api/settings", nil, bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from settings in debug, got %d", rec.Code)
	}
	var view struct {
		AllowedHosts []string `json:"allowedHosts"`
		Admins       int      `json:"admins"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if len(view.AllowedHosts) != 3 || view.Admins != 1 {
		t.Fatalf("unexpected settings view: %+v", view)
	}

	rec = performRequest(t, router, http.MethodGet, "/courses", nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from panicking page, got %d", rec.Code)
	}

	sender := &capturingSender{sent: make(chan email.Message, 1)}
	worker := tasks.NewWorker(broker, logger)
	worker.Register(email.SendTask, email.SendTaskHandler(sender))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case msg := <-sender.sent:
		if msg.Subject != "[coursehub] Internal Server Error: GET /courses" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		if len(msg.To) != 1 || msg.To[0] != `"Ops" <ops@example.com>` {
			t.Fatalf("unexpected recipients %v", msg.To)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected admin email to be delivered by the worker")
	}
}
