package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/coursehub/internal/auth"
	"github.com/eugenenazirov/coursehub/internal/config"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// HealthCheck probes a dependency. A non-nil error marks it unavailable.
type HealthCheck func(ctx context.Context) error

// Handler serves the API endpoints.
type Handler struct {
	settings config.Settings
	checks   map[string]HealthCheck
	logger   *zap.Logger

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithHandlerLogger sets the logger used for failed health checks.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHealthCheck adds a named dependency probe to the health endpoint.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// NewHandler constructs a Handler. Only a redacted copy of settings is kept.
func NewHandler(settings config.Settings, opts ...HandlerOption) *Handler {
	h := &Handler{
		settings: settings.Redacted(),
		checks:   make(map[string]HealthCheck),
		logger:   zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Checks = make(map[string]string, len(names))
		for _, name := range names {
			if err := h.checks[name](r.Context()); err != nil {
				h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Authentication credentials were not provided")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSettings(w http.ResponseWriter, _ *http.Request) {
	if !h.settings.Debug {
		writeError(w, http.StatusNotFound, "Not found", "settings are only exposed in debug mode")
		return
	}

	s := h.settings
	resp := settingsResponse{
		Debug:              s.Debug,
		BaseURL:            s.BaseURL,
		AllowedHosts:       s.AllowedHosts,
		InstalledApps:      s.InstalledApps,
		Middleware:         s.Middleware,
		CORSAllowedOrigins: s.CORSAllowedOrigins,
		Database: databaseView{
			Engine:           s.Database.Engine,
			Name:             s.Database.Name,
			Host:             s.Database.Host,
			Port:             s.Database.Port,
			User:             s.Database.User,
			ConnMaxAge:       s.Database.ConnMaxAge,
			ConnHealthChecks: s.Database.ConnHealthChecks,
		},
		Email: emailView{
			Backend: s.Email.Backend,
			Host:    s.Email.Host,
			Port:    s.Email.Port,
			UseTLS:  s.Email.UseTLS,
			UseSSL:  s.Email.UseSSL,
		},
		Admins:        len(s.Admins),
		BrokerURL:     s.Tasks.BrokerURL,
		ResultBackend: s.Tasks.ResultBackend,
		StaticURL:     s.Static.URL,
		MediaURL:      s.Media.URL,
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

type settingsResponse struct {
	Debug              bool         `json:"debug"`
	BaseURL            string       `json:"baseUrl,omitempty"`
	AllowedHosts       []string     `json:"allowedHosts"`
	InstalledApps      []string     `json:"installedApps"`
	Middleware         []string     `json:"middleware"`
	CORSAllowedOrigins []string     `json:"corsAllowedOrigins"`
	Database           databaseView `json:"database"`
	Email              emailView    `json:"email"`
	Admins             int          `json:"admins"`
	BrokerURL          string       `json:"brokerUrl"`
	ResultBackend      string       `json:"resultBackend"`
	StaticURL          string       `json:"staticUrl"`
	MediaURL           string       `json:"mediaUrl"`
}

type databaseView struct {
	Engine           string `json:"engine"`
	Name             string `json:"name"`
	Host             string `json:"host,omitempty"`
	Port             string `json:"port,omitempty"`
	User             string `json:"user,omitempty"`
	ConnMaxAge       int    `json:"connMaxAge"`
	ConnHealthChecks bool   `json:"connHealthChecks"`
}

type emailView struct {
	Backend string `json:"backend"`
	Host    string `json:"host"`
	Port    string `json:"port"`
	UseTLS  bool   `json:"useTls"`
	UseSSL  bool   `json:"useSsl"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}
