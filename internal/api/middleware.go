package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/eugenenazirov/coursehub/internal/config"
)

// ErrorNotifier is told about requests that ended in a server error.
type ErrorNotifier interface {
	NotifyError(ctx context.Context, subject, detail string) error
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		requestID := requestIDFromContext(r.Context())
		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.String("request_id", requestID),
		)
	})
}

func recoveryMiddleware(logger *zap.Logger, notifier ErrorNotifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			stack := debug.Stack()
			logger.Error("panic recovered", zap.Any("error", rec), zap.ByteString("stack", stack))
			writeError(w, http.StatusInternalServerError, "Internal error", "unexpected server error")

			if notifier == nil {
				return
			}
			subject := fmt.Sprintf("Internal Server Error: %s %s", r.Method, r.URL.Path)
			detail := fmt.Sprintf("Request ID: %s\nHost: %s\n\n%v\n\n%s",
				requestIDFromContext(r.Context()), r.Host, rec, stack)
			if err := notifier.NotifyError(context.WithoutCancel(r.Context()), subject, detail); err != nil {
				logger.Warn("admin notification failed", zap.Error(err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = generateRequestID()
		}
		ctx := r.Context()
		ctx = contextWithRequestID(ctx, requestID)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "same-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func clickjackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	})
	return c.Handler(next)
}

// commonMiddleware rejects requests for hosts outside the allow-list.
func commonMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hostAllowed(r.Host, allowed) {
			writeError(w, http.StatusBadRequest, "Bad request", fmt.Sprintf("invalid HTTP_HOST header: %q", r.Host))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hostPattern accepts a DNS name or bracketed IPv6 literal with an optional
// numeric port.
var hostPattern = regexp.MustCompile(`^([a-z0-9.-]+|\[[a-f0-9]*:[a-f0-9.:]+\])(:[0-9]+)?$`)

// hostAllowed matches host against patterns. "*" matches anything and a
// leading dot matches the domain itself and every subdomain.
func hostAllowed(host string, patterns []string) bool {
	m := hostPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(host)))
	if m == nil {
		return false
	}
	host = strings.TrimSuffix(strings.Trim(m[1], "[]"), ".")
	if host == "" {
		return false
	}

	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		switch {
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "."):
			if host == pattern[1:] || strings.HasSuffix(host, pattern) {
				return true
			}
		case host == pattern:
			return true
		}
	}
	return false
}

// staticMiddleware serves collected assets under static.URL with gzip.
// Other requests pass through.
func staticMiddleware(static config.Static, debugMode bool, next http.Handler) http.Handler {
	maxAge := 60
	if debugMode {
		maxAge = 0
	}
	cacheControl := "max-age=" + strconv.Itoa(maxAge) + ", public"

	fileServer := http.StripPrefix(static.URL, http.FileServer(http.Dir(static.Root)))
	files := gzhttp.GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", cacheControl)
		fileServer.ServeHTTP(w, r)
	}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, static.URL) || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			next.ServeHTTP(w, r)
			return
		}
		// No directory listings.
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
