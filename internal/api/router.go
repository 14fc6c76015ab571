package api

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/eugenenazirov/coursehub/internal/auth"
	"github.com/eugenenazirov/coursehub/internal/config"
)

var (
	// ErrUnknownMiddleware is returned for pipeline entries with no implementation.
	ErrUnknownMiddleware = errors.New("unknown middleware")
	// ErrUnknownPolicy is returned for unsupported authentication or permission classes.
	ErrUnknownPolicy = errors.New("unknown REST policy")
	// ErrMissingTokenService is returned when JWT authentication is configured without tokens.
	ErrMissingTokenService = errors.New("jwt authentication requires a token service")
)

// RouterOption configures the behaviour of NewRouter.
type RouterOption func(*routerConfig)

// WithLogging overrides Server.EnableRequestLogging (primarily for tests).
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the default request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit overrides the configured per-client limit; 0 disables
// limiting (primarily for tests).
func WithRateLimit(ratePerSecond float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiterFromSettings(ratePerSecond, burst)
	}
}

// WithTokens sets the token service used by JWT authentication.
func WithTokens(tokens *auth.TokenService) RouterOption {
	return func(cfg *routerConfig) {
		cfg.tokens = tokens
	}
}

// WithErrorNotifier reports recovered panics, typically to the site admins.
func WithErrorNotifier(notifier ErrorNotifier) RouterOption {
	return func(cfg *routerConfig) {
		cfg.notifier = notifier
	}
}

// WithIndex serves handler for "/" and any path no other route claims.
func WithIndex(handler http.Handler) RouterOption {
	return func(cfg *routerConfig) {
		cfg.index = handler
	}
}

type routerConfig struct {
	enableLogging bool
	logger        *zap.Logger
	rateLimiter   rateLimiter
	tokens        *auth.TokenService
	notifier      ErrorNotifier
	index         http.Handler
}

type middleware func(http.Handler) http.Handler

type route struct {
	pattern string
	handler http.HandlerFunc
	public  bool
}

// NewRouter creates the HTTP handler: API routes and media files wrapped in
// the middleware pipeline named by settings.Middleware, outermost first.
func NewRouter(handler *Handler, settings config.Settings, logger *zap.Logger, opts ...RouterOption) (http.Handler, error) {
	cfg := routerConfig{
		enableLogging: settings.Server.EnableRequestLogging,
		logger:        logger,
		rateLimiter:   limiterFromSettings(settings.Server.RateLimitRPS, settings.Server.RateLimitBurst),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	permission, err := permissionPolicy(settings.REST.DefaultPermissionClasses)
	if err != nil {
		return nil, err
	}

	routes := []route{
		{pattern: "GET /api/health", handler: handler.handleHealth, public: true},
		{pattern: "GET /api/me", handler: handler.handleMe},
		{pattern: "GET /api/settings", handler: handler.handleSettings},
	}

	mux := http.NewServeMux()
	for _, rt := range routes {
		var h http.Handler = rt.handler
		if !rt.public {
			h = permission(h)
		}
		mux.Handle(rt.pattern, h)
	}

	if settings.Debug && settings.Media.URL != "" {
		mux.Handle(settings.Media.URL, http.StripPrefix(settings.Media.URL, http.FileServer(http.Dir(settings.Media.Root))))
	}
	if cfg.index != nil {
		mux.Handle("/", cfg.index)
	}

	stages := make([]middleware, 0, len(settings.Middleware))
	for _, name := range settings.Middleware {
		m, err := buildMiddleware(name, settings, cfg)
		if err != nil {
			return nil, err
		}
		stages = append(stages, m)
	}

	var root http.Handler = mux
	for i := len(stages) - 1; i >= 0; i-- {
		root = stages[i](root)
	}
	return root, nil
}

func buildMiddleware(name string, settings config.Settings, cfg routerConfig) (middleware, error) {
	switch name {
	case config.MiddlewareRequestID:
		return requestIDMiddleware, nil
	case config.MiddlewareLogging:
		if !cfg.enableLogging {
			return passthrough, nil
		}
		return func(next http.Handler) http.Handler { return loggingMiddleware(cfg.logger, next) }, nil
	case config.MiddlewareRecovery:
		return func(next http.Handler) http.Handler { return recoveryMiddleware(cfg.logger, cfg.notifier, next) }, nil
	case config.MiddlewareSecurity:
		return securityMiddleware, nil
	case config.MiddlewareStatic:
		return func(next http.Handler) http.Handler { return staticMiddleware(settings.Static, settings.Debug, next) }, nil
	case config.MiddlewareCORS:
		return func(next http.Handler) http.Handler { return corsMiddleware(settings.CORSAllowedOrigins, next) }, nil
	case config.MiddlewareCommon:
		return func(next http.Handler) http.Handler { return commonMiddleware(settings.AllowedHosts, next) }, nil
	case config.MiddlewareRateLimit:
		return func(next http.Handler) http.Handler { return rateLimitMiddleware(cfg.rateLimiter, next) }, nil
	case config.MiddlewareAuthentication:
		return authenticationPolicy(settings.REST.DefaultAuthenticationClasses, cfg.tokens)
	case config.MiddlewareClickjacking:
		return clickjackingMiddleware, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMiddleware, name)
	}
}

func authenticationPolicy(classes []string, tokens *auth.TokenService) (middleware, error) {
	m := passthrough
	for _, class := range classes {
		switch class {
		case "jwt":
			if tokens == nil {
				return nil, ErrMissingTokenService
			}
			m = func(next http.Handler) http.Handler { return auth.Middleware(tokens, next) }
		default:
			return nil, fmt.Errorf("%w: authentication class %q", ErrUnknownPolicy, class)
		}
	}
	return m, nil
}

func permissionPolicy(classes []string) (middleware, error) {
	m := passthrough
	for _, class := range classes {
		switch class {
		case "authenticated":
			m = auth.RequireAuthenticated
		case "allow_any":
		default:
			return nil, fmt.Errorf("%w: permission class %q", ErrUnknownPolicy, class)
		}
	}
	return m, nil
}

func passthrough(next http.Handler) http.Handler {
	return next
}
