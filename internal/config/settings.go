package config

import (
	"maps"
	"net/url"
	"slices"
	"time"
)

// Middleware names understood by the HTTP pipeline.
const (
	MiddlewareRequestID      = "request_id"
	MiddlewareLogging        = "logging"
	MiddlewareRecovery       = "recovery"
	MiddlewareSecurity       = "security"
	MiddlewareStatic         = "static"
	MiddlewareCORS           = "cors"
	MiddlewareCommon         = "common"
	MiddlewareRateLimit      = "ratelimit"
	MiddlewareAuthentication = "authentication"
	MiddlewareClickjacking   = "clickjacking"
)

const redactedValue = "********"

// Settings is the fully resolved, read-only configuration of the process.
type Settings struct {
	BaseDir   string
	SecretKey string
	Debug     bool
	BaseURL   string

	AllowedHosts  []string
	InstalledApps []string
	Middleware    []string
	Templates     Templates

	Email    Email
	Admins   []Contact
	Managers []Contact

	Database    Database
	DatabaseURL string
	ConnMaxAge  int

	Tasks TaskQueue
	REST  REST

	Static           Static
	Media            Media
	DefaultAutoField string

	CORSAllowedOrigins []string

	Server Server
}

// Contact is a person notified about server errors.
type Contact struct {
	Name  string
	Email string
}

// Email configures the outgoing mail backend.
type Email struct {
	Backend       string
	Host          string
	Port          string
	User          string
	Password      string
	UseTLS        bool
	UseSSL        bool
	ServerEmail   string
	SubjectPrefix string
}

// Database describes a single database connection.
type Database struct {
	Engine           string
	Name             string
	User             string
	Password         string
	Host             string
	Port             string
	ConnMaxAge       int
	ConnHealthChecks bool
	Options          map[string]string
}

// TaskQueue addresses the background task broker and its result store.
type TaskQueue struct {
	BrokerURL     string
	ResultBackend string
	DefaultQueue  string
	ResultExpires time.Duration
}

// REST holds the API defaults applied to every view.
type REST struct {
	DefaultAuthenticationClasses []string
	DefaultPermissionClasses     []string
	AccessTokenLifetime          time.Duration
}

// Templates configures the HTML template engine.
type Templates struct {
	Backend           string
	Dirs              []string
	AppDirs           bool
	ContextProcessors []string
}

// Static describes where collected static assets live and are served from.
type Static struct {
	URL     string
	Root    string
	Storage string
}

// Media describes user-uploaded files.
type Media struct {
	URL  string
	Root string
}

// Server holds HTTP server tunables.
type Server struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// Redacted returns a deep copy with credentials masked.
func (s Settings) Redacted() Settings {
	out := s.clone()
	if out.SecretKey != "" {
		out.SecretKey = redactedValue
	}
	if out.Email.Password != "" {
		out.Email.Password = redactedValue
	}
	if out.Database.Password != "" {
		out.Database.Password = redactedValue
	}
	out.DatabaseURL = redactURL(out.DatabaseURL)
	out.Tasks.BrokerURL = redactURL(out.Tasks.BrokerURL)
	out.Tasks.ResultBackend = redactURL(out.Tasks.ResultBackend)
	return out
}

func (s Settings) clone() Settings {
	out := s
	out.AllowedHosts = slices.Clone(s.AllowedHosts)
	out.InstalledApps = slices.Clone(s.InstalledApps)
	out.Middleware = slices.Clone(s.Middleware)
	out.Templates.Dirs = slices.Clone(s.Templates.Dirs)
	out.Templates.ContextProcessors = slices.Clone(s.Templates.ContextProcessors)
	out.Admins = slices.Clone(s.Admins)
	out.Managers = slices.Clone(s.Managers)
	out.Database.Options = maps.Clone(s.Database.Options)
	out.REST.DefaultAuthenticationClasses = slices.Clone(s.REST.DefaultAuthenticationClasses)
	out.REST.DefaultPermissionClasses = slices.Clone(s.REST.DefaultPermissionClasses)
	out.CORSAllowedOrigins = slices.Clone(s.CORSAllowedOrigins)
	return out
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return redactedValue
	}
	return parsed.Redacted()
}
