package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultConnMaxAge     = 300
	defaultEmailHost      = "smtp.gmail.com"
	defaultEmailPort      = "587"
	defaultAdminName      = "Admin user"
	defaultServerEmail    = "root@localhost"
)

// ErrInvalidConfig wraps validation failures of the resolved settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// yamlConfig represents the YAML configuration file structure. Only server
// tunables live here; application settings come from the environment.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	BaseDir        string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load resolves settings with precedence:
// CLI flags > YAML config > environment variables > .env file > defaults.
// All missing or malformed values are reported in a single error.
func Load(overrides *CLIOverrides) (Settings, error) {
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	baseDir, err := resolveBaseDir(overrides.BaseDir)
	if err != nil {
		return Settings{}, err
	}

	env, err := newEnviron(overrides.EnvFile)
	if err != nil {
		return Settings{}, err
	}

	cfg := defaultSettings(baseDir)
	applyEnvConfig(&cfg, env)
	if env.err != nil {
		return Settings{}, fmt.Errorf("load environment: %w", env.err)
	}

	if overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Settings{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Settings{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	applyCLIOverrides(&cfg, overrides)

	if err := validateConfig(cfg); err != nil {
		return Settings{}, err
	}

	return cfg, nil
}

// defaultSettings returns the values that are not environment-configurable
// together with defaults for everything that is.
func defaultSettings(baseDir string) Settings {
	return Settings{
		BaseDir:      baseDir,
		AllowedHosts: []string{".railway.app"},
		InstalledApps: []string{
			"admin", "auth", "contenttypes", "sessions", "messages", "staticfiles",
			"rest", "cors",
			"users", "courses", "rewards", "cart",
		},
		Middleware: []string{
			MiddlewareRequestID,
			MiddlewareLogging,
			MiddlewareRecovery,
			MiddlewareSecurity,
			MiddlewareStatic,
			MiddlewareCORS,
			MiddlewareCommon,
			MiddlewareRateLimit,
			MiddlewareAuthentication,
			MiddlewareClickjacking,
		},
		Templates: Templates{
			Backend:           "html/template",
			Dirs:              []string{},
			AppDirs:           true,
			ContextProcessors: []string{"debug", "request", "auth"},
		},
		Email: Email{
			Backend:       "smtp",
			Host:          defaultEmailHost,
			Port:          defaultEmailPort,
			UseTLS:        true,
			ServerEmail:   defaultServerEmail,
			SubjectPrefix: "[coursehub] ",
		},
		Admins:     []Contact{},
		Managers:   []Contact{},
		ConnMaxAge: defaultConnMaxAge,
		Tasks: TaskQueue{
			DefaultQueue:  "celery",
			ResultExpires: 24 * time.Hour,
		},
		REST: REST{
			DefaultAuthenticationClasses: []string{"jwt"},
			DefaultPermissionClasses:     []string{"authenticated"},
			AccessTokenLifetime:          5 * time.Minute,
		},
		Static: Static{
			URL:     "/static/",
			Root:    filepath.Join(baseDir, "staticfiles"),
			Storage: "compressed_manifest",
		},
		Media: Media{
			URL:  "/media/",
			Root: filepath.Join(baseDir, "media"),
		},
		DefaultAutoField: "BigAutoField",
		CORSAllowedOrigins: []string{
			"http://localhost:8000",
			"http://127.0.0.1:8000",
		},
		Server: Server{
			Port:                 defaultPort,
			ShutdownGracePeriod:  10 * time.Second,
			ReadHeaderTimeout:    5 * time.Second,
			WriteTimeout:         15 * time.Second,
			IdleTimeout:          60 * time.Second,
			EnableRequestLogging: true,
			RateLimitRPS:         defaultRateLimitRPS,
			RateLimitBurst:       defaultRateLimitBurst,
		},
	}
}

// applyEnvConfig reads every environment-driven setting. Failures accumulate
// on env.err.
func applyEnvConfig(cfg *Settings, env *environ) {
	cfg.Email.Host = env.str("EMAIL_HOST", cfg.Email.Host)
	cfg.Email.Port = env.str("EMAIL_PORT", cfg.Email.Port)
	cfg.Email.User = env.str("EMAIL_HOST_USER", "")
	cfg.Email.Password = env.str("EMAIL_HOST_PASSWORD", "")
	cfg.Email.UseTLS = env.boolean("EMAIL_USE_TLS", cfg.Email.UseTLS)
	cfg.Email.UseSSL = env.boolean("EMAIL_USE_SSL", cfg.Email.UseSSL)
	if cfg.Email.User != "" {
		cfg.Email.ServerEmail = cfg.Email.User
	}

	adminName := env.str("ADMIN_USER_NAME", defaultAdminName)
	adminEmail := env.str("ADMIN_USER_EMAIL", "")
	cfg.Admins, cfg.Managers = buildAdmins(adminName, adminEmail)

	cfg.SecretKey = env.requiredStr("DJANGO_SECRET_KEY")
	cfg.Debug = env.requiredBool("DJANGO_DEBUG")
	cfg.BaseURL = env.str("BASE_URL", "")
	if cfg.Debug {
		cfg.AllowedHosts = append(cfg.AllowedHosts, "127.0.0.1", "localhost")
	}

	cfg.ConnMaxAge = env.integer("CONN_MAX_AGE", cfg.ConnMaxAge)
	cfg.Database = Database{
		Engine:   EnginePostgres,
		Name:     env.requiredStr("DB_NAME"),
		User:     env.requiredStr("DB_USER"),
		Password: env.requiredStr("DB_PASSWORD"),
		Host:     env.requiredStr("DB_HOST"),
		Port:     env.requiredStr("DB_PORT"),
	}
	cfg.DatabaseURL = env.str("DATABASE_URL", "")
	if cfg.DatabaseURL != "" {
		db, err := ParseDatabaseURL(cfg.DatabaseURL, cfg.ConnMaxAge)
		if err != nil {
			env.fail("DATABASE_URL", err)
		}
		cfg.Database = db
	}

	redisURL := env.requiredStr("REDIS_URL")
	cfg.Tasks.BrokerURL = redisURL
	cfg.Tasks.ResultBackend = redisURL

	if port := strings.TrimSpace(env.str("PORT", "")); port != "" {
		cfg.Server.Port = port
	}

	if rps := strings.TrimSpace(env.str("RATE_LIMIT_RPS", "")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.Server.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(env.str("RATE_LIMIT_BURST", "")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.Server.RateLimitBurst = value
		}
	}
}

// buildAdmins returns the admin list and the manager list, which mirrors it.
func buildAdmins(name, email string) ([]Contact, []Contact) {
	if name == "" || email == "" {
		return []Contact{}, []Contact{}
	}
	admins := []Contact{{Name: name, Email: email}}
	return admins, admins
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the server settings.
func applyYAMLConfig(cfg *Settings, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Server.Port = yamlCfg.Port
	}

	durations := []struct {
		name   string
		raw    string
		target *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.Server.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.Server.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.Server.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.Server.IdleTimeout},
	}
	var errs error
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", d.name, err))
			continue
		}
		*d.target = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.Server.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.Server.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.Server.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	return errs
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Settings, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Server.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.Server.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.Server.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Settings) error {
	var errs error
	if cfg.SecretKey == "" {
		errs = multierr.Append(errs, errors.New("DJANGO_SECRET_KEY must not be empty"))
	}
	if cfg.Server.RateLimitRPS < 0 {
		errs = multierr.Append(errs, errors.New("RATE_LIMIT_RPS must be >= 0"))
	}
	if cfg.Server.RateLimitBurst < 0 {
		errs = multierr.Append(errs, errors.New("RATE_LIMIT_BURST must be >= 0"))
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

func resolveBaseDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve base dir: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve base dir: %w", err)
	}
	return abs, nil
}
