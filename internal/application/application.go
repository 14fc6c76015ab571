package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/eugenenazirov/coursehub/internal/api"
	"github.com/eugenenazirov/coursehub/internal/auth"
	"github.com/eugenenazirov/coursehub/internal/config"
	"github.com/eugenenazirov/coursehub/internal/email"
	"github.com/eugenenazirov/coursehub/internal/storage"
	"github.com/eugenenazirov/coursehub/internal/tasks"
	"github.com/eugenenazirov/coursehub/internal/templates"
)

const indexTemplate = "index.html"

// App encapsulates the application dependencies and HTTP server.
type App struct {
	settings config.Settings
	db       *sql.DB
	broker   *tasks.Broker
	tokens   *auth.TokenService
	notifier *email.AdminNotifier
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// New initializes the application with all dependencies from the provided settings.
func New(ctx context.Context, settings config.Settings, logger *zap.Logger) (*App, error) {
	db, err := storage.Open(ctx, settings.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	broker, err := NewBroker(settings)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app, err := build(settings, db, broker, logger)
	if err != nil {
		_ = broker.Close()
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// NewBroker connects the task broker described by settings.
func NewBroker(settings config.Settings) (*tasks.Broker, error) {
	broker, err := tasks.NewBroker(settings.Tasks.BrokerURL, settings.Tasks.ResultBackend,
		tasks.WithQueue(settings.Tasks.DefaultQueue),
		tasks.WithResultExpiry(settings.Tasks.ResultExpires),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task broker: %w", err)
	}
	return broker, nil
}

// NewWorker builds a task worker with every task handler registered.
func NewWorker(settings config.Settings, broker *tasks.Broker, logger *zap.Logger) (*tasks.Worker, error) {
	mailer, err := email.New(settings.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}

	worker := tasks.NewWorker(broker, logger)
	worker.Register(email.SendTask, email.SendTaskHandler(mailer))
	return worker, nil
}

func build(settings config.Settings, db *sql.DB, broker *tasks.Broker, logger *zap.Logger) (*App, error) {
	tokens, err := auth.NewTokenService(settings.SecretKey, settings.REST.AccessTokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	engine, err := templates.New(settings.Templates, settings.BaseDir, settings.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	notifier := email.NewAdminNotifier(settings.Email, settings.Admins, broker)

	handler := api.NewHandler(settings,
		api.WithHandlerLogger(logger),
		api.WithHealthCheck("database", db.PingContext),
		api.WithHealthCheck("broker", broker.Ping),
	)

	router, err := api.NewRouter(handler, settings, logger,
		api.WithTokens(tokens),
		api.WithErrorNotifier(notifier),
		api.WithIndex(IndexHandler(engine, logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		settings: settings,
		db:       db,
		broker:   broker,
		tokens:   tokens,
		notifier: notifier,
		handler:  handler,
		router:   router,
		logger:   logger,
		server:   NewServer(settings, router),
	}, nil
}

// IndexHandler renders the landing page for "/" and answers 404 elsewhere.
func IndexHandler(engine *templates.Engine, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" || !engine.Has(indexTemplate) {
			http.NotFound(w, r)
			return
		}
		if err := engine.Render(w, r, indexTemplate, nil); err != nil {
			logger.Error("render index failed", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	})
}

// NewServer creates and configures an HTTP server from the provided settings.
func NewServer(settings config.Settings, handler http.Handler) *http.Server {
	addr := settings.Server.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: settings.Server.ReadHeaderTimeout,
		WriteTimeout:      settings.Server.WriteTimeout,
		IdleTimeout:       settings.Server.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening",
			zap.String("addr", a.server.Addr),
			zap.Bool("debug", a.settings.Debug),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Tokens returns the access token service.
func (a *App) Tokens() *auth.TokenService {
	return a.tokens
}

// Close releases the database and broker connections.
func (a *App) Close() error {
	var err error
	if a.broker != nil {
		err = multierr.Append(err, a.broker.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return err
}
