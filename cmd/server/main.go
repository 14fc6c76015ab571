package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/coursehub/internal/application"
	"github.com/eugenenazirov/coursehub/internal/auth"
	"github.com/eugenenazirov/coursehub/internal/config"
	"github.com/eugenenazirov/coursehub/internal/logging"
)

var signalNotify = signal.Notify

type cli struct {
	app     *kingpin.Application
	serve   *kingpin.CmdClause
	worker  *kingpin.CmdClause
	check   *kingpin.CmdClause
	token   *kingpin.CmdClause
	subject *string

	overrides func() *config.CLIOverrides
}

func newCLI() *cli {
	kingpinApp := kingpin.New("coursehub", "Course platform backend - HTTP API, task worker and settings checks")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to a .env file read for variables missing from the environment").Default(".env").String()
	baseDir := kingpinApp.Flag("base-dir", "Project directory used to resolve static, media and template paths").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	c := &cli{
		app:    kingpinApp,
		serve:  kingpinApp.Command("serve", "Run the HTTP server").Default(),
		worker: kingpinApp.Command("worker", "Consume background tasks from the broker"),
		check:  kingpinApp.Command("check", "Validate settings and print them with secrets redacted"),
	}
	c.token = kingpinApp.Command("token", "Issue an access token")
	c.subject = c.token.Arg("subject", "Subject (user id) the token is issued for").Required().String()

	c.overrides = func() *config.CLIOverrides {
		overrides := &config.CLIOverrides{
			ConfigFile: *configFile,
			EnvFile:    *envFile,
			BaseDir:    *baseDir,
		}
		if *port != "" {
			overrides.Port = port
		}
		if *rateLimitRPSFlag >= 0 {
			overrides.RateLimitRPS = rateLimitRPSFlag
		}
		if *rateLimitBurstFlag >= 0 {
			overrides.RateLimitBurst = rateLimitBurstFlag
		}
		return overrides
	}
	return c
}

func main() {
	c := newCLI()
	command := kingpin.MustParse(c.app.Parse(os.Args[1:]))

	settings, err := config.Load(c.overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	switch command {
	case c.check.FullCommand():
		if err := printSettings(os.Stdout, settings); err != nil {
			panic(fmt.Sprintf("failed to print settings: %v", err))
		}
		return
	case c.token.FullCommand():
		if err := printToken(os.Stdout, settings, *c.subject); err != nil {
			panic(fmt.Sprintf("failed to issue token: %v", err))
		}
		return
	}

	logger, err := logging.New(settings.Debug)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case c.worker.FullCommand():
		runWorker(settings, logger)
	default:
		runServer(settings, logger)
	}
}

func runServer(settings config.Settings, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := application.New(ctx, settings, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), settings.Server.ShutdownGracePeriod, logger)
}

func runWorker(settings config.Settings, logger *zap.Logger) {
	broker, err := application.NewBroker(settings)
	if err != nil {
		logger.Fatal("failed to connect broker", zap.Error(err))
	}
	defer func() {
		_ = broker.Close()
	}()

	worker, err := application.NewWorker(settings, broker, logger)
	if err != nil {
		logger.Fatal("failed to initialize worker", zap.Error(err))
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker exited with error", zap.Error(err))
	}
}

func printSettings(w io.Writer, settings config.Settings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings.Redacted()); err != nil {
		return err
	}
	return enc.Close()
}

func printToken(w io.Writer, settings config.Settings, subject string) error {
	tokens, err := auth.NewTokenService(settings.SecretKey, settings.REST.AccessTokenLifetime)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(subject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// signalContext is cancelled on the first termination signal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-quit:
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
