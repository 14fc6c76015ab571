package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/eugenenazirov/coursehub/internal/config"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite3"
)

var (
	// ErrUnsupportedEngine indicates the configured engine has no Go driver wired in.
	ErrUnsupportedEngine = errors.New("unsupported database engine")
	// ErrMissingName indicates the database name is empty.
	ErrMissingName = errors.New("database name must not be empty")
)

// DSN maps a database configuration onto a database/sql driver name and
// data source string.
func DSN(cfg config.Database) (string, string, error) {
	if cfg.Name == "" {
		return "", "", ErrMissingName
	}

	switch cfg.Engine {
	case config.EnginePostgres:
		return driverPostgres, postgresDSN(cfg), nil
	case config.EngineSQLite:
		return driverSQLite, cfg.Name, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, cfg.Engine)
	}
}

func postgresDSN(cfg config.Database) string {
	query := url.Values{}
	for key, value := range cfg.Options {
		query.Set(key, value)
	}

	host := cfg.Host
	switch {
	case strings.HasPrefix(host, "/"):
		// Unix socket directories travel as query parameters.
		query.Set("host", host)
		if cfg.Port != "" {
			query.Set("port", cfg.Port)
		}
		host = ""
	case host == "":
		host = "localhost"
		fallthrough
	default:
		if cfg.Port != "" {
			host = net.JoinHostPort(host, cfg.Port)
		}
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     host,
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	switch {
	case cfg.User != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.User, cfg.Password)
	case cfg.User != "":
		u.User = url.User(cfg.User)
	}
	return u.String()
}

// Open returns a connection pool for cfg. ConnMaxAge > 0 bounds connection
// lifetime in seconds, 0 closes connections after use and < 0 reuses them
// indefinitely. Health-checked configurations are pinged before returning.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	driver, dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Engine, err)
	}

	switch {
	case cfg.ConnMaxAge > 0:
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxAge) * time.Second)
	case cfg.ConnMaxAge == 0:
		db.SetMaxIdleConns(0)
	}

	if cfg.ConnHealthChecks {
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping %s: %w", cfg.Engine, err)
		}
	}

	return db, nil
}
