package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/coursehub/internal/config"
)

func TestDSNPostgres(t *testing.T) {
	driver, dsn, err := DSN(config.Database{
		Engine:   config.EnginePostgres,
		Name:     "coursehub",
		User:     "app",
		Password: "p@ss",
		Host:     "db",
		Port:     "5432",
		Options:  map[string]string{"sslmode": "require", "application_name": "api"},
	})
	require.NoError(t, err)
	require.Equal(t, "pgx", driver)
	require.Equal(t, "postgres://app:p%40ss@db:5432/coursehub?application_name=api&sslmode=require", dsn)
}

func TestDSNPostgresDefaultsHost(t *testing.T) {
	_, dsn, err := DSN(config.Database{Engine: config.EnginePostgres, Name: "coursehub", User: "app"})
	require.NoError(t, err)
	require.Equal(t, "postgres://app@localhost/coursehub", dsn)
}

func TestDSNPostgresUnixSocket(t *testing.T) {
	_, dsn, err := DSN(config.Database{
		Engine: config.EnginePostgres,
		Name:   "coursehub",
		Host:   "/var/run/postgresql",
	})
	require.NoError(t, err)
	require.Equal(t, "postgres:///coursehub?host=%2Fvar%2Frun%2Fpostgresql", dsn)

	_, dsn, err = DSN(config.Database{
		Engine: config.EnginePostgres,
		Name:   "coursehub",
		User:   "app",
		Host:   "/tmp",
		Port:   "5433",
	})
	require.NoError(t, err)
	require.Equal(t, "postgres://app@/coursehub?host=%2Ftmp&port=5433", dsn)
}

func TestDSNSQLite(t *testing.T) {
	driver, dsn, err := DSN(config.Database{Engine: config.EngineSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, "sqlite3", driver)
	require.Equal(t, ":memory:", dsn)
}

func TestDSNErrors(t *testing.T) {
	_, _, err := DSN(config.Database{Engine: config.EngineMySQL, Name: "shop"})
	require.ErrorIs(t, err, ErrUnsupportedEngine)

	_, _, err = DSN(config.Database{Engine: config.EnginePostgres})
	require.ErrorIs(t, err, ErrMissingName)
}

func TestOpenSQLiteWithHealthCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := Open(context.Background(), config.Database{
		Engine:           config.EngineSQLite,
		Name:             path,
		ConnMaxAge:       60,
		ConnHealthChecks: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE courses (id INTEGER PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO courses (title) VALUES (?)`, "Go basics")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM courses`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestOpenZeroConnMaxAgeKeepsNoIdleConnections(t *testing.T) {
	db, err := Open(context.Background(), config.Database{
		Engine: config.EngineSQLite,
		Name:   filepath.Join(t.TempDir(), "idle.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Ping())
	require.Equal(t, 0, db.Stats().Idle)
}
