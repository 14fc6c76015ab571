package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	EnginePostgres = "postgresql"
	EngineSQLite   = "sqlite3"
	EngineMySQL    = "mysql"

	sqliteMemory = ":memory:"
)

// ErrUnsupportedScheme is returned when DATABASE_URL uses an unknown scheme.
var ErrUnsupportedScheme = errors.New("unsupported database URL scheme")

var schemeEngines = map[string]string{
	"postgres":   EnginePostgres,
	"postgresql": EnginePostgres,
	"pgsql":      EnginePostgres,
	"postgis":    EnginePostgres,
	"sqlite":     EngineSQLite,
	"mysql":      EngineMySQL,
}

// ParseDatabaseURL converts a database URL into a connection configuration.
// The result always enables health checks and carries connMaxAge.
func ParseDatabaseURL(raw string, connMaxAge int) (Database, error) {
	raw = strings.TrimSpace(raw)

	// url.Parse rejects ":memory:" as a host, so handle the in-memory forms first.
	if raw == "sqlite://:memory:" || raw == "sqlite://" {
		return Database{
			Engine:           EngineSQLite,
			Name:             sqliteMemory,
			ConnMaxAge:       connMaxAge,
			ConnHealthChecks: true,
		}, nil
	}

	raw, socketHost, err := liftEncodedHost(raw)
	if err != nil {
		return Database{}, fmt.Errorf("parse database URL: %w", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Database{}, fmt.Errorf("parse database URL: %w", err)
	}

	engine, ok := schemeEngines[strings.ToLower(parsed.Scheme)]
	if !ok {
		return Database{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}

	db := Database{
		Engine:           engine,
		Name:             strings.TrimPrefix(parsed.Path, "/"),
		Host:             parsed.Hostname(),
		Port:             parsed.Port(),
		ConnMaxAge:       connMaxAge,
		ConnHealthChecks: true,
	}

	if socketHost != "" {
		db.Host = socketHost
	}

	if engine == EngineSQLite {
		if db.Name == "" {
			db.Name = sqliteMemory
		}
		return db, nil
	}

	if parsed.User != nil {
		db.User = parsed.User.Username()
		db.Password, _ = parsed.User.Password()
	}

	if query := parsed.Query(); len(query) > 0 {
		db.Options = make(map[string]string, len(query))
		for key := range query {
			db.Options[key] = query.Get(key)
		}
	}

	return db, nil
}

// liftEncodedHost decodes a percent-encoded host such as a unix socket
// directory ("%2Fvar%2Frun%2Fpostgresql"), which url.Parse rejects. The
// returned URL carries a placeholder host in its place.
func liftEncodedHost(raw string) (string, string, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw, "", nil
	}

	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	authority, tail := rest[:end], rest[end:]

	userinfo, hostport := "", authority
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		userinfo, hostport = authority[:i+1], authority[i+1:]
	}
	if !strings.Contains(hostport, "%") || strings.HasPrefix(hostport, "[") {
		return raw, "", nil
	}

	host, port := hostport, ""
	if i := strings.LastIndex(hostport, ":"); i >= 0 {
		host, port = hostport[:i], hostport[i:]
	}
	decoded, err := url.PathUnescape(host)
	if err != nil {
		return "", "", err
	}
	return scheme + "://" + userinfo + "localhost" + port + tail, decoded, nil
}
