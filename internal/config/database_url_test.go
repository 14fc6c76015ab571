package config

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Database
	}{
		{
			name: "postgres",
			raw:  "postgres://app:secret@db:5432/coursehub",
			want: Database{Engine: EnginePostgres, Name: "coursehub", User: "app", Password: "secret", Host: "db", Port: "5432"},
		},
		{
			name: "postgis alias without port",
			raw:  "postgis://app@db/geo",
			want: Database{Engine: EnginePostgres, Name: "geo", User: "app", Host: "db"},
		},
		{
			name: "postgres unix socket",
			raw:  "postgres://%2Fvar%2Frun%2Fpostgresql/mydb",
			want: Database{Engine: EnginePostgres, Name: "mydb", Host: "/var/run/postgresql"},
		},
		{
			name: "postgres unix socket with credentials and port",
			raw:  "postgresql://app:pw@%2Ftmp%2Fpg:5433/mydb?sslmode=disable",
			want: Database{Engine: EnginePostgres, Name: "mydb", User: "app", Password: "pw", Host: "/tmp/pg", Port: "5433", Options: map[string]string{"sslmode": "disable"}},
		},
		{
			name: "mysql",
			raw:  "mysql://root:pw@127.0.0.1:3306/shop",
			want: Database{Engine: EngineMySQL, Name: "shop", User: "root", Password: "pw", Host: "127.0.0.1", Port: "3306"},
		},
		{
			name: "sqlite relative",
			raw:  "sqlite:///db.sqlite3",
			want: Database{Engine: EngineSQLite, Name: "db.sqlite3"},
		},
		{
			name: "sqlite absolute",
			raw:  "sqlite:////var/lib/app.db",
			want: Database{Engine: EngineSQLite, Name: "/var/lib/app.db"},
		},
		{
			name: "sqlite memory",
			raw:  "sqlite://:memory:",
			want: Database{Engine: EngineSQLite, Name: ":memory:"},
		},
		{
			name: "sqlite empty",
			raw:  "sqlite://",
			want: Database{Engine: EngineSQLite, Name: ":memory:"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDatabaseURL(tc.raw, 120)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.want.ConnMaxAge = 120
			tc.want.ConnHealthChecks = true
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDatabaseURLUnsupportedScheme(t *testing.T) {
	_, err := ParseDatabaseURL("oracle://host/db", 0)
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}
