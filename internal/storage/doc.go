// Package storage opens the relational database described by the settings.
// Postgres is reached through pgx and SQLite through go-sqlite3.
package storage
