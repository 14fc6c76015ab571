// Package application provides application initialization and dependency wiring.
// It opens the database and task broker named by the settings, builds the
// token service, template engine, admin notifier and HTTP router, and
// assembles the HTTP server, keeping the main package focused on CLI parsing
// and orchestration.
package application
