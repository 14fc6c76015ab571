// Package config resolves the service settings once at start-up. Values come
// from CLI flags, an optional YAML file, process environment variables, a
// .env file and defaults, in that order of precedence. Missing required
// variables and malformed values are reported together so the process can
// refuse to boot with a complete list of what is wrong.
package config
