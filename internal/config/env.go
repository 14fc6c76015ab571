package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

var (
	// ErrMissingRequired is returned for a required variable that is not set.
	ErrMissingRequired = errors.New("required variable is not set")
	// ErrInvalidValue is returned when a variable cannot be cast to its type.
	ErrInvalidValue = errors.New("invalid value")
)

var booleans = map[string]bool{
	"1": true, "yes": true, "true": true, "on": true,
	"0": false, "no": false, "false": false, "off": false, "": false,
}

type lookupFunc func(key string) (string, bool)

// environ reads typed values and accumulates every failure instead of
// stopping at the first one.
type environ struct {
	lookup lookupFunc
	err    error
}

// newEnviron layers the process environment over the optional .env file.
// A missing env file is not an error.
func newEnviron(envFile string) (*environ, error) {
	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	return &environ{
		lookup: func(key string) (string, bool) {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
			value, ok := dotenv[key]
			return value, ok
		},
	}, nil
}

func (e *environ) fail(key string, err error) {
	e.err = multierr.Append(e.err, fmt.Errorf("%s: %w", key, err))
}

func (e *environ) str(key, fallback string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return fallback
}

func (e *environ) requiredStr(key string) string {
	value, ok := e.lookup(key)
	if !ok {
		e.fail(key, ErrMissingRequired)
		return ""
	}
	return value
}

func (e *environ) boolean(key string, fallback bool) bool {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	return e.castBool(key, value)
}

func (e *environ) requiredBool(key string) bool {
	value, ok := e.lookup(key)
	if !ok {
		e.fail(key, ErrMissingRequired)
		return false
	}
	return e.castBool(key, value)
}

func (e *environ) integer(key string, fallback int) int {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		e.fail(key, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, value))
		return fallback
	}
	return parsed
}

func (e *environ) castBool(key, value string) bool {
	parsed, ok := booleans[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		e.fail(key, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, value))
		return false
	}
	return parsed
}
