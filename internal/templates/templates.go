// Package templates renders HTML pages with html/template. Context
// processors named in the settings add values every template can use.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/eugenenazirov/coursehub/internal/auth"
	"github.com/eugenenazirov/coursehub/internal/config"
)

// ErrUnknownProcessor is returned for context processors that do not exist.
var ErrUnknownProcessor = errors.New("unknown context processor")

// ContextProcessor contributes values to every template context.
type ContextProcessor func(r *http.Request, debug bool) map[string]any

var processors = map[string]ContextProcessor{
	"debug": func(_ *http.Request, debug bool) map[string]any {
		return map[string]any{"debug": debug}
	},
	"request": func(r *http.Request, _ bool) map[string]any {
		return map[string]any{"request": r}
	},
	"auth": func(r *http.Request, _ bool) map[string]any {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			return map[string]any{"user": nil}
		}
		return map[string]any{"user": p}
	},
}

// Engine holds the parsed template set.
type Engine struct {
	tmpl       *template.Template
	processors []ContextProcessor
	debug      bool
}

// New parses every *.html file under the configured directories. With
// AppDirs set, web/templates under baseDir is searched as well.
func New(cfg config.Templates, baseDir string, debug bool) (*Engine, error) {
	procs := make([]ContextProcessor, 0, len(cfg.ContextProcessors))
	for _, name := range cfg.ContextProcessors {
		proc, ok := processors[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
		}
		procs = append(procs, proc)
	}

	dirs := append([]string{}, cfg.Dirs...)
	if cfg.AppDirs {
		dirs = append(dirs, filepath.Join(baseDir, "web", "templates"))
	}

	tmpl := template.New("")
	for _, dir := range dirs {
		if err := parseDir(tmpl, dir); err != nil {
			return nil, err
		}
	}

	return &Engine{tmpl: tmpl, processors: procs, debug: debug}, nil
}

func parseDir(tmpl *template.Template, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".html" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read template %s: %w", path, err)
		}
		// The first directory providing a name wins.
		if tmpl.Lookup(filepath.ToSlash(rel)) != nil {
			return nil
		}
		if _, err := tmpl.New(filepath.ToSlash(rel)).Parse(string(content)); err != nil {
			return fmt.Errorf("parse template %s: %w", path, err)
		}
		return nil
	})
}

// Has reports whether a template called name was loaded.
func (e *Engine) Has(name string) bool {
	return e.tmpl.Lookup(name) != nil
}

// Render executes name with data merged over the context processor output.
func (e *Engine) Render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) error {
	ctx := make(map[string]any)
	for _, proc := range e.processors {
		for k, v := range proc(r, e.debug) {
			ctx[k] = v
		}
	}
	for k, v := range data {
		ctx[k] = v
	}

	var buf bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&buf, name, ctx); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}
