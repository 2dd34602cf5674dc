package host

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateFiles = map[model.TemplateKind]string{
	model.TemplateSystemd: "systemd.service.tmpl",
	model.TemplateNginx:   "nginx.conf.tmpl",
}

// TemplateRenderer renders unit and site configs from embedded templates.
type TemplateRenderer struct {
	tmpl *template.Template
}

var _ core.ConfigRenderer = (*TemplateRenderer)(nil)

// NewTemplateRenderer parses the embedded templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	funcs := template.FuncMap{
		"execStart": execStart,
		"envPair":   envPair,
		"serveRoot": serveRoot,
	}
	tmpl, err := template.New("host").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render implements core.ConfigRenderer.
func (r *TemplateRenderer) Render(_ context.Context, kind model.TemplateKind, data model.RenderContext) (string, error) {
	name, ok := templateFiles[kind]
	if !ok {
		return "", apperrors.Integration("renderer", "", fmt.Errorf("unknown template kind %q", kind))
	}
	if data.Domain == "" {
		return "", apperrors.Integration("renderer", "", fmt.Errorf("%s template needs a domain", kind))
	}
	if kind == model.TemplateSystemd && len(data.Start) == 0 {
		return "", apperrors.Integration("renderer", "", fmt.Errorf("%s has no start command", data.AppType))
	}
	if data.SSL && (data.CertPath == "" || data.KeyPath == "") {
		return "", apperrors.Integration("renderer", "", fmt.Errorf("ssl site %s has no certificate paths", data.Domain))
	}

	var b strings.Builder
	if err := r.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", apperrors.Integration("renderer", "", fmt.Errorf("render %s: %w", kind, err))
	}
	return strings.TrimLeft(b.String(), "\n"), nil
}

// execStart makes a relative executable absolute under root and quotes arguments with spaces.
func execStart(root string, argv []string) string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		if i == 0 && strings.Contains(arg, "/") && !filepath.IsAbs(arg) {
			arg = filepath.Join(root, arg)
		}
		if strings.ContainsAny(arg, " \t\"") {
			arg = strconv.Quote(arg)
		}
		out[i] = arg
	}
	return strings.Join(out, " ")
}

// envPair renders a systemd Environment= assignment, quoted so values may hold spaces.
func envPair(key, value string) string {
	return strconv.Quote(key + "=" + value)
}

func serveRoot(root, dir string) string {
	if dir == "" || dir == "." {
		return root
	}
	return filepath.Join(root, dir)
}
