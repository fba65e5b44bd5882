package smtp

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"

	"github.com/anime-auth-api/internal/domain"
)

//go:embed templates/*.html
var defaultFS embed.FS

var subjects = map[domain.EmailKind]string{
	domain.EmailVerify:  "Verify your %s email",
	domain.EmailReset:   "Reset your %s password",
	domain.EmailWelcome: "Welcome to %s",
}

// TemplateSource serves template overrides by object key.
type TemplateSource interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// Templates holds one parsed body template per email kind.
type Templates struct {
	bodies map[domain.EmailKind]*template.Template
}

func templateKey(kind domain.EmailKind) string {
	return "templates/" + string(kind) + ".html"
}

// LoadTemplates parses the embedded defaults and, when src is non-nil,
// replaces each one with the override stored under the same key.
// Missing overrides fall back to the default.
func LoadTemplates(ctx context.Context, src TemplateSource) (*Templates, error) {
	t := &Templates{bodies: make(map[domain.EmailKind]*template.Template, len(subjects))}
	for kind := range subjects {
		raw, err := defaultFS.ReadFile(templateKey(kind))
		if err != nil {
			return nil, fmt.Errorf("read default %s template: %w", kind, err)
		}
		if src != nil {
			override, err := fetch(ctx, src, templateKey(kind))
			switch {
			case err == nil:
				raw = override
				slog.Info("using email template override", "kind", kind)
			case errors.Is(err, domain.ErrNotFound):
			default:
				return nil, err
			}
		}
		tpl, err := template.New(string(kind)).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		t.bodies[kind] = tpl
	}
	return t, nil
}

func fetch(ctx context.Context, src TemplateSource, key string) ([]byte, error) {
	rc, err := src.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// Render returns the subject and HTML body for kind.
func (t *Templates) Render(kind domain.EmailKind, data domain.EmailData) (string, string, error) {
	tpl, ok := t.bodies[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return fmt.Sprintf(subjects[kind], data.AppName), buf.String(), nil
}
