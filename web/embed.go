// Package web embeds the page templates and static assets and renders the
// chat and Mission Control pages.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// StaticHandler serves embedded CSS and JS. Mount it with the /static/ prefix stripped.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create static sub filesystem: " + err.Error())
	}
	return http.FileServer(http.FS(sub))
}

// PageData contains common data for all pages.
type PageData struct {
	Title       string
	CurrentPath string
	Data        any
}

// Renderer renders page templates into the shared layout.
type Renderer struct {
	base *template.Template
}

// NewRenderer parses the layout. Page templates are parsed into a clone of
// the layout per render so their "content" blocks never collide.
func NewRenderer() (*Renderer, error) {
	base, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base template: %w", err)
	}
	return &Renderer{base: base}, nil
}

// Render writes page name (e.g. "chat.html") with data to w.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, name, title string, status int, data any) error {
	tmpl, err := r.base.Clone()
	if err != nil {
		return fmt.Errorf("clone template: %w", err)
	}
	if _, err := tmpl.ParseFS(templatesFS, "templates/"+name); err != nil {
		return fmt.Errorf("parse page template %s: %w", name, err)
	}

	var buf bytes.Buffer
	page := PageData{Title: title, CurrentPath: req.URL.Path, Data: data}
	if err := tmpl.ExecuteTemplate(&buf, "base", page); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)
	sanitizer = bluemonday.UGCPolicy()
)

// Markdown renders chat content as sanitized HTML.
func Markdown(s string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(sanitizer.SanitizeBytes(buf.Bytes()))
}

func roleLabel(role any) string {
	switch fmt.Sprint(role) {
	case "user":
		return "You"
	case "assistant":
		return "Agent"
	default:
		return fmt.Sprint(role)
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"markdown":  Markdown,
		"roleLabel": roleLabel,
		"hasPrefix": strings.HasPrefix,
	}
}
