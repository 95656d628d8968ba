// Package web holds the server-rendered pages. Templates are embedded so the
// binary has no runtime file dependencies.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses every embedded page. Each page is addressed by its file
// name, e.g. "index.html".
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// MustTemplates is like Templates but panics if the embedded pages fail to
// parse.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}
