// Package web holds the embedded HTML templates for the browser flows.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates contains the parsed login, register and todo pages.
var Templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
