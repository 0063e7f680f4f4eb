package handlers

import (
	"log/slog"
	"net/http"

	"github.com/taskdeck/apiserver/web"
)

type pageData struct {
	Error    string
	Username string
}

func renderPage(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.Templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render page", "template", name, "error", err)
	}
}
