// Package web serves the live redaction dashboard.
package web

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed dashboard.html
var dashboardHTML string

// Dashboard returns a handler for the dashboard page. wsPath is the
// WebSocket endpoint the page subscribes to.
func Dashboard(wsPath string) http.Handler {
	page := []byte(strings.ReplaceAll(dashboardHTML, "{{WS_PATH}}", wsPath))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		_, _ = w.Write(page)
	})
}
