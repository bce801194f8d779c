package http

import (
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"teampulse/pkg/contracts"
)

// ServeDashboardPage serves the dashboard landing page from the web
// directory. The JSON API is the primary surface; this page is a
// convenience for a browser pointed at the server root.
func ServeDashboardPage(webDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index := filepath.Join(webDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			// No frontend installed next to the binary. The status page
			// and the API still work.
			http.Error(w, "Dashboard page not found", http.StatusNotFound)
			return
		}
		http.ServeFile(w, r, index)
	}
}

// statusPage carries no user input, so it is parsed once at startup.
var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>TeamPulse status</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 42em; margin: 40px auto; line-height: 1.5; }
        .banner { padding: 12px 16px; border-left: 4px solid #2e8b57; background: #f2f9f5; }
    </style>
</head>
<body>
    <h1>{{.Product}}</h1>
    <div class="banner">Server is running. Rendered at {{.Now}}.</div>
    <h2>API surfaces</h2>
    <ul>
        <li><a href="/api/health">Health</a></li>
        <li><a href="/api/health/ready">Readiness</a></li>
        <li><a href="/api/version">Version</a></li>
        <li><a href="/api/dashboard/snapshot">Loaded snapshot</a></li>
        <li><a href="/api/dashboard/leaderboard">Leaderboard</a></li>
        <li><a href="/metrics">Prometheus metrics</a></li>
    </ul>
</body>
</html>
`))

// ServeStatusPage renders the built-in status page with the product version
// and links into the API.
func ServeStatusPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := statusPage.Execute(w, map[string]string{
			"Product": contracts.ProductVersion(),
			"Now":     time.Now().Format("2006-01-02 15:04:05"),
		})
		if err != nil {
			http.Error(w, "Error rendering page", http.StatusInternalServerError)
		}
	}
}
