// Package swagger serves the OpenAPI document and a ReDoc viewer for it.
package swagger

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// OpenAPI contains the embedded OpenAPI YAML document.
//
//go:embed openapi.yaml
var OpenAPI []byte

// Register attaches the documentation routes to r.
//
//	GET /api-docs     -> ReDoc HTML
//	GET /openapi.yaml -> embedded OpenAPI document
func Register(r chi.Router) {
	if r == nil {
		panic("router is nil")
	}

	r.Get("/api-docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}

// Minimal HTML that loads ReDoc and points it at /openapi.yaml.
const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Kudos API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
