package handlers

import (
	_ "embed"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openAPISpec []byte

// DocsHandler serves the OpenAPI description of the HTTP API and a Swagger UI for it.
type DocsHandler struct {
	ui http.HandlerFunc
}

func NewDocsHandler(specURL string) *DocsHandler {
	return &DocsHandler{
		ui: httpSwagger.Handler(
			httpSwagger.URL(specURL),
			httpSwagger.DocExpansion("list"),
		),
	}
}

func (h *DocsHandler) Spec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (h *DocsHandler) UI(w http.ResponseWriter, r *http.Request) {
	h.ui(w, r)
}
