package httpapi

import (
	"net/http"

	"github.com/go-chi/render"
)

// handleContractJSON serves the machine-readable API contract.
func (rt *Runtime) handleContractJSON(w http.ResponseWriter, r *http.Request) {
	if rt.contract == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]any{"error": "no contract configured"})
		return
	}
	render.JSON(w, r, rt.contract)
}

// handleContractMarkdown serves the human-readable contract.
func (rt *Runtime) handleContractMarkdown(w http.ResponseWriter, r *http.Request) {
	if rt.contract == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]any{"error": "no contract configured"})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(rt.contract.Markdown()))
}

// handleManifest lists the SDK files without their contents, so a
// puller can diff before downloading.
func (rt *Runtime) handleManifest(w http.ResponseWriter, r *http.Request) {
	if rt.manifest == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]any{"error": "no sdk bundle configured"})
		return
	}
	render.JSON(w, r, map[string]any{
		"version": rt.manifest.Version,
		"files":   rt.manifest.Paths(),
	})
}

// handleDownload serves the full SDK bundle.
func (rt *Runtime) handleDownload(w http.ResponseWriter, r *http.Request) {
	if rt.manifest == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]any{"error": "no sdk bundle configured"})
		return
	}
	render.JSON(w, r, rt.manifest)
}
