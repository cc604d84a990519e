package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/service"
)

// Handlers serves the test-run API
type Handlers struct {
	Service *service.Service
}

type startRequest struct {
	Suite   string `json:"suite"`
	BaseURL string `json:"baseUrl"`
}

// StartRun handles POST /api/test-runs
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Service.Start(r.Context(), req.Suite, req.BaseURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRuns handles GET /api/test-runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := service.DefaultListLimit
	if n, ok := queryInt(r, "limit"); ok {
		limit = max(1, n)
	}
	writeJSON(w, http.StatusOK, h.Service.List(limit))
}

// GetRun handles GET /api/test-runs/{runID}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	record, err := h.Service.Get(chi.URLParam(r, "runID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// GetLogs handles GET /api/test-runs/{runID}/logs
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	lines := 0
	if n, ok := queryInt(r, "lines"); ok {
		lines = max(1, n)
	}
	logs, err := h.Service.Logs(chi.URLParam(r, "runID"), lines)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetArtifact handles GET /api/test-runs/{runID}/artifacts/*
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rel := chi.URLParam(r, "*")
	// routing matched on the escaped path
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(rel)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid artifact path", service.KindInvalidPath)
			return
		}
		rel = unescaped
	}

	artifact, err := h.Service.Artifact(runID, rel)
	if err != nil {
		if service.KindOf(err) == service.KindInvalidPath {
			logging.Logger.Warn("rejected artifact path", "run_id", runID, "path", rel, "remote", r.RemoteAddr)
		}
		writeServiceError(w, err)
		return
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Artifact %s does not exist", rel), service.KindNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error", service.KindInternal)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, quoteFilename(artifact.Name)))
	http.ServeContent(w, r, artifact.Name, info.ModTime(), f)
}

// Healthz handles GET /healthz
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func quoteFilename(name string) string {
	return strings.NewReplacer(`"`, "_", "\\", "_", "\r", "_", "\n", "_").Replace(name)
}
