package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/service"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

// readJSON decodes a JSON request body with a size limit. An empty body
// decodes as the zero value.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", service.KindValidation)
		} else {
			writeError(w, http.StatusBadRequest, "Invalid JSON body", service.KindValidation)
		}
		return v, false
	}
	return v, true
}

// queryInt parses an integer query parameter. ok is false when the
// parameter is absent or not a number.
func queryInt(r *http.Request, name string) (n int, ok bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

type errorResponse struct {
	Error string       `json:"error"`
	Kind  service.Kind `json:"kind"`
}

type conflictResponse struct {
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	ActiveRunID  string `json:"active_run_id"`
	ActiveStatus string `json:"active_status"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Logger.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, kind service.Kind) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// statusForKind maps service error kinds to HTTP status codes
func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindInvalidPath:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err as a structured JSON error
func writeServiceError(w http.ResponseWriter, err error) {
	var serr *service.Error
	if !errors.As(err, &serr) {
		logging.Logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", service.KindInternal)
		return
	}

	if serr.Kind == service.KindConflict {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:        serr.Message,
			Kind:         string(serr.Kind),
			Message:      "Run " + serr.ActiveRunID + " is currently " + string(serr.ActiveStatus),
			ActiveRunID:  serr.ActiveRunID,
			ActiveStatus: string(serr.ActiveStatus),
		})
		return
	}

	status := statusForKind(serr.Kind)
	if status == http.StatusInternalServerError {
		logging.Logger.Error("request failed", "kind", serr.Kind, "error", err)
	}
	writeError(w, status, serr.Message, serr.Kind)
}
