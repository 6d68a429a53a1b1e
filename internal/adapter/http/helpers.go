package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/quillhq/quill/internal/domain"
)

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// readJSON decodes the request body into T, enforcing the body size limit
// and rejecting unknown fields. On failure it writes a 400 response and
// returns ok=false.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
// notFoundMsg replaces the raw error text on 404 responses so internal
// identifiers are not echoed verbatim.
func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, strings.TrimSuffix(err.Error(), ": "+domain.ErrValidation.Error()))
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "request was modified concurrently, retry")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or not a number.
func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return def
}
