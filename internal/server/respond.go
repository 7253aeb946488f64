package server

import (
	"encoding/json"
	"net/http"

	"github.com/samvad-hq/samvad-news-mapper/internal/apperr"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; only log.
		logger.ErrorObj("encode response failed", "respond_error", err.Error())
	}
}

// writeError maps an error to its HTTP status and a {message} body.
// Classified errors surface their message; everything else is an
// unclassified storage failure that is logged and masked.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.StatusFor(err)
	if code >= http.StatusInternalServerError {
		logger.ErrorObj("request failed", "server_error", err.Error())
		writeJSON(w, code, map[string]string{"message": "internal server error"})
		return
	}
	writeJSON(w, code, map[string]string{"message": err.Error()})
}
