package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/datalens/datalens-ai/internal/analytics"
)

// errorResponse is the uniform failure body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP statuses: rejected input is the
// caller's fault, a cancelled run is neither side's, everything else is ours.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func statusFor(err error) (int, string) {
	switch {
	case analytics.IsInputError(err):
		return http.StatusBadRequest, "input_error"
	case errors.Is(err, analytics.ErrCancelled):
		// 499 is the de-facto "client closed request" status.
		return 499, "cancelled"
	default:
		return http.StatusInternalServerError, "error"
	}
}

// runStatus labels an analysis outcome for run history and metrics.
func runStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case analytics.IsInputError(err):
		return "input_error"
	case errors.Is(err, analytics.ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
