package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kardexlab/kardex/internal/agent"
	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/ledger"
	"github.com/kardexlab/kardex/internal/lifecycle"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v with the given status. Encoding failures are logged
// only; headers are already on the wire.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encoding response", "error", err)
	}
}

// writeError maps a domain error to an HTTP status and writes the error
// envelope. The mapping follows the error taxonomy: not-found → 404,
// allocation conflict and double resolve → 409, validation → 400,
// everything else → 500 with the detail kept out of the response body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, lifecycle.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict),
		errors.Is(err, lifecycle.ErrAlreadyResolved):
		status = http.StatusConflict
	case errors.Is(err, agent.ErrValidation),
		errors.Is(err, casebook.ErrValidation):
		status = http.StatusBadRequest
	default:
		logger.Error("request failed", "error", err)
		msg = http.StatusText(http.StatusInternalServerError)
	}

	writeJSON(w, logger, status, errorResponse{Error: msg})
}

// decodeJSON parses the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
