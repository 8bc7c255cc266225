package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/setupranali/gateway/pkg/apierrors"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// RespondError writes a simple apierrors-shaped error body for handler-local
// failures that don't carry a richer *apierrors.Error (e.g. body decode
// failures caught before an Error can be constructed).
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, apierrors.Body{Error: apierrors.BodyDetail{Code: code, Message: message}})
}

// RespondErr maps err through apierrors and writes the resulting status and
// body. Internal errors are logged with a correlation id instead of leaking
// the underlying cause to the caller.
func RespondErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body := apierrors.ToBody(err)
	if status == http.StatusInternalServerError && body.Error.Code == apierrors.CodeInternal {
		correlationID := uuid.New().String()
		logger.Error("internal error", "correlation_id", correlationID, "error", err)
		body.Error.Message = "internal error (correlation_id=" + correlationID + ")"
	}
	Respond(w, status, body)
}
