package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

type errorBody struct {
	Error            string `json:"error"`
	Field            string `json:"field,omitempty"`
	ExistingTicketID string `json:"existingTicketId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return nil
}

// statusFor maps a domain error onto a status code and response body.
func statusFor(err error) (int, errorBody) {
	var verr *models.ValidationError
	var dup *models.DuplicateTicketError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field}
	case errors.As(err, &dup):
		return http.StatusConflict, errorBody{Error: models.ErrDuplicateTicket.Error(), ExistingTicketID: dup.ExistingID}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error()}
	case errors.Is(err, models.ErrNoCoverage):
		return http.StatusUnprocessableEntity, errorBody{Error: models.ErrNoCoverage.Error()}
	case errors.Is(err, models.ErrAlreadyResolved):
		return http.StatusConflict, errorBody{Error: models.ErrAlreadyResolved.Error()}
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden, errorBody{Error: models.ErrPermissionDenied.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeJSON(w, status, body)
}

// errorCode is the short code carried by websocket error events.
func errorCode(err error) string {
	switch status, _ := statusFor(err); status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "no_coverage"
	default:
		return "internal"
	}
}
