package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"leftover/internal/core"
	"leftover/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encoding failed", "error", err)
	}
}

// respondError maps engine errors onto the HTTP surface: validation is
// 422 with the offending field, unknown references are 404, regenerating
// an existing month is 409, anything else is a 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: verr.Err.Error(), Field: verr.Field})
	case errors.Is(err, services.ErrMonthExists):
		respondJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, services.ErrMonthNotFound),
		errors.Is(err, services.ErrInstanceNotFound),
		errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, services.ErrSourceNotFound),
		errors.Is(err, services.ErrExpenseNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.Invalid("body", err)
	}
	return nil
}

// monthParam validates the {month} path segment.
func monthParam(r *http.Request) (core.Month, error) {
	return core.ParseMonth(r.PathValue("month"))
}

// parseAmount converts a user-entered decimal string ("12.34") to Money.
func parseAmount(field, s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, core.Invalid(field, err)
	}
	return core.Money{Cents: cents}, nil
}
