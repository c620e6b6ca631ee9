package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

const (
	codeMethodNotAllowed       = "method_not_allowed"
	codeNotFound               = "not_found"
	codeInvalidRequestBody     = "invalid_request_body"
	codeInvalidStartsAt        = "invalid_starts_at"
	codeInvalidPage            = "invalid_page"
	codeInvalidID              = "invalid_id"
	codeInvalidMethod          = "invalid_method"
	codeInvalidPrice           = "invalid_price"
	codeInvalidCapacity        = "invalid_capacity"
	codePurchaserRequired      = "purchaser_required"
	codeEventNameRequired      = "event_name_required"
	codeTicketTypeNameRequired = "ticket_type_name_required"
	codeEventNotFound          = "event_not_found"
	codeTicketTypeNotFound     = "ticket_type_not_found"
	codeTicketNotFound         = "ticket_not_found"
	codeAccessCodeNotFound     = "access_code_not_found"
	codeTicketTypeExists       = "ticket_type_already_exists"
	codeSoldOut                = "sold_out"
	codeRetry                  = "retry"
	codeForbidden              = "forbidden"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrTicketTypeNotFound, http.StatusNotFound, codeTicketTypeNotFound},
	{domain.ErrTicketNotFound, http.StatusNotFound, codeTicketNotFound},
	{domain.ErrAccessCodeNotFound, http.StatusNotFound, codeAccessCodeNotFound},
	{domain.ErrEventNotFound, http.StatusNotFound, codeEventNotFound},
	{domain.ErrTicketsSoldOut, http.StatusConflict, codeSoldOut},
	{domain.ErrTicketTypeExists, http.StatusConflict, codeTicketTypeExists},
	{domain.ErrPurchaserRequired, http.StatusBadRequest, codePurchaserRequired},
	{domain.ErrInvalidMethod, http.StatusBadRequest, codeInvalidMethod},
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrEventNameRequired, http.StatusBadRequest, codeEventNameRequired},
	{domain.ErrTicketTypeNameRequired, http.StatusBadRequest, codeTicketTypeNameRequired},
	{domain.ErrInvalidCapacity, http.StatusBadRequest, codeInvalidCapacity},
	{domain.ErrInvalidPrice, http.StatusBadRequest, codeInvalidPrice},
}

// writeServiceError translates a service error. Transient failures carry
// Retry-After; anything unrecognized is logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsTransient(err) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, codeRetry, "temporarily unavailable, retry")
		return
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, e.err.Error())
			return
		}
	}
	loggerFrom(r.Context()).Error("request_failed",
		"method", r.Method,
		"path", r.URL.Path,
		"err", err.Error(),
	)
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}
