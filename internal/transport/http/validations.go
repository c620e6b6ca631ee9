package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// TicketValidator is the minimal interface needed at the gate.
type TicketValidator interface {
	Validate(ctx context.Context, p domain.Presentation) (domain.TicketValidation, error)
	ListValidations(ctx context.Context, ticketID string) ([]domain.TicketValidation, error)
	VerifyTrail(ctx context.Context, ticketID string) error
}

// HandleValidate serves POST /validations. A repeat presentation is a 200
// with result INVALID, not an error.
func HandleValidate(svc TicketValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setRoute(r, "/validations")
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		var req validateRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		p, err := req.presentation()
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidMethod, err.Error())
			return
		}

		v, err := svc.Validate(r.Context(), p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		loggerFrom(r.Context()).Info("ticket_validation",
			"ticket_id", v.TicketID,
			"method", string(v.Method),
			"result", string(v.Result),
		)
		writeJSON(w, http.StatusOK, newValidationResponse(v))
	}
}

func handleValidationHistory(w http.ResponseWriter, r *http.Request, svc TicketValidator, ticketID string) {
	records, err := svc.ListValidations(r.Context(), ticketID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	intact := true
	if err := svc.VerifyTrail(r.Context(), ticketID); err != nil {
		if !errors.Is(err, domain.ErrAuditTrailBroken) {
			writeServiceError(w, r, err)
			return
		}
		intact = false
		loggerFrom(r.Context()).Warn("validation_trail_broken", "ticket_id", ticketID, "err", err.Error())
	}

	resp := validationHistoryResponse{
		TicketID:    ticketID,
		TrailIntact: intact,
		Validations: make([]validationResponse, 0, len(records)),
	}
	for _, v := range records {
		resp.Validations = append(resp.Validations, newValidationResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateRequest struct {
	Method   string `json:"method"`
	TicketID string `json:"ticket_id,omitempty"`
	Code     string `json:"code,omitempty"`
}

func (r validateRequest) presentation() (domain.Presentation, error) {
	switch domain.ValidationMethod(r.Method) {
	case domain.ValidationMethodManual:
		if r.Code != "" {
			return domain.Presentation{}, errors.New("MANUAL takes ticket_id, not code")
		}
		return domain.ManualPresentation(r.TicketID), nil
	case domain.ValidationMethodQRScan:
		if r.TicketID != "" {
			return domain.Presentation{}, errors.New("QR_SCAN takes code, not ticket_id")
		}
		return domain.AccessCodePresentation(r.Code), nil
	default:
		return domain.Presentation{}, domain.ErrInvalidMethod
	}
}

type validationResponse struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	Method      string    `json:"method"`
	Result      string    `json:"result"`
	ValidatedAt time.Time `json:"validated_at"`
	PrevHash    string    `json:"prev_hash"`
	Hash        string    `json:"hash"`
}

func newValidationResponse(v domain.TicketValidation) validationResponse {
	return validationResponse{
		ID:          v.ID,
		TicketID:    v.TicketID,
		Method:      string(v.Method),
		Result:      string(v.Result),
		ValidatedAt: v.ValidatedAt,
		PrevHash:    v.PrevHash,
		Hash:        v.Hash,
	}
}

type validationHistoryResponse struct {
	TicketID    string               `json:"ticket_id"`
	TrailIntact bool                 `json:"trail_intact"`
	Validations []validationResponse `json:"validations"`
}
