package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// purchaserHeader identifies the caller. Authentication happens upstream;
// this service trusts the header.
const purchaserHeader = "X-Purchaser-Id"

// TicketPurchaser is the minimal interface needed to buy a ticket.
type TicketPurchaser interface {
	PurchaseTicket(ctx context.Context, purchaserID, ticketTypeID string) (domain.Ticket, error)
}

// TicketService is the minimal interface needed for a purchaser's tickets.
type TicketService interface {
	GetTicket(ctx context.Context, purchaserID, ticketID string) (domain.Ticket, error)
	ListTicketsForUser(ctx context.Context, purchaserID string, page domain.Page) ([]domain.Ticket, error)
	CancelTicket(ctx context.Context, purchaserID, ticketID string) (domain.Ticket, error)
	AccessCodeForTicket(ctx context.Context, purchaserID, ticketID string) (domain.AccessCode, error)
}

// PayloadSigner turns an access code id into the payload encoded in the
// scannable code.
type PayloadSigner interface {
	Sign(codeID string) string
}

// HandlePurchase serves POST /ticket-types/{id}/tickets.
func HandlePurchase(svc TicketPurchaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketTypeID, ok := parsePurchasePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		setRoute(r, "/ticket-types/{id}/tickets")
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		ticket, err := svc.PurchaseTicket(r.Context(), purchaserFrom(r), ticketTypeID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		loggerFrom(r.Context()).Info("ticket_purchased",
			"ticket_id", ticket.ID,
			"ticket_type_id", ticket.TicketTypeID,
		)
		writeJSON(w, http.StatusCreated, newTicketResponse(ticket))
	}
}

// HandleListTickets serves GET /tickets?page=&size= for the calling
// purchaser, newest first.
func HandleListTickets(svc TicketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setRoute(r, "/tickets")
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		page, ok := parsePage(r)
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidPage, "page and size must be non-negative integers")
			return
		}

		tickets, err := svc.ListTicketsForUser(r.Context(), purchaserFrom(r), page)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		page = page.Normalize()
		resp := ticketListResponse{
			Page:    page.Number,
			Size:    page.Size,
			Tickets: make([]ticketResponse, 0, len(tickets)),
		}
		for _, t := range tickets {
			resp.Tickets = append(resp.Tickets, newTicketResponse(t))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleTicket serves the /tickets/{id} subtree:
//
//	GET  /tickets/{id}
//	POST /tickets/{id}/cancel
//	GET  /tickets/{id}/access-code
//	GET  /tickets/{id}/validations
func HandleTicket(svc TicketService, validator TicketValidator, signer PayloadSigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, action, ok := parseTicketPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "":
			setRoute(r, "/tickets/{id}")
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			ticket, err := svc.GetTicket(r.Context(), purchaserFrom(r), ticketID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, newTicketResponse(ticket))
		case "cancel":
			setRoute(r, "/tickets/{id}/cancel")
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			ticket, err := svc.CancelTicket(r.Context(), purchaserFrom(r), ticketID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			loggerFrom(r.Context()).Info("ticket_cancelled", "ticket_id", ticket.ID)
			writeJSON(w, http.StatusOK, newTicketResponse(ticket))
		case "access-code":
			setRoute(r, "/tickets/{id}/access-code")
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			code, err := svc.AccessCodeForTicket(r.Context(), purchaserFrom(r), ticketID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, accessCodeResponse{
				CodeID:   code.ID,
				TicketID: code.TicketID,
				Status:   string(code.Status),
				Payload:  signer.Sign(code.ID),
			})
		case "validations":
			setRoute(r, "/tickets/{id}/validations")
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			handleValidationHistory(w, r, validator, ticketID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func purchaserFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(purchaserHeader))
}

func parsePage(r *http.Request) (domain.Page, bool) {
	var page domain.Page
	q := r.URL.Query()
	for key, dst := range map[string]*int{"page": &page.Number, "size": &page.Size} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return domain.Page{}, false
		}
		*dst = n
	}
	return page, true
}

func parsePurchasePath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "ticket-types" || parts[2] != "tickets" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func parseTicketPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "tickets" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		return parts[1], parts[2], true
	}
	return parts[1], "", true
}

type ticketResponse struct {
	ID           string    `json:"id"`
	TicketTypeID string    `json:"ticket_type_id"`
	PurchaserID  string    `json:"purchaser_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:           t.ID,
		TicketTypeID: t.TicketTypeID,
		PurchaserID:  t.PurchaserID,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

type ticketListResponse struct {
	Page    int              `json:"page"`
	Size    int              `json:"size"`
	Tickets []ticketResponse `json:"tickets"`
}

type accessCodeResponse struct {
	CodeID   string `json:"code_id"`
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
	Payload  string `json:"payload"`
}
