package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/app"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// AdminEventService is the minimal interface needed for admin event endpoints.
type AdminEventService interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
}

// AdminTicketTypeService is the minimal interface needed for admin ticket
// type endpoints.
type AdminTicketTypeService interface {
	CreateTicketType(ctx context.Context, in app.CreateTicketTypeInput) (domain.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error)
}

// HandleAdminEvents returns an HTTP handler for admin event creation/listing.
func HandleAdminEvents(svc AdminEventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setRoute(r, "/admin/events")
		switch r.Method {
		case http.MethodGet:
			events, err := svc.ListEvents(r.Context())
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			resp := make([]eventResponse, 0, len(events))
			for _, event := range events {
				resp = append(resp, newEventResponse(event))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createEventRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			var startsAt *time.Time
			if req.StartsAt != "" {
				parsed, err := time.Parse(time.RFC3339, req.StartsAt)
				if err != nil {
					writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
					return
				}
				startsAt = &parsed
			}

			event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
				Name:     strings.TrimSpace(req.Name),
				StartsAt: startsAt,
			})
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			loggerFrom(r.Context()).Info("event_created", "event_id", event.ID)
			writeJSON(w, http.StatusCreated, newEventResponse(event))
		default:
			methodNotAllowed(w)
		}
	}
}

// HandleAdminTicketTypes serves /admin/events/{id}/ticket-types.
func HandleAdminTicketTypes(svc AdminTicketTypeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, ok := parseAdminTicketTypesPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		setRoute(r, "/admin/events/{id}/ticket-types")

		switch r.Method {
		case http.MethodGet:
			types, err := svc.ListTicketTypes(r.Context(), eventID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			resp := make([]ticketTypeResponse, 0, len(types))
			for _, tt := range types {
				resp = append(resp, newTicketTypeResponse(tt))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createTicketTypeRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			price, err := decimal.NewFromString(req.Price)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidPrice, domain.ErrInvalidPrice.Error())
				return
			}

			tt, err := svc.CreateTicketType(r.Context(), app.CreateTicketTypeInput{
				EventID:     eventID,
				Name:        strings.TrimSpace(req.Name),
				Description: req.Description,
				Price:       price,
				Capacity:    req.Capacity,
			})
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			loggerFrom(r.Context()).Info("ticket_type_created",
				"ticket_type_id", tt.ID,
				"event_id", tt.EventID,
				"capacity", tt.Capacity,
			)
			writeJSON(w, http.StatusCreated, newTicketTypeResponse(tt))
		default:
			methodNotAllowed(w)
		}
	}
}

type createEventRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at,omitempty"`
}

type eventResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

func newEventResponse(e domain.Event) eventResponse {
	return eventResponse{ID: e.ID, Name: e.Name, StartsAt: e.StartsAt}
}

// Price travels as a decimal string so no float rounding happens in JSON.
type createTicketTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Capacity    int    `json:"capacity"`
}

type ticketTypeResponse struct {
	ID          string `json:"id"`
	EventID     string `json:"event_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Capacity    int    `json:"capacity"`
	Sold        int    `json:"sold"`
	Remaining   int    `json:"remaining"`
}

func newTicketTypeResponse(tt domain.TicketType) ticketTypeResponse {
	return ticketTypeResponse{
		ID:          tt.ID,
		EventID:     tt.EventID,
		Name:        tt.Name,
		Description: tt.Description,
		Price:       tt.Price.StringFixed(2),
		Capacity:    tt.Capacity,
		Sold:        tt.Sold,
		Remaining:   tt.Remaining(),
	}
}

func parseAdminTicketTypesPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != "admin" || parts[1] != "events" || parts[3] != "ticket-types" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
