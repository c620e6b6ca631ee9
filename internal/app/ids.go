package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/outbox"
)

func newID() string {
	return uuid.NewString()
}

const aggregateTicket = "ticket"

// newTicketEvent builds the outbox row describing a change to a ticket. It
// is appended inside the same transaction as the change.
func newTicketEvent(ticketID, eventType string, payload any, at time.Time) (outbox.Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return outbox.Record{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return outbox.Record{
		EventID:     newID(),
		Aggregate:   aggregateTicket,
		AggregateID: ticketID,
		EventType:   eventType,
		Payload:     raw,
		CreatedAt:   at,
	}, nil
}

type ticketPurchasedPayload struct {
	TicketID     string    `json:"ticket_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	EventID      string    `json:"event_id"`
	PurchaserID  string    `json:"purchaser_id"`
	Price        string    `json:"price"`
	Sold         int       `json:"sold"`
	Capacity     int       `json:"capacity"`
	PurchasedAt  time.Time `json:"purchased_at"`
}

type ticketCancelledPayload struct {
	TicketID       string    `json:"ticket_id"`
	PurchaserID    string    `json:"purchaser_id"`
	RevokedCodeIDs []string  `json:"revoked_code_ids"`
	CancelledAt    time.Time `json:"cancelled_at"`
}

type ticketValidatedPayload struct {
	ValidationID string    `json:"validation_id"`
	TicketID     string    `json:"ticket_id"`
	Method       string    `json:"method"`
	Result       string    `json:"result"`
	Hash         string    `json:"hash"`
	ValidatedAt  time.Time `json:"validated_at"`
}
