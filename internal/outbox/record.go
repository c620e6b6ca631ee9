package outbox

import (
	"encoding/json"
	"time"
)

const (
	EventTicketPurchased = "ticket.purchased"
	EventTicketCancelled = "ticket.cancelled"
	EventTicketValidated = "ticket.validated"
)

// Record is one row of the outbox table. It is written in the same
// transaction as the change it describes.
type Record struct {
	ID          int64
	EventID     string
	Aggregate   string
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	Attempts    int
}

// Envelope is the message published for a Record.
type Envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Aggregate   string          `json:"aggregate"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
}

func (r Record) Envelope() Envelope {
	return Envelope{
		EventID:     r.EventID,
		EventType:   r.EventType,
		OccurredAt:  r.CreatedAt,
		Aggregate:   r.Aggregate,
		AggregateID: r.AggregateID,
		Payload:     r.Payload,
	}
}
