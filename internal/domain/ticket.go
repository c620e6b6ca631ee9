package domain

import "time"

type TicketStatus string

const (
	TicketStatusPurchased TicketStatus = "PURCHASED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
)

// Ticket is a purchased admission unit. Status moves PURCHASED -> CANCELLED
// and never back.
type Ticket struct {
	ID           string
	TicketTypeID string
	PurchaserID  string
	Status       TicketStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Page selects a window of a purchaser's tickets, newest first.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return p.Number * p.Size
}
