package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketType is a purchasable class of admission with a fixed capacity.
// Sold only ever grows and never exceeds Capacity.
type TicketType struct {
	ID          string
	EventID     string
	Name        string
	Description string
	Price       decimal.Decimal
	Capacity    int
	Sold        int
	CreatedAt   time.Time
}

// Remaining returns the number of units still sellable.
func (t TicketType) Remaining() int {
	if t.Sold >= t.Capacity {
		return 0
	}
	return t.Capacity - t.Sold
}

// SoldOut reports whether one more reservation would exceed capacity.
func (t TicketType) SoldOut() bool {
	return t.Sold >= t.Capacity
}
