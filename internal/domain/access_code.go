package domain

import "time"

type AccessCodeStatus string

const (
	AccessCodeStatusActive  AccessCodeStatus = "ACTIVE"
	AccessCodeStatusRevoked AccessCodeStatus = "REVOKED"
)

// AccessCode is a scannable one-time code bound to a ticket and its purchaser.
type AccessCode struct {
	ID          string
	TicketID    string
	PurchaserID string
	Status      AccessCodeStatus
	CreatedAt   time.Time
}
