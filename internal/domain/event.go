package domain

import "time"

// Event is the organizer-owned parent of ticket types.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time
}
