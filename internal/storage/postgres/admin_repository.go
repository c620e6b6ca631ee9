package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

type AdminRepository struct {
	db
}

func NewAdminRepository(pool *pgxpool.Pool, opts ...Option) *AdminRepository {
	return &AdminRepository{db: newDB(pool, opts)}
}

func (r *AdminRepository) CreateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
INSERT INTO events (id, name, starts_at)
VALUES ($1, $2, $3)`
	_, err := r.exec(ctx, stmt, event.ID, event.Name, event.StartsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *AdminRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `
SELECT id, name, starts_at
FROM events
ORDER BY starts_at ASC, id ASC`
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.ID, &event.Name, &event.StartsAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate events: %w", rows.Err())
	}
	return events, nil
}

func (r *AdminRepository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
INSERT INTO ticket_types (id, event_id, name, description, price, capacity, sold, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, 0, $7)`
	_, err := r.exec(ctx, stmt, tt.ID, tt.EventID, tt.Name, tt.Description, tt.Price.StringFixed(2), tt.Capacity, tt.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.ErrTicketTypeExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create ticket type: %w", err)
	}
	return nil
}

func (r *AdminRepository) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`
	var exists bool
	if err := r.queryRow(ctx, existsQuery, eventID).Scan(&exists); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("check event: %w", err)
	}
	if !exists {
		return nil, domain.ErrEventNotFound
	}

	const query = `
SELECT ` + ticketTypeColumns + `
FROM ticket_types
WHERE event_id = $1
ORDER BY created_at ASC, id ASC`
	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	ticketTypes := []domain.TicketType{}
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		ticketTypes = append(ticketTypes, tt)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate ticket types: %w", rows.Err())
	}
	return ticketTypes, nil
}
