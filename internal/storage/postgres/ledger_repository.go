package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// LedgerRepository owns ticket_types.sold. It is the only writer of that
// column.
type LedgerRepository struct {
	db
}

func NewLedgerRepository(pool *pgxpool.Pool, opts ...Option) *LedgerRepository {
	return &LedgerRepository{db: newDB(pool, opts)}
}

const ticketTypeColumns = `id, event_id, name, description, price::text, capacity, sold, created_at`

func scanTicketType(row pgx.Row) (domain.TicketType, error) {
	var (
		tt    domain.TicketType
		price string
	)
	if err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Description, &price, &tt.Capacity, &tt.Sold, &tt.CreatedAt); err != nil {
		return domain.TicketType{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.TicketType{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	tt.Price = p
	return tt, nil
}

func (r *LedgerRepository) GetTicketType(ctx context.Context, ticketTypeID string) (domain.TicketType, error) {
	return r.getTicketType(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1`, ticketTypeID)
}

// GetTicketTypeForUpdate locks the ticket type row until the transaction
// ends. Reservations for other ticket types are unaffected.
func (r *LedgerRepository) GetTicketTypeForUpdate(ctx context.Context, ticketTypeID string) (domain.TicketType, error) {
	return r.getTicketType(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1 FOR UPDATE`, ticketTypeID)
}

func (r *LedgerRepository) getTicketType(ctx context.Context, query, ticketTypeID string) (domain.TicketType, error) {
	tt, err := scanTicketType(r.queryRow(ctx, query, ticketTypeID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.TicketType{}, domain.ErrTicketTypeNotFound
		}
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

// IncrementSold adds one to sold. The sold <= capacity check constraint
// backs up the caller's capacity check.
func (r *LedgerRepository) IncrementSold(ctx context.Context, ticketTypeID string) error {
	const stmt = `UPDATE ticket_types SET sold = sold + 1 WHERE id = $1`
	tag, err := r.exec(ctx, stmt, ticketTypeID)
	if err != nil {
		if isConstraint(err, "ticket_types_sold_within_capacity") {
			return domain.ErrTicketsSoldOut
		}
		if isInvalidUUID(err) {
			return domain.ErrTicketTypeNotFound
		}
		return fmt.Errorf("increment sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}
