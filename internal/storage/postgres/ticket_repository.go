package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

type TicketRepository struct {
	db
}

func NewTicketRepository(pool *pgxpool.Pool, opts ...Option) *TicketRepository {
	return &TicketRepository{db: newDB(pool, opts)}
}

const ticketColumns = `id, ticket_type_id, purchaser_id, status, created_at, updated_at`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(&t.ID, &t.TicketTypeID, &t.PurchaserID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (d db) getTicket(ctx context.Context, query string, args ...any) (domain.Ticket, error) {
	t, err := scanTicket(d.queryRow(ctx, query, args...))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (d db) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return d.getTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, ticketID)
}

// GetTicketForUpdate locks the ticket row until the transaction ends.
func (d db) GetTicketForUpdate(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return d.getTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, ticketID)
}

func (r *TicketRepository) GetTicketForPurchaser(ctx context.Context, ticketID, purchaserID string) (domain.Ticket, error) {
	return r.getTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 AND purchaser_id = $2`, ticketID, purchaserID)
}

func (r *TicketRepository) GetTicketForPurchaserForUpdate(ctx context.Context, ticketID, purchaserID string) (domain.Ticket, error) {
	return r.getTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 AND purchaser_id = $2 FOR UPDATE`, ticketID, purchaserID)
}

func (r *TicketRepository) CreateTicket(ctx context.Context, ticket domain.Ticket) error {
	const stmt = `
INSERT INTO tickets (id, ticket_type_id, purchaser_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.exec(ctx, stmt,
		ticket.ID,
		ticket.TicketTypeID,
		ticket.PurchaserID,
		ticket.Status,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidUUID(err) {
			return domain.ErrTicketTypeNotFound
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) UpdateTicketStatus(ctx context.Context, ticket domain.Ticket) error {
	const stmt = `UPDATE tickets SET status = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.exec(ctx, stmt, ticket.ID, ticket.Status, ticket.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrTicketNotFound
		}
		return fmt.Errorf("update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

// ListTicketsByPurchaser returns one page of tickets, newest first.
func (r *TicketRepository) ListTicketsByPurchaser(ctx context.Context, purchaserID string, page domain.Page) ([]domain.Ticket, error) {
	page = page.Normalize()
	const query = `
SELECT ` + ticketColumns + `
FROM tickets
WHERE purchaser_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`
	rows, err := r.query(ctx, query, purchaserID, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []domain.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate tickets: %w", rows.Err())
	}
	return tickets, nil
}

// Access codes.

const accessCodeColumns = `id, ticket_id, purchaser_id, status, created_at`

func scanAccessCode(row pgx.Row) (domain.AccessCode, error) {
	var c domain.AccessCode
	err := row.Scan(&c.ID, &c.TicketID, &c.PurchaserID, &c.Status, &c.CreatedAt)
	return c, err
}

func (r *TicketRepository) CreateAccessCode(ctx context.Context, code domain.AccessCode) error {
	const stmt = `
INSERT INTO access_codes (id, ticket_id, purchaser_id, status, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.exec(ctx, stmt, code.ID, code.TicketID, code.PurchaserID, code.Status, code.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrTicketNotFound
		}
		if isUniqueViolation(err) {
			return domain.ErrConcurrentUpdate
		}
		return fmt.Errorf("create access code: %w", err)
	}
	return nil
}

// RevokeAccessCodes revokes every ACTIVE code of the ticket and returns
// their ids.
func (r *TicketRepository) RevokeAccessCodes(ctx context.Context, ticketID string) ([]string, error) {
	const stmt = `
UPDATE access_codes SET status = 'REVOKED'
WHERE ticket_id = $1 AND status = 'ACTIVE'
RETURNING id`
	rows, err := r.query(ctx, stmt, ticketID)
	if err != nil {
		return nil, fmt.Errorf("revoke access codes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("revoke access codes: %w", err)
	}
	return ids, nil
}

func (r *TicketRepository) GetActiveAccessCode(ctx context.Context, ticketID string) (domain.AccessCode, error) {
	const query = `SELECT ` + accessCodeColumns + ` FROM access_codes WHERE ticket_id = $1 AND status = 'ACTIVE'`
	code, err := scanAccessCode(r.queryRow(ctx, query, ticketID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.AccessCode{}, domain.ErrAccessCodeNotFound
		}
		return domain.AccessCode{}, fmt.Errorf("get active access code: %w", err)
	}
	return code, nil
}

// GetAccessCode reads a code in any status. It is shared by every
// repository so the validation engine can confirm a code inside its tx.
func (d db) GetAccessCode(ctx context.Context, codeID string) (domain.AccessCode, error) {
	const query = `SELECT ` + accessCodeColumns + ` FROM access_codes WHERE id = $1`
	code, err := scanAccessCode(d.queryRow(ctx, query, codeID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.AccessCode{}, domain.ErrAccessCodeNotFound
		}
		return domain.AccessCode{}, fmt.Errorf("get access code: %w", err)
	}
	return code, nil
}
