package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// ValidationRepository appends to ticket_validations. Rows are never
// updated or deleted; a trigger rejects both.
type ValidationRepository struct {
	db
}

func NewValidationRepository(pool *pgxpool.Pool, opts ...Option) *ValidationRepository {
	return &ValidationRepository{db: newDB(pool, opts)}
}

func (r *ValidationRepository) GetValidationState(ctx context.Context, ticketID string) (domain.ValidationState, error) {
	const query = `
SELECT
	COUNT(*),
	COALESCE(BOOL_OR(result = 'VALID'), FALSE),
	COALESCE((SELECT hash FROM ticket_validations WHERE ticket_id = $1 ORDER BY seq DESC LIMIT 1), '')
FROM ticket_validations
WHERE ticket_id = $1`
	var state domain.ValidationState
	if err := r.queryRow(ctx, query, ticketID).Scan(&state.Attempts, &state.Validated, &state.LastHash); err != nil {
		if isInvalidUUID(err) {
			return domain.ValidationState{}, domain.ErrTicketNotFound
		}
		return domain.ValidationState{}, fmt.Errorf("get validation state: %w", err)
	}
	return state, nil
}

// AppendValidation inserts v. A second VALID row for the same ticket is
// rejected by the partial unique index and reported as
// domain.ErrConcurrentUpdate.
func (r *ValidationRepository) AppendValidation(ctx context.Context, v domain.TicketValidation) error {
	const stmt = `
INSERT INTO ticket_validations (id, ticket_id, method, result, validated_at, prev_hash, hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.exec(ctx, stmt, v.ID, v.TicketID, v.Method, v.Result, v.ValidatedAt, v.PrevHash, v.Hash)
	if err != nil {
		if isConstraint(err, "ticket_validations_one_valid_per_ticket") {
			return domain.ErrConcurrentUpdate
		}
		if isForeignKeyViolation(err) || isInvalidUUID(err) {
			return domain.ErrTicketNotFound
		}
		return fmt.Errorf("append validation: %w", err)
	}
	return nil
}

// ListValidations returns the ticket's records in append order.
func (r *ValidationRepository) ListValidations(ctx context.Context, ticketID string) ([]domain.TicketValidation, error) {
	const query = `
SELECT id, ticket_id, method, result, validated_at, prev_hash, hash
FROM ticket_validations
WHERE ticket_id = $1
ORDER BY seq ASC`
	rows, err := r.query(ctx, query, ticketID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("list validations: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TicketValidation, error) {
		var v domain.TicketValidation
		err := row.Scan(&v.ID, &v.TicketID, &v.Method, &v.Result, &v.ValidatedAt, &v.PrevHash, &v.Hash)
		v.ValidatedAt = v.ValidatedAt.UTC()
		return v, err
	})
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("list validations: %w", err)
	}
	return records, nil
}
