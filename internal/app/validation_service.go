package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/audit"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/clock"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/outbox"
)

// ValidationRepository is the storage the validation engine needs.
// GetTicketForUpdate must hold an exclusive lock on the ticket until the
// surrounding WithTx returns; that lock is the per-ticket serialization point
// for the VALID/INVALID decision, and cancellation revokes access codes
// under the same lock.
type ValidationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	GetTicketForUpdate(ctx context.Context, ticketID string) (domain.Ticket, error)
	GetAccessCode(ctx context.Context, codeID string) (domain.AccessCode, error)
	GetValidationState(ctx context.Context, ticketID string) (domain.ValidationState, error)
	AppendValidation(ctx context.Context, v domain.TicketValidation) error
	ListValidations(ctx context.Context, ticketID string) ([]domain.TicketValidation, error)
	AppendOutbox(ctx context.Context, rec outbox.Record) error
}

// AccessCodeResolver resolves a presented code to the ACTIVE access code it
// names. Anything else, including a revoked code, is ErrAccessCodeNotFound.
// A resolver may answer from a cache; the status is confirmed against the
// store under the ticket lock before anything is written.
type AccessCodeResolver interface {
	ResolveActive(ctx context.Context, code string) (domain.AccessCode, error)
}

// ValidationService decides admission at the gate. The first attempt for a
// ticket, by any method, is VALID; every later attempt is INVALID. Every
// attempt is recorded.
type ValidationService struct {
	repo     ValidationRepository
	resolver AccessCodeResolver
	chain    *audit.Chain
	clock    clock.Clock
	metrics  *Metrics
}

type ValidationServiceOption func(*ValidationService)

func WithValidationMetrics(m *Metrics) ValidationServiceOption {
	return func(s *ValidationService) { s.metrics = m }
}

func NewValidationService(repo ValidationRepository, resolver AccessCodeResolver, chain *audit.Chain, clk clock.Clock, opts ...ValidationServiceOption) *ValidationService {
	svc := &ValidationService{
		repo:     repo,
		resolver: resolver,
		chain:    chain,
		clock:    clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ValidateTicketManually validates a ticket identified by staff.
func (s *ValidationService) ValidateTicketManually(ctx context.Context, ticketID string) (domain.TicketValidation, error) {
	return s.Validate(ctx, domain.ManualPresentation(ticketID))
}

// ValidateTicketByAccessCode validates the ticket bound to a scanned code.
func (s *ValidationService) ValidateTicketByAccessCode(ctx context.Context, code string) (domain.TicketValidation, error) {
	return s.Validate(ctx, domain.AccessCodePresentation(code))
}

// Validate resolves the presentation to a ticket and records the attempt.
// A repeat attempt is not an error; it returns a record with result INVALID.
// An unresolvable presentation writes nothing.
func (s *ValidationService) Validate(ctx context.Context, p domain.Presentation) (domain.TicketValidation, error) {
	v, err := s.validate(ctx, p)
	s.metrics.validation(p.Method, v, err)
	return v, err
}

func (s *ValidationService) validate(ctx context.Context, p domain.Presentation) (domain.TicketValidation, error) {
	ticketID, codeID, err := s.resolve(ctx, p)
	if err != nil {
		return domain.TicketValidation{}, err
	}

	var record domain.TicketValidation
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		start := time.Now()
		_, err := s.repo.GetTicketForUpdate(txCtx, ticketID)
		s.metrics.waited("validate", time.Since(start))
		if err != nil {
			return err
		}
		if codeID != "" {
			if err := s.confirmActive(txCtx, codeID, ticketID); err != nil {
				return err
			}
		}

		state, err := s.repo.GetValidationState(txCtx, ticketID)
		if err != nil {
			return err
		}

		result := domain.ValidationResultValid
		if state.Validated {
			result = domain.ValidationResultInvalid
		}
		record = s.chain.Seal(state.LastHash, domain.TicketValidation{
			ID:          newID(),
			TicketID:    ticketID,
			Method:      p.Method,
			Result:      result,
			ValidatedAt: s.clock.Now(),
		})
		if err := s.repo.AppendValidation(txCtx, record); err != nil {
			return err
		}

		rec, err := newTicketEvent(ticketID, outbox.EventTicketValidated, ticketValidatedPayload{
			ValidationID: record.ID,
			TicketID:     ticketID,
			Method:       string(record.Method),
			Result:       string(record.Result),
			Hash:         record.Hash,
			ValidatedAt:  record.ValidatedAt,
		}, record.ValidatedAt)
		if err != nil {
			return err
		}
		return s.repo.AppendOutbox(txCtx, rec)
	})
	if err != nil {
		return domain.TicketValidation{}, err
	}
	return record, nil
}

// resolve returns the ticket a presentation names and, for a scan, the id of
// the access code that named it.
func (s *ValidationService) resolve(ctx context.Context, p domain.Presentation) (ticketID, codeID string, err error) {
	switch p.Method {
	case domain.ValidationMethodManual:
		if p.TicketID == "" {
			return "", "", domain.ErrTicketNotFound
		}
		return p.TicketID, "", nil
	case domain.ValidationMethodQRScan:
		if p.CodeID == "" || s.resolver == nil {
			return "", "", domain.ErrAccessCodeNotFound
		}
		code, err := s.resolver.ResolveActive(ctx, p.CodeID)
		if err != nil {
			return "", "", err
		}
		if code.Status != domain.AccessCodeStatusActive {
			return "", "", domain.ErrAccessCodeNotFound
		}
		return code.TicketID, code.ID, nil
	default:
		return "", "", domain.ErrInvalidMethod
	}
}

// confirmActive rereads the code from the store. It must run while the
// ticket lock is held: a cancel that committed after resolution has revoked
// the code by then.
func (s *ValidationService) confirmActive(ctx context.Context, codeID, ticketID string) error {
	code, err := s.repo.GetAccessCode(ctx, codeID)
	if err != nil {
		return err
	}
	if code.Status != domain.AccessCodeStatusActive || code.TicketID != ticketID {
		return domain.ErrAccessCodeNotFound
	}
	return nil
}

// ListValidations returns the ticket's validation history, oldest first.
func (s *ValidationService) ListValidations(ctx context.Context, ticketID string) ([]domain.TicketValidation, error) {
	if ticketID == "" {
		return nil, domain.ErrTicketNotFound
	}
	if _, err := s.repo.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.repo.ListValidations(ctx, ticketID)
}

// VerifyTrail recomputes the hash chain of the ticket's validation history.
func (s *ValidationService) VerifyTrail(ctx context.Context, ticketID string) error {
	records, err := s.ListValidations(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.chain.Verify(records); err != nil {
		return fmt.Errorf("ticket %s: %w", ticketID, err)
	}
	return nil
}
