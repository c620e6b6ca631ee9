package app

import (
	"context"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/clock"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/outbox"
)

type TicketRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateTicket(ctx context.Context, ticket domain.Ticket) error
	CreateAccessCode(ctx context.Context, code domain.AccessCode) error
	GetTicketForPurchaser(ctx context.Context, ticketID, purchaserID string) (domain.Ticket, error)
	GetTicketForPurchaserForUpdate(ctx context.Context, ticketID, purchaserID string) (domain.Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticket domain.Ticket) error
	RevokeAccessCodes(ctx context.Context, ticketID string) ([]string, error)
	GetActiveAccessCode(ctx context.Context, ticketID string) (domain.AccessCode, error)
	ListTicketsByPurchaser(ctx context.Context, purchaserID string, page domain.Page) ([]domain.Ticket, error)
	AppendOutbox(ctx context.Context, rec outbox.Record) error
}

// AccessCodeCache is told about codes that stopped being ACTIVE.
type AccessCodeCache interface {
	Invalidate(ctx context.Context, codeIDs ...string)
}

// IssuanceService owns the ticket lifecycle and the access code minted with
// each ticket.
type IssuanceService struct {
	repo    TicketRepository
	clock   clock.Clock
	cache   AccessCodeCache
	metrics *Metrics
}

type IssuanceServiceOption func(*IssuanceService)

func WithAccessCodeCache(c AccessCodeCache) IssuanceServiceOption {
	return func(s *IssuanceService) { s.cache = c }
}

func WithIssuanceMetrics(m *Metrics) IssuanceServiceOption {
	return func(s *IssuanceService) { s.metrics = m }
}

func NewIssuanceService(repo TicketRepository, clk clock.Clock, opts ...IssuanceServiceOption) *IssuanceService {
	svc := &IssuanceService{
		repo:  repo,
		clock: clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Issue creates a PURCHASED ticket and its ACTIVE access code. It must run
// inside the ledger transaction that consumed the slot.
func (s *IssuanceService) Issue(ctx context.Context, ticketType domain.TicketType, purchaserID string) (domain.Ticket, error) {
	now := s.clock.Now()
	ticket := domain.Ticket{
		ID:           newID(),
		TicketTypeID: ticketType.ID,
		PurchaserID:  purchaserID,
		Status:       domain.TicketStatusPurchased,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateTicket(txCtx, ticket); err != nil {
			return err
		}
		code := domain.AccessCode{
			ID:          newID(),
			TicketID:    ticket.ID,
			PurchaserID: purchaserID,
			Status:      domain.AccessCodeStatusActive,
			CreatedAt:   now,
		}
		if err := s.repo.CreateAccessCode(txCtx, code); err != nil {
			return err
		}

		rec, err := newTicketEvent(ticket.ID, outbox.EventTicketPurchased, ticketPurchasedPayload{
			TicketID:     ticket.ID,
			TicketTypeID: ticketType.ID,
			EventID:      ticketType.EventID,
			PurchaserID:  purchaserID,
			Price:        ticketType.Price.StringFixed(2),
			Sold:         ticketType.Sold,
			Capacity:     ticketType.Capacity,
			PurchasedAt:  now,
		}, now)
		if err != nil {
			return err
		}
		return s.repo.AppendOutbox(txCtx, rec)
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return ticket, nil
}

// CancelTicket cancels a ticket owned by purchaserID. A ticket owned by
// someone else is reported as not found. Cancelling twice returns the same
// cancelled ticket without error. Capacity is not returned to the ledger.
func (s *IssuanceService) CancelTicket(ctx context.Context, purchaserID, ticketID string) (domain.Ticket, error) {
	ticket, revoked, err := s.cancel(ctx, purchaserID, ticketID)
	s.metrics.cancellation(err)
	if err != nil {
		return domain.Ticket{}, err
	}
	if s.cache != nil && len(revoked) > 0 {
		s.cache.Invalidate(ctx, revoked...)
	}
	return ticket, nil
}

func (s *IssuanceService) cancel(ctx context.Context, purchaserID, ticketID string) (domain.Ticket, []string, error) {
	if purchaserID == "" {
		return domain.Ticket{}, nil, domain.ErrPurchaserRequired
	}
	if ticketID == "" {
		return domain.Ticket{}, nil, domain.ErrTicketNotFound
	}

	var (
		result  domain.Ticket
		revoked []string
	)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.repo.GetTicketForPurchaserForUpdate(txCtx, ticketID, purchaserID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusCancelled {
			result = ticket
			return nil
		}

		now := s.clock.Now()
		ticket.Status = domain.TicketStatusCancelled
		ticket.UpdatedAt = now
		if err := s.repo.UpdateTicketStatus(txCtx, ticket); err != nil {
			return err
		}
		revoked, err = s.repo.RevokeAccessCodes(txCtx, ticket.ID)
		if err != nil {
			return err
		}

		rec, err := newTicketEvent(ticket.ID, outbox.EventTicketCancelled, ticketCancelledPayload{
			TicketID:       ticket.ID,
			PurchaserID:    purchaserID,
			RevokedCodeIDs: revoked,
			CancelledAt:    now,
		}, now)
		if err != nil {
			return err
		}
		if err := s.repo.AppendOutbox(txCtx, rec); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		return domain.Ticket{}, nil, err
	}
	return result, revoked, nil
}

func (s *IssuanceService) GetTicket(ctx context.Context, purchaserID, ticketID string) (domain.Ticket, error) {
	if purchaserID == "" {
		return domain.Ticket{}, domain.ErrPurchaserRequired
	}
	if ticketID == "" {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return s.repo.GetTicketForPurchaser(ctx, ticketID, purchaserID)
}

// ListTicketsForUser returns a page of the purchaser's tickets, newest first.
func (s *IssuanceService) ListTicketsForUser(ctx context.Context, purchaserID string, page domain.Page) ([]domain.Ticket, error) {
	if purchaserID == "" {
		return nil, domain.ErrPurchaserRequired
	}
	return s.repo.ListTicketsByPurchaser(ctx, purchaserID, page.Normalize())
}

// AccessCodeForTicket returns the ACTIVE access code of a ticket the
// purchaser owns.
func (s *IssuanceService) AccessCodeForTicket(ctx context.Context, purchaserID, ticketID string) (domain.AccessCode, error) {
	if _, err := s.GetTicket(ctx, purchaserID, ticketID); err != nil {
		return domain.AccessCode{}, err
	}
	return s.repo.GetActiveAccessCode(ctx, ticketID)
}
