package app

import (
	"context"
	"time"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/clock"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// LedgerRepository is the storage the inventory ledger needs. Implementations
// must make GetTicketTypeForUpdate hold an exclusive lock on that ticket type
// until the surrounding WithTx returns.
type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicketTypeForUpdate(ctx context.Context, ticketTypeID string) (domain.TicketType, error)
	IncrementSold(ctx context.Context, ticketTypeID string) error
}

// TicketIssuer materializes a ticket for a reservation inside the ledger's
// unit of work.
type TicketIssuer interface {
	Issue(ctx context.Context, ticketType domain.TicketType, purchaserID string) (domain.Ticket, error)
}

// LedgerService owns capacity and sold counts. It is the only writer of
// "a ticket slot was consumed".
type LedgerService struct {
	repo    LedgerRepository
	issuer  TicketIssuer
	clock   clock.Clock
	metrics *Metrics
}

type LedgerServiceOption func(*LedgerService)

func WithLedgerMetrics(m *Metrics) LedgerServiceOption {
	return func(s *LedgerService) { s.metrics = m }
}

func NewLedgerService(repo LedgerRepository, issuer TicketIssuer, clk clock.Clock, opts ...LedgerServiceOption) *LedgerService {
	svc := &LedgerService{
		repo:   repo,
		issuer: issuer,
		clock:  clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// PurchaseTicket sells one ticket of ticketTypeID to purchaserID.
func (s *LedgerService) PurchaseTicket(ctx context.Context, purchaserID, ticketTypeID string) (domain.Ticket, error) {
	ticket, err := s.Reserve(ctx, ticketTypeID, purchaserID)
	s.metrics.reservation(err)
	return ticket, err
}

// Reserve claims one unit of capacity and issues the ticket in the same
// transaction: either sold is incremented and the ticket exists, or neither.
// Concurrent reservations for one ticket type are serialized on its row lock;
// other ticket types do not contend.
func (s *LedgerService) Reserve(ctx context.Context, ticketTypeID, purchaserID string) (domain.Ticket, error) {
	if ticketTypeID == "" {
		return domain.Ticket{}, domain.ErrTicketTypeNotFound
	}
	if purchaserID == "" {
		return domain.Ticket{}, domain.ErrPurchaserRequired
	}

	var ticket domain.Ticket
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		start := time.Now()
		ticketType, err := s.repo.GetTicketTypeForUpdate(txCtx, ticketTypeID)
		s.metrics.waited("reserve", time.Since(start))
		if err != nil {
			return err
		}

		if ticketType.SoldOut() {
			return domain.ErrTicketsSoldOut
		}
		if err := s.repo.IncrementSold(txCtx, ticketTypeID); err != nil {
			return err
		}
		ticketType.Sold++

		ticket, err = s.issuer.Issue(txCtx, ticketType, purchaserID)
		return err
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return ticket, nil
}
