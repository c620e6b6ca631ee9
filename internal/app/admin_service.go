package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/clock"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

type AdminRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	ListEvents(ctx context.Context) ([]domain.Event, error)
	CreateTicketType(ctx context.Context, ticketType domain.TicketType) error
	ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error)
}

type AdminService struct {
	repo  AdminRepository
	clock clock.Clock
}

func NewAdminService(repo AdminRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateEventInput struct {
	Name     string
	StartsAt *time.Time
}

func (s *AdminService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	if in.Name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	startsAt := s.clock.Now()
	if in.StartsAt != nil {
		startsAt = in.StartsAt.UTC()
	}

	event := domain.Event{
		ID:       newID(),
		Name:     in.Name,
		StartsAt: startsAt,
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *AdminService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

type CreateTicketTypeInput struct {
	EventID     string
	Name        string
	Description string
	Price       decimal.Decimal
	Capacity    int
}

// CreateTicketType publishes a ticket type. Capacity is fixed from here on;
// there is no operation that changes it.
func (s *AdminService) CreateTicketType(ctx context.Context, in CreateTicketTypeInput) (domain.TicketType, error) {
	if in.EventID == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	if in.Name == "" {
		return domain.TicketType{}, domain.ErrTicketTypeNameRequired
	}
	if in.Capacity <= 0 {
		return domain.TicketType{}, domain.ErrInvalidCapacity
	}
	if in.Price.IsNegative() {
		return domain.TicketType{}, domain.ErrInvalidPrice
	}

	ticketType := domain.TicketType{
		ID:          newID(),
		EventID:     in.EventID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		Capacity:    in.Capacity,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repo.CreateTicketType(ctx, ticketType); err != nil {
		return domain.TicketType{}, err
	}
	return ticketType, nil
}

func (s *AdminService) ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListTicketTypesByEvent(ctx, eventID)
}
