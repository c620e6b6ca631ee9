// Package memory is an in-process Store. Ticket types and tickets are
// guarded by per-entity keyed locks held for the whole unit of work; writes
// are staged and applied together at commit, so a failed unit leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/outbox"
)

const DefaultLockTimeout = 3 * time.Second

type Store struct {
	locker      *keyedLocker
	lockTimeout time.Duration

	mu          sync.RWMutex
	events      map[string]domain.Event
	ticketTypes map[string]domain.TicketType
	tickets     map[string]domain.Ticket
	codes       map[string]domain.AccessCode
	validations map[string][]domain.TicketValidation
	outbox      []outbox.Record
	outboxSeq   int64
}

type Option func(*Store)

// WithLockTimeout bounds how long a unit of work waits for an entity lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		locker:      newKeyedLocker(),
		lockTimeout: DefaultLockTimeout,
		events:      make(map[string]domain.Event),
		ticketTypes: make(map[string]domain.TicketType),
		tickets:     make(map[string]domain.Ticket),
		codes:       make(map[string]domain.AccessCode),
		validations: make(map[string][]domain.TicketValidation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type tx struct {
	held   []string
	staged []func()
}

func txFromContext(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// WithTx runs fn as one unit of work. Nested calls join the outer unit.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	t := &tx{}
	defer func() {
		for i := len(t.held) - 1; i >= 0; i-- {
			s.locker.Release(t.held[i])
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}

	s.mu.Lock()
	for _, apply := range t.staged {
		apply()
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) lock(ctx context.Context, key string) error {
	t := txFromContext(ctx)
	if t == nil {
		panic("memory: lock taken outside WithTx")
	}
	for _, held := range t.held {
		if held == key {
			return nil
		}
	}
	if err := s.locker.Acquire(ctx, key, s.lockTimeout); err != nil {
		return err
	}
	t.held = append(t.held, key)
	return nil
}

// stage defers a write to commit, or applies it at once outside a unit of
// work.
func (s *Store) stage(ctx context.Context, apply func()) {
	if t := txFromContext(ctx); t != nil {
		t.staged = append(t.staged, apply)
		return
	}
	s.mu.Lock()
	apply()
	s.mu.Unlock()
}

func ticketTypeKey(id string) string { return "ticket_type:" + id }
func ticketKey(id string) string     { return "ticket:" + id }

// Events and ticket types.

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].StartsAt.Before(events[j].StartsAt)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (s *Store) CreateTicketType(ctx context.Context, ticketType domain.TicketType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ticketType.EventID]; !ok {
		return domain.ErrEventNotFound
	}
	for _, existing := range s.ticketTypes {
		if existing.EventID == ticketType.EventID && existing.Name == ticketType.Name {
			return domain.ErrTicketTypeExists
		}
	}
	s.ticketTypes[ticketType.ID] = ticketType
	return nil
}

func (s *Store) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, domain.ErrEventNotFound
	}
	var out []domain.TicketType
	for _, tt := range s.ticketTypes {
		if tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetTicketType(ctx context.Context, ticketTypeID string) (domain.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	return tt, nil
}

// Ledger.

func (s *Store) GetTicketTypeForUpdate(ctx context.Context, ticketTypeID string) (domain.TicketType, error) {
	if _, err := s.GetTicketType(ctx, ticketTypeID); err != nil {
		return domain.TicketType{}, err
	}
	if err := s.lock(ctx, ticketTypeKey(ticketTypeID)); err != nil {
		return domain.TicketType{}, err
	}
	// Re-read under the lock: the previous holder committed before releasing.
	return s.GetTicketType(ctx, ticketTypeID)
}

func (s *Store) IncrementSold(ctx context.Context, ticketTypeID string) error {
	s.stage(ctx, func() {
		tt := s.ticketTypes[ticketTypeID]
		tt.Sold++
		s.ticketTypes[ticketTypeID] = tt
	})
	return nil
}

// Tickets and access codes.

func (s *Store) CreateTicket(ctx context.Context, ticket domain.Ticket) error {
	s.stage(ctx, func() { s.tickets[ticket.ID] = ticket })
	return nil
}

func (s *Store) CreateAccessCode(ctx context.Context, code domain.AccessCode) error {
	s.stage(ctx, func() { s.codes[code.ID] = code })
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) GetTicketForUpdate(ctx context.Context, ticketID string) (domain.Ticket, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return domain.Ticket{}, err
	}
	if err := s.lock(ctx, ticketKey(ticketID)); err != nil {
		return domain.Ticket{}, err
	}
	return s.GetTicket(ctx, ticketID)
}

func (s *Store) GetTicketForPurchaser(ctx context.Context, ticketID, purchaserID string) (domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if ticket.PurchaserID != purchaserID {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) GetTicketForPurchaserForUpdate(ctx context.Context, ticketID, purchaserID string) (domain.Ticket, error) {
	if _, err := s.GetTicketForPurchaser(ctx, ticketID, purchaserID); err != nil {
		return domain.Ticket{}, err
	}
	if err := s.lock(ctx, ticketKey(ticketID)); err != nil {
		return domain.Ticket{}, err
	}
	return s.GetTicketForPurchaser(ctx, ticketID, purchaserID)
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticket domain.Ticket) error {
	s.stage(ctx, func() {
		stored := s.tickets[ticket.ID]
		stored.Status = ticket.Status
		stored.UpdatedAt = ticket.UpdatedAt
		s.tickets[ticket.ID] = stored
	})
	return nil
}

// RevokeAccessCodes revokes the ticket's ACTIVE codes and returns their ids.
func (s *Store) RevokeAccessCodes(ctx context.Context, ticketID string) ([]string, error) {
	s.mu.RLock()
	var ids []string
	for id, code := range s.codes {
		if code.TicketID == ticketID && code.Status == domain.AccessCodeStatusActive {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	s.stage(ctx, func() {
		for _, id := range ids {
			code := s.codes[id]
			code.Status = domain.AccessCodeStatusRevoked
			s.codes[id] = code
		}
	})
	return ids, nil
}

func (s *Store) GetActiveAccessCode(ctx context.Context, ticketID string) (domain.AccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, code := range s.codes {
		if code.TicketID == ticketID && code.Status == domain.AccessCodeStatusActive {
			return code, nil
		}
	}
	return domain.AccessCode{}, domain.ErrAccessCodeNotFound
}

func (s *Store) GetAccessCode(ctx context.Context, codeID string) (domain.AccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.codes[codeID]
	if !ok {
		return domain.AccessCode{}, domain.ErrAccessCodeNotFound
	}
	return code, nil
}

// ListTicketsByPurchaser returns tickets newest first.
func (s *Store) ListTicketsByPurchaser(ctx context.Context, purchaserID string, page domain.Page) ([]domain.Ticket, error) {
	page = page.Normalize()
	s.mu.RLock()
	var owned []domain.Ticket
	for _, ticket := range s.tickets {
		if ticket.PurchaserID == purchaserID {
			owned = append(owned, ticket)
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})

	start := page.Offset()
	if start >= len(owned) {
		return []domain.Ticket{}, nil
	}
	end := start + page.Size
	if end > len(owned) {
		end = len(owned)
	}
	return owned[start:end], nil
}

// Validations.

func (s *Store) GetValidationState(ctx context.Context, ticketID string) (domain.ValidationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.validations[ticketID]
	state := domain.ValidationState{Attempts: len(history)}
	for _, v := range history {
		if v.Result == domain.ValidationResultValid {
			state.Validated = true
		}
	}
	if n := len(history); n > 0 {
		state.LastHash = history[n-1].Hash
	}
	return state, nil
}

// AppendValidation refuses a second VALID record for a ticket, mirroring
// the partial unique index of the Postgres schema.
func (s *Store) AppendValidation(ctx context.Context, v domain.TicketValidation) error {
	if v.Result == domain.ValidationResultValid {
		state, err := s.GetValidationState(ctx, v.TicketID)
		if err != nil {
			return err
		}
		if state.Validated {
			return domain.ErrConcurrentUpdate
		}
	}
	s.stage(ctx, func() {
		s.validations[v.TicketID] = append(s.validations[v.TicketID], v)
	})
	return nil
}

func (s *Store) ListValidations(ctx context.Context, ticketID string) ([]domain.TicketValidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.validations[ticketID]
	out := make([]domain.TicketValidation, len(history))
	copy(out, history)
	return out, nil
}

// Outbox.

func (s *Store) AppendOutbox(ctx context.Context, rec outbox.Record) error {
	s.stage(ctx, func() {
		s.outboxSeq++
		rec.ID = s.outboxSeq
		s.outbox = append(s.outbox, rec)
	})
	return nil
}

// OutboxRecords returns every committed outbox record in append order.
func (s *Store) OutboxRecords() []outbox.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.Record, len(s.outbox))
	copy(out, s.outbox)
	return out
}
