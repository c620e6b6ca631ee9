package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/accesscode"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/audit"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/clock"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/outbox"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/storage/memory"
)

type fixture struct {
	store      *memory.Store
	admin      *AdminService
	ledger     *LedgerService
	issuance   *IssuanceService
	validation *ValidationService
	cache      *recordingCache
	metrics    *Metrics
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(ctx context.Context, codeIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, codeIDs...)
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	store := memory.New(opts...)
	clk := clock.NewStepping(time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC), time.Millisecond)
	chain, err := audit.New(nil)
	if err != nil {
		t.Fatalf("audit chain: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	cache := &recordingCache{}

	issuance := NewIssuanceService(store, clk, WithAccessCodeCache(cache), WithIssuanceMetrics(metrics))
	return &fixture{
		store:      store,
		admin:      NewAdminService(store, clk),
		ledger:     NewLedgerService(store, issuance, clk, WithLedgerMetrics(metrics)),
		issuance:   issuance,
		validation: NewValidationService(store, accesscode.NewStoreResolver(store), chain, clk, WithValidationMetrics(metrics)),
		cache:      cache,
		metrics:    metrics,
	}
}

func (f *fixture) ticketType(t *testing.T, capacity int) domain.TicketType {
	t.Helper()
	ctx := context.Background()
	event, err := f.admin.CreateEvent(ctx, CreateEventInput{Name: "Concert"})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	tt, err := f.admin.CreateTicketType(ctx, CreateTicketTypeInput{
		EventID:  event.ID,
		Name:     "GA",
		Price:    decimal.RequireFromString("49.90"),
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("create ticket type: %v", err)
	}
	return tt
}

func (f *fixture) purchase(t *testing.T, purchaserID string, tt domain.TicketType) domain.Ticket {
	t.Helper()
	ticket, err := f.ledger.PurchaseTicket(context.Background(), purchaserID, tt.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	return ticket
}

func countValid(history []domain.TicketValidation) int {
	n := 0
	for _, v := range history {
		if v.Result == domain.ValidationResultValid {
			n++
		}
	}
	return n
}

func TestPurchase_SelloutRace(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 3)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sold    int
		soldOut int
	)
	start := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.ledger.PurchaseTicket(context.Background(), fmt.Sprintf("buyer-%d", i), tt.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, domain.ErrTicketsSoldOut):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if sold != 3 || soldOut != 7 {
		t.Fatalf("expected 3 sold and 7 sold out, got %d and %d", sold, soldOut)
	}
	got, err := f.store.GetTicketType(context.Background(), tt.ID)
	if err != nil {
		t.Fatalf("get ticket type: %v", err)
	}
	if got.Sold != 3 {
		t.Fatalf("expected sold=3, got %d", got.Sold)
	}

	purchased := 0
	for _, rec := range f.store.OutboxRecords() {
		if rec.EventType == outbox.EventTicketPurchased {
			purchased++
		}
	}
	if purchased != 3 {
		t.Fatalf("expected 3 purchase events, got %d", purchased)
	}
	if v := testutil.ToFloat64(f.metrics.reservations.WithLabelValues("sold_out")); v != 7 {
		t.Fatalf("expected 7 sold_out reservations recorded, got %v", v)
	}
}

func TestPurchase_UnknownTicketTypeLeavesInventoryUnchanged(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 2)
	f.purchase(t, "alice", tt)

	_, err := f.ledger.PurchaseTicket(context.Background(), "alice", "nonexistent-type")
	if !errors.Is(err, domain.ErrTicketTypeNotFound) {
		t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
	}
	_, err = f.ledger.PurchaseTicket(context.Background(), "alice", "")
	if !errors.Is(err, domain.ErrTicketTypeNotFound) {
		t.Fatalf("expected ErrTicketTypeNotFound for empty id, got %v", err)
	}

	got, _ := f.store.GetTicketType(context.Background(), tt.ID)
	if got.Sold != 1 {
		t.Fatalf("expected sold to stay 1, got %d", got.Sold)
	}
}

func TestPurchase_RequiresPurchaser(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 2)

	_, err := f.ledger.PurchaseTicket(context.Background(), "", tt.ID)
	if !errors.Is(err, domain.ErrPurchaserRequired) {
		t.Fatalf("expected ErrPurchaserRequired, got %v", err)
	}
}

func TestPurchase_IssuesTicketAndAccessCode(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 2)

	ticket := f.purchase(t, "alice", tt)
	if ticket.Status != domain.TicketStatusPurchased {
		t.Fatalf("expected PURCHASED, got %s", ticket.Status)
	}
	if ticket.TicketTypeID != tt.ID || ticket.PurchaserID != "alice" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	code, err := f.issuance.AccessCodeForTicket(context.Background(), "alice", ticket.ID)
	if err != nil {
		t.Fatalf("access code: %v", err)
	}
	if code.TicketID != ticket.ID || code.PurchaserID != "alice" || code.Status != domain.AccessCodeStatusActive {
		t.Fatalf("unexpected access code %+v", code)
	}

	if _, err := f.issuance.AccessCodeForTicket(context.Background(), "mallory", ticket.ID); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound for another purchaser, got %v", err)
	}
}

func TestPurchase_LockTimeoutWritesNothing(t *testing.T) {
	f := newFixture(t, memory.WithLockTimeout(20*time.Millisecond))
	tt := f.ticketType(t, 5)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.WithTx(context.Background(), func(ctx context.Context) error {
			if _, err := f.store.GetTicketTypeForUpdate(ctx, tt.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := f.ledger.PurchaseTicket(context.Background(), "alice", tt.ID)
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder: %v", err)
	}
	if !errors.Is(err, domain.ErrLockTimeout) || !domain.IsTransient(err) {
		t.Fatalf("expected transient ErrLockTimeout, got %v", err)
	}

	got, _ := f.store.GetTicketType(context.Background(), tt.ID)
	if got.Sold != 0 {
		t.Fatalf("expected no reservation, got sold=%d", got.Sold)
	}
	tickets, _ := f.issuance.ListTicketsForUser(context.Background(), "alice", domain.Page{})
	if len(tickets) != 0 {
		t.Fatalf("expected no tickets, got %d", len(tickets))
	}

	// A retry is a brand-new attempt and succeeds once the lock is free.
	if _, err := f.ledger.PurchaseTicket(context.Background(), "alice", tt.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestCancel_IsIdempotentAndRevokesCodes(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 2)
	ticket := f.purchase(t, "alice", tt)
	code, err := f.issuance.AccessCodeForTicket(context.Background(), "alice", ticket.ID)
	if err != nil {
		t.Fatalf("access code: %v", err)
	}

	first, err := f.issuance.CancelTicket(context.Background(), "alice", ticket.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second, err := f.issuance.CancelTicket(context.Background(), "alice", ticket.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if first.Status != domain.TicketStatusCancelled || second.Status != domain.TicketStatusCancelled {
		t.Fatalf("expected CANCELLED twice, got %s and %s", first.Status, second.Status)
	}
	if !first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Fatalf("expected second cancel to be a no-op")
	}

	if _, err := f.issuance.AccessCodeForTicket(context.Background(), "alice", ticket.ID); !errors.Is(err, domain.ErrAccessCodeNotFound) {
		t.Fatalf("expected revoked code, got %v", err)
	}
	if len(f.cache.invalidated) != 1 || f.cache.invalidated[0] != code.ID {
		t.Fatalf("expected cache eviction of %s, got %v", code.ID, f.cache.invalidated)
	}

	got, _ := f.store.GetTicketType(context.Background(), tt.ID)
	if got.Sold != 1 {
		t.Fatalf("expected capacity not to be reclaimed, got sold=%d", got.Sold)
	}

	cancelled := 0
	for _, rec := range f.store.OutboxRecords() {
		if rec.EventType == outbox.EventTicketCancelled {
			cancelled++
		}
	}
	if cancelled != 1 {
		t.Fatalf("expected one cancel event, got %d", cancelled)
	}
}

func TestCancel_OtherPurchaserIsNotFound(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 2)
	ticket := f.purchase(t, "alice", tt)

	_, err := f.issuance.CancelTicket(context.Background(), "mallory", ticket.ID)
	if !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
	got, _ := f.issuance.GetTicket(context.Background(), "alice", ticket.ID)
	if got.Status != domain.TicketStatusPurchased {
		t.Fatalf("expected ticket untouched, got %s", got.Status)
	}
}

func TestListTicketsForUser(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 10)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, f.purchase(t, "alice", tt).ID)
	}
	f.purchase(t, "bob", tt)

	got, err := f.issuance.ListTicketsForUser(context.Background(), "alice", domain.Page{Size: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Fatalf("expected newest first, got %+v", got)
	}

	if _, err := f.issuance.ListTicketsForUser(context.Background(), "", domain.Page{}); !errors.Is(err, domain.ErrPurchaserRequired) {
		t.Fatalf("expected ErrPurchaserRequired, got %v", err)
	}
}

func TestValidate_DoubleScan(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 1)
	ticket := f.purchase(t, "alice", tt)
	code, err := f.issuance.AccessCodeForTicket(context.Background(), "alice", ticket.ID)
	if err != nil {
		t.Fatalf("access code: %v", err)
	}
	ctx := context.Background()

	first, err := f.validation.ValidateTicketManually(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("manual: %v", err)
	}
	if first.Result != domain.ValidationResultValid || first.Method != domain.ValidationMethodManual {
		t.Fatalf("expected MANUAL VALID, got %+v", first)
	}

	second, err := f.validation.ValidateTicketByAccessCode(ctx, code.ID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if second.Result != domain.ValidationResultInvalid || second.Method != domain.ValidationMethodQRScan {
		t.Fatalf("expected QR_SCAN INVALID, got %+v", second)
	}

	third, err := f.validation.ValidateTicketManually(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if third.Result != domain.ValidationResultInvalid {
		t.Fatalf("expected INVALID, got %s", third.Result)
	}

	history, err := f.validation.ListValidations(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("list validations: %v", err)
	}
	if len(history) != 3 || countValid(history) != 1 || history[0].ID != first.ID {
		t.Fatalf("expected one VALID first record among 3, got %+v", history)
	}
	if err := f.validation.VerifyTrail(ctx, ticket.ID); err != nil {
		t.Fatalf("verify trail: %v", err)
	}
}

func TestValidate_UnknownAccessCodeWritesNothing(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 1)
	ticket := f.purchase(t, "alice", tt)
	before := len(f.store.OutboxRecords())

	_, err := f.validation.ValidateTicketByAccessCode(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrAccessCodeNotFound) {
		t.Fatalf("expected ErrAccessCodeNotFound, got %v", err)
	}

	history, _ := f.validation.ListValidations(context.Background(), ticket.ID)
	if len(history) != 0 {
		t.Fatalf("expected no validation rows, got %d", len(history))
	}
	if after := len(f.store.OutboxRecords()); after != before {
		t.Fatalf("expected no outbox rows, got %d new", after-before)
	}
}

func TestValidate_UnknownTicket(t *testing.T) {
	f := newFixture(t)

	_, err := f.validation.ValidateTicketManually(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
	_, err = f.validation.Validate(context.Background(), domain.Presentation{Method: "FACE_ID", TicketID: "x"})
	if !errors.Is(err, domain.ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestValidate_CancelledTicketCodeIsRevoked(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 1)
	ticket := f.purchase(t, "alice", tt)
	code, _ := f.issuance.AccessCodeForTicket(context.Background(), "alice", ticket.ID)
	if _, err := f.issuance.CancelTicket(context.Background(), "alice", ticket.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := f.validation.ValidateTicketByAccessCode(context.Background(), code.ID)
	if !errors.Is(err, domain.ErrAccessCodeNotFound) {
		t.Fatalf("expected ErrAccessCodeNotFound, got %v", err)
	}
}

// snapshotResolver answers with the codes it captured earlier, like a cache
// entry filled before the code was revoked.
type snapshotResolver map[string]domain.AccessCode

func (r snapshotResolver) ResolveActive(ctx context.Context, codeID string) (domain.AccessCode, error) {
	code, ok := r[codeID]
	if !ok {
		return domain.AccessCode{}, domain.ErrAccessCodeNotFound
	}
	return code, nil
}

func TestValidate_StaleResolverCannotAdmitCancelledTicket(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 1)
	ticket := f.purchase(t, "alice", tt)
	code, err := f.issuance.AccessCodeForTicket(context.Background(), "alice", ticket.ID)
	if err != nil {
		t.Fatalf("access code: %v", err)
	}
	chain, _ := audit.New(nil)
	stale := NewValidationService(f.store, snapshotResolver{code.ID: code}, chain, clock.NewSystem())

	if _, err := f.issuance.CancelTicket(context.Background(), "alice", ticket.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	before := len(f.store.OutboxRecords())

	_, err = stale.ValidateTicketByAccessCode(context.Background(), code.ID)
	if !errors.Is(err, domain.ErrAccessCodeNotFound) {
		t.Fatalf("expected ErrAccessCodeNotFound, got %v", err)
	}
	history, _ := f.validation.ListValidations(context.Background(), ticket.ID)
	if len(history) != 0 {
		t.Fatalf("expected no validation rows, got %d", len(history))
	}
	if after := len(f.store.OutboxRecords()); after != before {
		t.Fatalf("expected no outbox rows, got %d new", after-before)
	}
}

func TestValidate_ConcurrentScansAdmitOnce(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 1)
	ticket := f.purchase(t, "alice", tt)
	code, _ := f.issuance.AccessCodeForTicket(context.Background(), "alice", ticket.ID)

	const attempts = 20
	results := make(chan domain.TicketValidation, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			p := domain.ManualPresentation(ticket.ID)
			if i%2 == 0 {
				p = domain.AccessCodePresentation(code.ID)
			}
			v, err := f.validation.Validate(context.Background(), p)
			if err != nil {
				t.Errorf("validate: %v", err)
				return
			}
			results <- v
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	valid := 0
	for v := range results {
		if v.Result == domain.ValidationResultValid {
			valid++
		}
	}
	if valid != 1 {
		t.Fatalf("expected exactly one VALID, got %d", valid)
	}

	history, _ := f.validation.ListValidations(context.Background(), ticket.ID)
	if len(history) != attempts || countValid(history) != 1 {
		t.Fatalf("expected %d records with one VALID, got %d with %d", attempts, len(history), countValid(history))
	}
	if history[0].Result != domain.ValidationResultValid {
		t.Fatalf("expected the first serialized attempt to be VALID")
	}
	if err := f.validation.VerifyTrail(context.Background(), ticket.ID); err != nil {
		t.Fatalf("verify trail: %v", err)
	}
}

func TestValidate_LockTimeoutWritesNothing(t *testing.T) {
	f := newFixture(t, memory.WithLockTimeout(20*time.Millisecond))
	tt := f.ticketType(t, 1)
	ticket := f.purchase(t, "alice", tt)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.WithTx(context.Background(), func(ctx context.Context) error {
			if _, err := f.store.GetTicketForUpdate(ctx, ticket.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := f.validation.ValidateTicketManually(context.Background(), ticket.ID)
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder: %v", err)
	}
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if n := testutil.CollectAndCount(f.metrics.lockWait, "ticket_lock_wait_seconds"); n != 2 {
		t.Fatalf("expected the timed out wait to be observed next to the reserve wait, got %d series", n)
	}

	history, _ := f.validation.ListValidations(context.Background(), ticket.ID)
	if len(history) != 0 {
		t.Fatalf("expected no validation rows, got %d", len(history))
	}

	v, err := f.validation.ValidateTicketManually(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if v.Result != domain.ValidationResultValid {
		t.Fatalf("expected the retry to be admitted, got %s", v.Result)
	}
}

type tamperingRepo struct {
	ValidationRepository
	edit func([]domain.TicketValidation) []domain.TicketValidation
}

func (r tamperingRepo) ListValidations(ctx context.Context, ticketID string) ([]domain.TicketValidation, error) {
	history, err := r.ValidationRepository.ListValidations(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return r.edit(history), nil
}

func TestVerifyTrail_DetectsTampering(t *testing.T) {
	f := newFixture(t)
	tt := f.ticketType(t, 1)
	ticket := f.purchase(t, "alice", tt)
	for i := 0; i < 3; i++ {
		if _, err := f.validation.ValidateTicketManually(context.Background(), ticket.ID); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	chain, _ := audit.New(nil)

	cases := map[string]func([]domain.TicketValidation) []domain.TicketValidation{
		"flipped result": func(h []domain.TicketValidation) []domain.TicketValidation {
			h[1].Result = domain.ValidationResultValid
			return h
		},
		"deleted record": func(h []domain.TicketValidation) []domain.TicketValidation {
			return append(h[:1], h[2:]...)
		},
	}
	for name, edit := range cases {
		t.Run(name, func(t *testing.T) {
			repo := tamperingRepo{ValidationRepository: f.store, edit: edit}
			svc := NewValidationService(repo, nil, chain, clock.NewSystem())
			if err := svc.VerifyTrail(context.Background(), ticket.ID); !errors.Is(err, domain.ErrAuditTrailBroken) {
				t.Fatalf("expected ErrAuditTrailBroken, got %v", err)
			}
		})
	}
}
