package http

import (
	"context"
	"log/slog"
	"net/http"
)

// AdminService covers every admin endpoint.
type AdminService interface {
	AdminEventService
	AdminTicketTypeService
}

// Services are the application entry points the router dispatches to.
type Services struct {
	Admin     AdminService
	Purchaser TicketPurchaser
	Tickets   TicketService
	Validator TicketValidator
	Signer    PayloadSigner
	// Ready backs /ready. Nil means always ready.
	Ready func(ctx context.Context) error
}

type RouterConfig struct {
	Logger      *slog.Logger
	Metrics     *Metrics
	CORSOrigins []string

	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
}

// NewRouter builds the API handler. Middleware order, outermost first:
// request id, metrics, request logging, CORS.
func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.Handle("/ready", ReadyHandler(svc.Ready))
	mux.Handle("/admin/events", HandleAdminEvents(svc.Admin))
	mux.Handle("/admin/events/", HandleAdminTicketTypes(svc.Admin))
	mux.Handle("/ticket-types/", HandlePurchase(svc.Purchaser))
	mux.Handle("/tickets", HandleListTickets(svc.Tickets))
	mux.Handle("/tickets/", HandleTicket(svc.Tickets, svc.Validator, svc.Signer))
	mux.Handle("/validations", HandleValidate(svc.Validator))
	if cfg.MetricsHandler != nil {
		mux.Handle("/metrics", cfg.MetricsHandler)
	}
	mux.Handle("/", NotFoundHandler())

	var h http.Handler = CORS(cfg.CORSOrigins, mux)
	h = RequestLogger(h, cfg.Logger)
	if cfg.Metrics != nil {
		h = cfg.Metrics.Middleware(h)
	}
	return RequestID(h)
}
