package domain

import "errors"

var (
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrAccessCodeNotFound = errors.New("access code not found")
	ErrEventNotFound      = errors.New("event not found")

	ErrTicketsSoldOut = errors.New("tickets sold out")

	ErrLockTimeout       = errors.New("timed out waiting for lock")
	ErrConcurrentUpdate  = errors.New("concurrent update, retry")
	ErrAuditTrailBroken  = errors.New("validation audit trail broken")
	ErrInvalidID         = errors.New("invalid id")
	ErrPurchaserRequired = errors.New("purchaser id required")
	ErrInvalidMethod     = errors.New("invalid validation method")

	ErrEventNameRequired      = errors.New("event name required")
	ErrTicketTypeNameRequired = errors.New("ticket type name required")
	ErrInvalidCapacity        = errors.New("invalid capacity")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrTicketTypeExists       = errors.New("ticket type already exists")
)

// IsNotFound reports whether err belongs to the not-found family: the
// referenced entity does not exist or is not in the required state.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTicketTypeNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrAccessCodeNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsTransient reports whether the operation failed before writing anything
// and may be retried by the caller as a brand-new attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrConcurrentUpdate)
}
