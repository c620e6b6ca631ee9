// Package accesscode resolves presented access codes to the tickets they
// admit. Resolvers compose: a signed scan payload is opened first, then an
// optional Redis cache is consulted, then the store.
package accesscode

import (
	"context"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

type Resolver interface {
	ResolveActive(ctx context.Context, codeID string) (domain.AccessCode, error)
}

// Lookup reads an access code by id regardless of its status.
type Lookup interface {
	GetAccessCode(ctx context.Context, codeID string) (domain.AccessCode, error)
}

// StoreResolver answers from the system of record.
type StoreResolver struct {
	lookup Lookup
}

func NewStoreResolver(lookup Lookup) *StoreResolver {
	return &StoreResolver{lookup: lookup}
}

// ResolveActive returns the code only while it is ACTIVE.
func (r *StoreResolver) ResolveActive(ctx context.Context, codeID string) (domain.AccessCode, error) {
	if codeID == "" {
		return domain.AccessCode{}, domain.ErrAccessCodeNotFound
	}
	code, err := r.lookup.GetAccessCode(ctx, codeID)
	if err != nil {
		return domain.AccessCode{}, err
	}
	if code.Status != domain.AccessCodeStatusActive {
		return domain.AccessCode{}, domain.ErrAccessCodeNotFound
	}
	return code, nil
}
