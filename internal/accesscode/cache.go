package accesscode

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	cacheKeyPrefix  = "accesscode:"
	// revokedMarker replaces a cache entry when its code is revoked.
	revokedMarker = "revoked"
)

type cachedCode struct {
	TicketID    string    `json:"ticket_id"`
	PurchaserID string    `json:"purchaser_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// CachedResolver is a read-through Redis cache in front of another
// Resolver. Only ACTIVE codes are cached, and only with SET NX. Invalidate
// overwrites entries with a revoked marker instead of deleting them, so a
// lookup that read the code before the revocation cannot put it back.
// Redis failures degrade to the next resolver and never fail a lookup.
type CachedResolver struct {
	client redis.Cmdable
	next   Resolver
	ttl    time.Duration
	log    *slog.Logger
}

func NewCachedResolver(client redis.Cmdable, next Resolver, ttl time.Duration, log *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedResolver{client: client, next: next, ttl: ttl, log: log}
}

func cacheKey(codeID string) string { return cacheKeyPrefix + codeID }

func (r *CachedResolver) ResolveActive(ctx context.Context, codeID string) (domain.AccessCode, error) {
	if codeID == "" {
		return domain.AccessCode{}, domain.ErrAccessCodeNotFound
	}

	raw, err := r.client.Get(ctx, cacheKey(codeID)).Bytes()
	switch {
	case err == nil && string(raw) == revokedMarker:
		return domain.AccessCode{}, domain.ErrAccessCodeNotFound
	case err == nil:
		var c cachedCode
		if jsonErr := json.Unmarshal(raw, &c); jsonErr == nil {
			return domain.AccessCode{
				ID:          codeID,
				TicketID:    c.TicketID,
				PurchaserID: c.PurchaserID,
				Status:      domain.AccessCodeStatusActive,
				CreatedAt:   c.CreatedAt,
			}, nil
		}
		r.log.Warn("access_code_cache_corrupt", "code_id", codeID)
	case !errors.Is(err, redis.Nil):
		r.log.Warn("access_code_cache_get_failed", "code_id", codeID, "err", err.Error())
	}

	code, err := r.next.ResolveActive(ctx, codeID)
	if err != nil {
		return domain.AccessCode{}, err
	}

	payload, err := json.Marshal(cachedCode{
		TicketID:    code.TicketID,
		PurchaserID: code.PurchaserID,
		CreatedAt:   code.CreatedAt,
	})
	if err == nil {
		if err := r.client.SetNX(ctx, cacheKey(codeID), string(payload), r.ttl).Err(); err != nil {
			r.log.Warn("access_code_cache_set_failed", "code_id", codeID, "err", err.Error())
		}
	}
	return code, nil
}

// Invalidate marks codes that are no longer ACTIVE as revoked for one TTL,
// which outlives any fill that raced the revocation.
func (r *CachedResolver) Invalidate(ctx context.Context, codeIDs ...string) {
	for _, id := range codeIDs {
		if err := r.client.Set(ctx, cacheKey(id), revokedMarker, r.ttl).Err(); err != nil {
			r.log.Warn("access_code_cache_invalidate_failed", "code_id", id, "err", err.Error())
		}
	}
}
