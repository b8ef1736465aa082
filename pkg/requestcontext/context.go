// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets caller identity and request metadata; services read them
// without importing net/http. The clock accessor lets tests pin time:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"

	id "attestor/pkg/domain"
)

type (
	callerIDKey    struct{}
	callerTierKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithCaller stores the authenticated caller's id and tier.
func WithCaller(ctx context.Context, memberID id.MemberID, tier id.Tier) context.Context {
	ctx = context.WithValue(ctx, callerIDKey{}, memberID)
	return context.WithValue(ctx, callerTierKey{}, tier)
}

// CallerID returns the authenticated caller id, or the zero id when absent.
func CallerID(ctx context.Context) id.MemberID {
	v, _ := ctx.Value(callerIDKey{}).(id.MemberID)
	return v
}

// CallerTier returns the caller tier, defaulting to basic when absent.
func CallerTier(ctx context.Context) id.Tier {
	if v, ok := ctx.Value(callerTierKey{}).(id.Tier); ok {
		return v
	}
	return id.TierBasic
}

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithTime pins the request clock. Tests use this for deterministic
// timestamps; middleware sets it to the request arrival time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now().UTC()
}
