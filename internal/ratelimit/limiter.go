// Package ratelimit implements the token-bucket guard in front of the
// external geocoding collaborator (spec §5: "the external geocoding tool is
// protected by a token bucket at rate=5 req/s, burst=10; denied requests
// return null and are not retried by the bucket itself"). Grounded on the
// teacher's internal/ratelimit, which shapes HTTP ingress the same way;
// adapted here to a single outbound limiter with no per-IP/per-mode buckets,
// since there is exactly one external collaborator to protect.
package ratelimit

import "golang.org/x/time/rate"

const (
	// DefaultRate is the geocode collaborator's allowed request rate.
	DefaultRate rate.Limit = 5
	// DefaultBurst is the geocode collaborator's allowed burst size.
	DefaultBurst = 10
)

// Limiter guards the external geocoding collaborator with a token bucket.
type Limiter struct {
	bucket *rate.Limiter
}

// New constructs a Limiter at the spec §5 default rate=5/s, burst=10.
func New() *Limiter {
	return &Limiter{bucket: rate.NewLimiter(DefaultRate, DefaultBurst)}
}

// NewWithRate constructs a Limiter at a custom rate/burst, for tests that
// need to force denial deterministically.
func NewWithRate(r rate.Limit, burst int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(r, burst)}
}

// Allow reports whether a geocode call may proceed right now. Per spec §5 a
// denied request is not retried by the bucket itself: the caller is expected
// to treat a false return as "this route item has no coordinates" (the
// caller-facing contract), not to block waiting for a token.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}
