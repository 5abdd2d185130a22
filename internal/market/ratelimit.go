package market

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/roach88/marketsync/internal/canon"
)

// RateLimited wraps a Fetcher so that page fetches are paced by a token bucket.
type RateLimited struct {
	next    Fetcher
	limiter *rate.Limiter
}

// NewRateLimited paces next to r pages per second with the given burst.
// r <= 0 disables pacing.
func NewRateLimited(next Fetcher, r float64, burst int) *RateLimited {
	limit := rate.Inf
	if r > 0 {
		limit = rate.Limit(r)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FetchPage blocks until the limiter allows a request, then delegates.
func (f *RateLimited) FetchPage(ctx context.Context, kind canon.Kind, req PageRequest) (Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}
	return f.next.FetchPage(ctx, kind, req)
}
