package cache

import (
	"context"
	"time"

	"shopapp/backend/internal/domain"
)

// OrderCache short-circuits the settled-order lookup path. Invoices are immutable
// once written, so a cached entry can never go stale.
type OrderCache interface {
	Get(ctx context.Context, paymentReference string) (*domain.OrderResponse, bool, error)
	Set(ctx context.Context, paymentReference string, value *domain.OrderResponse, ttl time.Duration) error
}

type NoopOrderCache struct{}

func (NoopOrderCache) Get(_ context.Context, _ string) (*domain.OrderResponse, bool, error) {
	return nil, false, nil
}

func (NoopOrderCache) Set(_ context.Context, _ string, _ *domain.OrderResponse, _ time.Duration) error {
	return nil
}
