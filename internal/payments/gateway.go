// Package payments wraps the external payment processor. The rest of the
// backend talks to the Gateway interface; Stripe specifics stay here.
package payments

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a disabled gateway. Checkout treats it as
// degraded mode, not a failure.
var ErrNotConfigured = errors.New("payment gateway not configured")

// ErrUnknownReference means the processor definitively does not know the
// payment reference. Distinct from transport failures, which stay retryable.
var ErrUnknownReference = errors.New("payment reference unknown to the processor")

// Intent is a freshly created payment authorization. Reference is the
// processor's opaque id and the sole idempotency key for invoicing;
// ClientSecret is handed to the client to complete payment.
type Intent struct {
	Reference    string
	ClientSecret string
}

// Settlement is the processor's authoritative view of one authorization,
// including the metadata attached at creation time.
type Settlement struct {
	Reference   string
	Settled     bool
	AmountCents int64
	Currency    string
	UserID      string
	PromoCode   string
}

type Gateway interface {
	// Configured reports whether the processor credentials are present.
	Configured() bool

	// CreateIntent authorizes payableCents and attaches userID and promoCode
	// as opaque metadata so reconciliation can recover the owning cart.
	CreateIntent(ctx context.Context, userID string, payableCents int64, currency string, promoCode string) (*Intent, error)

	// RetrieveSettlement resolves the authoritative state of one payment
	// reference. The call is bounded by the gateway's lookup timeout; a
	// timeout or transport failure is returned as an error the caller maps
	// to "retry later", never to a permanent failure.
	RetrieveSettlement(ctx context.Context, reference string) (*Settlement, error)
}

// Disabled is the gateway used when no processor secret is configured.
// Checkout still prices the cart; it just cannot produce a client handle.
type Disabled struct{}

func (Disabled) Configured() bool { return false }

func (Disabled) CreateIntent(context.Context, string, int64, string, string) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (Disabled) RetrieveSettlement(context.Context, string) (*Settlement, error) {
	return nil, ErrNotConfigured
}
