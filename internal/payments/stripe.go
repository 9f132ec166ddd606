package payments

import (
	"context"
	"errors"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

const (
	metadataUserKey  = "user_id"
	metadataPromoKey = "promo_code"
)

// StripeGateway talks to Stripe through an explicitly constructed client;
// the package-global stripe.Key is never set.
type StripeGateway struct {
	api           *client.API
	lookupTimeout time.Duration
}

func NewStripeGateway(secretKey string, lookupTimeout time.Duration) *StripeGateway {
	if lookupTimeout <= 0 {
		lookupTimeout = 8 * time.Second
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, lookupTimeout: lookupTimeout}
}

func (g *StripeGateway) Configured() bool { return true }

func (g *StripeGateway) CreateIntent(ctx context.Context, userID string, payableCents int64, currency string, promoCode string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(payableCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(metadataUserKey, userID)
	params.AddMetadata(metadataPromoKey, promoCode)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return &Intent{Reference: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) RetrieveSettlement(ctx context.Context, reference string) (*Settlement, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{Params: stripe.Params{Context: lookupCtx}}
	pi, err := g.api.PaymentIntents.Get(reference, params)
	if err != nil {
		if isUnknownReference(err) {
			return nil, ErrUnknownReference
		}
		return nil, err
	}
	return SettlementFromIntent(pi), nil
}

// isUnknownReference reports whether the processor definitively rejected the
// reference, as opposed to a transport or credential failure.
func isUnknownReference(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// SettlementFromIntent maps a Stripe payment intent to the gateway-neutral
// settlement view. It is shared by the polling lookup and the webhook
// ingress, which receives the intent inside a pre-verified event payload.
func SettlementFromIntent(pi *stripe.PaymentIntent) *Settlement {
	if pi == nil {
		return nil
	}
	return &Settlement{
		Reference:   pi.ID,
		Settled:     pi.Status == stripe.PaymentIntentStatusSucceeded,
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		UserID:      pi.Metadata[metadataUserKey],
		PromoCode:   pi.Metadata[metadataPromoKey],
	}
}
