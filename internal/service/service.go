package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"shopapp/backend/internal/cache"
	"shopapp/backend/internal/domain"
	"shopapp/backend/internal/payments"
	"shopapp/backend/internal/pricing"
	"shopapp/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var (
	ErrForbidden    = errors.New("admin access required")
	ErrCartEmpty    = errors.New("cart is empty")
	ErrPromoInvalid = errors.New("promo code is not valid")
	// ErrNotSettled covers both unknown references and references the caller
	// does not own; the two cases are indistinguishable to the client.
	ErrNotSettled = errors.New("payment is not settled")
)

type Service struct {
	repo     store.Repository
	gateway  payments.Gateway
	orders   cache.OrderCache
	currency string
	cacheTTL time.Duration
}

func New(repo store.Repository, gateway payments.Gateway, orders cache.OrderCache, currency string, cacheTTL time.Duration) *Service {
	if currency == "" {
		currency = "aud"
	}
	if orders == nil {
		orders = cache.NoopOrderCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	return &Service{
		repo:     repo,
		gateway:  gateway,
		orders:   orders,
		currency: strings.ToLower(currency),
		cacheTTL: cacheTTL,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) ListShops(ctx context.Context) ([]domain.Shop, error) {
	return s.repo.ListShops(ctx)
}

func (s *Service) ListShopProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	if strings.TrimSpace(shopID) == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListShopProducts(ctx, shopID, true)
}

func (s *Service) CreateShop(ctx context.Context, req domain.ShopCreateRequest) (domain.Shop, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Shop{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Shop{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateShop(ctx, domain.Shop{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		PhotoURL:    strings.TrimSpace(req.PhotoURL),
	})
	if err != nil {
		return domain.Shop{}, err
	}
	return *created, nil
}

func (s *Service) UpdateShop(ctx context.Context, shopID string, req domain.ShopUpdateRequest) (domain.Shop, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Shop{}, err
	}

	shops, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.Shop{}, err
	}
	var existing *domain.Shop
	for i := range shops {
		if shops[i].ID == shopID {
			existing = &shops[i]
			break
		}
	}
	if existing == nil {
		return domain.Shop{}, store.ErrNotFound
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Shop{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.PhotoURL != nil {
		updated.PhotoURL = strings.TrimSpace(*req.PhotoURL)
	}

	saved, err := s.repo.UpdateShop(ctx, updated)
	if err != nil {
		return domain.Shop{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteShop(ctx context.Context, shopID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteShop(ctx, shopID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.ShopID == "" || req.Name == "" || req.PriceCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ShopID:     req.ShopID,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		PhotoURL:   strings.TrimSpace(req.PhotoURL),
		Active:     active,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.PhotoURL != nil {
		updated.PhotoURL = strings.TrimSpace(*req.PhotoURL)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

// AdminListShopProducts returns all of a shop's products including inactive
// ones, which the public listing hides.
func (s *Service) AdminListShopProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(shopID) == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListShopProducts(ctx, shopID, false)
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, productID)
}

func (s *Service) Cart(ctx context.Context) (domain.CartResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CartResponse{}, err
	}

	lines, err := s.repo.ListCartLines(ctx, actor.UserID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return domain.CartResponse{Items: lines}, nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.CartAddRequest) (domain.CartResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if req.ProductID == "" || req.Qty < 1 {
		return domain.CartResponse{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !product.Active {
		return domain.CartResponse{}, store.ErrNotFound
	}

	err = s.repo.UpsertCartItem(ctx, domain.CartItem{
		UserID:    actor.UserID,
		ProductID: product.ID,
		ShopID:    product.ShopID,
		Qty:       req.Qty,
	})
	if err != nil {
		return domain.CartResponse{}, err
	}
	return s.Cart(ctx)
}

func (s *Service) UpdateCartItem(ctx context.Context, req domain.CartUpdateRequest) (domain.CartResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if req.ID == "" || req.Qty < 1 {
		return domain.CartResponse{}, store.ErrInvalidInput
	}

	if err := s.repo.UpdateCartItemQty(ctx, actor.UserID, req.ID, req.Qty); err != nil {
		return domain.CartResponse{}, err
	}
	return s.Cart(ctx)
}

func (s *Service) RemoveCartItem(ctx context.Context, itemID string) (domain.CartResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if itemID == "" {
		return domain.CartResponse{}, store.ErrInvalidInput
	}

	if err := s.repo.DeleteCartItem(ctx, actor.UserID, itemID); err != nil {
		return domain.CartResponse{}, err
	}
	return s.Cart(ctx)
}

// CheckPromo is the public display-only lookup. It never reveals why a code
// is unusable, only whether it currently is.
func (s *Service) CheckPromo(ctx context.Context, code string) (domain.PromoCheckResponse, error) {
	rule, _, err := s.resolvePromo(ctx, code, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrPromoInvalid) {
			return domain.PromoCheckResponse{Valid: false}, nil
		}
		return domain.PromoCheckResponse{}, err
	}
	if rule == nil {
		return domain.PromoCheckResponse{Valid: false}, nil
	}
	return domain.PromoCheckResponse{
		Valid:      true,
		Kind:       rule.Kind,
		Percent:    rule.Percent,
		ValueCents: rule.ValueCents,
	}, nil
}

// resolvePromo maps a raw code to a pricing rule. An empty code means no
// promo and resolves to a nil rule, not an error.
func (s *Service) resolvePromo(ctx context.Context, code string, now time.Time) (*pricing.Rule, string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, "", nil
	}

	promo, err := s.repo.GetPromoByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrPromoInvalid
		}
		return nil, "", err
	}
	if !promo.Active {
		return nil, "", ErrPromoInvalid
	}
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return nil, "", ErrPromoInvalid
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return nil, "", ErrPromoInvalid
	}

	return &pricing.Rule{
		Kind:       promo.Kind,
		Percent:    promo.Percent,
		ValueCents: promo.ValueCents,
	}, promo.Code, nil
}

func (s *Service) CreatePromo(ctx context.Context, req domain.PromoCreateRequest) (domain.PromoCode, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PromoCode{}, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	created, err := s.repo.CreatePromo(ctx, domain.PromoCode{
		Code:       req.Code,
		Kind:       req.Kind,
		Percent:    req.Percent,
		ValueCents: req.ValueCents,
		Active:     active,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
	})
	if err != nil {
		return domain.PromoCode{}, err
	}
	return *created, nil
}

func (s *Service) ListPromos(ctx context.Context) ([]domain.PromoCode, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPromos(ctx)
}

func (s *Service) UpdatePromo(ctx context.Context, promoID string, req domain.PromoUpdateRequest) (domain.PromoCode, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PromoCode{}, err
	}

	promos, err := s.repo.ListPromos(ctx)
	if err != nil {
		return domain.PromoCode{}, err
	}
	var existing *domain.PromoCode
	for i := range promos {
		if promos[i].ID == promoID {
			existing = &promos[i]
			break
		}
	}
	if existing == nil {
		return domain.PromoCode{}, store.ErrNotFound
	}

	updated := *existing
	if req.Code != nil {
		updated.Code = *req.Code
	}
	if req.Kind != nil {
		updated.Kind = *req.Kind
	}
	if req.Percent != nil {
		updated.Percent = *req.Percent
	}
	if req.ValueCents != nil {
		updated.ValueCents = *req.ValueCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.StartsAt != nil {
		updated.StartsAt = req.StartsAt
	}
	if req.EndsAt != nil {
		updated.EndsAt = req.EndsAt
	}

	saved, err := s.repo.UpdatePromo(ctx, updated)
	if err != nil {
		return domain.PromoCode{}, err
	}
	return *saved, nil
}

func (s *Service) DeletePromo(ctx context.Context, promoID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeletePromo(ctx, promoID)
}

// Checkout prices the caller's cart server side and opens a payment intent.
// Client supplied totals are never accepted. When no gateway is configured
// the priced quote is still returned, with a nil client secret and a note.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	lines, err := s.repo.ListCartLines(ctx, actor.UserID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if len(lines) == 0 {
		return domain.CheckoutResponse{}, ErrCartEmpty
	}

	rule, promoCode, err := s.resolvePromo(ctx, req.PromoCode, time.Now().UTC())
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	priced := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		priced = append(priced, pricing.Line{UnitPriceCents: line.UnitPriceCents, Qty: line.Qty})
	}
	quote, err := pricing.Calculate(priced, rule)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	resp := domain.CheckoutResponse{
		AmountCents:   quote.PayableCents,
		Currency:      s.currency,
		DiscountCents: quote.DiscountCents,
	}

	if !s.gateway.Configured() {
		resp.Note = "payment processing is not configured; order cannot be completed"
		return resp, nil
	}

	intent, err := s.gateway.CreateIntent(ctx, actor.UserID, quote.PayableCents, s.currency, promoCode)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	resp.ClientSecret = &intent.ClientSecret
	return resp, nil
}

// HandleSettledPayment is the webhook ingress. The settlement payload is
// already signature verified, so no user check happens here. Events that are
// not settled are acknowledged and dropped.
func (s *Service) HandleSettledPayment(ctx context.Context, settlement payments.Settlement) error {
	if !settlement.Settled {
		return nil
	}
	if settlement.UserID == "" {
		log.Printf("[service] WARN: settled payment %s has no user metadata, skipping", settlement.Reference)
		return nil
	}
	_, err := s.reconcile(ctx, settlement)
	return err
}

// OrderByReference is the polling ingress. The reference must resolve to a
// settled payment whose metadata names the caller; anything else reads as
// not settled so the endpoint discloses nothing about foreign payments.
func (s *Service) OrderByReference(ctx context.Context, reference string) (domain.OrderResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.OrderResponse{}, store.ErrInvalidInput
	}

	if order, ok, err := s.orders.Get(ctx, reference); err == nil && ok {
		if order.Invoice.UserID != actor.UserID {
			return domain.OrderResponse{}, ErrNotSettled
		}
		return *order, nil
	} else if err != nil {
		log.Printf("[service] WARN: order cache get %s: %v", reference, err)
	}

	// An invoice already written for this reference is final; no processor
	// round trip needed.
	if inv, items, err := s.repo.GetInvoiceByReference(ctx, reference); err == nil {
		if inv.UserID != actor.UserID {
			return domain.OrderResponse{}, ErrNotSettled
		}
		order := domain.OrderResponse{Invoice: *inv, Items: items}
		if err := s.orders.Set(ctx, reference, &order, s.cacheTTL); err != nil {
			log.Printf("[service] WARN: order cache set %s: %v", reference, err)
		}
		return order, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.OrderResponse{}, err
	}

	settlement, err := s.gateway.RetrieveSettlement(ctx, reference)
	if err != nil {
		if errors.Is(err, payments.ErrNotConfigured) || errors.Is(err, payments.ErrUnknownReference) {
			return domain.OrderResponse{}, ErrNotSettled
		}
		return domain.OrderResponse{}, err
	}
	if !settlement.Settled {
		return domain.OrderResponse{}, ErrNotSettled
	}
	if settlement.UserID != actor.UserID {
		return domain.OrderResponse{}, ErrNotSettled
	}

	return s.reconcile(ctx, *settlement)
}

// reconcile turns a settled payment into an invoice exactly once. The store
// arbitrates concurrent claims on the payment reference; losers receive the
// winner's invoice and perform no writes.
func (s *Service) reconcile(ctx context.Context, settlement payments.Settlement) (domain.OrderResponse, error) {
	inv, items, created, err := s.repo.CreateInvoiceFromCart(ctx, domain.Invoice{
		UserID:           settlement.UserID,
		PaymentReference: settlement.Reference,
		AmountCents:      settlement.AmountCents,
		Currency:         strings.ToLower(settlement.Currency),
		PromoCode:        settlement.PromoCode,
		Status:           domain.InvoiceStatusSucceeded,
	})
	if err != nil {
		return domain.OrderResponse{}, err
	}
	if created {
		log.Printf("[service] invoice %s created for payment %s", inv.ID, inv.PaymentReference)
		if len(items) == 0 {
			log.Printf("[service] WARN: invoice %s settled with an empty cart, zero line items written", inv.ID)
		}
	}

	order := domain.OrderResponse{Invoice: *inv, Items: items}
	if err := s.orders.Set(ctx, inv.PaymentReference, &order, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: order cache set %s: %v", inv.PaymentReference, err)
	}
	return order, nil
}
