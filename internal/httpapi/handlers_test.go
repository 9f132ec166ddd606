package httpapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"

	"shopapp/backend/internal/cache"
	"shopapp/backend/internal/domain"
	"shopapp/backend/internal/payments"
	"shopapp/backend/internal/service"
	"shopapp/backend/internal/store/memory"
)

const testWebhookSecret = "whsec_test_secret"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path. The
// payment gateway is disabled, which matches a deployment without payment
// credentials.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, payments.Disabled{}, cache.NoopOrderCache{}, "aud", time.Hour)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", testWebhookSecret), repo
}

func loginAs(t *testing.T, handler http.Handler, email string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:4321"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", email, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	return resp.Token
}

func authedRequest(method string, target string, body []byte, token string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestRegisterThenLogin(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"name":     "New Customer",
		"email":    "new@example.com",
		"password": "longenoughpwd",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	token := loginAs(t, handler, "new@example.com", "longenoughpwd")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/auth/me", nil, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    "customer@example.com",
		"password": "longenoughpwd",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    "customer@example.com",
		"password": "wrongpassword",
	})

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestCartRequiresAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCartAddAndList(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "customer@example.com", "customer123")

	payload, _ := json.Marshal(map[string]any{"product_id": "prod-espresso", "qty": 2})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/cart", payload, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/cart", nil, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cart domain.CartResponse
	if err := json.NewDecoder(rec.Body).Decode(&cart); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Qty != 2 {
		t.Fatalf("unexpected cart: %+v", cart)
	}
	if cart.Items[0].ShopName == "" {
		t.Fatal("expected joined shop name in cart line")
	}
}

func TestCheckoutDegradedReturnsNullSecret(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "customer@example.com", "customer123")

	payload, _ := json.Marshal(map[string]any{"product_id": "prod-novel", "qty": 1})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/cart", payload, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/checkout", []byte(`{}`), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["client_secret"] != nil {
		t.Fatalf("expected null client_secret, got %v", body["client_secret"])
	}
	if body["note"] == "" || body["note"] == nil {
		t.Fatal("expected an explanatory note")
	}
	if body["amount_cents"] != float64(2250) {
		t.Fatalf("expected amount_cents 2250, got %v", body["amount_cents"])
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "customer@example.com", "customer123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/checkout", []byte(`{}`), token))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}
}

func TestCheckoutInvalidPromo(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "customer@example.com", "customer123")

	payload, _ := json.Marshal(map[string]any{"product_id": "prod-mug", "qty": 1})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/cart", payload, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/checkout", []byte(`{"promo_code":"NOSUCH"}`), token))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid promo, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestPromoCheckPublic(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/promo?code=welcome20", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.PromoCheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid || resp.Percent != 20 {
		t.Fatalf("unexpected promo check: %+v", resp)
	}
}

func TestShopsAndProductsPublic(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/shops", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list shops: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/shops/shop-books/products", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: expected 200, got %d", rec.Code)
	}
	var body map[string][]domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, p := range body["products"] {
		if !p.Active {
			t.Fatalf("inactive product %s leaked into public listing", p.ID)
		}
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", rec.Code)
	}
}

func signedWebhookRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()

	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func TestWebhookSettlementCreatesInvoice(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "customer@example.com", "customer123")

	add, _ := json.Marshal(map[string]any{"product_id": "prod-espresso", "qty": 2})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/cart", add, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d", rec.Code)
	}

	payload := []byte(`{
		"id": "evt_settled_1",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_webhook_1",
				"object": "payment_intent",
				"status": "succeeded",
				"amount": 3300,
				"currency": "aud",
				"metadata": {"user_id": "user-customer"}
			}
		}
	}`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	inv, items, err := repo.GetInvoiceByReference(context.Background(), "pi_webhook_1")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if inv.UserID != "user-customer" || inv.AmountCents != 3300 {
		t.Fatalf("unexpected invoice: %+v", inv)
	}
	if len(items) != 1 || items[0].Qty != 2 {
		t.Fatalf("unexpected items: %+v", items)
	}

	// Redelivery acknowledges without creating a second invoice.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", rec.Code)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload := []byte(`{"id":"evt_other","type":"payment_intent.created","data":{"object":{"id":"pi_x","object":"payment_intent","status":"requires_payment_method"}}}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored event, got %d", rec.Code)
	}
}

func TestOrderByReferenceUnknown(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "customer@example.com", "customer123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/orders/by-reference?ref=pi_missing", nil, token))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAdminEndpointsForbiddenForCustomer(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "customer@example.com", "customer123")

	payload, _ := json.Marshal(map[string]string{"name": "Sneaky Shop"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/admin/shops", payload, token))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAdminShopAndProductLifecycle(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin@example.com", "admin123")

	payload, _ := json.Marshal(map[string]string{"name": "Garden Supplies"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/admin/shops", payload, token))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create shop: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var shopBody map[string]domain.Shop
	if err := json.NewDecoder(rec.Body).Decode(&shopBody); err != nil {
		t.Fatalf("decode shop: %v", err)
	}
	shopID := shopBody["shop"].ID

	productPayload, _ := json.Marshal(map[string]any{
		"shop_id":     shopID,
		"name":        "Trowel",
		"price_cents": 1250,
	})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/admin/products", productPayload, token))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var productBody map[string]domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&productBody); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	productID := productBody["product"].ID

	patch := []byte(`{"price_cents": 1500}`)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/v1/admin/products/"+productID, patch, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("patch product: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/admin/products/"+productID, nil, token))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete product: expected 200, got %d", rec.Code)
	}
}
