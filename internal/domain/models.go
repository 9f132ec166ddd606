package domain

import "time"

type Shop struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ShopCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PhotoURL    string `json:"photo_url"`
}

type ShopUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
}

type Product struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"shop_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	ShopID     string `json:"shop_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	PhotoURL   string `json:"photo_url"`
	Active     *bool  `json:"active,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	PhotoURL   *string `json:"photo_url,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// CartItem is the persistence model for one cart row. Rows are unique per
// (user_id, product_id); re-adding a product increments Qty instead of
// inserting a second row.
type CartItem struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	ShopID    string `json:"shop_id"`
	Qty       int    `json:"qty"`
}

// CartLine is a cart row joined with its product and shop for display and
// pricing. UnitPriceCents reflects the product's current price, not a
// snapshot; snapshots happen at invoice creation.
type CartLine struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	ShopID         string `json:"shop_id"`
	ShopName       string `json:"shop_name"`
	ProductName    string `json:"name"`
	UnitPriceCents int64  `json:"price_cents"`
	PhotoURL       string `json:"photo_url,omitempty"`
	Qty            int    `json:"qty"`
}

type CartAddRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CartUpdateRequest struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

type CartResponse struct {
	Items []CartLine `json:"items"`
}

const (
	PromoKindPercent = "percent"
	PromoKindFixed   = "fixed"
)

type PromoCode struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	Kind       string     `json:"kind"`
	Percent    int        `json:"percent,omitempty"`
	ValueCents int64      `json:"value_cents,omitempty"`
	Active     bool       `json:"active"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type PromoCreateRequest struct {
	Code       string     `json:"code"`
	Kind       string     `json:"kind"`
	Percent    int        `json:"percent"`
	ValueCents int64      `json:"value_cents"`
	Active     *bool      `json:"active,omitempty"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
}

type PromoUpdateRequest struct {
	Code       *string    `json:"code,omitempty"`
	Kind       *string    `json:"kind,omitempty"`
	Percent    *int       `json:"percent,omitempty"`
	ValueCents *int64     `json:"value_cents,omitempty"`
	Active     *bool      `json:"active,omitempty"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
}

// PromoCheckResponse is the public display-only promo lookup payload.
type PromoCheckResponse struct {
	Valid      bool   `json:"valid"`
	Kind       string `json:"kind,omitempty"`
	Percent    int    `json:"percent,omitempty"`
	ValueCents int64  `json:"value_cents,omitempty"`
}

type CheckoutRequest struct {
	PromoCode string `json:"promo_code,omitempty"`
}

// CheckoutResponse carries the priced cart and, when the payment gateway is
// configured, the client handle needed to complete payment. In degraded mode
// ClientSecret is null and Note explains why.
type CheckoutResponse struct {
	ClientSecret  *string `json:"client_secret"`
	AmountCents   int64   `json:"amount_cents"`
	Currency      string  `json:"currency"`
	DiscountCents int64   `json:"discount_cents"`
	Note          string  `json:"note,omitempty"`
}

const InvoiceStatusSucceeded = "succeeded"

// Invoice is created exactly once per payment reference and never mutated.
type Invoice struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	PaymentReference string    `json:"payment_reference"`
	AmountCents      int64     `json:"amount_cents"`
	Currency         string    `json:"currency"`
	PromoCode        string    `json:"promo_code,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// InvoiceItem snapshots product name and unit price at settlement time so
// later product edits or deletions cannot change a settled order.
type InvoiceItem struct {
	InvoiceID  string `json:"invoice_id"`
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Qty        int    `json:"qty"`
}

type OrderResponse struct {
	Invoice Invoice       `json:"invoice"`
	Items   []InvoiceItem `json:"items"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	User      UserProfile `json:"user"`
	ExpiresAt string      `json:"expires_at"`
}

// Actor is the authenticated identity carried through request contexts.
type Actor struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}
