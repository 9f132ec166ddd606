package store

import (
	"context"
	"errors"

	"shopapp/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate")
)

type Repository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)

	CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error)
	ListShops(ctx context.Context) ([]domain.Shop, error)
	UpdateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error)
	DeleteShop(ctx context.Context, shopID string) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	ListShopProducts(ctx context.Context, shopID string, activeOnly bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	ListCartLines(ctx context.Context, userID string) ([]domain.CartLine, error)
	UpsertCartItem(ctx context.Context, item domain.CartItem) error
	UpdateCartItemQty(ctx context.Context, userID string, itemID string, qty int) error
	DeleteCartItem(ctx context.Context, userID string, itemID string) error

	CreatePromo(ctx context.Context, promo domain.PromoCode) (*domain.PromoCode, error)
	ListPromos(ctx context.Context) ([]domain.PromoCode, error)
	GetPromoByCode(ctx context.Context, code string) (*domain.PromoCode, error)
	UpdatePromo(ctx context.Context, promo domain.PromoCode) (*domain.PromoCode, error)
	DeletePromo(ctx context.Context, promoID string) error

	// CreateInvoiceFromCart atomically claims inv.PaymentReference: it inserts
	// the invoice, snapshots the owner's cart rows into invoice items, and
	// deletes those cart rows, all in one transaction. If another caller
	// already claimed the reference it performs no writes and returns the
	// existing invoice with created=false. The uniqueness constraint on
	// payment_reference is the sole arbiter of the race.
	CreateInvoiceFromCart(ctx context.Context, inv domain.Invoice) (*domain.Invoice, []domain.InvoiceItem, bool, error)
	GetInvoiceByReference(ctx context.Context, paymentReference string) (*domain.Invoice, []domain.InvoiceItem, error)
}
