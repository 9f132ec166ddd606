package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopapp/backend/internal/domain"
	"shopapp/backend/internal/store"
	"shopapp/backend/internal/xid"
)

// Store is the in-memory Repository used for dev mode and tests. The single
// mutex makes every operation atomic, including the invoice claim, so the
// same race semantics as the postgres unique index hold within one process.
type Store struct {
	mu            sync.RWMutex
	usersByID     map[string]domain.UserAccount
	usersByEmail  map[string]string
	shopsByID     map[string]domain.Shop
	productsByID  map[string]domain.Product
	cartItemsByID map[string]domain.CartItem
	promosByID    map[string]domain.PromoCode
	promoIDByCode map[string]string
	invoicesByRef map[string]domain.Invoice
	invoiceItems  map[string][]domain.InvoiceItem
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials come
// from SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Production deployments use
// PostgreSQL (DATABASE_URL set) and never hit this path.
func seedUsers() (map[string]domain.UserAccount, map[string]string) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	byID := map[string]domain.UserAccount{}
	byEmail := map[string]string{}
	for _, u := range []struct {
		id       string
		name     string
		email    string
		password string
		isAdmin  bool
	}{
		{"user-admin", "Admin", "admin@example.com", adminPwd, true},
		{"user-customer", "Customer", "customer@example.com", customerPwd, false},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		byID[u.id] = domain.UserAccount{
			ID:           u.id,
			Name:         u.name,
			Email:        u.email,
			PasswordHash: string(hash),
			IsAdmin:      u.isAdmin,
			CreatedAt:    now,
		}
		byEmail[u.email] = u.id
	}
	return byID, byEmail
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		usersByID:     map[string]domain.UserAccount{},
		usersByEmail:  map[string]string{},
		shopsByID:     map[string]domain.Shop{},
		productsByID:  map[string]domain.Product{},
		cartItemsByID: map[string]domain.CartItem{},
		promosByID:    map[string]domain.PromoCode{},
		promoIDByCode: map[string]string{},
		invoicesByRef: map[string]domain.Invoice{},
		invoiceItems:  map[string][]domain.InvoiceItem{},
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByID, s.usersByEmail = seedUsers()

	now := time.Now().UTC()
	shops := []domain.Shop{
		{ID: "shop-coffee", Name: "Corner Coffee", Description: "Beans and brews", CreatedAt: now},
		{ID: "shop-books", Name: "Paper Trail Books", Description: "New and used books", CreatedAt: now},
	}
	products := []domain.Product{
		{ID: "prod-espresso", ShopID: "shop-coffee", Name: "Espresso Blend 250g", PriceCents: 1650, Active: true, CreatedAt: now},
		{ID: "prod-filter", ShopID: "shop-coffee", Name: "Filter Roast 500g", PriceCents: 2400, Active: true, CreatedAt: now},
		{ID: "prod-mug", ShopID: "shop-coffee", Name: "Stoneware Mug", PriceCents: 1900, Active: true, CreatedAt: now},
		{ID: "prod-novel", ShopID: "shop-books", Name: "Harbour Lights (paperback)", PriceCents: 2250, Active: true, CreatedAt: now},
		{ID: "prod-atlas", ShopID: "shop-books", Name: "Pocket Atlas", PriceCents: 3400, Active: true, CreatedAt: now},
		{ID: "prod-retired", ShopID: "shop-books", Name: "Out of Print Quarterly", PriceCents: 1200, Active: false, CreatedAt: now},
	}
	promos := []domain.PromoCode{
		{ID: "promo-welcome", Code: "WELCOME20", Kind: domain.PromoKindPercent, Percent: 20, Active: true, CreatedAt: now},
		{ID: "promo-fiver", Code: "FIVER", Kind: domain.PromoKindFixed, ValueCents: 500, Active: true, CreatedAt: now},
	}

	for _, shop := range shops {
		s.shopsByID[shop.ID] = shop
	}
	for _, product := range products {
		s.productsByID[product.ID] = product
	}
	for _, promo := range promos {
		s.promosByID[promo.ID] = promo
		s.promoIDByCode[promo.Code] = promo.ID
	}
	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[user.Email]; exists {
		return nil, store.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	s.usersByEmail[user.Email] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateShop(_ context.Context, shop domain.Shop) (*domain.Shop, error) {
	if strings.TrimSpace(shop.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	s.shopsByID[shop.ID] = shop

	created := shop
	return &created, nil
}

func (s *Store) ListShops(_ context.Context) ([]domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]domain.Shop, 0, len(s.shopsByID))
	for _, shop := range s.shopsByID {
		shops = append(shops, shop)
	}
	sort.Slice(shops, func(i, j int) bool {
		if shops[i].CreatedAt.Equal(shops[j].CreatedAt) {
			return shops[i].ID < shops[j].ID
		}
		return shops[i].CreatedAt.After(shops[j].CreatedAt)
	})
	return shops, nil
}

func (s *Store) UpdateShop(_ context.Context, shop domain.Shop) (*domain.Shop, error) {
	if strings.TrimSpace(shop.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.shopsByID[shop.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shop.CreatedAt = existing.CreatedAt
	s.shopsByID[shop.ID] = shop

	updated := shop
	return &updated, nil
}

func (s *Store) DeleteShop(_ context.Context, shopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shopsByID[shopID]; !ok {
		return store.ErrNotFound
	}
	delete(s.shopsByID, shopID)
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ShopID == "" || strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shopsByID[product.ShopID]; !ok {
		return nil, store.ErrNotFound
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.productsByID[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListShopProducts(_ context.Context, shopID string, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, product := range s.productsByID {
		if product.ShopID != shopID {
			continue
		}
		if activeOnly && !product.Active {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID < products[j].ID
		}
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.productsByID[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.ShopID = existing.ShopID
	product.CreatedAt = existing.CreatedAt
	s.productsByID[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.productsByID[productID]; !ok {
		return store.ErrNotFound
	}
	delete(s.productsByID, productID)
	return nil
}

func (s *Store) ListCartLines(_ context.Context, userID string) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cartLinesLocked(userID), nil
}

// cartLinesLocked joins cart rows with products and shops. Callers must hold
// at least the read lock.
func (s *Store) cartLinesLocked(userID string) []domain.CartLine {
	lines := make([]domain.CartLine, 0, 8)
	for _, item := range s.cartItemsByID {
		if item.UserID != userID {
			continue
		}
		product, ok := s.productsByID[item.ProductID]
		if !ok {
			continue
		}
		shopName := ""
		if shop, ok := s.shopsByID[product.ShopID]; ok {
			shopName = shop.Name
		}
		lines = append(lines, domain.CartLine{
			ID:             item.ID,
			ProductID:      product.ID,
			ShopID:         product.ShopID,
			ShopName:       shopName,
			ProductName:    product.Name,
			UnitPriceCents: product.PriceCents,
			PhotoURL:       product.PhotoURL,
			Qty:            item.Qty,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ID < lines[j].ID
	})
	return lines
}

func (s *Store) UpsertCartItem(_ context.Context, item domain.CartItem) error {
	if item.UserID == "" || item.ProductID == "" || item.Qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[item.ProductID]
	if !ok {
		return store.ErrNotFound
	}

	for id, existing := range s.cartItemsByID {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Qty += item.Qty
			s.cartItemsByID[id] = existing
			return nil
		}
	}

	if item.ID == "" {
		item.ID = xid.New("cart")
	}
	item.ShopID = product.ShopID
	s.cartItemsByID[item.ID] = item
	return nil
}

func (s *Store) UpdateCartItemQty(_ context.Context, userID string, itemID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cartItemsByID[itemID]
	if !ok || item.UserID != userID {
		return store.ErrNotFound
	}
	item.Qty = qty
	s.cartItemsByID[itemID] = item
	return nil
}

func (s *Store) DeleteCartItem(_ context.Context, userID string, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cartItemsByID[itemID]
	if !ok || item.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.cartItemsByID, itemID)
	return nil
}

func (s *Store) CreatePromo(_ context.Context, promo domain.PromoCode) (*domain.PromoCode, error) {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	if promo.Code == "" || !isPromoKind(promo.Kind) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.promoIDByCode[promo.Code]; exists {
		return nil, store.ErrDuplicate
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	s.promosByID[promo.ID] = promo
	s.promoIDByCode[promo.Code] = promo.ID

	created := promo
	return &created, nil
}

func (s *Store) ListPromos(_ context.Context) ([]domain.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.PromoCode, 0, len(s.promosByID))
	for _, promo := range s.promosByID {
		promos = append(promos, promo)
	}
	sort.Slice(promos, func(i, j int) bool {
		if promos[i].CreatedAt.Equal(promos[j].CreatedAt) {
			return promos[i].ID < promos[j].ID
		}
		return promos[i].CreatedAt.After(promos[j].CreatedAt)
	})
	return promos, nil
}

func (s *Store) GetPromoByCode(_ context.Context, code string) (*domain.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.promoIDByCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	promo := s.promosByID[id]
	return &promo, nil
}

func (s *Store) UpdatePromo(_ context.Context, promo domain.PromoCode) (*domain.PromoCode, error) {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	if promo.Code == "" || !isPromoKind(promo.Kind) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.promosByID[promo.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if otherID, taken := s.promoIDByCode[promo.Code]; taken && otherID != promo.ID {
		return nil, store.ErrDuplicate
	}
	delete(s.promoIDByCode, existing.Code)
	promo.CreatedAt = existing.CreatedAt
	s.promosByID[promo.ID] = promo
	s.promoIDByCode[promo.Code] = promo.ID

	updated := promo
	return &updated, nil
}

func (s *Store) DeletePromo(_ context.Context, promoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, ok := s.promosByID[promoID]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.promosByID, promoID)
	delete(s.promoIDByCode, promo.Code)
	return nil
}

func (s *Store) CreateInvoiceFromCart(_ context.Context, inv domain.Invoice) (*domain.Invoice, []domain.InvoiceItem, bool, error) {
	if inv.UserID == "" || inv.PaymentReference == "" {
		return nil, nil, false, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.invoicesByRef[inv.PaymentReference]; ok {
		copied := existing
		return &copied, cloneItems(s.invoiceItems[existing.ID]), false, nil
	}

	if inv.ID == "" {
		inv.ID = xid.New("inv")
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Status == "" {
		inv.Status = domain.InvoiceStatusSucceeded
	}

	lines := s.cartLinesLocked(inv.UserID)
	items := make([]domain.InvoiceItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.InvoiceItem{
			InvoiceID:  inv.ID,
			ProductID:  line.ProductID,
			Name:       line.ProductName,
			PriceCents: line.UnitPriceCents,
			Qty:        line.Qty,
		})
	}

	for id, item := range s.cartItemsByID {
		if item.UserID == inv.UserID {
			delete(s.cartItemsByID, id)
		}
	}

	s.invoicesByRef[inv.PaymentReference] = inv
	s.invoiceItems[inv.ID] = items

	created := inv
	return &created, cloneItems(items), true, nil
}

func (s *Store) GetInvoiceByReference(_ context.Context, paymentReference string) (*domain.Invoice, []domain.InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoicesByRef[paymentReference]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	copied := inv
	return &copied, cloneItems(s.invoiceItems[inv.ID]), nil
}

func cloneItems(items []domain.InvoiceItem) []domain.InvoiceItem {
	out := make([]domain.InvoiceItem, len(items))
	copy(out, items)
	return out
}

func isPromoKind(kind string) bool {
	return kind == domain.PromoKindPercent || kind == domain.PromoKindFixed
}
