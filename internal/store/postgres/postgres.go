package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopapp/backend/internal/domain"
	"shopapp/backend/internal/store"
	"shopapp/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, is_admin, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.IsAdmin, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.findUser(ctx, "email", email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	return s.findUser(ctx, "id", id)
}

func (s *Store) findUser(ctx context.Context, column string, value string) (*domain.UserAccount, error) {
	if column != "id" && column != "email" {
		return nil, store.ErrInvalidInput
	}

	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, is_admin, created_at
		FROM users
		WHERE `+column+` = $1
	`, value).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error) {
	if strings.TrimSpace(shop.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, name, description, photo_url, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, shop.ID, shop.Name, shop.Description, nullIfEmpty(shop.PhotoURL), shop.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := shop
	return &created, nil
}

func (s *Store) ListShops(ctx context.Context) ([]domain.Shop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, COALESCE(photo_url,''), created_at
		FROM shops
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shops := make([]domain.Shop, 0, 32)
	for rows.Next() {
		var shop domain.Shop
		if err := rows.Scan(&shop.ID, &shop.Name, &shop.Description, &shop.PhotoURL, &shop.CreatedAt); err != nil {
			return nil, err
		}
		shop.CreatedAt = shop.CreatedAt.UTC()
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shops, nil
}

func (s *Store) UpdateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error) {
	if strings.TrimSpace(shop.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE shops
		SET name = $2, description = $3, photo_url = $4
		WHERE id = $1
	`, shop.ID, shop.Name, shop.Description, nullIfEmpty(shop.PhotoURL))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := shop
	return &updated, nil
}

func (s *Store) DeleteShop(ctx context.Context, shopID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shops WHERE id = $1`, shopID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ShopID == "" || strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, name, price_cents, photo_url, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, product.ID, product.ShopID, product.Name, product.PriceCents, nullIfEmpty(product.PhotoURL), product.Active, product.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, price_cents, COALESCE(photo_url,''), active, created_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&product.ID, &product.ShopID, &product.Name, &product.PriceCents, &product.PhotoURL, &product.Active, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) ListShopProducts(ctx context.Context, shopID string, activeOnly bool) ([]domain.Product, error) {
	query := `
		SELECT id, shop_id, name, price_cents, COALESCE(photo_url,''), active, created_at
		FROM products
		WHERE shop_id = $1
	`
	if activeOnly {
		query += ` AND active = true`
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceCents, &p.PhotoURL, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price_cents = $3, photo_url = $4, active = $5
		WHERE id = $1
	`, product.ID, product.Name, product.PriceCents, nullIfEmpty(product.PhotoURL), product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := s.db.QueryContext(ctx, cartLinesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCartLines(rows)
}

const cartLinesQuery = `
	SELECT ci.id, ci.product_id, p.shop_id, sh.name, p.name, p.price_cents, COALESCE(p.photo_url,''), ci.qty
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	JOIN shops sh ON sh.id = p.shop_id
	WHERE ci.user_id = $1
	ORDER BY ci.id ASC
`

func scanCartLines(rows *sql.Rows) ([]domain.CartLine, error) {
	lines := make([]domain.CartLine, 0, 16)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.ShopID, &line.ShopName, &line.ProductName, &line.UnitPriceCents, &line.PhotoURL, &line.Qty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) UpsertCartItem(ctx context.Context, item domain.CartItem) error {
	if item.UserID == "" || item.ProductID == "" || item.Qty < 1 {
		return store.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = xid.New("cart")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, user_id, product_id, shop_id, qty)
		SELECT $1, $2, p.id, p.shop_id, $4
		FROM products p
		WHERE p.id = $3
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty
	`, item.ID, item.UserID, item.ProductID, item.Qty)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return store.ErrNotFound
		}
		return err
	}

	// INSERT ... SELECT matches zero rows when the product does not exist.
	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM cart_items WHERE user_id = $1 AND product_id = $2)
	`, item.UserID, item.ProductID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateCartItemQty(ctx context.Context, userID string, itemID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_items
		SET qty = $3
		WHERE id = $2 AND user_id = $1
	`, userID, itemID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, userID string, itemID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE id = $2 AND user_id = $1
	`, userID, itemID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePromo(ctx context.Context, promo domain.PromoCode) (*domain.PromoCode, error) {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	if promo.Code == "" || (promo.Kind != domain.PromoKindPercent && promo.Kind != domain.PromoKindFixed) {
		return nil, store.ErrInvalidInput
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promo_codes (id, code, kind, percent, value_cents, active, starts_at, ends_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, promo.ID, promo.Code, promo.Kind, promo.Percent, promo.ValueCents, promo.Active, nullTime(promo.StartsAt), nullTime(promo.EndsAt), promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := promo
	return &created, nil
}

func (s *Store) ListPromos(ctx context.Context) ([]domain.PromoCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, kind, percent, value_cents, active, starts_at, ends_at, created_at
		FROM promo_codes
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.PromoCode, 0, 16)
	for rows.Next() {
		promo, err := scanPromo(rows.Scan)
		if err != nil {
			return nil, err
		}
		promos = append(promos, *promo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return promos, nil
}

func (s *Store) GetPromoByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	promo, err := scanPromo(s.db.QueryRowContext(ctx, `
		SELECT id, code, kind, percent, value_cents, active, starts_at, ends_at, created_at
		FROM promo_codes
		WHERE code = $1
	`, code).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return promo, nil
}

func scanPromo(scan func(dest ...any) error) (*domain.PromoCode, error) {
	var promo domain.PromoCode
	var startsAt sql.NullTime
	var endsAt sql.NullTime
	if err := scan(&promo.ID, &promo.Code, &promo.Kind, &promo.Percent, &promo.ValueCents, &promo.Active, &startsAt, &endsAt, &promo.CreatedAt); err != nil {
		return nil, err
	}
	promo.CreatedAt = promo.CreatedAt.UTC()
	if startsAt.Valid {
		at := startsAt.Time.UTC()
		promo.StartsAt = &at
	}
	if endsAt.Valid {
		at := endsAt.Time.UTC()
		promo.EndsAt = &at
	}
	return &promo, nil
}

func (s *Store) UpdatePromo(ctx context.Context, promo domain.PromoCode) (*domain.PromoCode, error) {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	if promo.Code == "" || (promo.Kind != domain.PromoKindPercent && promo.Kind != domain.PromoKindFixed) {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE promo_codes
		SET code = $2, kind = $3, percent = $4, value_cents = $5, active = $6, starts_at = $7, ends_at = $8
		WHERE id = $1
	`, promo.ID, promo.Code, promo.Kind, promo.Percent, promo.ValueCents, promo.Active, nullTime(promo.StartsAt), nullTime(promo.EndsAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := promo
	return &updated, nil
}

func (s *Store) DeletePromo(ctx context.Context, promoID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM promo_codes WHERE id = $1`, promoID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateInvoiceFromCart claims the payment reference, snapshots the owner's
// cart into invoice items, and empties the cart in one serializable
// transaction. The UNIQUE index on invoices.payment_reference is the single
// arbiter: a concurrent claim loses with 23505, rolls back without writes,
// and returns the winner's rows.
func (s *Store) CreateInvoiceFromCart(ctx context.Context, inv domain.Invoice) (*domain.Invoice, []domain.InvoiceItem, bool, error) {
	if inv.UserID == "" || inv.PaymentReference == "" {
		return nil, nil, false, store.ErrInvalidInput
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, false, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (id, user_id, payment_reference, amount_cents, currency, promo_code, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, inv.ID, inv.UserID, inv.PaymentReference, inv.AmountCents, inv.Currency, nullIfEmpty(inv.PromoCode), inv.Status, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, items, lookupErr := s.GetInvoiceByReference(ctx, inv.PaymentReference)
			if lookupErr != nil {
				return nil, nil, false, lookupErr
			}
			return existing, items, false, nil
		}
		return nil, nil, false, err
	}

	lineRows, err := pgTx.QueryContext(ctx, cartLinesQuery, inv.UserID)
	if err != nil {
		return nil, nil, false, err
	}
	lines, err := scanCartLines(lineRows)
	_ = lineRows.Close()
	if err != nil {
		return nil, nil, false, err
	}

	items := make([]domain.InvoiceItem, 0, len(lines))
	for _, line := range lines {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, name, price_cents, qty)
			VALUES ($1,$2,$3,$4,$5)
		`, inv.ID, line.ProductID, line.ProductName, line.UnitPriceCents, line.Qty)
		if err != nil {
			return nil, nil, false, err
		}
		items = append(items, domain.InvoiceItem{
			InvoiceID:  inv.ID,
			ProductID:  line.ProductID,
			Name:       line.ProductName,
			PriceCents: line.UnitPriceCents,
			Qty:        line.Qty,
		})
	}

	_, err = pgTx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, inv.UserID)
	if err != nil {
		return nil, nil, false, err
	}

	if err := pgTx.Commit(); err != nil {
		if isUniqueViolation(err) {
			existing, existingItems, lookupErr := s.GetInvoiceByReference(ctx, inv.PaymentReference)
			if lookupErr != nil {
				return nil, nil, false, lookupErr
			}
			return existing, existingItems, false, nil
		}
		return nil, nil, false, err
	}

	created := inv
	return &created, items, true, nil
}

func (s *Store) GetInvoiceByReference(ctx context.Context, paymentReference string) (*domain.Invoice, []domain.InvoiceItem, error) {
	var inv domain.Invoice
	var promoCode sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, payment_reference, amount_cents, currency, promo_code, status, created_at
		FROM invoices
		WHERE payment_reference = $1
	`, paymentReference).Scan(&inv.ID, &inv.UserID, &inv.PaymentReference, &inv.AmountCents, &inv.Currency, &promoCode, &inv.Status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	if promoCode.Valid {
		inv.PromoCode = promoCode.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, product_id, name, price_cents, qty
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id ASC
	`, inv.ID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.InvoiceID, &item.ProductID, &item.Name, &item.PriceCents, &item.Qty); err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return &inv, items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
