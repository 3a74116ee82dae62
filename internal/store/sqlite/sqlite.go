package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"stockman/internal/domain"
	"stockman/internal/store"
	"stockman/internal/xid"
)

// schema is applied in full on every open. Statements are idempotent so an
// existing database file is left untouched.
const schema = `
CREATE TABLE IF NOT EXISTS company (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	total_sales INTEGER NOT NULL DEFAULT 0,
	total_profit_cents INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	brand TEXT NOT NULL DEFAULT 'Local',
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS product_variants (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL REFERENCES products(id),
	category_id TEXT NOT NULL REFERENCES categories(id),
	cost_price_cents INTEGER NOT NULL DEFAULT 0,
	sell_price_cents INTEGER NOT NULL DEFAULT 0,
	stock_quantity INTEGER NOT NULL DEFAULT 0,
	image_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	status_reason TEXT NOT NULL DEFAULT '',
	deactivated_at TEXT,
	created_at TEXT NOT NULL,
	UNIQUE (product_id, category_id)
);

CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	customer_type TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sales (
	id TEXT PRIMARY KEY,
	cart_session_id TEXT NOT NULL DEFAULT '',
	customer_id TEXT REFERENCES customers(id),
	sale_date TEXT NOT NULL,
	total_amount_cents INTEGER NOT NULL DEFAULT 0,
	total_profit_cents INTEGER NOT NULL DEFAULT 0,
	discount_amount_cents INTEGER NOT NULL DEFAULT 0,
	amount_paid_cents INTEGER NOT NULL DEFAULT 0,
	balance_due_cents INTEGER NOT NULL DEFAULT 0,
	payment_status TEXT NOT NULL DEFAULT '',
	payment_method TEXT NOT NULL DEFAULT '',
	customer_type TEXT NOT NULL DEFAULT '',
	due_date TEXT,
	status TEXT NOT NULL DEFAULT 'draft',
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sale_items (
	id TEXT PRIMARY KEY,
	sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
	variant_id TEXT NOT NULL REFERENCES product_variants(id),
	quantity INTEGER NOT NULL,
	unit_price_cents INTEGER NOT NULL,
	unit_cost_cents INTEGER NOT NULL,
	discount_per_item_cents INTEGER NOT NULL DEFAULT 0,
	line_total_cents INTEGER NOT NULL,
	line_profit_cents INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_history (
	id TEXT PRIMARY KEY,
	sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
	amount_cents INTEGER NOT NULL,
	payment_date TEXT NOT NULL,
	method TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	received_by TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS app_password (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_variants_product ON product_variants(product_id);
CREATE INDEX IF NOT EXISTS idx_variants_category ON product_variants(category_id);
CREATE INDEX IF NOT EXISTS idx_variants_status ON product_variants(status);
CREATE INDEX IF NOT EXISTS idx_sales_status ON sales(status);
CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date);
CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(customer_id);
CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id);
CREATE INDEX IF NOT EXISTS idx_sale_items_variant ON sale_items(variant_id);
CREATE INDEX IF NOT EXISTS idx_payments_sale ON payment_history(sale_id);
CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone);
CREATE INDEX IF NOT EXISTS idx_customers_type ON customers(customer_type);
CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_draft_session
	ON sales(cart_session_id) WHERE status = 'draft';
`

type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database file at path and applies the schema.
// The pool is pinned to a single connection; SQLite serializes writers anyway
// and one connection keeps transactions free of SQLITE_BUSY retries.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", raw)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func scanNullTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	return &t
}

// --- catalog ---

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.Brand == "" {
		product.Brand = domain.DefaultBrand
	}
	if product.Status == "" {
		product.Status = domain.VariantStatusActive
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, description, status, created_at)
		VALUES (?,?,?,?,?,?)
	`, product.ID, product.Name, product.Brand, product.Description, product.Status, fmtTime(product.CreatedAt))
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	var (
		p         domain.Product
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, brand, description, status, created_at
		FROM products
		WHERE name = ?
		ORDER BY created_at
		LIMIT 1
	`, name).Scan(&p.ID, &p.Name, &p.Brand, &p.Description, &p.Status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// getOrCreateCategory resolves a category by name inside tx, creating it when
// absent.
func getOrCreateCategory(ctx context.Context, tx *sqlx.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	id = xid.New("cat")
	if _, err := tx.ExecContext(ctx, `INSERT INTO categories (id, name) VALUES (?,?)`, id, name); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) CreateVariant(ctx context.Context, productID string, categoryName string, variant domain.ProductVariant) (*domain.ProductVariant, error) {
	if productID == "" || categoryName == "" {
		return nil, fmt.Errorf("%w: product and category are required", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM products WHERE id = ?`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}

	categoryID, err := getOrCreateCategory(ctx, tx, categoryName)
	if err != nil {
		return nil, err
	}

	var dup int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM product_variants WHERE product_id = ? AND category_id = ?
	`, productID, categoryID).Scan(&dup)
	if err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, fmt.Errorf("%w: %s in category %s", store.ErrDuplicateVariant, productID, categoryName)
	}

	variant.ID = xid.New("var")
	variant.ProductID = productID
	variant.CategoryID = categoryID
	variant.Status = domain.VariantStatusActive
	variant.StatusReason = ""
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_variants
			(id, product_id, category_id, cost_price_cents, sell_price_cents, stock_quantity, image_path, status, status_reason, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`, variant.ID, variant.ProductID, variant.CategoryID, variant.CostPriceCents, variant.SellPriceCents,
		variant.StockQuantity, variant.ImagePath, variant.Status, variant.StatusReason, fmtTime(variant.CreatedAt))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := variant
	return &created, nil
}

const variantDetailQuery = `
	SELECT v.id, v.product_id, p.name, p.brand, p.description, v.category_id, c.name,
		v.cost_price_cents, v.sell_price_cents, v.stock_quantity, v.image_path,
		v.status, v.status_reason, v.deactivated_at
	FROM product_variants v
	JOIN products p ON p.id = v.product_id
	JOIN categories c ON c.id = v.category_id
`

func scanVariantDetail(row interface{ Scan(...any) error }) (*domain.VariantDetail, error) {
	var (
		d             domain.VariantDetail
		deactivatedAt sql.NullString
	)
	err := row.Scan(&d.VariantID, &d.ProductID, &d.ProductName, &d.Brand, &d.Description, &d.CategoryID, &d.CategoryName,
		&d.CostPriceCents, &d.SellPriceCents, &d.StockQuantity, &d.ImagePath, &d.Status, &d.StatusReason, &deactivatedAt)
	if err != nil {
		return nil, err
	}
	d.DeactivatedAt = scanNullTime(deactivatedAt)
	return &d, nil
}

func (s *Store) GetVariantByID(ctx context.Context, variantID string) (*domain.VariantDetail, error) {
	row := s.db.QueryRowContext(ctx, variantDetailQuery+` WHERE v.id = ?`, variantID)
	detail, err := scanVariantDetail(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return detail, nil
}

func (s *Store) ListVariants(ctx context.Context) ([]domain.VariantDetail, error) {
	rows, err := s.db.QueryContext(ctx, variantDetailQuery+` ORDER BY p.name, c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.VariantDetail, 0, 64)
	for rows.Next() {
		detail, err := scanVariantDetail(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, *detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (s *Store) UpdateVariant(ctx context.Context, variantID string, update domain.VariantUpdateRequest) (*domain.VariantDetail, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productID, categoryID string
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, category_id FROM product_variants WHERE id = ?
	`, variantID).Scan(&productID, &categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if update.ProductName != nil {
		if *update.ProductName == "" {
			return nil, fmt.Errorf("%w: product name cannot be empty", store.ErrInvalidInput)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET name = ? WHERE id = ?`, *update.ProductName, productID); err != nil {
			return nil, err
		}
	}
	if update.Brand != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE products SET brand = ? WHERE id = ?`, *update.Brand, productID); err != nil {
			return nil, err
		}
	}
	if update.Description != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE products SET description = ? WHERE id = ?`, *update.Description, productID); err != nil {
			return nil, err
		}
	}
	if update.CategoryName != nil {
		if *update.CategoryName == "" {
			return nil, fmt.Errorf("%w: category name cannot be empty", store.ErrInvalidInput)
		}
		// The category row is renamed in place. Other variants sharing the
		// category see the new name too.
		if _, err := tx.ExecContext(ctx, `UPDATE categories SET name = ? WHERE id = ?`, *update.CategoryName, categoryID); err != nil {
			return nil, err
		}
	}
	if update.CostPriceCents != nil {
		if *update.CostPriceCents < 0 {
			return nil, fmt.Errorf("%w: cost price cannot be negative", store.ErrInvalidInput)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE product_variants SET cost_price_cents = ? WHERE id = ?`, *update.CostPriceCents, variantID); err != nil {
			return nil, err
		}
	}
	if update.SellPriceCents != nil {
		if *update.SellPriceCents < 0 {
			return nil, fmt.Errorf("%w: sell price cannot be negative", store.ErrInvalidInput)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE product_variants SET sell_price_cents = ? WHERE id = ?`, *update.SellPriceCents, variantID); err != nil {
			return nil, err
		}
	}
	if update.StockQuantity != nil {
		if *update.StockQuantity < 0 {
			return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrInvalidInput)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE product_variants SET stock_quantity = ? WHERE id = ?`, *update.StockQuantity, variantID); err != nil {
			return nil, err
		}
	}
	if update.ImagePath != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE product_variants SET image_path = ? WHERE id = ?`, *update.ImagePath, variantID); err != nil {
			return nil, err
		}
	}

	row := tx.QueryRowContext(ctx, variantDetailQuery+` WHERE v.id = ?`, variantID)
	detail, err := scanVariantDetail(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return detail, nil
}

// DeleteVariant walks the decision ladder: variants referenced by completed
// sales are deactivated to preserve ledger history, variants sitting in an
// open cart are refused, and unreferenced variants are removed outright along
// with a parent product or category left without variants.
func (s *Store) DeleteVariant(ctx context.Context, variantID string) (*store.VariantDeleteResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productID, categoryID string
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, category_id FROM product_variants WHERE id = ?
	`, variantID).Scan(&productID, &categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var completedRefs, draftRefs int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM sale_items i JOIN sales s ON s.id = i.sale_id
		WHERE i.variant_id = ? AND s.status = ?
	`, variantID, domain.SaleStatusCompleted).Scan(&completedRefs)
	if err != nil {
		return nil, err
	}
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM sale_items i JOIN sales s ON s.id = i.sale_id
		WHERE i.variant_id = ? AND s.status = ?
	`, variantID, domain.SaleStatusDraft).Scan(&draftRefs)
	if err != nil {
		return nil, err
	}

	switch {
	case completedRefs > 0:
		_, err = tx.ExecContext(ctx, `
			UPDATE product_variants SET status = ?, status_reason = ?, deactivated_at = ? WHERE id = ?
		`, domain.VariantStatusInactive, "Product was part of sales history - cannot be deleted",
			fmtTime(time.Now().UTC()), variantID)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &store.VariantDeleteResult{
			Deactivated: true,
			Message:     "Product was part of sales history - it has been deactivated instead",
		}, nil

	case draftRefs > 0:
		return &store.VariantDeleteResult{
			Message: "Product is in an open cart - remove it from the cart first",
		}, fmt.Errorf("%w: variant is referenced by an open cart", store.ErrInvalidInput)

	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_variants WHERE id = ?`, variantID); err != nil {
			return nil, err
		}

		var siblingVariants int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM product_variants WHERE product_id = ?`, productID).Scan(&siblingVariants); err != nil {
			return nil, err
		}
		if siblingVariants == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID); err != nil {
				return nil, err
			}
		}

		var categoryRefs int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM product_variants WHERE category_id = ?`, categoryID).Scan(&categoryRefs); err != nil {
			return nil, err
		}
		if categoryRefs == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, categoryID); err != nil {
				return nil, err
			}
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &store.VariantDeleteResult{
			Deleted: true,
			Message: "Product deleted",
		}, nil
	}
}

func (s *Store) SetVariantStatus(ctx context.Context, variantID string, status string, reason string) error {
	if status != domain.VariantStatusActive && status != domain.VariantStatusInactive {
		return fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, status)
	}
	var deactivatedAt any
	if status == domain.VariantStatusInactive {
		deactivatedAt = fmtTime(time.Now().UTC())
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_variants SET status = ?, status_reason = ?, deactivated_at = ? WHERE id = ?
	`, status, reason, deactivatedAt, variantID)
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

// --- cart ---

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var (
		sale       domain.Sale
		customerID sql.NullString
		saleDate   string
		dueDate    sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&sale.ID, &sale.CartSessionID, &customerID, &saleDate,
		&sale.TotalAmountCents, &sale.TotalProfitCents, &sale.DiscountCents, &sale.AmountPaidCents, &sale.BalanceDueCents,
		&sale.PaymentStatus, &sale.PaymentMethod, &sale.CustomerType, &dueDate,
		&sale.Status, &sale.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sale.CustomerID = customerID.String
	sale.SaleDate = parseTime(saleDate)
	sale.DueDate = scanNullTime(dueDate)
	sale.CreatedAt = parseTime(createdAt)
	sale.UpdatedAt = parseTime(updatedAt)
	return &sale, nil
}

const saleColumns = `id, cart_session_id, customer_id, sale_date,
	total_amount_cents, total_profit_cents, discount_amount_cents, amount_paid_cents, balance_due_cents,
	payment_status, payment_method, customer_type, due_date, status, notes, created_at, updated_at`

func getDraftSale(ctx context.Context, tx *sqlx.Tx, cartSessionID string) (*domain.Sale, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+saleColumns+` FROM sales WHERE cart_session_id = ? AND status = ?
	`, cartSessionID, domain.SaleStatusDraft)
	return scanSale(row)
}

func createDraftSale(ctx context.Context, tx *sqlx.Tx, cartSessionID string) (*domain.Sale, error) {
	now := time.Now().UTC()
	sale := domain.Sale{
		ID:            xid.New("sale"),
		CartSessionID: cartSessionID,
		SaleDate:      now,
		Status:        domain.SaleStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, cart_session_id, sale_date, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
	`, sale.ID, sale.CartSessionID, fmtTime(sale.SaleDate), sale.Status, fmtTime(sale.CreatedAt), fmtTime(sale.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetOrCreateDraftSale(ctx context.Context, cartSessionID string) (*domain.Sale, error) {
	if cartSessionID == "" {
		return nil, fmt.Errorf("%w: cart session id is required", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getDraftSale(ctx, tx, cartSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		sale, err = createDraftSale(ctx, tx, cartSessionID)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

// updateSaleTotals recomputes the draft's totals from its lines. Every cart
// mutation ends here; nothing else writes total_amount_cents.
func updateSaleTotals(ctx context.Context, tx *sqlx.Tx, saleID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sales SET
			total_amount_cents = (SELECT COALESCE(SUM(line_total_cents), 0) FROM sale_items WHERE sale_id = ?),
			total_profit_cents = (SELECT COALESCE(SUM(line_profit_cents), 0) FROM sale_items WHERE sale_id = ?)
		WHERE id = ?
	`, saleID, saleID, saleID)
	return err
}

func loadCartView(ctx context.Context, q sqlx.QueryerContext, sale *domain.Sale) (*domain.CartView, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.id, i.variant_id, p.name, c.name, i.quantity,
			i.unit_price_cents, i.unit_cost_cents, i.line_total_cents, i.line_profit_cents,
			v.stock_quantity
		FROM sale_items i
		JOIN product_variants v ON v.id = i.variant_id
		JOIN products p ON p.id = v.product_id
		JOIN categories c ON c.id = v.category_id
		WHERE i.sale_id = ?
		ORDER BY p.name, c.name
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0, 8)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ItemID, &line.VariantID, &line.ProductName, &line.CategoryName, &line.Quantity,
			&line.UnitPriceCents, &line.UnitCostCents, &line.LineTotalCents, &line.LineProfitCents,
			&line.StockQuantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.CartView{
		SaleID:           sale.ID,
		CartSessionID:    sale.CartSessionID,
		Lines:            lines,
		TotalAmountCents: sale.TotalAmountCents,
		TotalProfitCents: sale.TotalProfitCents,
	}, nil
}

func (s *Store) AddToCart(ctx context.Context, cartSessionID string, variantID string, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getDraftSale(ctx, tx, cartSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		sale, err = createDraftSale(ctx, tx, cartSessionID)
	}
	if err != nil {
		return nil, err
	}

	var (
		costCents, sellCents int64
		stock                int
		status               string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT cost_price_cents, sell_price_cents, stock_quantity, status
		FROM product_variants WHERE id = ?
	`, variantID).Scan(&costCents, &sellCents, &stock, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
		}
		return nil, err
	}
	if status != domain.VariantStatusActive {
		return nil, fmt.Errorf("%w: product is not active", store.ErrInvalidInput)
	}

	// Merge with an existing line for the same variant. Unit prices stay the
	// snapshot taken when the line was first added.
	var (
		itemID                        string
		existingQty                   int
		unitPriceCents, unitCostCents int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, quantity, unit_price_cents, unit_cost_cents
		FROM sale_items WHERE sale_id = ? AND variant_id = ?
	`, sale.ID, variantID).Scan(&itemID, &existingQty, &unitPriceCents, &unitCostCents)
	switch {
	case err == nil:
		newQty := existingQty + quantity
		if newQty > stock {
			return nil, fmt.Errorf("%w: available %d", store.ErrInsufficientStock, stock)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sale_items SET quantity = ?, line_total_cents = ?, line_profit_cents = ?
			WHERE id = ?
		`, newQty, unitPriceCents*int64(newQty), (unitPriceCents-unitCostCents)*int64(newQty), itemID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		if quantity > stock {
			return nil, fmt.Errorf("%w: available %d", store.ErrInsufficientStock, stock)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items
				(id, sale_id, variant_id, quantity, unit_price_cents, unit_cost_cents, line_total_cents, line_profit_cents)
			VALUES (?,?,?,?,?,?,?,?)
		`, xid.New("item"), sale.ID, variantID, quantity, sellCents, costCents,
			sellCents*int64(quantity), (sellCents-costCents)*int64(quantity))
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := updateSaleTotals(ctx, tx, sale.ID); err != nil {
		return nil, err
	}
	sale, err = getDraftSale(ctx, tx, cartSessionID)
	if err != nil {
		return nil, err
	}
	view, err := loadCartView(ctx, tx, sale)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Store) GetCart(ctx context.Context, cartSessionID string) (*domain.CartView, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getDraftSale(ctx, tx, cartSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.CartView{CartSessionID: cartSessionID, Lines: []domain.CartLine{}}, nil
	}
	if err != nil {
		return nil, err
	}

	view, err := loadCartView(ctx, tx, sale)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Store) UpdateCartItemQuantity(ctx context.Context, cartSessionID string, itemID string, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return s.RemoveFromCart(ctx, cartSessionID, itemID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getDraftSale(ctx, tx, cartSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no open cart", store.ErrNotFound)
		}
		return nil, err
	}

	var (
		variantID                     string
		unitPriceCents, unitCostCents int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT variant_id, unit_price_cents, unit_cost_cents
		FROM sale_items WHERE id = ? AND sale_id = ?
	`, itemID, sale.ID).Scan(&variantID, &unitPriceCents, &unitCostCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cart item %s", store.ErrNotFound, itemID)
		}
		return nil, err
	}

	var stock int
	if err := tx.QueryRowContext(ctx, `SELECT stock_quantity FROM product_variants WHERE id = ?`, variantID).Scan(&stock); err != nil {
		return nil, err
	}
	if quantity > stock {
		return nil, fmt.Errorf("%w: available %d", store.ErrInsufficientStock, stock)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sale_items SET quantity = ?, line_total_cents = ?, line_profit_cents = ?
		WHERE id = ?
	`, quantity, unitPriceCents*int64(quantity), (unitPriceCents-unitCostCents)*int64(quantity), itemID)
	if err != nil {
		return nil, err
	}

	if err := updateSaleTotals(ctx, tx, sale.ID); err != nil {
		return nil, err
	}
	sale, err = getDraftSale(ctx, tx, cartSessionID)
	if err != nil {
		return nil, err
	}
	view, err := loadCartView(ctx, tx, sale)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Store) RemoveFromCart(ctx context.Context, cartSessionID string, itemID string) (*domain.CartView, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getDraftSale(ctx, tx, cartSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no open cart", store.ErrNotFound)
		}
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE id = ? AND sale_id = ?`, itemID, sale.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: cart item %s", store.ErrNotFound, itemID)
	}

	if err := updateSaleTotals(ctx, tx, sale.ID); err != nil {
		return nil, err
	}
	sale, err = getDraftSale(ctx, tx, cartSessionID)
	if err != nil {
		return nil, err
	}
	view, err := loadCartView(ctx, tx, sale)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Store) ClearCart(ctx context.Context, cartSessionID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getDraftSale(ctx, tx, cartSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, sale.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, sale.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// --- ledger ---

func derivePaymentStatus(totalCents, paidCents int64) string {
	switch {
	case totalCents-paidCents <= 0:
		return domain.PaymentStatusPaidFull
	case paidCents == 0:
		return domain.PaymentStatusPending
	default:
		return domain.PaymentStatusPartial
	}
}

// resolveCustomer finds a customer by phone or creates one. Customers without
// a phone are always created fresh; there is nothing to match them on.
func resolveCustomer(ctx context.Context, tx *sqlx.Tx, req domain.CompleteSaleRequest, saleID string) (string, error) {
	if req.CustomerPhone != "" {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE phone = ? LIMIT 1`, req.CustomerPhone).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}

	id := xid.New("cust")
	_, err := tx.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, customer_type, note, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, id, req.CustomerName, req.CustomerPhone, req.CustomerAddress, req.CustomerType,
		fmt.Sprintf("Added during sale %s", saleID), fmtTime(time.Now().UTC()))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) CompleteSale(ctx context.Context, req domain.CompleteSaleRequest) (*domain.Sale, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getDraftSale(ctx, tx, req.CartSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no items in cart", store.ErrInvalidInput)
		}
		return nil, err
	}

	type lineStock struct {
		variantID string
		quantity  int
	}
	rows, err := tx.QueryContext(ctx, `SELECT variant_id, quantity FROM sale_items WHERE sale_id = ?`, sale.ID)
	if err != nil {
		return nil, err
	}
	lines := make([]lineStock, 0, 8)
	for rows.Next() {
		var l lineStock
		if err := rows.Scan(&l.variantID, &l.quantity); err != nil {
			rows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no items in cart", store.ErrInvalidInput)
	}

	customerID, err := resolveCustomer(ctx, tx, req, sale.ID)
	if err != nil {
		return nil, err
	}

	if req.AmountPaidCents < 0 {
		return nil, fmt.Errorf("%w: amount paid cannot be negative", store.ErrInvalidInput)
	}
	if req.AmountPaidCents > sale.TotalAmountCents {
		req.AmountPaidCents = sale.TotalAmountCents
	}

	paymentStatus := derivePaymentStatus(sale.TotalAmountCents, req.AmountPaidCents)
	balanceDue := sale.TotalAmountCents - req.AmountPaidCents

	saleDate := time.Now().UTC()
	if req.SaleDate != nil {
		saleDate = req.SaleDate.UTC()
	}
	dueDate := req.DueDate
	if paymentStatus == domain.PaymentStatusPaidFull {
		dueDate = nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET
			customer_id = ?, sale_date = ?, discount_amount_cents = ?, amount_paid_cents = ?, balance_due_cents = ?,
			payment_status = ?, payment_method = ?, customer_type = ?, due_date = ?,
			status = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, customerID, fmtTime(saleDate), req.DiscountCents, req.AmountPaidCents, balanceDue,
		paymentStatus, req.PaymentMethod, req.CustomerType, nullTime(dueDate),
		domain.SaleStatusCompleted, req.Notes, fmtTime(time.Now().UTC()), sale.ID)
	if err != nil {
		return nil, err
	}

	if req.AmountPaidCents > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_history (id, sale_id, amount_cents, payment_date, method, notes)
			VALUES (?,?,?,?,?,?)
		`, xid.New("pay"), sale.ID, req.AmountPaidCents, fmtTime(saleDate), req.PaymentMethod, "Initial payment during sale")
		if err != nil {
			return nil, err
		}
	}

	for _, l := range lines {
		if _, err := tx.ExecContext(ctx, `
			UPDATE product_variants SET stock_quantity = stock_quantity - ? WHERE id = ?
		`, l.quantity, l.variantID); err != nil {
			return nil, err
		}
	}

	if err := refreshCompanyRollups(ctx, tx); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, sale.ID)
	completed, err := scanSale(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return completed, nil
}

func refreshCompanyRollups(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE company SET
			total_sales = (SELECT COUNT(1) FROM sales WHERE status = 'completed'),
			total_profit_cents = (SELECT COALESCE(SUM(total_profit_cents), 0) FROM sales WHERE status = 'completed')
	`)
	return err
}

func (s *Store) ProcessPartialPayment(ctx context.Context, saleID string, payment domain.PaymentEntry) (*domain.Sale, error) {
	if payment.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, saleID)
		}
		return nil, err
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, fmt.Errorf("%w: payments apply to completed sales only", store.ErrInvalidInput)
	}
	if payment.AmountCents > sale.BalanceDueCents {
		return nil, fmt.Errorf("%w: payment cannot exceed outstanding balance of %.2f",
			store.ErrInvalidInput, float64(sale.BalanceDueCents)/100)
	}

	newPaid := sale.AmountPaidCents + payment.AmountCents
	newBalance := sale.TotalAmountCents - newPaid
	newStatus := derivePaymentStatus(sale.TotalAmountCents, newPaid)

	now := fmtTime(time.Now().UTC())
	if newStatus == domain.PaymentStatusPaidFull {
		_, err = tx.ExecContext(ctx, `
			UPDATE sales SET amount_paid_cents = ?, balance_due_cents = ?, payment_status = ?, due_date = NULL, updated_at = ?
			WHERE id = ?
		`, newPaid, newBalance, newStatus, now, saleID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE sales SET amount_paid_cents = ?, balance_due_cents = ?, payment_status = ?, updated_at = ?
			WHERE id = ?
		`, newPaid, newBalance, newStatus, now, saleID)
	}
	if err != nil {
		return nil, err
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_history (id, sale_id, amount_cents, payment_date, method, notes, received_by)
		VALUES (?,?,?,?,?,?,?)
	`, payment.ID, saleID, payment.AmountCents, fmtTime(payment.PaymentDate), payment.Method, payment.Notes, payment.ReceivedBy)
	if err != nil {
		return nil, err
	}

	row = tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, saleID)
	updated, err := scanSale(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListPaymentHistory(ctx context.Context, saleID string) ([]domain.PaymentEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, amount_cents, payment_date, method, notes, received_by
		FROM payment_history
		WHERE sale_id = ?
		ORDER BY payment_date
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.PaymentEntry, 0, 4)
	for rows.Next() {
		var (
			p           domain.PaymentEntry
			paymentDate string
		)
		if err := rows.Scan(&p.ID, &p.SaleID, &p.AmountCents, &paymentDate, &p.Method, &p.Notes, &p.ReceivedBy); err != nil {
			return nil, err
		}
		p.PaymentDate = parseTime(paymentDate)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// --- reporting ---

func (s *Store) GetOverallStats(ctx context.Context) (domain.OverallStats, error) {
	var stats domain.OverallStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_amount_cents), 0),
			COALESCE(SUM(total_profit_cents), 0),
			COUNT(1),
			COALESCE(SUM(balance_due_cents), 0),
			COALESCE(SUM(CASE WHEN payment_status != 'paid_full' THEN 1 ELSE 0 END), 0)
		FROM sales WHERE status = 'completed'
	`).Scan(&stats.TotalRevenueCents, &stats.TotalProfitCents, &stats.TotalSales,
		&stats.OutstandingCents, &stats.PendingSalesCount)
	if err != nil {
		return domain.OverallStats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(i.quantity), 0)
		FROM sale_items i JOIN sales s ON s.id = i.sale_id
		WHERE s.status = 'completed'
	`).Scan(&stats.TotalItemsSold)
	if err != nil {
		return domain.OverallStats{}, err
	}
	return stats, nil
}

func (s *Store) GetFilteredStats(ctx context.Context, from time.Time, to time.Time) (domain.PeriodStats, error) {
	stats := domain.PeriodStats{From: from.UTC(), To: to.UTC()}

	// The range is inclusive on both ends.
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount_cents), 0), COALESCE(SUM(total_profit_cents), 0), COUNT(1)
		FROM sales
		WHERE status = 'completed' AND sale_date >= ? AND sale_date <= ?
	`, fmtTime(from), fmtTime(to)).Scan(&stats.RevenueCents, &stats.ProfitCents, &stats.SalesCount)
	if err != nil {
		return domain.PeriodStats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(i.quantity), 0)
		FROM sale_items i JOIN sales s ON s.id = i.sale_id
		WHERE s.status = 'completed' AND s.sale_date >= ? AND s.sale_date <= ?
	`, fmtTime(from), fmtTime(to)).Scan(&stats.ItemsSold)
	if err != nil {
		return domain.PeriodStats{}, err
	}
	return stats, nil
}

func (s *Store) GetInventoryStats(ctx context.Context) (domain.InventoryStats, error) {
	var stats domain.InventoryStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(1),
			COALESCE(SUM(stock_quantity), 0),
			COALESCE(SUM(stock_quantity * cost_price_cents), 0),
			COALESCE(SUM(stock_quantity * sell_price_cents), 0),
			COALESCE(SUM(CASE WHEN stock_quantity <= 0 THEN 1 ELSE 0 END), 0)
		FROM product_variants
		WHERE status = 'active'
	`).Scan(&stats.TotalVariants, &stats.TotalStockUnits, &stats.StockValueCostCents,
		&stats.StockValueRetailCents, &stats.OutOfStockVariants)
	if err != nil {
		return domain.InventoryStats{}, err
	}
	return stats, nil
}

func (s *Store) GetSalesReport(ctx context.Context, filter domain.SalesReportFilter) ([]domain.SaleReportRow, error) {
	query := `
		SELECT s.id, s.sale_date, COALESCE(c.name, ''), COALESCE(c.phone, ''),
			s.total_amount_cents, s.amount_paid_cents, s.balance_due_cents,
			s.payment_status, s.payment_method, s.due_date
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.status = 'completed'
	`
	args := make([]any, 0, 3)
	if filter.From != nil {
		query += ` AND s.sale_date >= ?`
		args = append(args, fmtTime(*filter.From))
	}
	if filter.To != nil {
		query += ` AND s.sale_date <= ?`
		args = append(args, fmtTime(*filter.To))
	}
	if filter.PaymentStatus != "" {
		query += ` AND s.payment_status = ?`
		args = append(args, filter.PaymentStatus)
	}
	query += ` ORDER BY s.sale_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := make([]domain.SaleReportRow, 0, 32)
	for rows.Next() {
		var (
			row      domain.SaleReportRow
			saleDate string
			dueDate  sql.NullString
		)
		if err := rows.Scan(&row.SaleID, &saleDate, &row.CustomerName, &row.CustomerPhone,
			&row.TotalAmountCents, &row.AmountPaidCents, &row.BalanceDueCents,
			&row.PaymentStatus, &row.PaymentMethod, &dueDate); err != nil {
			return nil, err
		}
		row.SaleDate = parseTime(saleDate)
		row.DueDate = scanNullTime(dueDate)
		report = append(report, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) GetSaleDetails(ctx context.Context, saleID string) (*domain.SaleDetail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, saleID)
		}
		return nil, err
	}

	detail := domain.SaleDetail{Sale: *sale}

	if sale.CustomerID != "" {
		var (
			cust      domain.Customer
			createdAt string
		)
		err := s.db.QueryRowContext(ctx, `
			SELECT id, name, phone, address, customer_type, note, created_at FROM customers WHERE id = ?
		`, sale.CustomerID).Scan(&cust.ID, &cust.Name, &cust.Phone, &cust.Address, &cust.CustomerType, &cust.Note, &createdAt)
		if err == nil {
			cust.CreatedAt = parseTime(createdAt)
			detail.Customer = &cust
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	items, err := s.loadSaleLines(ctx, saleID)
	if err != nil {
		return nil, err
	}
	detail.Items = items

	payments, err := s.ListPaymentHistory(ctx, saleID)
	if err != nil {
		return nil, err
	}
	detail.Payments = payments

	return &detail, nil
}

func (s *Store) loadSaleLines(ctx context.Context, saleID string) ([]domain.CartLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.variant_id, p.name, c.name, i.quantity,
			i.unit_price_cents, i.unit_cost_cents, i.line_total_cents, i.line_profit_cents,
			v.stock_quantity
		FROM sale_items i
		JOIN product_variants v ON v.id = i.variant_id
		JOIN products p ON p.id = v.product_id
		JOIN categories c ON c.id = v.category_id
		WHERE i.sale_id = ?
		ORDER BY p.name, c.name
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0, 8)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ItemID, &line.VariantID, &line.ProductName, &line.CategoryName, &line.Quantity,
			&line.UnitPriceCents, &line.UnitCostCents, &line.LineTotalCents, &line.LineProfitCents,
			&line.StockQuantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// GetCustomersWithPaymentStatus returns every customer with their most recent
// completed sale. The items slice is loaded once, for the first row's sale,
// and attached to every record; the outstanding-payments screen was built
// against that shape and renders only the standing columns.
func (s *Store) GetCustomersWithPaymentStatus(ctx context.Context) ([]domain.CustomerPaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cu.id, cu.name, cu.phone, cu.address, cu.customer_type, cu.note, cu.created_at,
			COALESCE(s.id, ''), s.sale_date,
			COALESCE(s.total_amount_cents, 0), COALESCE(s.amount_paid_cents, 0), COALESCE(s.balance_due_cents, 0),
			COALESCE(s.payment_status, ''), s.due_date
		FROM customers cu
		LEFT JOIN sales s ON s.id = (
			SELECT id FROM sales
			WHERE customer_id = cu.id AND status = 'completed'
			ORDER BY sale_date DESC LIMIT 1
		)
		ORDER BY cu.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.CustomerPaymentRecord, 0, 32)
	for rows.Next() {
		var (
			rec       domain.CustomerPaymentRecord
			createdAt string
			saleDate  sql.NullString
			dueDate   sql.NullString
		)
		if err := rows.Scan(&rec.Customer.ID, &rec.Customer.Name, &rec.Customer.Phone, &rec.Customer.Address,
			&rec.Customer.CustomerType, &rec.Customer.Note, &createdAt, &rec.SaleID, &saleDate,
			&rec.TotalAmountCents, &rec.AmountPaidCents, &rec.BalanceDueCents,
			&rec.PaymentStatus, &dueDate); err != nil {
			return nil, err
		}
		rec.Customer.CreatedAt = parseTime(createdAt)
		rec.SaleDate = scanNullTime(saleDate)
		rec.DueDate = scanNullTime(dueDate)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) > 0 && records[0].SaleID != "" {
		items, err := s.loadSaleLines(ctx, records[0].SaleID)
		if err != nil {
			return nil, err
		}
		for i := range records {
			records[i].Items = items
		}
	}
	return records, nil
}

// --- company and credentials ---

func (s *Store) GetCompany(ctx context.Context) (*domain.Company, error) {
	var c domain.Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, total_sales, total_profit_cents FROM company LIMIT 1
	`).Scan(&c.ID, &c.Name, &c.TotalSales, &c.TotalProfitCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpsertCompanyName(ctx context.Context, name string) (*domain.Company, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var c domain.Company
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, total_sales, total_profit_cents FROM company LIMIT 1
	`).Scan(&c.ID, &c.Name, &c.TotalSales, &c.TotalProfitCents)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `UPDATE company SET name = ? WHERE id = ?`, name, c.ID); err != nil {
			return nil, err
		}
		c.Name = name
	case errors.Is(err, sql.ErrNoRows):
		c = domain.Company{ID: xid.New("co"), Name: name}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO company (id, name, total_sales, total_profit_cents) VALUES (?,?,0,0)
		`, c.ID, c.Name); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetAppPasswordHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM app_password WHERE id = 1`).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return hash, nil
}

func (s *Store) SetAppPasswordHash(ctx context.Context, hash string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_password (id, password_hash, created_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET password_hash = excluded.password_hash, updated_at = excluded.updated_at
	`, hash, now, now)
	return err
}
