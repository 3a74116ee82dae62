package domain

import "time"

const (
	VariantStatusActive   = "active"
	VariantStatusInactive = "inactive"
)

const (
	SaleStatusDraft     = "draft"
	SaleStatusCompleted = "completed"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPartial  = "partial"
	PaymentStatusPaidFull = "paid_full"
)

// DefaultBrand is assumed when a product is created without one.
const DefaultBrand = "Local"

// GuestCustomerName is the display name given to walk-in checkouts that
// provide no customer name.
const GuestCustomerName = "guest"

// Product is the base catalog entry. Pricing and stock live on variants.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Brand       string    `json:"brand,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductVariant is the sellable unit: a (product, category) pairing that
// carries its own prices and stock. At most one variant exists per pairing.
type ProductVariant struct {
	ID             string     `json:"id"`
	ProductID      string     `json:"product_id"`
	CategoryID     string     `json:"category_id"`
	CostPriceCents int64      `json:"cost_price_cents"`
	SellPriceCents int64      `json:"sell_price_cents"`
	StockQuantity  int        `json:"stock_quantity"`
	ImagePath      string     `json:"image_path,omitempty"`
	Status         string     `json:"status"`
	StatusReason   string     `json:"status_reason,omitempty"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// VariantDetail is the denormalized display row: variant joined with its
// product and category names.
type VariantDetail struct {
	VariantID      string     `json:"variant_id"`
	ProductID      string     `json:"product_id"`
	ProductName    string     `json:"product_name"`
	Brand          string     `json:"brand,omitempty"`
	Description    string     `json:"description,omitempty"`
	CategoryID     string     `json:"category_id"`
	CategoryName   string     `json:"category_name"`
	CostPriceCents int64      `json:"cost_price_cents"`
	SellPriceCents int64      `json:"sell_price_cents"`
	StockQuantity  int        `json:"stock_quantity"`
	ImagePath      string     `json:"image_path,omitempty"`
	Status         string     `json:"status"`
	StatusReason   string     `json:"status_reason,omitempty"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
}

type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	CustomerType string    `json:"customer_type,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sale is both the draft cart (status draft) and the completed ledger entry
// (status completed). A draft belongs to exactly one cart session.
type Sale struct {
	ID               string     `json:"id"`
	CartSessionID    string     `json:"cart_session_id,omitempty"`
	CustomerID       string     `json:"customer_id,omitempty"`
	SaleDate         time.Time  `json:"sale_date"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	TotalProfitCents int64      `json:"total_profit_cents"`
	DiscountCents    int64      `json:"discount_amount_cents"`
	AmountPaidCents  int64      `json:"amount_paid_cents"`
	BalanceDueCents  int64      `json:"balance_due_cents"`
	PaymentStatus    string     `json:"payment_status,omitempty"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	CustomerType     string     `json:"customer_type,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Status           string     `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// SaleItem records snapshot prices: unit prices are copied from the variant
// when the line is added and never track later catalog edits.
type SaleItem struct {
	ID                   string `json:"id"`
	SaleID               string `json:"sale_id"`
	VariantID            string `json:"variant_id"`
	Quantity             int    `json:"quantity"`
	UnitPriceCents       int64  `json:"unit_price_cents"`
	UnitCostCents        int64  `json:"unit_cost_cents"`
	DiscountPerItemCents int64  `json:"discount_per_item_cents"`
	LineTotalCents       int64  `json:"line_total_cents"`
	LineProfitCents      int64  `json:"line_profit_cents"`
}

// CartLine is a sale item joined with display names for the cart view.
type CartLine struct {
	ItemID          string `json:"item_id"`
	VariantID       string `json:"variant_id"`
	ProductName     string `json:"product_name"`
	CategoryName    string `json:"category_name"`
	Quantity        int    `json:"quantity"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	UnitCostCents   int64  `json:"unit_cost_cents"`
	LineTotalCents  int64  `json:"line_total_cents"`
	LineProfitCents int64  `json:"line_profit_cents"`
	StockQuantity   int    `json:"stock_quantity"`
}

type PaymentEntry struct {
	ID          string    `json:"id"`
	SaleID      string    `json:"sale_id"`
	AmountCents int64     `json:"amount_cents"`
	PaymentDate time.Time `json:"payment_date"`
	Method      string    `json:"method,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ReceivedBy  string    `json:"received_by,omitempty"`
}

// Company is a singleton row holding the shop identity and cached ledger
// rollups (count and summed profit of completed sales).
type Company struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	TotalSales       int64  `json:"total_sales"`
	TotalProfitCents int64  `json:"total_profit_cents"`
}

// CompleteSaleRequest carries everything the checkout screen collects. A
// blank customer name checks out as the walk-in "guest" customer.
type CompleteSaleRequest struct {
	CartSessionID   string     `json:"cart_session_id"`
	CustomerName    string     `json:"customer_name,omitempty"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	CustomerAddress string     `json:"customer_address,omitempty"`
	PaymentMethod   string     `json:"payment_method" validate:"required"`
	CustomerType    string     `json:"customer_type,omitempty"`
	AmountPaidCents int64      `json:"amount_paid_cents" validate:"min=0"`
	DiscountCents   int64      `json:"discount_amount_cents" validate:"min=0"`
	SaleDate        *time.Time `json:"sale_date,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

type PartialPaymentRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Method      string `json:"method,omitempty"`
	Notes       string `json:"notes,omitempty"`
	ReceivedBy  string `json:"received_by,omitempty"`
}

type OverallStats struct {
	TotalRevenueCents int64 `json:"total_revenue_cents"`
	TotalProfitCents  int64 `json:"total_profit_cents"`
	TotalSales        int64 `json:"total_sales"`
	TotalItemsSold    int64 `json:"total_items_sold"`
	OutstandingCents  int64 `json:"outstanding_cents"`
	PendingSalesCount int64 `json:"pending_sales_count"`
}

type PeriodStats struct {
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	RevenueCents int64     `json:"revenue_cents"`
	ProfitCents  int64     `json:"profit_cents"`
	SalesCount   int64     `json:"sales_count"`
	ItemsSold    int64     `json:"items_sold"`
}

type InventoryStats struct {
	TotalVariants         int64 `json:"total_variants"`
	TotalStockUnits       int64 `json:"total_stock_units"`
	StockValueCostCents   int64 `json:"stock_value_cost_cents"`
	StockValueRetailCents int64 `json:"stock_value_retail_cents"`
	OutOfStockVariants    int64 `json:"out_of_stock_variants"`
}

// SaleReportRow is one completed sale with its customer for the report view.
type SaleReportRow struct {
	SaleID           string     `json:"sale_id"`
	SaleDate         time.Time  `json:"sale_date"`
	CustomerName     string     `json:"customer_name"`
	CustomerPhone    string     `json:"customer_phone,omitempty"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	AmountPaidCents  int64      `json:"amount_paid_cents"`
	BalanceDueCents  int64      `json:"balance_due_cents"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentMethod    string     `json:"payment_method"`
	DueDate          *time.Time `json:"due_date,omitempty"`
}

type SaleDetail struct {
	Sale     Sale           `json:"sale"`
	Customer *Customer      `json:"customer,omitempty"`
	Items    []CartLine     `json:"items"`
	Payments []PaymentEntry `json:"payments"`
}

// CustomerPaymentRecord is a customer with their latest sale standing and the
// items attached by the legacy aggregation (see store docs for its quirk).
type CustomerPaymentRecord struct {
	Customer         Customer   `json:"customer"`
	SaleID           string     `json:"sale_id,omitempty"`
	SaleDate         *time.Time `json:"sale_date,omitempty"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	AmountPaidCents  int64      `json:"amount_paid_cents"`
	BalanceDueCents  int64      `json:"balance_due_cents"`
	PaymentStatus    string     `json:"payment_status,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Items            []CartLine `json:"items,omitempty"`
}

type SalesReportFilter struct {
	From          *time.Time
	To            *time.Time
	PaymentStatus string
}

type ProductCreateRequest struct {
	Name        string `json:"name" validate:"required"`
	Brand       string `json:"brand,omitempty"`
	Description string `json:"description,omitempty"`
}

type VariantCreateRequest struct {
	CategoryName   string `json:"category_name" validate:"required"`
	CostPriceCents int64  `json:"cost_price_cents" validate:"min=0"`
	SellPriceCents int64  `json:"sell_price_cents" validate:"min=0"`
	StockQuantity  int    `json:"stock_quantity" validate:"min=0"`
	ImagePath      string `json:"image_path,omitempty"`
}

type VariantUpdateRequest struct {
	ProductName    *string `json:"product_name,omitempty"`
	Brand          *string `json:"brand,omitempty"`
	Description    *string `json:"description,omitempty"`
	CategoryName   *string `json:"category_name,omitempty"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty"`
	SellPriceCents *int64  `json:"sell_price_cents,omitempty"`
	StockQuantity  *int    `json:"stock_quantity,omitempty"`
	ImagePath      *string `json:"image_path,omitempty"`
}

type AddToCartRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type CartView struct {
	SaleID           string     `json:"sale_id"`
	CartSessionID    string     `json:"cart_session_id"`
	Lines            []CartLine `json:"lines"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	TotalProfitCents int64      `json:"total_profit_cents"`
}

type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" validate:"required,min=4"`
}
