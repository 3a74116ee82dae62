package store

import (
	"context"
	"errors"
	"time"

	"stockman/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateVariant  = errors.New("variant already exists")
)

// VariantDeleteResult reports which branch of the delete ladder ran. Exactly
// one of Deleted or Deactivated is true on success; Message carries the
// operator-facing explanation either way.
type VariantDeleteResult struct {
	Deleted     bool   `json:"deleted"`
	Deactivated bool   `json:"deactivated"`
	Message     string `json:"message"`
}

type Repository interface {
	// Catalog.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByName(ctx context.Context, name string) (*domain.Product, error)
	CreateVariant(ctx context.Context, productID string, categoryName string, variant domain.ProductVariant) (*domain.ProductVariant, error)
	GetVariantByID(ctx context.Context, variantID string) (*domain.VariantDetail, error)
	ListVariants(ctx context.Context) ([]domain.VariantDetail, error)
	UpdateVariant(ctx context.Context, variantID string, update domain.VariantUpdateRequest) (*domain.VariantDetail, error)
	DeleteVariant(ctx context.Context, variantID string) (*VariantDeleteResult, error)
	SetVariantStatus(ctx context.Context, variantID string, status string, reason string) error

	// Cart.
	GetOrCreateDraftSale(ctx context.Context, cartSessionID string) (*domain.Sale, error)
	AddToCart(ctx context.Context, cartSessionID string, variantID string, quantity int) (*domain.CartView, error)
	GetCart(ctx context.Context, cartSessionID string) (*domain.CartView, error)
	UpdateCartItemQuantity(ctx context.Context, cartSessionID string, itemID string, quantity int) (*domain.CartView, error)
	RemoveFromCart(ctx context.Context, cartSessionID string, itemID string) (*domain.CartView, error)
	ClearCart(ctx context.Context, cartSessionID string) error

	// Ledger.
	CompleteSale(ctx context.Context, req domain.CompleteSaleRequest) (*domain.Sale, error)
	ProcessPartialPayment(ctx context.Context, saleID string, payment domain.PaymentEntry) (*domain.Sale, error)
	ListPaymentHistory(ctx context.Context, saleID string) ([]domain.PaymentEntry, error)

	// Reporting.
	GetOverallStats(ctx context.Context) (domain.OverallStats, error)
	GetFilteredStats(ctx context.Context, from time.Time, to time.Time) (domain.PeriodStats, error)
	GetInventoryStats(ctx context.Context) (domain.InventoryStats, error)
	GetSalesReport(ctx context.Context, filter domain.SalesReportFilter) ([]domain.SaleReportRow, error)
	GetSaleDetails(ctx context.Context, saleID string) (*domain.SaleDetail, error)
	GetCustomersWithPaymentStatus(ctx context.Context) ([]domain.CustomerPaymentRecord, error)

	// Company and credentials.
	GetCompany(ctx context.Context) (*domain.Company, error)
	UpsertCompanyName(ctx context.Context, name string) (*domain.Company, error)
	GetAppPasswordHash(ctx context.Context) (string, error)
	SetAppPasswordHash(ctx context.Context, hash string) error
}
