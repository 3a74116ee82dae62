package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockman/internal/cache"
	"stockman/internal/domain"
	"stockman/internal/store"
)

// DefaultCartSession is used when the caller does not name a session. The
// single-terminal desktop shell only ever uses this one.
const DefaultCartSession = "default"

const statsCacheTTL = 30 * time.Second

type Service struct {
	repo   store.Repository
	cache  cache.ReportCache
	logger zerolog.Logger
}

func New(repo store.Repository, reportCache cache.ReportCache, logger zerolog.Logger) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}

	return &Service{
		repo:   repo,
		cache:  reportCache,
		logger: logger,
	}
}

// normalizeEnum folds operator-entered labels like "Bank Transfer" or
// "Cash/Card" into stable snake_case keys.
func normalizeEnum(raw string) string {
	out := strings.ToLower(strings.TrimSpace(raw))
	out = strings.ReplaceAll(out, " ", "_")
	out = strings.ReplaceAll(out, "/", "_")
	return out
}

func normalizeSession(cartSessionID string) string {
	session := strings.TrimSpace(cartSessionID)
	if session == "" {
		return DefaultCartSession
	}
	return session
}

// invalidateStats drops cached aggregates after a write. Failures are logged
// and swallowed; the cache entries expire on TTL anyway.
func (s *Service) invalidateStats(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("report cache invalidation failed")
	}
}

// --- catalog ---

func (s *Service) CreateBaseProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{Name: req.Name, Brand: req.Brand, Description: req.Description})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) CreateVariant(ctx context.Context, productID string, req domain.VariantCreateRequest) (domain.ProductVariant, error) {
	productID = strings.TrimSpace(productID)
	req.CategoryName = strings.TrimSpace(req.CategoryName)
	if productID == "" {
		return domain.ProductVariant{}, fmt.Errorf("%w: product id is required", store.ErrInvalidInput)
	}
	if req.CategoryName == "" {
		return domain.ProductVariant{}, fmt.Errorf("%w: category name is required", store.ErrInvalidInput)
	}
	if req.CostPriceCents < 0 || req.SellPriceCents < 0 || req.StockQuantity < 0 {
		return domain.ProductVariant{}, fmt.Errorf("%w: prices and stock cannot be negative", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateVariant(ctx, productID, req.CategoryName, domain.ProductVariant{
		CostPriceCents: req.CostPriceCents,
		SellPriceCents: req.SellPriceCents,
		StockQuantity:  req.StockQuantity,
		ImagePath:      strings.TrimSpace(req.ImagePath),
	})
	if err != nil {
		return domain.ProductVariant{}, err
	}

	s.invalidateStats(ctx)
	return *created, nil
}

// AddCatalogEntry is the one-shot add flow: the base product is resolved by
// name (created when absent) and a variant is attached under the category.
func (s *Service) AddCatalogEntry(ctx context.Context, productName string, brand string, description string, req domain.VariantCreateRequest) (domain.ProductVariant, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return domain.ProductVariant{}, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}

	product, err := s.repo.GetProductByName(ctx, productName)
	if errors.Is(err, store.ErrNotFound) {
		product, err = s.repo.CreateProduct(ctx, domain.Product{
			Name:        productName,
			Brand:       strings.TrimSpace(brand),
			Description: strings.TrimSpace(description),
		})
	}
	if err != nil {
		return domain.ProductVariant{}, err
	}

	return s.CreateVariant(ctx, product.ID, req)
}

func (s *Service) GetVariant(ctx context.Context, variantID string) (domain.VariantDetail, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.VariantDetail{}, fmt.Errorf("%w: variant id is required", store.ErrInvalidInput)
	}

	detail, err := s.repo.GetVariantByID(ctx, variantID)
	if err != nil {
		return domain.VariantDetail{}, err
	}
	return *detail, nil
}

// ListCatalog returns every variant, inactive ones included, ordered by
// product then category name.
func (s *Service) ListCatalog(ctx context.Context) ([]domain.VariantDetail, error) {
	return s.repo.ListVariants(ctx)
}

func (s *Service) EditVariant(ctx context.Context, variantID string, update domain.VariantUpdateRequest) (domain.VariantDetail, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.VariantDetail{}, fmt.Errorf("%w: variant id is required", store.ErrInvalidInput)
	}

	if update.ProductName != nil {
		trimmed := strings.TrimSpace(*update.ProductName)
		update.ProductName = &trimmed
	}
	if update.Brand != nil {
		trimmed := strings.TrimSpace(*update.Brand)
		update.Brand = &trimmed
	}
	if update.CategoryName != nil {
		trimmed := strings.TrimSpace(*update.CategoryName)
		update.CategoryName = &trimmed
	}

	detail, err := s.repo.UpdateVariant(ctx, variantID, update)
	if err != nil {
		return domain.VariantDetail{}, err
	}

	s.invalidateStats(ctx)
	return *detail, nil
}

// DeleteVariant runs the delete ladder. Refusals surface as a result with
// Message set and a wrapped ErrInvalidInput; callers show the message and move
// on.
func (s *Service) DeleteVariant(ctx context.Context, variantID string) (store.VariantDeleteResult, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return store.VariantDeleteResult{}, fmt.Errorf("%w: variant id is required", store.ErrInvalidInput)
	}

	result, err := s.repo.DeleteVariant(ctx, variantID)
	if err != nil {
		if result != nil {
			return *result, err
		}
		return store.VariantDeleteResult{}, err
	}

	s.invalidateStats(ctx)
	return *result, nil
}

func (s *Service) ReactivateVariant(ctx context.Context, variantID string) (domain.VariantDetail, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.VariantDetail{}, fmt.Errorf("%w: variant id is required", store.ErrInvalidInput)
	}

	if err := s.repo.SetVariantStatus(ctx, variantID, domain.VariantStatusActive, ""); err != nil {
		return domain.VariantDetail{}, err
	}

	s.invalidateStats(ctx)
	return s.GetVariant(ctx, variantID)
}

// --- cart ---

func (s *Service) Cart(ctx context.Context, cartSessionID string) (domain.CartView, error) {
	view, err := s.repo.GetCart(ctx, normalizeSession(cartSessionID))
	if err != nil {
		return domain.CartView{}, err
	}
	return *view, nil
}

func (s *Service) AddToCart(ctx context.Context, cartSessionID string, req domain.AddToCartRequest) (domain.CartView, error) {
	req.VariantID = strings.TrimSpace(req.VariantID)
	if req.VariantID == "" {
		return domain.CartView{}, fmt.Errorf("%w: variant id is required", store.ErrInvalidInput)
	}
	if req.Quantity < 1 {
		return domain.CartView{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	view, err := s.repo.AddToCart(ctx, normalizeSession(cartSessionID), req.VariantID, req.Quantity)
	if err != nil {
		return domain.CartView{}, err
	}
	return *view, nil
}

func (s *Service) UpdateCartItem(ctx context.Context, cartSessionID string, itemID string, quantity int) (domain.CartView, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CartView{}, fmt.Errorf("%w: cart item id is required", store.ErrInvalidInput)
	}

	view, err := s.repo.UpdateCartItemQuantity(ctx, normalizeSession(cartSessionID), itemID, quantity)
	if err != nil {
		return domain.CartView{}, err
	}
	return *view, nil
}

func (s *Service) RemoveCartItem(ctx context.Context, cartSessionID string, itemID string) (domain.CartView, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CartView{}, fmt.Errorf("%w: cart item id is required", store.ErrInvalidInput)
	}

	view, err := s.repo.RemoveFromCart(ctx, normalizeSession(cartSessionID), itemID)
	if err != nil {
		return domain.CartView{}, err
	}
	return *view, nil
}

func (s *Service) ClearCart(ctx context.Context, cartSessionID string) error {
	return s.repo.ClearCart(ctx, normalizeSession(cartSessionID))
}

// --- ledger ---

func (s *Service) CompleteSale(ctx context.Context, req domain.CompleteSaleRequest) (domain.Sale, error) {
	req.CartSessionID = normalizeSession(req.CartSessionID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerAddress = strings.TrimSpace(req.CustomerAddress)
	req.PaymentMethod = normalizeEnum(req.PaymentMethod)
	req.CustomerType = normalizeEnum(req.CustomerType)
	req.Notes = strings.TrimSpace(req.Notes)

	// Walk-in checkouts leave the name blank; they go onto the ledger as the
	// generated "guest" customer.
	if req.CustomerName == "" {
		req.CustomerName = domain.GuestCustomerName
	}
	if req.PaymentMethod == "" {
		return domain.Sale{}, fmt.Errorf("%w: payment method is required", store.ErrInvalidInput)
	}
	if req.AmountPaidCents < 0 {
		return domain.Sale{}, fmt.Errorf("%w: amount paid cannot be negative", store.ErrInvalidInput)
	}
	if req.DiscountCents < 0 {
		return domain.Sale{}, fmt.Errorf("%w: discount cannot be negative", store.ErrInvalidInput)
	}

	sale, err := s.repo.CompleteSale(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info().
		Str("sale_id", sale.ID).
		Str("payment_status", sale.PaymentStatus).
		Int64("total_cents", sale.TotalAmountCents).
		Int64("paid_cents", sale.AmountPaidCents).
		Msg("sale completed")

	s.invalidateStats(ctx)
	return *sale, nil
}

func (s *Service) RecordPayment(ctx context.Context, saleID string, req domain.PartialPaymentRequest) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidInput)
	}
	if req.AmountCents <= 0 {
		return domain.Sale{}, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidInput)
	}

	sale, err := s.repo.ProcessPartialPayment(ctx, saleID, domain.PaymentEntry{
		AmountCents: req.AmountCents,
		Method:      normalizeEnum(req.Method),
		Notes:       strings.TrimSpace(req.Notes),
		ReceivedBy:  strings.TrimSpace(req.ReceivedBy),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info().
		Str("sale_id", sale.ID).
		Str("payment_status", sale.PaymentStatus).
		Int64("balance_cents", sale.BalanceDueCents).
		Msg("payment recorded")

	s.invalidateStats(ctx)
	return *sale, nil
}

func (s *Service) PaymentHistory(ctx context.Context, saleID string) ([]domain.PaymentEntry, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return nil, fmt.Errorf("%w: sale id is required", store.ErrInvalidInput)
	}
	return s.repo.ListPaymentHistory(ctx, saleID)
}

// --- reporting ---

func (s *Service) OverallStats(ctx context.Context) (domain.OverallStats, error) {
	if cached, ok, err := s.cache.GetOverallStats(ctx); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("report cache read failed")
	}

	stats, err := s.repo.GetOverallStats(ctx)
	if err != nil {
		return domain.OverallStats{}, err
	}

	if err := s.cache.SetOverallStats(ctx, stats, statsCacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("report cache write failed")
	}
	return stats, nil
}

func (s *Service) FilteredStats(ctx context.Context, from time.Time, to time.Time) (domain.PeriodStats, error) {
	if from.After(to) {
		return domain.PeriodStats{}, fmt.Errorf("%w: range start is after range end", store.ErrInvalidInput)
	}
	return s.repo.GetFilteredStats(ctx, from, to)
}

func (s *Service) InventoryStats(ctx context.Context) (domain.InventoryStats, error) {
	if cached, ok, err := s.cache.GetInventoryStats(ctx); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("report cache read failed")
	}

	stats, err := s.repo.GetInventoryStats(ctx)
	if err != nil {
		return domain.InventoryStats{}, err
	}

	if err := s.cache.SetInventoryStats(ctx, stats, statsCacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("report cache write failed")
	}
	return stats, nil
}

func (s *Service) SalesReport(ctx context.Context, filter domain.SalesReportFilter) ([]domain.SaleReportRow, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, fmt.Errorf("%w: range start is after range end", store.ErrInvalidInput)
	}
	filter.PaymentStatus = normalizeEnum(filter.PaymentStatus)
	switch filter.PaymentStatus {
	case "", domain.PaymentStatusPending, domain.PaymentStatusPartial, domain.PaymentStatusPaidFull:
	default:
		return nil, fmt.Errorf("%w: unknown payment status %q", store.ErrInvalidInput, filter.PaymentStatus)
	}
	return s.repo.GetSalesReport(ctx, filter)
}

func (s *Service) SaleDetails(ctx context.Context, saleID string) (domain.SaleDetail, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleDetail{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidInput)
	}

	detail, err := s.repo.GetSaleDetails(ctx, saleID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	return *detail, nil
}

func (s *Service) CustomersWithPaymentStatus(ctx context.Context) ([]domain.CustomerPaymentRecord, error) {
	return s.repo.GetCustomersWithPaymentStatus(ctx)
}

// --- company ---

func (s *Service) Company(ctx context.Context) (domain.Company, error) {
	company, err := s.repo.GetCompany(ctx)
	if err != nil {
		return domain.Company{}, err
	}
	return *company, nil
}

func (s *Service) SetCompanyName(ctx context.Context, name string) (domain.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Company{}, fmt.Errorf("%w: company name is required", store.ErrInvalidInput)
	}

	company, err := s.repo.UpsertCompanyName(ctx, name)
	if err != nil {
		return domain.Company{}, err
	}
	return *company, nil
}
