package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stockman/internal/domain"
	"stockman/internal/store"
	"stockman/internal/xid"
)

// Store is an in-memory Repository used by tests and by demo mode when no
// database path is configured. Semantics mirror the SQLite store.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	categories   map[string]domain.Category
	variants     map[string]domain.ProductVariant
	customers    map[string]domain.Customer
	sales        map[string]domain.Sale
	itemsBySale  map[string][]domain.SaleItem
	paymentsBy   map[string][]domain.PaymentEntry
	company      *domain.Company
	passwordHash string
}

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		categories:  make(map[string]domain.Category),
		variants:    make(map[string]domain.ProductVariant),
		customers:   make(map[string]domain.Customer),
		sales:       make(map[string]domain.Sale),
		itemsBySale: make(map[string][]domain.SaleItem),
		paymentsBy:  make(map[string][]domain.PaymentEntry),
	}
}

// NewSeeded returns a store preloaded with a small catalog for demo mode.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	seed := []struct {
		product  string
		category string
		cost     int64
		sell     int64
		stock    int
	}{
		{"Basmati Rice 5kg", "Grocery", 95000, 120000, 40},
		{"Basmati Rice 1kg", "Grocery", 21000, 26000, 80},
		{"Sunflower Oil 1L", "Grocery", 52000, 62000, 35},
		{"Ceramic Mug", "Kitchenware", 18000, 32000, 60},
		{"Steel Water Bottle", "Kitchenware", 41000, 65000, 25},
		{"Notebook A5", "Stationery", 9000, 16000, 120},
		{"Ballpoint Pen", "Stationery", 1500, 3000, 300},
	}

	byName := map[string]string{}
	for _, row := range seed {
		productID, ok := byName[row.product]
		if !ok {
			p, _ := s.CreateProduct(ctx, domain.Product{Name: row.product})
			productID = p.ID
			byName[row.product] = productID
		}
		_, _ = s.CreateVariant(ctx, productID, row.category, domain.ProductVariant{
			CostPriceCents: row.cost,
			SellPriceCents: row.sell,
			StockQuantity:  row.stock,
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("stockman"), bcrypt.DefaultCost)
	if err == nil {
		s.passwordHash = string(hash)
	}
	return s
}

func (s *Store) Close() error { return nil }

// --- catalog ---

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

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
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Product
	for _, p := range s.products {
		if p.Name != name {
			continue
		}
		p := p
		if best == nil || p.CreatedAt.Before(best.CreatedAt) {
			best = &p
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (s *Store) getOrCreateCategoryLocked(name string) string {
	for _, c := range s.categories {
		if c.Name == name {
			return c.ID
		}
	}
	id := xid.New("cat")
	s.categories[id] = domain.Category{ID: id, Name: name}
	return id
}

func (s *Store) CreateVariant(_ context.Context, productID string, categoryName string, variant domain.ProductVariant) (*domain.ProductVariant, error) {
	if productID == "" || categoryName == "" {
		return nil, fmt.Errorf("%w: product and category are required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}

	categoryID := s.getOrCreateCategoryLocked(categoryName)
	for _, v := range s.variants {
		if v.ProductID == productID && v.CategoryID == categoryID {
			return nil, fmt.Errorf("%w: %s in category %s", store.ErrDuplicateVariant, productID, categoryName)
		}
	}

	variant.ID = xid.New("var")
	variant.ProductID = productID
	variant.CategoryID = categoryID
	variant.Status = domain.VariantStatusActive
	variant.StatusReason = ""
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = time.Now().UTC()
	}
	s.variants[variant.ID] = variant
	created := variant
	return &created, nil
}

func (s *Store) detailLocked(v domain.ProductVariant) domain.VariantDetail {
	p := s.products[v.ProductID]
	c := s.categories[v.CategoryID]
	return domain.VariantDetail{
		VariantID:      v.ID,
		ProductID:      v.ProductID,
		ProductName:    p.Name,
		Brand:          p.Brand,
		Description:    p.Description,
		CategoryID:     v.CategoryID,
		CategoryName:   c.Name,
		CostPriceCents: v.CostPriceCents,
		SellPriceCents: v.SellPriceCents,
		StockQuantity:  v.StockQuantity,
		ImagePath:      v.ImagePath,
		Status:         v.Status,
		StatusReason:   v.StatusReason,
		DeactivatedAt:  v.DeactivatedAt,
	}
}

func (s *Store) GetVariantByID(_ context.Context, variantID string) (*domain.VariantDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variants[variantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	detail := s.detailLocked(v)
	return &detail, nil
}

func (s *Store) ListVariants(_ context.Context) ([]domain.VariantDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.VariantDetail, 0, len(s.variants))
	for _, v := range s.variants {
		variants = append(variants, s.detailLocked(v))
	}
	sort.Slice(variants, func(i, j int) bool {
		if variants[i].ProductName != variants[j].ProductName {
			return variants[i].ProductName < variants[j].ProductName
		}
		return variants[i].CategoryName < variants[j].CategoryName
	})
	return variants, nil
}

func (s *Store) UpdateVariant(_ context.Context, variantID string, update domain.VariantUpdateRequest) (*domain.VariantDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[variantID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if update.ProductName != nil {
		if *update.ProductName == "" {
			return nil, fmt.Errorf("%w: product name cannot be empty", store.ErrInvalidInput)
		}
		p := s.products[v.ProductID]
		p.Name = *update.ProductName
		s.products[v.ProductID] = p
	}
	if update.Brand != nil {
		p := s.products[v.ProductID]
		p.Brand = *update.Brand
		s.products[v.ProductID] = p
	}
	if update.Description != nil {
		p := s.products[v.ProductID]
		p.Description = *update.Description
		s.products[v.ProductID] = p
	}
	if update.CategoryName != nil {
		if *update.CategoryName == "" {
			return nil, fmt.Errorf("%w: category name cannot be empty", store.ErrInvalidInput)
		}
		c := s.categories[v.CategoryID]
		c.Name = *update.CategoryName
		s.categories[v.CategoryID] = c
	}
	if update.CostPriceCents != nil {
		if *update.CostPriceCents < 0 {
			return nil, fmt.Errorf("%w: cost price cannot be negative", store.ErrInvalidInput)
		}
		v.CostPriceCents = *update.CostPriceCents
	}
	if update.SellPriceCents != nil {
		if *update.SellPriceCents < 0 {
			return nil, fmt.Errorf("%w: sell price cannot be negative", store.ErrInvalidInput)
		}
		v.SellPriceCents = *update.SellPriceCents
	}
	if update.StockQuantity != nil {
		if *update.StockQuantity < 0 {
			return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrInvalidInput)
		}
		v.StockQuantity = *update.StockQuantity
	}
	if update.ImagePath != nil {
		v.ImagePath = *update.ImagePath
	}

	s.variants[variantID] = v
	detail := s.detailLocked(v)
	return &detail, nil
}

func (s *Store) DeleteVariant(_ context.Context, variantID string) (*store.VariantDeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[variantID]
	if !ok {
		return nil, store.ErrNotFound
	}

	var completedRefs, draftRefs int
	for saleID, items := range s.itemsBySale {
		sale, ok := s.sales[saleID]
		if !ok {
			continue
		}
		for _, item := range items {
			if item.VariantID != variantID {
				continue
			}
			switch sale.Status {
			case domain.SaleStatusCompleted:
				completedRefs++
			case domain.SaleStatusDraft:
				draftRefs++
			}
		}
	}

	switch {
	case completedRefs > 0:
		now := time.Now().UTC()
		v.Status = domain.VariantStatusInactive
		v.StatusReason = "Product was part of sales history - cannot be deleted"
		v.DeactivatedAt = &now
		s.variants[variantID] = v
		return &store.VariantDeleteResult{
			Deactivated: true,
			Message:     "Product was part of sales history - it has been deactivated instead",
		}, nil

	case draftRefs > 0:
		return &store.VariantDeleteResult{
			Message: "Product is in an open cart - remove it from the cart first",
		}, fmt.Errorf("%w: variant is referenced by an open cart", store.ErrInvalidInput)

	default:
		delete(s.variants, variantID)

		productOrphaned := true
		categoryOrphaned := true
		for _, other := range s.variants {
			if other.ProductID == v.ProductID {
				productOrphaned = false
			}
			if other.CategoryID == v.CategoryID {
				categoryOrphaned = false
			}
		}
		if productOrphaned {
			delete(s.products, v.ProductID)
		}
		if categoryOrphaned {
			delete(s.categories, v.CategoryID)
		}
		return &store.VariantDeleteResult{Deleted: true, Message: "Product deleted"}, nil
	}
}

func (s *Store) SetVariantStatus(_ context.Context, variantID string, status string, reason string) error {
	if status != domain.VariantStatusActive && status != domain.VariantStatusInactive {
		return fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[variantID]
	if !ok {
		return store.ErrNotFound
	}
	v.Status = status
	v.StatusReason = reason
	if status == domain.VariantStatusInactive {
		now := time.Now().UTC()
		v.DeactivatedAt = &now
	} else {
		v.DeactivatedAt = nil
	}
	s.variants[variantID] = v
	return nil
}

// --- cart ---

func (s *Store) draftLocked(cartSessionID string) *domain.Sale {
	for id, sale := range s.sales {
		if sale.CartSessionID == cartSessionID && sale.Status == domain.SaleStatusDraft {
			sale := s.sales[id]
			return &sale
		}
	}
	return nil
}

func (s *Store) createDraftLocked(cartSessionID string) *domain.Sale {
	now := time.Now().UTC()
	sale := domain.Sale{
		ID:            xid.New("sale"),
		CartSessionID: cartSessionID,
		SaleDate:      now,
		Status:        domain.SaleStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.sales[sale.ID] = sale
	return &sale
}

func (s *Store) GetOrCreateDraftSale(_ context.Context, cartSessionID string) (*domain.Sale, error) {
	if cartSessionID == "" {
		return nil, fmt.Errorf("%w: cart session id is required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale := s.draftLocked(cartSessionID); sale != nil {
		return sale, nil
	}
	return s.createDraftLocked(cartSessionID), nil
}

func (s *Store) updateTotalsLocked(saleID string) {
	sale := s.sales[saleID]
	sale.TotalAmountCents = 0
	sale.TotalProfitCents = 0
	for _, item := range s.itemsBySale[saleID] {
		sale.TotalAmountCents += item.LineTotalCents
		sale.TotalProfitCents += item.LineProfitCents
	}
	s.sales[saleID] = sale
}

func (s *Store) cartViewLocked(sale domain.Sale) *domain.CartView {
	items := s.itemsBySale[sale.ID]
	lines := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		v := s.variants[item.VariantID]
		lines = append(lines, domain.CartLine{
			ItemID:          item.ID,
			VariantID:       item.VariantID,
			ProductName:     s.products[v.ProductID].Name,
			CategoryName:    s.categories[v.CategoryID].Name,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			UnitCostCents:   item.UnitCostCents,
			LineTotalCents:  item.LineTotalCents,
			LineProfitCents: item.LineProfitCents,
			StockQuantity:   v.StockQuantity,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductName != lines[j].ProductName {
			return lines[i].ProductName < lines[j].ProductName
		}
		return lines[i].CategoryName < lines[j].CategoryName
	})
	return &domain.CartView{
		SaleID:           sale.ID,
		CartSessionID:    sale.CartSessionID,
		Lines:            lines,
		TotalAmountCents: sale.TotalAmountCents,
		TotalProfitCents: sale.TotalProfitCents,
	}
}

func (s *Store) AddToCart(_ context.Context, cartSessionID string, variantID string, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale := s.draftLocked(cartSessionID)
	if sale == nil {
		sale = s.createDraftLocked(cartSessionID)
	}

	v, ok := s.variants[variantID]
	if !ok {
		return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
	}
	if v.Status != domain.VariantStatusActive {
		return nil, fmt.Errorf("%w: product is not active", store.ErrInvalidInput)
	}

	items := s.itemsBySale[sale.ID]
	merged := false
	for i, item := range items {
		if item.VariantID != variantID {
			continue
		}
		newQty := item.Quantity + quantity
		if newQty > v.StockQuantity {
			return nil, fmt.Errorf("%w: available %d", store.ErrInsufficientStock, v.StockQuantity)
		}
		item.Quantity = newQty
		item.LineTotalCents = item.UnitPriceCents * int64(newQty)
		item.LineProfitCents = (item.UnitPriceCents - item.UnitCostCents) * int64(newQty)
		items[i] = item
		merged = true
		break
	}
	if !merged {
		if quantity > v.StockQuantity {
			return nil, fmt.Errorf("%w: available %d", store.ErrInsufficientStock, v.StockQuantity)
		}
		items = append(items, domain.SaleItem{
			ID:              xid.New("item"),
			SaleID:          sale.ID,
			VariantID:       variantID,
			Quantity:        quantity,
			UnitPriceCents:  v.SellPriceCents,
			UnitCostCents:   v.CostPriceCents,
			LineTotalCents:  v.SellPriceCents * int64(quantity),
			LineProfitCents: (v.SellPriceCents - v.CostPriceCents) * int64(quantity),
		})
	}
	s.itemsBySale[sale.ID] = items
	s.updateTotalsLocked(sale.ID)
	return s.cartViewLocked(s.sales[sale.ID]), nil
}

func (s *Store) GetCart(_ context.Context, cartSessionID string) (*domain.CartView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale := s.draftLocked(cartSessionID)
	if sale == nil {
		return &domain.CartView{CartSessionID: cartSessionID, Lines: []domain.CartLine{}}, nil
	}
	return s.cartViewLocked(*sale), nil
}

func (s *Store) UpdateCartItemQuantity(ctx context.Context, cartSessionID string, itemID string, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return s.RemoveFromCart(ctx, cartSessionID, itemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale := s.draftLocked(cartSessionID)
	if sale == nil {
		return nil, fmt.Errorf("%w: no open cart", store.ErrNotFound)
	}

	items := s.itemsBySale[sale.ID]
	for i, item := range items {
		if item.ID != itemID {
			continue
		}
		v := s.variants[item.VariantID]
		if quantity > v.StockQuantity {
			return nil, fmt.Errorf("%w: available %d", store.ErrInsufficientStock, v.StockQuantity)
		}
		item.Quantity = quantity
		item.LineTotalCents = item.UnitPriceCents * int64(quantity)
		item.LineProfitCents = (item.UnitPriceCents - item.UnitCostCents) * int64(quantity)
		items[i] = item
		s.itemsBySale[sale.ID] = items
		s.updateTotalsLocked(sale.ID)
		return s.cartViewLocked(s.sales[sale.ID]), nil
	}
	return nil, fmt.Errorf("%w: cart item %s", store.ErrNotFound, itemID)
}

func (s *Store) RemoveFromCart(_ context.Context, cartSessionID string, itemID string) (*domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := s.draftLocked(cartSessionID)
	if sale == nil {
		return nil, fmt.Errorf("%w: no open cart", store.ErrNotFound)
	}

	items := s.itemsBySale[sale.ID]
	for i, item := range items {
		if item.ID != itemID {
			continue
		}
		s.itemsBySale[sale.ID] = append(items[:i], items[i+1:]...)
		s.updateTotalsLocked(sale.ID)
		return s.cartViewLocked(s.sales[sale.ID]), nil
	}
	return nil, fmt.Errorf("%w: cart item %s", store.ErrNotFound, itemID)
}

func (s *Store) ClearCart(_ context.Context, cartSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := s.draftLocked(cartSessionID)
	if sale == nil {
		return nil
	}
	delete(s.itemsBySale, sale.ID)
	delete(s.sales, sale.ID)
	return nil
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

func (s *Store) resolveCustomerLocked(req domain.CompleteSaleRequest, saleID string) string {
	if req.CustomerPhone != "" {
		for _, c := range s.customers {
			if c.Phone == req.CustomerPhone {
				return c.ID
			}
		}
	}
	id := xid.New("cust")
	s.customers[id] = domain.Customer{
		ID:           id,
		Name:         req.CustomerName,
		Phone:        req.CustomerPhone,
		Address:      req.CustomerAddress,
		CustomerType: req.CustomerType,
		Note:         fmt.Sprintf("Added during sale %s", saleID),
		CreatedAt:    time.Now().UTC(),
	}
	return id
}

func (s *Store) refreshCompanyLocked() {
	if s.company == nil {
		return
	}
	var count, profit int64
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		count++
		profit += sale.TotalProfitCents
	}
	s.company.TotalSales = count
	s.company.TotalProfitCents = profit
}

func (s *Store) CompleteSale(_ context.Context, req domain.CompleteSaleRequest) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := s.draftLocked(req.CartSessionID)
	if sale == nil || len(s.itemsBySale[sale.ID]) == 0 {
		return nil, fmt.Errorf("%w: no items in cart", store.ErrInvalidInput)
	}
	if req.AmountPaidCents < 0 {
		return nil, fmt.Errorf("%w: amount paid cannot be negative", store.ErrInvalidInput)
	}
	if req.AmountPaidCents > sale.TotalAmountCents {
		req.AmountPaidCents = sale.TotalAmountCents
	}

	customerID := s.resolveCustomerLocked(req, sale.ID)

	saleDate := time.Now().UTC()
	if req.SaleDate != nil {
		saleDate = req.SaleDate.UTC()
	}
	paymentStatus := derivePaymentStatus(sale.TotalAmountCents, req.AmountPaidCents)
	dueDate := req.DueDate
	if paymentStatus == domain.PaymentStatusPaidFull {
		dueDate = nil
	}

	sale.CustomerID = customerID
	sale.SaleDate = saleDate
	sale.DiscountCents = req.DiscountCents
	sale.AmountPaidCents = req.AmountPaidCents
	sale.BalanceDueCents = sale.TotalAmountCents - req.AmountPaidCents
	sale.PaymentStatus = paymentStatus
	sale.PaymentMethod = req.PaymentMethod
	sale.CustomerType = req.CustomerType
	sale.DueDate = dueDate
	sale.Status = domain.SaleStatusCompleted
	sale.Notes = req.Notes
	sale.UpdatedAt = time.Now().UTC()
	s.sales[sale.ID] = *sale

	if req.AmountPaidCents > 0 {
		s.paymentsBy[sale.ID] = append(s.paymentsBy[sale.ID], domain.PaymentEntry{
			ID:          xid.New("pay"),
			SaleID:      sale.ID,
			AmountCents: req.AmountPaidCents,
			PaymentDate: saleDate,
			Method:      req.PaymentMethod,
			Notes:       "Initial payment during sale",
		})
	}

	for _, item := range s.itemsBySale[sale.ID] {
		v := s.variants[item.VariantID]
		v.StockQuantity -= item.Quantity
		s.variants[item.VariantID] = v
	}

	s.refreshCompanyLocked()

	completed := s.sales[sale.ID]
	return &completed, nil
}

func (s *Store) ProcessPartialPayment(_ context.Context, saleID string, payment domain.PaymentEntry) (*domain.Sale, error) {
	if payment.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, saleID)
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, fmt.Errorf("%w: payments apply to completed sales only", store.ErrInvalidInput)
	}
	if payment.AmountCents > sale.BalanceDueCents {
		return nil, fmt.Errorf("%w: payment cannot exceed outstanding balance of %.2f",
			store.ErrInvalidInput, float64(sale.BalanceDueCents)/100)
	}

	sale.AmountPaidCents += payment.AmountCents
	sale.BalanceDueCents = sale.TotalAmountCents - sale.AmountPaidCents
	sale.PaymentStatus = derivePaymentStatus(sale.TotalAmountCents, sale.AmountPaidCents)
	if sale.PaymentStatus == domain.PaymentStatusPaidFull {
		sale.DueDate = nil
	}
	sale.UpdatedAt = time.Now().UTC()
	s.sales[saleID] = sale

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = time.Now().UTC()
	}
	payment.SaleID = saleID
	s.paymentsBy[saleID] = append(s.paymentsBy[saleID], payment)

	updated := sale
	return &updated, nil
}

func (s *Store) ListPaymentHistory(_ context.Context, saleID string) ([]domain.PaymentEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.PaymentEntry, len(s.paymentsBy[saleID]))
	copy(payments, s.paymentsBy[saleID])
	sort.Slice(payments, func(i, j int) bool { return payments[i].PaymentDate.Before(payments[j].PaymentDate) })
	return payments, nil
}

// --- reporting ---

func (s *Store) GetOverallStats(_ context.Context) (domain.OverallStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.OverallStats
	for id, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		stats.TotalRevenueCents += sale.TotalAmountCents
		stats.TotalProfitCents += sale.TotalProfitCents
		stats.TotalSales++
		stats.OutstandingCents += sale.BalanceDueCents
		if sale.PaymentStatus != domain.PaymentStatusPaidFull {
			stats.PendingSalesCount++
		}
		for _, item := range s.itemsBySale[id] {
			stats.TotalItemsSold += int64(item.Quantity)
		}
	}
	return stats, nil
}

func (s *Store) GetFilteredStats(_ context.Context, from time.Time, to time.Time) (domain.PeriodStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.PeriodStats{From: from.UTC(), To: to.UTC()}
	for id, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if sale.SaleDate.Before(from) || sale.SaleDate.After(to) {
			continue
		}
		stats.RevenueCents += sale.TotalAmountCents
		stats.ProfitCents += sale.TotalProfitCents
		stats.SalesCount++
		for _, item := range s.itemsBySale[id] {
			stats.ItemsSold += int64(item.Quantity)
		}
	}
	return stats, nil
}

func (s *Store) GetInventoryStats(_ context.Context) (domain.InventoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.InventoryStats
	for _, v := range s.variants {
		if v.Status != domain.VariantStatusActive {
			continue
		}
		stats.TotalVariants++
		stats.TotalStockUnits += int64(v.StockQuantity)
		stats.StockValueCostCents += int64(v.StockQuantity) * v.CostPriceCents
		stats.StockValueRetailCents += int64(v.StockQuantity) * v.SellPriceCents
		if v.StockQuantity <= 0 {
			stats.OutOfStockVariants++
		}
	}
	return stats, nil
}

func (s *Store) GetSalesReport(_ context.Context, filter domain.SalesReportFilter) ([]domain.SaleReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := make([]domain.SaleReportRow, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if filter.From != nil && sale.SaleDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sale.SaleDate.After(*filter.To) {
			continue
		}
		if filter.PaymentStatus != "" && sale.PaymentStatus != filter.PaymentStatus {
			continue
		}
		row := domain.SaleReportRow{
			SaleID:           sale.ID,
			SaleDate:         sale.SaleDate,
			TotalAmountCents: sale.TotalAmountCents,
			AmountPaidCents:  sale.AmountPaidCents,
			BalanceDueCents:  sale.BalanceDueCents,
			PaymentStatus:    sale.PaymentStatus,
			PaymentMethod:    sale.PaymentMethod,
			DueDate:          sale.DueDate,
		}
		if c, ok := s.customers[sale.CustomerID]; ok {
			row.CustomerName = c.Name
			row.CustomerPhone = c.Phone
		}
		report = append(report, row)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].SaleDate.After(report[j].SaleDate) })
	return report, nil
}

func (s *Store) saleLinesLocked(saleID string) []domain.CartLine {
	items := s.itemsBySale[saleID]
	lines := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		v := s.variants[item.VariantID]
		lines = append(lines, domain.CartLine{
			ItemID:          item.ID,
			VariantID:       item.VariantID,
			ProductName:     s.products[v.ProductID].Name,
			CategoryName:    s.categories[v.CategoryID].Name,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			UnitCostCents:   item.UnitCostCents,
			LineTotalCents:  item.LineTotalCents,
			LineProfitCents: item.LineProfitCents,
			StockQuantity:   v.StockQuantity,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductName != lines[j].ProductName {
			return lines[i].ProductName < lines[j].ProductName
		}
		return lines[i].CategoryName < lines[j].CategoryName
	})
	return lines
}

func (s *Store) GetSaleDetails(_ context.Context, saleID string) (*domain.SaleDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, saleID)
	}

	detail := domain.SaleDetail{Sale: sale, Items: s.saleLinesLocked(saleID)}
	if c, ok := s.customers[sale.CustomerID]; ok {
		cust := c
		detail.Customer = &cust
	}
	payments := make([]domain.PaymentEntry, len(s.paymentsBy[saleID]))
	copy(payments, s.paymentsBy[saleID])
	sort.Slice(payments, func(i, j int) bool { return payments[i].PaymentDate.Before(payments[j].PaymentDate) })
	detail.Payments = payments
	return &detail, nil
}

func (s *Store) GetCustomersWithPaymentStatus(_ context.Context) ([]domain.CustomerPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.CustomerPaymentRecord, 0, len(s.customers))
	for _, c := range s.customers {
		rec := domain.CustomerPaymentRecord{Customer: c}
		var latest *domain.Sale
		for id, sale := range s.sales {
			if sale.CustomerID != c.ID || sale.Status != domain.SaleStatusCompleted {
				continue
			}
			sale := s.sales[id]
			if latest == nil || sale.SaleDate.After(latest.SaleDate) {
				latest = &sale
			}
		}
		if latest != nil {
			saleDate := latest.SaleDate
			rec.SaleID = latest.ID
			rec.SaleDate = &saleDate
			rec.TotalAmountCents = latest.TotalAmountCents
			rec.AmountPaidCents = latest.AmountPaidCents
			rec.BalanceDueCents = latest.BalanceDueCents
			rec.PaymentStatus = latest.PaymentStatus
			rec.DueDate = latest.DueDate
		}
		records = append(records, rec)
	}
	// Byte-wise ordering, matching ORDER BY on a TEXT column in the SQLite
	// store.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Customer.Name < records[j].Customer.Name
	})

	// Same shape as the SQLite store: the first row's sale items are attached
	// to every record.
	if len(records) > 0 && records[0].SaleID != "" {
		items := s.saleLinesLocked(records[0].SaleID)
		for i := range records {
			records[i].Items = items
		}
	}
	return records, nil
}

// --- company and credentials ---

func (s *Store) GetCompany(_ context.Context) (*domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.company == nil {
		return nil, store.ErrNotFound
	}
	c := *s.company
	return &c, nil
}

func (s *Store) UpsertCompanyName(_ context.Context, name string) (*domain.Company, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.company == nil {
		s.company = &domain.Company{ID: xid.New("co"), Name: name}
	} else {
		s.company.Name = name
	}
	s.refreshCompanyLocked()
	c := *s.company
	return &c, nil
}

func (s *Store) GetAppPasswordHash(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.passwordHash == "" {
		return "", store.ErrNotFound
	}
	return s.passwordHash, nil
}

func (s *Store) SetAppPasswordHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passwordHash = hash
	return nil
}
