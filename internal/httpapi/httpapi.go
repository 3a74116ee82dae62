package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"stockman/internal/domain"
	"stockman/internal/service"
	"stockman/internal/store"
)

// cartSessionHeader names the cart a request operates on. Absent or empty
// means the default session.
const cartSessionHeader = "X-Cart-Session"

type API struct {
	service      *service.Service
	auth         *AuthManager
	validate     *validator.Validate
	logger       zerolog.Logger
	loginLimiter *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, logger zerolog.Logger) *API {
	return &API{
		service:      svc,
		auth:         auth,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
		loginLimiter: newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/password", a.requireAuth(a.handleChangePassword))

	mux.HandleFunc("/api/v1/catalog", a.requireAuth(a.handleCatalog))
	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions))
	mux.HandleFunc("/api/v1/variants/", a.requireAuth(a.handleVariantActions))

	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart))
	mux.HandleFunc("/api/v1/cart/items", a.requireAuth(a.handleCartItems))
	mux.HandleFunc("/api/v1/cart/items/", a.requireAuth(a.handleCartItemActions))

	mux.HandleFunc("/api/v1/sales/complete", a.requireAuth(a.handleCompleteSale))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSalesReport))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions))

	mux.HandleFunc("/api/v1/stats/overall", a.requireAuth(a.handleOverallStats))
	mux.HandleFunc("/api/v1/stats/period", a.requireAuth(a.handlePeriodStats))
	mux.HandleFunc("/api/v1/stats/inventory", a.requireAuth(a.handleInventoryStats))
	mux.HandleFunc("/api/v1/customers/payment-status", a.requireAuth(a.handleCustomerPayments))
	mux.HandleFunc("/api/v1/company", a.requireAuth(a.handleCompany))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		if err := a.auth.ParseToken(token); err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r)
	}
}

// errStatus maps repository sentinels onto HTTP statuses. Anything
// unrecognized is a storage failure and surfaces as a 500.
func errStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrDuplicateVariant):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func cartSession(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(cartSessionHeader))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.ChangePasswordRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.auth.ChangePassword(r.Context(), req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCatalog serves the display list and the one-shot add flow.
func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		variants, err := a.service.ListCatalog(r.Context())
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"variants": variants})
	case http.MethodPost:
		var req struct {
			ProductName string `json:"product_name" validate:"required"`
			Brand       string `json:"brand,omitempty"`
			Description string `json:"description,omitempty"`
			domain.VariantCreateRequest
		}
		if err := a.decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		variant, err := a.service.AddCatalogEntry(r.Context(), req.ProductName, req.Brand, req.Description, req.VariantCreateRequest)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"variant": variant})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.ProductCreateRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateBaseProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

// handleProductActions routes /api/v1/products/{id}/variants.
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "variants" {
		a.writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.VariantCreateRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	variant, err := a.service.CreateVariant(r.Context(), parts[0], req)
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"variant": variant})
}

// handleVariantActions routes /api/v1/variants/{id} and
// /api/v1/variants/{id}/reactivate.
func (a *API) handleVariantActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/variants/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleVariant(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "reactivate":
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		variant, err := a.service.ReactivateVariant(r.Context(), parts[0])
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"variant": variant})
	default:
		a.writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (a *API) handleVariant(w http.ResponseWriter, r *http.Request, variantID string) {
	switch r.Method {
	case http.MethodGet:
		variant, err := a.service.GetVariant(r.Context(), variantID)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"variant": variant})
	case http.MethodPatch:
		var req domain.VariantUpdateRequest
		if err := a.decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		variant, err := a.service.EditVariant(r.Context(), variantID, req)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"variant": variant})
	case http.MethodDelete:
		result, err := a.service.DeleteVariant(r.Context(), variantID)
		if err != nil && result.Message == "" {
			a.writeError(w, errStatus(err), err)
			return
		}
		// Refusals carry a message for the operator; the result body says
		// what actually happened.
		a.writeJSON(w, http.StatusOK, map[string]any{"result": result})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cart, err := a.service.Cart(r.Context(), cartSession(r))
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
	case http.MethodDelete:
		if err := a.service.ClearCart(r.Context(), cartSession(r)); err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.AddToCartRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	cart, err := a.service.AddToCart(r.Context(), cartSession(r), req)
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

// handleCartItemActions routes /api/v1/cart/items/{id}.
func (a *API) handleCartItemActions(w http.ResponseWriter, r *http.Request) {
	itemID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/cart/items/"), "/")
	if itemID == "" || strings.Contains(itemID, "/") {
		a.writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := a.decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		cart, err := a.service.UpdateCartItem(r.Context(), cartSession(r), itemID, req.Quantity)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
	case http.MethodDelete:
		cart, err := a.service.RemoveCartItem(r.Context(), cartSession(r), itemID)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCompleteSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.CompleteSaleRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.CartSessionID == "" {
		req.CartSessionID = cartSession(r)
	}

	sale, err := a.service.CompleteSale(r.Context(), req)
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	var filter domain.SalesReportFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := parseDate(raw, false)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := parseDate(raw, true)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.To = &to
	}
	filter.PaymentStatus = query.Get("payment_status")

	report, err := a.service.SalesReport(r.Context(), filter)
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"sales": report})
}

// handleSaleActions routes /api/v1/sales/{id} and /api/v1/sales/{id}/payments.
func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sales/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			a.writeMethodNotAllowed(w)
			return
		}
		detail, err := a.service.SaleDetails(r.Context(), parts[0])
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"sale": detail})
	case len(parts) == 2 && parts[1] == "payments":
		a.handleSalePayments(w, r, parts[0])
	default:
		a.writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (a *API) handleSalePayments(w http.ResponseWriter, r *http.Request, saleID string) {
	switch r.Method {
	case http.MethodGet:
		payments, err := a.service.PaymentHistory(r.Context(), saleID)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	case http.MethodPost:
		var req domain.PartialPaymentRequest
		if err := a.decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.RecordPayment(r.Context(), saleID, req)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleOverallStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	stats, err := a.service.OverallStats(r.Context())
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *API) handlePeriodStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	from, err := parseDate(strings.TrimSpace(query.Get("from")), false)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDate(strings.TrimSpace(query.Get("to")), true)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := a.service.FilteredStats(r.Context(), from, to)
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *API) handleInventoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	stats, err := a.service.InventoryStats(r.Context())
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *API) handleCustomerPayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	customers, err := a.service.CustomersWithPaymentStatus(r.Context())
	if err != nil {
		a.writeError(w, errStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCompany(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		company, err := a.service.Company(r.Context())
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"company": company})
	case http.MethodPut:
		var req struct {
			Name string `json:"name" validate:"required"`
		}
		if err := a.decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		company, err := a.service.SetCompanyName(r.Context(), req.Name)
		if err != nil {
			a.writeError(w, errStatus(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"company": company})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(startedAt)).
			Msg("request")
	})
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Bare dates snap to the start of
// the day, or to its last instant when endOfDay is set, so date-only ranges
// stay inclusive.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing date parameter")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("invalid date, expected YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), nil
}

func (a *API) decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	if err := a.validate.Struct(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses get a generic body so storage errors do not leak SQL or
	// file paths to the client; 4xx messages are operator-facing.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	a.writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
