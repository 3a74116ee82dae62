package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockman/internal/domain"
	"stockman/internal/service"
	"stockman/internal/store/memory"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, zerolog.Nop())
	auth := NewAuthManager("test-secret", time.Hour, repo)
	return New(svc, auth, zerolog.Nop()).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// login obtains a bearer token using the seeded app password.
func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"password": "stockman"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatalf("login returned no token")
	}
	return resp.AccessToken
}

// firstVariantID pulls a variant from the seeded catalog.
func firstVariantID(t *testing.T, h http.Handler, token string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/api/v1/catalog", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list catalog: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Variants []domain.VariantDetail `json:"variants"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Variants) == 0 {
		t.Fatalf("seeded catalog is empty")
	}
	return resp.Variants[0].VariantID
}

func TestHealthNeedsNoAuth(t *testing.T) {
	h := newTestAPI(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/catalog", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/catalog", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newTestAPI(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newTestAPI(t)
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"password": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"password": "wrong"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
}

func TestCatalogAddAndDuplicate(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	body := map[string]any{
		"product_name":     "Green Tea 250g",
		"category_name":    "Grocery",
		"cost_price_cents": 30000,
		"sell_price_cents": 45000,
		"stock_quantity":   12,
	}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/catalog", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Variant domain.ProductVariant `json:"variant"`
	}
	decodeBody(t, rec, &created)
	if created.Variant.ID == "" || created.Variant.Status != domain.VariantStatusActive {
		t.Fatalf("unexpected created variant: %+v", created.Variant)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/catalog", token, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate pairing, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCatalogRejectsUnknownFields(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/catalog", token, map[string]any{
		"product_name":  "Honey 500g",
		"category_name": "Grocery",
		"surprise":      true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestCartFlow(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)
	variantID := firstVariantID(t, h, token)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"variant_id": variantID,
		"quantity":   2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Cart domain.CartView `json:"cart"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Cart.Lines) != 1 || resp.Cart.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected cart: %+v", resp.Cart)
	}
	itemID := resp.Cart.Lines[0].ItemID

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/cart/items/"+itemID, token, map[string]int{"quantity": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("update quantity: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	if resp.Cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", resp.Cart.Lines[0].Quantity)
	}
	if resp.Cart.TotalAmountCents != 5*resp.Cart.Lines[0].UnitPriceCents {
		t.Fatalf("total does not track lines: %+v", resp.Cart)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/cart/items/"+itemID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove item: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	if len(resp.Cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", resp.Cart.Lines)
	}
}

func jsonBody(t *testing.T, body any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	return &buf
}

func TestCartSessionHeaderIsolatesCarts(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)
	variantID := firstVariantID(t, h, token)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", jsonBody(t, map[string]any{
		"variant_id": variantID,
		"quantity":   1,
	}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Cart-Session", "till-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d %s", rec.Code, rec.Body.String())
	}

	// The default session stays empty.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/cart", token, nil)
	var resp struct {
		Cart domain.CartView `json:"cart"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Cart.Lines) != 0 {
		t.Fatalf("expected default session empty, got %+v", resp.Cart.Lines)
	}
}

func TestAddToCartInsufficientStock(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)
	variantID := firstVariantID(t, h, token)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"variant_id": variantID,
		"quantity":   100000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)
	variantID := firstVariantID(t, h, token)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"variant_id": variantID,
		"quantity":   2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d %s", rec.Code, rec.Body.String())
	}
	var cartResp struct {
		Cart domain.CartView `json:"cart"`
	}
	decodeBody(t, rec, &cartResp)
	total := cartResp.Cart.TotalAmountCents

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/complete", token, map[string]any{
		"customer_name":     "Ali",
		"customer_phone":    "0300-1234567",
		"payment_method":    "cash",
		"amount_paid_cents": total / 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("complete sale: %d %s", rec.Code, rec.Body.String())
	}
	var saleResp struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, rec, &saleResp)
	if saleResp.Sale.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("expected partial, got %s", saleResp.Sale.PaymentStatus)
	}
	saleID := saleResp.Sale.ID

	// Completing again with the now-empty cart fails.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/complete", token, map[string]any{
		"customer_name":  "Ali",
		"payment_method": "cash",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on empty cart, got %d", rec.Code)
	}

	// Sale detail carries items and the initial payment.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales/"+saleID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sale detail: %d %s", rec.Code, rec.Body.String())
	}
	var detailResp struct {
		Sale domain.SaleDetail `json:"sale"`
	}
	decodeBody(t, rec, &detailResp)
	if len(detailResp.Sale.Items) != 1 || len(detailResp.Sale.Payments) != 1 {
		t.Fatalf("unexpected detail: %+v", detailResp.Sale)
	}

	// Settle the balance.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/payments", token, map[string]any{
		"amount_cents": saleResp.Sale.BalanceDueCents,
		"method":       "cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record payment: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &saleResp)
	if saleResp.Sale.PaymentStatus != domain.PaymentStatusPaidFull {
		t.Fatalf("expected paid_full, got %s", saleResp.Sale.PaymentStatus)
	}

	// Paying a settled sale is a 400.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/payments", token, map[string]any{
		"amount_cents": 1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on overpayment, got %d", rec.Code)
	}

	// The report lists the completed sale.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales?payment_status=paid_full", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sales report: %d %s", rec.Code, rec.Body.String())
	}
	var reportResp struct {
		Sales []domain.SaleReportRow `json:"sales"`
	}
	decodeBody(t, rec, &reportResp)
	if len(reportResp.Sales) != 1 || reportResp.Sales[0].SaleID != saleID {
		t.Fatalf("unexpected report: %+v", reportResp.Sales)
	}
}

func TestCompleteSaleWithoutCustomerName(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)
	variantID := firstVariantID(t, h, token)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"variant_id": variantID,
		"quantity":   1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d %s", rec.Code, rec.Body.String())
	}

	// Walk-in checkout: no customer fields at all.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/complete", token, map[string]any{
		"payment_method":    "cash",
		"amount_paid_cents": 3000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected guest checkout to succeed, got %d %s", rec.Code, rec.Body.String())
	}
	var saleResp struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, rec, &saleResp)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales/"+saleResp.Sale.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sale detail: %d %s", rec.Code, rec.Body.String())
	}
	var detailResp struct {
		Sale domain.SaleDetail `json:"sale"`
	}
	decodeBody(t, rec, &detailResp)
	if detailResp.Sale.Customer == nil || detailResp.Sale.Customer.Name != domain.GuestCustomerName {
		t.Fatalf("expected guest customer on the sale, got %+v", detailResp.Sale.Customer)
	}
}

func TestDeleteVariantRefusalReturnsMessage(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)
	variantID := firstVariantID(t, h, token)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"variant_id": variantID,
		"quantity":   1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/variants/"+variantID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with refusal message, got %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Result struct {
			Deleted     bool   `json:"deleted"`
			Deactivated bool   `json:"deactivated"`
			Message     string `json:"message"`
		} `json:"result"`
	}
	decodeBody(t, rec, &resp)
	if resp.Result.Deleted || resp.Result.Deactivated || resp.Result.Message == "" {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
}

func TestVariantPatchAndReactivate(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)
	variantID := firstVariantID(t, h, token)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/variants/"+variantID, token, map[string]any{
		"sell_price_cents": 999000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch variant: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Variant domain.VariantDetail `json:"variant"`
	}
	decodeBody(t, rec, &resp)
	if resp.Variant.SellPriceCents != 999000 {
		t.Fatalf("expected updated price, got %d", resp.Variant.SellPriceCents)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/variants/"+variantID+"/reactivate", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivate: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	if resp.Variant.Status != domain.VariantStatusActive {
		t.Fatalf("expected active, got %s", resp.Variant.Status)
	}
}

func TestVariantNotFound(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/variants/var_missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPeriodStatsValidation(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/stats/period", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without range, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/stats/period?from=2026-01-01&to=2026-01-31", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/stats/period?from=2026-02-01&to=2026-01-01", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on inverted range, got %d", rec.Code)
	}
}

func TestStatsEndpoints(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/stats/overall", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overall stats: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/stats/inventory", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("inventory stats: %d", rec.Code)
	}
	var resp struct {
		Stats domain.InventoryStats `json:"stats"`
	}
	decodeBody(t, rec, &resp)
	if resp.Stats.TotalVariants == 0 {
		t.Fatalf("expected seeded inventory, got %+v", resp.Stats)
	}
}

func TestCompanyRoundTrip(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/company", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before setup, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/v1/company", token, map[string]string{"name": "Khan Traders"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put company: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/company", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get company: %d", rec.Code)
	}
	var resp struct {
		Company domain.Company `json:"company"`
	}
	decodeBody(t, rec, &resp)
	if resp.Company.Name != "Khan Traders" {
		t.Fatalf("unexpected company: %+v", resp.Company)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestAPI(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected DENY, got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/catalog", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
