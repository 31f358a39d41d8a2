package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/domain/stock"
	"github.com/xenking/storefront-checkout/internal/domain/tax"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

type memCatalog struct {
	products []catalog.Product
	variants map[string]catalog.Variant
}

func (m *memCatalog) ListProducts(context.Context) ([]catalog.Product, error) {
	return m.products, nil
}

func (m *memCatalog) GetVariant(_ context.Context, id string) (*catalog.Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return &v, nil
}

func (m *memCatalog) GetVariants(_ context.Context, ids []string) ([]catalog.Variant, error) {
	out := make([]catalog.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type memStock struct {
	items map[string]*stock.Item
}

func (m *memStock) ItemFor(_ context.Context, variantID string) (*stock.Item, error) {
	item, ok := m.items[variantID]
	if !ok {
		return nil, stock.ErrItemNotFound
	}
	return item, nil
}

type memTax struct {
	rates map[string][]*tax.Rate
}

func (m *memTax) RatesForZone(_ context.Context, zone string) ([]*tax.Rate, error) {
	return m.rates[zone], nil
}

type memPromos struct {
	promotions []*promotion.Promotion
}

func (m *memPromos) FindByCode(_ context.Context, code string) (*promotion.Promotion, error) {
	for _, p := range m.promotions {
		if strings.EqualFold(p.Code, code) {
			return p, nil
		}
	}
	return nil, promotion.ErrNotFound
}

func (m *memPromos) IncrementUses(context.Context, string) error { return nil }

type memOrders struct {
	orders map[string]*order.Order
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) Save(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cat := &memCatalog{
		products: []catalog.Product{{
			ID: "p1", Name: "Tee", Category: "apparel",
			Variants: []catalog.Variant{
				{ID: "v1", ProductID: "p1", SKU: "TEE-M", Price: decimal.NewFromInt(100), Currency: "USD"},
			},
		}},
		variants: map[string]catalog.Variant{
			"v1": {ID: "v1", ProductID: "p1", SKU: "TEE-M", Price: decimal.NewFromInt(100), Currency: "USD", TaxCategory: "general"},
		},
	}
	st := &memStock{items: map[string]*stock.Item{
		"v1": {VariantID: "v1", OnHand: 3},
	}}
	taxes := &memTax{rates: map[string][]*tax.Rate{
		"us": {{ID: "r1", Name: "US sales tax", Zone: "us", Category: "general", Value: decimal.RequireFromString("0.10")}},
	}}
	promos := &memPromos{promotions: []*promotion.Promotion{{
		ID:   "promo-1",
		Name: "Ten off",
		Code: "SAVE10",
		Actions: []promotion.Action{&promotion.CreateItemAdjustments{
			ID:          "act-1",
			PromotionID: "promo-1",
			Name:        "$10 off each item",
			Calc:        promotion.FlatRate{Amount: decimal.NewFromInt(10)},
		}},
	}}}

	svc := checkout.NewService(cat, st, taxes, promos, &memOrders{orders: map[string]*order.Order{}})

	mux := http.NewServeMux()
	NewHandler(cat, svc).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded))
	}
	return resp, decoded
}

func createOrder(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders", `{"currency":"USD","tax_zone":"us"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestListProducts(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var products []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	require.Len(t, products, 1)
	assert.Equal(t, "Tee", products[0]["name"])

	variants, ok := products[0]["variants"].([]any)
	require.True(t, ok)
	require.Len(t, variants, 1)
	assert.Equal(t, "TEE-M", variants[0].(map[string]any)["sku"])
}

func TestAddItemReturnsFreshTotals(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+id+"/items",
		`{"variant_id":"v1","quantity":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 100.0, body["item_total"])
	assert.Equal(t, 10.0, body["additional_tax_total"])
	assert.Equal(t, 110.0, body["total"])
}

func TestAddItemUnknownVariant(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+id+"/items",
		`{"variant_id":"missing","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "variant not found", body["message"])
}

func TestAddItemInsufficientStock(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+id+"/items",
		`{"variant_id":"v1","quantity":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["message"], "not available")
}

func TestUpdateQuantityRequiresBody(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/api/orders/"+id+"/items/whatever", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetOrderNotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/orders/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "order not found", body["message"])
}

func TestApplyCoupon(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+id+"/items",
		`{"variant_id":"v1","quantity":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+id+"/coupon", `{"code":"save10"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	// 100 - 10 discount + 9 tax on the discounted basis.
	ord := body["order"].(map[string]any)
	assert.Equal(t, -10.0, ord["promo_total"])
	assert.Equal(t, 99.0, ord["total"])
}

func TestApplyCouponUnknownCode(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+id+"/coupon", `{"code":"ZZZ"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "coupon_code_not_found", body["reason"])
}

type memAPIKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *memAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, order.ErrNotFound
	}
	return info, nil
}

func TestSecurityMiddleware(t *testing.T) {
	pepper := []byte("pepper")
	keyHash := func(key string) string {
		mac := hmac.New(sha256.New, pepper)
		mac.Write([]byte(key))
		return hex.EncodeToString(mac.Sum(nil))
	}
	validHash := keyHash("valid-key")
	scopedHash := keyHash("reports-key")

	sec := NewSecurityHandler(&memAPIKeys{byHash: map[string]*auth.APIKeyInfo{
		validHash:  {ID: "k1", KeyHash: validHash, Name: "test"},
		scopedHash: {ID: "k2", KeyHash: scopedHash, Name: "reports", Scopes: []string{"reports"}},
	}}, pepper)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(httpmiddleware.Wrap(next, sec.Middleware()))
	defer srv.Close()

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "valid key", key: "valid-key", want: http.StatusNoContent},
		{name: "wrong key", key: "wrong-key", want: http.StatusUnauthorized},
		{name: "missing key", key: "", want: http.StatusUnauthorized},
		{name: "key without checkout scope", key: "reports-key", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			require.NoError(t, err)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
