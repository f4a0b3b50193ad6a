package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlvy/storefront-core/internal/domain/account"
	"github.com/ndlvy/storefront-core/internal/domain/auth"
	"github.com/ndlvy/storefront-core/internal/domain/catalog"
	"github.com/ndlvy/storefront-core/internal/domain/order"
	"github.com/ndlvy/storefront-core/internal/domain/promo"
	"github.com/ndlvy/storefront-core/internal/domain/promotion"
	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

// --- Fakes ---

type fakeProducts struct {
	byID map[int64]catalog.Product
}

func (f *fakeProducts) List(context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePromos struct {
	byCode map[string]*promo.PromoCode
	byID   map[int64]*promo.PromoCode
	nextID int64
}

func (f *fakePromos) FindByCode(_ context.Context, code string) (*promo.PromoCode, error) {
	c, ok := f.byCode[code]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return c, nil
}

func (f *fakePromos) FindByID(_ context.Context, id int64) (*promo.PromoCode, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return c, nil
}

func (f *fakePromos) Create(_ context.Context, c *promo.PromoCode) error {
	if _, ok := f.byCode[c.Code]; ok {
		return promo.ErrDuplicateCode
	}
	f.nextID++
	c.ID = f.nextID
	f.byCode[c.Code] = c
	f.byID[c.ID] = c
	return nil
}

func (f *fakePromos) IncrementUsage(_ context.Context, id int64) error {
	c, ok := f.byID[id]
	if !ok {
		return promo.ErrNotFound
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return promo.ErrUsageLimitReached
	}
	c.UsageCount++
	return nil
}

func (f *fakePromos) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := f.byCode[code]
	return ok, nil
}

type fakeAccounts struct {
	points map[int64]int64
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*account.Account, error) {
	p, ok := f.points[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &account.Account{ID: id, Points: p}, nil
}

func (f *fakeAccounts) DebitPoints(_ context.Context, id, points int64) (int64, error) {
	p, ok := f.points[id]
	if !ok {
		return 0, account.ErrNotFound
	}
	if p < points {
		return 0, account.ErrInsufficientPoints
	}
	f.points[id] = p - points
	return f.points[id], nil
}

type fakeOrders struct {
	nextID int64
	byRef  map[string]*order.Order
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	if _, ok := f.byRef[o.Reference]; ok {
		return order.ErrDuplicateReference
	}
	f.nextID++
	o.ID = f.nextID
	f.byRef[o.Reference] = o
	return nil
}

func (f *fakeOrders) GetByReference(_ context.Context, reference string) (*order.Order, error) {
	o, ok := f.byRef[reference]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) GetByReferenceForUpdate(ctx context.Context, reference string) (*order.Order, error) {
	return f.GetByReference(ctx, reference)
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id int64, s order.Status) error {
	for _, o := range f.byRef {
		if o.ID == id {
			o.Status = s
		}
	}
	return nil
}

func (f *fakeOrders) SetStockReduced(_ context.Context, orderID int64, reduced bool) error {
	for _, o := range f.byRef {
		if o.ID == orderID {
			o.StockReduced = reduced
		}
	}
	return nil
}

type fakeRules struct {
	byID map[int64]*promotion.Rule
}

func (f *fakeRules) FindByID(_ context.Context, id int64) (*promotion.Rule, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, promotion.ErrRuleNotFound
	}
	return r, nil
}

// backend wires every fake repository behind the transactional interfaces
// the services expect. InTx runs the callback directly; there is no real
// transaction to roll back.
type backend struct {
	products  *fakeProducts
	promos    *fakePromos
	accounts  *fakeAccounts
	orders    *fakeOrders
	rules     *fakeRules
	stock     map[int64]int
	movements []stock.Movement

	pricingWrites map[int64]promotion.Pricing
}

func newBackend() *backend {
	return &backend{
		products:      &fakeProducts{byID: make(map[int64]catalog.Product)},
		promos:        &fakePromos{byCode: make(map[string]*promo.PromoCode), byID: make(map[int64]*promo.PromoCode)},
		accounts:      &fakeAccounts{points: make(map[int64]int64)},
		orders:        &fakeOrders{byRef: make(map[string]*order.Order)},
		rules:         &fakeRules{byID: make(map[int64]*promotion.Rule)},
		stock:         make(map[int64]int),
		pricingWrites: make(map[int64]promotion.Pricing),
	}
}

func (b *backend) List(_ context.Context, limit int) ([]stock.Movement, error) {
	if len(b.movements) > limit {
		return b.movements[:limit], nil
	}
	return b.movements, nil
}

type orderStore struct{ b *backend }

func (s orderStore) InTx(_ context.Context, fn func(tx order.Tx) error) error { return fn(s) }
func (s orderStore) Orders() order.Repository                                 { return s.b.orders }
func (s orderStore) Products() catalog.Reader                                 { return s.b.products }
func (s orderStore) Promos() promo.Repository                                 { return s.b.promos }
func (s orderStore) Stock() stock.Tx                                          { return stockTx{s.b} }

type stockTx struct{ b *backend }

func (s stockTx) Catalog() stock.Catalog     { return s }
func (s stockTx) Movements() stock.Movements { return s }
func (s stockTx) Orders() stock.Orders       { return s.b.orders }

func (s stockTx) ProductStockForUpdate(_ context.Context, id int64) (int, error) {
	return s.b.stock[id], nil
}

func (s stockTx) SetProductStock(_ context.Context, id int64, st int) error {
	s.b.stock[id] = st
	return nil
}

func (s stockTx) VariantForUpdate(context.Context, int64) (*catalog.ProductImage, error) {
	return nil, catalog.ErrNotFound
}

func (s stockTx) VariantsForUpdate(context.Context, int64) ([]catalog.ProductImage, error) {
	return nil, nil
}

func (s stockTx) SetVariantStock(context.Context, int64, int) error { return nil }

func (s stockTx) Append(_ context.Context, m *stock.Movement) error {
	m.ID = int64(len(s.b.movements) + 1)
	s.b.movements = append(s.b.movements, *m)
	return nil
}

func (s stockTx) VariantOrderMovements(context.Context, string) ([]stock.Movement, error) {
	return nil, nil
}

type promoStore struct{ b *backend }

func (s promoStore) InTx(_ context.Context, fn func(tx promo.Tx) error) error { return fn(s) }
func (s promoStore) Promos() promo.Repository                                 { return s.b.promos }
func (s promoStore) Accounts() account.Repository                             { return s.b.accounts }

type ruleStore struct{ b *backend }

func (s ruleStore) InTx(_ context.Context, fn func(tx promotion.Tx) error) error { return fn(s) }
func (s ruleStore) Rules() promotion.Repository                                  { return s.b.rules }
func (s ruleStore) Catalog() promotion.Catalog                                   { return s }

func (s ruleStore) ProductsMatching(_ context.Context, f promotion.Filter) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range s.b.products.byID {
		if f.ProductID != nil && p.ID != *f.ProductID {
			continue
		}
		if f.InPromotion && !(p.IsPromotion && p.OldPrice != nil) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s ruleStore) UpdateProductPricing(_ context.Context, id int64, p promotion.Pricing) error {
	s.b.pricingWrites[id] = p
	return nil
}

func (s ruleStore) MarkProductPromotion(context.Context, int64, int64) error { return nil }

func (s ruleStore) VariantsByReference(context.Context, string, bool) ([]catalog.ProductImage, error) {
	return nil, nil
}

func (s ruleStore) UpdateVariantPricing(context.Context, int64, promotion.Pricing) error {
	return nil
}

type fakeKeys struct {
	byHash map[string]*auth.KeyInfo
}

func (f *fakeKeys) FindByHash(_ context.Context, hash string) (*auth.KeyInfo, error) {
	info, ok := f.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// --- Harness ---

const (
	testKey    = "test-admin-key"
	testPepper = "test-pepper"
)

type harness struct {
	b   *backend
	srv http.Handler
}

func newHarness() *harness {
	b := newBackend()

	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(testKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))
	keys := &fakeKeys{byHash: map[string]*auth.KeyInfo{
		keyHash: {ID: 1, Name: "test", KeyHash: keyHash},
	}}

	h := NewHandler(
		b.products,
		promo.NewValidator(b.promos),
		promo.NewService(promoStore{b}),
		order.NewService(orderStore{b}),
		order.NewCoordinator(orderStore{b}),
		promotion.NewEngine(ruleStore{b}),
		b,
	)
	guard := NewAPIKeyGuard(keys, []byte(testPepper))
	return &harness{b: b, srv: h.Routes(guard)}
}

func (h *harness) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func seedCatalog(h *harness) {
	h.b.products.byID[1] = catalog.Product{ID: 1, Name: "Runner Low", Reference: "RUN-LOW", Price: decimal.NewFromInt(12900), Stock: 40}
	h.b.products.byID[2] = catalog.Product{ID: 2, Name: "Wool Socks", Reference: "WL-SCK", Price: decimal.NewFromInt(1900), Stock: 200}
	h.b.stock[1] = 40
	h.b.stock[2] = 200
}

func seedPromo(h *harness) {
	c := &promo.PromoCode{
		ID:       1,
		Code:     "WELCOME10",
		Type:     promo.DiscountPercentage,
		Value:    decimal.NewFromInt(10),
		IsActive: true,
		Status:   promo.StatusActive,
	}
	h.b.promos.byCode[c.Code] = c
	h.b.promos.byID[c.ID] = c
	h.b.promos.nextID = 1
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	h := newHarness()
	seedCatalog(h)

	rec := h.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	products := decodeBody[[]map[string]any](t, rec)
	assert.Len(t, products, 2)
}

func TestGetProduct(t *testing.T) {
	h := newHarness()
	seedCatalog(h)

	t.Run("found", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/products/1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		p := decodeBody[map[string]any](t, rec)
		assert.Equal(t, "Runner Low", p["name"])
		assert.Equal(t, "12900", p["price"])
	})

	t.Run("not found", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/products/99", "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		body := decodeBody[errorResponse](t, rec)
		assert.Equal(t, "product not found", body.Error)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/products/abc", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestValidatePromo(t *testing.T) {
	h := newHarness()
	seedPromo(h)

	t.Run("valid", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promo/validate", "", map[string]any{
			"code":      "welcome10",
			"cartTotal": 10000,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		res := decodeBody[validatePromoResponse](t, rec)
		assert.True(t, res.Valid)
		assert.True(t, res.Discount.Equal(decimal.NewFromInt(1000)), "discount %s", res.Discount)
	})

	t.Run("unknown code is a 200 rejection", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promo/validate", "", map[string]any{
			"code":      "NOPE",
			"cartTotal": 10000,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		res := decodeBody[validatePromoResponse](t, rec)
		assert.False(t, res.Valid)
		assert.NotEmpty(t, res.Message)
	})

	t.Run("missing code", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promo/validate", "", map[string]any{"cartTotal": 10000})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPlaceOrder(t *testing.T) {
	h := newHarness()
	seedCatalog(h)
	seedPromo(h)

	t.Run("empty items", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/orders", "", map[string]any{"items": []any{}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "items required", decodeBody[errorResponse](t, rec).Error)
	})

	t.Run("unknown product", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/orders", "", map[string]any{
			"items": []map[string]any{{"productId": 99, "quantity": 1}},
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "product 99 not found", decodeBody[errorResponse](t, rec).Error)
	})

	t.Run("zero quantity", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/orders", "", map[string]any{
			"items": []map[string]any{{"productId": 1, "quantity": 0}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("created with promo", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/orders", "", map[string]any{
			"items":     []map[string]any{{"productId": 1, "quantity": 2}},
			"promoCode": "WELCOME10",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		o := decodeBody[orderResponse](t, rec)
		assert.Equal(t, "PENDING", o.Status)
		assert.True(t, o.Total.Equal(decimal.NewFromInt(23220)), "total %s", o.Total)
		assert.True(t, o.Discount.Equal(decimal.NewFromInt(2580)))
		assert.False(t, o.StockReduced)
		assert.Equal(t, 1, h.b.promos.byID[1].UsageCount)
	})
}

func TestTransitionOrder(t *testing.T) {
	h := newHarness()
	seedCatalog(h)
	h.b.orders.byRef["ORD-20260901-AAAAAA"] = &order.Order{
		ID:        1,
		Reference: "ORD-20260901-AAAAAA",
		Status:    order.StatusPending,
		Items:     []order.Item{{ProductID: 1, Quantity: 2, Price: decimal.NewFromInt(12900)}},
	}

	t.Run("customer cannot ship", func(t *testing.T) {
		rec := h.do(t, http.MethodPatch, "/orders/ORD-20260901-AAAAAA/status", "", map[string]any{"status": "SHIPPED"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("admin ships", func(t *testing.T) {
		rec := h.do(t, http.MethodPatch, "/orders/ORD-20260901-AAAAAA/status", testKey, map[string]any{"status": "SHIPPED"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "SHIPPED", decodeBody[orderResponse](t, rec).Status)
	})

	t.Run("delivery reduces stock", func(t *testing.T) {
		rec := h.do(t, http.MethodPatch, "/orders/ORD-20260901-AAAAAA/status", testKey, map[string]any{"status": "DELIVERED"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[orderResponse](t, rec).StockReduced)
		assert.Equal(t, 38, h.b.stock[1])
	})

	t.Run("invalid status", func(t *testing.T) {
		rec := h.do(t, http.MethodPatch, "/orders/ORD-20260901-AAAAAA/status", testKey, map[string]any{"status": "LOST"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := h.do(t, http.MethodPatch, "/orders/ORD-20260901-ZZZZZZ/status", testKey, map[string]any{"status": "SHIPPED"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCreatePromoCode(t *testing.T) {
	h := newHarness()
	h.b.accounts.points[7] = 100

	t.Run("created pending", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promo-codes", "", map[string]any{
			"accountId": 7,
			"code":      "my code",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		c := decodeBody[promoCodeResponse](t, rec)
		assert.Equal(t, "MYCODE", c.Code)
		assert.Equal(t, "PENDING", c.Status)
		assert.False(t, c.IsActive)
	})

	t.Run("too short", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promo-codes", "", map[string]any{
			"accountId": 7,
			"code":      "ab",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing account", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promo-codes", "", map[string]any{"code": "ANOTHERONE"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPromotionRuleEndpoints(t *testing.T) {
	h := newHarness()
	seedCatalog(h)
	h.b.rules.byID[3] = &promotion.Rule{
		ID:         3,
		Name:       "Runner Low push",
		Conditions: []byte(`{"productId": 1}`),
		Actions:    []byte(`{"percentage": 30}`),
		IsActive:   true,
	}

	t.Run("apply requires auth", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promotion-rules/3/apply", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("apply", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promotion-rules/3/apply", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		res := decodeBody[ruleResultResponse](t, rec)
		assert.Equal(t, int64(3), res.RuleID)
		assert.Equal(t, 1, res.Updated)

		w := h.b.pricingWrites[1]
		assert.True(t, w.Price.Equal(decimal.NewFromInt(9030)), "price %s", w.Price)
	})

	t.Run("unknown rule", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promotion-rules/99/apply", testKey, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/promotion-rules/abc/apply", testKey, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListStockMovements(t *testing.T) {
	h := newHarness()
	h.b.movements = []stock.Movement{
		{ID: 1, ProductID: 1, Type: stock.MovementOrder, Quantity: -2, PreviousStock: 40, NewStock: 38, Reason: "order ORD-20260901-AAAAAA"},
	}

	t.Run("requires auth", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/stock-movements", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lists", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/stock-movements", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		movements := decodeBody[[]movementResponse](t, rec)
		require.Len(t, movements, 1)
		assert.Equal(t, "ORDER", movements[0].Type)
		assert.Equal(t, -2, movements[0].Quantity)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/stock-movements?limit=0", testKey, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInvalidAPIKeyRejected(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodGet, "/stock-movements", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
