package checkout

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/domain/stock"
	"github.com/xenking/storefront-checkout/internal/domain/tax"
)

type memCatalog struct {
	variants map[string]catalog.Variant
}

func (m *memCatalog) ListProducts(context.Context) ([]catalog.Product, error) { return nil, nil }

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

func (m *memPromos) IncrementUses(_ context.Context, id string) error {
	for _, p := range m.promotions {
		if p.ID == id {
			if p.UsageLimit > 0 && p.Uses >= p.UsageLimit {
				return promotion.ErrUsageLimit
			}
			return nil
		}
	}
	return promotion.ErrNotFound
}

type memOrders struct {
	orders  map[string]*order.Order
	saves   int
	saveErr error
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
	if m.saveErr != nil {
		return m.saveErr
	}
	m.orders[o.ID] = o
	m.saves++
	return nil
}

type fixture struct {
	svc    *Service
	orders *memOrders
	stock  *memStock
	promos *memPromos
}

func newFixture() *fixture {
	cat := &memCatalog{variants: map[string]catalog.Variant{
		"v1": {ID: "v1", SKU: "TEE", Price: decimal.NewFromInt(100), Currency: "USD", TaxCategory: "general"},
		"v2": {ID: "v2", SKU: "MUG", Price: decimal.NewFromInt(25), Currency: "USD", TaxCategory: "general"},
	}}
	st := &memStock{items: map[string]*stock.Item{
		"v1": {VariantID: "v1", OnHand: 10},
		"v2": {VariantID: "v2", OnHand: 3},
	}}
	taxes := &memTax{rates: map[string][]*tax.Rate{
		"us": {{ID: "r1", Name: "US sales tax", Zone: "us", Category: "general", Value: decimal.RequireFromString("0.10")}},
	}}
	promos := &memPromos{promotions: []*promotion.Promotion{
		{
			ID:   "promo-1",
			Name: "SAVE10",
			Code: "SAVE10",
			Actions: []promotion.Action{&promotion.CreateItemAdjustments{
				ID:          "act-1",
				PromotionID: "promo-1",
				Name:        "$10 off each item",
				Calc:        promotion.FlatRate{Amount: decimal.NewFromInt(10)},
			}},
		},
	}}
	orders := &memOrders{orders: map[string]*order.Order{}}
	return &fixture{
		svc:    NewService(cat, st, taxes, promos, orders),
		orders: orders,
		stock:  st,
		promos: promos,
	}
}

func TestService_AddItemRecalculatesSynchronously(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)

	o, err = f.svc.AddItem(ctx, o.ID, "v1", 1)
	require.NoError(t, err)

	// Tax attaches and totals are never stale.
	assert.True(t, o.ItemTotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, o.AdditionalTaxTotal.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, 1, f.orders.saves)
}

func TestService_AddItemInsufficientStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, o.ID, "v2", 5)
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LineItems, "failed validation must leave the order unchanged")
	assert.Equal(t, 0, f.orders.saves)
}

func TestService_UpdateQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)
	o, err = f.svc.AddItem(ctx, o.ID, "v1", 2)
	require.NoError(t, err)
	li := o.LineItems[0]

	o, err = f.svc.UpdateQuantity(ctx, o.ID, li.ID, 5)
	require.NoError(t, err)
	assert.True(t, o.ItemTotal.Equal(decimal.NewFromInt(500)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(550)))

	// Zero quantity is allowed and never blocked on stock.
	o, err = f.svc.UpdateQuantity(ctx, o.ID, li.ID, 0)
	require.NoError(t, err)
	assert.True(t, o.Total.IsZero())
}

func TestService_UpdateQuantityRejectedRestoresPrevious(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)
	o, err = f.svc.AddItem(ctx, o.ID, "v2", 2)
	require.NoError(t, err)
	li := o.LineItems[0]
	beforeTotal := o.Total

	_, err = f.svc.UpdateQuantity(ctx, o.ID, li.ID, 50)
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, 2, li.Quantity)
	assert.True(t, o.Total.Equal(beforeTotal))
}

func TestService_AddItemFailedSaveRestoresMergedQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)
	o, err = f.svc.AddItem(ctx, o.ID, "v1", 3)
	require.NoError(t, err)
	li := o.LineItems[0]
	beforeTotal := o.Total

	// A negative merge clamps at zero; a failure afterwards must bring the
	// line back to its pre-merge quantity, not the clamp delta.
	f.orders.saveErr = errors.New("connection reset")
	_, err = f.svc.AddItem(ctx, o.ID, "v1", -5)
	require.Error(t, err)

	assert.Equal(t, 3, li.Quantity)
	assert.True(t, o.Total.Equal(beforeTotal))
}

func TestService_ReservedUnitsKeepLineValid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)
	o, err = f.svc.AddItem(ctx, o.ID, "v2", 3)
	require.NoError(t, err)
	li := o.LineItems[0]
	li.ReservedUnits = 3

	// Stock elsewhere dried up, but the fulfilled line stays valid.
	f.stock.items["v2"].OnHand = 0
	_, err = f.svc.UpdateQuantity(ctx, o.ID, li.ID, 3)
	assert.NoError(t, err)
}

func TestService_ApplyCoupon(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)
	o, err = f.svc.AddItem(ctx, o.ID, "v1", 1)
	require.NoError(t, err)

	o, out, err := f.svc.ApplyCoupon(ctx, o.ID, "SAVE10")
	require.NoError(t, err)
	require.True(t, out.Success)

	// 100 − 10 discount, 10% tax on the 90 basis.
	assert.True(t, o.PromoTotal.Equal(decimal.NewFromInt(-10)))
	assert.True(t, o.AdditionalTaxTotal.Equal(decimal.NewFromInt(9)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(99)))

	_, out, err = f.svc.ApplyCoupon(ctx, o.ID, "SAVE10")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, promotion.ReasonAlreadyApplied, out.Reason)

	_, out, err = f.svc.ApplyCoupon(ctx, o.ID, "ZZZ")
	require.NoError(t, err)
	assert.Equal(t, promotion.ReasonNotFound, out.Reason)
}

func TestService_RemoveItemAndShipment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "USD", "us")
	require.NoError(t, err)
	o, err = f.svc.AddItem(ctx, o.ID, "v1", 1)
	require.NoError(t, err)

	o, err = f.svc.AddShipment(ctx, o.ID, "standard", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, o.ShipTotal.Equal(decimal.NewFromInt(10)))
	// No shipping tax rate is configured for the zone, so the shipment
	// contributes its bare cost.
	assert.True(t, o.Total.Equal(decimal.NewFromInt(120)))

	o, err = f.svc.RemoveItem(ctx, o.ID, o.LineItems[0].ID)
	require.NoError(t, err)
	assert.Empty(t, o.LineItems)
	assert.True(t, o.ItemTotal.IsZero())
	assert.True(t, o.Total.Equal(decimal.NewFromInt(10)))
}
