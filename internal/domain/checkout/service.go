package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/domain/stock"
	"github.com/xenking/storefront-checkout/internal/domain/tax"
)

// Repository persists order aggregates. Save writes the whole aggregate in
// one transaction; the storage layer serializes concurrent writers per
// order with an advisory lock.
type Repository interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	Create(ctx context.Context, o *order.Order) error
	Save(ctx context.Context, o *order.Order) error
}

// Service orchestrates cart mutations: every content change validates its
// inputs, reattaches tax adjustments, resynchronizes totals and persists
// the aggregate. Callers never observe an order with stale totals.
type Service struct {
	variants catalog.Repository
	stock    *stock.AvailabilityValidator
	taxes    *tax.Applier
	recalc   *order.Recalculator
	coupons  *promotion.Applicator
	orders   Repository
}

// NewService wires a checkout Service. The coupon applicator is constructed
// here so its post-activation resync also reattaches tax adjustments for
// lines the activation may have added.
func NewService(
	variants catalog.Repository,
	stockRepo stock.Repository,
	taxRepo tax.Repository,
	promos promotion.Repository,
	orders Repository,
) *Service {
	s := &Service{
		variants: variants,
		stock:    stock.NewAvailabilityValidator(stockRepo),
		taxes:    tax.NewApplier(taxRepo),
		recalc:   order.NewRecalculator(),
		orders:   orders,
	}
	s.coupons = promotion.NewApplicator(promos, taxedResync{s})
	return s
}

// taxedResync adapts the service's tax-then-recalculate step to the
// promotion.Resyncer the applicator expects.
type taxedResync struct {
	s *Service
}

func (t taxedResync) Resync(ctx context.Context, o *order.Order) error {
	return t.s.resync(ctx, o)
}

func (s *Service) resync(ctx context.Context, o *order.Order) error {
	if err := s.taxes.Adjust(ctx, o); err != nil {
		return err
	}
	return s.recalc.Resync(ctx, o)
}

// CreateOrder creates and persists an empty order.
func (s *Service) CreateOrder(ctx context.Context, currency, taxZone string) (*order.Order, error) {
	o := order.New(currency, taxZone)
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// GetOrder loads an order aggregate.
func (s *Service) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return s.orders.Get(ctx, id)
}

// AddItem adds quantity of a variant to the order, merging into an existing
// line. Stock and currency are validated before anything is committed; a
// validation failure leaves the order untouched.
func (s *Service) AddItem(ctx context.Context, orderID, variantID string, quantity int) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	v, err := s.variants.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	restore := o.Snapshot()
	// SetQuantity clamps at zero, so the pre-merge quantity must be taken
	// from the line itself, not recomputed from the merged value.
	prevQty := 0
	if existing := o.LineItemForVariant(variantID); existing != nil {
		prevQty = existing.Quantity
	}
	li, err := o.AddLineItem(*v, quantity)
	if err != nil {
		return nil, err
	}

	if err := s.stock.Validate(ctx, li); err != nil {
		restore()
		li.SetQuantity(prevQty)
		return nil, err
	}

	if err := s.finish(ctx, o, restore); err != nil {
		li.SetQuantity(prevQty)
		return nil, err
	}
	return o, nil
}

// UpdateQuantity changes a line's quantity. Negative values clamp to zero;
// a zero-quantity line is kept and always passes stock validation.
func (s *Service) UpdateQuantity(ctx context.Context, orderID, lineItemID string, quantity int) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	li, err := o.FindLineItem(lineItemID)
	if err != nil {
		return nil, err
	}

	restore := o.Snapshot()
	prevQty := li.Quantity
	li.SetQuantity(quantity)

	if err := s.stock.Validate(ctx, li); err != nil {
		restore()
		li.SetQuantity(prevQty)
		return nil, err
	}

	if err := s.finish(ctx, o, restore); err != nil {
		li.SetQuantity(prevQty)
		return nil, err
	}
	return o, nil
}

// RemoveItem detaches a line and resynchronizes.
func (s *Service) RemoveItem(ctx context.Context, orderID, lineItemID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	restore := o.Snapshot()
	if err := o.RemoveLineItem(lineItemID); err != nil {
		return nil, err
	}
	if err := s.finish(ctx, o, restore); err != nil {
		return nil, err
	}
	return o, nil
}

// AddShipment attaches a shipment and resynchronizes.
func (s *Service) AddShipment(ctx context.Context, orderID, method string, cost decimal.Decimal) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	restore := o.Snapshot()
	o.AddShipment(method, cost)
	if err := s.finish(ctx, o, restore); err != nil {
		return nil, err
	}
	return o, nil
}

// ApplyCoupon runs one coupon-apply attempt. Coupon failures come back as a
// typed outcome with the order unchanged; only infrastructure faults are
// returned as errors.
func (s *Service) ApplyCoupon(ctx context.Context, orderID, code string) (*order.Order, promotion.Outcome, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, promotion.Outcome{}, err
	}

	outcome := s.coupons.Apply(ctx, o, code)
	if !outcome.Success {
		return o, outcome, nil
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, promotion.Outcome{}, errors.Wrap(err, "save order")
	}
	return o, outcome, nil
}

// finish reattaches taxes, resyncs totals and persists; any failure rolls
// the in-memory aggregate back so the caller never sees partial state.
func (s *Service) finish(ctx context.Context, o *order.Order, restore func()) error {
	if err := s.resync(ctx, o); err != nil {
		restore()
		return err
	}
	if err := s.orders.Save(ctx, o); err != nil {
		restore()
		return errors.Wrap(err, "save order")
	}
	return nil
}
