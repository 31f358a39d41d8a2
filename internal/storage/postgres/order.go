package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, currency, tax_zone, item_total, ship_total, promo_total,
		included_tax_total, additional_tax_total, adjustment_total, total, created_at
		FROM orders WHERE id = $1`

	getLineItemsSQL = `SELECT id, variant_id, sku, tax_category, quantity, price, currency,
		reserved_units, promotion_id, promo_total, included_tax_total,
		additional_tax_total, adjustment_total
		FROM line_items WHERE order_id = $1 ORDER BY position, id`

	getShipmentsSQL = `SELECT id, method, cost, promo_total, included_tax_total,
		additional_tax_total, adjustment_total
		FROM shipments WHERE order_id = $1 ORDER BY position, id`

	getAdjustmentsSQL = `SELECT id, adjustable_kind, adjustable_id, source_kind, source_id,
		source_owner, label, amount, eligible, kind, tax_mode, seq, created_at
		FROM adjustments WHERE order_id = $1 ORDER BY seq, id`

	createOrderSQL = `INSERT INTO orders (id, currency, tax_zone, created_at)
		VALUES ($1, $2, $3, $4)`

	upsertOrderSQL = `INSERT INTO orders (id, currency, tax_zone, item_total, ship_total,
		promo_total, included_tax_total, additional_tax_total, adjustment_total, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			currency = EXCLUDED.currency,
			tax_zone = EXCLUDED.tax_zone,
			item_total = EXCLUDED.item_total,
			ship_total = EXCLUDED.ship_total,
			promo_total = EXCLUDED.promo_total,
			included_tax_total = EXCLUDED.included_tax_total,
			additional_tax_total = EXCLUDED.additional_tax_total,
			adjustment_total = EXCLUDED.adjustment_total,
			total = EXCLUDED.total`

	insertLineItemSQL = `INSERT INTO line_items (id, order_id, variant_id, sku, tax_category,
		quantity, price, currency, reserved_units, promotion_id, promo_total,
		included_tax_total, additional_tax_total, adjustment_total, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertShipmentSQL = `INSERT INTO shipments (id, order_id, method, cost, promo_total,
		included_tax_total, additional_tax_total, adjustment_total, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertAdjustmentSQL = `INSERT INTO adjustments (id, order_id, adjustable_kind, adjustable_id,
		source_kind, source_id, source_owner, label, amount, eligible, kind, tax_mode, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	// Writers to the same order queue on this lock for the duration of the
	// transaction, so two concurrent saves can never interleave.
	advisoryLockSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`
)

const (
	adjustableOrder    = "order"
	adjustableLineItem = "line_item"
	adjustableShipment = "shipment"
)

var _ checkout.Repository = (*OrderRepository)(nil)

// OrderRepository persists order aggregates in PostgreSQL. Adjustments are
// stored with a source reference and re-bound to their promotion action or
// tax rate on load.
type OrderRepository struct {
	pool   *pgxpool.Pool
	promos *PromotionRepository
	taxes  *TaxRepository
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{
		pool:   pool,
		promos: NewPromotionRepository(pool),
		taxes:  NewTaxRepository(pool),
	}
}

// Create persists a freshly created empty order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL, o.ID, o.Currency, o.TaxZone, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get rebuilds the full aggregate: the order row, its line items and
// shipments, and every adjustment re-bound to its source.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	liRows, err := r.pool.Query(ctx, getLineItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading line items for order %q: %w", id, err)
	}
	lines, err := pgx.CollectRows(liRows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("loading line items for order %q: %w", id, err)
	}
	o.LineItems = lines

	shipRows, err := r.pool.Query(ctx, getShipmentsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading shipments for order %q: %w", id, err)
	}
	ships, err := pgx.CollectRows(shipRows, scanShipment)
	if err != nil {
		return nil, fmt.Errorf("loading shipments for order %q: %w", id, err)
	}
	o.Shipments = ships

	if err := r.loadAdjustments(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Save writes the whole aggregate in one transaction. Child rows are
// replaced wholesale; reconciling per-row diffs buys nothing at cart sizes.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning save tx for order %q: %w", o.ID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, advisoryLockSQL, o.ID); err != nil {
		return fmt.Errorf("locking order %q: %w", o.ID, err)
	}

	_, err = tx.Exec(ctx, upsertOrderSQL,
		o.ID, o.Currency, o.TaxZone, o.ItemTotal, o.ShipTotal, o.PromoTotal,
		o.IncludedTaxTotal, o.AdditionalTaxTotal, o.AdjustmentTotal, o.Total, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting order %q: %w", o.ID, err)
	}

	for _, table := range []string{"line_items", "shipments", "adjustments"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE order_id = $1`, o.ID); err != nil {
			return fmt.Errorf("clearing %s for order %q: %w", table, o.ID, err)
		}
	}

	for i, li := range o.LineItems {
		t := li.Totals()
		_, err = tx.Exec(ctx, insertLineItemSQL,
			li.ID, o.ID, li.VariantID, li.SKU, li.TaxCategory, li.Quantity, li.Price,
			li.Currency, li.ReservedUnits, li.PromotionID, t.PromoTotal,
			t.IncludedTaxTotal, t.AdditionalTaxTotal, t.AdjustmentTotal, i)
		if err != nil {
			return fmt.Errorf("inserting line item %q: %w", li.ID, err)
		}
	}

	for i, s := range o.Shipments {
		t := s.Totals()
		_, err = tx.Exec(ctx, insertShipmentSQL,
			s.ID, o.ID, s.Method, s.Cost, t.PromoTotal,
			t.IncludedTaxTotal, t.AdditionalTaxTotal, t.AdjustmentTotal, i)
		if err != nil {
			return fmt.Errorf("inserting shipment %q: %w", s.ID, err)
		}
	}

	for _, adj := range o.Adjustables() {
		kind := adjustableKind(adj)
		for _, a := range adj.Adjustments().All() {
			ref := a.Source.Ref()
			_, err = tx.Exec(ctx, insertAdjustmentSQL,
				a.ID, o.ID, kind, adj.AdjustableID(), ref.Kind, ref.ID, ref.Owner,
				a.Label, a.Amount, a.Eligible, a.Kind, a.TaxMode, a.Seq, a.CreatedAt)
			if err != nil {
				return fmt.Errorf("inserting adjustment %q: %w", a.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing save for order %q: %w", o.ID, err)
	}
	return nil
}

func adjustableKind(adj order.Adjustable) string {
	switch adj.(type) {
	case *order.LineItem:
		return adjustableLineItem
	case *order.Shipment:
		return adjustableShipment
	default:
		return adjustableOrder
	}
}

type adjustmentRow struct {
	ID             string
	AdjustableKind string
	AdjustableID   string
	SourceKind     string
	SourceID       string
	SourceOwner    string
	Label          string
	Amount         decimal.Decimal
	Eligible       bool
	Kind           string
	TaxMode        string
	Seq            int
	CreatedAt      time.Time
}

func scanAdjustmentRow(row pgx.CollectableRow) (adjustmentRow, error) {
	var a adjustmentRow
	err := row.Scan(&a.ID, &a.AdjustableKind, &a.AdjustableID, &a.SourceKind, &a.SourceID,
		&a.SourceOwner, &a.Label, &a.Amount, &a.Eligible, &a.Kind, &a.TaxMode, &a.Seq, &a.CreatedAt)
	return a, err
}

// loadAdjustments re-binds every stored adjustment to its adjustable and its
// source. Sources are resolved once per distinct ID and shared, so the
// best-promotion tie-break sees identical source references across targets.
func (r *OrderRepository) loadAdjustments(ctx context.Context, o *order.Order) error {
	rows, err := r.pool.Query(ctx, getAdjustmentsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("loading adjustments for order %q: %w", o.ID, err)
	}
	raws, err := pgx.CollectRows(rows, scanAdjustmentRow)
	if err != nil {
		return fmt.Errorf("loading adjustments for order %q: %w", o.ID, err)
	}
	if len(raws) == 0 {
		return nil
	}

	targets := make(map[string]order.Adjustable, len(o.LineItems)+len(o.Shipments)+1)
	for _, li := range o.LineItems {
		targets[adjustableLineItem+":"+li.ID] = li
	}
	for _, s := range o.Shipments {
		targets[adjustableShipment+":"+s.ID] = s
	}
	targets[adjustableOrder+":"+o.ID] = o

	sources := make(map[string]order.AdjustmentSource)
	grouped := make(map[order.Adjustable][]*order.Adjustment)

	for _, raw := range raws {
		target, ok := targets[raw.AdjustableKind+":"+raw.AdjustableID]
		if !ok {
			return fmt.Errorf("adjustment %q references unknown %s %q",
				raw.ID, raw.AdjustableKind, raw.AdjustableID)
		}

		srcKey := raw.SourceKind + ":" + raw.SourceID
		src, ok := sources[srcKey]
		if !ok {
			src, err = r.resolveSource(ctx, raw)
			if err != nil {
				return fmt.Errorf("resolving source for adjustment %q: %w", raw.ID, err)
			}
			sources[srcKey] = src
		}

		grouped[target] = append(grouped[target], &order.Adjustment{
			ID:        raw.ID,
			Label:     raw.Label,
			Source:    src,
			Amount:    raw.Amount,
			Eligible:  raw.Eligible,
			Kind:      order.AdjustmentKind(raw.Kind),
			TaxMode:   order.TaxMode(raw.TaxMode),
			CreatedAt: raw.CreatedAt,
			Seq:       raw.Seq,
		})
	}

	for target, adjs := range grouped {
		target.Adjustments().Restore(adjs)
		*target.Totals() = totalsFromAdjustments(adjs)
	}
	return nil
}

func (r *OrderRepository) resolveSource(ctx context.Context, raw adjustmentRow) (order.AdjustmentSource, error) {
	switch order.SourceKind(raw.SourceKind) {
	case order.SourcePromotionAction:
		return r.promos.GetAction(ctx, raw.SourceID)
	case order.SourceTaxRate:
		return r.taxes.GetRate(ctx, raw.SourceID)
	default:
		return nil, fmt.Errorf("unknown source kind %q", raw.SourceKind)
	}
}

// totalsFromAdjustments rebuilds a totals block from persisted amounts, the
// same sums recalculation writes.
func totalsFromAdjustments(adjs []*order.Adjustment) order.Totals {
	var t order.Totals
	for _, a := range adjs {
		if !a.Eligible {
			continue
		}
		switch a.Kind {
		case order.KindPromotion:
			t.PromoTotal = t.PromoTotal.Add(a.Amount)
		case order.KindTax:
			if a.TaxMode == order.TaxIncluded {
				t.IncludedTaxTotal = t.IncludedTaxTotal.Add(a.Amount)
			} else {
				t.AdditionalTaxTotal = t.AdditionalTaxTotal.Add(a.Amount)
			}
		}
	}
	t.AdjustmentTotal = t.PromoTotal.Add(t.AdditionalTaxTotal)
	return t
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.Currency, &o.TaxZone, &o.ItemTotal, &o.ShipTotal,
		&o.PromoTotal, &o.IncludedTaxTotal, &o.AdditionalTaxTotal,
		&o.AdjustmentTotal, &o.Total, &o.CreatedAt)
	return &o, err
}

func scanLineItem(row pgx.CollectableRow) (*order.LineItem, error) {
	var (
		li order.LineItem
		t  order.Totals
	)
	err := row.Scan(&li.ID, &li.VariantID, &li.SKU, &li.TaxCategory, &li.Quantity,
		&li.Price, &li.Currency, &li.ReservedUnits, &li.PromotionID,
		&t.PromoTotal, &t.IncludedTaxTotal, &t.AdditionalTaxTotal, &t.AdjustmentTotal)
	if err != nil {
		return nil, err
	}
	*li.Totals() = t
	return &li, nil
}

func scanShipment(row pgx.CollectableRow) (*order.Shipment, error) {
	var (
		s order.Shipment
		t order.Totals
	)
	err := row.Scan(&s.ID, &s.Method, &s.Cost,
		&t.PromoTotal, &t.IncludedTaxTotal, &t.AdditionalTaxTotal, &t.AdjustmentTotal)
	if err != nil {
		return nil, err
	}
	*s.Totals() = t
	return &s, nil
}
