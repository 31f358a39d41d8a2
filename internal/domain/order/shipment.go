package order

import "github.com/shopspring/decimal"

// Shipment carries goods for an order. It participates in recalculation
// exactly like a line item: its cost is the base amount promotion and tax
// sources adjust.
type Shipment struct {
	ID     string
	Method string
	Cost   decimal.Decimal

	adjustments AdjustmentList
	totals      Totals
}

// Total is the payable amount for this shipment.
func (s *Shipment) Total() decimal.Decimal {
	return s.Cost.Add(s.totals.AdjustmentTotal)
}

func (s *Shipment) AdjustableID() string         { return s.ID }
func (s *Shipment) BaseAmount() decimal.Decimal  { return s.Cost }
func (s *Shipment) Adjustments() *AdjustmentList { return &s.adjustments }
func (s *Shipment) Totals() *Totals              { return &s.totals }

var _ Adjustable = (*Shipment)(nil)
