package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

// CreateOrder creates an empty order in the requested currency and tax zone.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency string
		TaxZone  string
	}
	err := jx.Decode(r.Body, 512).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "currency":
			req.Currency, err = d.Str()
		case "tax_zone":
			req.TaxZone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Currency == "" {
		writeError(w, http.StatusBadRequest, "currency required")
		return
	}

	o, err := h.checkout.CreateOrder(r.Context(), req.Currency, req.TaxZone)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder returns the full order aggregate.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.GetOrder(r.Context(), r.PathValue("orderID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// AddItem adds quantity of a variant to the order.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VariantID string
		Quantity  int
	}
	err := jx.Decode(r.Body, 512).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "variant_id":
			req.VariantID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil || req.VariantID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.checkout.AddItem(r.Context(), r.PathValue("orderID"), req.VariantID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateQuantity changes a line's quantity.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var (
		quantity int
		seen     bool
	)
	err := jx.Decode(r.Body, 512).Obj(func(d *jx.Decoder, key string) error {
		var err error
		if key == "quantity" {
			quantity, err = d.Int()
			seen = true
			return err
		}
		return d.Skip()
	})
	if err != nil || !seen {
		writeError(w, http.StatusBadRequest, "quantity required")
		return
	}

	o, err := h.checkout.UpdateQuantity(r.Context(), r.PathValue("orderID"), r.PathValue("itemID"), quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// RemoveItem detaches a line from the order.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.RemoveItem(r.Context(), r.PathValue("orderID"), r.PathValue("itemID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// AddShipment attaches a shipment to the order.
func (h *Handler) AddShipment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string
		Cost   float64
	}
	err := jx.Decode(r.Body, 512).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "method":
			req.Method, err = d.Str()
		case "cost":
			req.Cost, err = d.Float64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil || req.Cost < 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.checkout.AddShipment(r.Context(), r.PathValue("orderID"), req.Method, decimal.NewFromFloat(req.Cost))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ApplyCoupon applies a coupon code. Coupon failures come back with 422 and a
// typed reason; only infrastructure faults surface as 500s.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var code string
	err := jx.Decode(r.Body, 512).Obj(func(d *jx.Decoder, key string) error {
		var err error
		if key == "code" {
			code, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err != nil || code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}

	o, outcome, err := h.checkout.ApplyCoupon(r.Context(), r.PathValue("orderID"), code)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeCouponOutcome(e, outcome, o) })
}

func encodeCouponOutcome(e *jx.Encoder, outcome promotion.Outcome, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(outcome.Success) })
		if outcome.Success {
			e.Field("promotion", func(e *jx.Encoder) { e.Str(outcome.Promotion.Name) })
		} else {
			e.Field("reason", func(e *jx.Encoder) { e.Str(string(outcome.Reason)) })
			e.Field("message", func(e *jx.Encoder) { e.Str(outcome.Reason.Message()) })
		}
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("tax_zone", func(e *jx.Encoder) { e.Str(o.TaxZone) })

		e.Field("line_items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range o.LineItems {
					encodeLineItem(e, li)
				}
			})
		})
		e.Field("shipments", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range o.Shipments {
					encodeShipment(e, s)
				}
			})
		})
		e.Field("adjustments", func(e *jx.Encoder) {
			encodeAdjustments(e, o.Adjustments().All())
		})

		encodeMoney(e, "item_total", o.ItemTotal)
		encodeMoney(e, "ship_total", o.ShipTotal)
		encodeMoney(e, "promo_total", o.PromoTotal)
		encodeMoney(e, "included_tax_total", o.IncludedTaxTotal)
		encodeMoney(e, "additional_tax_total", o.AdditionalTaxTotal)
		encodeMoney(e, "adjustment_total", o.AdjustmentTotal)
		encodeMoney(e, "total", o.Total)
	})
}

func encodeLineItem(e *jx.Encoder, li *order.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(li.ID) })
		e.Field("variant_id", func(e *jx.Encoder) { e.Str(li.VariantID) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(li.SKU) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
		encodeMoney(e, "price", li.Price)
		encodeMoney(e, "amount", li.Amount())
		encodeMoney(e, "discounted_amount", li.DiscountedAmount())
		encodeMoney(e, "total", li.Total())
		e.Field("adjustments", func(e *jx.Encoder) {
			encodeAdjustments(e, li.Adjustments().All())
		})
	})
}

func encodeShipment(e *jx.Encoder, s *order.Shipment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("method", func(e *jx.Encoder) { e.Str(s.Method) })
		encodeMoney(e, "cost", s.Cost)
		encodeMoney(e, "total", s.Total())
		e.Field("adjustments", func(e *jx.Encoder) {
			encodeAdjustments(e, s.Adjustments().All())
		})
	})
}

func encodeAdjustments(e *jx.Encoder, adjs []*order.Adjustment) {
	e.Arr(func(e *jx.Encoder) {
		for _, a := range adjs {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(a.ID) })
				e.Field("label", func(e *jx.Encoder) { e.Str(a.Label) })
				e.Field("kind", func(e *jx.Encoder) { e.Str(string(a.Kind)) })
				if a.Kind == order.KindTax {
					e.Field("tax_mode", func(e *jx.Encoder) { e.Str(string(a.TaxMode)) })
				}
				encodeMoney(e, "amount", a.Amount)
				e.Field("eligible", func(e *jx.Encoder) { e.Bool(a.Eligible) })
			})
		}
	})
}

func encodeMoney(e *jx.Encoder, field string, d decimal.Decimal) {
	e.Field(field, func(e *jx.Encoder) { e.Float64(d.InexactFloat64()) })
}
