package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Handler serves the checkout HTTP API, delegating all business logic to the
// checkout service and catalog repository.
type Handler struct {
	products catalog.Repository
	checkout *checkout.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products catalog.Repository, svc *checkout.Service) *Handler {
	return &Handler{products: products, checkout: svc}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{orderID}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{orderID}/items", h.AddItem)
	mux.HandleFunc("PATCH /api/orders/{orderID}/items/{itemID}", h.UpdateQuantity)
	mux.HandleFunc("DELETE /api/orders/{orderID}/items/{itemID}", h.RemoveItem)
	mux.HandleFunc("POST /api/orders/{orderID}/shipments", h.AddShipment)
	mux.HandleFunc("POST /api/orders/{orderID}/coupon", h.ApplyCoupon)
}

// writeJSON encodes an object built by fill and writes it with the status.
func writeJSON(w http.ResponseWriter, status int, fill func(e *jx.Encoder)) {
	var e jx.Encoder
	fill(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the standard error body {code, message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// respondError maps domain errors onto HTTP statuses. Validation failures are
// unprocessable entities, missing aggregates are 404s, everything else is an
// internal error logged with its cause.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *order.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusUnprocessableEntity, vErr.Error())
		return
	}

	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrLineItemNotFound):
		writeError(w, http.StatusNotFound, "line item not found")
	case errors.Is(err, catalog.ErrVariantNotFound):
		writeError(w, http.StatusNotFound, "variant not found")
	default:
		zctx.From(r.Context()).Error("Internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
