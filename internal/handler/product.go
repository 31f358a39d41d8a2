package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListProducts returns every product in the catalog with its variants.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListProducts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
					e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
					e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
					e.Field("variants", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, v := range p.Variants {
								e.Obj(func(e *jx.Encoder) {
									e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
									e.Field("sku", func(e *jx.Encoder) { e.Str(v.SKU) })
									encodeMoney(e, "price", v.Price)
									e.Field("currency", func(e *jx.Encoder) { e.Str(v.Currency) })
								})
							}
						})
					})
				})
			}
		})
	})
}
