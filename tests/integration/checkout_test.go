//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
)

func TestOrderLifecycle(t *testing.T) {
	id := createOrder(t)

	status, body := doJSON(t, http.MethodPost, "/api/orders/"+id+"/items",
		`{"variant_id":"v1","quantity":1}`)
	if status != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d (%v)", status, body)
	}
	if got := body["total"].(float64); got != 110 {
		t.Fatalf("total after add: expected 110, got %v", got)
	}

	// Reload from storage: totals and adjustments must round-trip.
	status, body = doJSON(t, http.MethodGet, "/api/orders/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", status)
	}
	if got := body["additional_tax_total"].(float64); got != 10 {
		t.Fatalf("reloaded tax total: expected 10, got %v", got)
	}

	items := body["line_items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(items))
	}
	itemID := items[0].(map[string]any)["id"].(string)

	status, body = doJSON(t, http.MethodPatch, "/api/orders/"+id+"/items/"+itemID,
		`{"quantity":3}`)
	if status != http.StatusOK {
		t.Fatalf("update quantity: expected 200, got %d", status)
	}
	if got := body["total"].(float64); got != 330 {
		t.Fatalf("total after update: expected 330, got %v", got)
	}

	status, body = doJSON(t, http.MethodDelete, "/api/orders/"+id+"/items/"+itemID, "")
	if status != http.StatusOK {
		t.Fatalf("remove item: expected 200, got %d", status)
	}
	if got := body["total"].(float64); got != 0 {
		t.Fatalf("total after remove: expected 0, got %v", got)
	}
}

func TestInsufficientStockLeavesOrderPersisted(t *testing.T) {
	id := createOrder(t)

	status, _ := doJSON(t, http.MethodPost, "/api/orders/"+id+"/items",
		`{"variant_id":"v2","quantity":1}`)
	if status != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", status)
	}

	// Only 2 on hand and not backorderable.
	status, body := doJSON(t, http.MethodPost, "/api/orders/"+id+"/items",
		`{"variant_id":"v2","quantity":5}`)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("add item over stock: expected 422, got %d", status)
	}

	status, body = doJSON(t, http.MethodGet, "/api/orders/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", status)
	}
	items := body["line_items"].([]any)
	if qty := items[0].(map[string]any)["quantity"].(float64); qty != 1 {
		t.Fatalf("stored quantity: expected 1, got %v", qty)
	}
}

func TestCouponRoundTrip(t *testing.T) {
	id := createOrder(t)

	status, _ := doJSON(t, http.MethodPost, "/api/orders/"+id+"/items",
		`{"variant_id":"v1","quantity":1}`)
	if status != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", status)
	}

	// Case-insensitive code lookup.
	status, body := doJSON(t, http.MethodPost, "/api/orders/"+id+"/coupon", `{"code":"save10"}`)
	if status != http.StatusOK {
		t.Fatalf("apply coupon: expected 200, got %d (%v)", status, body)
	}
	ord := body["order"].(map[string]any)
	// 100 - 10% + 10% tax on the 90 basis.
	if got := ord["total"].(float64); got != 99 {
		t.Fatalf("total after coupon: expected 99, got %v", got)
	}

	// The persisted adjustment must re-bind to its promotion action on load.
	status, body = doJSON(t, http.MethodGet, "/api/orders/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", status)
	}
	if got := body["promo_total"].(float64); got != -10 {
		t.Fatalf("reloaded promo total: expected -10, got %v", got)
	}

	// Further mutations recalculate through the reloaded source.
	items := body["line_items"].([]any)
	itemID := items[0].(map[string]any)["id"].(string)
	status, body = doJSON(t, http.MethodPatch, "/api/orders/"+id+"/items/"+itemID,
		`{"quantity":2}`)
	if status != http.StatusOK {
		t.Fatalf("update quantity: expected 200, got %d", status)
	}
	// 200 - 20 + 18 tax.
	if got := body["total"].(float64); got != 198 {
		t.Fatalf("total after requantify: expected 198, got %v", got)
	}

	status, body = doJSON(t, http.MethodPost, "/api/orders/"+id+"/coupon", `{"code":"SAVE10"}`)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("reapply coupon: expected 422, got %d", status)
	}
	if reason := body["reason"].(string); reason != "coupon_code_already_applied" {
		t.Fatalf("reapply reason: expected already applied, got %q", reason)
	}
}

func TestCouponUsageLimitAcrossOrders(t *testing.T) {
	first := createOrder(t)
	status, _ := doJSON(t, http.MethodPost, "/api/orders/"+first+"/items",
		`{"variant_id":"v1","quantity":1}`)
	if status != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", status)
	}
	status, _ = doJSON(t, http.MethodPost, "/api/orders/"+first+"/coupon", `{"code":"ONCE20"}`)
	if status != http.StatusOK {
		t.Fatalf("first apply: expected 200, got %d", status)
	}

	second := createOrder(t)
	status, _ = doJSON(t, http.MethodPost, "/api/orders/"+second+"/items",
		`{"variant_id":"v1","quantity":1}`)
	if status != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", status)
	}
	status, body := doJSON(t, http.MethodPost, "/api/orders/"+second+"/coupon", `{"code":"ONCE20"}`)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("second apply: expected 422, got %d", status)
	}
	if reason := body["reason"].(string); reason != "coupon_code_max_usage" {
		t.Fatalf("second apply reason: expected max usage, got %q", reason)
	}
}

func TestUnknownCoupon(t *testing.T) {
	id := createOrder(t)

	status, body := doJSON(t, http.MethodPost, "/api/orders/"+id+"/coupon", `{"code":"NOPE"}`)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if reason := body["reason"].(string); reason != "coupon_code_not_found" {
		t.Fatalf("reason: expected not found, got %q", reason)
	}
}

func TestShipmentTaxedAndDiscountable(t *testing.T) {
	id := createOrder(t)

	status, _ := doJSON(t, http.MethodPost, "/api/orders/"+id+"/items",
		`{"variant_id":"v1","quantity":1}`)
	if status != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", status)
	}

	status, body := doJSON(t, http.MethodPost, "/api/orders/"+id+"/shipments",
		`{"method":"ground","cost":20}`)
	if status != http.StatusOK {
		t.Fatalf("add shipment: expected 200, got %d", status)
	}
	// 100 + 20 shipping + 10 item tax + 2 shipping tax.
	if got := body["total"].(float64); got != 132 {
		t.Fatalf("total with shipment: expected 132, got %v", got)
	}
}

// Concurrent writers to one order must serialize on the storage advisory
// lock; every request succeeds and the stored aggregate stays consistent.
func TestConcurrentUpdatesSerialize(t *testing.T) {
	id := createOrder(t)

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resp, err := http.Post(baseURL+"/api/orders/"+id+"/items", "application/json",
				strings.NewReader(`{"variant_id":"v1","quantity":1}`))
			if err != nil {
				errs <- fmt.Sprintf("request %d: %v", n, err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Sprintf("request %d: status %d", n, resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	status, body := doJSON(t, http.MethodGet, "/api/orders/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", status)
	}
	itemTotal := body["item_total"].(float64)
	taxTotal := body["additional_tax_total"].(float64)
	total := body["total"].(float64)
	if total != itemTotal+taxTotal {
		t.Fatalf("inconsistent totals: %v != %v + %v", total, itemTotal, taxTotal)
	}
}
