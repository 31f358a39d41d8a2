package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrVariantNotFound is returned when a requested variant does not exist.
var ErrVariantNotFound = errors.New("variant not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Variants    []Variant
}

// Variant is the sellable unit of a product: the thing a line item
// references and the thing stock is tracked against.
type Variant struct {
	ID          string
	ProductID   string
	SKU         string
	Price       decimal.Decimal
	Currency    string
	TaxCategory string
}

// Repository defines read operations for the catalog.
type Repository interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetVariant(ctx context.Context, id string) (*Variant, error)
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
}
