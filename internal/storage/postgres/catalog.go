package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, description, category
		FROM products ORDER BY id`

	getVariantSQL = `SELECT id, product_id, sku, price, currency, tax_category
		FROM variants WHERE id = $1`

	getVariantsSQL = `SELECT id, product_id, sku, price, currency, tax_category
		FROM variants WHERE id = ANY($1)`

	listVariantsSQL = `SELECT id, product_id, sku, price, currency, tax_category
		FROM variants ORDER BY product_id, id`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListProducts returns all products ordered by ID, each with its variants.
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	vRows, err := r.pool.Query(ctx, listVariantsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	variants, err := pgx.CollectRows(vRows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}

	byProduct := make(map[string][]catalog.Variant, len(products))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
	}
	return products, nil
}

// GetVariant returns a single variant by its identifier.
func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// GetVariants returns variants matching any of the given IDs.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category)
	return p, err
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Price, &v.Currency, &v.TaxCategory)
	return v, err
}
