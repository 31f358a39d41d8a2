package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/tax"
)

const (
	ratesForZoneSQL = `SELECT id, name, zone, category, value, included_in_price
		FROM tax_rates WHERE zone = $1 ORDER BY id`

	getTaxRateSQL = `SELECT id, name, zone, category, value, included_in_price
		FROM tax_rates WHERE id = $1`
)

var _ tax.Repository = (*TaxRepository)(nil)

// TaxRepository implements tax.Repository backed by PostgreSQL.
type TaxRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRepository returns a TaxRepository that uses the given pool.
func NewTaxRepository(pool *pgxpool.Pool) *TaxRepository {
	return &TaxRepository{pool: pool}
}

// RatesForZone returns every rate configured for the given zone.
func (r *TaxRepository) RatesForZone(ctx context.Context, zone string) ([]*tax.Rate, error) {
	rows, err := r.pool.Query(ctx, ratesForZoneSQL, zone)
	if err != nil {
		return nil, fmt.Errorf("listing tax rates for zone %q: %w", zone, err)
	}

	rates, err := pgx.CollectRows(rows, scanTaxRate)
	if err != nil {
		return nil, fmt.Errorf("listing tax rates for zone %q: %w", zone, err)
	}
	return rates, nil
}

// GetRate returns a single rate by its identifier.
func (r *TaxRepository) GetRate(ctx context.Context, id string) (*tax.Rate, error) {
	rows, err := r.pool.Query(ctx, getTaxRateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting tax rate %q: %w", id, err)
	}

	rate, err := pgx.CollectExactlyOneRow(rows, scanTaxRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tax rate %q not found", id)
		}
		return nil, fmt.Errorf("getting tax rate %q: %w", id, err)
	}
	return rate, nil
}

func scanTaxRate(row pgx.CollectableRow) (*tax.Rate, error) {
	var r tax.Rate
	err := row.Scan(&r.ID, &r.Name, &r.Zone, &r.Category, &r.Value, &r.IncludedInPrice)
	return &r, err
}
