package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/stock"
)

const getStockItemSQL = `SELECT variant_id, on_hand, backorderable
	FROM stock_items WHERE variant_id = $1`

var _ stock.Repository = (*StockRepository)(nil)

// StockRepository implements stock.Repository backed by PostgreSQL.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository returns a StockRepository that uses the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

// ItemFor returns the stock record of a variant.
func (r *StockRepository) ItemFor(ctx context.Context, variantID string) (*stock.Item, error) {
	rows, err := r.pool.Query(ctx, getStockItemSQL, variantID)
	if err != nil {
		return nil, fmt.Errorf("getting stock for variant %q: %w", variantID, err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (stock.Item, error) {
		var i stock.Item
		err := row.Scan(&i.VariantID, &i.OnHand, &i.Backorderable)
		return i, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stock.ErrItemNotFound
		}
		return nil, fmt.Errorf("getting stock for variant %q: %w", variantID, err)
	}
	return &item, nil
}
