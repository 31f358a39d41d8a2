package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

const (
	getPromotionByCodeSQL = `SELECT id, name, code, usage_limit, uses, valid_from, valid_until
		FROM promotions WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	getPromotionActionsSQL = `SELECT id, promotion_id, kind, label, config
		FROM promotion_actions WHERE promotion_id = $1 ORDER BY position, id`

	getActionSQL = `SELECT id, promotion_id, kind, label, config
		FROM promotion_actions WHERE id = $1`

	// The limit is re-checked inside the UPDATE so two racing applications
	// cannot both consume the last use.
	incrementUsesSQL = `UPDATE promotions SET uses = uses + 1
		WHERE id = $1 AND (usage_limit = 0 OR uses < usage_limit)`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
// Promotion actions are stored as a kind plus a JSONB config blob and
// rebuilt into their concrete types on load.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up an active promotion by coupon code, case-insensitively,
// together with its actions. Returns promotion.ErrNotFound when no active
// promotion carries the code.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	actionRows, err := r.pool.Query(ctx, getPromotionActionsSQL, p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading actions for promotion %q: %w", p.ID, err)
	}
	raws, err := pgx.CollectRows(actionRows, scanActionRow)
	if err != nil {
		return nil, fmt.Errorf("loading actions for promotion %q: %w", p.ID, err)
	}

	for _, raw := range raws {
		act, err := r.buildAction(ctx, raw)
		if err != nil {
			return nil, err
		}
		p.Actions = append(p.Actions, act)
	}
	return p, nil
}

// GetAction loads a single promotion action by ID. The order repository uses
// this to resolve persisted adjustment sources.
func (r *PromotionRepository) GetAction(ctx context.Context, id string) (promotion.Action, error) {
	rows, err := r.pool.Query(ctx, getActionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting promotion action %q: %w", id, err)
	}

	raw, err := pgx.CollectExactlyOneRow(rows, scanActionRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("promotion action %q not found", id)
		}
		return nil, fmt.Errorf("getting promotion action %q: %w", id, err)
	}
	return r.buildAction(ctx, raw)
}

// IncrementUses bumps the usage counter, failing with
// promotion.ErrUsageLimit when the limit is already exhausted.
func (r *PromotionRepository) IncrementUses(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, incrementUsesSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing uses for promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrUsageLimit
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (*promotion.Promotion, error) {
	var p promotion.Promotion
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.UsageLimit, &p.Uses, &p.ValidFrom, &p.ValidUntil)
	return &p, err
}

type actionRow struct {
	ID          string
	PromotionID string
	Kind        string
	Label       string
	Config      []byte
}

func scanActionRow(row pgx.CollectableRow) (actionRow, error) {
	var a actionRow
	err := row.Scan(&a.ID, &a.PromotionID, &a.Kind, &a.Label, &a.Config)
	return a, err
}

// calculatorConfig is the JSON shape of a persisted calculator.
type calculatorConfig struct {
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Percent decimal.Decimal `json:"percent"`
	Tiers   []struct {
		Threshold decimal.Decimal `json:"threshold"`
		Amount    decimal.Decimal `json:"amount"`
	} `json:"tiers"`
}

// actionConfig is the JSON shape of a persisted promotion action.
type actionConfig struct {
	Calculator *calculatorConfig `json:"calculator"`
	VariantIDs []string          `json:"variant_ids"`
	Items      []struct {
		VariantID string `json:"variant_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

func (r *PromotionRepository) buildAction(ctx context.Context, raw actionRow) (promotion.Action, error) {
	var cfg actionConfig
	if err := json.Unmarshal(raw.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config for action %q: %w", raw.ID, err)
	}

	switch raw.Kind {
	case "create_item_adjustments":
		calc, err := buildCalculator(raw.ID, cfg.Calculator)
		if err != nil {
			return nil, err
		}
		return &promotion.CreateItemAdjustments{
			ID:          raw.ID,
			PromotionID: raw.PromotionID,
			Name:        raw.Label,
			Calc:        calc,
			VariantIDs:  cfg.VariantIDs,
		}, nil

	case "create_adjustment":
		calc, err := buildCalculator(raw.ID, cfg.Calculator)
		if err != nil {
			return nil, err
		}
		return &promotion.CreateAdjustment{
			ID:          raw.ID,
			PromotionID: raw.PromotionID,
			Name:        raw.Label,
			Calc:        calc,
		}, nil

	case "free_shipping":
		return &promotion.FreeShipping{
			ID:          raw.ID,
			PromotionID: raw.PromotionID,
			Name:        raw.Label,
		}, nil

	case "create_line_items":
		act := &promotion.CreateLineItems{
			ID:          raw.ID,
			PromotionID: raw.PromotionID,
			Name:        raw.Label,
		}
		cat := NewCatalogRepository(r.pool)
		for _, item := range cfg.Items {
			v, err := cat.GetVariant(ctx, item.VariantID)
			if err != nil {
				return nil, fmt.Errorf("resolving variant for action %q: %w", raw.ID, err)
			}
			act.Items = append(act.Items, promotion.PromoLine{Variant: *v, Quantity: item.Quantity})
		}
		return act, nil

	default:
		return nil, fmt.Errorf("unknown promotion action kind %q", raw.Kind)
	}
}

func buildCalculator(actionID string, cfg *calculatorConfig) (promotion.Calculator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("action %q has no calculator", actionID)
	}
	switch cfg.Type {
	case "flat_rate":
		return promotion.FlatRate{Amount: cfg.Amount}, nil
	case "percent_on_item_total":
		return promotion.PercentOnItemTotal{Percent: cfg.Percent}, nil
	case "percent_per_item":
		return promotion.PercentPerItem{Percent: cfg.Percent}, nil
	case "tiered_flat_rate":
		tiers := make([]promotion.Tier, len(cfg.Tiers))
		for i, t := range cfg.Tiers {
			tiers[i] = promotion.Tier{Threshold: t.Threshold, Amount: t.Amount}
		}
		return promotion.TieredFlatRate{Tiers: tiers}, nil
	default:
		return nil, fmt.Errorf("unknown calculator type %q for action %q", cfg.Type, actionID)
	}
}

// Seed inserts or updates a promotion with its actions. Used by the seed and
// ingest tools.
func (r *PromotionRepository) Seed(ctx context.Context, p *promotion.Promotion, actions []SeedAction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning seed tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO promotions (id, name, code, usage_limit, uses, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, code = EXCLUDED.code,
			usage_limit = EXCLUDED.usage_limit,
			valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until`,
		p.ID, p.Name, p.Code, p.UsageLimit, p.Uses, p.ValidFrom, p.ValidUntil)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", p.ID, err)
	}

	for i, a := range actions {
		_, err = tx.Exec(ctx, `INSERT INTO promotion_actions (id, promotion_id, kind, label, config, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				kind = EXCLUDED.kind, label = EXCLUDED.label,
				config = EXCLUDED.config, position = EXCLUDED.position`,
			a.ID, p.ID, a.Kind, a.Label, a.Config, i)
		if err != nil {
			return fmt.Errorf("upserting action %q: %w", a.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// SeedAction is the storable form of one promotion action.
type SeedAction struct {
	ID     string
	Kind   string
	Label  string
	Config json.RawMessage
}
