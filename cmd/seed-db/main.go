// Command seed-db loads a development data set: catalog with stock levels,
// tax rates, a few coupon promotions and a default API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

type variantJSON struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	TaxCategory   string          `json:"tax_category"`
	OnHand        int             `json:"on_hand"`
	Backorderable bool            `json:"backorderable"`
}

type productJSON struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Variants    []variantJSON `json:"variants"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedTaxRates(ctx, pool); err != nil {
		return errors.Wrap(err, "seed tax rates")
	}
	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, catalogFile string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		_, err := pool.Exec(ctx, `INSERT INTO products (id, name, description, category)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, description = EXCLUDED.description,
				category = EXCLUDED.category`,
			p.ID, p.Name, p.Description, p.Category)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			_, err := pool.Exec(ctx, `INSERT INTO variants (id, product_id, sku, price, currency, tax_category)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					sku = EXCLUDED.sku, price = EXCLUDED.price,
					currency = EXCLUDED.currency, tax_category = EXCLUDED.tax_category`,
				v.ID, p.ID, v.SKU, v.Price, v.Currency, v.TaxCategory)
			if err != nil {
				return errors.Wrapf(err, "upsert variant %s", v.ID)
			}

			_, err = pool.Exec(ctx, `INSERT INTO stock_items (variant_id, on_hand, backorderable)
				VALUES ($1, $2, $3)
				ON CONFLICT (variant_id) DO UPDATE SET
					on_hand = EXCLUDED.on_hand, backorderable = EXCLUDED.backorderable`,
				v.ID, v.OnHand, v.Backorderable)
			if err != nil {
				return errors.Wrapf(err, "upsert stock item %s", v.ID)
			}
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.Int("variants", len(p.Variants)))
	}

	return nil
}

func seedTaxRates(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding tax rates")

	rates := []struct {
		id, name, zone, category string
		value                    string
		included                 bool
	}{
		{"rate-us-general", "US sales tax", "us", "general", "0.0825", false},
		{"rate-us-clothing", "US clothing tax", "us", "clothing", "0.04", false},
		{"rate-us-shipping", "US shipping tax", "us", "shipping", "0.0825", false},
		{"rate-eu-general", "EU VAT", "eu", "general", "0.19", true},
		{"rate-eu-clothing", "EU VAT", "eu", "clothing", "0.19", true},
	}

	for _, r := range rates {
		_, err := pool.Exec(ctx, `INSERT INTO tax_rates (id, name, zone, category, value, included_in_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, zone = EXCLUDED.zone, category = EXCLUDED.category,
				value = EXCLUDED.value, included_in_price = EXCLUDED.included_in_price`,
			r.id, r.name, r.zone, r.category, r.value, r.included)
		if err != nil {
			return errors.Wrapf(err, "upsert tax rate %s", r.id)
		}
	}

	return nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding promotions")

	repo := postgres.NewPromotionRepository(pool)

	promos := []struct {
		p       *promotion.Promotion
		actions []postgres.SeedAction
	}{
		{
			p: &promotion.Promotion{ID: "promo-save10", Name: "10% off", Code: "SAVE10"},
			actions: []postgres.SeedAction{{
				ID:     "act-save10",
				Kind:   "create_item_adjustments",
				Label:  "10% off each item",
				Config: json.RawMessage(`{"calculator": {"type": "percent_on_item_total", "percent": "10"}}`),
			}},
		},
		{
			p: &promotion.Promotion{ID: "promo-5off", Name: "$5 off", Code: "TAKE5", UsageLimit: 1000},
			actions: []postgres.SeedAction{{
				ID:     "act-5off",
				Kind:   "create_adjustment",
				Label:  "$5 off your order",
				Config: json.RawMessage(`{"calculator": {"type": "flat_rate", "amount": "5"}}`),
			}},
		},
		{
			p: &promotion.Promotion{ID: "promo-freeship", Name: "Free shipping", Code: "FREESHIP"},
			actions: []postgres.SeedAction{{
				ID:     "act-freeship",
				Kind:   "free_shipping",
				Label:  "Free shipping",
				Config: json.RawMessage(`{}`),
			}},
		},
	}

	for _, seed := range promos {
		if err := repo.Seed(ctx, seed.p, seed.actions); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", seed.p.Code)
		}

		slog.Info("upserted promotion", slog.String("code", seed.p.Code))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash`,
		"default", keyHash, "Default test key", []string{"checkout"})
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
