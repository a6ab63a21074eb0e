// Command seed-db loads a catalog seed file into the variants and stock
// tables, so a fresh database has something to sell.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/almacart/commerce/internal/repository"
)

type variantJSON struct {
	SKU           string          `json:"sku"`
	ProductName   string          `json:"product_name"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	OnSale        bool            `json:"on_sale"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Stock         *int            `json:"stock"`
	LowStock      int             `json:"low_stock_threshold"`
}

const (
	upsertVariantSQL = `INSERT INTO variants (id, sku, product_name, name, price, on_sale, discount_type, discount_value, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (sku) DO UPDATE
		SET product_name = EXCLUDED.product_name,
		    name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    on_sale = EXCLUDED.on_sale,
		    discount_type = EXCLUDED.discount_type,
		    discount_value = EXCLUDED.discount_value,
		    active = TRUE
		RETURNING id`

	upsertStockSQL = `INSERT INTO stock (variant_id, on_hand, low_stock_threshold)
		VALUES ($1, $2, $3)
		ON CONFLICT (variant_id) DO UPDATE
		SET on_hand = EXCLUDED.on_hand,
		    low_stock_threshold = EXCLUDED.low_stock_threshold`
)

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/variants.json", "path to variants JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile string) error {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrapf(err, "read %s", seedFile)
	}

	var variants []variantJSON
	if err := json.Unmarshal(raw, &variants); err != nil {
		return errors.Wrapf(err, "parse %s", seedFile)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("seeding variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		if err := seedVariant(ctx, pool, v); err != nil {
			return errors.Wrapf(err, "seed variant %s", v.SKU)
		}
	}

	return nil
}

func seedVariant(ctx context.Context, pool *pgxpool.Pool, v variantJSON) error {
	discountType := v.DiscountType
	if discountType == "" {
		discountType = "amount"
	}

	var id uuid.UUID
	err := pool.QueryRow(ctx, upsertVariantSQL,
		uuid.New(), v.SKU, v.ProductName, v.Name, v.Price,
		v.OnSale, discountType, v.DiscountValue,
	).Scan(&id)
	if err != nil {
		return errors.Wrap(err, "upsert variant")
	}

	// Variants without a stock figure sell untracked.
	if v.Stock == nil {
		return nil
	}
	if _, err := pool.Exec(ctx, upsertStockSQL, id, *v.Stock, v.LowStock); err != nil {
		return errors.Wrap(err, "upsert stock")
	}
	return nil
}
