// Command seed-db loads a development dataset: categories, products with
// variants, promotion rules, promo codes, loyalty accounts, and an API key
// for the back-office endpoints.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ndlvy/storefront-core/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
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

	if err := seedCatalog(ctx, pool); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedPromotionRules(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotion rules")
	}
	if err := seedPromoCodes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promo codes")
	}
	if err := seedAccounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed accounts")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding categories and products")

	categories := []string{"Sneakers", "Boots", "Accessories"}
	for _, name := range categories {
		if _, err := pool.Exec(ctx,
			`INSERT INTO categories (name) SELECT $1
			 WHERE NOT EXISTS (SELECT 1 FROM categories WHERE name = $1)`, name,
		); err != nil {
			return errors.Wrapf(err, "insert category %s", name)
		}
	}

	type seedProduct struct {
		name         string
		reference    string
		category     string
		price        int64
		stock        int
		isBestSeller bool
		isNew        bool
		colors       []string
	}

	products := []seedProduct{
		{name: "Runner Low", reference: "RUN-LOW", category: "Sneakers", price: 12900, stock: 40, isBestSeller: true, colors: []string{"white", "black"}},
		{name: "Runner Mid", reference: "RUN-MID", category: "Sneakers", price: 14900, stock: 25, isNew: true, colors: []string{"white", "navy"}},
		{name: "Trail Boot", reference: "TRL-BT", category: "Boots", price: 21900, stock: 12},
		{name: "City Boot", reference: "CTY-BT", category: "Boots", price: 18900, stock: 18, isBestSeller: true, colors: []string{"brown"}},
		{name: "Wool Socks", reference: "WL-SCK", category: "Accessories", price: 1900, stock: 200, isNew: true},
	}

	for _, p := range products {
		var productID int64
		err := pool.QueryRow(ctx,
			`INSERT INTO products (name, reference, category_id, price, stock, is_best_seller, is_new)
			 SELECT $1, $2, c.id, $3, $4, $5, $6 FROM categories c
			 WHERE c.name = $7
			   AND NOT EXISTS (SELECT 1 FROM products WHERE reference = $2 AND name = $1)
			 RETURNING id`,
			p.name, p.reference, p.price, p.stock, p.isBestSeller, p.isNew, p.category,
		).Scan(&productID)
		if err != nil {
			// Already seeded; look the product up for its variants.
			err = pool.QueryRow(ctx,
				`SELECT id FROM products WHERE reference = $1 AND name = $2`,
				p.reference, p.name,
			).Scan(&productID)
			if err != nil {
				return errors.Wrapf(err, "find product %s", p.name)
			}
		}

		for _, color := range p.colors {
			if _, err := pool.Exec(ctx,
				`INSERT INTO product_images (product_id, color, reference, stock)
				 SELECT $1, $2, $3, $4
				 WHERE NOT EXISTS (
					SELECT 1 FROM product_images WHERE product_id = $1 AND color = $2
				 )`,
				productID, color, p.reference, p.stock/len(p.colors),
			); err != nil {
				return errors.Wrapf(err, "insert variant %s/%s", p.name, color)
			}
		}

		slog.Info("seeded product", slog.String("name", p.name), slog.Int64("id", productID))
	}

	return nil
}

func seedPromotionRules(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding promotion rules")

	rules := []struct {
		name       string
		conditions string
		actions    string
	}{
		{name: "Sneaker sale", conditions: `{"categoryId": 1}`, actions: `{"percentage": 20}`},
		{name: "Best sellers", conditions: `{"isBestSeller": true}`, actions: `{"percentage": 10}`},
		{name: "Runner Low push", conditions: `{"reference": "RUN-LOW"}`, actions: `{"percentage": 30}`},
	}

	for _, r := range rules {
		if _, err := pool.Exec(ctx,
			`INSERT INTO promotion_rules (name, conditions, actions)
			 SELECT $1, $2::jsonb, $3::jsonb
			 WHERE NOT EXISTS (SELECT 1 FROM promotion_rules WHERE name = $1)`,
			r.name, r.conditions, r.actions,
		); err != nil {
			return errors.Wrapf(err, "insert rule %s", r.name)
		}
		slog.Info("seeded promotion rule", slog.String("name", r.name))
	}

	return nil
}

func seedPromoCodes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding promo codes")

	codes := []struct {
		code           string
		discountType   string
		value          int64
		usageLimit     int
		minOrderAmount *int64
		costPoints     *int64
	}{
		{code: "WELCOME10", discountType: "percentage", value: 10},
		{code: "SAVE5000", discountType: "fixed_amount", value: 5000, minOrderAmount: int64Ptr(30000)},
		{code: "VIP25", discountType: "percentage", value: 25, usageLimit: 100, costPoints: int64Ptr(500)},
	}

	for _, c := range codes {
		if _, err := pool.Exec(ctx,
			`INSERT INTO promo_codes (code, discount_type, value, usage_limit, min_order_amount, cost_points)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (code) DO NOTHING`,
			c.code, c.discountType, c.value, c.usageLimit, c.minOrderAmount, c.costPoints,
		); err != nil {
			return errors.Wrapf(err, "insert promo code %s", c.code)
		}
		slog.Info("seeded promo code", slog.String("code", c.code))
	}

	return nil
}

func seedAccounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding accounts")

	accounts := []struct {
		email  string
		points int64
	}{
		{email: "alice@example.com", points: 1200},
		{email: "bob@example.com", points: 90},
	}

	for _, a := range accounts {
		if _, err := pool.Exec(ctx,
			`INSERT INTO accounts (email, points) VALUES ($1, $2)
			 ON CONFLICT (email) DO NOTHING`,
			a.email, a.points,
		); err != nil {
			return errors.Wrapf(err, "insert account %s", a.email)
		}
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx,
		`INSERT INTO api_keys (name, key_hash) VALUES ($1, $2)
		 ON CONFLICT (key_hash) DO NOTHING`,
		"Default back-office key", keyHash,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("name", "Default back-office key"))

	return nil
}

func int64Ptr(v int64) *int64 { return &v }
