// Command seed-db loads invitation packages and a few sample coupons for
// local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/undangku/coupon-service/internal/repository"
)

type packageJSON struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Price           int64  `json:"price"`
	InvitationQuota int    `json:"invitationQuota"`
	DurationDays    int    `json:"durationDays"`
	IsActive        bool   `json:"isActive"`
}

func main() {
	var (
		databaseURL  string
		packagesFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&packagesFile, "packages-file", "db/seed/packages.json", "path to packages JSON file")
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

	if err := run(ctx, databaseURL, packagesFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, packagesFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedPackages(ctx, pool, packagesFile); err != nil {
		return errors.Wrap(err, "seed packages")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedPackages(ctx context.Context, pool *pgxpool.Pool, packagesFile string) error {
	slog.Info("reading packages file", slog.String("path", packagesFile))

	data, err := os.ReadFile(packagesFile)
	if err != nil {
		return errors.Wrap(err, "read packages file")
	}

	var packages []packageJSON
	if err := json.Unmarshal(data, &packages); err != nil {
		return errors.Wrap(err, "parse packages JSON")
	}

	slog.Info("upserting packages", slog.Int("count", len(packages)))

	const upsert = `INSERT INTO packages (id, name, price, invitation_quota, duration_days, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			invitation_quota = EXCLUDED.invitation_quota,
			duration_days = EXCLUDED.duration_days,
			is_active = EXCLUDED.is_active`

	for _, p := range packages {
		if _, err := pool.Exec(ctx, upsert,
			p.ID, p.Name, p.Price, p.InvitationQuota, p.DurationDays, p.IsActive,
		); err != nil {
			return errors.Wrapf(err, "upsert package %s", p.ID)
		}

		slog.Info("upserted package", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

type seedCoupon struct {
	code          string
	name          string
	discountType  string
	value         decimal.Decimal
	maxDiscount   decimal.Decimal
	minimumAmount int64
	usageLimit    int
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample coupons")

	now := time.Now().UTC()
	coupons := []seedCoupon{
		{
			code:         "PROMO10",
			name:         "Promo 10% untuk semua paket",
			discountType: "percentage",
			value:        decimal.NewFromInt(10),
			maxDiscount:  decimal.NewFromInt(50_000),
			usageLimit:   100,
		},
		{
			code:          "HEMAT25K",
			name:          "Potongan Rp 25.000",
			discountType:  "fixed",
			value:         decimal.NewFromInt(25_000),
			minimumAmount: 150_000,
		},
	}

	const upsert = `INSERT INTO coupons (id, code, name, discount_type, discount_value,
			max_discount, minimum_amount, usage_limit, user_usage_limit,
			start_date, end_date, is_active, applicable_packages, excluded_packages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10, TRUE, '{}', '{}')
		ON CONFLICT (LOWER(code)) DO UPDATE SET
			name = EXCLUDED.name,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			max_discount = EXCLUDED.max_discount,
			minimum_amount = EXCLUDED.minimum_amount,
			usage_limit = EXCLUDED.usage_limit,
			end_date = EXCLUDED.end_date,
			updated_at = now()`

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsert,
			uuid.New(), c.code, c.name, c.discountType, c.value, c.maxDiscount,
			c.minimumAmount, c.usageLimit, now, now.AddDate(1, 0, 0),
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("name", c.name))
	}

	return nil
}
