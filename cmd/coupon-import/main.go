// Command coupon-import bulk-loads coupon definitions from gzipped JSONL
// files, e.g. exports from a marketing campaign tool. Files are parsed
// concurrently; duplicate codes across files are dropped via a bloom filter
// before hitting the database.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/undangku/coupon-service/internal/domain/coupon"
	"github.com/undangku/coupon-service/internal/repository"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
)

// couponLine is one JSONL record in an import file.
type couponLine struct {
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Type               string    `json:"type"`
	Value              float64   `json:"value"`
	MaxDiscount        int64     `json:"maxDiscount"`
	MinimumAmount      int64     `json:"minimumAmount"`
	UsageLimit         int       `json:"usageLimit"`
	UserUsageLimit     int       `json:"userUsageLimit"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	IsActive           bool      `json:"isActive"`
	ApplicablePackages []string  `json:"applicablePackages"`
	ExcludedPackages   []string  `json:"excludedPackages"`
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files: pass one or more coupons.jsonl.gz paths")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
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

	imp := &importer{
		store: repository.NewCouponRepository(pool),
		seen:  bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(imp.importFile(ctx, f))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("imported", imp.imported.Load()),
		slog.Int64("skipped", imp.skipped.Load()),
	)
	return nil
}

type importer struct {
	store *repository.CouponRepository

	mu   sync.Mutex
	seen *bloom.BloomFilter

	imported atomic.Int64
	skipped  atomic.Int64
}

// markSeen records a code and reports whether it was already present. A
// bloom false positive only skips a line, never corrupts data.
func (imp *importer) markSeen(code string) bool {
	key := strings.ToLower(code)
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if imp.seen.TestString(key) {
		return true
	}
	imp.seen.AddString(key)
	return false
}

func (imp *importer) importFile(ctx context.Context, path string) func() error {
	return func() error {
		var count uint64

		err := streamGzFile(ctx, path, func(line []byte) error {
			var rec couponLine
			if err := json.Unmarshal(line, &rec); err != nil {
				return errors.Wrapf(err, "parse line %d", count+1)
			}
			count++

			if imp.markSeen(rec.Code) {
				imp.skipped.Add(1)
				return nil
			}
			if err := imp.insert(ctx, rec); err != nil {
				if errors.Is(err, coupon.ErrDuplicateCode) {
					imp.skipped.Add(1)
					return nil
				}
				return errors.Wrapf(err, "import coupon %q", rec.Code)
			}
			imp.imported.Add(1)

			if count%progressEvery == 0 {
				slog.Info("import progress",
					slog.String("file", path),
					slog.Uint64("lines", count),
				)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "import %s", path)
		}

		slog.Info("file complete", slog.String("file", path), slog.Uint64("lines", count))
		return nil
	}
}

func (imp *importer) insert(ctx context.Context, rec couponLine) error {
	c := &coupon.Coupon{
		Code:        strings.TrimSpace(rec.Code),
		Name:        rec.Name,
		Description: rec.Description,
		Discount: coupon.Discount{
			Type:        coupon.DiscountType(rec.Type),
			Value:       decimal.NewFromFloat(rec.Value),
			MaxDiscount: decimal.NewFromInt(rec.MaxDiscount),
		},
		MinimumAmount:      rec.MinimumAmount,
		UsageLimit:         rec.UsageLimit,
		UserUsageLimit:     rec.UserUsageLimit,
		StartDate:          rec.StartDate,
		EndDate:            rec.EndDate,
		IsActive:           rec.IsActive,
		ApplicablePackages: rec.ApplicablePackages,
		ExcludedPackages:   rec.ExcludedPackages,
	}
	if c.UserUsageLimit == 0 {
		c.UserUsageLimit = 1
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.ID = uuid.New()
	return imp.store.Create(ctx, c)
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
