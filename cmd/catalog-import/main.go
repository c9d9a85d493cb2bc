package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/stockroom/internal/catalog"
	"github.com/xenking/stockroom/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		capacity    uint
		fpr         float64
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz product feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "bloom-capacity", 1_000_000, "expected product names per feed")
	flag.Float64Var(&fpr, "bloom-fpr", 0.001, "bloom filter false positive rate")
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

	if err := run(ctx, dataDir, databaseURL, catalog.WithBloomEstimates(capacity, fpr)); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, opts ...catalog.ImportOption) error {
	// Feeds are applied in lexical order; later files win on shared names.
	files, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.ndjson.gz files in %s", dataDir)
	}
	slices.Sort(files)
	slog.Info("importing feeds", slog.Any("files", files))

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	im := catalog.NewImporter(postgres.NewProductRepository(pool), opts...)
	stats, err := im.Import(ctx, files)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	slog.Info("import summary",
		slog.Int64("records", stats.Records),
		slog.Int64("invalid", stats.Invalid),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("upserted", stats.Upserted),
	)
	return nil
}
