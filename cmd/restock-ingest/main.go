package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/repository"
	"github.com/xenking/pizza-delivery/internal/restock"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing restock manifests")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob of manifest files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "manifests processed concurrently")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, workers); err != nil {
		lg.Fatal("Restock ingest failed", zap.Error(err))
	}
	lg.Info("Restock ingest completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, workers int) error {
	lg := zctx.From(ctx)

	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrapf(err, "match %s", glob)
	}
	if len(files) == 0 {
		lg.Info("No manifests found", zap.String("glob", glob))
		return nil
	}
	lg.Info("Found manifests", zap.Int("files", len(files)))

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	ingester := restock.NewIngester(repository.NewRestockRepository(pool), workers)
	report, err := ingester.Ingest(ctx, files)
	if err != nil {
		return errors.Wrap(err, "ingest manifests")
	}

	lg.Info("Restock summary",
		zap.Int("lines", report.Lines),
		zap.Int("applied", report.Applied),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("unknown", report.Unknown),
		zap.Int("invalid", report.Invalid),
	)
	return nil
}
