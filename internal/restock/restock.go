// Package restock applies gzip-compressed supplier manifests to ingredient
// stock. Each manifest line is applied at most once across runs.
package restock

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

const (
	bloomFPR      = 0.001
	minBloomCap   = 1024
	progressEvery = 10_000
)

// Line is one manifest entry: "line_id,ingredient,quantity".
type Line struct {
	ID         string
	Ingredient string
	Quantity   int
}

// Store persists applied lines.
type Store interface {
	// AppliedLineIDs returns every line ID already applied.
	AppliedLineIDs(ctx context.Context) ([]string, error)
	// Applied reports whether a single line has been applied.
	Applied(ctx context.Context, lineID string) (bool, error)
	// Apply increments stock and records the line atomically. It reports
	// false when the line was already applied.
	Apply(ctx context.Context, line Line) (bool, error)
}

// Report summarizes an ingest run.
type Report struct {
	Lines      int
	Applied    int
	Duplicates int
	Unknown    int
	Invalid    int
}

func (r *Report) merge(o Report) {
	r.Lines += o.Lines
	r.Applied += o.Applied
	r.Duplicates += o.Duplicates
	r.Unknown += o.Unknown
	r.Invalid += o.Invalid
}

// Ingester applies manifests concurrently, one goroutine per file.
type Ingester struct {
	store   Store
	workers int

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewIngester creates an Ingester processing at most workers files at once.
func NewIngester(store Store, workers int) *Ingester {
	if workers < 1 {
		workers = 1
	}
	return &Ingester{store: store, workers: workers}
}

// Ingest applies every line of the given files.
//
// A bloom filter seeded with already applied line IDs lets new lines skip
// the exact receipt lookup. Lines the filter may have seen are checked
// against the store before being applied.
func (i *Ingester) Ingest(ctx context.Context, files []string) (Report, error) {
	if err := i.preload(ctx); err != nil {
		return Report{}, errors.Wrap(err, "preload applied lines")
	}

	var (
		total Report
		mu    sync.Mutex
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for _, path := range files {
		g.Go(func() error {
			r, err := i.ingestFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "ingest %s", path)
			}
			mu.Lock()
			total.merge(r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func (i *Ingester) preload(ctx context.Context) error {
	ids, err := i.store.AppliedLineIDs(ctx)
	if err != nil {
		return err
	}
	filter := bloom.NewWithEstimates(uint(max(2*len(ids), minBloomCap)), bloomFPR)
	for _, id := range ids {
		filter.AddString(id)
	}

	i.mu.Lock()
	i.filter = filter
	i.mu.Unlock()

	zctx.From(ctx).Info("Loaded applied restock lines", zap.Int("count", len(ids)))
	return nil
}

func (i *Ingester) ingestFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	return i.IngestReader(ctx, path, f)
}

// IngestReader applies one gzip-compressed manifest read from r. name is
// used for logging only.
func (i *Ingester) IngestReader(ctx context.Context, name string, r io.Reader) (Report, error) {
	lg := zctx.From(ctx).With(zap.String("file", name))

	var report Report
	err := streamGz(ctx, r, func(n int, text string) error {
		line, ok := parseLine(text)
		if !ok {
			if n == 1 && strings.HasPrefix(text, "line_id") {
				return nil
			}
			report.Invalid++
			lg.Warn("Skipping malformed restock line", zap.Int("line", n))
			return nil
		}
		report.Lines++

		applied, err := i.apply(ctx, line)
		switch {
		case errors.Is(err, ingredient.ErrNotFound):
			report.Unknown++
			lg.Warn("Skipping restock of unknown ingredient",
				zap.String("line_id", line.ID),
				zap.String("ingredient", line.Ingredient),
			)
		case err != nil:
			return err
		case applied:
			report.Applied++
		default:
			report.Duplicates++
		}

		if report.Lines%progressEvery == 0 {
			lg.Info("Restock progress", zap.Int("lines", report.Lines))
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	lg.Info("Restock file complete",
		zap.Int("lines", report.Lines),
		zap.Int("applied", report.Applied),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("unknown", report.Unknown),
		zap.Int("invalid", report.Invalid),
	)
	return report, nil
}

func (i *Ingester) apply(ctx context.Context, line Line) (bool, error) {
	if i.maybeApplied(line.ID) {
		seen, err := i.store.Applied(ctx, line.ID)
		if err != nil {
			return false, err
		}
		if seen {
			return false, nil
		}
	}

	applied, err := i.store.Apply(ctx, line)
	if err != nil {
		return false, err
	}
	i.mu.Lock()
	i.filter.AddString(line.ID)
	i.mu.Unlock()
	return applied, nil
}

func (i *Ingester) maybeApplied(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.filter == nil {
		i.filter = bloom.NewWithEstimates(minBloomCap, bloomFPR)
	}
	return i.filter.TestString(id)
}

// parseLine parses "line_id,ingredient,quantity". Quantity must be positive.
func parseLine(text string) (Line, bool) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != 3 {
		return Line{}, false
	}
	id := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])
	qty, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if id == "" || name == "" || err != nil || qty <= 0 {
		return Line{}, false
	}
	return Line{ID: id, Ingredient: name, Quantity: qty}, true
}

// streamGz decompresses r and calls fn for each non-empty line with its
// 1-based line number.
func streamGz(ctx context.Context, r io.Reader, fn func(n int, line string) error) error {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := fn(n, text); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}
