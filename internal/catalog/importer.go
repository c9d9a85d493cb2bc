package catalog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/stockroom/internal/domain/product"
)

// Sink receives imported products. product.Repository implementations
// satisfy it.
type Sink interface {
	Upsert(ctx context.Context, p *product.Product) error
}

// ImportStats summarises an import run.
type ImportStats struct {
	Records    int64 // non-blank lines read in the second pass
	Invalid    int64 // lines skipped because they are not valid products
	Duplicates int64 // shared-name records replaced by a later one
	Upserted   int64
}

// Importer loads products from several gzip NDJSON feeds. A product name
// that occurs in more than one file is taken from the last file listing it;
// within one file the last line wins.
type Importer struct {
	sink     Sink
	lg       *slog.Logger
	capacity uint
	fpr      float64
	progress int64
}

// ImportOption configures an Importer.
type ImportOption func(*Importer)

// WithBloomEstimates sizes the per-file bloom filters for n names with the
// given false positive rate.
func WithBloomEstimates(n uint, fpr float64) ImportOption {
	return func(im *Importer) { im.capacity, im.fpr = n, fpr }
}

// WithLogger sets the progress logger.
func WithLogger(lg *slog.Logger) ImportOption {
	return func(im *Importer) { im.lg = lg }
}

// NewImporter creates an Importer writing to sink.
func NewImporter(sink Sink, opts ...ImportOption) *Importer {
	im := &Importer{
		sink:     sink,
		lg:       slog.Default(),
		capacity: 1_000_000,
		fpr:      0.001,
		progress: 100_000,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// candidate is a record whose name may also appear in another file.
type candidate struct {
	file    int
	product product.Product
}

// Import runs two concurrent passes over files. The first builds a bloom
// filter of valid product names per file. The second upserts every record
// whose name no other file contains and holds back the rest; those are
// resolved exactly once all files are read.
func (im *Importer) Import(ctx context.Context, files []string) (ImportStats, error) {
	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return ImportStats{}, errors.Wrap(err, "build bloom filters")
	}

	var (
		stats      counters
		mu         sync.Mutex
		candidates = make(map[string]candidate)
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			local := make(map[string]candidate)
			err := ReadFeed(gctx, path, func(r Record) error {
				n := stats.records.Add(1)
				if n%im.progress == 0 {
					im.lg.Info("pass 2 progress", slog.Int64("records", n))
				}
				if r.Err != nil {
					stats.invalid.Add(1)
					im.lg.Warn("skipping invalid record",
						slog.String("file", path),
						slog.Int("line", r.Line),
						slog.String("error", r.Err.Error()),
					)
					return nil
				}
				if inOtherFile(filters, i, r.Product.Name) {
					if _, seen := local[r.Product.Name]; seen {
						stats.duplicates.Add(1)
					}
					local[r.Product.Name] = candidate{file: i, product: r.Product}
					return nil
				}
				return im.upsert(gctx, &stats, r.Product)
			})
			if err != nil {
				return errors.Wrapf(err, "import %s", path)
			}

			mu.Lock()
			defer mu.Unlock()
			for name, c := range local {
				prev, ok := candidates[name]
				switch {
				case !ok:
					candidates[name] = c
				case c.file > prev.file:
					candidates[name] = c
					stats.duplicates.Add(1)
				default:
					stats.duplicates.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats.snapshot(), err
	}

	im.lg.Info("resolving names shared between files", slog.Int("count", len(candidates)))
	for _, c := range candidates {
		if err := im.upsert(ctx, &stats, c.product); err != nil {
			return stats.snapshot(), err
		}
	}
	return stats.snapshot(), nil
}

func (im *Importer) upsert(ctx context.Context, s *counters, p product.Product) error {
	if err := im.sink.Upsert(ctx, &p); err != nil {
		return errors.Wrapf(err, "upsert %q", p.Name)
	}
	s.upserted.Add(1)
	return nil
}

func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.capacity, im.fpr)
			var names int64
			err := ReadFeed(ctx, path, func(r Record) error {
				if r.Err == nil {
					filter.AddString(r.Product.Name)
					names++
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			im.lg.Info("pass 1 complete", slog.String("file", path), slog.Int64("names", names))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func inOtherFile(filters []*bloom.BloomFilter, self int, name string) bool {
	for j, f := range filters {
		if j != self && f.TestString(name) {
			return true
		}
	}
	return false
}

type counters struct {
	records, invalid, duplicates, upserted atomic.Int64
}

func (s *counters) snapshot() ImportStats {
	return ImportStats{
		Records:    s.records.Load(),
		Invalid:    s.invalid.Load(),
		Duplicates: s.duplicates.Load(),
		Upserted:   s.upserted.Load(),
	}
}
