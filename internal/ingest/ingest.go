// Package ingest loads gzip-compressed JSON-lines product feeds into the
// catalog.
//
// Feeds are read concurrently, one goroutine per file. A product id seen in
// an earlier line of any feed is skipped, so the first occurrence wins within
// a file and an arbitrary feed wins across files.
package ingest

import (
	"bufio"
	"context"
	"os"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/loyalty-kart/internal/domain/product"
)

const (
	// DefaultCapacity sizes the duplicate filter when Config.Capacity is unset.
	DefaultCapacity = 1_000_000
	bloomFPR        = 0.001
	maxLineBytes    = 1 << 20
	progressEvery   = 100_000
)

// Sink receives decoded products. It is called from several goroutines.
type Sink interface {
	Upsert(ctx context.Context, p product.Product) error
}

// Config tunes a Run.
type Config struct {
	// Capacity is the expected number of distinct product ids.
	Capacity uint
	// Now stamps CreatedAt of ingested products.
	Now func() time.Time
}

// Stats summarizes a Run.
type Stats struct {
	Lines      int
	Upserted   int
	Duplicates int
	Invalid    int
}

// dedup remembers product ids. The bloom filter answers the common "never
// seen" case; a positive is confirmed against the exact set, so false
// positives never drop a product.
type dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}
}

func newDedup(capacity uint) *dedup {
	return &dedup{
		filter: bloom.NewWithEstimates(capacity, bloomFPR),
		seen:   make(map[string]struct{}),
	}
}

// claim reports whether id is new and records it.
func (d *dedup) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.TestString(id) {
		if _, ok := d.seen[id]; ok {
			return false
		}
	} else {
		d.filter.AddString(id)
	}
	d.seen[id] = struct{}{}
	return true
}

// Run ingests every file into sink and returns the combined stats.
func Run(ctx context.Context, lg *zap.Logger, files []string, sink Sink, cfg Config) (Stats, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := newDedup(cfg.Capacity)
	stats := make([]Stats, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			s, err := ingestFile(ctx, lg.With(zap.String("file", path)), path, sink, d, cfg.Now().UTC())
			stats[i] = s
			return errors.Wrapf(err, "ingest %s", path)
		})
	}
	err := g.Wait()

	var total Stats
	for _, s := range stats {
		total.Lines += s.Lines
		total.Upserted += s.Upserted
		total.Duplicates += s.Duplicates
		total.Invalid += s.Invalid
	}
	return total, err
}

func ingestFile(ctx context.Context, lg *zap.Logger, path string, sink Sink, d *dedup, now time.Time) (Stats, error) {
	var s Stats
	err := streamGzFile(ctx, path, func(line []byte) error {
		s.Lines++
		if s.Lines%progressEvery == 0 {
			lg.Info("Ingest progress", zap.Int("lines", s.Lines))
		}
		if len(line) == 0 {
			return nil
		}
		p, err := DecodeProduct(line)
		if err != nil {
			s.Invalid++
			lg.Warn("Skipping invalid line", zap.Int("line", s.Lines), zap.Error(err))
			return nil
		}
		if !d.claim(p.ID) {
			s.Duplicates++
			return nil
		}
		p.CreatedAt = now
		if err := sink.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		s.Upserted++
		return nil
	})
	if err != nil {
		return s, err
	}
	lg.Info("Feed ingested",
		zap.Int("lines", s.Lines),
		zap.Int("upserted", s.Upserted),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("invalid", s.Invalid),
	)
	return s, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "scan")
}

// DecodeProduct parses one feed line. Unknown fields are ignored. A product
// without an id, name or positive price, or with negative stock, is invalid;
// is_active defaults to true.
func DecodeProduct(line []byte) (product.Product, error) {
	p := product.Product{IsActive: true}
	d := jx.DecodeBytes(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "brand":
			p.Brand, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "image_url":
			p.ImageURL, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "stock_quantity":
			p.StockQuantity, err = d.Int()
		case "rating":
			p.Rating, err = d.Float64()
		case "review_count":
			p.ReviewCount, err = d.Int()
		case "is_active":
			p.IsActive, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}

	switch {
	case p.ID == "":
		return product.Product{}, errors.New("missing id")
	case p.Name == "":
		return product.Product{}, errors.Errorf("product %s: missing name", p.ID)
	case !p.Price.IsPositive():
		return product.Product{}, errors.Errorf("product %s: price must be positive", p.ID)
	case p.StockQuantity < 0:
		return product.Product{}, errors.Errorf("product %s: negative stock", p.ID)
	}
	return p, nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(n))
}
