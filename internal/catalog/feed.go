package catalog

import (
	"bufio"
	"bytes"
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/xenking/stockroom/internal/domain/product"
)

const maxRecordSize = 1 << 20

// DecodeProducts reads a JSON array of product objects.
func DecodeProducts(d *jx.Decoder) ([]product.Product, error) {
	var products []product.Product
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := DecodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(products))
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Record is one line of a product feed.
type Record struct {
	Line    int
	Product product.Product
	// Err is set when the line is not a valid product.
	Err error
}

// ReadFeed streams a gzip-compressed NDJSON file of product objects and
// calls fn for every non-blank line. Decoding errors are reported through
// Record.Err; an error returned by fn stops the scan.
func ReadFeed(ctx context.Context, path string, fn func(r Record) error) error {
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
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		r := Record{Line: line}
		r.Product, r.Err = DecodeProduct(jx.DecodeBytes(data))
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
