// Package catalog holds the JSON representation of catalog products shared
// by the HTTP API, the seed tool and the bulk importer.
package catalog

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockroom/internal/domain/product"
)

// DecodeProduct reads a product object:
//
//	{"name": "...", "description": "...", "price": 1.50, "quantity": 3}
//
// "description" is optional and may be null. Unknown fields are skipped. An
// "id" field is ignored; identifiers are assigned by the store. The decoded
// product is validated before it is returned.
func DecodeProduct(d *jx.Decoder) (product.Product, error) {
	var (
		p                          product.Product
		hasName, hasPrice, hasQty bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "name")
			}
			p.Name, hasName = v, true
		case "description":
			if d.Next() == jx.Null {
				p.Description = nil
				return d.Null()
			}
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "description")
			}
			p.Description = &v
		case "price":
			v, err := DecodePrice(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			p.Price, hasPrice = v, true
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			p.Quantity, hasQty = v, true
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return product.Product{}, err
	}

	switch {
	case !hasName:
		return product.Product{}, &product.ValidationError{Field: "name", Reason: "required"}
	case !hasPrice:
		return product.Product{}, &product.ValidationError{Field: "price", Reason: "required"}
	case !hasQty:
		return product.Product{}, &product.ValidationError{Field: "quantity", Reason: "required"}
	}
	if err := p.Validate(); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

// DecodePrice accepts a JSON number or a numeric string.
func DecodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	}
}

// EncodeProduct writes p as a JSON object. The price is written as a number
// with two decimal places.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	if p.Description != nil {
		e.Str(*p.Description)
	} else {
		e.Null()
	}
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.StringFixed(2)))
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.ObjEnd()
}
