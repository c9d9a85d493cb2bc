package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	ogenjson "github.com/ogen-go/ogen/json"

	"github.com/xenking/stockroom/internal/catalog"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

// readBody reads the request body up to the configured limit.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		return nil, badRequest(err)
	}
	if len(data) == 0 {
		return nil, badRequest(errors.New("empty body"))
	}
	return data, nil
}

// writeJSON encodes a response with fn and writes it with status 200.
func writeJSON(w http.ResponseWriter, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}

// decodeProductUpdate applies the fields present in the object to p. A null
// description clears it; other fields must not be null.
func decodeProductUpdate(d *jx.Decoder, p *product.Product) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		field := string(key)
		switch field {
		case "name", "price", "quantity":
			if d.Next() == jx.Null {
				return &product.ValidationError{Field: field, Reason: "must not be null"}
			}
		}
		switch field {
		case "name":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "name")
			}
			p.Name = v
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
			v, err := catalog.DecodePrice(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			p.Price = v
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			p.Quantity = v
		default:
			return d.Skip()
		}
		return nil
	})
}

// decodePlaceOrder reads {"items": [{"productId": 1, "quantity": 2}, ...]}.
// "product_id" is accepted as an alias of "productId".
func decodePlaceOrder(d *jx.Decoder) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "items" {
			return d.Skip()
		}
		req.Items = []order.LineItem{}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeLineItem(d, len(req.Items))
			if err != nil {
				return err
			}
			req.Items = append(req.Items, item)
			return nil
		})
	})
	return req, err
}

func decodeLineItem(d *jx.Decoder, idx int) (order.LineItem, error) {
	var (
		item          order.LineItem
		hasID, hasQty bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "productId", "product_id":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrapf(err, "items[%d].productId", idx)
			}
			item.ProductID, hasID = v, true
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrapf(err, "items[%d].quantity", idx)
			}
			item.Quantity, hasQty = v, true
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return item, err
	}
	switch {
	case !hasID:
		return item, errors.Errorf("items[%d].productId: required", idx)
	case !hasQty:
		return item, errors.Errorf("items[%d].quantity: required", idx)
	}
	return item, nil
}

// decodeStatus reads {"status": "SENT"}.
func decodeStatus(d *jx.Decoder) (string, error) {
	var (
		status string
		found  bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return errors.Wrap(err, "status")
		}
		status, found = v, true
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.New("status: required")
	}
	return status, nil
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for _, p := range products {
		catalog.EncodeProduct(e, p)
	}
	e.ArrEnd()
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("createdAt")
	ogenjson.EncodeDateTime(e, o.CreatedAt)
	e.FieldStart("status")
	e.Str(o.Status.String())
	e.FieldStart("statusLabel")
	e.Str(o.Status.Label())
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(item.ID)
		e.FieldStart("productId")
		e.Int64(item.ProductID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(e, o)
	}
	e.ArrEnd()
}
