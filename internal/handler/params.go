package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
)

// pathID parses the {id} path value as a positive integer.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &validate.Error{Fields: []validate.FieldError{{
			Name:  "id",
			Error: errors.Errorf("%q is not an integer", raw),
		}}}
	}
	if err := (validate.Int{MinSet: true, Min: 1}).Validate(id); err != nil {
		return 0, &validate.Error{Fields: []validate.FieldError{{Name: "id", Error: err}}}
	}
	return id, nil
}

// page reads the "skip" and "limit" query parameters.
func (h *Handler) page(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()

	var fields []validate.FieldError
	offset, err = queryInt(q.Get("skip"), 0, validate.Int{MinSet: true, Min: 0})
	if err != nil {
		fields = append(fields, validate.FieldError{Name: "skip", Error: err})
	}
	limit, err = queryInt(q.Get("limit"), h.defaultLimit, validate.Int{
		MinSet: true, Min: 1,
		MaxSet: true, Max: int64(h.maxLimit),
	})
	if err != nil {
		fields = append(fields, validate.FieldError{Name: "limit", Error: err})
	}
	if len(fields) > 0 {
		return 0, 0, &validate.Error{Fields: fields}
	}
	return offset, limit, nil
}

func queryInt(raw string, def int, constraint validate.Int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Errorf("%q is not an integer", raw)
	}
	if err := constraint.Validate(int64(v)); err != nil {
		return 0, err
	}
	return v, nil
}
