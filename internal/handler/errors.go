package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/ogen-go/ogen/validate"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/pkg/httpmiddleware"
)

// requestError reports a body that could not be read or decoded.
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return "invalid request body: " + e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

func badRequest(err error) error {
	return &requestError{err: err}
}

// statusOf maps a domain error to an HTTP status.
func statusOf(err error) int {
	var (
		reqErr      *requestError
		validateErr *validate.Error
		productErr  *product.ValidationError
		qtyErr      *order.InvalidQuantityError
		stockErr    *order.InsufficientStockError
		notFoundErr *order.ProductNotFoundError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.As(err, &validateErr),
		errors.As(err, &productErr),
		errors.As(err, &qtyErr),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, order.ErrInvalidPage):
		return http.StatusUnprocessableEntity
	case errors.As(err, &stockErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, product.ErrInUse),
		errors.Is(err, product.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error response. Internal errors are logged
// and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, status, msg)
}
