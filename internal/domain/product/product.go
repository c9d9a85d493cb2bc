package product

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInUse is returned when deleting a product that order items still reference.
	ErrInUse = errors.New("product is referenced by orders")
	// ErrDuplicateName is returned when another product already uses the name.
	ErrDuplicateName = errors.New("product name already exists")
)

// MaxQuantity is the largest stock level, the range of a 32-bit column.
const MaxQuantity = math.MaxInt32

// maxPrice bounds prices to ten integer digits.
var maxPrice = decimal.New(1, 10)

// ValidationError reports a product field that violates a catalog constraint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
}

// Product represents a catalog item available for ordering.
type Product struct {
	ID          int64
	Name        string
	Description *string
	Price       decimal.Decimal
	Quantity    int
}

// Validate checks the catalog constraints: a non-empty name, a non-negative
// price below 1e10 with at most two decimal places and stock within
// 0..MaxQuantity.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if p.Price.GreaterThanOrEqual(maxPrice) {
		return &ValidationError{Field: "price", Reason: "must be less than " + maxPrice.String()}
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return &ValidationError{Field: "price", Reason: "must have at most two decimal places"}
	}
	if p.Quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if p.Quantity > MaxQuantity {
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must not exceed %d", MaxQuantity)}
	}
	return nil
}

// Repository defines catalog persistence. Create and Upsert assign p.ID.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context, offset, limit int) ([]Product, error)
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
	Upsert(ctx context.Context, p *Product) error
}
