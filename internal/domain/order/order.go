package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/stockroom/internal/domain/product"
)

// ErrUnknownStatus is returned when parsing a status name outside the enumeration.
var ErrUnknownStatus = errors.New("unknown order status")

// Status is the lifecycle state of an order.
type Status uint8

// Order statuses. The zero value is not a valid status.
const (
	StatusInProgress Status = iota + 1
	StatusSent
	StatusDelivered
)

var statusNames = [...]string{
	StatusInProgress: "IN_PROGRESS",
	StatusSent:       "SENT",
	StatusDelivered:  "DELIVERED",
}

var statusLabels = [...]string{
	StatusInProgress: "в процессе",
	StatusSent:       "отправлен",
	StatusDelivered:  "доставлен",
}

// Statuses lists every valid status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusInProgress, StatusSent, StatusDelivered}
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	return s >= StatusInProgress && s <= StatusDelivered
}

// String returns the wire name, e.g. "IN_PROGRESS".
func (s Status) String() string {
	if !s.Valid() {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// Label returns the human-readable display text. It is never used for identity.
func (s Status) Label() string {
	if !s.Valid() {
		return ""
	}
	return statusLabels[s]
}

// ParseStatus resolves a status by its name, ignoring case.
func ParseStatus(name string) (Status, error) {
	for _, s := range Statuses() {
		if strings.EqualFold(name, statusNames[s]) {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownStatus, "%q", name)
}

// Order is a placed order together with its line items.
type Order struct {
	ID        int64
	CreatedAt time.Time
	Status    Status
	Items     []Item
}

// Item is a persisted line item of an order.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
}

// Tx is the set of store operations available inside a placement
// transaction. Every write made through a Tx is discarded unless the
// enclosing InTx call commits.
type Tx interface {
	// GetProduct returns the product and locks it until the transaction ends.
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	// DecrementStock subtracts amount from the product quantity only if enough
	// stock remains. It returns product.ErrNotFound or *InsufficientStockError.
	DecrementStock(ctx context.Context, productID int64, amount int) error
	CreateOrder(ctx context.Context, status Status, createdAt time.Time) (*Order, error)
	AddOrderItem(ctx context.Context, orderID, productID int64, quantity int) (*Item, error)
}

// Repository defines persistence operations for orders.
type Repository interface {
	// InTx runs fn inside a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, offset, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
}
