package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/stockroom/internal/domain/product"
)

// Sentinel errors for order operations.
var (
	ErrNotFound    = errors.New("order not found")
	ErrEmptyItems  = errors.New("items required")
	ErrInvalidPage = errors.New("offset must be >= 0 and limit > 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error {
	return product.ErrNotFound
}

// MaxQuantity is the largest quantity a single line item may request.
const MaxQuantity = product.MaxQuantity

// InvalidQuantityError indicates a line item quantity is outside 1..MaxQuantity.
type InvalidQuantityError struct {
	ProductID int64
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > MaxQuantity {
		return fmt.Sprintf("quantity must not exceed %d for product %d, got %d", MaxQuantity, e.ProductID, e.Quantity)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %d, got %d", e.ProductID, e.Quantity)
}

// InsufficientStockError indicates the requested quantity exceeds available stock.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough quantity of product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// LineItem is a requested (product, quantity) pair.
type LineItem struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items []LineItem
}

const defaultMaxPageSize = 1000

// Service encapsulates order placement and lifecycle operations.
type Service struct {
	orders      Repository
	now         func() time.Time
	maxPageSize int

	tracer   trace.Tracer
	placed   metric.Int64Counter
	rejected metric.Int64Counter
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	now            func() time.Time
	maxPageSize    int
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithClock overrides the clock used for order creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithMaxPageSize caps the limit accepted by ListOrders. Defaults to 1000.
func WithMaxPageSize(n int) Option {
	return func(o *serviceOptions) { o.maxPageSize = n }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *serviceOptions) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *serviceOptions) { o.meterProvider = mp }
}

// NewService creates an order Service backed by the given repository.
func NewService(orders Repository, opts ...Option) (*Service, error) {
	o := serviceOptions{
		now:            time.Now,
		maxPageSize:    defaultMaxPageSize,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxPageSize <= 0 {
		return nil, errors.Errorf("invalid max page size %d", o.maxPageSize)
	}

	const scope = "github.com/xenking/stockroom/internal/domain/order"
	meter := o.meterProvider.Meter(scope)

	placed, err := meter.Int64Counter("stockroom.orders.placed",
		metric.WithDescription("Orders placed successfully"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	rejected, err := meter.Int64Counter("stockroom.orders.rejected",
		metric.WithDescription("Order placements rejected by validation or stock checks"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}

	return &Service{
		orders:      orders,
		now:         o.now,
		maxPageSize: o.maxPageSize,
		tracer:      o.tracerProvider.Tracer(scope),
		placed:      placed,
		rejected:    rejected,
	}, nil
}

// PlaceOrder checks every requested item against current stock, then creates
// the order, its items and the stock decrements in one transaction. Either
// all of it is persisted or none of it is.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Place",
		trace.WithAttributes(attribute.Int("order.items", len(req.Items))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(rerr))))
		} else {
			s.placed.Add(ctx, 1)
		}
		span.End()
	}()

	demand, err := validateItems(req.Items)
	if err != nil {
		return nil, err
	}

	// Lock products in ascending id order so concurrent placements touching
	// the same products cannot deadlock.
	ids := make([]int64, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var placed *Order
	err = s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		stock := make(map[int64]int, len(ids))
		for _, id := range ids {
			p, err := tx.GetProduct(ctx, id)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &ProductNotFoundError{ProductID: id}
				}
				return errors.Wrapf(err, "get product %d", id)
			}
			stock[id] = p.Quantity
		}

		// Pre-pass over all items before the first write.
		for _, id := range ids {
			if stock[id] < demand[id] {
				return &InsufficientStockError{ProductID: id, Requested: demand[id], Available: stock[id]}
			}
		}

		o, err := tx.CreateOrder(ctx, StatusInProgress, s.now().UTC().Truncate(time.Microsecond))
		if err != nil {
			return errors.Wrap(err, "create order")
		}

		o.Items = make([]Item, 0, len(req.Items))
		for _, li := range req.Items {
			item, err := tx.AddOrderItem(ctx, o.ID, li.ProductID, li.Quantity)
			if err != nil {
				return errors.Wrapf(err, "add item for product %d", li.ProductID)
			}
			if err := tx.DecrementStock(ctx, li.ProductID, li.Quantity); err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &ProductNotFoundError{ProductID: li.ProductID}
				}
				var stockErr *InsufficientStockError
				if errors.As(err, &stockErr) {
					return stockErr
				}
				return errors.Wrapf(err, "decrement stock of product %d", li.ProductID)
			}
			o.Items = append(o.Items, *item)
		}

		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", placed.ID))
	return placed, nil
}

// validateItems checks request preconditions and returns the total requested
// quantity per product. Items are bounded by MaxQuantity, so the per-product
// totals cannot overflow.
func validateItems(items []LineItem) (map[int64]int, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	demand := make(map[int64]int, len(items))
	for _, li := range items {
		if li.Quantity <= 0 || li.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: li.ProductID, Quantity: li.Quantity}
		}
		demand[li.ProductID] += li.Quantity
	}
	return demand, nil
}

func rejectReason(err error) string {
	var (
		stockErr    *InsufficientStockError
		notFoundErr *ProductNotFoundError
		qtyErr      *InvalidQuantityError
	)
	switch {
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.As(err, &notFoundErr):
		return "product_not_found"
	case errors.As(err, &qtyErr), errors.Is(err, ErrEmptyItems):
		return "invalid_request"
	default:
		return "internal"
	}
}

// GetOrder returns the order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.orders.GetOrder(ctx, id)
}

// ListOrders returns a page of orders ordered by id. The limit is capped.
func (s *Service) ListOrders(ctx context.Context, offset, limit int) ([]Order, error) {
	if offset < 0 || limit <= 0 {
		return nil, ErrInvalidPage
	}
	return s.orders.ListOrders(ctx, offset, min(limit, s.maxPageSize))
}

// UpdateOrderStatus sets the order status unconditionally. Any status may
// follow any other.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%d", status)
	}
	return s.orders.UpdateStatus(ctx, id, status)
}
