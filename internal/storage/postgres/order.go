package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

const (
	createOrderSQL = `INSERT INTO orders (created_at, status) VALUES ($1, $2) RETURNING id`

	addOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity)
		VALUES ($1, $2, $3) RETURNING id`

	decrementStockSQL = `UPDATE products
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2`

	getStockSQL = `SELECT quantity FROM products WHERE id = $1`

	getOrderSQL = `SELECT id, created_at, status FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, created_at, status FROM orders ORDER BY id OFFSET $1 LIMIT $2`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1
		RETURNING id, created_at, status`

	listOrderItemsSQL = `SELECT id, order_id, product_id, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// InTx runs fn in a READ COMMITTED transaction. Products read through the
// transaction are locked with SELECT ... FOR UPDATE until it ends.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &orderTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetOrder returns an order with its items.
func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns a page of orders ordered by ID, each with its items.
func (r *OrderRepository) ListOrders(ctx context.Context, offset, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus sets the status of an existing order and returns it.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, statusToDB(status))
	if err != nil {
		return nil, fmt.Errorf("updating order %d status: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %d status: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachItems loads the items of all given orders with a single query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []order.Item{}
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return nil
}

// orderTx implements order.Tx on top of a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	return getProduct(ctx, t.tx, lockProductSQL, id)
}

func (t *orderTx) DecrementStock(ctx context.Context, productID int64, amount int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, amount)
	if err != nil {
		return fmt.Errorf("decrementing stock of product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing was updated: the product is gone or the stock is too low.
	var available int32
	if err := t.tx.QueryRow(ctx, getStockSQL, productID).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("reading stock of product %d: %w", productID, err)
	}
	return &order.InsufficientStockError{
		ProductID: productID,
		Requested: amount,
		Available: int(available),
	}
}

func (t *orderTx) CreateOrder(ctx context.Context, status order.Status, createdAt time.Time) (*order.Order, error) {
	o := &order.Order{CreatedAt: createdAt, Status: status}
	if err := t.tx.QueryRow(ctx, createOrderSQL, createdAt, statusToDB(status)).Scan(&o.ID); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	return o, nil
}

func (t *orderTx) AddOrderItem(ctx context.Context, orderID, productID int64, quantity int) (*order.Item, error) {
	item := &order.Item{OrderID: orderID, ProductID: productID, Quantity: quantity}
	err := t.tx.QueryRow(ctx, addOrderItemSQL, orderID, productID, quantity).Scan(&item.ID)
	if err != nil {
		if isPgError(err, codeForeignKeyViolation) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("adding item to order %d: %w", orderID, err)
	}
	return item, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.CreatedAt, &status); err != nil {
		return o, err
	}
	s, err := order.ParseStatus(status)
	if err != nil {
		return o, fmt.Errorf("order %d: %w", o.ID, err)
	}
	o.Status = s
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item     order.Item
		quantity int32
	)
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &quantity)
	item.Quantity = int(quantity)
	return item, err
}

// statusToDB returns the lower-case column value, e.g. "in_progress".
func statusToDB(s order.Status) string {
	return strings.ToLower(s.String())
}
