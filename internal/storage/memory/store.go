// Package memory implements the catalog and order stores in process memory.
//
// All transactions are serialised by a single mutex. Writes inside InTx are
// applied to a staged copy of the state that replaces the live state only
// when the transaction function succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

var (
	_ product.Repository = (*Store)(nil)
	_ order.Repository   = (*Store)(nil)
)

type state struct {
	products  map[int64]product.Product
	orders    map[int64]order.Order
	ordered   map[int64]int // product id -> number of items referencing it
	productID int64
	orderID   int64
	itemID    int64
}

func (s *state) clone() *state {
	c := *s
	c.products = maps.Clone(s.products)
	c.orders = maps.Clone(s.orders)
	c.ordered = maps.Clone(s.ordered)
	return &c
}

// Store is an in-memory product.Repository and order.Repository.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: &state{
		products: make(map[int64]product.Product),
		orders:   make(map[int64]order.Order),
		ordered:  make(map[int64]int),
	}}
}

// Create adds a product and assigns its identifier.
func (s *Store) Create(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(p.Name, 0) {
		return product.ErrDuplicateName
	}
	s.st.productID++
	p.ID = s.st.productID
	s.st.products[p.ID] = copyProduct(*p)
	return nil
}

// GetByID returns the product or product.ErrNotFound.
func (s *Store) GetByID(_ context.Context, id int64) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p = copyProduct(p)
	return &p, nil
}

// List returns a page of products ordered by id.
func (s *Store) List(_ context.Context, offset, limit int) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := page(slices.Sorted(maps.Keys(s.st.products)), offset, limit)
	out := make([]product.Product, len(ids))
	for i, id := range ids {
		out[i] = copyProduct(s.st.products[id])
	}
	return out, nil
}

// Update replaces every field of an existing product.
func (s *Store) Update(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.products[p.ID]; !ok {
		return product.ErrNotFound
	}
	if s.nameTaken(p.Name, p.ID) {
		return product.ErrDuplicateName
	}
	s.st.products[p.ID] = copyProduct(*p)
	return nil
}

// Delete removes a product that no order item references.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.products[id]; !ok {
		return product.ErrNotFound
	}
	if s.st.ordered[id] > 0 {
		return product.ErrInUse
	}
	delete(s.st.products, id)
	return nil
}

// Upsert creates the product or updates the one with the same name.
func (s *Store) Upsert(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.st.products {
		if existing.Name == p.Name {
			p.ID = id
			s.st.products[id] = copyProduct(*p)
			return nil
		}
	}
	s.st.productID++
	p.ID = s.st.productID
	s.st.products[p.ID] = copyProduct(*p)
	return nil
}

func (s *Store) nameTaken(name string, except int64) bool {
	for id, p := range s.st.products {
		if id != except && p.Name == name {
			return true
		}
	}
	return false
}

// InTx runs fn against a staged copy of the store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &tx{st: s.st.clone()}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	s.st = staged.st
	return nil
}

// GetOrder returns the order or order.ErrNotFound.
func (s *Store) GetOrder(_ context.Context, id int64) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

// ListOrders returns a page of orders ordered by id.
func (s *Store) ListOrders(_ context.Context, offset, limit int) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := page(slices.Sorted(maps.Keys(s.st.orders)), offset, limit)
	out := make([]order.Order, len(ids))
	for i, id := range ids {
		o := s.st.orders[id]
		o.Items = slices.Clone(o.Items)
		out[i] = o
	}
	return out, nil
}

// UpdateStatus sets the status of an existing order.
func (s *Store) UpdateStatus(_ context.Context, id int64, status order.Status) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	s.st.orders[id] = o
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

// tx operates on staged state owned by the goroutine holding Store.mu.
type tx struct {
	st *state
}

func (t *tx) GetProduct(_ context.Context, id int64) (*product.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p = copyProduct(p)
	return &p, nil
}

func (t *tx) DecrementStock(_ context.Context, productID int64, amount int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Quantity < amount {
		return &order.InsufficientStockError{ProductID: productID, Requested: amount, Available: p.Quantity}
	}
	p.Quantity -= amount
	t.st.products[productID] = p
	return nil
}

func (t *tx) CreateOrder(_ context.Context, status order.Status, createdAt time.Time) (*order.Order, error) {
	t.st.orderID++
	o := order.Order{ID: t.st.orderID, CreatedAt: createdAt, Status: status}
	t.st.orders[o.ID] = o
	return &o, nil
}

func (t *tx) AddOrderItem(_ context.Context, orderID, productID int64, quantity int) (*order.Item, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if _, ok := t.st.products[productID]; !ok {
		return nil, product.ErrNotFound
	}
	t.st.itemID++
	item := order.Item{ID: t.st.itemID, OrderID: orderID, ProductID: productID, Quantity: quantity}
	o.Items = append(slices.Clone(o.Items), item)
	t.st.orders[orderID] = o
	t.st.ordered[productID]++
	return &item, nil
}

func copyProduct(p product.Product) product.Product {
	if p.Description != nil {
		d := *p.Description
		p.Description = &d
	}
	return p
}

func page(ids []int64, offset, limit int) []int64 {
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}
