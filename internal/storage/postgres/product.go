package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockroom/internal/domain/product"
)

const productColumns = `id, name, description, price, quantity`

const (
	createProductSQL = `INSERT INTO products (name, description, price, quantity)
		VALUES ($1, $2, $3, $4) RETURNING id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	lockProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id OFFSET $1 LIMIT $2`

	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, quantity = $5, updated_at = now()
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (name, description, price, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, price = EXCLUDED.price,
			quantity = EXCLUDED.quantity, updated_at = now()
		RETURNING id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts a product and sets its generated identifier.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL, p.Name, p.Description, p.Price, p.Quantity).Scan(&p.ID)
	if err != nil {
		if isPgError(err, codeUniqueViolation) {
			return product.ErrDuplicateName
		}
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	return getProduct(ctx, r.pool, getProductByIDSQL, id)
}

// List returns a page of products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, offset, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Update overwrites every mutable field of an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL, p.ID, p.Name, p.Description, p.Price, p.Quantity)
	if err != nil {
		if isPgError(err, codeUniqueViolation) {
			return product.ErrDuplicateName
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product. Products referenced by order items are kept and
// product.ErrInUse is returned.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if isPgError(err, codeForeignKeyViolation) {
			return product.ErrInUse
		}
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert inserts the product or updates the existing one with the same name.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, upsertProductSQL, p.Name, p.Description, p.Price, p.Quantity).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Name, err)
	}
	return nil
}

func getProduct(ctx context.Context, q querier, sql string, id int64) (*product.Product, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		quantity int32
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &quantity)
	p.Quantity = int(quantity)
	return p, err
}
