//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	err = dc.
		WaitForService("postgres", wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	container, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	url := fmt.Sprintf("postgres://stockroom:stockroom@%s:%s/stockroom?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, url)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	return m.Run()
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE order_items, orders, products, api_keys RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func createProduct(t *testing.T, repo *ProductRepository, name string, qty int) *product.Product {
	t.Helper()
	p := &product.Product{Name: name, Price: decimal.RequireFromString("12.50"), Quantity: qty}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestProductRepository_CRUD(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testPool)

	desc := "Gooseneck"
	p := &product.Product{Name: "Kettle", Description: &desc, Price: decimal.RequireFromString("59.90"), Quantity: 4}
	require.NoError(t, repo.Create(ctx, p))
	require.NotZero(t, p.ID)

	require.ErrorIs(t, repo.Create(ctx, &product.Product{Name: "Kettle"}), product.ErrDuplicateName)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kettle", got.Name)
	require.NotNil(t, got.Description)
	assert.Equal(t, desc, *got.Description)
	assert.True(t, decimal.RequireFromString("59.90").Equal(got.Price))

	got.Quantity = 10
	got.Description = nil
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
	assert.Nil(t, got.Description)

	list, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, product.ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, got), product.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, p.ID), product.ErrNotFound)
}

func TestOrderService_Postgres(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	products := NewProductRepository(testPool)
	orders := NewOrderRepository(testPool)
	svc, err := order.NewService(orders)
	require.NoError(t, err)

	p1 := createProduct(t, products, "Kettle", 5)
	p2 := createProduct(t, products, "Dripper", 1)

	t.Run("placement decrements stock", func(t *testing.T) {
		o, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{Items: []order.LineItem{
			{ProductID: p1.ID, Quantity: 3},
		}})
		require.NoError(t, err)

		got, err := svc.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusInProgress, got.Status)
		assert.True(t, o.CreatedAt.Equal(got.CreatedAt))
		require.Len(t, got.Items, 1)
		assert.Equal(t, p1.ID, got.Items[0].ProductID)
		assert.Equal(t, 3, got.Items[0].Quantity)

		p, err := products.GetByID(ctx, p1.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Quantity)
	})

	t.Run("shortfall leaves stock unchanged", func(t *testing.T) {
		_, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{Items: []order.LineItem{
			{ProductID: p1.ID, Quantity: 1},
			{ProductID: p2.ID, Quantity: 2},
		}})
		var stockErr *order.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)

		p, err := products.GetByID(ctx, p1.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Quantity)
	})

	t.Run("missing product persists nothing", func(t *testing.T) {
		before, err := svc.ListOrders(ctx, 0, 100)
		require.NoError(t, err)

		_, err = svc.PlaceOrder(ctx, order.PlaceOrderRequest{Items: []order.LineItem{
			{ProductID: 9999, Quantity: 1},
		}})
		require.ErrorIs(t, err, product.ErrNotFound)

		after, err := svc.ListOrders(ctx, 0, 100)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("concurrent placements on last unit", func(t *testing.T) {
		const callers = 10
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			shortages int
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{Items: []order.LineItem{
					{ProductID: p2.ID, Quantity: 1},
				}})
				mu.Lock()
				defer mu.Unlock()
				var stockErr *order.InsufficientStockError
				switch {
				case err == nil:
					successes++
				case errors.As(err, &stockErr):
					shortages++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, callers-1, shortages)
		p, err := products.GetByID(ctx, p2.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Quantity)
	})

	t.Run("ordered product cannot be deleted", func(t *testing.T) {
		require.ErrorIs(t, products.Delete(ctx, p1.ID), product.ErrInUse)
	})

	t.Run("status update", func(t *testing.T) {
		_, err := svc.UpdateOrderStatus(ctx, 9999, order.StatusSent)
		require.ErrorIs(t, err, order.ErrNotFound)

		list, err := svc.ListOrders(ctx, 0, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)

		got, err := svc.UpdateOrderStatus(ctx, list[0].ID, order.StatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, order.StatusDelivered, got.Status)
		assert.NotEmpty(t, got.Items)
	})
}

func TestAPIKeyRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)

	hash := auth.HashKey([]byte("pepper"), "secret")
	require.NoError(t, repo.Upsert(ctx, &auth.APIKeyInfo{
		ID: "default", KeyHash: hash, Name: "Default", Scopes: []string{auth.ScopeCatalogWrite},
	}))

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "default", info.ID)
	assert.True(t, info.HasScope(auth.ScopeCatalogWrite))

	_, err = repo.FindByHash(ctx, "nope")
	require.Error(t, err)
}
