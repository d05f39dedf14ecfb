package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func seedProduct(t *testing.T, repo *Repository, name, price string, stock int) int64 {
	var id int64
	err := repo.db.QueryRow(
		`INSERT INTO products (name, price, stock, active) VALUES ($1, $2, $3, TRUE) RETURNING id`,
		name, decimal.RequireFromString(price), stock,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, repo *Repository, productID int64) int {
	var stock int
	require.NoError(t, repo.db.QueryRow(`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock))
	return stock
}

func countRows(t *testing.T, repo *Repository, table string) int {
	var n int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

// buildPending is a minimal order builder: it snapshots the locked products
// and refuses lines that exceed stock.
func buildPending(userID *string, sessionID string, items []domain.CartItem) OrderBuildFunc {
	return func(products map[int64]*domain.Product) (*domain.Order, error) {
		order := &domain.Order{
			UserID:    userID,
			SessionID: sessionID,
			Currency:  "USD",
			Status:    domain.OrderStatusPendingPayment,
			Customer:  domain.CustomerInfo{Name: "Ada", Email: "ada@example.com"},
			Subtotal:  decimal.Zero,
		}
		for _, item := range items {
			p, ok := products[item.ProductID]
			if !ok || !p.Purchasable(item.Quantity) {
				available := 0
				if ok {
					available = p.Stock
				}
				return nil, &domain.InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity, Available: available}
			}
			line := domain.OrderItem{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: item.Quantity}
			order.Items = append(order.Items, line)
			order.Subtotal = order.Subtotal.Add(line.LineTotal())
		}
		order.Shipping = decimal.NewFromInt(5)
		order.Total = order.Subtotal.Add(order.Shipping)
		return order, nil
	}
}
