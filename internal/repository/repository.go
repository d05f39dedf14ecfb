package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrStaleOrder      = errors.New("order status changed concurrently")
	ErrDuplicateReview = errors.New("review for this order already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Repository is the single PostgreSQL store behind carts, catalog, orders,
// reviews and the outbox. Stock and order changes share its transactions.
type Repository struct {
	db *sql.DB
}

type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	AddItem(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) error
	SetItemQuantity(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) error
	RemoveItem(ctx context.Context, sessionID string, productID int64, expectedVersion int64) error
	ClearCart(ctx context.Context, sessionID string, expectedVersion int64) error
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
}

// OrderBuildFunc turns locked product rows into a new order. Returning an
// error rolls the whole checkout back.
type OrderBuildFunc func(products map[int64]*domain.Product) (*domain.Order, error)

// UpdateOptions lists the side effects committed together with a status change.
type UpdateOptions struct {
	RestoreStock bool
	ClearCart    bool
	EventType    string
}

type OrderRepository interface {
	PlaceOrder(ctx context.Context, items []domain.CartItem, build OrderBuildFunc) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error)
	SetGatewayOrder(ctx context.Context, orderID int64, gatewayOrderID string) error
	UpdateOrder(ctx context.Context, order *domain.Order, expected domain.OrderStatus, opts UpdateOptions) error
}

type ReviewRepository interface {
	EligibleOrderIDs(ctx context.Context, userID string, productID int64) ([]int64, error)
	CreateVerifiedReview(ctx context.Context, review *domain.Review) error
	CreateReview(ctx context.Context, review *domain.Review) error
	ListReviews(ctx context.Context, productID int64, includeHidden bool) ([]*domain.Review, error)
	RatingSummary(ctx context.Context, productID int64) (*domain.RatingSummary, error)
	SetReviewHidden(ctx context.Context, id int64, hidden bool) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	PurgeProcessedEvents(ctx context.Context, before time.Time) (int64, error)
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	slog.Info("connected to postgres", "host", cred.Host, "db", cred.DBName)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
