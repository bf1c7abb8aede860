package store

import (
	"context"
	"database/sql"
	"time"

	"storefront/internal/models"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is the "no match" result of a conditional reservation.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateIdempotencyKey is returned when a user reuses an idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Queries is the set of reads and writes available both on the pooled store
// and inside an open transaction.
type Queries interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	ReserveStock(ctx context.Context, productID int64, quantity int) (*models.Product, error)
	RestoreStock(ctx context.Context, productID int64, quantity int) error

	ReadCart(ctx context.Context, userID int64) (*models.CartSnapshot, error)
	SetCartItem(ctx context.Context, userID, productID int64, quantity int) error
	AddCartItem(ctx context.Context, userID, productID int64, quantity int) (int, error)
	DeleteCartItem(ctx context.Context, userID, productID int64) error
	DeleteCart(ctx context.Context, userID int64) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
}

// Repository is the full persistence contract used by the services.
type Repository interface {
	Queries
	// InTx runs fn inside one database transaction. The transaction commits
	// only if fn returns nil; any error rolls back every write made through tx.
	InTx(ctx context.Context, fn func(tx Queries) error) error
	Ping(ctx context.Context) error
}

var _ Repository = (*Store)(nil)

// Store is the PostgreSQL-backed Repository.
type Store struct {
	*queries
	db *sqlx.DB
}

// queries implements Queries on top of either *sqlx.DB or *sqlx.Tx.
type queries struct {
	q sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpenConns int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	return NewStoreFromDB(db), nil
}

// NewStoreFromDB wraps an existing connection pool.
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{queries: &queries{q: db}, db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn in a read-committed transaction. Isolation is enough because
// every contended write is a single conditional UPDATE.
func (s *Store) InTx(ctx context.Context, fn func(tx Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// notFound maps sql.ErrNoRows to ErrNotFound and wraps other failures.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, what)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
