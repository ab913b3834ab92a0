package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"easymanager/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateKey      = errors.New("duplicate key")
	// ErrBillChanged means the bill was rewritten after the caller read it.
	ErrBillChanged = errors.New("bill changed since it was read")
)

// Totals is a sum with the number of documents that contributed to it.
type Totals struct {
	Total float64
	Count int64
}

type Catalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	// SaveProduct overwrites every field except stock, which only moves
	// through the stock operations below.
	SaveProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id primitive.ObjectID) error

	// DecrementStock subtracts qty only when at least qty units remain,
	// returning ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (models.Product, error)
	// IncrementStock adds qty unconditionally. A non-nil restockedAt stamps
	// lastRestocked.
	IncrementStock(ctx context.Context, id primitive.ObjectID, qty int, restockedAt *time.Time) (models.Product, error)
	// SetStock replaces the stock value and reports the previous one.
	SetStock(ctx context.Context, id primitive.ObjectID, qty int) (int, models.Product, error)

	LowStock(ctx context.Context) ([]models.Product, error)
	// ExpiringBetween lists products with from < expirationDate <= to, soonest first.
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Product, error)
	// ExpiredAt lists products with expirationDate <= at, oldest first.
	ExpiredAt(ctx context.Context, at time.Time) ([]models.Product, error)
	CountProducts(ctx context.Context) (int64, error)
	CountProductsCreatedBefore(ctx context.Context, at time.Time) (int64, error)
}

type Ledger interface {
	// ListBills returns bills newest first by bill date.
	ListBills(ctx context.Context) ([]models.Bill, error)
	GetBill(ctx context.Context, id primitive.ObjectID) (models.Bill, error)
	InsertBill(ctx context.Context, b *models.Bill) error
	// ReplaceBill and DeleteBill only apply while the stored updatedAt still
	// equals prevUpdatedAt; otherwise they return ErrBillChanged.
	ReplaceBill(ctx context.Context, b models.Bill, prevUpdatedAt time.Time) error
	DeleteBill(ctx context.Context, id primitive.ObjectID, prevUpdatedAt time.Time) error
	// NextBillSequence atomically increments and returns the counter for day.
	NextBillSequence(ctx context.Context, day string) (int64, error)

	// CountBillsBetween and PaidBillTotals use the half-open range [from, to).
	CountBillsBetween(ctx context.Context, from, to time.Time) (int64, error)
	PaidBillTotals(ctx context.Context, from, to time.Time) (Totals, error)
	// PaidBillTotalsByDay groups paid bill amounts by calendar day in loc.
	PaidBillTotalsByDay(ctx context.Context, from, to time.Time, loc *time.Location) (map[string]float64, error)

	InsertSale(ctx context.Context, s *models.Sale) error
	ListSales(ctx context.Context) ([]models.Sale, error)
	// SaleTotals and SaleTotalsByDay match normalized sale days within the
	// inclusive range [fromDay, toDay].
	SaleTotals(ctx context.Context, fromDay, toDay string) (Totals, error)
	SaleTotalsByDay(ctx context.Context, fromDay, toDay string) (map[string]float64, error)
}

type Staff interface {
	ListEmployees(ctx context.Context) ([]models.Employee, error)
	CreateEmployee(ctx context.Context, e *models.Employee) error
}

type Accounts interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error)
	TouchLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
	SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string, at time.Time) error
	// LinkGoogle records the Google subject and picture on an existing account.
	LinkGoogle(ctx context.Context, id primitive.ObjectID, googleID, picture string, at time.Time) error
}

// Transactor runs fn atomically when the backend supports it. When
// SupportsTransactions is false fn still runs, and callers are responsible
// for undoing partial writes.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	SupportsTransactions() bool
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Store interface {
	Catalog
	Ledger
	Staff
	Accounts
	Transactor
	Pinger
}
