// Package memstore keeps every collection in process memory. It backs the
// memory store driver and the service and handler tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

type txKey struct{}

type Store struct {
	// txMu serializes transactions against each other and against
	// standalone writes; mu guards the maps themselves.
	txMu         sync.Mutex
	mu           sync.RWMutex
	transactions bool
	now          func() time.Time

	data snapshot
}

type snapshot struct {
	products  map[primitive.ObjectID]models.Product
	bills     map[primitive.ObjectID]models.Bill
	sales     []models.Sale
	employees map[primitive.ObjectID]models.Employee
	users     map[primitive.ObjectID]models.User
	counters  map[string]int64
}

type Option func(*Store)

// WithoutTransactions makes WithTransaction run its callback with no
// isolation or rollback, like a standalone MongoDB server.
func WithoutTransactions() Option {
	return func(s *Store) { s.transactions = false }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

var _ store.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		transactions: true,
		now:          time.Now,
		data: snapshot{
			products:  map[primitive.ObjectID]models.Product{},
			bills:     map[primitive.ObjectID]models.Bill{},
			employees: map[primitive.ObjectID]models.Employee{},
			users:     map[primitive.ObjectID]models.User{},
			counters:  map[string]int64{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) SupportsTransactions() bool { return s.transactions }

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	saved := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// write runs fn under the data lock. Outside a transaction it also waits for
// any running transaction to finish.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if s.transactions && !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) read(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

func (d snapshot) clone() snapshot {
	out := snapshot{
		products:  make(map[primitive.ObjectID]models.Product, len(d.products)),
		bills:     make(map[primitive.ObjectID]models.Bill, len(d.bills)),
		sales:     append([]models.Sale(nil), d.sales...),
		employees: make(map[primitive.ObjectID]models.Employee, len(d.employees)),
		users:     make(map[primitive.ObjectID]models.User, len(d.users)),
		counters:  make(map[string]int64, len(d.counters)),
	}
	for k, v := range d.products {
		out.products[k] = v
	}
	for k, v := range d.bills {
		out.bills[k] = cloneBill(v)
	}
	for k, v := range d.employees {
		out.employees[k] = v
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.counters {
		out.counters[k] = v
	}
	return out
}

func cloneBill(b models.Bill) models.Bill {
	b.Products = append([]models.BillLine(nil), b.Products...)
	return b
}

func duplicate(field, value string) error {
	return fmt.Errorf("%w: %s %q", store.ErrDuplicateKey, field, value)
}

func sortProducts(products []models.Product, less func(a, b models.Product) bool) []models.Product {
	sort.SliceStable(products, func(i, j int) bool { return less(products[i], products[j]) })
	return products
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
