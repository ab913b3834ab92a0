package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"easymanager/internal/database"
	"easymanager/internal/store"
)

const opTimeout = 5 * time.Second

// Store implements store.Store on MongoDB.
type Store struct {
	client         *database.Client
	db             *mongo.Database
	useTransaction bool
	logger         *zap.Logger
	now            func() time.Time

	products  *mongo.Collection
	bills     *mongo.Collection
	sales     *mongo.Collection
	employees *mongo.Collection
	users     *mongo.Collection
	counters  *mongo.Collection
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithClock sets the time stamped into updatedAt on stock writes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wires the collections. useTransaction requires a replica set; without
// it WithTransaction runs the callback directly.
func New(client *database.Client, useTransaction bool, logger *zap.Logger, opts ...Option) *Store {
	db := client.Database()
	s := &Store{
		client:         client,
		db:             db,
		useTransaction: useTransaction,
		logger:         logger,
		now:            time.Now,
		products:       db.Collection("products"),
		bills:          db.Collection("bills"),
		sales:          db.Collection("sales"),
		employees:      db.Collection("employees"),
		users:          db.Collection("users"),
		counters:       db.Collection("counters"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) SupportsTransactions() bool {
	return s.useTransaction
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.useTransaction {
		return fn(ctx)
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

// opContext bounds a single store call. A session context is passed through
// untouched so the operation stays inside its transaction.
func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	default:
		return err
	}
}
