package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
	"easymanager/internal/realtime"
	"easymanager/internal/store"
)

const (
	OpIncrease = "increase"
	OpDecrease = "decrease"
	OpSet      = "set"
)

type Repository interface {
	store.Catalog
	store.Ledger
	store.Transactor
}

type Notifier interface {
	CheckStockLevel(p models.Product, actingUserEmail string) bool
}

// Service keeps product stock consistent with the bills that consume it.
type Service struct {
	repo      Repository
	notifier  Notifier
	publisher realtime.Publisher
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(repo Repository, notifier Notifier, publisher realtime.Publisher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		loc:       time.Local,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LowStockAlert struct {
	ProductName  string `json:"productName"`
	ProductID    string `json:"productId"`
	CurrentStock int    `json:"currentStock"`
	Threshold    int    `json:"threshold"`
}

type StockResult struct {
	OldStock int            `json:"oldStock"`
	NewStock int            `json:"newStock"`
	Product  models.Product `json:"product"`
}

// SetStock applies a direct stock adjustment. Decreases are conditional, so a
// decrease larger than the current stock fails without changing anything.
func (s *Service) SetStock(ctx context.Context, productID string, quantity int, operation, actingUserEmail string) (StockResult, error) {
	if quantity < 0 {
		return StockResult{}, apperrors.NewValidationError("validation failed", "quantity must be a non-negative integer")
	}
	if operation == "" {
		operation = OpDecrease
	}
	if operation != OpIncrease && operation != OpDecrease && operation != OpSet {
		return StockResult{}, apperrors.NewValidationError("validation failed", "operation must be one of increase, decrease, set")
	}

	id, err := parseID(productID, "product")
	if err != nil {
		return StockResult{}, err
	}

	var (
		oldStock int
		product  models.Product
	)
	switch operation {
	case OpDecrease:
		product, err = s.repo.DecrementStock(ctx, id, quantity)
		if err != nil {
			return StockResult{}, s.decrementError(ctx, id, quantity, err)
		}
		oldStock = product.Stock + quantity
	case OpIncrease:
		restocked := s.now()
		product, err = s.repo.IncrementStock(ctx, id, quantity, &restocked)
		if err != nil {
			return StockResult{}, s.decrementError(ctx, id, quantity, err)
		}
		oldStock = product.Stock - quantity
	case OpSet:
		oldStock, product, err = s.repo.SetStock(ctx, id, quantity)
		if err != nil {
			return StockResult{}, s.decrementError(ctx, id, quantity, err)
		}
	}

	s.logger.Info("stock adjusted",
		zap.String("productId", product.ProductID),
		zap.String("operation", operation),
		zap.Int("oldStock", oldStock),
		zap.Int("newStock", product.Stock),
	)

	if product.IsLowStock() {
		s.notifier.CheckStockLevel(product, actingUserEmail)
	}
	product.Decorate(s.now())
	s.publisher.Publish(ctx, realtime.ProductChanged(realtime.ChangeUpdated, product))

	return StockResult{OldStock: oldStock, NewStock: product.Stock, Product: product}, nil
}

// decrementError converts store errors from a stock operation into the typed
// errors callers match on.
func (s *Service) decrementError(ctx context.Context, id primitive.ObjectID, requested int, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &ProductNotFoundError{ProductID: id.Hex()}
	case errors.Is(err, store.ErrInsufficientStock):
		current, getErr := s.repo.GetProduct(ctx, id)
		if getErr != nil {
			return &InsufficientStockError{ProductID: id.Hex(), Requested: requested}
		}
		return &InsufficientStockError{
			ProductID: id.Hex(),
			Name:      current.Name,
			Available: current.Stock,
			Requested: requested,
		}
	default:
		return fmt.Errorf("adjusting stock for %s: %w", id.Hex(), err)
	}
}

// compensate undoes stock changes made outside a real transaction. Each
// entry is added back, so callers pass negative quantities to undo
// increments.
func (s *Service) compensate(ctx context.Context, applied []adjustment) {
	if s.repo.SupportsTransactions() {
		return
	}
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		if _, err := s.repo.IncrementStock(ctx, a.productID, a.delta, nil); err != nil {
			s.logger.Error("stock compensation failed",
				zap.String("productId", a.productID.Hex()),
				zap.Int("delta", a.delta),
				zap.Error(err),
			)
		}
	}
}

// adjustment records a change so compensate can reverse it. delta is what
// must be added to undo the change.
type adjustment struct {
	productID primitive.ObjectID
	delta     int
}

func (s *Service) publishProducts(ctx context.Context, order []primitive.ObjectID, latest map[primitive.ObjectID]models.Product) {
	now := s.now()
	for _, id := range order {
		p, ok := latest[id]
		if !ok {
			continue
		}
		p.Decorate(now)
		s.publisher.Publish(ctx, realtime.ProductChanged(realtime.ChangeUpdated, p))
	}
}
