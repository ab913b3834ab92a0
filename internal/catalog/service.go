package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
	"easymanager/internal/realtime"
	"easymanager/internal/stock"
	"easymanager/internal/store"
)

const DefaultNearlyExpiredDays = 30

type Notifier interface {
	CheckStockLevel(p models.Product, actingUserEmail string) bool
	CheckExpiration(p models.Product) bool
	NotifyNearlyExpired(products []models.Product) bool
}

// Stocker owns every stock change, including edits made through the product
// form.
type Stocker interface {
	SetStock(ctx context.Context, productID string, quantity int, operation, actingUserEmail string) (stock.StockResult, error)
}

type Service struct {
	repo      store.Catalog
	stocker   Stocker
	notifier  Notifier
	publisher realtime.Publisher
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo store.Catalog, stocker Stocker, notifier Notifier, publisher realtime.Publisher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		stocker:   stocker,
		notifier:  notifier,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProductInput carries create and update payloads. Nil fields are left
// untouched on update.
type ProductInput struct {
	ProductID         *string
	Name              *string
	Description       *string
	Category          *string
	Price             *float64
	CostPrice         *float64
	Stock             *int
	LowStockThreshold *int
	Supplier          *string
	BatchNumber       *string
	ManufacturingDate *time.Time
	ShelfLife         *models.ShelfLife
	ExpirationDate    *time.Time
	IsPerishable      *bool
	IsActive          *bool
}

type ExpirationInput struct {
	ManufacturingDate *time.Time
	ShelfLife         *models.ShelfLife
	BatchNumber       *string
	IsPerishable      *bool
}

func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return s.decorate(products), nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Product, error) {
	oid, err := parseProductID(id)
	if err != nil {
		return models.Product{}, err
	}

	p, err := s.repo.GetProduct(ctx, oid)
	if err != nil {
		return models.Product{}, notFound(err)
	}
	p.Decorate(s.now())
	return p, nil
}

func (s *Service) Create(ctx context.Context, in ProductInput, actingUserEmail string) (models.Product, error) {
	now := s.now()
	p := models.Product{
		LowStockThreshold: models.DefaultLowStockThreshold,
		IsActive:          true,
		LastRestocked:     &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	apply(&p, in)

	var details []string
	if p.ProductID == "" {
		details = append(details, "productId is required")
	}
	if p.Name == "" {
		details = append(details, "name is required")
	}
	if p.Category == "" {
		details = append(details, "category is required")
	}
	if in.Price == nil {
		details = append(details, "price is required")
	}
	if in.CostPrice == nil {
		details = append(details, "costPrice is required")
	}
	details = append(details, checkRanges(p)...)
	if len(details) > 0 {
		return models.Product{}, apperrors.NewValidationError("validation failed", details...)
	}

	p.DeriveExpiration()
	if err := s.repo.CreateProduct(ctx, &p); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return models.Product{}, apperrors.NewConflictError("Product ID already exists", err)
		}
		return models.Product{}, fmt.Errorf("creating product: %w", err)
	}

	s.logger.Info("product created", zap.String("productId", p.ProductID), zap.String("name", p.Name))

	s.notifier.CheckStockLevel(p, actingUserEmail)
	s.notifier.CheckExpiration(p)
	p.Decorate(now)
	s.publisher.Publish(ctx, realtime.ProductChanged(realtime.ChangeAdded, p))
	return p, nil
}

// Update applies a partial edit. A stock value in the payload is handed to
// the stock service as a set operation.
func (s *Service) Update(ctx context.Context, id string, in ProductInput, actingUserEmail string) (models.Product, error) {
	oid, err := parseProductID(id)
	if err != nil {
		return models.Product{}, err
	}

	p, err := s.repo.GetProduct(ctx, oid)
	if err != nil {
		return models.Product{}, notFound(err)
	}

	apply(&p, in)
	if p.ProductID == "" || p.Name == "" || p.Category == "" {
		return models.Product{}, apperrors.NewValidationError("validation failed", "productId, name and category cannot be empty")
	}
	details := checkRanges(p)
	if in.Stock != nil && *in.Stock < 0 {
		details = append(details, "stock must be a non-negative integer")
	}
	if len(details) > 0 {
		return models.Product{}, apperrors.NewValidationError("validation failed", details...)
	}

	p.UpdatedAt = s.now()
	p.DeriveExpiration()
	if err := s.repo.SaveProduct(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return models.Product{}, apperrors.NewConflictError("Product ID already exists", err)
		}
		return models.Product{}, notFound(err)
	}

	if in.Stock != nil && *in.Stock != p.Stock {
		res, err := s.stocker.SetStock(ctx, oid.Hex(), *in.Stock, stock.OpSet, actingUserEmail)
		if err != nil {
			return models.Product{}, err
		}
		p = res.Product
	} else {
		s.notifier.CheckStockLevel(p, actingUserEmail)
		p.Decorate(s.now())
		s.publisher.Publish(ctx, realtime.ProductChanged(realtime.ChangeUpdated, p))
	}
	s.notifier.CheckExpiration(p)

	s.logger.Info("product updated", zap.String("productId", p.ProductID))
	return p, nil
}

func (s *Service) UpdateExpiration(ctx context.Context, id string, in ExpirationInput) (models.Product, error) {
	oid, err := parseProductID(id)
	if err != nil {
		return models.Product{}, err
	}

	p, err := s.repo.GetProduct(ctx, oid)
	if err != nil {
		return models.Product{}, notFound(err)
	}

	apply(&p, ProductInput{
		ManufacturingDate: in.ManufacturingDate,
		ShelfLife:         in.ShelfLife,
		BatchNumber:       in.BatchNumber,
		IsPerishable:      in.IsPerishable,
	})
	if details := checkRanges(p); len(details) > 0 {
		return models.Product{}, apperrors.NewValidationError("validation failed", details...)
	}

	p.UpdatedAt = s.now()
	p.DeriveExpiration()
	if err := s.repo.SaveProduct(ctx, p); err != nil {
		return models.Product{}, notFound(err)
	}

	s.notifier.CheckExpiration(p)
	p.Decorate(s.now())
	s.publisher.Publish(ctx, realtime.ProductChanged(realtime.ChangeUpdated, p))
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	oid, err := parseProductID(id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteProduct(ctx, oid); err != nil {
		return notFound(err)
	}

	s.logger.Info("product deleted", zap.String("id", oid.Hex()))
	s.publisher.Publish(ctx, realtime.ProductDeleted(oid.Hex()))
	return nil
}

func (s *Service) LowStock(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	return s.decorate(products), nil
}

// NearlyExpired lists products expiring within days and mails the admin the
// list when it is not empty.
func (s *Service) NearlyExpired(ctx context.Context, days int) ([]models.Product, error) {
	if days <= 0 {
		days = DefaultNearlyExpiredDays
	}

	now := s.now()
	products, err := s.repo.ExpiringBetween(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}

	if len(products) > 0 {
		s.notifier.NotifyNearlyExpired(products)
	}
	return s.decorate(products), nil
}

func (s *Service) Expired(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ExpiredAt(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return s.decorate(products), nil
}

func (s *Service) decorate(products []models.Product) []models.Product {
	if products == nil {
		return []models.Product{}
	}
	now := s.now()
	for i := range products {
		products[i].Decorate(now)
	}
	return products
}

func apply(p *models.Product, in ProductInput) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&p.ProductID, in.ProductID)
	setString(&p.Name, in.Name)
	setString(&p.Description, in.Description)
	setString(&p.Category, in.Category)
	setString(&p.Supplier, in.Supplier)
	setString(&p.BatchNumber, in.BatchNumber)

	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.CostPrice != nil {
		p.CostPrice = *in.CostPrice
	}
	if in.LowStockThreshold != nil {
		p.LowStockThreshold = *in.LowStockThreshold
	}
	if in.ManufacturingDate != nil {
		p.ManufacturingDate = in.ManufacturingDate
	}
	if in.ShelfLife != nil {
		p.ShelfLife = *in.ShelfLife
		if p.ShelfLife.Unit == "" {
			p.ShelfLife.Unit = models.ShelfLifeDays
		}
	}
	if in.ExpirationDate != nil {
		p.ExpirationDate = in.ExpirationDate
	}
	if in.IsPerishable != nil {
		p.IsPerishable = *in.IsPerishable
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

func checkRanges(p models.Product) []string {
	var details []string
	if p.Price < 0 {
		details = append(details, "price must be at least 0")
	}
	if p.CostPrice < 0 {
		details = append(details, "costPrice must be at least 0")
	}
	if p.Stock < 0 {
		details = append(details, "stock must be a non-negative integer")
	}
	if p.LowStockThreshold < 0 {
		details = append(details, "lowStockThreshold must be at least 0")
	}
	if p.ShelfLife.Value < 0 {
		details = append(details, "shelfLife.value must be at least 0")
	}
	if !models.ValidShelfLifeUnit(p.ShelfLife.Unit) {
		details = append(details, "shelfLife.unit must be one of days, months, years")
	}
	return details
}

func parseProductID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperrors.NewValidationError("invalid product id")
	}
	return id, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NewNotFoundError("Product not found")
	}
	return err
}
