package memstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.filterProducts(func(models.Product) bool { return true }, func(a, b models.Product) bool {
		return a.Name < b.Name
	}), nil
}

func (s *Store) filterProducts(keep func(models.Product) bool, less func(a, b models.Product) bool) []models.Product {
	out := make([]models.Product, 0)
	s.read(func() {
		for _, p := range s.data.products {
			if keep(p) {
				out = append(out, p)
			}
		}
	})
	return sortProducts(out, less)
}

func (s *Store) GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var (
		p  models.Product
		ok bool
	)
	s.read(func() { p, ok = s.data.products[id] })
	if !ok {
		return models.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	return s.write(ctx, func() error {
		for _, existing := range s.data.products {
			if existing.ProductID == p.ProductID {
				return duplicate("productId", p.ProductID)
			}
		}
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		s.data.products[p.ID] = *p
		return nil
	})
}

func (s *Store) SaveProduct(ctx context.Context, p models.Product) error {
	return s.write(ctx, func() error {
		current, ok := s.data.products[p.ID]
		if !ok {
			return store.ErrNotFound
		}
		for id, existing := range s.data.products {
			if id != p.ID && existing.ProductID == p.ProductID {
				return duplicate("productId", p.ProductID)
			}
		}
		p.Stock = current.Stock
		p.CreatedAt = current.CreatedAt
		p.RemainingShelfLifeDays = nil
		p.IsExpired = false
		s.data.products[p.ID] = p
		return nil
	})
}

func (s *Store) DeleteProduct(ctx context.Context, id primitive.ObjectID) error {
	return s.write(ctx, func() error {
		if _, ok := s.data.products[id]; !ok {
			return store.ErrNotFound
		}
		delete(s.data.products, id)
		return nil
	})
}

func (s *Store) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (models.Product, error) {
	var out models.Product
	err := s.write(ctx, func() error {
		p, ok := s.data.products[id]
		if !ok {
			return store.ErrNotFound
		}
		if p.Stock < qty {
			return store.ErrInsufficientStock
		}
		p.Stock -= qty
		p.UpdatedAt = s.now()
		s.data.products[id] = p
		out = p
		return nil
	})
	return out, err
}

func (s *Store) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int, restockedAt *time.Time) (models.Product, error) {
	var out models.Product
	err := s.write(ctx, func() error {
		p, ok := s.data.products[id]
		if !ok {
			return store.ErrNotFound
		}
		p.Stock += qty
		p.UpdatedAt = s.now()
		if restockedAt != nil {
			at := *restockedAt
			p.LastRestocked = &at
		}
		s.data.products[id] = p
		out = p
		return nil
	})
	return out, err
}

func (s *Store) SetStock(ctx context.Context, id primitive.ObjectID, qty int) (int, models.Product, error) {
	var (
		old int
		out models.Product
	)
	err := s.write(ctx, func() error {
		p, ok := s.data.products[id]
		if !ok {
			return store.ErrNotFound
		}
		old = p.Stock
		p.Stock = qty
		p.UpdatedAt = s.now()
		s.data.products[id] = p
		out = p
		return nil
	})
	return old, out, err
}

func (s *Store) LowStock(ctx context.Context) ([]models.Product, error) {
	return s.filterProducts(models.Product.IsLowStock, func(a, b models.Product) bool {
		return a.Stock < b.Stock
	}), nil
}

func (s *Store) ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Product, error) {
	return s.filterProducts(func(p models.Product) bool {
		return p.ExpirationDate != nil && p.ExpirationDate.After(from) && !p.ExpirationDate.After(to)
	}, byExpiration), nil
}

func (s *Store) ExpiredAt(ctx context.Context, at time.Time) ([]models.Product, error) {
	return s.filterProducts(func(p models.Product) bool {
		return p.ExpirationDate != nil && !p.ExpirationDate.After(at)
	}, byExpiration), nil
}

func byExpiration(a, b models.Product) bool {
	return a.ExpirationDate.Before(*b.ExpirationDate)
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	s.read(func() { n = int64(len(s.data.products)) })
	return n, nil
}

func (s *Store) CountProductsCreatedBefore(ctx context.Context, at time.Time) (int64, error) {
	var n int64
	s.read(func() {
		for _, p := range s.data.products {
			if !p.CreatedAt.After(at) {
				n++
			}
		}
	})
	return n, nil
}
