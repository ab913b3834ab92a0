package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

func (s *Store) findProducts(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	cursor, err := s.products.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products := make([]models.Product, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.findProducts(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}

func (s *Store) GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var product models.Product
	err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	return product, translate(err)
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := s.products.InsertOne(ctx, p)
	return translate(err)
}

func (s *Store) SaveProduct(ctx context.Context, p models.Product) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	set := bson.M{
		"productId":         p.ProductID,
		"name":              p.Name,
		"description":       p.Description,
		"category":          p.Category,
		"price":             p.Price,
		"costPrice":         p.CostPrice,
		"lowStockThreshold": p.LowStockThreshold,
		"supplier":          p.Supplier,
		"batchNumber":       p.BatchNumber,
		"shelfLife":         p.ShelfLife,
		"isPerishable":      p.IsPerishable,
		"isActive":          p.IsActive,
		"updatedAt":         p.UpdatedAt,
	}
	unset := bson.M{}
	optionalDate := func(key string, value *time.Time) {
		if value != nil {
			set[key] = *value
		} else {
			unset[key] = ""
		}
	}
	optionalDate("manufacturingDate", p.ManufacturingDate)
	optionalDate("expirationDate", p.ExpirationDate)
	optionalDate("lastRestocked", p.LastRestocked)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.products.UpdateOne(ctx, bson.M{"_id": p.ID}, update)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := s.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (models.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	filter := bson.M{
		"_id":   id,
		"stock": bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"stock": -qty},
		"$set": bson.M{"updatedAt": s.now()},
	}

	var product models.Product
	err := s.products.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&product)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return product, err
	}

	// nothing matched: either the product is gone or the stock is too low
	count, countErr := s.products.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return product, countErr
	}
	if count == 0 {
		return product, store.ErrNotFound
	}
	return product, store.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int, restockedAt *time.Time) (models.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	set := bson.M{"updatedAt": s.now()}
	if restockedAt != nil {
		set["lastRestocked"] = *restockedAt
	}
	update := bson.M{
		"$inc": bson.M{"stock": qty},
		"$set": set,
	}

	var product models.Product
	err := s.products.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&product)
	return product, translate(err)
}

func (s *Store) SetStock(ctx context.Context, id primitive.ObjectID, qty int) (int, models.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{"stock": qty, "updatedAt": s.now()}}

	var before models.Product
	err := s.products.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		return 0, models.Product{}, translate(err)
	}

	after := before
	after.Stock = qty
	return before.Stock, after, nil
}

func (s *Store) LowStock(ctx context.Context) ([]models.Product, error) {
	filter := bson.M{"$expr": bson.M{"$lte": bson.A{"$stock", "$lowStockThreshold"}}}
	return s.findProducts(ctx, filter, options.Find().SetSort(bson.D{{Key: "stock", Value: 1}}))
}

func (s *Store) ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Product, error) {
	filter := bson.M{"expirationDate": bson.M{"$gt": from, "$lte": to}}
	return s.findProducts(ctx, filter, options.Find().SetSort(bson.D{{Key: "expirationDate", Value: 1}}))
}

func (s *Store) ExpiredAt(ctx context.Context, at time.Time) ([]models.Product, error) {
	filter := bson.M{"expirationDate": bson.M{"$lte": at}}
	return s.findProducts(ctx, filter, options.Find().SetSort(bson.D{{Key: "expirationDate", Value: 1}}))
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return s.products.CountDocuments(ctx, bson.M{})
}

func (s *Store) CountProductsCreatedBefore(ctx context.Context, at time.Time) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	count, err := s.products.CountDocuments(ctx, bson.M{"createdAt": bson.M{"$lte": at}})
	if err != nil {
		s.logger.Warn("counting products failed", zap.Error(err))
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return count, nil
}
