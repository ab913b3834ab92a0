package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func indexPlan() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: "products",
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "productId", Value: 1}},
					Options: options.Index().SetName("productId_unique").SetUnique(true),
				},
				{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetName("name_index")},
				{Keys: bson.D{{Key: "category", Value: 1}}, Options: options.Index().SetName("category_index")},
				{Keys: bson.D{{Key: "expirationDate", Value: 1}}, Options: options.Index().SetName("expirationDate_index")},
			},
		},
		{
			collection: "bills",
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "billNo", Value: 1}},
					Options: options.Index().SetName("billNo_unique").SetUnique(true),
				},
				{Keys: bson.D{{Key: "date", Value: -1}}, Options: options.Index().SetName("date_index")},
			},
		},
		{
			collection: "sales",
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "Date", Value: 1}}, Options: options.Index().SetName("Date_index")},
			},
		},
		{
			collection: "users",
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "email", Value: 1}},
					Options: options.Index().SetName("email_unique").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "username", Value: 1}},
					Options: options.Index().SetName("username_unique").SetUnique(true),
				},
			},
		},
		{
			collection: "employees",
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "empId", Value: 1}},
					Options: options.Index().SetName("empId_unique").SetUnique(true),
				},
			},
		},
	}
}

// EnsureIndexes creates the indexes every collection relies on. Unique
// indexes back the duplicate-key conflicts the API reports.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, plan := range indexPlan() {
		names, err := db.Collection(plan.collection).Indexes().CreateMany(ctx, plan.models)
		if err != nil {
			logger.Error("index creation failed", zap.String("collection", plan.collection), zap.Error(err))
			return fmt.Errorf("creating %s indexes: %w", plan.collection, err)
		}
		logger.Debug("indexes ensured", zap.String("collection", plan.collection), zap.Strings("indexes", names))
	}
	return nil
}
