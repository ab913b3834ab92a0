package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Client owns the Mongo connection for the lifetime of the process.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var connectBackoffs = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

// Connect dials MongoDB and pings the primary, retrying with backoff while the
// server is not reachable yet.
func Connect(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	c := &Client{client: client, db: client.Database(dbName), logger: logger}

	for attempt := 0; ; attempt++ {
		err = c.Ping(ctx)
		if err == nil {
			break
		}
		if attempt >= len(connectBackoffs) {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("pinging mongo after %d attempts: %w", attempt+1, err)
		}

		wait := connectBackoffs[attempt]
		logger.Warn("mongo not reachable, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			_ = client.Disconnect(context.Background())
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	logger.Info("mongo connected", zap.String("database", dbName))
	return c, nil
}

func (c *Client) Database() *mongo.Database {
	return c.db
}

// Ping checks the primary with a short deadline.
func (c *Client) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return c.client.Ping(checkCtx, readpref.Primary())
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.logger.Info("disconnecting mongo")
	return c.client.Disconnect(ctx)
}
