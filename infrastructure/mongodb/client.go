// Package mongodb is the typed adapter over the document store. It exposes
// the two logical namespaces (primary entity collections and per-collection
// data stores) plus the shared write/error semantics the repositories rely
// on.
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"nildb/pkg/errors"
)

// Primary namespace collection names.
const (
	CollBuilders    = "builders"
	CollUsers       = "users"
	CollCollections = "collections"
	CollQueries     = "queries"
	CollQueryRuns   = "query_runs"
	CollConfig      = "config"
)

const connectTimeout = 10 * time.Second

// Client wraps the store connection and its two databases.
type Client struct {
	mc      *mongo.Client
	primary *mongo.Database
	data    *mongo.Database
	logger  *zap.Logger
}

// Connect establishes the store connection and pings it.
func Connect(ctx context.Context, uri, primaryName, dataName string, logger *zap.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Database("store connect failed", err)
	}
	if err := mc.Ping(ctx, readpref.Primary()); err != nil {
		return nil, errors.Database("store ping failed", err)
	}

	logger.Info("connected to document store",
		zap.String("primary", primaryName),
		zap.String("data", dataName))

	return &Client{
		mc:      mc,
		primary: mc.Database(primaryName),
		data:    mc.Database(dataName),
		logger:  logger,
	}, nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.mc.Disconnect(ctx)
}

// Ping checks liveness against the primary.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.mc.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Database("store ping failed", err)
	}
	return nil
}

// Primary returns a handle in the primary namespace.
func (c *Client) Primary(name string) *mongo.Collection {
	return c.primary.Collection(name)
}

// Data returns a handle in the data namespace.
func (c *Client) Data(name string) *mongo.Collection {
	return c.data.Collection(name)
}

// EnsureDataCollection creates a per-collection data store and its
// secondary indexes on _created and _updated. Re-creating an existing
// collection is not an error.
func (c *Client) EnsureDataCollection(ctx context.Context, name string) error {
	if err := c.data.CreateCollection(ctx, name); err != nil && !isNamespaceExists(err) {
		return errors.Database("create data collection failed", err)
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "_created", Value: 1}}},
		{Keys: bson.D{{Key: "_updated", Value: 1}}},
	}
	if _, err := c.data.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
		return mapIndexError(err)
	}
	return nil
}

// DropDataCollection removes a per-collection data store entirely.
func (c *Client) DropDataCollection(ctx context.Context, name string) error {
	if err := c.data.Collection(name).Drop(ctx); err != nil {
		return errors.Database("drop data collection failed", err)
	}
	return nil
}
