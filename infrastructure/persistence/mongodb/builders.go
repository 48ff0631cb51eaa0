// Package mongodb implements the entity stores over the document-store
// adapter: builders, collections, users, queries, query runs, the config
// singleton, and the per-collection data stores.
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"nildb/domain"
	"nildb/infrastructure/mongodb"
	"nildb/pkg/errors"
)

// BuilderRepository stores Builder records in the primary namespace.
type BuilderRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewBuilderRepository creates the builders store.
func NewBuilderRepository(client *mongodb.Client, logger *zap.Logger) *BuilderRepository {
	return &BuilderRepository{
		coll:   client.Primary(mongodb.CollBuilders),
		logger: logger,
	}
}

// Insert persists a new builder. A duplicate DID maps to DuplicateEntry.
func (r *BuilderRepository) Insert(ctx context.Context, builder *domain.Builder) error {
	if _, err := r.coll.InsertOne(ctx, builder); err != nil {
		return mongodb.WrapWrite("builder "+builder.ID.String(), err)
	}
	return nil
}

// FindByID loads one builder by DID.
func (r *BuilderRepository) FindByID(ctx context.Context, id domain.DID) (*domain.Builder, error) {
	var builder domain.Builder
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&builder)
	if err != nil {
		return nil, mongodb.WrapRead("find builder", id.String(), err)
	}
	return &builder, nil
}

// SetName updates the display name.
func (r *BuilderRepository) SetName(ctx context.Context, id domain.DID, name string) error {
	update := bson.M{"$set": bson.M{"name": name, "_updated": time.Now().UTC()}}
	return r.updateOne(ctx, id, update)
}

// AddCollection links a collection ID into the builder's set.
func (r *BuilderRepository) AddCollection(ctx context.Context, id domain.DID, collectionID string) error {
	update := bson.M{
		"$addToSet": bson.M{"collections": collectionID},
		"$set":      bson.M{"_updated": time.Now().UTC()},
	}
	return r.updateOne(ctx, id, update)
}

// RemoveCollection unlinks a collection ID.
func (r *BuilderRepository) RemoveCollection(ctx context.Context, id domain.DID, collectionID string) error {
	update := bson.M{
		"$pull": bson.M{"collections": collectionID},
		"$set":  bson.M{"_updated": time.Now().UTC()},
	}
	return r.updateOne(ctx, id, update)
}

// AddQuery links a query ID into the builder's set.
func (r *BuilderRepository) AddQuery(ctx context.Context, id domain.DID, queryID string) error {
	update := bson.M{
		"$addToSet": bson.M{"queries": queryID},
		"$set":      bson.M{"_updated": time.Now().UTC()},
	}
	return r.updateOne(ctx, id, update)
}

// RemoveQuery unlinks a query ID.
func (r *BuilderRepository) RemoveQuery(ctx context.Context, id domain.DID, queryID string) error {
	update := bson.M{
		"$pull": bson.M{"queries": queryID},
		"$set":  bson.M{"_updated": time.Now().UTC()},
	}
	return r.updateOne(ctx, id, update)
}

// Delete removes the builder record.
func (r *BuilderRepository) Delete(ctx context.Context, id domain.DID) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Database("delete builder", err)
	}
	if result.DeletedCount == 0 {
		return errors.DocumentNotFound(id.String())
	}
	return nil
}

func (r *BuilderRepository) updateOne(ctx context.Context, id domain.DID, update bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Database("update builder", err)
	}
	if result.MatchedCount == 0 {
		return errors.DocumentNotFound(id.String())
	}
	return nil
}
