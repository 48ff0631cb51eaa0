package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"nildb/domain"
	"nildb/infrastructure/mongodb"
	"nildb/pkg/errors"
)

// CollectionRepository stores Collection metadata in the primary namespace.
type CollectionRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewCollectionRepository creates the collections store.
func NewCollectionRepository(client *mongodb.Client, logger *zap.Logger) *CollectionRepository {
	return &CollectionRepository{
		coll:   client.Primary(mongodb.CollCollections),
		logger: logger,
	}
}

// Insert persists collection metadata.
func (r *CollectionRepository) Insert(ctx context.Context, collection *domain.Collection) error {
	if _, err := r.coll.InsertOne(ctx, collection); err != nil {
		return mongodb.WrapWrite("collection "+collection.ID, err)
	}
	return nil
}

// FindByID loads one collection. Absence maps to CollectionNotFound, not
// DocumentNotFound: callers address collections, not documents.
func (r *CollectionRepository) FindByID(ctx context.Context, id string) (*domain.Collection, error) {
	var collection domain.Collection
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&collection)
	if err == mongo.ErrNoDocuments {
		return nil, errors.CollectionNotFound(id)
	}
	if err != nil {
		return nil, errors.Database("find collection", err)
	}
	return &collection, nil
}

// FindByOwner lists a builder's collections.
func (r *CollectionRepository) FindByOwner(ctx context.Context, owner domain.DID) ([]domain.Collection, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"owner": owner})
	if err != nil {
		return nil, errors.Database("find collections by owner", err)
	}
	var collections []domain.Collection
	if err := cursor.All(ctx, &collections); err != nil {
		return nil, errors.Database("decode collections", err)
	}
	return collections, nil
}

// Delete removes collection metadata.
func (r *CollectionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Database("delete collection", err)
	}
	if result.DeletedCount == 0 {
		return errors.CollectionNotFound(id)
	}
	return nil
}
