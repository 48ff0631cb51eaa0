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

// QueryRepository stores saved queries in the primary namespace.
type QueryRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewQueryRepository creates the queries store.
func NewQueryRepository(client *mongodb.Client, logger *zap.Logger) *QueryRepository {
	return &QueryRepository{
		coll:   client.Primary(mongodb.CollQueries),
		logger: logger,
	}
}

// Insert persists a saved query.
func (r *QueryRepository) Insert(ctx context.Context, query *domain.Query) error {
	if _, err := r.coll.InsertOne(ctx, query); err != nil {
		return mongodb.WrapWrite("query "+query.ID, err)
	}
	return nil
}

// FindByID loads one query.
func (r *QueryRepository) FindByID(ctx context.Context, id string) (*domain.Query, error) {
	var query domain.Query
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&query)
	if err != nil {
		return nil, mongodb.WrapRead("find query", id, err)
	}
	return &query, nil
}

// FindByOwner lists a builder's queries.
func (r *QueryRepository) FindByOwner(ctx context.Context, owner domain.DID) ([]domain.Query, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"owner": owner})
	if err != nil {
		return nil, errors.Database("find queries by owner", err)
	}
	var queries []domain.Query
	if err := cursor.All(ctx, &queries); err != nil {
		return nil, errors.Database("decode queries", err)
	}
	return queries, nil
}

// Delete removes a saved query.
func (r *QueryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Database("delete query", err)
	}
	if result.DeletedCount == 0 {
		return errors.DocumentNotFound(id)
	}
	return nil
}
