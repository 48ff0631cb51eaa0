package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"nildb/domain"
	"nildb/infrastructure/mongodb"
	"nildb/pkg/errors"
)

// UserRepository stores User records in the primary namespace.
type UserRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewUserRepository creates the users store.
func NewUserRepository(client *mongodb.Client, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		coll:   client.Primary(mongodb.CollUsers),
		logger: logger,
	}
}

// FindByID loads one user by DID.
func (r *UserRepository) FindByID(ctx context.Context, id domain.DID) (*domain.User, error) {
	var user domain.User
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		return nil, mongodb.WrapRead("find user", id.String(), err)
	}
	return &user, nil
}

// AddData upserts the user record, adding data references and appending
// log entries in one write.
func (r *UserRepository) AddData(ctx context.Context, id domain.DID, refs []domain.DataReference, logs []domain.LogEntry) error {
	now := time.Now().UTC()
	update := bson.M{
		"$addToSet":    bson.M{"data": bson.M{"$each": refs}},
		"$push":        bson.M{"logs": bson.M{"$each": logs}},
		"$set":         bson.M{"_updated": now},
		"$setOnInsert": bson.M{"_created": now},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return errors.Database("add user data references", err)
	}
	return nil
}

// RemoveData pulls data references and appends log entries in one write.
// A missing user is not an error: the references are gone either way.
func (r *UserRepository) RemoveData(ctx context.Context, id domain.DID, refs []domain.DataReference, logs []domain.LogEntry) error {
	update := bson.M{
		"$pull": bson.M{"data": bson.M{"$in": refs}},
		"$push": bson.M{"logs": bson.M{"$each": logs}},
		"$set":  bson.M{"_updated": time.Now().UTC()},
	}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return errors.Database("remove user data references", err)
	}
	return nil
}

// AppendLogs appends operation log entries without touching data
// references.
func (r *UserRepository) AppendLogs(ctx context.Context, id domain.DID, logs []domain.LogEntry) error {
	update := bson.M{
		"$push": bson.M{"logs": bson.M{"$each": logs}},
		"$set":  bson.M{"_updated": time.Now().UTC()},
	}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return errors.Database("append user logs", err)
	}
	return nil
}

// DeleteIfEmpty removes the user record only when its data set is empty,
// reporting whether a deletion happened. The guard and the delete are one
// store operation, so a concurrent upload cannot race the predicate.
func (r *UserRepository) DeleteIfEmpty(ctx context.Context, id domain.DID) (bool, error) {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "data": bson.M{"$size": 0}})
	if err != nil {
		return false, errors.Database("delete empty user", err)
	}
	return result.DeletedCount == 1, nil
}
