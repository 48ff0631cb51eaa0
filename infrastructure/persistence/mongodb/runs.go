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

// RunRepository stores query runs. Status transitions are written with the
// expected current status in the filter, so the pending → running →
// complete|error machine is enforced at the store and terminal states can
// never be overwritten, whatever the executor does.
type RunRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewRunRepository creates the query-runs store.
func NewRunRepository(client *mongodb.Client, logger *zap.Logger) *RunRepository {
	return &RunRepository{
		coll:   client.Primary(mongodb.CollQueryRuns),
		logger: logger,
	}
}

// Insert persists a run, normally in status pending.
func (r *RunRepository) Insert(ctx context.Context, run *domain.QueryRun) error {
	if _, err := r.coll.InsertOne(ctx, run); err != nil {
		return mongodb.WrapWrite("query run "+run.ID, err)
	}
	return nil
}

// FindByID loads one run.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*domain.QueryRun, error) {
	var run domain.QueryRun
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if err != nil {
		return nil, mongodb.WrapRead("find query run", id, err)
	}
	return &run, nil
}

// MarkRunning transitions pending → running and stamps the start time.
func (r *RunRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"status":   domain.RunRunning,
		"started":  now,
		"_updated": now,
	}}
	return r.transition(ctx, id, domain.RunPending, update)
}

// MarkComplete transitions running → complete with the result.
func (r *RunRepository) MarkComplete(ctx context.Context, id string, result []any) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"status":    domain.RunComplete,
		"completed": now,
		"result":    result,
		"_updated":  now,
	}}
	return r.transition(ctx, id, domain.RunRunning, update)
}

// MarkError transitions running → error with rendered messages.
func (r *RunRepository) MarkError(ctx context.Context, id string, messages []string) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"status":    domain.RunError,
		"completed": now,
		"errors":    messages,
		"_updated":  now,
	}}
	return r.transition(ctx, id, domain.RunRunning, update)
}

func (r *RunRepository) transition(ctx context.Context, id string, from domain.RunStatus, update bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return errors.Database("update query run", err)
	}
	if result.MatchedCount == 0 {
		return errors.Newf(errors.KindDocumentNotFound, "query run %s not found in status %s", id, from)
	}
	return nil
}
