package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/infrastructure/mongodb"
	"nildb/pkg/errors"
)

// DataRepository addresses the per-collection data stores. Every method
// resolves the physical collection by collection ID inside the data
// namespace.
type DataRepository struct {
	client *mongodb.Client
	logger *zap.Logger
}

// NewDataRepository creates the data-plane store.
func NewDataRepository(client *mongodb.Client, logger *zap.Logger) *DataRepository {
	return &DataRepository{client: client, logger: logger}
}

// EnsureCollection creates the physical collection and its _created /
// _updated indexes.
func (r *DataRepository) EnsureCollection(ctx context.Context, collectionID string) error {
	return r.client.EnsureDataCollection(ctx, collectionID)
}

// DropCollection removes the physical collection.
func (r *DataRepository) DropCollection(ctx context.Context, collectionID string) error {
	return r.client.DropDataCollection(ctx, collectionID)
}

// InsertMany performs the unordered bulk insert, mapping failures back to
// the original payloads.
func (r *DataRepository) InsertMany(ctx context.Context, collectionID string, docs []domain.Document) (*ports.BulkResult, error) {
	generic := make([]any, len(docs))
	for i, doc := range docs {
		generic[i] = map[string]any(doc)
	}

	outcome, err := mongodb.InsertManyUnordered(ctx, r.client.Data(collectionID), generic)
	if err != nil {
		return nil, err
	}

	result := &ports.BulkResult{Created: []string{}, Errors: []ports.BulkError{}}
	for _, index := range outcome.InsertedIndexes {
		result.Created = append(result.Created, docs[index].ID())
	}
	for _, failure := range outcome.Failures {
		result.Errors = append(result.Errors, ports.BulkError{
			Reason:    failure.Reason,
			Duplicate: failure.Duplicate,
			Document:  docs[failure.Index],
		})
	}
	return result, nil
}

// Find returns all documents matching the filter.
func (r *DataRepository) Find(ctx context.Context, collectionID string, filter map[string]any) ([]domain.Document, error) {
	cursor, err := r.client.Data(collectionID).Find(ctx, toFilter(filter))
	if err != nil {
		return nil, errors.Database("find documents", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, errors.Database("decode documents", err)
	}
	return toDocuments(raw), nil
}

// FindOne returns the first document matching the filter.
func (r *DataRepository) FindOne(ctx context.Context, collectionID string, filter map[string]any) (domain.Document, error) {
	var raw bson.M
	err := r.client.Data(collectionID).FindOne(ctx, toFilter(filter)).Decode(&raw)
	if err != nil {
		return nil, mongodb.WrapRead("find document", collectionID, err)
	}
	return domain.Document(normalizeValue(raw).(map[string]any)), nil
}

// FindByID returns one document by _id.
func (r *DataRepository) FindByID(ctx context.Context, collectionID, id string) (domain.Document, error) {
	var raw bson.M
	err := r.client.Data(collectionID).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		return nil, mongodb.WrapRead("find document", id, err)
	}
	return domain.Document(normalizeValue(raw).(map[string]any)), nil
}

// Tail returns the most recently created documents, newest first.
func (r *DataRepository) Tail(ctx context.Context, collectionID string, limit int64) ([]domain.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: domain.FieldCreated, Value: -1}}).
		SetLimit(limit)
	cursor, err := r.client.Data(collectionID).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Database("tail documents", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, errors.Database("decode documents", err)
	}
	return toDocuments(raw), nil
}

// UpdateMany applies the update spec to every matching document, stamping
// _updated.
func (r *DataRepository) UpdateMany(ctx context.Context, collectionID string, filter, update map[string]any) (int64, int64, error) {
	result, err := r.client.Data(collectionID).UpdateMany(ctx, toFilter(filter), withUpdatedStamp(update))
	if err != nil {
		return 0, 0, errors.Database("update documents", err)
	}
	return result.MatchedCount, result.ModifiedCount, nil
}

// ReplaceAcl atomically swaps a document's ACL list.
func (r *DataRepository) ReplaceAcl(ctx context.Context, collectionID, id string, acl []domain.AclEntry) error {
	update := bson.M{"$set": bson.M{
		domain.FieldAcl:     acl,
		domain.FieldUpdated: time.Now().UTC(),
	}}
	result, err := r.client.Data(collectionID).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Database("replace document acl", err)
	}
	if result.MatchedCount == 0 {
		return errors.DocumentNotFound(id)
	}
	return nil
}

// DeleteMany removes every matching document.
func (r *DataRepository) DeleteMany(ctx context.Context, collectionID string, filter map[string]any) (int64, error) {
	result, err := r.client.Data(collectionID).DeleteMany(ctx, toFilter(filter))
	if err != nil {
		return 0, errors.Database("delete documents", err)
	}
	return result.DeletedCount, nil
}

// Aggregate runs a pipeline against the collection's data store.
func (r *DataRepository) Aggregate(ctx context.Context, collectionID string, stages []map[string]any) ([]any, error) {
	pipeline := make(bson.A, len(stages))
	for i, stage := range stages {
		pipeline[i] = bson.M(stage)
	}
	cursor, err := r.client.Data(collectionID).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Database("aggregate", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, errors.Database("decode aggregation result", err)
	}
	out := make([]any, len(raw))
	for i, doc := range raw {
		out[i] = normalizeValue(doc)
	}
	return out, nil
}

func toFilter(filter map[string]any) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

// withUpdatedStamp folds an _updated timestamp into the caller's update
// spec, wrapping plain documents into $set.
func withUpdatedStamp(update map[string]any) bson.M {
	now := time.Now().UTC()
	out := bson.M{}
	hasOperator := false
	for key, value := range update {
		if len(key) > 0 && key[0] == '$' {
			hasOperator = true
		}
		out[key] = value
	}
	if !hasOperator {
		out = bson.M{"$set": bson.M(update)}
	}
	set, ok := out["$set"].(bson.M)
	if !ok {
		if plain, isPlain := out["$set"].(map[string]any); isPlain {
			set = bson.M(plain)
		} else {
			set = bson.M{}
		}
	}
	set[domain.FieldUpdated] = now
	out["$set"] = set
	return out
}

func toDocuments(raw []bson.M) []domain.Document {
	docs := make([]domain.Document, len(raw))
	for i, doc := range raw {
		docs[i] = domain.Document(normalizeValue(doc).(map[string]any))
	}
	return docs
}

// normalizeValue rewrites nested bson.M / bson.A values into plain maps and
// slices so callers never see driver types.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, element := range v {
			out[key] = normalizeValue(element)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, element := range v {
			out[key] = normalizeValue(element)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = normalizeValue(element)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = normalizeValue(element)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, element := range v {
			out[element.Key] = normalizeValue(element.Value)
		}
		return out
	default:
		return v
	}
}
