package mongodb

import (
	"context"
	stderrors "errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"nildb/pkg/errors"
)

// maxBatchSize caps how many documents go to the store in one request.
// Batching is invisible to callers.
const maxBatchSize = 1000

// BulkFailure is one document that the store rejected, addressed by its
// position in the caller's input.
type BulkFailure struct {
	Index     int
	Reason    string
	Duplicate bool
}

// BulkOutcome is the result of an unordered bulk insert: the indexes that
// made it and the per-document failures. One bad document never aborts the
// batch.
type BulkOutcome struct {
	InsertedIndexes []int
	Failures        []BulkFailure
}

// inserter is the slice of *mongo.Collection the bulk path needs.
type inserter interface {
	InsertMany(ctx context.Context, documents []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// InsertManyUnordered inserts docs in unordered batches, capturing every
// per-document failure. A transport-level failure (anything that is not a
// bulk write exception) aborts with DatabaseError: partial results from a
// dead connection are not trustworthy.
func InsertManyUnordered(ctx context.Context, coll inserter, docs []any) (*BulkOutcome, error) {
	outcome := &BulkOutcome{}
	failed := make(map[int]struct{})

	for offset := 0; offset < len(docs); offset += maxBatchSize {
		end := offset + maxBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		_, err := coll.InsertMany(ctx, docs[offset:end], options.InsertMany().SetOrdered(false))
		if err == nil {
			continue
		}

		var bulkErr mongo.BulkWriteException
		if !stderrors.As(err, &bulkErr) {
			return nil, errors.Database("bulk insert failed", err)
		}
		if bulkErr.WriteConcernError != nil {
			return nil, errors.Database("bulk insert write concern failed", err)
		}
		for _, writeErr := range bulkErr.WriteErrors {
			index := offset + writeErr.Index
			failed[index] = struct{}{}
			outcome.Failures = append(outcome.Failures, BulkFailure{
				Index:     index,
				Reason:    writeErr.Message,
				Duplicate: IsDuplicateWriteCode(writeErr.Code),
			})
		}
	}

	for i := range docs {
		if _, ok := failed[i]; !ok {
			outcome.InsertedIndexes = append(outcome.InsertedIndexes, i)
		}
	}
	return outcome, nil
}
