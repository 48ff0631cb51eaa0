package mongodb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"nildb/pkg/errors"
)

// fakeInserter scripts per-batch outcomes and records batch sizes.
type fakeInserter struct {
	batchSizes []int
	errs       []error
	calls      int
}

func (f *fakeInserter) InsertMany(_ context.Context, documents []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	f.batchSizes = append(f.batchSizes, len(documents))
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	if err != nil {
		return nil, err
	}
	return &mongo.InsertManyResult{}, nil
}

func docs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"i": i}
	}
	return out
}

func dupError(index int) mongo.BulkWriteError {
	return mongo.BulkWriteError{WriteError: mongo.WriteError{
		Index:   index,
		Code:    11000,
		Message: "E11000 duplicate key error",
	}}
}

func TestInsertManyUnorderedAllSucceed(t *testing.T) {
	fake := &fakeInserter{}

	outcome, err := InsertManyUnordered(context.Background(), fake, docs(3))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, outcome.InsertedIndexes)
	assert.Empty(t, outcome.Failures)
}

func TestInsertManyUnorderedPartialFailure(t *testing.T) {
	fake := &fakeInserter{errs: []error{mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			dupError(1),
			{WriteError: mongo.WriteError{Index: 3, Code: 121, Message: "Document failed validation"}},
		},
	}}}

	outcome, err := InsertManyUnordered(context.Background(), fake, docs(5))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, outcome.InsertedIndexes)
	require.Len(t, outcome.Failures, 2)
	assert.True(t, outcome.Failures[0].Duplicate)
	assert.Equal(t, 1, outcome.Failures[0].Index)
	assert.False(t, outcome.Failures[1].Duplicate)
	assert.Equal(t, 3, outcome.Failures[1].Index)

	// Bulk-insert law: created + failed covers the input exactly.
	assert.Equal(t, 5, len(outcome.InsertedIndexes)+len(outcome.Failures))
}

func TestInsertManyUnorderedBatchesLargeInput(t *testing.T) {
	fake := &fakeInserter{errs: []error{nil, mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{dupError(2)},
	}}}

	outcome, err := InsertManyUnordered(context.Background(), fake, docs(maxBatchSize+10))
	require.NoError(t, err)

	assert.Equal(t, []int{maxBatchSize, 10}, fake.batchSizes, "batching is transparent and capped")
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, maxBatchSize+2, outcome.Failures[0].Index, "failure index is rebased to the caller's input")
	assert.Len(t, outcome.InsertedIndexes, maxBatchSize+9)
}

func TestInsertManyUnorderedTransportFailure(t *testing.T) {
	fake := &fakeInserter{errs: []error{fmt.Errorf("connection reset")}}

	_, err := InsertManyUnordered(context.Background(), fake, docs(2))
	require.Error(t, err)
	assert.Equal(t, errors.KindDatabase, errors.KindOf(err))
}

func TestIsDuplicateWriteCode(t *testing.T) {
	assert.True(t, IsDuplicateWriteCode(11000))
	assert.True(t, IsDuplicateWriteCode(11001))
	assert.True(t, IsDuplicateWriteCode(12582))
	assert.False(t, IsDuplicateWriteCode(121))
}
