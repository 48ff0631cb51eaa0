// Package ports defines the repository interfaces the application services
// depend on. Implementations live under infrastructure/persistence; tests
// substitute in-memory fakes.
package ports

import (
	"context"

	"nildb/domain"
)

// BuilderRepository stores Builder records keyed by DID.
type BuilderRepository interface {
	Insert(ctx context.Context, builder *domain.Builder) error
	FindByID(ctx context.Context, id domain.DID) (*domain.Builder, error)
	SetName(ctx context.Context, id domain.DID, name string) error
	AddCollection(ctx context.Context, id domain.DID, collectionID string) error
	RemoveCollection(ctx context.Context, id domain.DID, collectionID string) error
	AddQuery(ctx context.Context, id domain.DID, queryID string) error
	RemoveQuery(ctx context.Context, id domain.DID, queryID string) error
	Delete(ctx context.Context, id domain.DID) error
}

// CollectionRepository stores Collection metadata.
type CollectionRepository interface {
	Insert(ctx context.Context, collection *domain.Collection) error
	FindByID(ctx context.Context, id string) (*domain.Collection, error)
	FindByOwner(ctx context.Context, owner domain.DID) ([]domain.Collection, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository stores User records and their data references. AddData
// upserts the record; DeleteIfEmpty applies the empty-data predicate.
type UserRepository interface {
	FindByID(ctx context.Context, id domain.DID) (*domain.User, error)
	AddData(ctx context.Context, id domain.DID, refs []domain.DataReference, logs []domain.LogEntry) error
	RemoveData(ctx context.Context, id domain.DID, refs []domain.DataReference, logs []domain.LogEntry) error
	AppendLogs(ctx context.Context, id domain.DID, logs []domain.LogEntry) error
	DeleteIfEmpty(ctx context.Context, id domain.DID) (bool, error)
}

// QueryRepository stores saved queries.
type QueryRepository interface {
	Insert(ctx context.Context, query *domain.Query) error
	FindByID(ctx context.Context, id string) (*domain.Query, error)
	FindByOwner(ctx context.Context, owner domain.DID) ([]domain.Query, error)
	Delete(ctx context.Context, id string) error
}

// RunRepository stores query runs. The status transition methods enforce
// the pending → running → complete|error state machine at the store, so a
// terminal run can never change again.
type RunRepository interface {
	Insert(ctx context.Context, run *domain.QueryRun) error
	FindByID(ctx context.Context, id string) (*domain.QueryRun, error)
	MarkRunning(ctx context.Context, id string) error
	MarkComplete(ctx context.Context, id string, result []any) error
	MarkError(ctx context.Context, id string, messages []string) error
}

// ConfigRepository stores the maintenance singleton.
type ConfigRepository interface {
	StartMaintenance(ctx context.Context) error
	StopMaintenance(ctx context.Context) error
	Maintenance(ctx context.Context) (domain.MaintenanceConfig, error)
}

// BulkError describes one document that failed inside an unordered bulk
// insert, carrying its original payload back to the caller.
type BulkError struct {
	Reason    string          `json:"reason"`
	Duplicate bool            `json:"duplicate"`
	Document  domain.Document `json:"document"`
}

// BulkResult reports an unordered bulk insert: every created ID and every
// per-document failure. len(Created) + len(Errors) equals the input size.
type BulkResult struct {
	Created []string    `json:"created"`
	Errors  []BulkError `json:"errors"`
}

// DataRepository is the per-collection data-store surface. Collections are
// addressed by their collection ID; the store creates one physical
// collection per ID with indexes on _created and _updated.
type DataRepository interface {
	EnsureCollection(ctx context.Context, collectionID string) error
	DropCollection(ctx context.Context, collectionID string) error
	InsertMany(ctx context.Context, collectionID string, docs []domain.Document) (*BulkResult, error)
	Find(ctx context.Context, collectionID string, filter map[string]any) ([]domain.Document, error)
	FindOne(ctx context.Context, collectionID string, filter map[string]any) (domain.Document, error)
	FindByID(ctx context.Context, collectionID, id string) (domain.Document, error)
	Tail(ctx context.Context, collectionID string, limit int64) ([]domain.Document, error)
	UpdateMany(ctx context.Context, collectionID string, filter, update map[string]any) (matched, modified int64, err error)
	ReplaceAcl(ctx context.Context, collectionID, id string, acl []domain.AclEntry) error
	DeleteMany(ctx context.Context, collectionID string, filter map[string]any) (int64, error)
	Aggregate(ctx context.Context, collectionID string, stages []map[string]any) ([]any, error)
}
