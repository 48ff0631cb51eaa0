package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/pkg/coerce"
	"nildb/pkg/errors"
	"nildb/pkg/schemas"
)

const (
	defaultTailLimit = 25
	maxTailLimit     = 1000
)

// DataService is the data plane: uploads, updates, deletes, reads, and the
// user-reference bookkeeping owned collections require.
type DataService struct {
	collections ports.CollectionRepository
	users       ports.UserRepository
	data        ports.DataRepository
	logger      *zap.Logger
}

// NewDataService wires the data plane.
func NewDataService(collections ports.CollectionRepository, users ports.UserRepository, data ports.DataRepository, logger *zap.Logger) *DataService {
	return &DataService{
		collections: collections,
		users:       users,
		data:        data,
		logger:      logger,
	}
}

// resolveOwned loads a collection and enforces builder ownership.
func (s *DataService) resolveOwned(ctx context.Context, caller domain.DID, collectionID string) (*domain.Collection, error) {
	collection, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if !collection.Owner.Equal(caller) {
		return nil, errors.ResourceAccessDenied("collection is owned by another builder")
	}
	return collection, nil
}

// CreateOwned uploads documents into an owned collection on behalf of a
// user. Every created document gets the owner and ACL stamped, and the
// owner's record gains the references with create-data (and grant-access)
// log entries.
func (s *DataService) CreateOwned(ctx context.Context, caller domain.DID, collectionID string, owner domain.DID, docs []domain.Document, acl *domain.AclEntry) (*ports.BulkResult, error) {
	collection, err := s.resolveOwned(ctx, caller, collectionID)
	if err != nil {
		return nil, err
	}
	if collection.Type != domain.CollectionOwned {
		return nil, errors.Validation("collection does not hold owned documents")
	}
	if len(docs) == 0 {
		return nil, errors.Validation("data must contain at least one document")
	}

	ownerID, err := domain.ParseDID(owner.String())
	if err != nil {
		return nil, err
	}

	aclList := []domain.AclEntry{}
	if acl != nil {
		grantee, err := domain.ParseDID(acl.Grantee.String())
		if err != nil {
			return nil, err
		}
		entry := *acl
		entry.Grantee = grantee
		aclList = append(aclList, entry)
	}

	compiled, err := schemas.Compile(collection.Schema)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, doc := range docs {
		if err := compiled.Validate(doc); err != nil {
			return nil, err
		}
		if err := compiled.ApplyCoercions(doc); err != nil {
			return nil, err
		}
		if doc.ID() == "" {
			doc[domain.FieldID] = uuid.NewString()
		}
		doc[domain.FieldCreated] = now
		doc[domain.FieldUpdated] = now
		doc[domain.FieldOwner] = ownerID.String()
		doc[domain.FieldAcl] = aclList
	}

	result, err := s.data.InsertMany(ctx, collectionID, docs)
	if err != nil {
		return nil, err
	}

	if len(result.Created) > 0 {
		refs := make([]domain.DataReference, len(result.Created))
		logs := make([]domain.LogEntry, 0, 2*len(result.Created))
		for i, id := range result.Created {
			refs[i] = domain.DataReference{
				Builder:    collection.Owner,
				Collection: collectionID,
				Document:   id,
			}
			logs = append(logs, domain.LogEntry{Op: domain.LogCreateData, Collection: collectionID, At: now})
			if acl != nil {
				entry := aclList[0]
				logs = append(logs, domain.LogEntry{Op: domain.LogGrantAccess, Collection: collectionID, Acl: &entry, At: now})
			}
		}
		if err := s.users.AddData(ctx, ownerID, refs, logs); err != nil {
			s.logger.Error("failed to record user data references",
				zap.String("user", ownerID.String()),
				zap.String("collection", collectionID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

// CreateStandard uploads documents into a standard collection. No user
// bookkeeping applies.
func (s *DataService) CreateStandard(ctx context.Context, caller domain.DID, collectionID string, docs []domain.Document) (*ports.BulkResult, error) {
	collection, err := s.resolveOwned(ctx, caller, collectionID)
	if err != nil {
		return nil, err
	}
	if collection.Type != domain.CollectionStandard {
		return nil, errors.Validation("collection holds owned documents; use the owned upload")
	}
	if len(docs) == 0 {
		return nil, errors.Validation("data must contain at least one document")
	}

	compiled, err := schemas.Compile(collection.Schema)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, doc := range docs {
		if err := compiled.Validate(doc); err != nil {
			return nil, err
		}
		if err := compiled.ApplyCoercions(doc); err != nil {
			return nil, err
		}
		if doc.ID() == "" {
			doc[domain.FieldID] = uuid.NewString()
		}
		doc[domain.FieldCreated] = now
		doc[domain.FieldUpdated] = now
	}

	return s.data.InsertMany(ctx, collectionID, docs)
}

// Update applies an update spec to every document matching the filter.
// Owners of matched owned documents get an update-data log entry.
func (s *DataService) Update(ctx context.Context, caller domain.DID, collectionID string, filter, update map[string]any) (matched, modified int64, err error) {
	collection, err := s.resolveOwned(ctx, caller, collectionID)
	if err != nil {
		return 0, 0, err
	}
	if filter, err = coerce.Apply(filter); err != nil {
		return 0, 0, err
	}
	if update, err = coerce.Apply(update); err != nil {
		return 0, 0, err
	}

	var owners map[domain.DID][]domain.DataReference
	if collection.Type == domain.CollectionOwned {
		docs, err := s.data.Find(ctx, collectionID, filter)
		if err != nil {
			return 0, 0, err
		}
		owners = ownerRefs(docs, collection.Owner, collectionID)
	}

	matched, modified, err = s.data.UpdateMany(ctx, collectionID, filter, update)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	for owner, refs := range owners {
		logs := make([]domain.LogEntry, len(refs))
		for i := range refs {
			logs[i] = domain.LogEntry{Op: domain.LogUpdateData, Collection: collectionID, At: now}
		}
		if err := s.users.AppendLogs(ctx, owner, logs); err != nil {
			s.logger.Error("failed to append update logs",
				zap.String("user", owner.String()),
				zap.String("collection", collectionID),
				zap.Error(err),
			)
		}
	}
	return matched, modified, nil
}

// Delete removes every document matching a non-empty filter, releasing the
// owners' references for owned collections.
func (s *DataService) Delete(ctx context.Context, caller domain.DID, collectionID string, filter map[string]any) (int64, error) {
	if len(filter) == 0 {
		return 0, errors.Validation("delete filter must not be empty; use flush to clear a collection")
	}
	return s.remove(ctx, caller, collectionID, filter)
}

// Flush removes every document of the collection.
func (s *DataService) Flush(ctx context.Context, caller domain.DID, collectionID string) (int64, error) {
	return s.remove(ctx, caller, collectionID, map[string]any{})
}

func (s *DataService) remove(ctx context.Context, caller domain.DID, collectionID string, filter map[string]any) (int64, error) {
	collection, err := s.resolveOwned(ctx, caller, collectionID)
	if err != nil {
		return 0, err
	}
	if filter, err = coerce.Apply(filter); err != nil {
		return 0, err
	}

	var owners map[domain.DID][]domain.DataReference
	if collection.Type == domain.CollectionOwned {
		docs, err := s.data.Find(ctx, collectionID, filter)
		if err != nil {
			return 0, err
		}
		owners = ownerRefs(docs, collection.Owner, collectionID)
	}

	deleted, err := s.data.DeleteMany(ctx, collectionID, filter)
	if err != nil {
		return 0, err
	}

	releaseOwnedReferences(ctx, s.users, owners, collectionID, s.logger)
	return deleted, nil
}

// Find returns every document matching the filter.
func (s *DataService) Find(ctx context.Context, caller domain.DID, collectionID string, filter map[string]any) ([]domain.Document, error) {
	if _, err := s.resolveOwned(ctx, caller, collectionID); err != nil {
		return nil, err
	}
	filter, err := coerce.Apply(filter)
	if err != nil {
		return nil, err
	}
	return s.data.Find(ctx, collectionID, filter)
}

// Tail returns the most recently created documents, newest first.
func (s *DataService) Tail(ctx context.Context, caller domain.DID, collectionID string, limit int64) ([]domain.Document, error) {
	if _, err := s.resolveOwned(ctx, caller, collectionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTailLimit
	}
	if limit > maxTailLimit {
		limit = maxTailLimit
	}
	return s.data.Tail(ctx, collectionID, limit)
}
