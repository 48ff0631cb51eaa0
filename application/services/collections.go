package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/pkg/errors"
	"nildb/pkg/schemas"
)

// CollectionService registers and removes document collections, keeping the
// builder's denormalized collections index and the per-collection data
// store in step.
type CollectionService struct {
	builders    ports.BuilderRepository
	collections ports.CollectionRepository
	users       ports.UserRepository
	data        ports.DataRepository
	logger      *zap.Logger
}

// NewCollectionService wires the collection lifecycle.
func NewCollectionService(builders ports.BuilderRepository, collections ports.CollectionRepository, users ports.UserRepository, data ports.DataRepository, logger *zap.Logger) *CollectionService {
	return &CollectionService{
		builders:    builders,
		collections: collections,
		users:       users,
		data:        data,
		logger:      logger,
	}
}

// CreateCollectionInput carries a registration request.
type CreateCollectionInput struct {
	ID     string
	Type   domain.CollectionType
	Name   string
	Schema map[string]any
}

// Create registers a collection: the schema must compile, the data store is
// created with its indexes, and the owning builder's index gains the ID.
func (s *CollectionService) Create(ctx context.Context, owner domain.DID, input CreateCollectionInput) (*domain.Collection, error) {
	if input.Type != domain.CollectionOwned && input.Type != domain.CollectionStandard {
		return nil, errors.Validationf("collection type must be %q or %q", domain.CollectionOwned, domain.CollectionStandard)
	}
	if _, err := schemas.Compile(input.Schema); err != nil {
		return nil, err
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	collection := &domain.Collection{
		ID:      id,
		Created: now,
		Updated: now,
		Owner:   domain.NormalizeDID(owner.String()),
		Type:    input.Type,
		Name:    input.Name,
		Schema:  input.Schema,
	}
	if err := s.collections.Insert(ctx, collection); err != nil {
		return nil, err
	}
	if err := s.data.EnsureCollection(ctx, id); err != nil {
		// Roll the metadata back so a failed store creation does not leave
		// a collection that cannot hold data.
		if cleanupErr := s.collections.Delete(ctx, id); cleanupErr != nil {
			s.logger.Error("failed to roll back collection record",
				zap.String("collection", id),
				zap.Error(cleanupErr),
			)
		}
		return nil, err
	}
	if err := s.builders.AddCollection(ctx, owner, id); err != nil {
		return nil, err
	}

	s.logger.Info("created collection",
		zap.String("collection", id),
		zap.String("owner", owner.String()),
		zap.String("type", string(input.Type)),
	)
	return collection, nil
}

// List returns the caller's collections.
func (s *CollectionService) List(ctx context.Context, owner domain.DID) ([]domain.Collection, error) {
	return s.collections.FindByOwner(ctx, owner)
}

// Read loads one collection, enforcing ownership.
func (s *CollectionService) Read(ctx context.Context, owner domain.DID, id string) (*domain.Collection, error) {
	collection, err := s.collections.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !collection.Owner.Equal(owner) {
		return nil, errors.ResourceAccessDenied("collection is owned by another builder")
	}
	return collection, nil
}

// Delete removes a collection: user references of its owned documents are
// released, the data store dropped, the record deleted, and the builder's
// index updated.
func (s *CollectionService) Delete(ctx context.Context, owner domain.DID, id string) error {
	collection, err := s.Read(ctx, owner, id)
	if err != nil {
		return err
	}

	if collection.Type == domain.CollectionOwned {
		docs, err := s.data.Find(ctx, id, nil)
		if err != nil {
			return err
		}
		releaseOwnedReferences(ctx, s.users, ownerRefs(docs, collection.Owner, id), id, s.logger)
	}

	if err := s.data.DropCollection(ctx, id); err != nil {
		return err
	}
	if err := s.collections.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.builders.RemoveCollection(ctx, owner, id); err != nil {
		return err
	}

	s.logger.Info("deleted collection",
		zap.String("collection", id),
		zap.String("owner", owner.String()),
	)
	return nil
}
