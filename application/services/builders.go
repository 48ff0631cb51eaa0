// Package services implements the node's application operations over the
// repository ports: builder lifecycle, collections, the data plane, saved
// queries with background runs, user profiles and ACLs, and the system
// surface.
package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/pkg/errors"
)

// BuilderService manages builder registration, profiles, and the deletion
// cascade.
type BuilderService struct {
	node        domain.DID
	builders    ports.BuilderRepository
	collections ports.CollectionRepository
	queries     ports.QueryRepository
	users       ports.UserRepository
	data        ports.DataRepository
	logger      *zap.Logger
}

// NewBuilderService wires the builder lifecycle.
func NewBuilderService(node domain.DID, builders ports.BuilderRepository, collections ports.CollectionRepository, queries ports.QueryRepository, users ports.UserRepository, data ports.DataRepository, logger *zap.Logger) *BuilderService {
	return &BuilderService{
		node:        node,
		builders:    builders,
		collections: collections,
		queries:     queries,
		users:       users,
		data:        data,
		logger:      logger,
	}
}

// Register creates a builder record. The node's own identity can never
// register as a builder.
func (s *BuilderService) Register(ctx context.Context, id domain.DID, name string) (*domain.Builder, error) {
	if id.Equal(s.node) {
		return nil, errors.Duplicate("the node identity cannot register as a builder")
	}

	now := time.Now().UTC()
	builder := &domain.Builder{
		ID:          domain.NormalizeDID(id.String()),
		Created:     now,
		Updated:     now,
		Name:        name,
		Collections: []string{},
		Queries:     []string{},
	}
	if err := s.builders.Insert(ctx, builder); err != nil {
		return nil, err
	}

	s.logger.Info("registered builder", zap.String("builder", builder.ID.String()))
	return builder, nil
}

// Profile reads a builder's record.
func (s *BuilderService) Profile(ctx context.Context, id domain.DID) (*domain.Builder, error) {
	return s.builders.FindByID(ctx, id)
}

// SetName updates the display name.
func (s *BuilderService) SetName(ctx context.Context, id domain.DID, name string) error {
	return s.builders.SetName(ctx, id, name)
}

// Remove deletes the builder and cascades: queries first, then each
// collection with its data store and user references, the builder record
// last. The fan-out is best effort; a mid-failure leaves the remaining
// children in place and is surfaced through logs.
func (s *BuilderService) Remove(ctx context.Context, id domain.DID) error {
	builder, err := s.builders.FindByID(ctx, id)
	if err != nil {
		return err
	}

	for _, queryID := range builder.Queries {
		if err := s.queries.Delete(ctx, queryID); err != nil {
			s.logger.Error("cascade: failed to delete query",
				zap.String("builder", id.String()),
				zap.String("query", queryID),
				zap.Error(err),
			)
		}
	}

	for _, collectionID := range builder.Collections {
		s.removeCollectionCascade(ctx, builder.ID, collectionID)
	}

	if err := s.builders.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("removed builder",
		zap.String("builder", id.String()),
		zap.Int("collections", len(builder.Collections)),
		zap.Int("queries", len(builder.Queries)),
	)
	return nil
}

func (s *BuilderService) removeCollectionCascade(ctx context.Context, builder domain.DID, collectionID string) {
	collection, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		s.logger.Error("cascade: failed to load collection",
			zap.String("collection", collectionID),
			zap.Error(err),
		)
		return
	}

	if collection.Type == domain.CollectionOwned {
		docs, err := s.data.Find(ctx, collectionID, nil)
		if err != nil {
			s.logger.Error("cascade: failed to walk owned documents",
				zap.String("collection", collectionID),
				zap.Error(err),
			)
		} else {
			releaseOwnedReferences(ctx, s.users, ownerRefs(docs, builder, collectionID), collectionID, s.logger)
		}
	}

	if err := s.data.DropCollection(ctx, collectionID); err != nil {
		s.logger.Error("cascade: failed to drop data store",
			zap.String("collection", collectionID),
			zap.Error(err),
		)
	}
	if err := s.collections.Delete(ctx, collectionID); err != nil {
		s.logger.Error("cascade: failed to delete collection record",
			zap.String("collection", collectionID),
			zap.Error(err),
		)
	}
}
