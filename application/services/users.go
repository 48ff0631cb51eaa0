package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/pkg/errors"
)

// UserService serves data owners: profile reads and per-document ACL
// management on owned collections.
type UserService struct {
	collections ports.CollectionRepository
	users       ports.UserRepository
	data        ports.DataRepository
	logger      *zap.Logger
}

// NewUserService wires the user surface.
func NewUserService(collections ports.CollectionRepository, users ports.UserRepository, data ports.DataRepository, logger *zap.Logger) *UserService {
	return &UserService{
		collections: collections,
		users:       users,
		data:        data,
		logger:      logger,
	}
}

// Profile reads a user's record: data references and operation logs.
func (s *UserService) Profile(ctx context.Context, id domain.DID) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// resolveOwnedDocument loads an owned document and enforces that the caller
// is its owner. Only owners mutate or read ACLs.
func (s *UserService) resolveOwnedDocument(ctx context.Context, caller domain.DID, collectionID, documentID string) (domain.Document, error) {
	collection, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if collection.Type != domain.CollectionOwned {
		return nil, errors.Validation("collection does not hold owned documents")
	}
	doc, err := s.data.FindByID(ctx, collectionID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Owner().Equal(caller) {
		return nil, errors.ResourceAccessDenied("document is owned by another user")
	}
	return doc, nil
}

// GrantAccess adds or overwrites the ACL entry for the grantee on one owned
// document. The swap is a single atomic update.
func (s *UserService) GrantAccess(ctx context.Context, caller domain.DID, collectionID, documentID string, entry domain.AclEntry) error {
	doc, err := s.resolveOwnedDocument(ctx, caller, collectionID, documentID)
	if err != nil {
		return err
	}

	grantee, err := domain.ParseDID(entry.Grantee.String())
	if err != nil {
		return err
	}
	entry.Grantee = grantee

	updated := domain.UpsertAclEntry(domain.AclOf(doc[domain.FieldAcl]), entry)
	if err := domain.ValidateAcl(updated); err != nil {
		return err
	}
	if err := s.data.ReplaceAcl(ctx, collectionID, documentID, updated); err != nil {
		return err
	}

	log := domain.LogEntry{
		Op:         domain.LogGrantAccess,
		Collection: collectionID,
		Acl:        &entry,
		At:         time.Now().UTC(),
	}
	if err := s.users.AppendLogs(ctx, caller, []domain.LogEntry{log}); err != nil {
		s.logger.Error("failed to append grant log",
			zap.String("user", caller.String()),
			zap.Error(err),
		)
	}
	return nil
}

// RevokeAccess removes the grantee's ACL entry from one owned document.
func (s *UserService) RevokeAccess(ctx context.Context, caller domain.DID, collectionID, documentID string, grantee domain.DID) error {
	doc, err := s.resolveOwnedDocument(ctx, caller, collectionID, documentID)
	if err != nil {
		return err
	}

	updated, removed := domain.RemoveAclEntry(domain.AclOf(doc[domain.FieldAcl]), grantee)
	if !removed {
		return errors.Newf(errors.KindDocumentNotFound, "no acl entry for grantee %s", grantee)
	}
	if err := s.data.ReplaceAcl(ctx, collectionID, documentID, updated); err != nil {
		return err
	}

	log := domain.LogEntry{
		Op:         domain.LogRevokeAccess,
		Collection: collectionID,
		Acl:        &domain.AclEntry{Grantee: grantee},
		At:         time.Now().UTC(),
	}
	if err := s.users.AppendLogs(ctx, caller, []domain.LogEntry{log}); err != nil {
		s.logger.Error("failed to append revoke log",
			zap.String("user", caller.String()),
			zap.Error(err),
		)
	}
	return nil
}

// ReadAccess returns the ACL of one owned document.
func (s *UserService) ReadAccess(ctx context.Context, caller domain.DID, collectionID, documentID string) ([]domain.AclEntry, error) {
	doc, err := s.resolveOwnedDocument(ctx, caller, collectionID, documentID)
	if err != nil {
		return nil, err
	}
	return domain.AclOf(doc[domain.FieldAcl]), nil
}
