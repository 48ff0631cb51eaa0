package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
)

// ownerRefs groups data references of owned documents by their owner DID.
func ownerRefs(docs []domain.Document, builder domain.DID, collectionID string) map[domain.DID][]domain.DataReference {
	groups := make(map[domain.DID][]domain.DataReference)
	for _, doc := range docs {
		owner := doc.Owner()
		if owner == "" {
			continue
		}
		key := domain.NormalizeDID(owner.String())
		groups[key] = append(groups[key], domain.DataReference{
			Builder:    builder,
			Collection: collectionID,
			Document:   doc.ID(),
		})
	}
	return groups
}

// releaseOwnedReferences removes the given references from each owner's
// record with delete-data log entries, then removes owners left with no
// data. Failures are logged and do not stop the walk; the deletion that
// triggered the bookkeeping has already happened.
func releaseOwnedReferences(ctx context.Context, users ports.UserRepository, groups map[domain.DID][]domain.DataReference, collectionID string, logger *zap.Logger) {
	now := time.Now().UTC()
	for owner, refs := range groups {
		logs := make([]domain.LogEntry, len(refs))
		for i := range refs {
			logs[i] = domain.LogEntry{Op: domain.LogDeleteData, Collection: collectionID, At: now}
		}
		if err := users.RemoveData(ctx, owner, refs, logs); err != nil {
			logger.Error("failed to release user data references",
				zap.String("user", owner.String()),
				zap.String("collection", collectionID),
				zap.Error(err),
			)
			continue
		}
		removed, err := users.DeleteIfEmpty(ctx, owner)
		if err != nil {
			logger.Error("failed to prune empty user record",
				zap.String("user", owner.String()),
				zap.Error(err),
			)
			continue
		}
		if removed {
			logger.Info("removed user record with no remaining data",
				zap.String("user", owner.String()),
			)
		}
	}
}
