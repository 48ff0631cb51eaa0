package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"nildb/domain"
	"nildb/infrastructure/mongodb"
	"nildb/pkg/errors"
)

// ConfigRepository stores the maintenance singleton inside the config
// collection. Absence of the document means the window is inactive.
type ConfigRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewConfigRepository creates the config store.
func NewConfigRepository(client *mongodb.Client, logger *zap.Logger) *ConfigRepository {
	return &ConfigRepository{
		coll:   client.Primary(mongodb.CollConfig),
		logger: logger,
	}
}

// StartMaintenance upserts the singleton with active=true and a fresh
// start time.
func (r *ConfigRepository) StartMaintenance(ctx context.Context) error {
	update := bson.M{"$set": bson.M{
		"active":    true,
		"startedAt": time.Now().UTC(),
	}}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_type": domain.MaintenanceTag},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Database("start maintenance", err)
	}
	return nil
}

// StopMaintenance deletes the singleton; stopping an inactive window is a
// no-op.
func (r *ConfigRepository) StopMaintenance(ctx context.Context) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_type": domain.MaintenanceTag}); err != nil {
		return errors.Database("stop maintenance", err)
	}
	return nil
}

// Maintenance reads the singleton, mapping absence to the inactive zero
// value.
func (r *ConfigRepository) Maintenance(ctx context.Context) (domain.MaintenanceConfig, error) {
	var cfg domain.MaintenanceConfig
	err := r.coll.FindOne(ctx, bson.M{"_type": domain.MaintenanceTag}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return domain.MaintenanceConfig{Type: domain.MaintenanceTag}, nil
	}
	if err != nil {
		return domain.MaintenanceConfig{}, errors.Database("read maintenance", err)
	}
	return cfg, nil
}
