package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
)

// SystemService serves the node's operational surface: maintenance window
// control and the about snapshot.
type SystemService struct {
	config    ports.ConfigRepository
	publicKey string
	endpoint  string
	build     domain.BuildInfo
	started   time.Time
	logger    *zap.Logger
}

// NewSystemService captures the process boot time at construction.
func NewSystemService(config ports.ConfigRepository, publicKey, endpoint string, build domain.BuildInfo, logger *zap.Logger) *SystemService {
	return &SystemService{
		config:    config,
		publicKey: publicKey,
		endpoint:  endpoint,
		build:     build,
		started:   time.Now().UTC(),
		logger:    logger,
	}
}

// StartMaintenance opens the maintenance window.
func (s *SystemService) StartMaintenance(ctx context.Context) error {
	if err := s.config.StartMaintenance(ctx); err != nil {
		return err
	}
	s.logger.Warn("maintenance window opened")
	return nil
}

// StopMaintenance closes the maintenance window. Closing an inactive window
// is a no-op.
func (s *SystemService) StopMaintenance(ctx context.Context) error {
	if err := s.config.StopMaintenance(ctx); err != nil {
		return err
	}
	s.logger.Warn("maintenance window closed")
	return nil
}

// Maintenance reads the current window state.
func (s *SystemService) Maintenance(ctx context.Context) (domain.MaintenanceConfig, error) {
	return s.config.Maintenance(ctx)
}

// About returns the node-info snapshot.
func (s *SystemService) About(ctx context.Context) (*domain.NodeInfo, error) {
	maintenance, err := s.config.Maintenance(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.NodeInfo{
		Started:     s.started,
		Build:       s.build,
		PublicKey:   s.publicKey,
		URL:         s.endpoint,
		Maintenance: maintenance,
	}, nil
}
