package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SyncConfigInput is the writable part of a sync configuration.
type SyncConfigInput struct {
	SourceDocID          string
	SourceSection        string
	TargetDocID          string
	Mapping              ColumnMapping
	Mode                 string
	Automatic            bool
	Frequency            string
	NotificationChannels []string
}

func (s *Service) normalizeConfig(in SyncConfigInput) (*SyncConfig, error) {
	if strings.TrimSpace(in.SourceDocID) == "" {
		return nil, validationf("source_doc_id is required")
	}
	freq, err := ParseFrequency(in.Frequency)
	if err != nil {
		return nil, err
	}
	mode, err := ParseOutputMode(in.Mode, s.defaultMode)
	if err != nil {
		return nil, err
	}
	channels := make([]string, 0, len(in.NotificationChannels))
	for _, c := range in.NotificationChannels {
		if _, err := ParseChannel(c); err != nil {
			return nil, err
		}
		channels = append(channels, strings.TrimSpace(c))
	}
	return &SyncConfig{
		SourceDocID:          strings.TrimSpace(in.SourceDocID),
		SourceSection:        in.SourceSection,
		TargetDocID:          strings.TrimSpace(in.TargetDocID),
		Mapping:              in.Mapping,
		Mode:                 mode,
		Automatic:            in.Automatic,
		Frequency:            freq,
		NotificationChannels: channels,
	}, nil
}

// CreateSyncConfig stores a new configuration owned by ownerID.
func (s *Service) CreateSyncConfig(ctx context.Context, ownerID string, in SyncConfigInput) (*SyncConfig, error) {
	cfg, err := s.normalizeConfig(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	cfg.ID = uuid.NewString()
	cfg.OwnerID = ownerID
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.configs.CreateConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create sync config: %w", err)
	}
	return cfg, nil
}

// SyncConfig returns a configuration owned by ownerID.
func (s *Service) SyncConfig(ctx context.Context, ownerID, id string) (*SyncConfig, error) {
	cfg, err := s.configs.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return cfg, nil
}

// SyncConfigs lists the configurations owned by ownerID.
func (s *Service) SyncConfigs(ctx context.Context, ownerID string) ([]*SyncConfig, error) {
	return s.configs.ListConfigsByOwner(ctx, ownerID)
}

// UpdateSyncConfig replaces the writable fields of a configuration owned by
// ownerID. LastSyncAt is kept.
func (s *Service) UpdateSyncConfig(ctx context.Context, ownerID, id string, in SyncConfigInput) (*SyncConfig, error) {
	existing, err := s.SyncConfig(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.normalizeConfig(in)
	if err != nil {
		return nil, err
	}
	cfg.ID = existing.ID
	cfg.OwnerID = existing.OwnerID
	cfg.LastSyncAt = existing.LastSyncAt
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = s.now().UTC()

	if err := s.configs.UpdateConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("update sync config: %w", err)
	}
	return cfg, nil
}
