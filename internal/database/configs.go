package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

var configColumns = []string{
	"id", "owner_id", "source_doc_id", "source_section", "target_doc_id",
	"column_mapping", "mode", "automatic", "frequency", "last_sync_at",
	"notification_channels", "created_at", "updated_at",
}

type configRow struct {
	ID            string     `db:"id"`
	OwnerID       string     `db:"owner_id"`
	SourceDocID   string     `db:"source_doc_id"`
	SourceSection string     `db:"source_section"`
	TargetDocID   string     `db:"target_doc_id"`
	Mapping       []byte     `db:"column_mapping"`
	Mode          string     `db:"mode"`
	Automatic     bool       `db:"automatic"`
	Frequency     string     `db:"frequency"`
	LastSyncAt    *time.Time `db:"last_sync_at"`
	Channels      []byte     `db:"notification_channels"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func (r *configRow) toConfig() (*core.SyncConfig, error) {
	cfg := &core.SyncConfig{
		ID:                   r.ID,
		OwnerID:              r.OwnerID,
		SourceDocID:          r.SourceDocID,
		SourceSection:        r.SourceSection,
		TargetDocID:          r.TargetDocID,
		Mode:                 core.OutputMode(r.Mode),
		Automatic:            r.Automatic,
		Frequency:            core.Frequency(r.Frequency),
		LastSyncAt:           r.LastSyncAt,
		NotificationChannels: []string{},
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if err := decodeJSON(r.Mapping, &cfg.Mapping); err != nil {
		return nil, fmt.Errorf("decoding column_mapping of sync config %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.Channels, &cfg.NotificationChannels); err != nil {
		return nil, fmt.Errorf("decoding notification_channels of sync config %s: %w", r.ID, err)
	}
	return cfg, nil
}

func (s *Store) CreateConfig(ctx context.Context, cfg *core.SyncConfig) error {
	mapping, err := encodeJSON(cfg.Mapping, "{}")
	if err != nil {
		return fmt.Errorf("encoding column mapping: %w", err)
	}
	channels, err := encodeJSON(cfg.NotificationChannels, "[]")
	if err != nil {
		return fmt.Errorf("encoding notification channels: %w", err)
	}

	query, args, err := psql.Insert("sync_configs").
		Columns(configColumns...).
		Values(
			cfg.ID, cfg.OwnerID, cfg.SourceDocID, cfg.SourceSection, cfg.TargetDocID,
			mapping, string(cfg.Mode), cfg.Automatic, string(cfg.Frequency), cfg.LastSyncAt,
			channels, cfg.CreatedAt, cfg.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &core.Error{Kind: core.KindConflict, Op: "config.create", Message: "sync config " + cfg.ID + " already exists", Err: err}
		}
		return fmt.Errorf("inserting sync config: %w", err)
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, id string) (*core.SyncConfig, error) {
	query, args, err := psql.Select(configColumns...).
		From("sync_configs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row configRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync config: %w", err)
	}
	return row.toConfig()
}

// UpdateConfig replaces the mutable fields of a configuration. Owner,
// creation time and last sync stamp are kept.
func (s *Store) UpdateConfig(ctx context.Context, cfg *core.SyncConfig) error {
	mapping, err := encodeJSON(cfg.Mapping, "{}")
	if err != nil {
		return fmt.Errorf("encoding column mapping: %w", err)
	}
	channels, err := encodeJSON(cfg.NotificationChannels, "[]")
	if err != nil {
		return fmt.Errorf("encoding notification channels: %w", err)
	}

	query, args, err := psql.Update("sync_configs").
		Set("source_doc_id", cfg.SourceDocID).
		Set("source_section", cfg.SourceSection).
		Set("target_doc_id", cfg.TargetDocID).
		Set("column_mapping", mapping).
		Set("mode", string(cfg.Mode)).
		Set("automatic", cfg.Automatic).
		Set("frequency", string(cfg.Frequency)).
		Set("notification_channels", channels).
		Set("updated_at", cfg.UpdatedAt).
		Where(squirrel.Eq{"id": cfg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating sync config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) listConfigs(ctx context.Context, where squirrel.Sqlizer) ([]*core.SyncConfig, error) {
	query, args, err := psql.Select(configColumns...).
		From("sync_configs").
		Where(where).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []*configRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning sync configs: %w", err)
	}
	out := make([]*core.SyncConfig, 0, len(rows))
	for _, r := range rows {
		cfg, err := r.toConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *Store) ListConfigsByOwner(ctx context.Context, ownerID string) ([]*core.SyncConfig, error) {
	return s.listConfigs(ctx, squirrel.Eq{"owner_id": ownerID})
}

func (s *Store) ListConfigsBySource(ctx context.Context, sourceDocID string) ([]*core.SyncConfig, error) {
	return s.listConfigs(ctx, squirrel.Eq{"source_doc_id": sourceDocID})
}

func (s *Store) ListAutomaticConfigs(ctx context.Context) ([]*core.SyncConfig, error) {
	return s.listConfigs(ctx, squirrel.Eq{"automatic": true})
}

func (s *Store) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.Update("sync_configs").
		Set("last_sync_at", at).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("touching sync config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

var _ core.SyncConfigStore = (*Store)(nil)
