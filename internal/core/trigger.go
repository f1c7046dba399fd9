package core

// trigger.go turns "source changed" notifications into generation jobs.
//
// Every automatic sync configuration that reads the changed source gets its
// own pending job; configurations are never coalesced. A configuration
// without an output target is skipped and reported in the results, but the
// trigger as a whole still succeeds.

import (
	"context"
	"fmt"
	"strings"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/metrics"
)

// Trigger outcomes reported per configuration.
const (
	TriggerQueued  = "queued"
	TriggerSkipped = "skipped"
	TriggerError   = "error"
)

// TriggerResult is the outcome for one sync configuration.
type TriggerResult struct {
	ConfigID string `json:"config_id"`
	JobID    string `json:"job_id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// TriggerSummary is the response to a source-changed notification.
type TriggerSummary struct {
	SourceDocID string          `json:"source_doc_id"`
	Triggered   int             `json:"triggered"`
	Results     []TriggerResult `json:"results"`
}

// OnSourceChanged enqueues one pending job per automatic configuration of
// sourceDocID and stamps each configuration's last sync time. When section
// is set, configurations bound to a different section are ignored. The
// cached snapshot of the source is dropped since it is now stale.
func (s *Service) OnSourceChanged(ctx context.Context, sourceDocID, section string) (*TriggerSummary, error) {
	if strings.TrimSpace(sourceDocID) == "" {
		return nil, validationf("source_doc_id is required")
	}

	s.loader.Invalidate(ctx, sourceDocID)

	configs, err := s.configs.ListConfigsBySource(ctx, sourceDocID)
	if err != nil {
		return nil, fmt.Errorf("list sync configs: %w", err)
	}

	summary := &TriggerSummary{SourceDocID: sourceDocID, Results: []TriggerResult{}}
	for _, cfg := range configs {
		if !cfg.Automatic {
			continue
		}
		if section != "" && cfg.SourceSection != "" && cfg.SourceSection != section {
			continue
		}
		res := s.enqueueSync(ctx, cfg, "webhook")
		if res.Status == TriggerQueued {
			summary.Triggered++
		}
		summary.Results = append(summary.Results, res)
	}

	logging.WithFields(ctx, "source_doc_id", sourceDocID).Info("source change processed",
		"configs", len(summary.Results),
		"triggered", summary.Triggered,
	)
	return summary, nil
}

// EnqueueDue enqueues a job for every automatic configuration whose
// frequency has elapsed since its last sync.
func (s *Service) EnqueueDue(ctx context.Context) ([]TriggerResult, error) {
	configs, err := s.configs.ListAutomaticConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list automatic sync configs: %w", err)
	}

	now := s.now()
	var results []TriggerResult
	for _, cfg := range configs {
		if !cfg.Due(now) {
			continue
		}
		results = append(results, s.enqueueSync(ctx, cfg, "schedule"))
	}
	return results, nil
}

// enqueueSync creates the job for one configuration. Failures are reported
// in the result rather than returned so one bad configuration does not
// block the others.
func (s *Service) enqueueSync(ctx context.Context, cfg *SyncConfig, source string) TriggerResult {
	res := TriggerResult{ConfigID: cfg.ID}
	log := logging.WithFields(ctx, "sync_config_id", cfg.ID, "trigger", source)

	if strings.TrimSpace(cfg.TargetDocID) == "" {
		res.Status = TriggerSkipped
		res.Error = "sync configuration has no output target"
		metrics.SyncTriggers.WithLabelValues(source, TriggerSkipped).Inc()
		log.Warn("sync skipped: no output target")
		return res
	}

	job, err := s.CreateGeneration(ctx, GenerationRequest{
		OwnerID:       cfg.OwnerID,
		SourceDocID:   cfg.SourceDocID,
		SourceSection: cfg.SourceSection,
		TargetDocID:   cfg.TargetDocID,
		Title:         "Sync " + s.now().UTC().Format("2006-01-02 15:04"),
		Mode:          cfg.Mode,
		Mapping:       cfg.Mapping,
		SyncConfigID:  cfg.ID,
	})
	if err != nil {
		res.Status = TriggerError
		res.Error = err.Error()
		metrics.SyncTriggers.WithLabelValues(source, TriggerError).Inc()
		log.Error("sync job creation failed", "error", err)
		return res
	}

	if err := s.configs.TouchLastSync(ctx, cfg.ID, job.CreatedAt); err != nil {
		log.Warn("failed to update last sync time", "error", err)
	}

	res.Status = TriggerQueued
	res.JobID = job.ID
	metrics.SyncTriggers.WithLabelValues(source, TriggerQueued).Inc()
	return res
}
