package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
)

// syncConfigRequest is the writable part of a sync configuration.
type syncConfigRequest struct {
	SourceDocID          string             `json:"source_doc_id" validate:"required"`
	SourceSection        string             `json:"source_section"`
	TargetDocID          string             `json:"target_doc_id"`
	ColumnMapping        core.ColumnMapping `json:"column_mapping"`
	Mode                 string             `json:"mode" validate:"omitempty,oneof=per_row single_deck"`
	Automatic            bool               `json:"automatic"`
	Frequency            string             `json:"frequency" validate:"omitempty,oneof=hour day week"`
	NotificationChannels []string           `json:"notification_channels" validate:"max=20,dive,required"`
}

func (c syncConfigRequest) toCore() core.SyncConfigInput {
	return core.SyncConfigInput{
		SourceDocID:          c.SourceDocID,
		SourceSection:        c.SourceSection,
		TargetDocID:          c.TargetDocID,
		Mapping:              c.ColumnMapping,
		Mode:                 c.Mode,
		Automatic:            c.Automatic,
		Frequency:            c.Frequency,
		NotificationChannels: c.NotificationChannels,
	}
}

// webhookRequest is the body of a source-changed notification.
type webhookRequest struct {
	SourceDocID       string `json:"source_doc_id" validate:"required"`
	SourceSectionName string `json:"source_section_name"`
	Secret            string `json:"secret"`
}

// handleListSyncConfigs lists the caller's configurations.
func (s *Server) handleListSyncConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.SyncConfigs(r.Context(), owner(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if configs == nil {
		configs = []*core.SyncConfig{}
	}
	writeJSON(w, map[string]any{
		"sync_configs": configs,
		"count":        len(configs),
	})
}

// handleCreateSyncConfig stores a new configuration.
func (s *Server) handleCreateSyncConfig(w http.ResponseWriter, r *http.Request) {
	var req syncConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	cfg, err := s.service.CreateSyncConfig(ctx, owner(r), req.toCore())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sync-configs/"+cfg.ID)
	writeJSONStatus(w, http.StatusCreated, cfg)
}

// handleGetSyncConfig returns one configuration.
func (s *Server) handleGetSyncConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.SyncConfig(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, cfg)
}

// handleUpdateSyncConfig replaces a configuration's writable fields.
func (s *Server) handleUpdateSyncConfig(w http.ResponseWriter, r *http.Request) {
	var req syncConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	cfg, err := s.service.UpdateSyncConfig(ctx, owner(r), chi.URLParam(r, "id"), req.toCore())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, cfg)
}

// handleSourceChanged enqueues jobs for the automatic configurations of a
// changed spreadsheet. The shared secret comes from the X-Webhook-Secret
// header or the body; the webhook is disabled when no secret is configured.
// The body is validated only after the secret matched.
func (s *Server) handleSourceChanged(w http.ResponseWriter, r *http.Request) {
	want := s.cfg.Webhook.Secret
	if want == "" {
		s.respondError(w, r, core.ErrNotFound)
		return
	}

	body, readErr := readBody(w, r)
	got := r.Header.Get("X-Webhook-Secret")
	if got == "" && readErr == nil {
		got = bodySecret(body)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		logging.FromContext(r.Context()).Warn("webhook: invalid secret",
			"remote_addr", r.RemoteAddr,
		)
		s.respondError(w, r, core.ErrUnauthorized)
		return
	}
	if readErr != nil {
		s.respondError(w, r, readErr)
		return
	}

	var req webhookRequest
	if err := decodeStrict(body, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	summary, err := s.service.OnSourceChanged(ctx, req.SourceDocID, req.SourceSectionName)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// bodySecret extracts the secret field of a webhook body without
// validating anything else. Malformed bodies yield "".
func bodySecret(body []byte) string {
	var envelope struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Secret
}
