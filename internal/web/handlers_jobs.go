package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
)

// generationRequest is the body of a batch generation.
type generationRequest struct {
	SourceDocID   string             `json:"source_doc_id" validate:"required"`
	SourceSection string             `json:"source_section"`
	TargetDocID   string             `json:"target_doc_id" validate:"required"`
	Title         string             `json:"title" validate:"max=200"`
	Mode          string             `json:"mode" validate:"omitempty,oneof=per_row single_deck"`
	ColumnMapping core.ColumnMapping `json:"column_mapping"`
}

// handleCreateGeneration records a job and runs its first invocation
// inline. A job the invocation could not finish is returned with 202 and
// is resumed by POST /jobs/{id}/run or the scheduler.
func (s *Server) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	job, err := s.service.CreateGeneration(ctx, core.GenerationRequest{
		OwnerID:       owner(r),
		SourceDocID:   req.SourceDocID,
		SourceSection: req.SourceSection,
		TargetDocID:   req.TargetDocID,
		Title:         req.Title,
		Mode:          core.OutputMode(req.Mode),
		Mapping:       req.ColumnMapping,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID)

	ran, err := s.service.RunJob(ctx, job.OwnerID, job.ID)
	switch {
	case err == nil:
		job = ran
	case errors.Is(err, core.ErrTooManyInvocations), errors.Is(err, core.ErrJobClaimed):
		// Left pending for the next invocation.
		logging.WithFields(ctx, "job_id", job.ID).Info("first invocation deferred", "error", err)
	default:
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, jobStatusCode(job), job)
}

// handleGetJob returns the progress of a job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Job(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, job)
}

// handleRunJob performs one invocation of a job.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	job, err := s.service.RunJob(ctx, owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, jobStatusCode(job), job)
}

// handleCancelJob marks a job failed.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	job, err := s.service.CancelJob(ctx, owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, job)
}

// handleJobOutputs lists the per-row documents of a job.
func (s *Server) handleJobOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := s.service.JobOutputs(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if outputs == nil {
		outputs = []core.GenerationOutput{}
	}
	writeJSON(w, map[string]any{
		"outputs": outputs,
		"count":   len(outputs),
	})
}

// jobStatusCode is 200 for finished jobs and 202 while work remains.
func jobStatusCode(job *core.GenerationJob) int {
	if job.Status.Terminal() {
		return http.StatusOK
	}
	return http.StatusAccepted
}
