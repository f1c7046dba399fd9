package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// previewRequest selects the row and mapping for a preview or diff.
type previewRequest struct {
	TargetDocID   string             `json:"target_doc_id" validate:"required"`
	SourceDocID   string             `json:"source_doc_id" validate:"required"`
	SourceSection string             `json:"source_section"`
	Row           int                `json:"row" validate:"gte=0"` // 1-based; zero selects the first data row
	ColumnMapping core.ColumnMapping `json:"column_mapping"`
	Title         string             `json:"title" validate:"max=200"`
}

func (p previewRequest) toCore() core.PreviewRequest {
	return core.PreviewRequest{
		TargetDocID:   p.TargetDocID,
		SourceDocID:   p.SourceDocID,
		SourceSection: p.SourceSection,
		Row:           p.Row,
		Mapping:       p.ColumnMapping,
		Title:         p.Title,
	}
}

// editRequest is the body of a spreadsheet edit.
type editRequest struct {
	SourceSection string     `json:"source_section"`
	Edits         []cellEdit `json:"edits" validate:"required,min=1,max=500,dive"`
	PropagateTo   string     `json:"propagate_to"`
}

// cellEdit addresses one cell by 0-based row index and column header.
type cellEdit struct {
	Row   int    `json:"row"`
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

// handlePlaceholders lists the distinct placeholders of a presentation.
func (s *Server) handlePlaceholders(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	report, err := s.service.Placeholders(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// handleSourceData returns a spreadsheet section through the cache.
func (s *Server) handleSourceData(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	data, err := s.service.SourceData(ctx, chi.URLParam(r, "id"), r.URL.Query().Get("section"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, data)
}

// handleApplyEdits validates and writes cell edits, optionally replaying
// them as text replacements on a presentation.
func (s *Server) handleApplyEdits(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	edits := make([]core.CellEdit, len(req.Edits))
	for i, e := range req.Edits {
		edits[i] = core.CellEdit{Row: e.Row, Field: e.Field, Value: e.Value}
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.ApplyEdits(ctx, core.EditRequest{
		SourceDocID:   chi.URLParam(r, "id"),
		SourceSection: req.SourceSection,
		Edits:         edits,
		PropagateTo:   req.PropagateTo,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handlePreview builds a substituted copy of the target for one row.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Preview(ctx, req.toCore())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// handleDiff lists the text changes a row would make, without writing.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Diff(ctx, req.toCore())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}
