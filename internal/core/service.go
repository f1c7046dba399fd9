package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
)

// Deps holds the collaborators of a Service. Cache and Limiter must be the
// process-wide instances so every request shares them. Every upstream call,
// spreadsheet or presentation, waits on Limiter.
type Deps struct {
	Sources  SourceStore
	Decks    DeckStore
	Jobs     JobStore
	Configs  SyncConfigStore
	Cache    SyncCache
	Limiter  *RateLimiter
	Notifier Notifier // optional

	// Invocations caps concurrent job invocations. A default limiter is
	// created when nil.
	Invocations *InvocationLimiter
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	ReadRetries      int
	InvocationBudget time.Duration
	ClaimLease       time.Duration
	DefaultMode      OutputMode
}

// Service provides the sync engine operations used by the web layer and
// the scheduler.
type Service struct {
	sources SourceStore
	decks   DeckStore
	jobs    JobStore
	configs SyncConfigStore
	loader  *Loader
	limiter *RateLimiter
	preview *PreviewBuilder
	runner  *Runner
	slots   *InvocationLimiter

	defaultMode OutputMode
	now         func() time.Time
}

// NewService creates a new Service instance.
func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Sources == nil:
		return nil, errors.New("new service: source store is required")
	case deps.Decks == nil:
		return nil, errors.New("new service: deck store is required")
	case deps.Jobs == nil:
		return nil, errors.New("new service: job store is required")
	case deps.Configs == nil:
		return nil, errors.New("new service: sync config store is required")
	case deps.Cache == nil:
		return nil, errors.New("new service: cache is required")
	case deps.Limiter == nil:
		return nil, errors.New("new service: rate limiter is required")
	}

	mode := opts.DefaultMode
	if mode == "" {
		mode = ModePerRow
	}

	slots := deps.Invocations
	if slots == nil {
		slots = NewInvocationLimiter(DefaultMaxInvocations, DefaultInvocationWait)
	}

	loader := NewLoader(deps.Sources, deps.Cache, deps.Limiter, opts.ReadRetries)
	decks := gateDecks(deps.Decks, deps.Limiter)
	return &Service{
		sources:     deps.Sources,
		decks:       decks,
		jobs:        deps.Jobs,
		configs:     deps.Configs,
		loader:      loader,
		limiter:     deps.Limiter,
		preview:     NewPreviewBuilder(decks),
		slots:       slots,
		runner:      NewRunner(deps.Jobs, deps.Configs, loader, decks, deps.Notifier, opts.InvocationBudget, opts.ClaimLease),
		defaultMode: mode,
		now:         time.Now,
	}, nil
}

// LimiterStatus returns the upstream rate limiter state.
func (s *Service) LimiterStatus() RateLimiterStatus {
	return s.limiter.Status()
}

// InvocationStatus returns the job invocation slots in use.
func (s *Service) InvocationStatus() InvocationLimiterStatus {
	return s.slots.Status()
}

// WaitForInvocations blocks until running job invocations return or ctx ends.
func (s *Service) WaitForInvocations(ctx context.Context) error {
	return s.slots.WaitForDrain(ctx)
}

// PlaceholderReport lists the placeholders of a presentation.
type PlaceholderReport struct {
	DocID           string        `json:"doc_id"`
	Placeholders    []Placeholder `json:"placeholders"`
	HasPlaceholders bool          `json:"has_placeholders"`
}

// Placeholders extracts the placeholders of a presentation.
func (s *Service) Placeholders(ctx context.Context, deckID string) (*PlaceholderReport, error) {
	elements, err := s.decks.TextElements(ctx, deckID)
	if err != nil {
		return nil, err
	}
	ph := ExtractPlaceholders(elements)
	return &PlaceholderReport{DocID: deckID, Placeholders: ph, HasPlaceholders: HasPlaceholders(ph)}, nil
}

// SourceData reads a spreadsheet section through the cache and limiter.
func (s *Service) SourceData(ctx context.Context, docID, section string) (SheetData, error) {
	return s.loader.Load(ctx, docID, section)
}

// PreviewRequest selects the row and mapping for a preview.
type PreviewRequest struct {
	TargetDocID   string
	SourceDocID   string
	SourceSection string
	Row           int // 1-based; zero selects the first data row
	Mapping       ColumnMapping
	Title         string
}

// Preview builds a substituted copy of the target for one source row.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	record, mapping, err := s.rowContext(ctx, req)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Preview - row %d", rowOrFirst(req.Row))
	}
	return s.preview.Build(ctx, req.TargetDocID, title, record, mapping)
}

// DiffResult lists the text changes a row would produce.
type DiffResult struct {
	TargetDocID string          `json:"target_doc_id"`
	Row         int             `json:"row"`
	Mapping     ColumnMapping   `json:"column_mapping"`
	Changes     []PreviewChange `json:"changes"`
}

// Diff computes per-element changes for one row without writing anything.
func (s *Service) Diff(ctx context.Context, req PreviewRequest) (*DiffResult, error) {
	elements, err := s.decks.TextElements(ctx, req.TargetDocID)
	if err != nil {
		return nil, err
	}
	data, err := s.loader.Load(ctx, req.SourceDocID, req.SourceSection)
	if err != nil {
		return nil, err
	}
	row, ok := data.Row(rowOrFirst(req.Row))
	if !ok {
		return nil, validationf("row %d does not exist (source has %d data rows)", req.Row, len(data.Rows))
	}

	mapping := ResolveMapping(ExtractPlaceholders(elements), data.Headers, req.Mapping, data.Display)
	table := SubstitutionTable(ScanTokens(elements), mapping, RowRecord(data, row))
	changes := Diff(req.TargetDocID, elements, table)
	if changes == nil {
		changes = []PreviewChange{}
	}
	return &DiffResult{TargetDocID: req.TargetDocID, Row: row.Index, Mapping: mapping, Changes: changes}, nil
}

// rowContext loads the source row and resolves the mapping for a preview.
func (s *Service) rowContext(ctx context.Context, req PreviewRequest) (map[string]any, ColumnMapping, error) {
	data, err := s.loader.Load(ctx, req.SourceDocID, req.SourceSection)
	if err != nil {
		return nil, nil, err
	}
	row, ok := data.Row(rowOrFirst(req.Row))
	if !ok {
		return nil, nil, validationf("row %d does not exist (source has %d data rows)", req.Row, len(data.Rows))
	}

	mapping := req.Mapping
	if len(mapping) == 0 {
		elements, err := s.decks.TextElements(ctx, req.TargetDocID)
		if err != nil {
			return nil, nil, err
		}
		mapping = ResolveMapping(ExtractPlaceholders(elements), data.Headers, nil, data.Display)
	}
	return RowRecord(data, row), mapping, nil
}

func rowOrFirst(row int) int {
	if row <= 0 {
		return 1
	}
	return row
}

// CellEdit is one requested spreadsheet change. Row is the 0-based data row.
type CellEdit struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

// EditRequest applies cell edits to a source section.
type EditRequest struct {
	SourceDocID   string
	SourceSection string
	Edits         []CellEdit
	// PropagateTo, when set, also replaces the old values with the new ones
	// in this presentation.
	PropagateTo string
}

// EditResult reports what was written.
type EditResult struct {
	Updates  []Update `json:"updates"`
	Written  int      `json:"cells_written"`
	Replaced int      `json:"text_replacements"`
}

// ApplyEdits validates edits against the current section data, writes them
// to the spreadsheet and invalidates the cached snapshot. Validation runs on
// every edit before anything is written.
func (s *Service) ApplyEdits(ctx context.Context, req EditRequest) (*EditResult, error) {
	data, err := s.loader.Load(ctx, req.SourceDocID, req.SourceSection)
	if err != nil {
		return nil, err
	}

	sectionID := trimmedOr(req.SourceSection, "default")
	section, rows := SectionFromSheet(sectionID, data)
	tracker := NewChangeTracker()
	tracker.SetData(section, rows)
	for _, e := range req.Edits {
		if err := tracker.SetValue(sectionID, e.Field, e.Row, e.Value); err != nil {
			return nil, err
		}
	}

	writes := tracker.CellWrites()
	for i := range writes {
		writes[i].Section = req.SourceSection
	}
	if len(writes) > 0 {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := s.sources.WriteCells(ctx, req.SourceDocID, req.SourceSection, writes); err != nil {
			return nil, err
		}
		s.loader.Invalidate(ctx, req.SourceDocID)
	}

	result := &EditResult{Updates: tracker.GetUpdates(), Written: len(writes)}
	if req.PropagateTo != "" {
		replacements := tracker.TextReplacements()
		if len(replacements) > 0 {
			if err := s.decks.Substitute(ctx, req.PropagateTo, replacements, nil); err != nil {
				return result, err
			}
		}
		result.Replaced = len(replacements)
	}
	tracker.ClearUpdates()
	return result, nil
}

// GenerationRequest describes a batch generation.
type GenerationRequest struct {
	OwnerID       string
	SourceDocID   string
	SourceSection string
	TargetDocID   string
	Title         string
	Mode          OutputMode
	Mapping       ColumnMapping
	SyncConfigID  string
}

// CreateGeneration records a pending job.
func (s *Service) CreateGeneration(ctx context.Context, req GenerationRequest) (*GenerationJob, error) {
	mode := req.Mode
	if mode == "" {
		mode = s.defaultMode
	}
	now := s.now().UTC()
	job := &GenerationJob{
		ID:            uuid.NewString(),
		OwnerID:       req.OwnerID,
		SyncConfigID:  req.SyncConfigID,
		SourceDocID:   req.SourceDocID,
		SourceSection: req.SourceSection,
		TargetDocID:   req.TargetDocID,
		Title:         req.Title,
		Mode:          mode,
		Mapping:       req.Mapping,
		Status:        JobPending,
		Errors:        []RowError{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	logging.WithFields(ctx, "job_id", job.ID).Info("generation job created",
		"source_doc_id", job.SourceDocID,
		"target_doc_id", job.TargetDocID,
		"mode", job.Mode,
	)
	return job, nil
}

// Job returns a job owned by ownerID.
func (s *Service) Job(ctx context.Context, ownerID, jobID string) (*GenerationJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return job, nil
}

// RunJob performs one runner invocation on a job owned by ownerID.
func (s *Service) RunJob(ctx context.Context, ownerID, jobID string) (*GenerationJob, error) {
	if _, err := s.Job(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	if err := s.slots.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.slots.Release()
	return s.runner.Run(ctx, jobID)
}

// CancelJob marks a job failed. The runner stops before its next row;
// rows already written stay written.
func (s *Service) CancelJob(ctx context.Context, ownerID, jobID string) (*GenerationJob, error) {
	job, err := s.Job(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	if err := s.jobs.FailJob(ctx, jobID, "cancelled by owner"); err != nil {
		return nil, err
	}
	return s.jobs.GetJob(ctx, jobID)
}

// JobOutputs lists the per-row documents of a job owned by ownerID.
func (s *Service) JobOutputs(ctx context.Context, ownerID, jobID string) ([]GenerationOutput, error) {
	if _, err := s.Job(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	return s.jobs.ListOutputs(ctx, jobID)
}

// DrainRunnable runs one invocation for each runnable job, up to limit.
// It never waits for an invocation slot: when every slot is taken by
// request-driven runs the remaining jobs are left for the next drain.
// It returns how many jobs were invoked.
func (s *Service) DrainRunnable(ctx context.Context, limit int) (int, error) {
	jobs, err := s.jobs.ListRunnable(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list runnable jobs: %w", err)
	}
	n := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if !s.slots.TryAcquire() {
			logging.WithFields(ctx, "job_id", job.ID).Info("no free invocation slot, leaving job for next drain",
				"active", s.slots.ActiveCount(),
			)
			break
		}
		_, err := s.runner.Run(ctx, job.ID)
		s.slots.Release()
		if err != nil {
			if errors.Is(err, ErrJobClaimed) || errors.Is(err, ErrJobNotRunnable) {
				continue
			}
			logging.WithFields(ctx, "job_id", job.ID).Warn("job invocation failed", "error", err)
		}
		n++
	}
	return n, nil
}
