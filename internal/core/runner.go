package core

// runner.go drains generation jobs row by row.
//
// Each call to Run is one bounded invocation: it claims the job, processes
// rows in sheet order from processedRows until the rows run out, the time
// budget is spent, or the job was marked failed from outside, and then
// either finishes the job or releases the claim for the next invocation.
//
// Every row outcome is written with a compare-and-swap on processedRows, so
// two invocations can never count the same row twice. A row failure is
// recorded in the job's error list and processing moves on to the next row.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/metrics"
)

// DefaultInvocationBudget bounds the wall-clock time of one Run call.
const DefaultInvocationBudget = 50 * time.Second

// DefaultClaimLease is how long a claim stays valid without progress.
const DefaultClaimLease = 2 * time.Minute

// Runner processes generation jobs.
type Runner struct {
	jobs     JobStore
	configs  SyncConfigStore
	loader   *Loader
	decks    DeckStore
	notifier Notifier

	budget time.Duration
	lease  time.Duration
	now    func() time.Time
}

// NewRunner wires a runner. configs and notifier may be nil, in which case
// no notifications are sent.
func NewRunner(jobs JobStore, configs SyncConfigStore, loader *Loader, decks DeckStore, notifier Notifier, budget, lease time.Duration) *Runner {
	if budget <= 0 {
		budget = DefaultInvocationBudget
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &Runner{
		jobs:     jobs,
		configs:  configs,
		loader:   loader,
		decks:    decks,
		notifier: notifier,
		budget:   budget,
		lease:    lease,
		now:      time.Now,
	}
}

// Run performs one invocation on jobID and returns the job as it stands
// afterwards. Fatal job errors are recorded on the job (status failed) and
// do not produce an error return; errors are returned when the job could
// not be claimed or its state could not be persisted.
func (r *Runner) Run(ctx context.Context, jobID string) (*GenerationJob, error) {
	runnerID := uuid.NewString()
	start := r.now()
	log := logging.WithFields(ctx, "job_id", jobID, "runner_id", runnerID)

	job, err := r.jobs.ClaimJob(ctx, jobID, runnerID, r.lease)
	if err != nil {
		return nil, err
	}
	defer func() {
		metrics.JobInvocationDuration.WithLabelValues(string(job.Mode)).Observe(r.now().Sub(start).Seconds())
	}()

	keepClaim := false
	defer func() {
		if keepClaim || job.Status.Terminal() {
			return
		}
		if err := r.jobs.ReleaseJob(context.WithoutCancel(ctx), job.ID, runnerID); err != nil {
			log.Warn("failed to release job claim", "error", err)
		}
	}()

	log.Info("job invocation started",
		"status", job.Status,
		"processed_rows", job.ProcessedRows,
		"total_rows", job.TotalRows,
	)

	data, err := r.loader.Load(ctx, job.SourceDocID, job.SourceSection)
	if err != nil {
		return r.abort(ctx, job, "read source", err)
	}
	elements, err := r.decks.TextElements(ctx, job.TargetDocID)
	if err != nil {
		return r.abort(ctx, job, "read target", err)
	}
	tokens := ScanTokens(elements)
	mapping := ResolveMapping(ExtractPlaceholders(elements), data.Headers, job.Mapping, data.Display)

	if job.Status == JobPending {
		if err := r.start(ctx, job, runnerID, len(data.Rows)); err != nil {
			if errors.Is(err, ErrClaimLost) {
				keepClaim = true
				return job, err
			}
			var fatal *Error
			if errors.As(err, &fatal) && fatal.Kind == KindJobFatal {
				return r.fail(ctx, job, fatal)
			}
			return job, err
		}
	} else if job.TotalRows != len(data.Rows) {
		return r.fail(ctx, job, fmt.Errorf("%w: started with %d rows, source now has %d",
			ErrSourceChanged, job.TotalRows, len(data.Rows)))
	}

	existing := map[int]string{}
	if job.Mode != ModeSingleDeck {
		outputs, err := r.jobs.ListOutputs(ctx, job.ID)
		if err != nil {
			return job, err
		}
		for _, o := range outputs {
			existing[o.Row] = o.DocID
		}
	}

	deadline := start.Add(r.budget)
	for i := job.ProcessedRows; i < len(data.Rows); i++ {
		if ctx.Err() != nil || !r.now().Before(deadline) {
			log.Info("invocation budget spent, releasing job",
				"processed_rows", job.ProcessedRows,
				"total_rows", job.TotalRows,
			)
			return job, nil
		}

		// A job marked failed from outside stops before its next row.
		current, err := r.jobs.GetJob(ctx, job.ID)
		if err != nil {
			return job, err
		}
		if current.Status == JobFailed {
			log.Info("job was marked failed externally, stopping", "processed_rows", job.ProcessedRows)
			return current, nil
		}

		row := data.Rows[i]
		var rowErr *RowError
		if err := r.processRow(ctx, job, data, row, tokens, mapping, existing); err != nil {
			rowErr = &RowError{Row: row.Index, Message: rowMessage(err)}
			metrics.RowsProcessed.WithLabelValues("failed").Inc()
			log.Warn("row failed", "row", row.Index, "error", err)
		} else {
			metrics.RowsProcessed.WithLabelValues("ok").Inc()
		}

		if err := r.jobs.RecordRow(ctx, job.ID, runnerID, i, rowErr); err != nil {
			if errors.Is(err, ErrClaimLost) {
				keepClaim = true
				log.Warn("job claim lost, stopping", "row", row.Index)
			}
			return job, err
		}
		job.ProcessedRows++
		if rowErr != nil {
			job.ErrorRows++
			job.Errors = append(job.Errors, *rowErr)
		}
	}

	return r.finish(ctx, job, runnerID)
}

// start moves a pending job to running. Single-deck jobs first get their
// output presentation, a copy of the target whose slides serve as template.
func (r *Runner) start(ctx context.Context, job *GenerationJob, runnerID string, totalRows int) error {
	if job.Mode == ModeSingleDeck {
		resultID, err := r.decks.Duplicate(ctx, job.TargetDocID, trimmedOr(job.Title, "Sync"))
		if err != nil {
			return Fatal("create output", err)
		}
		pages, err := r.decks.PageIDs(ctx, resultID)
		if err != nil {
			return Fatal("read output pages", err)
		}
		job.ResultDocID = resultID
		job.TemplatePages = pages
	}

	if err := r.jobs.StartJob(ctx, job.ID, runnerID, totalRows, job.ResultDocID, job.TemplatePages); err != nil {
		return err
	}
	job.Status = JobRunning
	job.TotalRows = totalRows
	return nil
}

// processRow writes one row's output.
func (r *Runner) processRow(ctx context.Context, job *GenerationJob, data SheetData, row SourceRow, tokens []Placeholder, mapping ColumnMapping, existing map[int]string) error {
	table := SubstitutionTable(tokens, mapping, RowRecord(data, row))

	if job.Mode == ModeSingleDeck {
		// Deterministic page ids make a repeated row reuse its slides.
		pages, err := r.decks.CopyPages(ctx, job.ResultDocID, job.TemplatePages, pagePrefix(job.ID, row.Index))
		if err != nil {
			return err
		}
		if len(table) == 0 {
			return nil
		}
		return r.decks.Substitute(ctx, job.ResultDocID, table, pages)
	}

	docID, ok := existing[row.Index]
	if !ok {
		var err error
		docID, err = r.decks.Duplicate(ctx, job.TargetDocID, outputTitle(job.Title, row.Index))
		if err != nil {
			return err
		}
		if err := r.jobs.AddOutput(ctx, GenerationOutput{
			JobID:     job.ID,
			Row:       row.Index,
			DocID:     docID,
			URL:       r.decks.URL(docID),
			CreatedAt: r.now(),
		}); err != nil {
			return err
		}
		existing[row.Index] = docID
	}
	if len(table) == 0 {
		return nil
	}
	return r.decks.Substitute(ctx, docID, table, nil)
}

// finish sets the terminal status once every row has been processed.
func (r *Runner) finish(ctx context.Context, job *GenerationJob, runnerID string) (*GenerationJob, error) {
	status := JobCompleted
	if job.ErrorRows > 0 {
		status = JobCompletedWithErrors
	}

	if job.Mode == ModeSingleDeck && len(job.TemplatePages) > 0 {
		if err := r.decks.DeletePages(ctx, job.ResultDocID, job.TemplatePages); err != nil {
			logging.WithFields(ctx, "job_id", job.ID).Warn("failed to remove template slides from output",
				"result_doc_id", job.ResultDocID,
				"error", err,
			)
		}
	}

	if err := r.jobs.FinishJob(ctx, job.ID, runnerID, status); err != nil {
		return job, err
	}
	job.Status = status
	job.ClaimedBy = ""
	job.ClaimExpiresAt = nil

	metrics.JobsFinished.WithLabelValues(string(status)).Inc()
	logging.WithFields(ctx, "job_id", job.ID).Info("job finished",
		"status", status,
		"total_rows", job.TotalRows,
		"error_rows", job.ErrorRows,
	)
	r.notify(ctx, job)
	return job, nil
}

// abort handles a failure to read the source or target. A job that has not
// started, or whose documents are gone or inaccessible, cannot proceed and
// is failed. A transient failure on a started job leaves it resumable.
func (r *Runner) abort(ctx context.Context, job *GenerationJob, op string, err error) (*GenerationJob, error) {
	if job.Status == JobPending || !IsRetryable(err) {
		return r.fail(ctx, job, fmt.Errorf("%s: %w", op, err))
	}
	return job, err
}

// fail marks the job failed with a fatal reason.
func (r *Runner) fail(ctx context.Context, job *GenerationJob, cause error) (*GenerationJob, error) {
	reason := cause.Error()
	if err := r.jobs.FailJob(context.WithoutCancel(ctx), job.ID, reason); err != nil {
		return job, err
	}
	job.Status = JobFailed
	job.Failure = reason

	metrics.JobsFinished.WithLabelValues(string(JobFailed)).Inc()
	logging.WithFields(ctx, "job_id", job.ID).Error("job failed", "error", cause)
	r.notify(ctx, job)
	return job, nil
}

// notify tells the job's sync configuration channels how it ended.
func (r *Runner) notify(ctx context.Context, job *GenerationJob) {
	if r.notifier == nil || r.configs == nil || job.SyncConfigID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := logging.WithFields(ctx, "job_id", job.ID, "sync_config_id", job.SyncConfigID)

	cfg, err := r.configs.GetConfig(ctx, job.SyncConfigID)
	if err != nil {
		log.Warn("notification skipped: sync config unavailable", "error", err)
		return
	}
	if len(cfg.NotificationChannels) == 0 {
		return
	}

	n := JobNotification{
		JobID:         job.ID,
		ConfigID:      cfg.ID,
		Status:        job.Status,
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		ErrorRows:     job.ErrorRows,
		Failure:       job.Failure,
	}
	if job.ResultDocID != "" {
		n.ResultURL = r.decks.URL(job.ResultDocID)
	}
	if err := r.notifier.Notify(ctx, cfg.NotificationChannels, n); err != nil {
		log.Warn("job notification failed", "error", err)
	}
}

func rowMessage(err error) string {
	var subErr *SubstitutionError
	if errors.As(err, &subErr) {
		return subErr.Error() + ": " + strings.Join(subErr.Warnings(), "; ")
	}
	return err.Error()
}
