package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

const uniqueViolation = "23505"

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var jobColumns = []string{
	"id", "owner_id", "sync_config_id", "source_doc_id", "source_section",
	"target_doc_id", "title", "mode", "column_mapping", "status",
	"total_rows", "processed_rows", "error_rows", "errors", "failure",
	"result_doc_id", "template_pages", "claimed_by", "claim_expires_at",
	"created_at", "updated_at",
}

type jobRow struct {
	ID             string     `db:"id"`
	OwnerID        string     `db:"owner_id"`
	SyncConfigID   string     `db:"sync_config_id"`
	SourceDocID    string     `db:"source_doc_id"`
	SourceSection  string     `db:"source_section"`
	TargetDocID    string     `db:"target_doc_id"`
	Title          string     `db:"title"`
	Mode           string     `db:"mode"`
	Mapping        []byte     `db:"column_mapping"`
	Status         string     `db:"status"`
	TotalRows      int        `db:"total_rows"`
	ProcessedRows  int        `db:"processed_rows"`
	ErrorRows      int        `db:"error_rows"`
	Errors         []byte     `db:"errors"`
	Failure        string     `db:"failure"`
	ResultDocID    string     `db:"result_doc_id"`
	TemplatePages  []byte     `db:"template_pages"`
	ClaimedBy      string     `db:"claimed_by"`
	ClaimExpiresAt *time.Time `db:"claim_expires_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func (r *jobRow) toJob() (*core.GenerationJob, error) {
	job := &core.GenerationJob{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		SyncConfigID:   r.SyncConfigID,
		SourceDocID:    r.SourceDocID,
		SourceSection:  r.SourceSection,
		TargetDocID:    r.TargetDocID,
		Title:          r.Title,
		Mode:           core.OutputMode(r.Mode),
		Status:         core.JobStatus(r.Status),
		TotalRows:      r.TotalRows,
		ProcessedRows:  r.ProcessedRows,
		ErrorRows:      r.ErrorRows,
		Errors:         []core.RowError{},
		Failure:        r.Failure,
		ResultDocID:    r.ResultDocID,
		ClaimedBy:      r.ClaimedBy,
		ClaimExpiresAt: r.ClaimExpiresAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if err := decodeJSON(r.Mapping, &job.Mapping); err != nil {
		return nil, fmt.Errorf("decoding column_mapping of job %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.Errors, &job.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors of job %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.TemplatePages, &job.TemplatePages); err != nil {
		return nil, fmt.Errorf("decoding template_pages of job %s: %w", r.ID, err)
	}
	return job, nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

// Store implements core.JobStore and core.SyncConfigStore on PostgreSQL.
// Job transitions are single conditional UPDATEs, so concurrent invocations
// on different replicas observe the same compare-and-swap rules.
type Store struct {
	db  DBTX
	now func() time.Time
}

// NewStore creates a store on db.
func NewStore(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) CreateJob(ctx context.Context, job *core.GenerationJob) error {
	mapping, err := encodeJSON(job.Mapping, "{}")
	if err != nil {
		return fmt.Errorf("encoding column mapping: %w", err)
	}
	errs, err := encodeJSON(job.Errors, "[]")
	if err != nil {
		return fmt.Errorf("encoding row errors: %w", err)
	}
	pages, err := encodeJSON(job.TemplatePages, "[]")
	if err != nil {
		return fmt.Errorf("encoding template pages: %w", err)
	}

	query, args, err := psql.Insert("generation_jobs").
		Columns(jobColumns...).
		Values(
			job.ID, job.OwnerID, job.SyncConfigID, job.SourceDocID, job.SourceSection,
			job.TargetDocID, job.Title, string(job.Mode), mapping, string(job.Status),
			job.TotalRows, job.ProcessedRows, job.ErrorRows, errs, job.Failure,
			job.ResultDocID, pages, job.ClaimedBy, job.ClaimExpiresAt,
			job.CreatedAt, job.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &core.Error{Kind: core.KindConflict, Op: "job.create", Message: "job " + job.ID + " already exists", Err: err}
		}
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*core.GenerationJob, error) {
	query, args, err := psql.Select(jobColumns...).
		From("generation_jobs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row jobRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	return row.toJob()
}

// claimable matches jobs with no live lease at now.
func claimable(now time.Time) squirrel.Or {
	return squirrel.Or{
		squirrel.Eq{"claimed_by": ""},
		squirrel.Eq{"claim_expires_at": nil},
		squirrel.LtOrEq{"claim_expires_at": now},
	}
}

func (s *Store) ClaimJob(ctx context.Context, id, runnerID string, lease time.Duration) (*core.GenerationJob, error) {
	now := s.now()
	query, args, err := psql.Update("generation_jobs").
		Set("claimed_by", runnerID).
		Set("claim_expires_at", now.Add(lease)).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": []string{string(core.JobPending), string(core.JobRunning)}}).
		Where(claimable(now)).
		Suffix("RETURNING " + strings.Join(jobColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building claim query: %w", err)
	}

	var row jobRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if !pgxscan.NotFound(err) {
			return nil, fmt.Errorf("claiming job: %w", err)
		}
		current, getErr := s.GetJob(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status.Terminal() {
			return nil, core.ErrJobNotRunnable
		}
		return nil, core.ErrJobClaimed
	}
	return row.toJob()
}

// applyClaimed runs a conditional update and maps zero affected rows to
// ErrNotFound or ErrClaimLost.
func (s *Store) applyClaimed(ctx context.Context, id string, b squirrel.UpdateBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return core.ErrClaimLost
}

func (s *Store) StartJob(ctx context.Context, id, runnerID string, totalRows int, resultDocID string, templatePages []string) error {
	pages, err := encodeJSON(templatePages, "[]")
	if err != nil {
		return fmt.Errorf("encoding template pages: %w", err)
	}
	return s.applyClaimed(ctx, id, psql.Update("generation_jobs").
		Set("status", string(core.JobRunning)).
		Set("total_rows", totalRows).
		Set("result_doc_id", resultDocID).
		Set("template_pages", pages).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"id": id, "claimed_by": runnerID, "status": string(core.JobPending)}))
}

func (s *Store) RecordRow(ctx context.Context, id, runnerID string, expectedProcessed int, rowErr *core.RowError) error {
	b := psql.Update("generation_jobs").
		Set("processed_rows", squirrel.Expr("processed_rows + 1")).
		Set("updated_at", s.now())
	if rowErr != nil {
		entry, err := json.Marshal([]core.RowError{*rowErr})
		if err != nil {
			return fmt.Errorf("encoding row error: %w", err)
		}
		b = b.Set("error_rows", squirrel.Expr("error_rows + 1")).
			Set("errors", squirrel.Expr("errors || ?::jsonb", string(entry)))
	}
	return s.applyClaimed(ctx, id, b.Where(squirrel.Eq{
		"id":             id,
		"claimed_by":     runnerID,
		"status":         string(core.JobRunning),
		"processed_rows": expectedProcessed,
	}))
}

func (s *Store) FinishJob(ctx context.Context, id, runnerID string, status core.JobStatus) error {
	return s.applyClaimed(ctx, id, psql.Update("generation_jobs").
		Set("status", string(status)).
		Set("claimed_by", "").
		Set("claim_expires_at", nil).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"id": id, "claimed_by": runnerID, "status": string(core.JobRunning)}))
}

func (s *Store) FailJob(ctx context.Context, id, reason string) error {
	query, args, err := psql.Update("generation_jobs").
		Set("status", string(core.JobFailed)).
		Set("failure", reason).
		Set("claimed_by", "").
		Set("claim_expires_at", nil).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"id": id, "status": []string{string(core.JobPending), string(core.JobRunning)}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building fail query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Terminal jobs are left alone; only a missing job is an error.
		_, err := s.GetJob(ctx, id)
		return err
	}
	return nil
}

func (s *Store) ReleaseJob(ctx context.Context, id, runnerID string) error {
	query, args, err := psql.Update("generation_jobs").
		Set("claimed_by", "").
		Set("claim_expires_at", nil).
		Where(squirrel.Eq{"id": id, "claimed_by": runnerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building release query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("releasing job: %w", err)
	}
	return nil
}

func (s *Store) ListRunnable(ctx context.Context, now time.Time, limit int) ([]*core.GenerationJob, error) {
	qb := psql.Select(jobColumns...).
		From("generation_jobs").
		Where(squirrel.Eq{"status": []string{string(core.JobPending), string(core.JobRunning)}}).
		Where(claimable(now)).
		OrderBy("created_at")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var rows []*jobRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning runnable jobs: %w", err)
	}
	out := make([]*core.GenerationJob, 0, len(rows))
	for _, r := range rows {
		job, err := r.toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *Store) AddOutput(ctx context.Context, out core.GenerationOutput) error {
	query, args, err := psql.Insert("generation_outputs").
		Columns("job_id", "row_index", "doc_id", "url", "created_at").
		Values(out.JobID, out.Row, out.DocID, out.URL, out.CreatedAt).
		Suffix("ON CONFLICT (job_id, row_index) DO UPDATE SET doc_id = EXCLUDED.doc_id, url = EXCLUDED.url").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting output: %w", err)
	}
	return nil
}

type outputRow struct {
	JobID     string    `db:"job_id"`
	Row       int       `db:"row_index"`
	DocID     string    `db:"doc_id"`
	URL       string    `db:"url"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) ListOutputs(ctx context.Context, jobID string) ([]core.GenerationOutput, error) {
	query, args, err := psql.Select("job_id", "row_index", "doc_id", "url", "created_at").
		From("generation_outputs").
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("row_index").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []outputRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning outputs: %w", err)
	}
	out := make([]core.GenerationOutput, len(rows))
	for i, r := range rows {
		out[i] = core.GenerationOutput{JobID: r.JobID, Row: r.Row, DocID: r.DocID, URL: r.URL, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

var _ core.JobStore = (*Store)(nil)
