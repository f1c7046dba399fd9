package core

import (
	"context"
	"time"
)

// SourceStore reads and writes spreadsheet data.
//
// ReadRows errors should be classified: ErrNotFound, ErrUnauthorized, or an
// Upstream error whose Retryable flag tells the Loader whether to back off
// and try again.
type SourceStore interface {
	ReadRows(ctx context.Context, docID, section string) (SheetData, error)
	WriteCells(ctx context.Context, docID, section string, writes []CellWrite) error
}

// DeckStore reads, duplicates and edits presentations.
type DeckStore interface {
	// TextElements returns every text-bearing node, groups and tables flattened.
	TextElements(ctx context.Context, docID string) ([]TextElement, error)

	// Duplicate copies docID into a new document and returns its id.
	// The original is never modified.
	Duplicate(ctx context.Context, docID, title string) (string, error)

	// Substitute replaces each key of table with its value. When pageIDs is
	// non-empty only those pages are touched. A partial failure is reported
	// as *SubstitutionError.
	Substitute(ctx context.Context, docID string, table map[string]string, pageIDs []string) error

	// PageIDs lists the slide ids of docID in order.
	PageIDs(ctx context.Context, docID string) ([]string, error)

	// CopyPages duplicates pageIDs to the end of docID using ids derived from
	// idPrefix. Calling it again with the same prefix returns the existing
	// copies instead of creating new ones.
	CopyPages(ctx context.Context, docID string, pageIDs []string, idPrefix string) ([]string, error)

	// DeletePages removes the given slides.
	DeletePages(ctx context.Context, docID string, pageIDs []string) error

	// Delete removes a whole document.
	Delete(ctx context.Context, docID string) error

	// URL returns a browser link to docID.
	URL(docID string) string
}

// JobStore persists GenerationJobs.
//
// Row updates are compare-and-swap: RecordRow only applies when the job is
// running, claimed by runnerID and still at expectedProcessed rows.
type JobStore interface {
	CreateJob(ctx context.Context, job *GenerationJob) error
	GetJob(ctx context.Context, id string) (*GenerationJob, error)

	// ClaimJob leases a pending or running job to runnerID. It fails with
	// ErrJobNotRunnable for terminal jobs and ErrJobClaimed while another
	// runner's lease is valid.
	ClaimJob(ctx context.Context, id, runnerID string, lease time.Duration) (*GenerationJob, error)

	// StartJob moves a claimed pending job to running.
	StartJob(ctx context.Context, id, runnerID string, totalRows int, resultDocID string, templatePages []string) error

	// RecordRow counts one processed row, failed when rowErr is non-nil.
	RecordRow(ctx context.Context, id, runnerID string, expectedProcessed int, rowErr *RowError) error

	// FinishJob sets a terminal status and drops the claim.
	FinishJob(ctx context.Context, id, runnerID string, status JobStatus) error

	// FailJob marks a non-terminal job failed regardless of who holds it.
	FailJob(ctx context.Context, id, reason string) error

	// ReleaseJob drops runnerID's claim so another invocation can resume.
	ReleaseJob(ctx context.Context, id, runnerID string) error

	// ListRunnable returns pending jobs and running jobs whose lease expired.
	ListRunnable(ctx context.Context, now time.Time, limit int) ([]*GenerationJob, error)

	AddOutput(ctx context.Context, out GenerationOutput) error
	ListOutputs(ctx context.Context, jobID string) ([]GenerationOutput, error)
}

// SyncConfigStore persists sync configurations.
type SyncConfigStore interface {
	CreateConfig(ctx context.Context, cfg *SyncConfig) error
	GetConfig(ctx context.Context, id string) (*SyncConfig, error)
	UpdateConfig(ctx context.Context, cfg *SyncConfig) error
	ListConfigsByOwner(ctx context.Context, ownerID string) ([]*SyncConfig, error)
	ListConfigsBySource(ctx context.Context, sourceDocID string) ([]*SyncConfig, error)
	ListAutomaticConfigs(ctx context.Context) ([]*SyncConfig, error)
	TouchLastSync(ctx context.Context, id string, at time.Time) error
}

// SyncCache stores spreadsheet snapshots keyed by source document id and
// section. Entries older than the cache TTL are reported as absent.
type SyncCache interface {
	Get(ctx context.Context, docID, section string) (SheetData, bool)
	Put(ctx context.Context, docID, section string, data SheetData)
	// Invalidate drops every cached section of docID.
	Invalidate(ctx context.Context, docID string)
}

// Notifier delivers job notifications to configured channels.
type Notifier interface {
	Notify(ctx context.Context, channels []string, n JobNotification) error
}
