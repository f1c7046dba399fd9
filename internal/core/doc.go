// Package core provides the business logic for keeping presentations in sync
// with spreadsheet data.
//
// This package is the heart of the sync engine, containing all domain logic
// independent of any transport or storage layer. It can be used by web
// handlers, the scheduler, or tests without modification. Remote documents,
// job persistence, caching backends and notifications are all reached
// through the narrow interfaces declared in stores.go.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Placeholders: {{name}} tokens found in slide text ([ExtractPlaceholders]).
//   - Column mapping: placeholder name to spreadsheet column ([ResolveMapping]).
//   - Change tracking: validated cell edits replayed as upstream writes ([ChangeTracker]).
//   - Preview: a disposable, substituted copy of a target deck ([PreviewBuilder]).
//   - Generation jobs: row-by-row batch generation with per-row outcomes ([Runner]).
//   - Sync trigger: one pending job per automatic configuration ([Service.OnSourceChanged]).
//
// # Upstream Reads
//
// Every spreadsheet read goes through a [Loader], which consults the
// [SyncCache] first and then passes the shared [RateLimiter] before calling
// the [SourceStore]. Both the cache and the limiter are constructed once in
// main and injected, so every request for every source shares them.
//
// # Generation Jobs
//
// A job is processed by [Runner.Run] in bounded invocations:
//
//  1. The invocation claims the job (a lease; at most one holder at a time)
//  2. The first invocation records totalRows and moves the job to running
//  3. Rows are processed in sheet order starting at processedRows
//  4. Each row outcome is recorded with a compare-and-swap on processedRows
//  5. When rows run out, the job reaches a terminal status
//
// A row failure is recorded in the job's error list and never stops the batch.
//
// # Error Handling
//
// Errors carry a [Kind] (validation, authorization, upstream, row, job-fatal)
// and a retryable flag. Technical errors are mapped to user-facing messages
// with support codes using [MapError].
package core
