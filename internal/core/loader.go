package core

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/metrics"
)

// DefaultReadRetries is how many times a retryable upstream read is repeated.
const DefaultReadRetries = 2

// Loader is the single read path for spreadsheet data: cache first, then
// the rate limiter, then the upstream store.
type Loader struct {
	source      SourceStore
	cache       SyncCache
	limiter     *RateLimiter
	readRetries uint64
	backoff     time.Duration
}

// NewLoader composes a source with a cache and limiter. Both are shared,
// process-wide instances constructed by the caller.
func NewLoader(source SourceStore, cache SyncCache, limiter *RateLimiter, readRetries int) *Loader {
	if readRetries < 0 {
		readRetries = DefaultReadRetries
	}
	return &Loader{
		source:      source,
		cache:       cache,
		limiter:     limiter,
		readRetries: uint64(readRetries),
		backoff:     500 * time.Millisecond,
	}
}

// Load returns the rows of a spreadsheet section.
//
// A fresh cache entry is returned without touching upstream. On a miss the
// call waits for the rate limiter (bounded retries) and reads upstream;
// retryable upstream failures are repeated with exponential backoff, each
// attempt passing the limiter again. A successful read replaces the cache
// entry.
func (l *Loader) Load(ctx context.Context, docID, section string) (SheetData, error) {
	if data, ok := l.cache.Get(ctx, docID, section); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return data, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	var data SheetData
	backoff := retry.WithMaxRetries(l.readRetries, retry.NewExponential(l.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}

		var err error
		data, err = l.source.ReadRows(ctx, docID, section)
		if err != nil {
			if IsRetryable(err) {
				metrics.UpstreamRequests.WithLabelValues("retried").Inc()
				logging.WithFields(ctx, "source_doc_id", docID, "section", section).
					Warn("upstream read failed, retrying", "error", err)
				return retry.RetryableError(err)
			}
			metrics.UpstreamRequests.WithLabelValues("error").Inc()
			return err
		}
		metrics.UpstreamRequests.WithLabelValues("ok").Inc()
		return nil
	})
	if err != nil {
		return SheetData{}, err
	}

	l.cache.Put(ctx, docID, section, data)
	return data, nil
}

// Invalidate drops cached data for a source after it was written.
func (l *Loader) Invalidate(ctx context.Context, docID string) {
	l.cache.Invalidate(ctx, docID)
}
