package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLoader(src *fakeSource, retries int) (*Loader, *mapCache) {
	cache := newMapCache()
	l := NewLoader(src, cache, NewRateLimiter(time.Millisecond, 50), retries)
	l.backoff = time.Millisecond
	return l, cache
}

func TestLoaderCachesReads(t *testing.T) {
	src := newFakeSource()
	src.data["sheet"] = sheetWithRows(2)
	l, _ := newTestLoader(src, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := l.Load(ctx, "sheet", "")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(data.Rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(data.Rows))
		}
	}
	if n := src.readCount(); n != 1 {
		t.Errorf("upstream reads = %d, want 1", n)
	}

	l.Invalidate(ctx, "sheet")
	if _, err := l.Load(ctx, "sheet", ""); err != nil {
		t.Fatalf("Load() after invalidate error = %v", err)
	}
	if n := src.readCount(); n != 2 {
		t.Errorf("upstream reads after invalidate = %d, want 2", n)
	}
}

func TestLoaderRetriesRetryableErrors(t *testing.T) {
	src := newFakeSource()
	src.data["sheet"] = sheetWithRows(1)
	src.errs = []error{Upstream("sheets.read", errors.New("503"), true)}
	l, cache := newTestLoader(src, 2)

	if _, err := l.Load(context.Background(), "sheet", "A"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n := src.readCount(); n != 2 {
		t.Errorf("upstream reads = %d, want 2", n)
	}
	if _, ok := cache.Get(context.Background(), "sheet", "A"); !ok {
		t.Error("successful read was not cached")
	}
}

func TestLoaderDoesNotRetryPermanentErrors(t *testing.T) {
	src := newFakeSource()
	l, cache := newTestLoader(src, 3)

	_, err := l.Load(context.Background(), "missing", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
	if n := src.readCount(); n != 1 {
		t.Errorf("upstream reads = %d, want 1", n)
	}
	if _, ok := cache.Get(context.Background(), "missing", ""); ok {
		t.Error("failed read was cached")
	}
}

func TestLoaderGivesUpAfterRetries(t *testing.T) {
	src := newFakeSource()
	src.data["sheet"] = sheetWithRows(1)
	transient := Upstream("sheets.read", errors.New("503"), true)
	src.errs = []error{transient, transient, transient}
	l, _ := newTestLoader(src, 1)

	_, err := l.Load(context.Background(), "sheet", "")
	if KindOf(err) != KindUpstream {
		t.Fatalf("Load() error = %v, want upstream error", err)
	}
	if n := src.readCount(); n != 2 {
		t.Errorf("upstream reads = %d, want 2", n)
	}
}
