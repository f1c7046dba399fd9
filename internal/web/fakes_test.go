package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/cache"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/config"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// fakeSource serves fixed spreadsheets.
type fakeSource struct {
	mu     sync.Mutex
	data   map[string]core.SheetData
	writes []core.CellWrite
}

func (f *fakeSource) ReadRows(_ context.Context, docID, _ string) (core.SheetData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[docID]
	if !ok {
		return core.SheetData{}, core.ErrNotFound
	}
	return d, nil
}

func (f *fakeSource) WriteCells(_ context.Context, _, _ string, writes []core.CellWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writes...)
	return nil
}

// fakeDecks is an in-memory presentation service with single-page decks.
type fakeDecks struct {
	mu     sync.Mutex
	texts  map[string][]string
	nextID int
}

func (f *fakeDecks) TextElements(_ context.Context, docID string) ([]core.TextElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts, ok := f.texts[docID]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := make([]core.TextElement, len(texts))
	for i, t := range texts {
		out[i] = core.TextElement{PageID: "p1", ElementID: fmt.Sprintf("e%d", i+1), Text: t}
	}
	return out, nil
}

func (f *fakeDecks) Duplicate(_ context.Context, docID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts, ok := f.texts[docID]
	if !ok {
		return "", core.ErrNotFound
	}
	f.nextID++
	id := fmt.Sprintf("copy-%d", f.nextID)
	f.texts[id] = append([]string(nil), texts...)
	return id, nil
}

func (f *fakeDecks) Substitute(_ context.Context, docID string, table map[string]string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts, ok := f.texts[docID]
	if !ok {
		return core.ErrNotFound
	}
	for i, t := range texts {
		for from, to := range table {
			t = strings.ReplaceAll(t, from, to)
		}
		texts[i] = t
	}
	return nil
}

func (f *fakeDecks) PageIDs(_ context.Context, docID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.texts[docID]; !ok {
		return nil, core.ErrNotFound
	}
	return []string{"p1"}, nil
}

func (f *fakeDecks) CopyPages(_ context.Context, _ string, pageIDs []string, idPrefix string) ([]string, error) {
	out := make([]string, len(pageIDs))
	for i := range pageIDs {
		out[i] = fmt.Sprintf("%s%d", idPrefix, i)
	}
	return out, nil
}

func (f *fakeDecks) DeletePages(context.Context, string, []string) error { return nil }

func (f *fakeDecks) Delete(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.texts, docID)
	return nil
}

func (f *fakeDecks) URL(docID string) string { return "https://example.test/" + docID }

// testEnv is a Server over fakes, a memory store and a memory cache.
type testEnv struct {
	server *Server
	store  *core.MemoryStore
	svc    *core.Service
	source *fakeSource
	decks  *fakeDecks
	cfg    *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 5 * time.Second},
		Webhook:  config.WebhookConfig{Secret: "s3cret"},
		Security: config.SecurityConfig{DefaultOwner: "local"},
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	snapshots, err := cache.NewMemory(16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		store: core.NewMemoryStore(),
		source: &fakeSource{data: map[string]core.SheetData{
			"sheet": {
				Headers: []string{"Name", "Total"},
				Rows: []core.SourceRow{
					{Index: 1, Values: []any{"Ana", float64(100)}},
					{Index: 2, Values: []any{"Luis", float64(250)}},
				},
			},
		}},
		decks: &fakeDecks{texts: map[string][]string{
			"deck": {"Hello {{Name}}", "Total {{Total}}"},
		}},
		cfg: cfg,
	}
	env.svc, err = core.NewService(core.Deps{
		Sources: env.source,
		Decks:   env.decks,
		Jobs:    env.store,
		Configs: env.store,
		Cache:   snapshots,
		Limiter: core.NewRateLimiter(time.Millisecond, 10),
	}, core.Options{})
	if err != nil {
		t.Fatal(err)
	}
	env.server = NewServer(env.svc, cfg)
	return env
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}
