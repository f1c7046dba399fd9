package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeSource serves fixed sheet data and records writes.
type fakeSource struct {
	mu     sync.Mutex
	data   map[string]SheetData // keyed by docID
	errs   []error              // returned, in order, by the next ReadRows calls
	reads  int
	writes []CellWrite
}

func newFakeSource() *fakeSource {
	return &fakeSource{data: make(map[string]SheetData)}
}

func (f *fakeSource) ReadRows(_ context.Context, docID, _ string) (SheetData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return SheetData{}, err
		}
	}
	d, ok := f.data[docID]
	if !ok {
		return SheetData{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeSource) WriteCells(_ context.Context, _, _ string, writes []CellWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writes...)
	return nil
}

func (f *fakeSource) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// fakeDeck is one presentation held by fakeDecks.
type fakeDeck struct {
	title    string
	elements []TextElement
	pages    []string
}

// fakeDecks is an in-memory presentation service.
type fakeDecks struct {
	mu      sync.Mutex
	decks   map[string]*fakeDeck
	nextID  int
	deleted []string

	// substituteErr, when set, decides the outcome of Substitute.
	substituteErr func(docID string, table map[string]string) error
	duplicateErr  error
}

func newFakeDecks() *fakeDecks {
	return &fakeDecks{decks: make(map[string]*fakeDeck)}
}

func (f *fakeDecks) add(id string, texts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeDeck{title: id, pages: []string{"p1"}}
	for i, t := range texts {
		d.elements = append(d.elements, TextElement{PageID: "p1", ElementID: fmt.Sprintf("e%d", i+1), Text: t})
	}
	f.decks[id] = d
}

func (f *fakeDecks) texts(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decks[id]
	if !ok {
		return nil
	}
	out := make([]string, len(d.elements))
	for i, el := range d.elements {
		out[i] = el.Text
	}
	return out
}

func (f *fakeDecks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decks)
}

func (f *fakeDecks) TextElements(_ context.Context, docID string) ([]TextElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decks[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]TextElement(nil), d.elements...), nil
}

func (f *fakeDecks) Duplicate(_ context.Context, docID, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.duplicateErr != nil {
		return "", f.duplicateErr
	}
	src, ok := f.decks[docID]
	if !ok {
		return "", ErrNotFound
	}
	f.nextID++
	id := fmt.Sprintf("copy-%d", f.nextID)
	f.decks[id] = &fakeDeck{
		title:    title,
		elements: append([]TextElement(nil), src.elements...),
		pages:    append([]string(nil), src.pages...),
	}
	return id, nil
}

func (f *fakeDecks) Substitute(_ context.Context, docID string, table map[string]string, pageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decks[docID]
	if !ok {
		return ErrNotFound
	}
	if f.substituteErr != nil {
		if err := f.substituteErr(docID, table); err != nil {
			return err
		}
	}
	only := make(map[string]bool, len(pageIDs))
	for _, p := range pageIDs {
		only[p] = true
	}
	for i, el := range d.elements {
		if len(only) > 0 && !only[el.PageID] {
			continue
		}
		text := el.Text
		for from, to := range table {
			text = strings.ReplaceAll(text, from, to)
		}
		d.elements[i].Text = text
	}
	return nil
}

func (f *fakeDecks) PageIDs(_ context.Context, docID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decks[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), d.pages...), nil
}

func (f *fakeDecks) CopyPages(_ context.Context, docID string, pageIDs []string, idPrefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decks[docID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []string
	for i, p := range pageIDs {
		newID := fmt.Sprintf("%s%d", idPrefix, i)
		out = append(out, newID)
		if containsString(d.pages, newID) {
			continue
		}
		d.pages = append(d.pages, newID)
		for _, el := range d.elements {
			if el.PageID == p {
				d.elements = append(d.elements, TextElement{PageID: newID, ElementID: newID + "_" + el.ElementID, Text: el.Text})
			}
		}
	}
	return out, nil
}

func (f *fakeDecks) DeletePages(_ context.Context, docID string, pageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decks[docID]
	if !ok {
		return ErrNotFound
	}
	var pages []string
	for _, p := range d.pages {
		if !containsString(pageIDs, p) {
			pages = append(pages, p)
		}
	}
	var elements []TextElement
	for _, el := range d.elements {
		if !containsString(pageIDs, el.PageID) {
			elements = append(elements, el)
		}
	}
	d.pages, d.elements = pages, elements
	return nil
}

func (f *fakeDecks) Delete(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.decks, docID)
	f.deleted = append(f.deleted, docID)
	return nil
}

func (f *fakeDecks) URL(docID string) string {
	return "https://docs.example.com/" + docID
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// mapCache is a SyncCache without expiry.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]SheetData
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]SheetData)}
}

func (c *mapCache) Get(_ context.Context, docID, section string) (SheetData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[docID+"|"+section]
	return d, ok
}

func (c *mapCache) Put(_ context.Context, docID, section string, data SheetData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[docID+"|"+section] = data
}

func (c *mapCache) Invalidate(_ context.Context, docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, docID+"|") {
			delete(c.entries, k)
		}
	}
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []JobNotification
}

func (n *recordingNotifier) Notify(_ context.Context, _ []string, note JobNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sheetWithRows builds a Name/Total sheet of n rows.
func sheetWithRows(n int) SheetData {
	d := SheetData{Headers: []string{"Name", "Total"}}
	for i := 1; i <= n; i++ {
		d.Rows = append(d.Rows, SourceRow{Index: i, Values: []any{fmt.Sprintf("Client %d", i), float64(i * 100)}})
	}
	return d
}

// testEnv wires a Service over fakes and a memory store.
type testEnv struct {
	svc     *Service
	store   *MemoryStore
	source  *fakeSource
	decks   *fakeDecks
	cache   *mapCache
	limiter *RateLimiter
	notify  *recordingNotifier
}

func newTestEnv() *testEnv {
	return newLimitedTestEnv(NewRateLimiter(time.Millisecond, 50))
}

// newLimitedTestEnv is newTestEnv with a caller-supplied upstream limiter.
func newLimitedTestEnv(limiter *RateLimiter) *testEnv {
	env := &testEnv{
		store:   NewMemoryStore(),
		source:  newFakeSource(),
		decks:   newFakeDecks(),
		cache:   newMapCache(),
		limiter: limiter,
		notify:  &recordingNotifier{},
	}
	svc, err := NewService(Deps{
		Sources:  env.source,
		Decks:    env.decks,
		Jobs:     env.store,
		Configs:  env.store,
		Cache:    env.cache,
		Limiter:  env.limiter,
		Notifier: env.notify,
	}, Options{ReadRetries: 0})
	if err != nil {
		panic(err)
	}
	env.svc = svc
	return env
}
