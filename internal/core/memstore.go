package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process JobStore and SyncConfigStore. It is used when
// no database is configured and in tests. Every method holds one mutex, so
// the compare-and-swap rules of JobStore hold across goroutines.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*GenerationJob
	outputs map[string][]GenerationOutput
	configs map[string]*SyncConfig
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*GenerationJob),
		outputs: make(map[string][]GenerationOutput),
		configs: make(map[string]*SyncConfig),
		now:     time.Now,
	}
}

// WithClock replaces the store's time source. Intended for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *MemoryStore) CreateJob(_ context.Context, job *GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return &Error{Kind: KindConflict, Op: "job.create", Message: "job " + job.ID + " already exists"}
	}
	c := job.Clone()
	if c.Errors == nil {
		c.Errors = []RowError{}
	}
	m.jobs[job.ID] = c
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (m *MemoryStore) ClaimJob(_ context.Context, id, runnerID string, lease time.Duration) (*GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if job.Status.Terminal() {
		return nil, ErrJobNotRunnable
	}
	now := m.now()
	if job.ClaimedBy != "" && job.ClaimExpiresAt != nil && job.ClaimExpiresAt.After(now) {
		return nil, ErrJobClaimed
	}
	exp := now.Add(lease)
	job.ClaimedBy = runnerID
	job.ClaimExpiresAt = &exp
	job.UpdatedAt = now
	return job.Clone(), nil
}

// claimed returns the job if runnerID holds it in one of the given states.
func (m *MemoryStore) claimed(id, runnerID string, states ...JobStatus) (*GenerationJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if job.ClaimedBy != runnerID {
		return nil, ErrClaimLost
	}
	for _, s := range states {
		if job.Status == s {
			return job, nil
		}
	}
	return nil, ErrClaimLost
}

func (m *MemoryStore) StartJob(_ context.Context, id, runnerID string, totalRows int, resultDocID string, templatePages []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.claimed(id, runnerID, JobPending)
	if err != nil {
		return err
	}
	job.Status = JobRunning
	job.TotalRows = totalRows
	job.ResultDocID = resultDocID
	job.TemplatePages = append([]string(nil), templatePages...)
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) RecordRow(_ context.Context, id, runnerID string, expectedProcessed int, rowErr *RowError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.claimed(id, runnerID, JobRunning)
	if err != nil {
		return err
	}
	if job.ProcessedRows != expectedProcessed {
		return ErrClaimLost
	}
	job.ProcessedRows++
	if rowErr != nil {
		job.ErrorRows++
		job.Errors = append(job.Errors, *rowErr)
	}
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) FinishJob(_ context.Context, id, runnerID string, status JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.claimed(id, runnerID, JobRunning)
	if err != nil {
		return err
	}
	job.Status = status
	job.ClaimedBy = ""
	job.ClaimExpiresAt = nil
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) FailJob(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = JobFailed
	job.Failure = reason
	job.ClaimedBy = ""
	job.ClaimExpiresAt = nil
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ReleaseJob(_ context.Context, id, runnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.ClaimedBy == runnerID {
		job.ClaimedBy = ""
		job.ClaimExpiresAt = nil
	}
	return nil
}

func (m *MemoryStore) ListRunnable(_ context.Context, now time.Time, limit int) ([]*GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*GenerationJob
	for _, job := range m.jobs {
		if job.Status.Terminal() {
			continue
		}
		if job.ClaimedBy != "" && job.ClaimExpiresAt != nil && job.ClaimExpiresAt.After(now) {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AddOutput(_ context.Context, out GenerationOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[out.JobID] = append(m.outputs[out.JobID], out)
	return nil
}

func (m *MemoryStore) ListOutputs(_ context.Context, jobID string) ([]GenerationOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]GenerationOutput{}, m.outputs[jobID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

func cloneConfig(c *SyncConfig) *SyncConfig {
	cp := *c
	cp.NotificationChannels = append([]string{}, c.NotificationChannels...)
	if c.Mapping != nil {
		cp.Mapping = make(ColumnMapping, len(c.Mapping))
		for k, v := range c.Mapping {
			cp.Mapping[k] = v
		}
	}
	if c.LastSyncAt != nil {
		t := *c.LastSyncAt
		cp.LastSyncAt = &t
	}
	return &cp
}

func (m *MemoryStore) CreateConfig(_ context.Context, cfg *SyncConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.configs[cfg.ID]; exists {
		return &Error{Kind: KindConflict, Op: "config.create", Message: "sync config " + cfg.ID + " already exists"}
	}
	m.configs[cfg.ID] = cloneConfig(cfg)
	return nil
}

func (m *MemoryStore) GetConfig(_ context.Context, id string) (*SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConfig(cfg), nil
}

func (m *MemoryStore) UpdateConfig(_ context.Context, cfg *SyncConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[cfg.ID]; !ok {
		return ErrNotFound
	}
	m.configs[cfg.ID] = cloneConfig(cfg)
	return nil
}

func (m *MemoryStore) listConfigs(match func(*SyncConfig) bool) []*SyncConfig {
	var out []*SyncConfig
	for _, cfg := range m.configs {
		if match(cfg) {
			out = append(out, cloneConfig(cfg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) ListConfigsByOwner(_ context.Context, ownerID string) ([]*SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listConfigs(func(c *SyncConfig) bool { return c.OwnerID == ownerID }), nil
}

func (m *MemoryStore) ListConfigsBySource(_ context.Context, sourceDocID string) ([]*SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listConfigs(func(c *SyncConfig) bool { return c.SourceDocID == sourceDocID }), nil
}

func (m *MemoryStore) ListAutomaticConfigs(_ context.Context) ([]*SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listConfigs(func(c *SyncConfig) bool { return c.Automatic }), nil
}

func (m *MemoryStore) TouchLastSync(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	cfg.LastSyncAt = &t
	cfg.UpdatedAt = m.now()
	return nil
}
