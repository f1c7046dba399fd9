package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestNewServiceRequiresDeps(t *testing.T) {
	if _, err := NewService(Deps{}, Options{}); err == nil {
		t.Error("NewService() with no deps = nil error, want error")
	}
}

func TestServicePlaceholders(t *testing.T) {
	env := newTestEnv()
	env.decks.add("deck", "Hi {{Name}}", "{{ Name }} owes {{Amount}}")

	report, err := env.svc.Placeholders(context.Background(), "deck")
	if err != nil {
		t.Fatalf("Placeholders() error = %v", err)
	}
	if !report.HasPlaceholders || len(report.Placeholders) != 2 {
		t.Errorf("report = %+v, want Name and Amount", report)
	}

	env.decks.add("empty", "nothing here")
	report, _ = env.svc.Placeholders(context.Background(), "empty")
	if report.HasPlaceholders || report.Placeholders == nil {
		t.Errorf("empty report = %+v, want empty non-nil list", report)
	}
}

func TestServicePreviewAndDiff(t *testing.T) {
	env := newTestEnv()
	env.source.data["sheet"] = sheetWithRows(3)
	env.decks.add("deck", "Hello {{Name}}", "static")
	ctx := context.Background()

	req := PreviewRequest{TargetDocID: "deck", SourceDocID: "sheet", Row: 2}
	res, err := env.svc.Preview(ctx, req)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if got := env.decks.texts(res.PreviewDocID); got[0] != "Hello Client 2" {
		t.Errorf("preview text = %v", got)
	}

	diff, err := env.svc.Diff(ctx, req)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(diff.Changes) != 1 || diff.Changes[0].NewContent != "Hello Client 2" {
		t.Errorf("Diff() changes = %+v", diff.Changes)
	}

	req.Row = 9
	if _, err := env.svc.Preview(ctx, req); KindOf(err) != KindValidation {
		t.Errorf("Preview(row 9) error = %v, want validation error", err)
	}
}

func TestServiceApplyEdits(t *testing.T) {
	env := newTestEnv()
	env.source.data["sheet"] = sheetWithRows(2)
	env.decks.add("deck", "Client 1 total 100")
	ctx := context.Background()

	res, err := env.svc.ApplyEdits(ctx, EditRequest{
		SourceDocID: "sheet",
		Edits:       []CellEdit{{Row: 0, Field: "Total", Value: 150}},
		PropagateTo: "deck",
	})
	if err != nil {
		t.Fatalf("ApplyEdits() error = %v", err)
	}
	if res.Written != 1 || res.Replaced != 1 {
		t.Errorf("result = %+v, want 1 write and 1 replacement", res)
	}
	want := []CellWrite{{Row: 1, Column: 1, Value: 150}}
	if !reflect.DeepEqual(env.source.writes, want) {
		t.Errorf("writes = %+v, want %+v", env.source.writes, want)
	}
	if got := env.decks.texts("deck"); got[0] != "Client 1 total 150" {
		t.Errorf("propagated text = %v", got)
	}
	if _, ok := env.cache.Get(ctx, "sheet", ""); ok {
		t.Error("cache not invalidated after write")
	}
}

func TestServiceApplyEditsValidatesBeforeWriting(t *testing.T) {
	env := newTestEnv()
	env.source.data["sheet"] = sheetWithRows(2)

	_, err := env.svc.ApplyEdits(context.Background(), EditRequest{
		SourceDocID: "sheet",
		Edits: []CellEdit{
			{Row: 0, Field: "Total", Value: 1},
			{Row: 2, Field: "Total", Value: 2},
		},
	})
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("ApplyEdits() error = %v, want OutOfRangeError", err)
	}
	if len(env.source.writes) != 0 {
		t.Errorf("writes = %v, want none", env.source.writes)
	}
}

func TestServiceJobOwnership(t *testing.T) {
	env := newTestEnv()
	job, err := env.svc.CreateGeneration(context.Background(), GenerationRequest{OwnerID: "alice", SourceDocID: "s", TargetDocID: "d"})
	if err != nil {
		t.Fatal(err)
	}
	if job.Mode != ModePerRow || job.Status != JobPending {
		t.Errorf("job = %+v, want pending per_row", job)
	}

	if _, err := env.svc.Job(context.Background(), "bob", job.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Job() by other owner error = %v, want ErrForbidden", err)
	}
	if _, err := env.svc.Job(context.Background(), "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Job(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSyncConfigLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.CreateSyncConfig(ctx, "alice", SyncConfigInput{}); KindOf(err) != KindValidation {
		t.Errorf("CreateSyncConfig(empty) error = %v, want validation", err)
	}
	if _, err := env.svc.CreateSyncConfig(ctx, "alice", SyncConfigInput{SourceDocID: "s", Frequency: "monthly"}); KindOf(err) != KindValidation {
		t.Errorf("CreateSyncConfig(bad frequency) error = %v, want validation", err)
	}
	if _, err := env.svc.CreateSyncConfig(ctx, "alice", SyncConfigInput{SourceDocID: "s", NotificationChannels: []string{"pager"}}); KindOf(err) != KindValidation {
		t.Errorf("CreateSyncConfig(bad channel) error = %v, want validation", err)
	}

	cfg, err := env.svc.CreateSyncConfig(ctx, "alice", SyncConfigInput{SourceDocID: "s", TargetDocID: "d", Frequency: "hour"})
	if err != nil {
		t.Fatalf("CreateSyncConfig() error = %v", err)
	}
	if cfg.Frequency != FrequencyHour || cfg.Mode != ModePerRow {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := env.svc.SyncConfig(ctx, "bob", cfg.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("SyncConfig() by other owner error = %v, want ErrForbidden", err)
	}
	if _, err := env.svc.UpdateSyncConfig(ctx, "bob", cfg.ID, SyncConfigInput{SourceDocID: "x"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("UpdateSyncConfig() by other owner error = %v, want ErrForbidden", err)
	}

	updated, err := env.svc.UpdateSyncConfig(ctx, "alice", cfg.ID, SyncConfigInput{SourceDocID: "s", TargetDocID: "d2", Automatic: true, Mode: "single_deck"})
	if err != nil {
		t.Fatalf("UpdateSyncConfig() error = %v", err)
	}
	if updated.TargetDocID != "d2" || !updated.Automatic || updated.Mode != ModeSingleDeck || !updated.CreatedAt.Equal(cfg.CreatedAt) {
		t.Errorf("updated = %+v", updated)
	}

	list, _ := env.svc.SyncConfigs(ctx, "alice")
	if len(list) != 1 {
		t.Errorf("SyncConfigs() = %d, want 1", len(list))
	}
}

func TestOnSourceChanged(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	mk := func(in SyncConfigInput) *SyncConfig {
		cfg, err := env.svc.CreateSyncConfig(ctx, "alice", in)
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}
	a := mk(SyncConfigInput{SourceDocID: "sheet", TargetDocID: "deck-a", Automatic: true})
	b := mk(SyncConfigInput{SourceDocID: "sheet", TargetDocID: "deck-b", Automatic: true})
	noTarget := mk(SyncConfigInput{SourceDocID: "sheet", Automatic: true})
	mk(SyncConfigInput{SourceDocID: "sheet", TargetDocID: "deck-c"})                                   // manual
	mk(SyncConfigInput{SourceDocID: "sheet", SourceSection: "Other", TargetDocID: "deck-d", Automatic: true}) // other section
	mk(SyncConfigInput{SourceDocID: "other-sheet", TargetDocID: "deck-e", Automatic: true})

	env.cache.Put(ctx, "sheet", "Main", sheetWithRows(1))

	summary, err := env.svc.OnSourceChanged(ctx, "sheet", "Main")
	if err != nil {
		t.Fatalf("OnSourceChanged() error = %v", err)
	}
	if summary.Triggered != 2 || len(summary.Results) != 3 {
		t.Fatalf("summary = %+v, want 2 triggered of 3", summary)
	}

	byConfig := map[string]TriggerResult{}
	for _, r := range summary.Results {
		byConfig[r.ConfigID] = r
	}
	if byConfig[noTarget.ID].Status != TriggerSkipped || byConfig[noTarget.ID].Error == "" {
		t.Errorf("config without target = %+v, want skipped with reason", byConfig[noTarget.ID])
	}
	ja, jb := byConfig[a.ID].JobID, byConfig[b.ID].JobID
	if ja == "" || jb == "" || ja == jb {
		t.Errorf("job ids = %q, %q; want two distinct jobs", ja, jb)
	}

	job, _ := env.store.GetJob(ctx, ja)
	if job.SyncConfigID != a.ID || job.TargetDocID != "deck-a" || job.Status != JobPending {
		t.Errorf("job = %+v", job)
	}
	stored, _ := env.store.GetConfig(ctx, a.ID)
	if stored.LastSyncAt == nil {
		t.Error("LastSyncAt not stamped")
	}
	if _, ok := env.cache.Get(ctx, "sheet", "Main"); ok {
		t.Error("cache not invalidated")
	}

	if _, err := env.svc.OnSourceChanged(ctx, " ", ""); KindOf(err) != KindValidation {
		t.Errorf("OnSourceChanged(empty) error = %v, want validation", err)
	}
}

func TestEnqueueDue(t *testing.T) {
	env := newTestEnv()
	clock := newFakeClock()
	env.svc.now = clock.Now
	ctx := context.Background()

	cfg, err := env.svc.CreateSyncConfig(ctx, "alice", SyncConfigInput{SourceDocID: "s", TargetDocID: "d", Automatic: true, Frequency: "hour"})
	if err != nil {
		t.Fatal(err)
	}

	results, err := env.svc.EnqueueDue(ctx)
	if err != nil || len(results) != 1 || results[0].Status != TriggerQueued {
		t.Fatalf("EnqueueDue() = %+v, %v; want one queued", results, err)
	}

	clock.Advance(30 * time.Minute)
	if results, _ := env.svc.EnqueueDue(ctx); len(results) != 0 {
		t.Errorf("EnqueueDue() within interval = %+v, want none", results)
	}

	clock.Advance(31 * time.Minute)
	results, _ = env.svc.EnqueueDue(ctx)
	if len(results) != 1 || results[0].ConfigID != cfg.ID {
		t.Errorf("EnqueueDue() after interval = %+v, want config %s", results, cfg.ID)
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule("@every 1m"); err != nil {
		t.Errorf("ValidateSchedule(@every 1m) error = %v", err)
	}
	if err := ValidateSchedule("*/5 * * * *"); err != nil {
		t.Errorf("ValidateSchedule(*/5) error = %v", err)
	}
	if err := ValidateSchedule("not a schedule"); err == nil {
		t.Error("ValidateSchedule(garbage) = nil, want error")
	}
}

func TestDrainRunnable(t *testing.T) {
	env := newTestEnv()
	env.source.data["s"] = sheetWithRows(2)
	env.decks.add("d", "Hi {{Name}}")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		job, err := env.svc.CreateGeneration(ctx, GenerationRequest{OwnerID: "alice", SourceDocID: "s", TargetDocID: "d"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, job.ID)
	}

	n, err := env.svc.DrainRunnable(ctx, 10)
	if err != nil || n != 2 {
		t.Fatalf("DrainRunnable() = %d, %v; want 2", n, err)
	}
	for _, id := range ids {
		job, _ := env.store.GetJob(ctx, id)
		if job.Status != JobCompleted {
			t.Errorf("job %s status = %s, want completed", id, job.Status)
		}
	}
	if n, _ := env.svc.DrainRunnable(ctx, 10); n != 0 {
		t.Errorf("second DrainRunnable() = %d, want 0", n)
	}
}

func TestDrainRunnableSkipsWhenSlotsBusy(t *testing.T) {
	env := newTestEnv()
	env.source.data["s"] = sheetWithRows(1)
	env.decks.add("d", "Hi {{Name}}")
	env.svc.slots = NewInvocationLimiter(1, time.Hour)
	ctx := context.Background()

	job, err := env.svc.CreateGeneration(ctx, GenerationRequest{OwnerID: "alice", SourceDocID: "s", TargetDocID: "d"})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.svc.slots.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := env.svc.DrainRunnable(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("DrainRunnable() with no free slot = %d, %v; want 0, nil", n, err)
	}
	if stored, _ := env.store.GetJob(ctx, job.ID); stored.Status != JobPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}

	env.svc.slots.Release()
	if n, err := env.svc.DrainRunnable(ctx, 10); err != nil || n != 1 {
		t.Fatalf("DrainRunnable() = %d, %v; want 1", n, err)
	}
	if stored, _ := env.store.GetJob(ctx, job.ID); stored.Status != JobCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
}

func TestScheduledTickEnqueuesAndDrains(t *testing.T) {
	env := newTestEnv()
	env.source.data["s"] = sheetWithRows(2)
	env.decks.add("d", "Hi {{Name}}")
	ctx := context.Background()

	cfg, err := env.svc.CreateSyncConfig(ctx, "alice", SyncConfigInput{SourceDocID: "s", TargetDocID: "d", Automatic: true})
	if err != nil {
		t.Fatal(err)
	}

	env.svc.runScheduledTick(ctx, SchedulerConfig{DrainLimit: 10, TickBudget: time.Minute})

	if got := env.decks.count(); got != 3 {
		t.Errorf("decks = %d, want template plus one output per row", got)
	}
	stored, _ := env.svc.SyncConfig(ctx, "alice", cfg.ID)
	if stored.LastSyncAt == nil {
		t.Error("LastSyncAt not stamped")
	}
	if runnable, _ := env.store.ListRunnable(ctx, time.Now(), 0); len(runnable) != 0 {
		t.Errorf("runnable after tick = %d, want 0", len(runnable))
	}
}
