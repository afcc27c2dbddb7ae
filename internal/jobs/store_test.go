package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"clipforge/internal/render"
	"clipforge/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleJob(t *testing.T) *Job {
	t.Helper()
	job := &Job{
		Title:   "Volcanoes of Iceland",
		Channel: "science",
		Mood:    "tense",
	}
	err := job.SetScenes([]render.Scene{
		{Index: 0, Sentence: "The eruption began at dawn.", Keyword: "volcano"},
		{Index: 1, Sentence: "Ash fell for days.", Keyword: "ash cloud"},
	})
	if err != nil {
		t.Fatalf("SetScenes failed: %v", err)
	}
	return job
}

func TestCreateAssignsIDAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := sampleJob(t)

	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" {
		t.Error("Create should assign an ID")
	}
	if job.Status != StatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}

	loaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded.Title != job.Title || loaded.Channel != "science" {
		t.Errorf("loaded = %+v", loaded)
	}
	scenes, err := loaded.Scenes()
	if err != nil {
		t.Fatalf("Scenes failed: %v", err)
	}
	if len(scenes) != 2 || scenes[1].Keyword != "ash cloud" {
		t.Errorf("scenes = %+v", scenes)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetByID(context.Background(), "no-such-job")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOutputRoundTripSurvivesReload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := sampleJob(t)
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	output := &render.PipelineOutput{
		Mood:      "tense",
		ClipPaths: []string{"/tmp/a.mp4", "/tmp/b.mp4"},
		Durations: []float64{4.2, 3.8},
		Subtitles: []string{"first", "second"},
		SilenceRanges: []render.SilenceRange{
			{Start: 4.2, End: 8.0},
		},
	}
	if err := job.SetOutput(output); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}
	job.Status = StatusAssembled
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	loaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	restored, err := loaded.Output()
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if restored == nil || len(restored.ClipPaths) != 2 || restored.SilenceRanges[0].End != 8.0 {
		t.Errorf("restored = %+v", restored)
	}
}

func TestUpdateUnknownJob(t *testing.T) {
	store := newTestStore(t)
	job := sampleJob(t)
	job.ID = "ghost"
	if err := store.Update(context.Background(), job); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNextPendingReturnsOldest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleJob(t)
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second := sampleJob(t)
	second.Title = "Second"
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	next, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Errorf("next = %+v, want the first job", next)
	}

	first.Status = StatusCompleted
	second.Status = StatusCompleted
	for _, job := range []*Job{first, second} {
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	if next, err := store.NextPending(ctx); err != nil || next != nil {
		t.Errorf("drained queue: next = %+v, err = %v", next, err)
	}
}

func TestRetryFailedHonorsRetryableAndResumesAssembled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	retryableFresh := sampleJob(t)
	if err := store.Create(ctx, retryableFresh); err != nil {
		t.Fatal(err)
	}
	retryableFresh.SetFailed("footage provider 503", true)
	if err := store.Update(ctx, retryableFresh); err != nil {
		t.Fatal(err)
	}

	retryableAssembled := sampleJob(t)
	if err := store.Create(ctx, retryableAssembled); err != nil {
		t.Fatal(err)
	}
	if err := retryableAssembled.SetOutput(&render.PipelineOutput{ClipPaths: []string{"/tmp/a.mp4"}}); err != nil {
		t.Fatal(err)
	}
	retryableAssembled.SetFailed("final mix timed out", true)
	if err := store.Update(ctx, retryableAssembled); err != nil {
		t.Fatal(err)
	}

	fatal := sampleJob(t)
	if err := store.Create(ctx, fatal); err != nil {
		t.Fatal(err)
	}
	fatal.SetFailed("invalid model configuration", false)
	if err := store.Update(ctx, fatal); err != nil {
		t.Fatal(err)
	}

	reset, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if reset != 2 {
		t.Errorf("reset = %d, want 2", reset)
	}

	check := func(id string, want Status) {
		t.Helper()
		job, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job.Status != want {
			t.Errorf("job %s status = %q, want %q", id, job.Status, want)
		}
	}
	check(retryableFresh.ID, StatusPending)
	check(retryableAssembled.ID, StatusAssembled)
	check(fatal.ID, StatusFailed)
}

func TestListFiltersAndCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, status := range []Status{StatusPending, StatusPending, StatusCompleted, StatusFailed} {
		job := sampleJob(t)
		if err := store.Create(ctx, job); err != nil {
			t.Fatal(err)
		}
		if status != StatusPending {
			job.Status = status
			if err := store.Update(ctx, job); err != nil {
				t.Fatal(err)
			}
		}
	}

	pending, err := store.List(ctx, StatusPending)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all = %d, want 4", len(all))
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[StatusPending] != 2 || counts[StatusCompleted] != 1 || counts[StatusFailed] != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done := sampleJob(t)
	if err := store.Create(ctx, done); err != nil {
		t.Fatal(err)
	}
	done.Status = StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatal(err)
	}
	active := sampleJob(t)
	if err := store.Create(ctx, active); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Clear(ctx, StatusCompleted, StatusFailed)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := store.GetByID(ctx, active.ID); err != nil {
		t.Errorf("active job should survive: %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Assembling "); !ok || status != StatusAssembling {
		t.Errorf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Error("bogus status should not parse")
	}
}
