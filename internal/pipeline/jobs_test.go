package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/dgallion1/mindmapgen/internal/cache"
	"github.com/dgallion1/mindmapgen/internal/document"
)

func TestJobStore_PutGet(t *testing.T) {
	s := NewJobStore(time.Hour)
	job := NewJob("doc.txt", "", []byte("hello"))
	s.Put(job)

	if got := s.Get(job.ID); got != job {
		t.Errorf("Get returned %v, want the stored job", got)
	}
	if s.Get("missing") != nil {
		t.Error("Get for unknown ID should return nil")
	}
}

func TestJobStore_CleanupEvictsExpired(t *testing.T) {
	s := NewJobStore(10 * time.Millisecond)
	old := NewJob("old.txt", "", nil)
	old.UpdatedAt = time.Now().Add(-time.Minute)
	fresh := NewJob("fresh.txt", "", nil)
	s.Put(old)
	s.Put(fresh)

	s.Cleanup()

	if s.Get(old.ID) != nil {
		t.Error("expired job survived cleanup")
	}
	if s.Get(fresh.ID) == nil {
		t.Error("fresh job evicted by cleanup")
	}
}

func TestJob_SnapshotIsCopy(t *testing.T) {
	job := NewJob("doc.txt", "My Title", []byte("x"))
	job.AddError("first")

	snap := job.Snapshot()
	snap.Progress.Errors = append(snap.Progress.Errors, "mutated")

	if got := len(job.Snapshot().Progress.Errors); got != 1 {
		t.Errorf("snapshot mutation leaked into the job, have %d errors", got)
	}
	if snap.Title != "My Title" || snap.Filename != "doc.txt" {
		t.Errorf("snapshot lost identity fields: %+v", snap)
	}
}

func TestJob_SetTreeReleasesFileData(t *testing.T) {
	job := NewJob("doc.txt", "", []byte("payload"))
	if job.FileData() == nil {
		t.Fatal("file data missing before processing")
	}

	job.SetTree(&document.Tree{Complete: true})

	if job.FileData() != nil {
		t.Error("file data retained after the tree is stored")
	}
	if job.Tree() == nil {
		t.Error("stored tree not returned")
	}
}

func TestJob_ProgressAccumulates(t *testing.T) {
	job := NewJob("doc.txt", "", nil)
	job.SetTotalChunks(4)
	job.IncrChunksProcessed()
	job.IncrChunksProcessed()
	job.AddCandidates(7)
	job.SetVerification(5, 2)
	job.SetVerification(3, 1)
	job.SetLLMCalls(12)

	p := job.Snapshot().Progress
	if p.TotalChunks != 4 || p.ChunksProcessed != 2 {
		t.Errorf("chunk progress = %d/%d, want 2/4", p.ChunksProcessed, p.TotalChunks)
	}
	if p.Candidates != 7 {
		t.Errorf("candidates = %d, want 7", p.Candidates)
	}
	if p.NodesVerified != 8 || p.NodesDropped != 3 {
		t.Errorf("verification = %d verified / %d dropped, want 8/3", p.NodesVerified, p.NodesDropped)
	}
	if p.LLMCalls != 12 {
		t.Errorf("llm calls = %d, want 12", p.LLMCalls)
	}
}

func TestGenerateULID_UniqueAndOrdered(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := generateULID()
		if len(id) != 26 {
			t.Fatalf("ulid %q has length %d, want 26", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate ulid %q", id)
		}
		seen[id] = true
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	o := NewOrchestrator(cfg, &scriptedProvider{}, cache.New(), testLogger())
	// Workers never started, so the queue cannot drain.

	first := NewJob("a.txt", "", []byte("x"))
	if err := o.Submit(first); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	second := NewJob("b.txt", "", []byte("y"))
	if err := o.Submit(second); err == nil {
		t.Fatal("second submit should fail with a full queue")
	}
	if got := second.Snapshot().Status; got != StatusFailed {
		t.Errorf("rejected job status = %s, want %s", got, StatusFailed)
	}
	if o.GetJob(second.ID) == nil {
		t.Error("rejected job should still be queryable")
	}
}

func TestOrchestrator_SubmitAfterStopFails(t *testing.T) {
	o := NewOrchestrator(testConfig(), &scriptedProvider{}, cache.New(), testLogger())
	o.Start(context.Background())
	o.Stop()

	job := NewJob("late.txt", "", []byte("x"))
	if err := o.Submit(job); err == nil {
		t.Fatal("submit after shutdown should fail")
	}
	if got := job.Snapshot().Status; got != StatusFailed {
		t.Errorf("late job status = %s, want %s", got, StatusFailed)
	}
	// A second Stop must not panic on an already closed queue.
	o.Stop()
}

func TestOrchestrator_ProcessesSubmittedJob(t *testing.T) {
	o := NewOrchestrator(testConfig(), &scriptedProvider{}, cache.New(), testLogger())
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("engine.txt", "", []byte(testDoc))
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		switch o.GetJob(job.ID).Snapshot().Status {
		case StatusCompleted:
			if job.Tree() == nil {
				t.Fatal("completed job has no tree")
			}
			return
		case StatusFailed, StatusPartial:
			t.Fatalf("job ended %s: %v", job.Snapshot().Status, job.Snapshot().Progress.Errors)
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the job to complete")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
