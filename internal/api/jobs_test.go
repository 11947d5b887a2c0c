package api

import (
	"testing"
	"time"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager(0)
	if jm.maxJobs != 1000 {
		t.Errorf("expected default maxJobs 1000, got %d", jm.maxJobs)
	}

	job := jm.CreateJob([]string{"https://a.example"}, []string{"authentication"})
	if job.ID == "" || job.RunID != job.ID {
		t.Fatalf("expected run id to equal job id, got %+v", job)
	}
	if job.Status != JobPending {
		t.Errorf("expected status pending, got %s", job.Status)
	}

	got, ok := jm.GetJob(job.ID)
	if !ok || got.ID != job.ID {
		t.Fatalf("expected to retrieve created job")
	}
	got.Targets[0] = "mutated"
	again, _ := jm.GetJob(job.ID)
	if again.Targets[0] != "https://a.example" {
		t.Fatal("GetJob must return a copy")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager(0)
	job := jm.CreateJob([]string{"https://a.example"}, nil)

	updated, ok := jm.UpdateJob(job.ID, func(j *Job) {
		j.Status = JobRunning
		now := time.Now()
		j.StartedAt = &now
	})
	if !ok || updated.Status != JobRunning || updated.StartedAt == nil {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if _, ok := jm.UpdateJob("non-existent-id", func(j *Job) { j.Status = JobDone }); ok {
		t.Error("expected update of unknown job to fail")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager(0)
	if jobs := jm.ListJobs(10); len(jobs) != 0 {
		t.Fatalf("expected 0 jobs, got %d", len(jobs))
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		jm.now = func() time.Time { return created }
		ids = append(ids, jm.CreateJob([]string{"https://a.example"}, nil).ID)
	}

	jobs := jm.ListJobs(10)
	if len(jobs) != 3 || jobs[0].ID != ids[2] || jobs[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %+v", jobs)
	}
	if jobs := jm.ListJobs(2); len(jobs) != 2 {
		t.Errorf("expected limit to return 2 jobs, got %d", len(jobs))
	}
}

func TestJobManager_EvictsFinishedJobs(t *testing.T) {
	jm := NewJobManager(2)
	first := jm.CreateJob([]string{"a"}, nil)
	jm.UpdateJob(first.ID, func(j *Job) { j.Status = JobDone })
	running := jm.CreateJob([]string{"b"}, nil)
	jm.CreateJob([]string{"c"}, nil)

	if _, ok := jm.GetJob(first.ID); ok {
		t.Error("oldest finished job should have been evicted")
	}
	if _, ok := jm.GetJob(running.ID); !ok {
		t.Error("unfinished jobs are never evicted")
	}
}

func TestJobManager_Subscribe(t *testing.T) {
	jm := NewJobManager(0)
	ch, unsubscribe := jm.Subscribe()

	job := jm.CreateJob([]string{"https://a.example"}, nil)
	select {
	case got := <-ch:
		if got.ID != job.ID {
			t.Errorf("expected update for %s, got %s", job.ID, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for job notification")
	}

	unsubscribe()
	jm.CreateJob([]string{"https://b.example"}, nil)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	unsubscribe()
}
