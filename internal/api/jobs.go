package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

// JobStatus is the lifecycle state of an assessment job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Finished reports whether the job reached a terminal status.
func (s JobStatus) Finished() bool { return s == JobDone || s == JobError }

// Job tracks one asynchronous assessment. RunID names the results
// directory once the run is persisted.
type Job struct {
	ID         string              `json:"id"`
	Status     JobStatus           `json:"status"`
	RunID      string              `json:"run_id"`
	Targets    []string            `json:"targets"`
	Modules    []string            `json:"modules,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Completed  int                 `json:"completed_units"`
	Total      int                 `json:"total_units"`
	Summary    *assessment.Summary `json:"summary,omitempty"`
	BatchPath  string              `json:"batch_path,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func (j Job) clone() Job {
	j.Targets = append([]string(nil), j.Targets...)
	j.Modules = append([]string(nil), j.Modules...)
	if j.Summary != nil {
		s := *j.Summary
		j.Summary = &s
	}
	return j
}

// JobManager keeps jobs in memory and fans updates out to subscribers.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int
	now         func() time.Time
}

// NewJobManager creates a manager retaining at most maxJobs jobs
// (1000 when maxJobs <= 0). Finished jobs are evicted oldest first.
func NewJobManager(maxJobs int) *JobManager {
	if maxJobs <= 0 {
		maxJobs = 1000
	}
	return &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     maxJobs,
		now:         time.Now,
	}
}

// CreateJob registers a pending job. Its id doubles as the run id.
func (m *JobManager) CreateJob(targets, modules []string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	job := &Job{
		ID:        id,
		Status:    JobPending,
		RunID:     id,
		Targets:   append([]string(nil), targets...),
		Modules:   append([]string(nil), modules...),
		CreatedAt: m.now().UTC(),
	}
	m.jobs[id] = job
	m.evict()
	m.broadcast(job.clone())
	return job.clone()
}

// UpdateJob applies update to the job and notifies subscribers. It
// returns false for unknown ids.
func (m *JobManager) UpdateJob(id string, update func(*Job)) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	update(job)
	m.broadcast(job.clone())
	return job.clone(), true
}

// GetJob returns a copy of the job.
func (m *JobManager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		return job.clone(), true
	}
	return Job{}, false
}

// ListJobs returns up to limit jobs, newest first.
func (m *JobManager) ListJobs(limit int) []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// Subscribe returns a channel of job updates and its cancel function.
// Slow subscribers miss updates rather than block job progress.
func (m *JobManager) Subscribe() (<-chan Job, func()) {
	ch := make(chan Job, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// broadcast must be called with mu held.
func (m *JobManager) broadcast(job Job) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
		}
	}
}

// evict drops the oldest finished jobs beyond maxJobs. Must be called with
// mu held.
func (m *JobManager) evict() {
	if len(m.jobs) <= m.maxJobs {
		return
	}
	var finished []*Job
	for _, job := range m.jobs {
		if job.Status.Finished() {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})
	for _, job := range finished {
		if len(m.jobs) <= m.maxJobs {
			break
		}
		delete(m.jobs, job.ID)
	}
}
