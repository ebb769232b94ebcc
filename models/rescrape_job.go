package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a rescrape job or task
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusPartial   JobStatus = "partial" // Some terms failed
)

// RescrapeTask is the unit of work for one historical search term
type RescrapeTask struct {
	SearchTerm  string     `json:"search_term"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	Scraped     int        `json:"scraped"`
	Inserted    int        `json:"inserted"`
	Updated     int        `json:"updated"`
	Unchanged   int        `json:"unchanged"`
	Indexed     int        `json:"indexed"`
	Error       *string    `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RescrapeJob groups the tasks created by one rescrape-all request
type RescrapeJob struct {
	ID          uuid.UUID       `json:"id"`
	Status      JobStatus       `json:"status"`
	Tasks       []*RescrapeTask `json:"tasks"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewRescrapeJob creates a pending job with one task per search term
func NewRescrapeJob(terms []string) *RescrapeJob {
	tasks := make([]*RescrapeTask, 0, len(terms))
	for _, term := range terms {
		tasks = append(tasks, &RescrapeTask{SearchTerm: term, Status: JobStatusPending})
	}
	job := &RescrapeJob{
		ID:        uuid.New(),
		Status:    JobStatusPending,
		Tasks:     tasks,
		CreatedAt: time.Now().UTC(),
	}
	if len(tasks) == 0 {
		job.finish()
	}
	return job
}

// MarkTaskRunning marks the task for term as running
func (j *RescrapeJob) MarkTaskRunning(term string) {
	if t := j.task(term); t != nil {
		t.Status = JobStatusRunning
		t.Attempts++
	}
	j.Status = JobStatusRunning
}

// MarkTaskCompleted records a successful task and finishes the job when all tasks are done
func (j *RescrapeJob) MarkTaskCompleted(term string, scraped int, upsert *UpsertResult, indexed int) {
	t := j.task(term)
	if t == nil {
		return
	}
	t.Status = JobStatusCompleted
	t.Scraped = scraped
	if upsert != nil {
		t.Inserted = upsert.Inserted
		t.Updated = upsert.Updated
		t.Unchanged = upsert.Unchanged
	}
	t.Indexed = indexed
	t.Error = nil
	now := time.Now().UTC()
	t.CompletedAt = &now
	j.finish()
}

// MarkTaskFailed records a task that exhausted its retries
func (j *RescrapeJob) MarkTaskFailed(term, message string) {
	t := j.task(term)
	if t == nil {
		return
	}
	t.Status = JobStatusFailed
	t.Error = &message
	now := time.Now().UTC()
	t.CompletedAt = &now
	j.finish()
}

// Snapshot returns a deep copy safe to hand to callers
func (j *RescrapeJob) Snapshot() *RescrapeJob {
	cp := *j
	cp.Tasks = make([]*RescrapeTask, len(j.Tasks))
	for i, t := range j.Tasks {
		tc := *t
		cp.Tasks[i] = &tc
	}
	return &cp
}

func (j *RescrapeJob) task(term string) *RescrapeTask {
	for _, t := range j.Tasks {
		if t.SearchTerm == term {
			return t
		}
	}
	return nil
}

// finish settles the job status once no task is pending or running
func (j *RescrapeJob) finish() {
	failed := 0
	for _, t := range j.Tasks {
		switch t.Status {
		case JobStatusPending, JobStatusRunning:
			return
		case JobStatusFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		j.Status = JobStatusCompleted
	case failed == len(j.Tasks):
		j.Status = JobStatusFailed
	default:
		j.Status = JobStatusPartial
	}
	now := time.Now().UTC()
	j.CompletedAt = &now
}
