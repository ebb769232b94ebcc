// Package rescrape refreshes every historical search term in the background.
package rescrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/outlet"
)

// TermSource lists the search terms seen so far
type TermSource interface {
	SearchTerms(ctx context.Context) ([]string, error)
}

// Scraper scrapes one term and stores the result
type Scraper interface {
	ScrapeAndSave(ctx context.Context, term string, overwrite bool) (*outlet.ScrapeResult, error)
}

// Config holds configuration for the Queue
type Config struct {
	Workers     int           // Number of concurrent workers
	QueueSize   int           // Size of the task buffer channel
	TaskRetries int           // Extra attempts per term after the first failure
	RetryDelay  time.Duration // Base of the backoff between attempts
	TaskTimeout time.Duration // Upper bound for one attempt
	MaxJobs     int           // Finished jobs kept for status queries
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Workers:     2,
		QueueSize:   1000,
		TaskRetries: 2,
		RetryDelay:  2 * time.Second,
		TaskTimeout: 10 * time.Minute,
		MaxJobs:     100,
	}
}

type task struct {
	jobID uuid.UUID
	term  string
}

// Queue runs rescrape tasks on a fixed pool of workers
type Queue struct {
	terms   TermSource
	scraper Scraper
	logger  *zap.Logger
	config  Config

	tasks   chan task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	stopped bool

	jobsMu    sync.RWMutex
	jobs      map[uuid.UUID]*models.RescrapeJob
	jobOrder  []uuid.UUID
	completed int
	failed    int
}

// NewQueue creates a queue. Call Start before enqueueing.
func NewQueue(terms TermSource, scraper Scraper, config Config, logger *zap.Logger) *Queue {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.TaskRetries < 0 {
		config.TaskRetries = 0
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaults.TaskTimeout
	}
	if config.MaxJobs <= 0 {
		config.MaxJobs = defaults.MaxJobs
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		terms:   terms,
		scraper: scraper,
		logger:  logger,
		config:  config,
		tasks:   make(chan task, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[uuid.UUID]*models.RescrapeJob),
	}
}

// Start starts the background workers
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("rescrape queue already started")
	}

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.started = true
	q.logger.Info("started rescrape queue",
		zap.Int("workers", q.config.Workers),
		zap.Int("queue_size", q.config.QueueSize))

	return nil
}

// Stop stops accepting jobs and waits for queued tasks to finish.
// Tasks still running when timeout passes are cancelled.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return fmt.Errorf("rescrape queue not running")
	}
	q.stopped = true
	close(q.tasks)
	q.mu.Unlock()

	q.logger.Info("stopping rescrape queue", zap.Int("pending_tasks", len(q.tasks)))

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("rescrape queue stopped gracefully")
		q.cancel()
		return nil
	case <-time.After(timeout):
		q.cancel()
		return fmt.Errorf("rescrape queue stop timeout after %v", timeout)
	}
}

// EnqueueAll creates a job with one task per known search term. The job is
// accepted whole or not at all.
func (q *Queue) EnqueueAll(ctx context.Context) (*models.RescrapeJob, error) {
	if !q.running() {
		return nil, services.ErrQueueStopped
	}

	terms, err := q.terms.SearchTerms(ctx)
	if err != nil {
		return nil, services.WrapStorage("failed to list search terms", err)
	}

	job := models.NewRescrapeJob(terms)

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started || q.stopped {
		return nil, services.ErrQueueStopped
	}
	if free := cap(q.tasks) - len(q.tasks); len(terms) > free {
		q.logger.Warn("rescrape queue full, rejecting job",
			zap.Int("terms", len(terms)),
			zap.Int("free_slots", free))
		return nil, services.ErrQueueFull
	}

	q.remember(job)
	for _, term := range terms {
		q.tasks <- task{jobID: job.ID, term: term}
	}

	q.logger.Info("rescrape job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.Int("terms", len(terms)))

	return q.Job(job.ID)
}

// Job returns a snapshot of a job
func (q *Queue) Job(id uuid.UUID) (*models.RescrapeJob, error) {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, services.ErrJobNotFound
	}
	return job.Snapshot(), nil
}

func (q *Queue) running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started && !q.stopped
}

// remember stores job, evicting the oldest finished jobs beyond MaxJobs
func (q *Queue) remember(job *models.RescrapeJob) {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()

	q.jobs[job.ID] = job
	q.jobOrder = append(q.jobOrder, job.ID)

	kept := q.jobOrder[:0]
	excess := len(q.jobOrder) - q.config.MaxJobs
	for _, id := range q.jobOrder {
		if excess > 0 && q.jobs[id].CompletedAt != nil {
			delete(q.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	q.jobOrder = kept
}

// worker processes tasks from the channel
func (q *Queue) worker(id int) {
	defer q.wg.Done()

	q.logger.Debug("rescrape worker started", zap.Int("worker_id", id))

	for t := range q.tasks {
		q.process(id, t)
	}

	q.logger.Debug("rescrape worker stopped", zap.Int("worker_id", id))
}

// process runs one term with retries and records the outcome on its job
func (q *Queue) process(workerID int, t task) {
	var lastErr error

	for attempt := 0; attempt <= q.config.TaskRetries; attempt++ {
		q.update(t.jobID, func(job *models.RescrapeJob) { job.MarkTaskRunning(t.term) })

		ctx, cancel := context.WithTimeout(q.ctx, q.config.TaskTimeout)
		result, err := q.scraper.ScrapeAndSave(ctx, t.term, true)
		cancel()

		if err == nil {
			indexed := 0
			if result.Reindex != nil {
				indexed = result.Reindex.Indexed()
			}
			q.update(t.jobID, func(job *models.RescrapeJob) {
				job.MarkTaskCompleted(t.term, result.Scraped, result.Upsert, indexed)
				q.completed++
			})
			q.logger.Info("rescrape task completed",
				zap.Int("worker_id", workerID),
				zap.String("search_term", t.term),
				zap.Int("scraped", result.Scraped),
				zap.Int("attempts", attempt+1))
			return
		}

		lastErr = err
		if q.ctx.Err() != nil {
			break
		}

		q.logger.Warn("rescrape task attempt failed",
			zap.Int("worker_id", workerID),
			zap.String("search_term", t.term),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < q.config.TaskRetries && !q.sleep(q.config.RetryDelay<<attempt) {
			break
		}
	}

	message := services.GetErrorMessage(lastErr)
	if q.ctx.Err() != nil {
		message = "rescrape queue stopped"
	}
	q.update(t.jobID, func(job *models.RescrapeJob) {
		job.MarkTaskFailed(t.term, message)
		q.failed++
	})
	q.logger.Error("rescrape task failed",
		zap.Int("worker_id", workerID),
		zap.String("search_term", t.term),
		zap.Error(lastErr))
}

func (q *Queue) update(jobID uuid.UUID, fn func(job *models.RescrapeJob)) {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	if job, ok := q.jobs[jobID]; ok {
		fn(job)
	}
}

// sleep waits for d and reports false when the queue was cancelled first
func (q *Queue) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats returns statistics about the queue
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	stats := Stats{
		QueueSize:    q.config.QueueSize,
		PendingTasks: len(q.tasks),
		Workers:      q.config.Workers,
		Started:      q.started && !q.stopped,
	}
	q.mu.Unlock()

	q.jobsMu.RLock()
	stats.Jobs = len(q.jobs)
	stats.TasksCompleted = q.completed
	stats.TasksFailed = q.failed
	q.jobsMu.RUnlock()

	return stats
}

// Stats represents rescrape queue statistics
type Stats struct {
	QueueSize      int  `json:"queue_size"`
	PendingTasks   int  `json:"pending_tasks"`
	Workers        int  `json:"workers"`
	Started        bool `json:"started"`
	Jobs           int  `json:"jobs"`
	TasksCompleted int  `json:"tasks_completed"`
	TasksFailed    int  `json:"tasks_failed"`
}
