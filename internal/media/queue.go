package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// JobStatus is the lifecycle of one deferred video job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one deferred video production, created when a human selects a
// variant that carries a video descriptor.
type Job struct {
	CreationID  string
	Spec        *pipeline.VideoSpec
	Status      JobStatus
	Error       string
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// QueueStore is the persistence surface video jobs write results through.
type QueueStore interface {
	AppendCreationMediaURL(ctx context.Context, id, url string) error
	UpdateCreationVideoResult(ctx context.Context, id, videoURL, videoErr string) error
}

// Ledger records flat-priced provider spend.
type Ledger interface {
	RecordFlatCost(ctx context.Context, agent, task string, costUSD float64, duration time.Duration, success bool) error
}

// Queue runs deferred video jobs on a small worker pool. Job failure is
// business-level: it lands in video_error on the creation and never
// propagates to the approval that enqueued it.
type Queue struct {
	jobs     chan *Job
	provider VideoProvider
	store    QueueStore
	ledger   Ledger
	logger   *slog.Logger

	workers    int
	jobTimeout time.Duration

	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int

	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewQueue builds a stopped queue. Call Start before enqueueing.
func NewQueue(provider VideoProvider, store QueueStore, ledger Ledger, logger *slog.Logger, workers, maxSize int, jobTimeout time.Duration) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if maxSize <= 0 {
		maxSize = 50
	}
	if jobTimeout <= 0 {
		jobTimeout = 20 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:        make(chan *Job, maxSize),
		provider:    provider,
		store:       store,
		ledger:      ledger,
		logger:      logger,
		workers:     workers,
		jobTimeout:  jobTimeout,
		active:      make(map[string]*Job),
		historySize: 50,
		stop:        make(chan struct{}),
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop shuts the queue down. In-flight jobs observe cancellation through
// their per-job context and finish as failed.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stop)
	q.wg.Wait()
}

// Enqueue schedules one deferred video job. A full or stopped queue returns
// an error the caller logs and drops; the approval stands either way.
func (q *Queue) Enqueue(creationID string, spec *pipeline.VideoSpec) error {
	if spec == nil || spec.Type == "" {
		return pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityWarning, "creation has no video descriptor")
	}
	q.mu.RLock()
	stopped := q.stopped
	q.mu.RUnlock()
	if stopped {
		return pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityWarning, "media queue is stopped")
	}

	job := &Job{
		CreationID: creationID,
		Spec:       spec,
		Status:     JobQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	select {
	case q.jobs <- job:
		q.logger.Info("Deferred media job enqueued",
			logfields.CreationID(creationID),
			slog.String("video_type", string(spec.Type)))
		return nil
	default:
		return pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityWarning, "media queue is full")
	}
}

// Depth returns how many jobs are waiting plus running.
func (q *Queue) Depth() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs) + len(q.active)
}

// History returns a copy of recently finished jobs, newest first.
func (q *Queue) History() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Job, 0, len(q.history))
	for i := len(q.history) - 1; i >= 0; i-- {
		out = append(out, *q.history[i])
	}
	return out
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job *Job) {
	started := time.Now().UTC()
	job.Status = JobRunning
	job.StartedAt = &started

	q.mu.Lock()
	q.active[job.CreationID] = job
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	go func() {
		// A queue stop cancels the in-flight provider call.
		select {
		case <-q.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	asset, err := q.provider.GenerateVideo(ctx, job.Spec)
	cancel()
	q.finish(job, asset, err, time.Since(started))
}

func (q *Queue) finish(job *Job, asset *Asset, err error, took time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	completed := time.Now().UTC()
	job.CompletedAt = &completed

	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		q.logger.Warn("Deferred media job failed",
			logfields.CreationID(job.CreationID), logfields.Error(err))
		if serr := q.store.UpdateCreationVideoResult(ctx, job.CreationID, "", err.Error()); serr != nil {
			q.logger.Error("Recording video failure failed",
				logfields.CreationID(job.CreationID), logfields.Error(serr))
		}
	} else {
		job.Status = JobCompleted
		q.logger.Info("Deferred media job completed",
			logfields.CreationID(job.CreationID),
			logfields.DurationMS(float64(took.Milliseconds())))
		if serr := q.store.UpdateCreationVideoResult(ctx, job.CreationID, asset.URL, ""); serr != nil {
			q.logger.Error("Recording video result failed",
				logfields.CreationID(job.CreationID), logfields.Error(serr))
		} else if serr := q.store.AppendCreationMediaURL(ctx, job.CreationID, asset.URL); serr != nil {
			q.logger.Error("Appending video URL failed",
				logfields.CreationID(job.CreationID), logfields.Error(serr))
		}
	}

	if q.ledger != nil {
		cost := 0.0
		if asset != nil {
			cost = asset.CostUSD
		}
		if lerr := q.ledger.RecordFlatCost(ctx, "media", "video_"+string(job.Spec.Type), cost, took, err == nil); lerr != nil {
			q.logger.Warn("Ledger write for media job failed", logfields.Error(lerr))
		}
	}

	q.mu.Lock()
	delete(q.active, job.CreationID)
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		q.history = q.history[len(q.history)-q.historySize:]
	}
	q.mu.Unlock()
}
