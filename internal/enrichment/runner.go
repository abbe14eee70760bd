package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxquery/voxquery/internal/backoff"
	"github.com/voxquery/voxquery/internal/broadcast"
	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/internal/sheets"
	"github.com/voxquery/voxquery/pkg/models"
)

// RowFailurePolicy decides what happens when a single row classification
// fails. The source design left this open; it is configuration here.
type RowFailurePolicy string

const (
	// PolicyAbort stops the job at the first failed row.
	PolicyAbort RowFailurePolicy = "abort"

	// PolicySkip leaves the target cell empty and continues.
	PolicySkip RowFailurePolicy = "skip"

	// PolicyRetry retries the row up to RetryAttempts times, then aborts.
	PolicyRetry RowFailurePolicy = "retry"
)

// Status is an enrichment job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Config configures the runner.
type Config struct {
	// QueueSize bounds pending jobs behind the single worker slot.
	// Default: 16.
	QueueSize int

	// RowPolicy selects per-row failure handling. Default: PolicyAbort.
	RowPolicy RowFailurePolicy

	// RetryAttempts is the per-row retry budget for PolicyRetry. Default: 2.
	RetryAttempts int

	// RetryBackoff is the initial delay between row retries, growing
	// exponentially per attempt. Default: 1s.
	RetryBackoff time.Duration
}

// Job is one submitted enrichment task. Once started it runs to completion;
// there is no cancellation lever beyond the single worker slot.
type Job struct {
	ID          string
	SessionID   string
	Title       string
	Column      string
	Instruction string
	Allowed     []string

	mu     sync.Mutex
	status Status
	frame  *dataset.Frame
	ref    *sheets.Ref
	err    error
	done   chan struct{}
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Result returns the augmented dataset and destination reference once the
// job has finished. Err is non-nil for failed jobs.
func (j *Job) Result() (*dataset.Frame, *sheets.Ref, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.frame, j.ref, j.err
}

// Done is closed when the job finishes, whatever the outcome.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) finish(status Status, err error) {
	j.mu.Lock()
	j.status = status
	j.err = err
	j.mu.Unlock()
	close(j.done)
}

// Runner executes enrichment jobs on a dedicated single worker slot so a
// large classification job never blocks the interactive turn. Jobs queue
// FIFO behind the slot; bounded concurrency is exactly one.
type Runner struct {
	classifier Classifier
	sheets     sheets.Service
	hub        *broadcast.Hub[models.EnrichmentEvent]
	config     Config
	logger     *observability.Logger
	metrics    *observability.Metrics

	queue chan *Job
	start sync.Once
}

// NewRunner creates a runner. Call Start to launch the worker.
func NewRunner(classifier Classifier, sheetSvc sheets.Service, hub *broadcast.Hub[models.EnrichmentEvent], config Config, logger *observability.Logger, metrics *observability.Metrics) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.RowPolicy == "" {
		config.RowPolicy = PolicyAbort
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 2
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Runner{
		classifier: classifier,
		sheets:     sheetSvc,
		hub:        hub,
		config:     config,
		logger:     logger,
		metrics:    metrics,
		queue:      make(chan *Job, config.QueueSize),
	}
}

// Start launches the single worker goroutine. The worker exits when ctx is
// canceled; a job already running completes first.
func (r *Runner) Start(ctx context.Context) {
	r.start.Do(func() {
		go r.work(ctx)
	})
}

// Submit enqueues a job and returns immediately. frame is snapshotted by the
// caller handing it over: the runner owns it from here on.
func (r *Runner) Submit(frame *dataset.Frame, instruction, column string, allowed []string, title, sessionID string) (*Job, error) {
	if frame == nil || frame.Len() == 0 {
		return nil, errors.New("enrichment needs a non-empty dataset")
	}
	if strings.TrimSpace(column) == "" {
		return nil, errors.New("target column name is required")
	}
	job := &Job{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Title:       title,
		Column:      column,
		Instruction: instruction,
		Allowed:     append([]string(nil), allowed...),
		status:      StatusQueued,
		frame:       frame,
		done:        make(chan struct{}),
	}
	select {
	case r.queue <- job:
		return job, nil
	default:
		return nil, fmt.Errorf("enrichment queue is full (%d pending)", r.config.QueueSize)
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			jobCtx := observability.WithJobID(observability.WithSessionID(ctx, job.SessionID), job.ID)
			r.runJob(jobCtx, job)
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.status = StatusRunning
	job.mu.Unlock()
	r.logger.Info(ctx, "enrichment job started", "rows", job.frame.Len(), "column", job.Column)

	frame := job.frame
	if !contains(frame.Columns(), job.Column) {
		frame = frame.WithColumn(job.Column, nil)
	}

	// Destination is created header-only; rows follow one at a time as they
	// are enriched.
	ref, err := r.sheets.Create(ctx, job.Title, frame.Columns())
	if err != nil {
		r.logger.Error(ctx, "enrichment destination creation failed", "error", err.Error())
		job.finish(StatusFailed, fmt.Errorf("create destination: %w", err))
		return
	}
	job.mu.Lock()
	job.ref = ref
	job.frame = frame
	job.mu.Unlock()

	total := frame.Len()
	for i := 0; i < total; i++ {
		value, err := r.classifyRow(ctx, job, frame, i)
		if err != nil {
			switch r.config.RowPolicy {
			case PolicySkip:
				r.countRow("skipped")
				r.logger.Warn(ctx, "row classification skipped", "row", i+1, "error", err.Error())
				value = ""
			default:
				r.countRow("failed")
				r.logger.Error(ctx, "enrichment job aborted", "row", i+1, "error", err.Error())
				job.finish(StatusFailed, fmt.Errorf("row %d: %w", i+1, err))
				return
			}
		} else {
			r.countRow("ok")
		}

		frame.Set(i, job.Column, value)
		if err := r.sheets.AppendRow(ctx, ref, rowStrings(frame, i)); err != nil {
			r.logger.Error(ctx, "destination append failed", "row", i+1, "error", err.Error())
			job.finish(StatusFailed, fmt.Errorf("append row %d: %w", i+1, err))
			return
		}

		if r.hub != nil {
			r.hub.Publish(models.EnrichmentEvent{
				SessionID: job.SessionID,
				JobID:     job.ID,
				Index:     i + 1,
				Total:     total,
				SheetURL:  ref.URL,
				Time:      time.Now(),
			})
		}
	}

	r.logger.Info(ctx, "enrichment job finished", "rows", total, "sheet_url", ref.URL)
	job.finish(StatusSucceeded, nil)
}

// classifyRow serializes row i and classifies it, honoring the retry policy.
func (r *Runner) classifyRow(ctx context.Context, job *Job, frame *dataset.Frame, i int) (string, error) {
	req := Request{
		RowContext:  rowContext(frame, i, job.Column),
		Instruction: job.Instruction,
		Column:      job.Column,
		Allowed:     job.Allowed,
	}

	attempts := 1
	if r.config.RowPolicy == PolicyRetry {
		attempts = r.config.RetryAttempts + 1
	}
	policy := backoff.DefaultPolicy()
	policy.Initial = r.config.RetryBackoff

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := backoff.SleepForAttempt(ctx, policy, attempt); err != nil {
				return "", err
			}
		}
		value, err := r.classifier.Classify(ctx, req)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (r *Runner) countRow(status string) {
	if r.metrics != nil {
		r.metrics.EnrichmentRows.WithLabelValues(status).Inc()
	}
}

// rowContext flattens a row into "col: value; col: value", excluding the
// target column being filled in.
func rowContext(frame *dataset.Frame, i int, targetColumn string) string {
	cols := frame.Columns()
	row := frame.Row(i)
	parts := make([]string, 0, len(cols))
	for j, col := range cols {
		if col == targetColumn {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", col, dataset.CellString(row[j])))
	}
	return strings.Join(parts, "; ")
}

func rowStrings(frame *dataset.Frame, i int) []string {
	row := frame.Row(i)
	out := make([]string, len(row))
	for j, v := range row {
		out[j] = dataset.CellString(v)
	}
	return out
}
