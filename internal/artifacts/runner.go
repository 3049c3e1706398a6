// Package artifacts runs the background persistence of a user action: it
// uploads the photo and rendered documents to blob storage and then patches
// the owning record with their URLs. Failures are logged and audited, never
// returned to the user-facing call that already succeeded.
package artifacts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"frontdesk/internal/audit"
	"frontdesk/internal/events"
)

// BlobStore is the upload boundary.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Patcher writes stored URLs onto the target record.
type Patcher interface {
	Patch(ctx context.Context, target Target, urls URLs) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type EventPublisher interface {
	Publish(e events.Event)
}

const defaultJobTimeout = 2 * time.Minute

// Runner executes jobs on their own goroutines and tracks them until they
// finish so callers can join them.
type Runner struct {
	blobs   BlobStore
	patcher Patcher
	logger  *slog.Logger
	auditor AuditPublisher
	bus     EventPublisher
	metrics *Metrics
	tracer  trace.Tracer
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string][]*Task
	wg       sync.WaitGroup
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(r *Runner) { r.auditor = p }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(r *Runner) { r.bus = p }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithJobTimeout bounds one job, uploads and patch together.
func WithJobTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func New(blobs BlobStore, patcher Patcher, opts ...Option) (*Runner, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if patcher == nil {
		return nil, errors.New("patcher is required")
	}
	r := &Runner{
		blobs:    blobs,
		patcher:  patcher,
		logger:   slog.Default(),
		tracer:   otel.Tracer("frontdesk/artifacts"),
		timeout:  defaultJobTimeout,
		inflight: make(map[string][]*Task),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Task is a running job.
type Task struct {
	target Target
	done   chan struct{}
	result Result
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Start launches job and returns immediately. The job keeps the values of
// ctx (request id, actor) but not its cancellation.
func (r *Runner) Start(ctx context.Context, job Job) *Task {
	task := &Task{target: job.Target, done: make(chan struct{})}
	key := job.Target.Key()

	r.mu.Lock()
	r.inflight[key] = append(r.inflight[key], task)
	r.mu.Unlock()
	r.wg.Add(1)
	if r.metrics != nil {
		r.metrics.InFlight.Inc()
	}

	base := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		defer r.finish(key, task)
		jobCtx, cancel := context.WithTimeout(base, r.timeout)
		defer cancel()
		task.result = r.run(jobCtx, job)
	}()
	return task
}

func (r *Runner) finish(key string, task *Task) {
	r.mu.Lock()
	tasks := r.inflight[key]
	for i, t := range tasks {
		if t == task {
			tasks = append(tasks[:i], tasks[i+1:]...)
			break
		}
	}
	if len(tasks) == 0 {
		delete(r.inflight, key)
	} else {
		r.inflight[key] = tasks
	}
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.InFlight.Dec()
	}
	close(task.done)
}

func (r *Runner) run(ctx context.Context, job Job) Result {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "artifacts.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("artifacts.target_kind", string(job.Target.Kind)),
		attribute.String("artifacts.target_id", job.Target.ID),
		attribute.Int("artifacts.uploads", len(job.Uploads)),
	)

	var (
		mu     sync.Mutex
		result = Result{URLs: make(URLs, len(job.Uploads))}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, up := range job.Uploads {
		if len(up.Data) == 0 {
			continue
		}
		g.Go(func() error {
			url, err := r.blobs.Put(gctx, up.Path, up.Data, up.ContentType)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, up.Slot)
				r.uploadFailed(ctx, job, up, err)
				return nil
			}
			result.URLs[up.Slot] = url
			if r.metrics != nil {
				r.metrics.IncrementUpload(up.Slot, "ok")
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(result.URLs) > 0 {
		if err := r.patcher.Patch(ctx, job.Target, result.URLs); err != nil {
			result.PatchErr = err
			span.RecordError(err)
			r.logger.ErrorContext(ctx, "failed to patch artifact urls",
				"target_kind", string(job.Target.Kind),
				"target_id", job.Target.ID,
				"error", err,
			)
			r.emitFailure(ctx, job, "patch", err)
		}
	}

	if r.metrics != nil {
		r.metrics.ObserveJob(start, result.Complete())
	}
	r.logger.InfoContext(ctx, "artifact job finished",
		"target_kind", string(job.Target.Kind),
		"target_id", job.Target.ID,
		"stored", len(result.URLs),
		"failed", len(result.Failed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

func (r *Runner) uploadFailed(ctx context.Context, job Job, up Upload, err error) {
	if r.metrics != nil {
		r.metrics.IncrementUpload(up.Slot, "error")
	}
	r.logger.ErrorContext(ctx, "artifact upload failed",
		"slot", string(up.Slot),
		"target_kind", string(job.Target.Kind),
		"target_id", job.Target.ID,
		"path", up.Path,
		"error", err,
	)
	r.emitFailure(ctx, job, string(up.Slot), err)
}

func (r *Runner) emitFailure(ctx context.Context, job Job, slot string, cause error) {
	if r.auditor != nil {
		event := audit.Event{
			Timestamp: time.Now(),
			Action:    audit.ActionArtifactUploadFailed,
			Subject:   job.Target.Key(),
			Reason:    slot + ": " + cause.Error(),
		}
		if err := r.auditor.Emit(ctx, event); err != nil {
			r.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	if r.bus != nil {
		r.bus.Publish(events.Event{
			Topic:         events.TopicArtifactFailed,
			SubjectID:     job.Target.Key(),
			CondominiumID: job.CondominiumID,
			Detail:        slot,
			At:            time.Now(),
		})
	}
}

// Await joins every in-flight task for key. It returns at once when none
// is running.
func (r *Runner) Await(ctx context.Context, key string) error {
	r.mu.Lock()
	tasks := append([]*Task(nil), r.inflight[key]...)
	r.mu.Unlock()
	for _, t := range tasks {
		if _, err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Pending reports whether a task for key is still running.
func (r *Runner) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight[key]) > 0
}

// Drain waits for every running task, or until ctx ends.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
