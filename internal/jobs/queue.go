package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"callcenter-platform/internal/events"
	"callcenter-platform/pkg/logger"
)

var (
	ErrNotFound          = errors.New("jobs: not found")
	ErrInvalidPayload    = errors.New("jobs: recording path is required")
	ErrInvalidTransition = errors.New("jobs: invalid state transition")
)

// DefaultConcurrency keeps analysis fully serialized; the transcription and
// LLM services are single-capacity.
const DefaultConcurrency = 1

// finishedRetention bounds how many terminal jobs stay queryable.
const finishedRetention = 1000

// Observer is notified of lifecycle transitions (metrics).
type Observer interface {
	Enqueued()
	Started()
	Finished(state string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) Enqueued()                      {}
func (nopObserver) Started()                       {}
func (nopObserver) Finished(string, time.Duration) {}

// Handler runs one job. A nil error completes the job, anything else fails it.
type Handler func(ctx context.Context, job Job) error

type Options struct {
	Observer Observer
	Events   events.Publisher
}

// Queue owns job state. The transport only moves messages; every state
// transition goes through the Queue.
type Queue struct {
	transport Transport
	observer  Observer
	events    events.Publisher

	mu       sync.Mutex
	nextID   int64
	jobs     map[int64]*Job
	inflight map[int64]Delivery
	finished []int64

	Now func() time.Time
}

func NewQueue(t Transport, opts Options) *Queue {
	q := &Queue{
		transport: t,
		observer:  opts.Observer,
		events:    opts.Events,
		jobs:      map[int64]*Job{},
		inflight:  map[int64]Delivery{},
		Now:       time.Now,
	}
	// ids start from the clock so a restarted process does not reuse them
	q.nextID = time.Now().UnixMilli()
	if q.observer == nil {
		q.observer = nopObserver{}
	}
	if q.events == nil {
		q.events = events.Nop{}
	}
	return q
}

func (q *Queue) Enqueue(ctx context.Context, p Payload) (int64, error) {
	if p.RecordingPath == "" {
		return 0, ErrInvalidPayload
	}

	q.mu.Lock()
	q.nextID++
	id := q.nextID
	token := uuid.NewString()
	q.jobs[id] = &Job{ID: id, Payload: p, State: StateQueued, CreatedAt: q.Now().UTC(), token: token}
	q.mu.Unlock()

	if err := q.transport.Publish(ctx, Message{JobID: id, Token: token, Payload: p}); err != nil {
		q.mu.Lock()
		delete(q.jobs, id)
		q.mu.Unlock()
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	q.observer.Enqueued()
	q.events.Publish(events.Event{Type: events.TypeJobQueued, JobID: id, CallID: p.CallID, Status: string(StateQueued)})
	logger.From(ctx).Info("job queued", "job_id", id, "call_id", p.CallID)
	return id, nil
}

// ProcessNext blocks for the next message and moves its job to processing.
func (q *Queue) ProcessNext(ctx context.Context) (Job, error) {
	d, err := q.transport.Receive(ctx)
	if err != nil {
		return Job{}, err
	}

	now := q.Now().UTC()
	q.mu.Lock()
	j, ok := q.jobs[d.JobID]
	if !ok || d.Token == "" || j.token != d.Token || j.State != StateQueued {
		// published by an earlier process; its id may be taken here
		q.nextID++
		j = &Job{ID: q.nextID, CreatedAt: now, token: d.Token}
		q.jobs[j.ID] = j
	}
	j.Payload = d.Payload
	j.State = StateProcessing
	j.Progress = 0
	j.StartedAt = &now
	q.inflight[j.ID] = d
	out := *j
	q.mu.Unlock()

	q.observer.Started()
	q.events.Publish(events.Event{Type: events.TypeJobStarted, JobID: out.ID, CallID: out.Payload.CallID, Status: string(StateProcessing)})
	return out, nil
}

// ReportProgress records advisory progress. Values are clamped to [0,100] and
// never move backwards within a run.
func (q *Queue) ReportProgress(id int64, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.State != StateProcessing || pct <= j.Progress {
		q.mu.Unlock()
		return
	}
	j.Progress = pct
	callID := j.Payload.CallID
	q.mu.Unlock()

	q.events.Publish(events.Event{Type: events.TypeJobProgress, JobID: id, CallID: callID, Progress: pct})
}

func (q *Queue) Complete(id int64) error {
	return q.finish(id, StateCompleted, nil)
}

func (q *Queue) Fail(id int64, cause error) error {
	return q.finish(id, StateFailed, cause)
}

func (q *Queue) finish(id int64, state State, cause error) error {
	now := q.Now().UTC()
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	if j.State != StateProcessing {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, state)
	}
	j.State = state
	j.FinishedAt = &now
	if state == StateCompleted {
		j.Progress = 100
	}
	if cause != nil {
		j.Error = cause.Error()
	}
	var took time.Duration
	if j.StartedAt != nil {
		took = now.Sub(*j.StartedAt)
	}
	d := q.inflight[id]
	delete(q.inflight, id)
	q.retain(id)
	callID := j.Payload.CallID
	q.mu.Unlock()

	q.observer.Finished(string(state), took)
	evType := events.TypeJobCompleted
	if state == StateFailed {
		evType = events.TypeJobFailed
	}
	q.events.Publish(events.Event{Type: evType, JobID: id, CallID: callID, Status: string(state)})

	// acked only now, so a broker never releases the next message early
	if d.Ack != nil {
		if err := d.Ack(); err != nil {
			return fmt.Errorf("ack job %d: %w", id, err)
		}
	}
	return nil
}

// SetCallID records the call a worker resolved for a job.
func (q *Queue) SetCallID(id, callID int64) {
	q.mu.Lock()
	if j, ok := q.jobs[id]; ok {
		j.Payload.CallID = callID
	}
	q.mu.Unlock()
}

func (q *Queue) Get(id int64) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// retain drops the oldest terminal jobs beyond the retention window.
// Caller holds q.mu.
func (q *Queue) retain(id int64) {
	q.finished = append(q.finished, id)
	for len(q.finished) > finishedRetention {
		delete(q.jobs, q.finished[0])
		q.finished = q.finished[1:]
	}
}

// Run starts concurrency workers and blocks until ctx is done or the
// transport closes. A worker asks for its next job only after the current one
// is terminal. Cancelling ctx stops dequeuing but never a running job: Run
// returns once in-flight jobs finish. Failed jobs are not retried.
func (q *Queue) Run(ctx context.Context, concurrency int, h Handler) error {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	log := logger.From(ctx)
	log.Info("job workers started", "concurrency", concurrency)

	var wg sync.WaitGroup
	errs := make(chan error, concurrency)
	for i := 1; i <= concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				job, err := q.ProcessNext(ctx)
				if err != nil {
					if ctx.Err() == nil && !errors.Is(err, ErrClosed) {
						errs <- err
					}
					return
				}
				q.runOne(ctx, worker, job, h)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	log.Info("job workers stopped")
	return <-errs
}

func (q *Queue) runOne(ctx context.Context, worker int, job Job, h Handler) {
	log := logger.From(ctx).With("job_id", job.ID, "worker", worker)
	jctx := logger.With(context.WithoutCancel(ctx), log)

	err := safeHandle(jctx, job, h)
	if err != nil {
		log.Error("job failed", "err", err)
		if ferr := q.Fail(job.ID, err); ferr != nil {
			log.Error("mark job failed", "err", ferr)
		}
		return
	}
	log.Info("job completed")
	if cerr := q.Complete(job.ID); cerr != nil {
		log.Error("mark job completed", "err", cerr)
	}
}

func safeHandle(ctx context.Context, job Job, h Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %d panicked: %v", job.ID, p)
		}
	}()
	return h(ctx, job)
}
