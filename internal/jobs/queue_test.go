package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callcenter-platform/internal/events"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueue_FIFOAndLifecycle(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	ctx := context.Background()

	a, err := q.Enqueue(ctx, Payload{RecordingPath: "a.m4a", PhoneNumber: "01011112222"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	b, _ := q.Enqueue(ctx, Payload{RecordingPath: "b.m4a", PhoneNumber: "01011112222"})
	if b <= a {
		t.Fatalf("expected monotonic ids, got %d then %d", a, b)
	}

	j, err := q.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if j.ID != a || j.State != StateProcessing {
		t.Fatalf("expected job %d processing, got %+v", a, j)
	}
	if err := q.Complete(a); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := q.Complete(a); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal job to stay terminal, got %v", err)
	}

	j, _ = q.ProcessNext(ctx)
	if j.ID != b {
		t.Fatalf("expected FIFO order, got %d", j.ID)
	}
	if err := q.Fail(b, errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ := q.Get(b)
	if got.State != StateFailed || got.Error != "boom" || got.FinishedAt == nil {
		t.Fatalf("unexpected failed job %+v", got)
	}
}

func TestQueue_RejectsEmptyRecording(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	if _, err := q.Enqueue(context.Background(), Payload{}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestQueue_ProgressIsMonotonic(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	ctx := context.Background()
	id, _ := q.Enqueue(ctx, Payload{RecordingPath: "a.m4a"})

	q.ReportProgress(id, 30)
	if j, _ := q.Get(id); j.Progress != 0 {
		t.Fatalf("queued jobs do not report progress, got %d", j.Progress)
	}

	_, _ = q.ProcessNext(ctx)
	q.ReportProgress(id, 40)
	q.ReportProgress(id, 20)
	q.ReportProgress(id, 250)
	j, _ := q.Get(id)
	if j.Progress != 100 {
		t.Fatalf("expected clamped monotonic progress 100, got %d", j.Progress)
	}
}

func TestQueue_ConcurrencyOneSerializesJobs(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := q.Enqueue(ctx, Payload{RecordingPath: "a.m4a"})
	b, _ := q.Enqueue(ctx, Payload{RecordingPath: "b.m4a"})

	var mu sync.Mutex
	var trace []string
	var aStateWhenBStarted State

	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, 1, func(ctx context.Context, j Job) error {
			mu.Lock()
			trace = append(trace, "start")
			if j.ID == b {
				aj, _ := q.Get(a)
				aStateWhenBStarted = aj.State
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			trace = append(trace, "end")
			mu.Unlock()
			if j.ID == a {
				return errors.New("bad recording")
			}
			return nil
		})
	}()

	waitFor(t, func() bool {
		j, _ := q.Get(b)
		return j.State.Terminal()
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"start", "end", "start", "end"}
	if len(trace) != len(want) {
		t.Fatalf("unexpected trace %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("jobs overlapped: %v", trace)
		}
	}
	if !aStateWhenBStarted.Terminal() {
		t.Fatalf("B started while A was %q", aStateWhenBStarted)
	}
	if aj, _ := q.Get(a); aj.State != StateFailed {
		t.Fatalf("expected A failed without retry, got %q", aj.State)
	}
}

func TestQueue_FailedJobIsNotRetried(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, _ := q.Enqueue(ctx, Payload{RecordingPath: "a.m4a"})
	var mu sync.Mutex
	calls := 0
	go func() {
		_ = q.Run(ctx, 1, func(ctx context.Context, j Job) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return errors.New("upstream down")
		})
	}()

	waitFor(t, func() bool {
		j, _ := q.Get(id)
		return j.State == StateFailed
	})
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

func TestQueue_PanicFailsJob(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, _ := q.Enqueue(ctx, Payload{RecordingPath: "a.m4a"})
	go func() {
		_ = q.Run(ctx, 1, func(ctx context.Context, j Job) error { panic("nil map") })
	}()
	waitFor(t, func() bool {
		j, _ := q.Get(id)
		return j.State == StateFailed
	})
}

func TestQueue_PublishesLifecycleEvents(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(NewMemoryTransport(), Options{Events: rec})
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, Payload{RecordingPath: "a.m4a", CallID: 4})
	_, _ = q.ProcessNext(ctx)
	q.ReportProgress(id, 50)
	_ = q.Complete(id)

	want := []string{events.TypeJobQueued, events.TypeJobStarted, events.TypeJobProgress, events.TypeJobCompleted}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestMemoryTransport_CloseUnblocksReceivers(t *testing.T) {
	tr := NewMemoryTransport()
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := tr.Receive(context.Background())
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	_ = tr.Close()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("expected ErrClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("receiver still blocked after close")
		}
	}
	if err := tr.Publish(context.Background(), Message{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected publish after close to fail, got %v", err)
	}
}

func TestQueue_MessageFromEarlierProcessKeepsItsPayload(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	// left on a durable queue by a process whose ids started at 1
	if err := tr.Publish(ctx, Message{JobID: 1, Token: "earlier", Payload: Payload{RecordingPath: "old.m4a"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	q := NewQueue(tr, Options{})
	q.nextID = 0
	id, err := q.Enqueue(ctx, Payload{RecordingPath: "new.m4a"})
	if err != nil || id != 1 {
		t.Fatalf("expected colliding id 1, got %d %v", id, err)
	}

	first, err := q.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Payload.RecordingPath != "old.m4a" || first.ID == id {
		t.Fatalf("earlier message must run as its own job, got %+v", first)
	}
	second, err := q.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.ID != id || second.Payload.RecordingPath != "new.m4a" {
		t.Fatalf("expected job %d with new.m4a, got %+v", id, second)
	}

	if err := q.Complete(first.ID); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	if err := q.Complete(second.ID); err != nil {
		t.Fatalf("complete second: %v", err)
	}
}

func TestQueue_IDsDoNotRestartAtOne(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	id, err := q.Enqueue(context.Background(), Payload{RecordingPath: "a.m4a"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id <= 1 {
		t.Fatalf("expected clock-seeded id, got %d", id)
	}
}

func TestQueue_CancelDrainsRunningJob(t *testing.T) {
	q := NewQueue(NewMemoryTransport(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, _ := q.Enqueue(ctx, Payload{RecordingPath: "a.m4a"})
	started := make(chan struct{})
	release := make(chan struct{})
	seen := make(chan error, 1)
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, 1, func(jctx context.Context, j Job) error {
			close(started)
			<-release
			seen <- jctx.Err()
			return nil
		})
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("job never started")
	}
	cancel()

	select {
	case <-done:
		t.Fatalf("Run returned while a job was running")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	if err := <-seen; err != nil {
		t.Fatalf("running job saw cancellation: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after the job finished")
	}
	if j, _ := q.Get(id); j.State != StateCompleted {
		t.Fatalf("expected completed, got %q", j.State)
	}
}
