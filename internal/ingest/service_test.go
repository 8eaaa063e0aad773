package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/jobs"
	"callcenter-platform/pkg/storage"
)

type harness struct {
	svc    *Service
	calls  *calls.MemoryRepo
	agents *agents.MemoryRepo
	queue  *jobs.Queue
	tr     *countingTransport
	audit  *audit.MemoryRepo
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, wrap func(calls.Repository) calls.Repository) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	h := &harness{
		calls:  calls.NewMemoryRepo(),
		agents: agents.NewMemoryRepo(),
		tr:     &countingTransport{MemoryTransport: jobs.NewMemoryTransport()},
		audit:  audit.NewMemoryRepo(),
		dir:    dir,
	}
	h.queue = jobs.NewQueue(h.tr, jobs.Options{})
	var repo calls.Repository = h.calls
	if wrap != nil {
		repo = wrap(repo)
	}
	h.svc = NewService(Deps{
		Calls:      repo,
		Agents:     h.agents,
		Recordings: store,
		Queue:      h.queue,
		Audit:      audit.NewService(h.audit),
	})
	return h
}

// countingTransport counts messages handed to the queue transport.
type countingTransport struct {
	*jobs.MemoryTransport
	mu sync.Mutex
	n  int
}

func (c *countingTransport) Publish(ctx context.Context, m jobs.Message) error {
	if err := c.MemoryTransport.Publish(ctx, m); err != nil {
		return err
	}
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func (c *countingTransport) published() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (h *harness) files(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(h.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return n
}

func upload(number, userPhone string, start *time.Time) UploadRequest {
	return UploadRequest{
		File:            strings.NewReader("audio-bytes"),
		Filename:        "call.m4a",
		Number:          number,
		UserName:        "Kim",
		UserPhone:       userPhone,
		CallType:        "INCOMING",
		DurationSeconds: 42,
		CallStartTime:   start,
	}
}

func TestUpload_SameDedupKeyTwiceIsDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("KST", 9*3600))

	first, err := h.svc.Upload(ctx, upload("010-9999-8888", "010-1111-2222", &start))
	if err != nil || !first.Success || first.Duplicate {
		t.Fatalf("first upload: %+v %v", first, err)
	}
	utc := start.UTC()
	second, err := h.svc.Upload(ctx, upload("010-9999-8888", "+82 10-1111-2222", &utc))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if !second.Success || !second.Duplicate || second.CallID != first.CallID {
		t.Fatalf("expected duplicate of call %d, got %+v", first.CallID, second)
	}

	if n := len(h.calls.Calls()); n != 1 {
		t.Fatalf("expected one call record, got %d", n)
	}
	if n := h.tr.published(); n != 1 {
		t.Fatalf("expected one job, got %d", n)
	}
	if n := h.files(t); n != 1 {
		t.Fatalf("duplicate recording must not be retained, found %d files", n)
	}
}

func TestUpload_MergesIntoMostRecentStub(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	older, _ := h.svc.Webhook(ctx, WebhookRequest{Number: "01055556666", Status: "ringing", Direction: "inbound"})
	h.calls.Now = func() time.Time { return time.Now().Add(time.Minute) }
	newer, _ := h.svc.Webhook(ctx, WebhookRequest{Number: "+82-10-5555-6666", Status: "ringing", Direction: "inbound"})

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res, err := h.svc.Upload(ctx, upload("010-5555-6666", "01011112222", &start))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.CallID != newer.ID {
		t.Fatalf("expected merge into newest stub %d, got %d", newer.ID, res.CallID)
	}
	if n := len(h.calls.Calls()); n != 2 {
		t.Fatalf("expected no new record, got %d calls", n)
	}

	merged, _ := h.calls.Get(ctx, newer.ID)
	if !merged.HasRecording() || merged.DurationSeconds != 42 || merged.UserPhone != "01011112222" {
		t.Fatalf("stub not filled: %+v", merged)
	}
	if untouched, _ := h.calls.Get(ctx, older.ID); untouched.HasRecording() {
		t.Fatalf("older stub must stay a stub")
	}

	j, ok := h.queue.Get(res.JobID)
	if !ok || j.Payload.CallID != newer.ID {
		t.Fatalf("expected job to carry the resolved call, got %+v", j)
	}
}

func TestUpload_WithoutStartTimeIsNeverDeduplicated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.svc.Upload(ctx, upload("01099998888", "01011112222", nil))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := h.svc.Upload(ctx, upload("01099998888", "01011112222", nil))
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	// known precision limit: identical uploads without a start time both land
	if a.Duplicate || b.Duplicate {
		t.Fatalf("uploads without start time must not be flagged duplicate")
	}
	if a.CallID == b.CallID {
		t.Fatalf("expected two records, both got %d", a.CallID)
	}
	if n := h.tr.published(); n != 2 {
		t.Fatalf("expected two jobs, got %d", n)
	}
}

func TestUpload_WithoutStartTimeStillMergesStub(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stub, _ := h.svc.Webhook(ctx, WebhookRequest{Number: "01099998888", Status: "ended"})
	res, err := h.svc.Upload(ctx, upload("01099998888", "01011112222", nil))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Duplicate || res.CallID != stub.ID {
		t.Fatalf("expected merge into stub %d, got %+v", stub.ID, res)
	}
}

func TestUpload_CopiesTeamAtWriteTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	team := "Sales A"
	_ = h.agents.Upsert(ctx, agents.Registration{Phone: "01011112222", TeamName: &team})

	res, err := h.svc.Upload(ctx, upload("01099998888", "010-1111-2222", nil))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	moved := "Sales B"
	_ = h.agents.Upsert(ctx, agents.Registration{Phone: "01011112222", TeamName: &moved})

	c, _ := h.calls.Get(ctx, res.CallID)
	if c.TeamName == nil || *c.TeamName != "Sales A" {
		t.Fatalf("expected team captured at upload, got %v", c.TeamName)
	}
	if c.Direction != calls.DirectionInbound {
		t.Fatalf("expected inbound, got %q", c.Direction)
	}
}

func TestUpload_ValidationHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []UploadRequest{
		upload("", "01011112222", nil),
		{Number: "01099998888"},
		func() UploadRequest { r := upload("01099998888", "", nil); r.DurationSeconds = -1; return r }(),
	}
	for i, req := range cases {
		if _, err := h.svc.Upload(ctx, req); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
	if len(h.calls.Calls()) != 0 || h.tr.published() != 0 || h.files(t) != 0 {
		t.Fatalf("validation failures must not write anything")
	}
}

// blindRepo hides existing dedup hits, as when two identical uploads race.
type blindRepo struct{ calls.Repository }

func (blindRepo) FindByDedupKey(ctx context.Context, userPhone string, start time.Time) (calls.Call, bool, error) {
	return calls.Call{}, false, nil
}

func TestUpload_RaceOnDedupKeyDiscardsRecording(t *testing.T) {
	h := newHarnessWith(t, func(r calls.Repository) calls.Repository { return blindRepo{r} })
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	if _, err := h.svc.Upload(ctx, upload("01099998888", "01011112222", &start)); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := h.svc.Upload(ctx, upload("01099998888", "01011112222", &start))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("expected duplicate from the unique key, got %+v", res)
	}
	if h.files(t) != 1 || h.tr.published() != 1 {
		t.Fatalf("losing upload must leave no file and no job")
	}
}

type failingQueue struct{}

func (failingQueue) Enqueue(ctx context.Context, p jobs.Payload) (int64, error) {
	return 0, errors.New("broker down")
}

func TestUpload_EnqueueFailureMarksAnalysisFailed(t *testing.T) {
	h := newHarness(t)
	h.svc.d.Queue = failingQueue{}

	res, err := h.svc.Upload(context.Background(), upload("01099998888", "01011112222", nil))
	if err != nil || !res.Success {
		t.Fatalf("upload must still succeed, got %+v %v", res, err)
	}
	c, _ := h.calls.Get(context.Background(), res.CallID)
	if c.AnalysisStatus != calls.AnalysisFailed {
		t.Fatalf("expected failed analysis status, got %q", c.AnalysisStatus)
	}
}

func TestWebhook_CreatesStub(t *testing.T) {
	h := newHarness(t)
	c, err := h.svc.Webhook(context.Background(), WebhookRequest{Number: "+82 10 5555 6666", Status: "ringing", Direction: "OUTGOING"})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if c.PhoneNumber != "01055556666" || c.HasRecording() || c.Direction != calls.DirectionOutbound {
		t.Fatalf("unexpected stub %+v", c)
	}
	if _, err := h.svc.Webhook(context.Background(), WebhookRequest{Status: "ringing"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestReanalyze(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stub, _ := h.svc.Webhook(ctx, WebhookRequest{Number: "01055556666", Status: "ended"})
	if _, err := h.svc.Reanalyze(ctx, stub.ID, "ops", "1.2.3.4"); !errors.Is(err, ErrNoRecording) {
		t.Fatalf("expected ErrNoRecording, got %v", err)
	}
	if _, err := h.svc.Reanalyze(ctx, 999, "ops", ""); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	res, _ := h.svc.Upload(ctx, upload("01099998888", "01011112222", nil))
	failed := calls.AnalysisFailed
	_ = h.calls.Update(ctx, res.CallID, calls.Patch{AnalysisStatus: &failed})

	jobID, err := h.svc.Reanalyze(ctx, res.CallID, "ops", "1.2.3.4")
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if jobID == res.JobID {
		t.Fatalf("expected a new job")
	}
	c, _ := h.calls.Get(ctx, res.CallID)
	if c.AnalysisStatus != calls.AnalysisPending {
		t.Fatalf("expected pending, got %q", c.AnalysisStatus)
	}
	evs := h.audit.Events()
	if len(evs) != 1 || evs[0].CallID != res.CallID || evs[0].JobID != jobID {
		t.Fatalf("expected audit record, got %+v", evs)
	}
}
