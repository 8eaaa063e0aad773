package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// It mirrors the SQL semantics of GormRepo, including the partial dedup index.
type MemoryRepo struct {
	mu sync.Mutex

	calls   []Call
	results []AnalysisResult
	nextID  int64
	nextRes int64

	Now func() time.Time
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{Now: time.Now} }

// Calls returns a snapshot of every stored call.
func (r *MemoryRepo) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(id); i >= 0 {
		return r.calls[i], nil
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) Create(ctx context.Context, c *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.UserPhone != "" && c.CallStartTime != nil {
		for _, ex := range r.calls {
			if ex.UserPhone == c.UserPhone && ex.CallStartTime != nil && ex.CallStartTime.Equal(*c.CallStartTime) {
				return ErrDuplicate
			}
		}
	}
	r.nextID++
	c.ID = r.nextID
	now := r.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.AnalysisStatus == "" {
		c.AnalysisStatus = AnalysisPending
	}
	r.calls = append(r.calls, *c)
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, id int64, p Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return ErrNotFound
	}
	r.apply(i, p)
	return nil
}

func (r *MemoryRepo) ClaimStub(ctx context.Context, id int64, p Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 || r.calls[i].HasRecording() {
		return ErrNotFound
	}
	r.apply(i, p)
	return nil
}

func (r *MemoryRepo) FindByDedupKey(ctx context.Context, userPhone string, start time.Time) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		c := r.calls[i]
		if c.UserPhone == userPhone && c.CallStartTime != nil && c.CallStartTime.Equal(start) {
			return c, true, nil
		}
	}
	return Call{}, false, nil
}

func (r *MemoryRepo) FindLatestStub(ctx context.Context, phoneNumber string) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *Call
	for i := range r.calls {
		c := &r.calls[i]
		if c.PhoneNumber != phoneNumber || c.HasRecording() {
			continue
		}
		if best == nil || !c.CreatedAt.Before(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return Call{}, false, nil
	}
	return *best, true, nil
}

func (r *MemoryRepo) FindByRecording(ctx context.Context, phoneNumber, recordingPath string) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		c := r.calls[i]
		if c.PhoneNumber == phoneNumber && c.RecordingPath != nil && *c.RecordingPath == recordingPath {
			return c, true, nil
		}
	}
	return Call{}, false, nil
}

func (r *MemoryRepo) SaveAnalysis(ctx context.Context, callID int64, res *AnalysisResult, p Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(callID)
	if i < 0 {
		return ErrNotFound
	}
	r.nextRes++
	res.ID = r.nextRes
	res.CallID = callID
	if res.CreatedAt.IsZero() {
		res.CreatedAt = r.now()
	}
	r.results = append(r.results, *res)
	r.apply(i, p)
	return nil
}

func (r *MemoryRepo) LatestAnalysis(ctx context.Context, callID int64) (AnalysisResult, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].CallID == callID {
			return r.results[i], true, nil
		}
	}
	return AnalysisResult{}, false, nil
}

func (r *MemoryRepo) CountRecordedSince(ctx context.Context, since time.Time) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, c := range r.calls {
		if !c.HasRecording() || c.CreatedAt.Before(since) {
			continue
		}
		out[c.UserPhone]++
	}
	return out, nil
}

func (r *MemoryRepo) index(id int64) int {
	for i := range r.calls {
		if r.calls[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *MemoryRepo) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *MemoryRepo) apply(i int, p Patch) {
	c := &r.calls[i]
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Direction != nil {
		c.Direction = *p.Direction
	}
	if p.RecordingPath != nil {
		v := *p.RecordingPath
		c.RecordingPath = &v
	}
	if p.DurationSeconds != nil {
		c.DurationSeconds = *p.DurationSeconds
	}
	if p.UserName != nil {
		c.UserName = *p.UserName
	}
	if p.UserPhone != nil {
		c.UserPhone = *p.UserPhone
	}
	if p.CustomerName != nil {
		v := *p.CustomerName
		c.CustomerName = &v
	}
	if p.TeamName != nil {
		v := *p.TeamName
		c.TeamName = &v
	}
	if p.CallStartTime != nil {
		v := *p.CallStartTime
		c.CallStartTime = &v
	}
	if p.AnalysisStatus != nil {
		c.AnalysisStatus = *p.AnalysisStatus
	}
	if p.Summary != nil {
		v := *p.Summary
		c.Summary = &v
	}
	if p.Sentiment != nil {
		v := *p.Sentiment
		c.Sentiment = &v
	}
	if p.SentimentScore != nil {
		v := *p.SentimentScore
		c.SentimentScore = &v
	}
	if p.Outcome != nil {
		v := *p.Outcome
		c.Outcome = &v
	}
	c.UpdatedAt = r.now()
}
