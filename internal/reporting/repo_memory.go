package reporting

import (
	"context"
	"sync"
	"time"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/calls"
)

// MemoryRepo applies the same read-time team resolution as GormRepo over
// in-memory rows.
type MemoryRepo struct {
	mu sync.Mutex

	Calls  []calls.Call
	Agents []agents.Registration
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListRecordedCalls(ctx context.Context, from, to time.Time) ([]CallRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	teams := map[string]*string{}
	for _, a := range r.Agents {
		teams[a.Phone] = a.TeamName
	}

	out := make([]CallRow, 0)
	for _, c := range r.Calls {
		if !c.HasRecording() {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		team := c.TeamName
		if team == nil {
			team = teams[c.UserPhone]
		}
		out = append(out, CallRow{
			ID:              c.ID,
			TeamName:        team,
			UserPhone:       c.UserPhone,
			DurationSeconds: c.DurationSeconds,
			AnalysisStatus:  string(c.AnalysisStatus),
			Sentiment:       c.Sentiment,
			SentimentScore:  c.SentimentScore,
		})
	}
	return out, nil
}
