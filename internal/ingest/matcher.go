package ingest

import (
	"context"
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/phone"
)

type Decision string

const (
	DecisionCreate    Decision = "create"
	DecisionUpdate    Decision = "update"
	DecisionDuplicate Decision = "duplicate"
)

// Resolution is the matcher's verdict for one upload. TargetID is set for
// DecisionUpdate (the stub) and DecisionDuplicate (the existing call).
type Resolution struct {
	Decision Decision
	TargetID int64
}

// Matcher decides whether an upload is new, fills a webhook stub, or repeats
// an upload already stored.
type Matcher struct {
	calls calls.Repository
}

func NewMatcher(repo calls.Repository) *Matcher {
	return &Matcher{calls: repo}
}

// Resolve applies, in order:
//  1. exact dedup on (uploader phone, start time), only when both are present;
//  2. merge into the most recently created stub for the counterparty;
//  3. create.
//
// Uploads without a start time are never reported as duplicates.
func (m *Matcher) Resolve(ctx context.Context, uploaderPhone string, start *time.Time, counterparty string) (Resolution, error) {
	up := phone.Normalize(uploaderPhone)
	if up != "" && start != nil {
		c, ok, err := m.calls.FindByDedupKey(ctx, up, DedupTime(*start))
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{Decision: DecisionDuplicate, TargetID: c.ID}, nil
		}
	}

	if cp := phone.Normalize(counterparty); cp != "" {
		stub, ok, err := m.calls.FindLatestStub(ctx, cp)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{Decision: DecisionUpdate, TargetID: stub.ID}, nil
		}
	}
	return Resolution{Decision: DecisionCreate}, nil
}

// DedupTime is the canonical form of a start time in the dedup key.
func DedupTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
