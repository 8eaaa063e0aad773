package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service records operator actions. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogReanalyze records an operator re-queueing a call for analysis.
func (s *Service) LogReanalyze(ctx context.Context, actor, ip string, callID, jobID int64) error {
	if callID == 0 {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		Type:      EventTypeReanalyze,
		Actor:     actor,
		IPAddress: ip,
		CallID:    callID,
		JobID:     jobID,
		Message:   fmt.Sprintf("call %d re-queued as job %d", callID, jobID),
	})
}
