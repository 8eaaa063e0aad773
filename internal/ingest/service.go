package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/events"
	"callcenter-platform/internal/jobs"
	"callcenter-platform/internal/phone"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/storage"
)

var (
	ErrValidation  = errors.New("ingest: invalid request")
	ErrNoRecording = errors.New("ingest: call has no recording")
)

// Enqueuer is the slice of the job queue ingestion needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, p jobs.Payload) (int64, error)
}

type UploadRequest struct {
	File        io.Reader
	Filename    string
	Size        int64
	ContentType string

	Number          string
	UserName        string
	UserPhone       string
	CallType        string
	DurationSeconds int
	ContactName     string
	CallStartTime   *time.Time
}

type UploadResult struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Filename  string `json:"filename"`
	CallID    int64  `json:"callId,omitempty"`
	JobID     int64  `json:"jobId,omitempty"`
}

type WebhookRequest struct {
	Number    string `json:"number"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

type Deps struct {
	Calls      calls.Repository
	Agents     agents.Repository
	Recordings storage.RecordingStore
	Queue      Enqueuer
	Events     events.Publisher
	Audit      *audit.Service
}

type Service struct {
	d       Deps
	matcher *Matcher

	Now func() time.Time
}

func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &Service{d: d, matcher: NewMatcher(d.Calls), Now: time.Now}
}

// Upload stores a recording against a call record and queues its analysis.
// A duplicate is a successful response that leaves nothing behind.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	number := phone.Normalize(req.Number)
	if req.File == nil {
		return UploadResult{}, fmt.Errorf("%w: file is required", ErrValidation)
	}
	if number == "" {
		return UploadResult{}, fmt.Errorf("%w: number is required", ErrValidation)
	}
	if req.DurationSeconds < 0 {
		return UploadResult{}, fmt.Errorf("%w: duration must not be negative", ErrValidation)
	}
	userPhone := phone.Normalize(req.UserPhone)
	var start *time.Time
	if req.CallStartTime != nil {
		st := DedupTime(*req.CallStartTime)
		start = &st
	}
	log := logger.From(ctx).With("number", number, "user_phone", userPhone)

	res, err := s.matcher.Resolve(ctx, userPhone, start, number)
	if err != nil {
		return UploadResult{}, err
	}
	if res.Decision == DecisionDuplicate {
		log.Info("duplicate upload discarded", "call_id", res.TargetID)
		return UploadResult{Success: true, Duplicate: true, Filename: req.Filename, CallID: res.TargetID}, nil
	}

	key, err := s.d.Recordings.Save(ctx, s.objectName(req.Filename), req.File, req.Size, req.ContentType)
	if err != nil {
		return UploadResult{}, errors.Join(calls.ErrStorage, fmt.Errorf("save recording: %w", err))
	}

	patch := s.uploadPatch(ctx, req, number, userPhone, start, key)
	callID, err := s.apply(ctx, res, number, patch)
	if errors.Is(err, calls.ErrDuplicate) {
		// lost a race with an identical upload
		s.discard(ctx, key)
		log.Info("duplicate upload discarded after race")
		return UploadResult{Success: true, Duplicate: true, Filename: req.Filename}, nil
	}
	if err != nil {
		s.discard(ctx, key)
		return UploadResult{}, err
	}
	log = log.With("call_id", callID)

	jobID, err := s.d.Queue.Enqueue(ctx, jobs.Payload{RecordingPath: key, PhoneNumber: number, CallID: callID})
	if err != nil {
		// the recording is kept; an operator can re-queue it
		log.Error("enqueue analysis failed", "err", err)
		failed := calls.AnalysisFailed
		if uerr := s.d.Calls.Update(ctx, callID, calls.Patch{AnalysisStatus: &failed}); uerr != nil {
			log.Error("mark analysis failed", "err", uerr)
		}
	}

	s.d.Events.Publish(events.Event{Type: events.TypeCallStatus, CallID: callID, Status: calls.StatusRecorded})
	log.Info("upload stored", "decision", string(res.Decision), "job_id", jobID)
	return UploadResult{Success: true, Filename: key, CallID: callID, JobID: jobID}, nil
}

func (s *Service) uploadPatch(ctx context.Context, req UploadRequest, number, userPhone string, start *time.Time, key string) calls.Patch {
	status := calls.StatusRecorded
	pending := calls.AnalysisPending
	dur := req.DurationSeconds
	p := calls.Patch{
		Status:          &status,
		RecordingPath:   &key,
		DurationSeconds: &dur,
		UserName:        &req.UserName,
		UserPhone:       &userPhone,
		CallStartTime:   start,
		AnalysisStatus:  &pending,
	}
	if d := calls.ParseDirection(req.CallType); d != "" {
		p.Direction = &d
	}
	if name := strings.TrimSpace(req.ContactName); name != "" {
		p.CustomerName = &name
	}
	if team := s.teamFor(ctx, userPhone); team != "" {
		p.TeamName = &team
	}
	return p
}

// teamFor copies the uploader's current team onto the call. A later team
// change does not rewrite old calls.
func (s *Service) teamFor(ctx context.Context, userPhone string) string {
	if s.d.Agents == nil || userPhone == "" {
		return ""
	}
	reg, err := s.d.Agents.Get(ctx, userPhone)
	if err != nil {
		if !errors.Is(err, agents.ErrNotFound) {
			logger.From(ctx).Warn("team lookup failed", "user_phone", userPhone, "err", err)
		}
		return ""
	}
	return reg.Team()
}

func (s *Service) apply(ctx context.Context, res Resolution, number string, p calls.Patch) (int64, error) {
	if res.Decision == DecisionUpdate {
		err := s.d.Calls.ClaimStub(ctx, res.TargetID, p)
		if err == nil {
			return res.TargetID, nil
		}
		if !errors.Is(err, calls.ErrNotFound) {
			return 0, err
		}
		// another upload filled the stub first
	}

	c := &calls.Call{PhoneNumber: number}
	applyPatch(c, p)
	if err := s.d.Calls.Create(ctx, c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (s *Service) objectName(original string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(original, `\`, "/")))
	if len(ext) > 6 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return s.Now().UTC().Format("2006/01/02") + "/" + uuid.NewString() + ext
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.d.Recordings.Delete(ctx, key); err != nil {
		logger.From(ctx).Error("discard recording failed", "key", key, "err", err)
	}
}

// Webhook records a call-state signal as a status-only stub.
func (s *Service) Webhook(ctx context.Context, req WebhookRequest) (calls.Call, error) {
	number := phone.Normalize(req.Number)
	if number == "" {
		return calls.Call{}, fmt.Errorf("%w: number is required", ErrValidation)
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		return calls.Call{}, fmt.Errorf("%w: status is required", ErrValidation)
	}

	c := &calls.Call{
		PhoneNumber: number,
		Status:      status,
		Direction:   calls.ParseDirection(req.Direction),
	}
	if err := s.d.Calls.Create(ctx, c); err != nil {
		return calls.Call{}, err
	}
	s.d.Events.Publish(events.Event{Type: events.TypeCallStatus, CallID: c.ID, Status: status})
	logger.From(ctx).Info("call stub created", "call_id", c.ID, "status", status)
	return *c, nil
}

// Reanalyze re-queues a stored recording. It is the only recovery path for a
// failed analysis.
func (s *Service) Reanalyze(ctx context.Context, callID int64, actor, ip string) (int64, error) {
	c, err := s.d.Calls.Get(ctx, callID)
	if err != nil {
		return 0, err
	}
	if !c.HasRecording() {
		return 0, ErrNoRecording
	}

	pending := calls.AnalysisPending
	if err := s.d.Calls.Update(ctx, callID, calls.Patch{AnalysisStatus: &pending}); err != nil {
		return 0, err
	}
	jobID, err := s.d.Queue.Enqueue(ctx, jobs.Payload{RecordingPath: *c.RecordingPath, PhoneNumber: c.PhoneNumber, CallID: c.ID})
	if err != nil {
		return 0, err
	}
	if s.d.Audit != nil {
		if err := s.d.Audit.LogReanalyze(ctx, actor, ip, callID, jobID); err != nil {
			logger.From(ctx).Warn("audit reanalyze failed", "call_id", callID, "err", err)
		}
	}
	s.d.Events.Publish(events.Event{Type: events.TypeCallStatus, CallID: callID, Status: string(pending)})
	return jobID, nil
}

func applyPatch(c *calls.Call, p calls.Patch) {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Direction != nil {
		c.Direction = *p.Direction
	}
	c.RecordingPath = p.RecordingPath
	if p.DurationSeconds != nil {
		c.DurationSeconds = *p.DurationSeconds
	}
	if p.UserName != nil {
		c.UserName = *p.UserName
	}
	if p.UserPhone != nil {
		c.UserPhone = *p.UserPhone
	}
	c.CustomerName = p.CustomerName
	c.TeamName = p.TeamName
	c.CallStartTime = p.CallStartTime
	if p.AnalysisStatus != nil {
		c.AnalysisStatus = *p.AnalysisStatus
	}
}
