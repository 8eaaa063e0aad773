package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/events"
	"callcenter-platform/internal/jobs"
	"callcenter-platform/internal/phone"
	"callcenter-platform/pkg/aiclient"
	"callcenter-platform/pkg/logger"
)

var (
	ErrCallNotFound  = errors.New("analysis: no call matches job")
	ErrCallBusy      = errors.New("analysis: call is already being analysed")
	ErrTranscription = errors.New("analysis: transcription failed")
	ErrExtraction    = errors.New("analysis: extraction failed")
)

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (aiclient.Transcription, error)
}

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type RecordingOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Progress receives advisory job progress and the resolved call id.
type Progress interface {
	ReportProgress(jobID int64, pct int)
	SetCallID(jobID, callID int64)
}

type Sentiment struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

type Outcome struct {
	CallID        int64     `json:"call_id"`
	Transcript    string    `json:"transcript"`
	Summary       string    `json:"summary"`
	Result        string    `json:"outcome,omitempty"`
	Sentiment     Sentiment `json:"sentiment"`
	Checklist     []string  `json:"checklist"`
	CustomerName  string    `json:"customer_name,omitempty"`
	rawTranscript string
}

type Deps struct {
	Calls       calls.Repository
	Recordings  RecordingOpener
	Transcriber Transcriber
	Completer   Completer
	Locker      jobs.Locker
	Progress    Progress
	Events      events.Publisher
}

// Pipeline drives one recording through transcription and the four
// extraction passes.
type Pipeline struct {
	d Deps
}

func NewPipeline(d Deps) *Pipeline {
	if d.Locker == nil {
		d.Locker = jobs.NewMemoryLocker()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &Pipeline{d: d}
}

// Handle adapts Run to the queue's handler signature.
func (p *Pipeline) Handle(ctx context.Context, job jobs.Job) error {
	_, err := p.Run(ctx, job)
	return err
}

func (p *Pipeline) Run(ctx context.Context, job jobs.Job) (Outcome, error) {
	log := logger.From(ctx)

	call, err := p.resolve(ctx, job)
	if err != nil {
		return Outcome{}, err
	}
	log = log.With("call_id", call.ID)
	ctx = logger.With(ctx, log)
	if p.d.Progress != nil && job.Payload.CallID == 0 {
		p.d.Progress.SetCallID(job.ID, call.ID)
	}

	unlock, ok, err := p.d.Locker.TryLock(ctx, fmt.Sprintf("analysis:call:%d", call.ID))
	if err != nil {
		p.markFailed(ctx, call.ID)
		return Outcome{}, fmt.Errorf("lock call %d: %w", call.ID, err)
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %d", ErrCallBusy, call.ID)
	}
	defer unlock()

	out, err := p.analyse(ctx, job, call)
	if err != nil {
		p.markFailed(ctx, call.ID)
		return Outcome{}, err
	}
	return out, nil
}

func (p *Pipeline) resolve(ctx context.Context, job jobs.Job) (calls.Call, error) {
	if job.Payload.CallID != 0 {
		c, err := p.d.Calls.Get(ctx, job.Payload.CallID)
		if errors.Is(err, calls.ErrNotFound) {
			return calls.Call{}, fmt.Errorf("%w: id %d", ErrCallNotFound, job.Payload.CallID)
		}
		return c, err
	}
	c, ok, err := p.d.Calls.FindByRecording(ctx, phone.Normalize(job.Payload.PhoneNumber), job.Payload.RecordingPath)
	if err != nil {
		return calls.Call{}, err
	}
	if !ok {
		return calls.Call{}, fmt.Errorf("%w: %s", ErrCallNotFound, job.Payload.RecordingPath)
	}
	return c, nil
}

func (p *Pipeline) analyse(ctx context.Context, job jobs.Job, call calls.Call) (Outcome, error) {
	log := logger.From(ctx)

	processing := calls.AnalysisProcessing
	if err := p.d.Calls.Update(ctx, call.ID, calls.Patch{AnalysisStatus: &processing}); err != nil {
		return Outcome{}, err
	}
	p.publishStatus(call.ID, processing)
	p.progress(job.ID, 10)

	text, err := p.transcribe(ctx, job.Payload.RecordingPath)
	if err != nil {
		return Outcome{}, err
	}
	p.progress(job.ID, 40)
	log.Info("transcribed", "chars", len(text))

	out, err := p.extract(ctx, text)
	if err != nil {
		return Outcome{}, err
	}
	out.CallID = call.ID
	p.progress(job.ID, 80)

	if err := p.persist(ctx, call, out); err != nil {
		return Outcome{}, err
	}
	p.publishStatus(call.ID, calls.AnalysisCompleted)
	log.Info("analysis completed", "sentiment", out.Sentiment.Label, "score", out.Sentiment.Score, "checklist", len(out.Checklist))
	return out, nil
}

func (p *Pipeline) transcribe(ctx context.Context, key string) (string, error) {
	rc, err := p.d.Recordings.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: open recording: %w", ErrTranscription, err)
	}
	defer rc.Close()

	tr, err := p.d.Transcriber.Transcribe(ctx, path.Base(key), rc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	if strings.TrimSpace(tr.Text) == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrTranscription)
	}
	return tr.Text, nil
}

// extract runs the four passes concurrently and waits for all of them.
// Summary, sentiment and checklist are fatal; the name pass degrades to "".
func (p *Pipeline) extract(ctx context.Context, raw string) (Outcome, error) {
	transcript := normalizeTranscript(raw)
	out := Outcome{Transcript: transcript, rawTranscript: raw}

	var g errgroup.Group
	g.SetLimit(4)

	g.Go(func() error {
		reply, err := p.d.Completer.Complete(ctx, summaryPrompt, transcript)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		s, o, err := ParseSummary(reply)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		out.Summary, out.Result = s, o
		return nil
	})
	g.Go(func() error {
		reply, err := p.d.Completer.Complete(ctx, sentimentPrompt, transcript)
		if err != nil {
			return fmt.Errorf("sentiment: %w", err)
		}
		label, score := ParseSentiment(reply)
		out.Sentiment = Sentiment{Label: label, Score: score}
		return nil
	})
	g.Go(func() error {
		reply, err := p.d.Completer.Complete(ctx, checklistPrompt, transcript)
		if err != nil {
			return fmt.Errorf("checklist: %w", err)
		}
		out.Checklist = ParseChecklist(reply)
		return nil
	})
	g.Go(func() error {
		reply, err := p.d.Completer.Complete(ctx, namePrompt, transcript)
		if err != nil {
			logger.From(ctx).Warn("customer name extraction failed", "err", err)
			return nil
		}
		out.CustomerName = ParseName(reply)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return out, nil
}

func (p *Pipeline) persist(ctx context.Context, call calls.Call, out Outcome) error {
	res := &calls.AnalysisResult{
		Transcript:     out.Transcript,
		RawTranscript:  out.rawTranscript,
		Summary:        out.Summary,
		Sentiment:      out.Sentiment.Label,
		SentimentScore: out.Sentiment.Score,
		Checklist:      out.Checklist,
		CustomerName:   out.CustomerName,
		Outcome:        out.Result,
	}

	completed := calls.AnalysisCompleted
	patch := calls.Patch{
		AnalysisStatus: &completed,
		Summary:        &out.Summary,
		Sentiment:      &out.Sentiment.Label,
		SentimentScore: &out.Sentiment.Score,
	}
	if out.Result != "" {
		patch.Outcome = &out.Result
	}
	// backfill only; a name the agent typed on the device wins
	if out.CustomerName != "" && (call.CustomerName == nil || *call.CustomerName == "") {
		patch.CustomerName = &out.CustomerName
	}
	return p.d.Calls.SaveAnalysis(ctx, call.ID, res, patch)
}

// markFailed runs even when ctx is already cancelled, so a call is never
// left in processing.
func (p *Pipeline) markFailed(ctx context.Context, callID int64) {
	failed := calls.AnalysisFailed
	if err := p.d.Calls.Update(context.WithoutCancel(ctx), callID, calls.Patch{AnalysisStatus: &failed}); err != nil {
		logger.From(ctx).Error("mark analysis failed", "err", err)
	}
	p.publishStatus(callID, failed)
}

func (p *Pipeline) publishStatus(callID int64, st calls.AnalysisStatus) {
	p.d.Events.Publish(events.Event{Type: events.TypeCallStatus, CallID: callID, Status: string(st)})
}

func (p *Pipeline) progress(jobID int64, pct int) {
	if p.d.Progress != nil {
		p.d.Progress.ReportProgress(jobID, pct)
	}
}

func normalizeTranscript(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
