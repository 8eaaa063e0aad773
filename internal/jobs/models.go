package jobs

import "time"

type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Payload is what an upload hands to the analysis worker. CallID is zero when
// the worker has to resolve the call itself.
type Payload struct {
	RecordingPath string `json:"recording_path"`
	PhoneNumber   string `json:"phone_number"`
	CallID        int64  `json:"call_id,omitempty"`
}

type Job struct {
	ID       int64   `json:"id"`
	Payload  Payload `json:"payload"`
	State    State   `json:"state"`
	Progress int     `json:"progress"`
	Error    string  `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	token string
}

// Message is the transport envelope. Token identifies the enqueue that
// produced it; job ids alone are only unique within one process.
type Message struct {
	JobID   int64   `json:"job_id"`
	Token   string  `json:"token"`
	Payload Payload `json:"payload"`
}
