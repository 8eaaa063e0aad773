package audit

import "time"

// Event is an immutable, append-only audit record of an operator action.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and IP are best-effort; audit failures never block the action.
type Event struct {
	ID   string    `json:"id" gorm:"primaryKey;size:36"`
	Type EventType `json:"type" gorm:"size:32;index"`

	// Actor is whatever identity the operator console forwarded.
	Actor     string `json:"actor,omitempty" gorm:"size:128"`
	IPAddress string `json:"ip_address,omitempty" gorm:"size:64"`

	CallID int64 `json:"call_id,omitempty" gorm:"index"`
	JobID  int64 `json:"job_id,omitempty"`

	Message  string `json:"message,omitempty" gorm:"size:512"`
	Metadata string `json:"metadata,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (Event) TableName() string { return "audit_events" }

type EventType string

const (
	EventTypeReanalyze EventType = "reanalyze_requested"
)
