package calls

import "time"

// Call is one phone call as seen by the uploading device.
//
// A call is created either by a call-state webhook (a stub: status only, no
// recording) or by a recording upload. Rows without a recording are excluded
// from every reporting view.
//
// Dedup invariant: (UserPhone, CallStartTime) is unique when both are present.
type Call struct {
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`

	// PhoneNumber is the counterparty, normalized by internal/phone.
	PhoneNumber string    `json:"phone_number" gorm:"size:32;index:idx_calls_phone_created,priority:1"`
	Direction   Direction `json:"direction" gorm:"size:16"`
	Status      string    `json:"status" gorm:"size:32"`

	RecordingPath   *string `json:"recording_path,omitempty" gorm:"size:512"`
	DurationSeconds int     `json:"duration"`

	UserName  string `json:"user_name" gorm:"size:128"`
	UserPhone string `json:"user_phone" gorm:"size:32;index"`

	CustomerName *string `json:"customer_name,omitempty" gorm:"size:128"`

	// TeamName is copied from the uploader's registration at write time.
	TeamName *string `json:"team_name,omitempty" gorm:"size:128"`

	// CallStartTime is nil for records that predate timestamped uploads.
	CallStartTime *time.Time `json:"call_start_time,omitempty"`

	AnalysisStatus AnalysisStatus `json:"analysis_status" gorm:"size:16;default:pending"`
	Summary        *string        `json:"summary,omitempty" gorm:"type:text"`
	Sentiment      *string        `json:"sentiment,omitempty" gorm:"size:16"`
	SentimentScore *int           `json:"sentiment_score,omitempty"`
	Outcome        *string        `json:"outcome,omitempty" gorm:"size:256"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_calls_phone_created,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Call) TableName() string { return "calls" }

// HasRecording reports whether the call carries an uploaded recording.
func (c Call) HasRecording() bool {
	return c.RecordingPath != nil && *c.RecordingPath != ""
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection maps device call types (INCOMING/OUTGOING) and plain
// direction names onto a Direction. Unknown values yield "".
func ParseDirection(s string) Direction {
	switch s {
	case "INCOMING", "incoming", "inbound", "INBOUND", "in":
		return DirectionInbound
	case "OUTGOING", "outgoing", "outbound", "OUTBOUND", "out":
		return DirectionOutbound
	default:
		return ""
	}
}

type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// StatusRecorded is the lifecycle status written when an upload lands.
const StatusRecorded = "recorded"

// AnalysisResult is an append-only analysis row. Only the most recent row for
// a call is authoritative.
type AnalysisResult struct {
	ID     int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	CallID int64 `json:"call_id" gorm:"index;not null"`

	Transcript    string `json:"transcript" gorm:"type:text"`
	RawTranscript string `json:"raw_transcript" gorm:"type:text"`

	Summary        string   `json:"summary" gorm:"type:text"`
	Sentiment      string   `json:"sentiment" gorm:"size:16"`
	SentimentScore int      `json:"sentiment_score"`
	Checklist      []string `json:"checklist" gorm:"serializer:json;type:text"`
	CustomerName   string   `json:"customer_name,omitempty" gorm:"size:128"`
	Outcome        string   `json:"outcome,omitempty" gorm:"size:256"`

	CreatedAt time.Time `json:"created_at"`
}

func (AnalysisResult) TableName() string { return "analysis_results" }
