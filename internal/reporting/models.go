package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest selects recorded calls created in [From, To). Team is
// an optional filter on the resolved team.
type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
	Team  string    `json:"team,omitempty"`
}

// CallRow is one recorded call with its team resolved at read time:
// the call's own team first, then the uploader's current registration.
type CallRow struct {
	ID              int64   `json:"id"`
	TeamName        *string `json:"team_name"`
	UserPhone       string  `json:"user_phone"`
	DurationSeconds int     `json:"duration_seconds"`
	AnalysisStatus  string  `json:"analysis_status"`
	Sentiment       *string `json:"sentiment"`
	SentimentScore  *int    `json:"sentiment_score"`
}

type TeamSummary struct {
	Team string `json:"team"`

	RecordedCalls          int `json:"recorded_calls"`
	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	AnalysedCalls int `json:"analysed_calls"`
	FailedCalls   int `json:"failed_calls"`
	PendingCalls  int `json:"pending_calls"`

	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`

	AverageSentimentScore float64 `json:"average_sentiment_score"`

	scoreSum int
}

type CallsSummary struct {
	Range  TimeRange     `json:"range"`
	Teams  []TeamSummary `json:"teams"`
	Totals TeamSummary   `json:"totals"`
}
