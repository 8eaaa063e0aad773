package reporting

import (
	"context"
	"errors"
	"sort"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/live"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// CallsSummary aggregates recorded calls per resolved team.
func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListRecordedCalls(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	byTeam := map[string]*TeamSummary{}
	totals := TeamSummary{Team: "all"}
	for _, row := range rows {
		team := live.UnassignedTeam
		if row.TeamName != nil && *row.TeamName != "" {
			team = *row.TeamName
		}
		if req.Team != "" && req.Team != team {
			continue
		}
		ts, ok := byTeam[team]
		if !ok {
			ts = &TeamSummary{Team: team}
			byTeam[team] = ts
		}
		ts.add(row)
		totals.add(row)
	}

	out := CallsSummary{Range: req.Range, Teams: make([]TeamSummary, 0, len(byTeam))}
	for _, ts := range byTeam {
		ts.finish()
		out.Teams = append(out.Teams, *ts)
	}
	sort.Slice(out.Teams, func(i, j int) bool { return out.Teams[i].Team < out.Teams[j].Team })
	totals.finish()
	out.Totals = totals
	return out, nil
}

func (t *TeamSummary) add(row CallRow) {
	t.RecordedCalls++
	t.TotalDurationSeconds += row.DurationSeconds

	switch calls.AnalysisStatus(row.AnalysisStatus) {
	case calls.AnalysisCompleted:
		t.AnalysedCalls++
	case calls.AnalysisFailed:
		t.FailedCalls++
	default:
		t.PendingCalls++
	}
	if row.Sentiment != nil {
		switch *row.Sentiment {
		case "positive":
			t.Positive++
		case "negative":
			t.Negative++
		default:
			t.Neutral++
		}
	}
	if row.SentimentScore != nil {
		t.scoreSum += *row.SentimentScore
	}
}

func (t *TeamSummary) finish() {
	if t.RecordedCalls > 0 {
		t.AverageDurationSeconds = t.TotalDurationSeconds / t.RecordedCalls
	}
	if scored := t.Positive + t.Negative + t.Neutral; scored > 0 {
		t.AverageSentimentScore = float64(t.scoreSum) / float64(scored)
	}
}
