package analysis

import "testing"

func TestParseSummary(t *testing.T) {
	s, o, err := ParseSummary("SUMMARY: Customer asked about a refund.\nThey will call back.\nOUTCOME: refund requested")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s != "Customer asked about a refund.\nThey will call back." {
		t.Fatalf("unexpected summary %q", s)
	}
	if o != "refund requested" {
		t.Fatalf("unexpected outcome %q", o)
	}

	s, o, err = ParseSummary("  The customer was happy.  ")
	if err != nil || s != "The customer was happy." || o != "" {
		t.Fatalf("expected whole-text fallback, got %q %q %v", s, o, err)
	}

	s, _, _ = ParseSummary("**Summary:** bold label")
	if s != "bold label" {
		t.Fatalf("expected markdown label to parse, got %q", s)
	}

	if _, _, err := ParseSummary("SUMMARY:   "); err != ErrEmptySummary {
		t.Fatalf("expected ErrEmptySummary, got %v", err)
	}
	if _, _, err := ParseSummary(""); err != ErrEmptySummary {
		t.Fatalf("expected ErrEmptySummary, got %v", err)
	}
}

func TestParseSentiment_ClampsScore(t *testing.T) {
	cases := []struct {
		in    string
		label string
		score int
	}{
		{"SENTIMENT: positive\nSCORE: 15", SentimentPositive, 10},
		{"SENTIMENT: Negative\nSCORE: -2", SentimentNegative, 1},
		{"SENTIMENT: neutral\nSCORE: 7/10", SentimentNeutral, 7},
		{"SENTIMENT: 긍정\nSCORE: 8", SentimentPositive, 8},
		{"no labels at all", SentimentNeutral, 5},
		{"SENTIMENT: ecstatic\nSCORE: lots", SentimentNeutral, 5},
		{"SCORE: 0", SentimentNeutral, 1},
		{"SENTIMENT: positive\nSCORE: 99999999999999999999", SentimentPositive, 10},
		{"SENTIMENT: negative\nSCORE: -99999999999999999999", SentimentNegative, 1},
		{"SENTIMENT: not positive\nSCORE: 4", SentimentNeutral, 4},
		{"SENTIMENT: positive → negative\nSCORE: 6", SentimentPositive, 6},
		{"SENTIMENT: Negative.\nSCORE: 3", SentimentNegative, 3},
		{"SENTIMENT: positively negative", SentimentNeutral, 5},
	}
	for _, tc := range cases {
		label, score := ParseSentiment(tc.in)
		if label != tc.label || score != tc.score {
			t.Fatalf("ParseSentiment(%q) = %q,%d want %q,%d", tc.in, label, score, tc.label, tc.score)
		}
	}
}

func TestParseChecklist(t *testing.T) {
	got := ParseChecklist("CHECKLIST:\n- send quote\n* confirm address\n3. schedule visit\nThanks!")
	want := []string{"send quote", "confirm address", "schedule visit"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}

	for _, none := range []string{"none", "NONE", "없음", "CHECKLIST: none", "- none"} {
		if got := ParseChecklist(none); got == nil || len(got) != 0 {
			t.Fatalf("ParseChecklist(%q) = %v, want empty list", none, got)
		}
	}
}

func TestParseName(t *testing.T) {
	cases := map[string]string{
		"NAME: Park Jiwoo": "Park Jiwoo",
		"NAME: unknown":    "",
		"NAME: 알 수 없음":     "",
		"NAME:":            "",
		"I could not tell": "",
	}
	for in, want := range cases {
		if got := ParseName(in); got != want {
			t.Fatalf("ParseName(%q) = %q want %q", in, got, want)
		}
	}
}

func TestClampScore(t *testing.T) {
	if ClampScore(15) != 10 || ClampScore(-2) != 1 || ClampScore(6) != 6 {
		t.Fatalf("clamp out of range")
	}
}
