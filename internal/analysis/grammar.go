package analysis

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Model output grammar: one "LABEL: value" per line. Labels are matched case
// insensitively and may be wrapped in markdown emphasis.

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"

	minScore     = 1
	maxScore     = 10
	defaultScore = 5
)

var ErrEmptySummary = errors.New("analysis: empty summary")

var (
	labelLine   = regexp.MustCompile(`^[A-Za-z_ ]{2,24}:`)
	intPattern  = regexp.MustCompile(`[-+]?\d+`)
	numberedRow = regexp.MustCompile(`^\d+[.)]\s*`)
)

func cleanLine(s string) string {
	return strings.Trim(strings.TrimSpace(s), "*#_` ")
}

// field returns the value of the first line labeled label. With multiline set,
// following unlabeled lines are appended.
func field(text, label string, multiline bool) (string, bool) {
	lines := strings.Split(text, "\n")
	prefix := strings.ToLower(label) + ":"
	for i, raw := range lines {
		line := cleanLine(raw)
		if !strings.HasPrefix(strings.ToLower(line), prefix) {
			continue
		}
		val := []string{cleanLine(line[len(prefix):])}
		if multiline {
			for _, next := range lines[i+1:] {
				if labelLine.MatchString(cleanLine(next)) {
					break
				}
				val = append(val, strings.TrimSpace(next))
			}
		}
		return strings.TrimSpace(strings.Join(val, "\n")), true
	}
	return "", false
}

// ParseSummary reads SUMMARY and the optional OUTCOME. Without a SUMMARY label
// the whole reply is the summary.
func ParseSummary(text string) (summary, outcome string, err error) {
	outcome, _ = field(text, "OUTCOME", false)
	summary, ok := field(text, "SUMMARY", true)
	if !ok {
		var kept []string
		for _, l := range strings.Split(text, "\n") {
			if strings.HasPrefix(strings.ToLower(cleanLine(l)), "outcome:") {
				continue
			}
			kept = append(kept, l)
		}
		summary = strings.TrimSpace(strings.Join(kept, "\n"))
	}
	if summary == "" {
		return "", "", ErrEmptySummary
	}
	return summary, outcome, nil
}

// ParseSentiment never fails: a missing label is neutral, a missing score is
// 5, and any score is clamped into [1,10].
func ParseSentiment(text string) (label string, score int) {
	label = SentimentNeutral
	if v, ok := field(text, "SENTIMENT", false); ok {
		label = normalizeSentiment(v)
	}
	score = defaultScore
	if v, ok := field(text, "SCORE", false); ok {
		if m := intPattern.FindString(v); m != "" {
			n, err := strconv.Atoi(m)
			switch {
			case err == nil:
				score = n
			case errors.Is(err, strconv.ErrRange) && strings.HasPrefix(m, "-"):
				score = minScore
			case errors.Is(err, strconv.ErrRange):
				score = maxScore
			}
		}
	}
	return label, ClampScore(score)
}

// normalizeSentiment reads the first word only, so qualified replies such as
// "not positive" fall back to neutral.
func normalizeSentiment(v string) string {
	words := strings.Fields(strings.ToLower(v))
	if len(words) == 0 {
		return SentimentNeutral
	}
	switch strings.Trim(words[0], ".,;:!?*\"'()[]") {
	case SentimentPositive, "긍정":
		return SentimentPositive
	case SentimentNegative, "부정":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func ClampScore(n int) int {
	if n < minScore {
		return minScore
	}
	if n > maxScore {
		return maxScore
	}
	return n
}

// ParseChecklist collects bulleted or numbered lines. A reply of "none" is an
// empty list.
func ParseChecklist(text string) []string {
	body := text
	if v, ok := field(text, "CHECKLIST", true); ok {
		body = v
	}
	if isNone(body) {
		return []string{}
	}

	items := []string{}
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		var item string
		switch {
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"), strings.HasPrefix(line, "•"):
			item = strings.TrimSpace(strings.TrimLeft(line, "-*• "))
		case numberedRow.MatchString(line):
			item = strings.TrimSpace(numberedRow.ReplaceAllString(line, ""))
		default:
			continue
		}
		if item == "" || isNone(item) {
			continue
		}
		items = append(items, item)
	}
	return items
}

// ParseName returns "" when the model could not tell.
func ParseName(text string) string {
	v, ok := field(text, "NAME", false)
	if !ok || isNone(v) {
		return ""
	}
	switch strings.ToLower(v) {
	case "unknown", "알 수 없음", "모름":
		return ""
	}
	return v
}

func isNone(s string) bool {
	switch strings.ToLower(cleanLine(s)) {
	case "", "none", "n/a", "없음", "없음.", "none.":
		return true
	}
	return false
}
