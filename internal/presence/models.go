package presence

import (
	"strings"
	"time"
)

// DefaultTTL is how long a heartbeat keeps an agent online.
const DefaultTTL = 2 * time.Hour

type CallState string

const (
	StateIdle   CallState = "idle"
	StateOnCall CallState = "oncall"
)

// ParseCallState accepts the device spellings of an active call and treats
// everything else, including "", as idle.
func ParseCallState(s string) CallState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oncall", "on_call", "offhook", "active":
		return StateOnCall
	default:
		return StateIdle
	}
}

// Entry is the volatile online state of one agent, keyed by normalized phone.
type Entry struct {
	Phone         string     `json:"phone"`
	Name          string     `json:"name"`
	LastSeen      time.Time  `json:"last_seen"`
	CallState     CallState  `json:"call_state"`
	CallNumber    *string    `json:"call_number,omitempty"`
	CallStartTime *time.Time `json:"call_start_time,omitempty"`
}

// Heartbeat is one device signal.
type Heartbeat struct {
	Phone         string
	Name          string
	CallState     string
	CallNumber    string
	CallStartTime *time.Time
}
