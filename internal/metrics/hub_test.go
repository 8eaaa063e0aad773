package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"callcenter-platform/internal/events"
)

func TestRegisterHub_ExportsDropsAndSubscribers(t *testing.T) {
	hub := events.NewHub(1)
	sub := hub.Subscribe()
	defer sub.Close()

	reg := prometheus.NewRegistry()
	if err := RegisterHub(reg, hub); err != nil {
		t.Fatalf("register: %v", err)
	}

	// buffer of one: the second and third events are dropped
	for i := 0; i < 3; i++ {
		hub.Publish(events.Event{Type: events.TypeCallStatus, CallID: int64(i + 1)})
	}

	want := `
# HELP events_dropped_total Events lost because a subscriber buffer was full.
# TYPE events_dropped_total counter
events_dropped_total 2
# HELP events_subscribers Connected websocket subscribers.
# TYPE events_subscribers gauge
events_subscribers 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "events_dropped_total", "events_subscribers"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	if err := RegisterHub(reg, hub); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
