package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubStats is the read side of the websocket event hub.
type HubStats interface {
	Dropped() uint64
	ClientCount() int
}

// RegisterHub exposes the hub's drop counter and subscriber count on reg.
func RegisterHub(reg prometheus.Registerer, h HubStats) error {
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "Events lost because a subscriber buffer was full.",
	}, func() float64 { return float64(h.Dropped()) })
	subscribers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "events_subscribers",
		Help: "Connected websocket subscribers.",
	}, func() float64 { return float64(h.ClientCount()) })

	for _, c := range []prometheus.Collector{dropped, subscribers} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
