package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// StatusSource provides a device status snapshot. *device.Manager
// satisfies it.
type StatusSource interface {
	StatusList() []device.Status
}

var allStates = []device.State{
	device.StateUninitialized,
	device.StateStarted,
	device.StateStopped,
	device.StateFaulted,
}

// deviceCollector reports orchestra_devices{type,state} from a live snapshot.
type deviceCollector struct {
	src  StatusSource
	desc *prometheus.Desc
}

// WatchDevices registers a collector that counts devices per type and
// state on every scrape.
func (m *Metrics) WatchDevices(src StatusSource) error {
	return m.registry.Register(&deviceCollector{
		src: src,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "devices"),
			"Managed devices by type and lifecycle state",
			[]string{"type", "state"},
			nil,
		),
	})
}

func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[string]map[device.State]int)
	for _, st := range c.src.StatusList() {
		byState, ok := counts[st.Type]
		if !ok {
			byState = make(map[device.State]int, len(allStates))
			counts[st.Type] = byState
		}
		byState[st.State]++
	}

	for typ, byState := range counts {
		for _, state := range allStates {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue,
				float64(byState[state]), typ, string(state))
		}
	}
}
