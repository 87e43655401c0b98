package client

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/hapticbridge/metric"
)

// Metrics holds Prometheus metrics for the protocol client
type Metrics struct {
	commandsSent      *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	connectsTotal     prometheus.Counter
	disconnectsTotal  prometheus.Counter
	devicesRegistered prometheus.Gauge
}

// newMetrics creates and registers client metrics
func newMetrics(registry *metric.Registry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	metrics := &Metrics{
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "client",
			Name:      "commands_sent_total",
			Help:      "Total commands sent to the hardware server",
		}, []string{"command"}),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "client",
			Name:      "frames_received_total",
			Help:      "Total frames received from the hardware server",
		}, []string{"type"}),

		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "client",
			Name:      "decode_errors_total",
			Help:      "Total malformed frames dropped",
		}),

		connectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "client",
			Name:      "connects_total",
			Help:      "Total successful connect sequences",
		}),

		disconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "client",
			Name:      "disconnects_total",
			Help:      "Total connection losses",
		}),

		devicesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hapticbridge",
			Subsystem: "client",
			Name:      "devices_registered",
			Help:      "Number of devices currently in the registry",
		}),
	}

	registrations := []struct {
		name      string
		collector prometheus.Collector
	}{
		{"commands_sent", metrics.commandsSent},
		{"frames_received", metrics.framesReceived},
		{"decode_errors", metrics.decodeErrors},
		{"connects", metrics.connectsTotal},
		{"disconnects", metrics.disconnectsTotal},
		{"devices_registered", metrics.devicesRegistered},
	}
	for _, reg := range registrations {
		if err := registry.Register("client", reg.name, reg.collector); err != nil {
			return nil, err
		}
	}

	return metrics, nil
}
