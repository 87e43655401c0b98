package signal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/hapticbridge/metric"
)

// Option configures a Bridge.
type Option func(*Bridge) error

// WithSubjectPrefix overrides the subject prefix for all bridge subjects.
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bridge) error {
		prefix = strings.TrimSuffix(prefix, ".")
		if prefix == "" {
			return fmt.Errorf("subject prefix is empty")
		}
		b.prefix = prefix
		return nil
	}
}

// WithHeartbeat sets the interval for periodic snapshot publishes.
// Zero disables the heartbeat; change-triggered publishes still happen.
func WithHeartbeat(interval time.Duration) Option {
	return func(b *Bridge) error {
		if interval < 0 {
			return fmt.Errorf("heartbeat interval is negative")
		}
		b.heartbeat = interval
		return nil
	}
}

// WithClientName sets the NATS connection name.
func WithClientName(name string) Option {
	return func(b *Bridge) error {
		b.clientName = name
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) error {
		if logger == nil {
			return fmt.Errorf("logger is nil")
		}
		b.logger = logger
		return nil
	}
}

// WithMetrics registers the bridge metrics with the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(b *Bridge) error {
		m, err := newBridgeMetrics(registry)
		if err != nil {
			return err
		}
		b.metrics = m
		return nil
	}
}

type bridgeMetrics struct {
	signalsReceived    prometheus.Counter
	malformedDropped   prometheus.Counter
	snapshotsPublished prometheus.Counter
}

func newBridgeMetrics(registry *metric.Registry) (*bridgeMetrics, error) {
	m := &bridgeMetrics{
		signalsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "signal",
			Name:      "work_signals_received_total",
			Help:      "Work-signal samples received from the bus.",
		}),
		malformedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "signal",
			Name:      "malformed_payloads_dropped_total",
			Help:      "Bus payloads dropped because they failed to parse.",
		}),
		snapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "signal",
			Name:      "snapshots_published_total",
			Help:      "Presence snapshots published to the bus.",
		}),
	}

	collectors := map[string]prometheus.Collector{
		"work_signals_received_total":      m.signalsReceived,
		"malformed_payloads_dropped_total": m.malformedDropped,
		"snapshots_published_total":        m.snapshotsPublished,
	}
	for name, collector := range collectors {
		if err := registry.Register("signal", name, collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}
