package metric

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
}

func TestRegistry_RegisterCounter(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.Register("test-component", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	// Verify the counter is registered in the underlying Prometheus registry
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "Counter should be registered in Prometheus registry")
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.Register("test-component", "dup_counter", counter))

	other := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_counter",
		Help: "A test counter",
	})
	err := registry.Register("test-component", "dup_counter", other)
	assert.Error(t, err, "same component/name pair must not register twice")
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})
	require.NoError(t, registry.Register("test-component", "test_gauge", gauge))

	assert.True(t, registry.Unregister("test-component", "test_gauge"))
	assert.False(t, registry.Unregister("test-component", "test_gauge"),
		"second unregister reports the metric is gone")

	// Re-registration after unregister must succeed
	assert.NoError(t, registry.Register("test-component", "test_gauge", gauge))
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", i),
				Help: "A test counter",
			})
			assert.NoError(t, registry.Register("test-component",
				fmt.Sprintf("concurrent_counter_%d", i), counter))
		}(i)
	}
	wg.Wait()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	count := 0
	for _, mf := range metricFamilies {
		if len(mf.GetName()) >= len("concurrent_counter_") &&
			mf.GetName()[:len("concurrent_counter_")] == "concurrent_counter_" {
			count++
		}
	}
	assert.Equal(t, 10, count)
}

func TestServer_Defaults(t *testing.T) {
	server := NewServer("", "", NewRegistry())
	assert.Equal(t, ":9090", server.addr)
	assert.Equal(t, "/metrics", server.path)
}

func TestServer_StopBeforeStart(t *testing.T) {
	server := NewServer(":9090", "/metrics", NewRegistry())
	assert.NoError(t, server.Stop())
}
