package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("events_total", nil, "Events seen")
	r.IncrementCounter("events_total", nil, "Events seen")
	r.AddToCounter("events_total", 3, nil, "Events seen")

	metrics := r.GetAllMetrics()
	counters := metrics["counters"].(map[string]*Metric)

	require.Contains(t, counters, "events_total")
	assert.Equal(t, float64(5), counters["events_total"].Value)
	assert.Equal(t, Counter, counters["events_total"].Type)
	assert.Equal(t, "Events seen", counters["events_total"].Description)
}

func TestRegistry_CounterLabels(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("deliveries_total", map[string]string{"result": "success"}, "Deliveries")
	r.IncrementCounter("deliveries_total", map[string]string{"result": "failure"}, "Deliveries")
	r.IncrementCounter("deliveries_total", map[string]string{"result": "success"}, "Deliveries")

	counters := r.GetAllMetrics()["counters"].(map[string]*Metric)

	require.Contains(t, counters, "deliveries_total_result:success")
	require.Contains(t, counters, "deliveries_total_result:failure")
	assert.Equal(t, float64(2), counters["deliveries_total_result:success"].Value)
	assert.Equal(t, float64(1), counters["deliveries_total_result:failure"].Value)
}

func TestRegistry_Timers(t *testing.T) {
	r := NewRegistry()

	r.RecordTimer("op_duration", 10*time.Millisecond, nil, "Op duration")
	r.RecordTimer("op_duration", 30*time.Millisecond, nil, "Op duration")
	r.RecordTimer("op_duration", 20*time.Millisecond, nil, "Op duration")

	timers := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	require.Contains(t, timers, "op_duration")

	timer := timers["op_duration"]
	assert.Equal(t, int64(3), timer.Count)
	assert.InDelta(t, 60.0, timer.Sum, 0.001)
	assert.InDelta(t, 10.0, timer.Min, 0.001)
	assert.InDelta(t, 30.0, timer.Max, 0.001)
	assert.InDelta(t, 20.0, timer.Average, 0.001)
}

func TestRegistry_TimerPercentiles(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 100; i++ {
		r.RecordTimer("op_duration", time.Duration(i)*time.Millisecond, nil, "Op duration")
	}

	timer := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)["op_duration"]
	assert.InDelta(t, 96.0, timer.P95, 1.0)
	assert.InDelta(t, 100.0, timer.P99, 1.0)
}

func TestRegistry_Gauges(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("active_subscribers", 4, nil, "Active subscribers")
	r.SetGauge("active_subscribers", 7, nil, "Active subscribers")

	gauges := r.GetAllMetrics()["gauges"].(map[string]*Metric)
	require.Contains(t, gauges, "active_subscribers")
	assert.Equal(t, float64(7), gauges["active_subscribers"].Value)
	assert.Equal(t, Gauge, gauges["active_subscribers"].Type)
}

func TestRegistry_GetAllMetricsShape(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("c", nil, "")

	metrics := r.GetAllMetrics()
	assert.Contains(t, metrics, "counters")
	assert.Contains(t, metrics, "timers")
	assert.Contains(t, metrics, "gauges")
	assert.Contains(t, metrics, "uptime_ms")
	assert.Contains(t, metrics, "timestamp")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.IncrementCounter("concurrent_total", nil, "")
				r.RecordTimer("concurrent_duration", time.Millisecond, nil, "")
				r.SetGauge("concurrent_gauge", float64(j), nil, "")
			}
		}()
	}
	wg.Wait()

	counters := r.GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Equal(t, float64(1000), counters["concurrent_total"].Value)
}

func TestGlobalRegistry(t *testing.T) {
	IncrementCounter("global_test_total", nil, "Global test")
	metrics := GetAllMetrics()
	counters := metrics["counters"].(map[string]*Metric)
	assert.Contains(t, counters, "global_test_total")
}
