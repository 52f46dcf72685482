// Package metrics exposes alarm state and check activity in the Prometheus
// text format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/chime/internal/models"
)

const namespace = "chime"

// Source supplies the alarm collection at scrape time.
type Source interface {
	GetAlarms() []models.Alarm
}

var (
	alarmsDesc = prometheus.NewDesc(
		namespace+"_alarms", "Alarms grouped by state.", []string{"state"}, nil,
	)
	nextTriggerDesc = prometheus.NewDesc(
		namespace+"_next_trigger_timestamp_seconds", "Earliest scheduled trigger time, 0 when nothing is scheduled.", nil, nil,
	)
)

// Metrics implements alarm.Observer and serves a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	collector *alarmCollector

	fired     prometheus.Counter
	persisted *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		collector: &alarmCollector{},
		fired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_fired_total",
			Help:      "Alarms fired by trigger checks.",
		}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Collection writes to the key-value store by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.collector, m.fired, m.persisted)
	return m
}

// Watch sets the collection reported by the alarm gauges.
func (m *Metrics) Watch(src Source) {
	m.collector.mu.Lock()
	defer m.collector.mu.Unlock()
	m.collector.src = src
}

func (m *Metrics) AlarmsFired(n int) {
	m.fired.Add(float64(n))
}

func (m *Metrics) Persisted(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.persisted.WithLabelValues(result).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type alarmCollector struct {
	mu  sync.Mutex
	src Source
}

func (c *alarmCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- alarmsDesc
	ch <- nextTriggerDesc
}

func (c *alarmCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	src := c.src
	c.mu.Unlock()

	var alarms []models.Alarm
	if src != nil {
		alarms = src.GetAlarms()
	}

	counts := map[string]float64{"enabled": 0, "disabled": 0, "scheduled": 0}
	var next int64
	for _, a := range alarms {
		if !a.Enabled {
			counts["disabled"]++
			continue
		}
		counts["enabled"]++
		if a.NextTriggerTime > 0 {
			counts["scheduled"]++
			if next == 0 || a.NextTriggerTime < next {
				next = a.NextTriggerTime
			}
		}
	}

	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(alarmsDesc, prometheus.GaugeValue, n, state)
	}
	ch <- prometheus.MustNewConstMetric(nextTriggerDesc, prometheus.GaugeValue, float64(next))
}
